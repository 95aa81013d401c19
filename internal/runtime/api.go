package runtime

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drblury/querysub/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/transport"
)

const defaultAPIPort = 8081

// HandlerView is one entry of the /api/handlers response.
type HandlerView struct {
	Name  string        `json:"name"`
	Topic string        `json:"topic"`
	Stats StatsSnapshot `json:"stats"`
}

// HandlersResponse is the /api/handlers body.
type HandlersResponse struct {
	Handlers    []HandlerView          `json:"handlers"`
	Subscribers []string               `json:"subscribers"`
	Transport   transport.Capabilities `json:"transport"`
}

func (s *Service) apiPort() int {
	if s.Conf == nil || s.Conf.APIPort == 0 {
		return defaultAPIPort
	}
	return s.Conf.APIPort
}

func (s *Service) registerAPI() {
	if s.Conf == nil || !s.Conf.APIEnabled {
		return
	}
	s.RegisterAPIRoutes(func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.cors)
			r.Get("/api/handlers", s.handleGetHandlers)
			r.Get("/api/poison", s.handleGetPoison)
			r.Options("/api/*", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})
}

// HandlersSnapshot returns the data served on /api/handlers.
func (s *Service) HandlersSnapshot() HandlersResponse {
	resp := HandlersResponse{
		Handlers:    []HandlerView{},
		Subscribers: []string{},
		Transport:   s.capabilities,
	}
	for _, h := range s.Handlers() {
		resp.Handlers = append(resp.Handlers, HandlerView{Name: h.Name, Topic: h.Topic, Stats: h.Stats.Snapshot()})
	}
	if s.subscribers != nil {
		resp.Subscribers = s.subscribers.Keys()
	}
	return resp
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.HandlersSnapshot())
}

func (s *Service) handleGetPoison(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.poison.Snapshot())
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode API response", err, loggingpkg.LogFields{})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Service) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) allowedOrigin(requestOrigin string) string {
	if s.Conf == nil || requestOrigin == "" {
		return ""
	}
	for _, allowed := range s.Conf.APICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
