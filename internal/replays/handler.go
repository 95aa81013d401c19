package replays

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drblury/querysub/internal/runtime/jsoncodec"
	"github.com/drblury/querysub/internal/runtime/logging"
)

// IssueReplayCountPath is the route of the replay count endpoint.
const IssueReplayCountPath = "/organizations/{organization_slug}/issue-replay-count/"

type Handler struct {
	store   Store
	log     logging.ServiceLogger
	timeout time.Duration
}

func NewHandler(store Store, log logging.ServiceLogger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{store: store, log: log, timeout: 10 * time.Second}
}

// Routes returns a router serving the replay count endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// Mount registers the endpoint on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get(IssueReplayCountPath, h.issueReplayCount)
}

func (h *Handler) issueReplayCount(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "organization_slug")

	issueIDs, err := ParseIssueIDs(r.URL.Query().Get("query"))
	if err != nil {
		var paramErr *ParamError
		if errors.As(err, &paramErr) {
			writeDetail(w, http.StatusBadRequest, paramErr.Detail)
			return
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	counts, err := h.store.CountReplays(ctx, org, issueIDs, MaxReplayCount)
	if err != nil {
		h.log.Error("Failed to count issue replays", err, logging.LogFields{
			"organization": org,
			"issue_ids":    issueIDs,
		})
		writeDetail(w, http.StatusInternalServerError, "Internal Error")
		return
	}

	body := make(map[string]int, len(counts))
	for id, n := range counts {
		body[strconv.FormatInt(id, 10)] = n
	}
	writeJSON(w, http.StatusOK, body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncodec.Encode(w, v)
}
