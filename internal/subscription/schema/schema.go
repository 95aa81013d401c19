// Package schema validates the versioned envelope that carries query
// subscription results and decodes it into a Payload.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/drblury/querysub/internal/runtime/jsoncodec"
)

// Envelope is the outer wrapper of every results message.
type Envelope struct {
	Version int
	Payload map[string]any
}

// payloadSchema describes the fields one schema version carries.
type payloadSchema struct {
	required    []string
	resultField string
	hasEntity   bool
}

var schemas = map[int]payloadSchema{
	1: {
		required:    []string{"subscription_id", "values", "timestamp"},
		resultField: "values",
	},
	2: {
		required:    []string{"subscription_id", "request", "result", "timestamp"},
		resultField: "result",
	},
	3: {
		required:    []string{"subscription_id", "request", "result", "entity", "timestamp"},
		resultField: "result",
		hasEntity:   true,
	},
}

// Versions lists the known schema versions in ascending order.
func Versions() []int {
	out := make([]int, 0, len(schemas))
	for v := range schemas {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Parse decodes raw message bytes and validates the payload against the
// schema named by the envelope version.
func Parse(raw []byte) (Payload, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return Payload{}, err
	}
	return Validate(env)
}

// DecodeEnvelope decodes the wrapper without looking inside the payload.
// The producer may emit bare NaN and Infinity tokens; they are accepted.
// Quoted "NaN" stays a string.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var doc map[string]any
	if err := jsoncodec.UnmarshalNumbers(jsoncodec.ReplaceNonFinite(raw), &doc); err != nil {
		return Envelope{}, &InvalidMessageError{Reason: "message is not a JSON object", Err: err}
	}
	if doc == nil {
		return Envelope{}, &InvalidMessageError{Reason: "message is not a JSON object"}
	}
	jsoncodec.RestoreNonFinite(doc)

	rawVersion, ok := doc["version"]
	if !ok {
		return Envelope{}, &InvalidMessageError{Reason: "wrapper is missing version"}
	}
	rawPayload, ok := doc["payload"]
	if !ok {
		return Envelope{}, &InvalidMessageError{Reason: "wrapper is missing payload"}
	}

	num, ok := rawVersion.(json.Number)
	if !ok {
		return Envelope{}, &InvalidMessageError{Reason: msgNoSchemaForVersion}
	}
	version, err := strconv.Atoi(num.String())
	if err != nil {
		return Envelope{}, &InvalidMessageError{Reason: msgNoSchemaForVersion}
	}
	if _, known := schemas[version]; !known {
		return Envelope{}, &InvalidMessageError{Reason: msgNoSchemaForVersion}
	}

	payload, ok := rawPayload.(map[string]any)
	if !ok {
		return Envelope{}, schemaErr(version, "payload", "must be an object")
	}
	return Envelope{Version: version, Payload: payload}, nil
}

// Validate checks env.Payload against the schema of env.Version.
func Validate(env Envelope) (Payload, error) {
	s, ok := schemas[env.Version]
	if !ok {
		return Payload{}, &InvalidMessageError{Reason: msgNoSchemaForVersion}
	}
	if env.Payload == nil {
		return Payload{}, schemaErr(env.Version, "payload", "must be an object")
	}
	for _, field := range s.required {
		if _, ok := env.Payload[field]; !ok {
			return Payload{}, schemaErr(env.Version, field, "is required")
		}
	}

	out := Payload{Version: env.Version}
	var err error

	if out.SubscriptionID, err = decodeSubscriptionID(env.Version, env.Payload["subscription_id"]); err != nil {
		return Payload{}, err
	}
	if out.Result, err = decodeResult(env.Version, s.resultField, env.Payload[s.resultField]); err != nil {
		return Payload{}, err
	}
	if rawRequest, ok := env.Payload["request"]; ok {
		if out.Request, err = decodeRequest(env.Version, rawRequest); err != nil {
			return Payload{}, err
		}
	}
	if s.hasEntity {
		entity, ok := env.Payload["entity"].(string)
		if !ok {
			return Payload{}, schemaErr(env.Version, "entity", "must be a string")
		}
		out.Entity = entity
	}
	if out.Timestamp, err = decodeTimestamp(env.Version, env.Payload["timestamp"]); err != nil {
		return Payload{}, err
	}
	return out, nil
}

func decodeSubscriptionID(version int, v any) (string, error) {
	id, ok := v.(string)
	if !ok || id == "" {
		return "", schemaErr(version, "subscription_id", "must be a non-empty string")
	}
	return id, nil
}

func decodeResult(version int, field string, v any) (Result, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Result{}, schemaErr(version, field, "must be an object")
	}
	rawData, ok := obj["data"]
	if !ok {
		return Result{}, schemaErr(version, field+".data", "is required")
	}
	items, ok := rawData.([]any)
	if !ok {
		return Result{}, schemaErr(version, field+".data", "must be an array")
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		cols, ok := item.(map[string]any)
		if !ok {
			return Result{}, schemaErr(version, fmt.Sprintf("%s.data[%d]", field, i), "must be an object")
		}
		row := make(Row, len(cols))
		for name, cell := range cols {
			f, ok := toFloat(cell)
			if !ok {
				return Result{}, schemaErr(version, fmt.Sprintf("%s.data[%d].%s", field, i, name), "must be a number")
			}
			row[name] = f
		}
		rows = append(rows, row)
	}
	return Result{Data: rows}, nil
}

func decodeRequest(version int, v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, schemaErr(version, "request", "must be an object")
	}
	return plain(obj).(map[string]any), nil
}

func decodeTimestamp(version int, v any) (Timestamp, error) {
	switch ts := v.(type) {
	case string:
		if ts == "" {
			return Timestamp{}, schemaErr(version, "timestamp", "must be a timestamp string or a non-negative number")
		}
		return TextTimestamp(ts), nil
	case json.Number:
		f, err := ts.Float64()
		if err != nil || f < 0 {
			return Timestamp{}, schemaErr(version, "timestamp", "must not be negative")
		}
		return UnixTimestamp(f), nil
	default:
		return Timestamp{}, schemaErr(version, "timestamp", "must be a timestamp string or a non-negative number")
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case jsoncodec.NonFiniteFloat:
		return float64(n), true
	default:
		return 0, false
	}
}

// plain replaces json.Number and non-finite numbers with int64 or float64
// values so handlers see ordinary Go types.
func plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case jsoncodec.NonFiniteFloat:
		return float64(t)
	default:
		return v
	}
}
