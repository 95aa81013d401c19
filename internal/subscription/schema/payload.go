package schema

import (
	"time"
)

// Row is one result row: column name to numeric value. Values may be NaN or
// infinite when the query engine produced them.
type Row map[string]float64

// Result is the query result carried by a message.
type Result struct {
	Data []Row `json:"data"`
}

// Payload is a validated message payload. Every schema version decodes into
// this shape; fields a version does not carry are left zero.
type Payload struct {
	Version        int
	SubscriptionID string
	Result         Result
	Request        map[string]any
	Entity         string
	Timestamp      Timestamp
}

// DispatchPayload is the handler-facing form of a payload, built once per
// dispatched message.
type DispatchPayload struct {
	Version        int
	SubscriptionID string
	Result         Result
	// Values holds the same result as Result. Handlers read results under
	// this name.
	Values    Result
	Request   map[string]any
	Entity    string
	Timestamp time.Time
}

// Normalize converts p into its dispatch form, parsing the timestamp into a
// UTC instant.
func (p Payload) Normalize() (DispatchPayload, error) {
	ts, err := p.Timestamp.Time()
	if err != nil {
		return DispatchPayload{}, schemaErr(p.Version, "timestamp", "%v", err)
	}
	return DispatchPayload{
		Version:        p.Version,
		SubscriptionID: p.SubscriptionID,
		Result:         p.Result,
		Values:         p.Result,
		Request:        p.Request,
		Entity:         p.Entity,
		Timestamp:      ts,
	}, nil
}
