package schema

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/querysub/internal/runtime/jsoncodec"
)

func v3Payload() map[string]any {
	return map[string]any{
		"subscription_id": "1234",
		"request":         map[string]any{"some": "data"},
		"result": map[string]any{
			"data": []any{map[string]any{"hello": 50}},
		},
		"entity":    "metrics_counters",
		"timestamp": "2020-01-01T01:23:45.1234",
	}
}

func encode(t *testing.T, version int, payload map[string]any) []byte {
	t.Helper()
	raw, err := jsoncodec.Marshal(map[string]any{"version": version, "payload": payload})
	require.NoError(t, err)
	return raw
}

func TestParseV3(t *testing.T) {
	p, err := Parse(encode(t, 3, v3Payload()))
	require.NoError(t, err)

	assert.Equal(t, 3, p.Version)
	assert.Equal(t, "1234", p.SubscriptionID)
	assert.Equal(t, "metrics_counters", p.Entity)
	assert.Equal(t, []Row{{"hello": 50}}, p.Result.Data)
	assert.Equal(t, map[string]any{"some": "data"}, p.Request)
	assert.Equal(t, "2020-01-01T01:23:45.1234", p.Timestamp.String())
}

func TestParseV2WithoutEntity(t *testing.T) {
	payload := v3Payload()
	delete(payload, "entity")

	p, err := Parse(encode(t, 2, payload))
	require.NoError(t, err)
	assert.Empty(t, p.Entity)
	assert.Equal(t, "1234", p.SubscriptionID)
}

func TestParseV1ExposesValuesAsResult(t *testing.T) {
	raw := []byte(`{"version":1,"payload":{"subscription_id":"abc","values":{"data":[{"count":3}]},"timestamp":1577841825}}`)

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"count": 3}}, p.Result.Data)
	assert.Nil(t, p.Request)

	ts, err := p.Timestamp.Time()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 1, 23, 45, 0, time.UTC), ts)
}

func TestParseAcceptsNaN(t *testing.T) {
	raw := []byte(`{"version":3,"payload":{"subscription_id":"1234","request":{},` +
		`"result":{"data":[{"a":NaN,"b":Infinity,"c":-Infinity}]},"entity":"events","timestamp":"2020-01-01T00:00:00Z"}}`)

	p, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, p.Result.Data, 1)

	row := p.Result.Data[0]
	assert.True(t, math.IsNaN(row["a"]))
	assert.True(t, math.IsInf(row["b"], 1))
	assert.True(t, math.IsInf(row["c"], -1))
}

func TestParseRejectsQuotedNaN(t *testing.T) {
	for _, leaf := range []string{`"NaN"`, `"\u0000NaN"`, `"Infinity"`} {
		raw := []byte(`{"version":3,"payload":{"subscription_id":"1234","request":{},` +
			`"result":{"data":[{"a":` + leaf + `}]},"entity":"events","timestamp":"2020-01-01T00:00:00Z"}}`)

		_, err := Parse(raw)
		var schemaErr *InvalidSchemaError
		require.ErrorAs(t, err, &schemaErr, leaf)
		assert.Equal(t, "result.data[0].a", schemaErr.Field)
	}
}

func TestParseKeepsNulPrefixedStrings(t *testing.T) {
	raw := []byte(`{"version":3,"payload":{"subscription_id":"\u0000id","request":{"q":"\u0000NaN","n":NaN},` +
		`"result":{"data":[]},"entity":"events","timestamp":"\u0000Infinity"}}`)

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "\x00id", p.SubscriptionID)
	assert.Equal(t, "\x00NaN", p.Request["q"])
	assert.True(t, math.IsNaN(p.Request["n"].(float64)))
	assert.Equal(t, "\x00Infinity", p.Timestamp.String())
}

func TestParseRejectsNonFiniteTimestamp(t *testing.T) {
	raw := []byte(`{"version":3,"payload":{"subscription_id":"1234","request":{},` +
		`"result":{"data":[]},"entity":"events","timestamp":NaN}}`)

	_, err := Parse(raw)
	var schemaErr *InvalidSchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "timestamp", schemaErr.Field)
}

func TestParseInvalidPayloads(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{name: "missing subscription_id", mutate: func(p map[string]any) { delete(p, "subscription_id") }, field: "subscription_id"},
		{name: "missing result", mutate: func(p map[string]any) { delete(p, "result") }, field: "result"},
		{name: "missing timestamp", mutate: func(p map[string]any) { delete(p, "timestamp") }, field: "timestamp"},
		{name: "missing entity", mutate: func(p map[string]any) { delete(p, "entity") }, field: "entity"},
		{name: "missing request", mutate: func(p map[string]any) { delete(p, "request") }, field: "request"},
		{name: "empty subscription_id", mutate: func(p map[string]any) { p["subscription_id"] = "" }, field: "subscription_id"},
		{name: "empty result", mutate: func(p map[string]any) { p["result"] = map[string]any{} }, field: "result.data"},
		{name: "result without data", mutate: func(p map[string]any) { p["result"] = map[string]any{"hello": "hi"} }, field: "result.data"},
		{name: "non numeric leaf", mutate: func(p map[string]any) {
			p["result"] = map[string]any{"data": []any{map[string]any{"x": "y"}}}
		}, field: "result.data[0].x"},
		{name: "negative timestamp", mutate: func(p map[string]any) { p["timestamp"] = -1 }, field: "timestamp"},
		{name: "numeric entity", mutate: func(p map[string]any) { p["entity"] = -1 }, field: "entity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := v3Payload()
			tt.mutate(payload)

			_, err := Parse(encode(t, 3, payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchema)

			var schemaErr *InvalidSchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.field, schemaErr.Field)
			assert.Equal(t, 3, schemaErr.Version)
		})
	}
}

func TestParseInvalidWrappers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty object", raw: `{}`},
		{name: "version only", raw: `{"version": 1}`},
		{name: "payload only", raw: `{"payload": {"subscription_id": "1234"}}`},
		{name: "not json", raw: `not json`},
		{name: "array", raw: `[1, 2]`},
		{name: "null", raw: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMessage)
			assert.False(t, errors.Is(err, ErrInvalidSchema))
		})
	}
}

func TestParseUnknownVersion(t *testing.T) {
	_, err := Parse(encode(t, 50, v3Payload()))

	var msgErr *InvalidMessageError
	require.ErrorAs(t, err, &msgErr)
	assert.Equal(t, "Version specified in wrapper has no schema", msgErr.Error())
}

func TestValidateRejectsUnknownVersion(t *testing.T) {
	_, err := Validate(Envelope{Version: 0, Payload: v3Payload()})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestVersions(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Versions())
}

func TestNormalize(t *testing.T) {
	p, err := Parse(encode(t, 3, v3Payload()))
	require.NoError(t, err)

	d, err := p.Normalize()
	require.NoError(t, err)
	assert.Equal(t, p.Result, d.Result)
	assert.Equal(t, d.Result, d.Values)
	assert.Equal(t, time.Date(2020, 1, 1, 1, 23, 45, 123400000, time.UTC), d.Timestamp)
	assert.Equal(t, time.UTC, d.Timestamp.Location())
}

func TestNormalizeBadTimestamp(t *testing.T) {
	payload := v3Payload()
	payload["timestamp"] = "yesterday"

	p, err := Parse(encode(t, 3, payload))
	require.NoError(t, err)

	_, err = p.Normalize()
	var schemaErr *InvalidSchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "timestamp", schemaErr.Field)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2020-01-01T01:23:45.1234", want: time.Date(2020, 1, 1, 1, 23, 45, 123400000, time.UTC)},
		{in: "2020-01-01T01:23:45Z", want: time.Date(2020, 1, 1, 1, 23, 45, 0, time.UTC)},
		{in: "2020-01-01T03:23:45+02:00", want: time.Date(2020, 1, 1, 1, 23, 45, 0, time.UTC)},
		{in: "2020-01-01T03:23:45+0200", want: time.Date(2020, 1, 1, 1, 23, 45, 0, time.UTC)},
		{in: "2020-01-01 01:23:45", want: time.Date(2020, 1, 1, 1, 23, 45, 0, time.UTC)},
		{in: "2020-01-01", want: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("01/02/2020")
	assert.Error(t, err)
}

func TestUnixTimestampFraction(t *testing.T) {
	got, err := UnixTimestamp(1.5).Time()
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1, 500000000).UTC(), got)
	assert.Equal(t, "1.5", UnixTimestamp(1.5).String())
}
