package jsoncodec

import (
	"bytes"
	"math"
)

// Producers that serialise floats with Python-style encoders emit the bare
// tokens NaN, Infinity and -Infinity, which strict JSON parsers reject.
// ReplaceNonFinite rewrites those tokens into reserved string sentinels and
// RestoreNonFinite turns the decoded sentinels into NonFiniteFloat values.
//
// Every sentinel starts with a NUL. A string from the input that already
// starts with one gets a second NUL prepended, which RestoreNonFinite strips
// again, so input text never decodes as a sentinel.
const (
	SentinelNaN         = "\x00NaN"
	SentinelPosInfinity = "\x00Infinity"
	SentinelNegInfinity = "\x00-Infinity"
)

// NonFiniteFloat is a NaN or infinite number read from a bare token.
type NonFiniteFloat float64

var (
	escapedNUL = []byte(`\u0000`)
	nanToken   = []byte("NaN")
	infToken   = []byte("Infinity")
)

var nonFiniteTokens = []struct {
	token    []byte
	sentinel []byte
}{
	{token: []byte("-Infinity"), sentinel: []byte(`"\u0000-Infinity"`)},
	{token: []byte("Infinity"), sentinel: []byte(`"\u0000Infinity"`)},
	{token: []byte("NaN"), sentinel: []byte(`"\u0000NaN"`)},
}

// ReplaceNonFinite returns data with every non-finite literal outside of
// string values replaced by its sentinel. The input is returned unchanged
// when it holds no such literal.
func ReplaceNonFinite(data []byte) []byte {
	if !bytes.Contains(data, nanToken) && !bytes.Contains(data, infToken) &&
		!bytes.Contains(data, escapedNUL) && bytes.IndexByte(data, 0) < 0 {
		return data
	}

	out := make([]byte, 0, len(data)+16)
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			if rest := data[i+1:]; bytes.HasPrefix(rest, escapedNUL) || (len(rest) > 0 && rest[0] == 0) {
				out = append(out, escapedNUL...)
			}
			continue
		}

		if sentinel, n := matchNonFinite(data[i:]); n > 0 {
			out = append(out, sentinel...)
			i += n - 1
			continue
		}
		out = append(out, c)
	}

	return out
}

func matchNonFinite(rest []byte) ([]byte, int) {
	for _, candidate := range nonFiniteTokens {
		if !bytes.HasPrefix(rest, candidate.token) {
			continue
		}
		n := len(candidate.token)
		if n < len(rest) && isIdentByte(rest[n]) {
			return nil, 0
		}
		return candidate.sentinel, n
	}
	return nil, 0
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// NonFinite reports the float64 value behind a sentinel string.
func NonFinite(s string) (float64, bool) {
	switch s {
	case SentinelNaN:
		return math.NaN(), true
	case SentinelPosInfinity:
		return math.Inf(1), true
	case SentinelNegInfinity:
		return math.Inf(-1), true
	}
	return 0, false
}

// RestoreNonFinite walks a value decoded from ReplaceNonFinite output. It
// replaces sentinel strings with NonFiniteFloat and drops the NUL that
// ReplaceNonFinite prepended to other strings and object keys. Maps and
// slices are rewritten in place.
func RestoreNonFinite(v any) any {
	switch t := v.(type) {
	case map[string]any:
		var renamed map[string]any
		for k, e := range t {
			e = RestoreNonFinite(e)
			if key := unescapeString(k); key != k {
				if renamed == nil {
					renamed = make(map[string]any)
				}
				renamed[key] = e
				delete(t, k)
				continue
			}
			t[k] = e
		}
		for k, e := range renamed {
			t[k] = e
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = RestoreNonFinite(e)
		}
		return t
	case string:
		if f, ok := NonFinite(t); ok {
			return NonFiniteFloat(f)
		}
		return unescapeString(t)
	default:
		return v
	}
}

func unescapeString(s string) string {
	if len(s) > 0 && s[0] == 0 {
		return s[1:]
	}
	return s
}
