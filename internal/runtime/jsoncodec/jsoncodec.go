package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var (
	defaultConfig = sonic.ConfigStd

	// numberConfig keeps numeric literals as json.Number so callers can decide
	// how strictly to interpret them.
	numberConfig = sonic.Config{
		EscapeHTML:       true,
		SortMapKeys:      true,
		CompactMarshaler: true,
		CopyString:       true,
		ValidateString:   true,
		UseNumber:        true,
	}.Froze()
)

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalNumbers decodes data like Unmarshal but leaves every number as a
// json.Number.
func UnmarshalNumbers(data []byte, v any) error {
	return numberConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
