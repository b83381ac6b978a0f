package stream

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// EncodingError reports captured bytes that cannot be decoded, or an
// encoding name that is not known.
type EncodingError struct {
	Encoding string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot decode captured output as %s: %v", e.Encoding, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// lookupEncoding resolves a WHATWG encoding label such as "utf-8",
// "windows-1252" or "shift_jis".
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, &EncodingError{Encoding: name, Err: err}
	}
	return enc, nil
}

func decode(enc encoding.Encoding, name string, b []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", &EncodingError{Encoding: name, Err: err}
	}
	return string(out), nil
}
