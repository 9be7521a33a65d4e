package heartbeat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidEncodingLength denotes a base64 string whose unpadded length cannot stem from a
	// valid encoding
	ErrInvalidEncodingLength = errors.New("invalid base64 encoding length")

	// ErrInvalidEncoding denotes a base64 string containing characters outside the standard alphabet
	ErrInvalidEncoding = errors.New("invalid base64 encoding")
)

// DecodeBase64 decodes a standard base64 string, tolerating missing or excess trailing padding
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if len(s)%4 == 1 {
		return nil, fmt.Errorf("%w (unpadded len: %d)", ErrInvalidEncodingLength, len(s))
	}

	data, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, err)
	}

	return data, nil
}
