package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// NewID returns a random session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape of an identifier produced by NewID.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Encode serializes a session record.
func Encode(values map[string]any) ([]byte, error) {
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session record: %w", err)
	}
	return data, nil
}

// Decode parses a stored record. Numbers come back as json.Number so integer
// values keep their exact digits. Anything other than a single JSON object
// yields ErrDecode.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: record is not an object", ErrDecode)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after record", ErrDecode)
	}

	return values, nil
}
