package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		assert.True(t, ValidID(id))
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestValidID(t *testing.T) {
	tests := map[string]bool{
		NewID():                                  true,
		"":                                       false,
		"not-a-uuid":                             false,
		"urn:uuid:" + NewID():                    false,
		"{" + NewID() + "}":                      false,
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8":   true,
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8xx": false,
	}
	for id, want := range tests {
		assert.Equal(t, want, ValidID(id), id)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	records := []map[string]any{
		{},
		{"role": "student"},
		{
			KeyFresh:     true,
			KeyUserID:    "42",
			"count":      json.Number("7"),
			"big":        json.Number("9007199254740993"),
			"ratio":      json.Number("0.25"),
			"enabled":    false,
			"nothing":    nil,
			"nested":     map[string]any{"a": "b", "n": json.Number("1")},
			"list":       []any{"x", json.Number("2"), true},
			KeyLoginTime: "2026-10-15T08:00:00Z",
		},
	}

	for _, record := range records {
		data, err := Encode(record)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, record, got)
	}
}

func TestEncodeNil(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestEncodeUnsupported(t *testing.T) {
	_, err := Encode(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeRejects(t *testing.T) {
	inputs := map[string]string{
		"empty":         "",
		"garbage":       "\x00\x01\x02",
		"truncated":     `{"a": 1`,
		"array":         `[1, 2]`,
		"string":        `"session"`,
		"number":        `42`,
		"null":          `null`,
		"trailing data": `{"a": 1} {"b": 2}`,
		"trailing junk": `{"a": 1}x`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			values, err := Decode([]byte(input))
			assert.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, values)
		})
	}
}

func TestDecodeAllowsTrailingWhitespace(t *testing.T) {
	values, err := Decode([]byte("{\"a\": \"b\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, "b", values["a"])
}
