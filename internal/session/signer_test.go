package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "test-secret-0123456789-abcdefghijklmnop"
	oldTestSecret = "old-secret-0123456789-abcdefghijklmnopq"
)

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		wantErr error
	}{
		{name: "no secrets", secrets: nil, wantErr: ErrNoSecret},
		{name: "short secret", secrets: []string{"short"}, wantErr: ErrSecretTooShort},
		{name: "short previous secret", secrets: []string{testSecret, "short"}, wantErr: ErrSecretTooShort},
		{name: "valid", secrets: []string{testSecret}},
		{name: "valid with rotation", secrets: []string{testSecret, oldTestSecret}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewSigner(tt.secrets)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, signer)
				return
			}
			require.NoError(t, err)
			assert.Len(t, signer.keys, len(tt.secrets))
		})
	}
}

func TestSignerRoundTrip(t *testing.T) {
	signer, err := NewSigner([]string{testSecret})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		id := NewID()
		token := signer.Sign(id)
		assert.True(t, strings.HasPrefix(token, id+"."))

		got, err := signer.Unsign(token)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestSignerRejectsTampering(t *testing.T) {
	signer, err := NewSigner([]string{testSecret})
	require.NoError(t, err)

	id := NewID()
	token := signer.Sign(id)
	sig := token[len(id)+1:]

	other, err := NewSigner([]string{oldTestSecret})
	require.NoError(t, err)

	flipped := []byte(sig)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}

	first := byte('a')
	if id[0] == 'a' {
		first = 'b'
	}

	tests := map[string]string{
		"empty":               "",
		"bare id":             id,
		"trailing dot":        id + ".",
		"leading dot":         "." + sig,
		"other id same sig":   NewID() + "." + sig,
		"flipped signature":   id + "." + string(flipped),
		"truncated signature": id + "." + sig[:len(sig)-2],
		"invalid base64":      id + ".!!!!",
		"foreign secret":      other.Sign(id),
		"id modified":         string(first) + token[1:],
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := signer.Unsign(token)
			assert.ErrorIs(t, err, ErrInvalidSignature)
			assert.Empty(t, got)
		})
	}
}

func TestSignerRotation(t *testing.T) {
	oldSigner, err := NewSigner([]string{oldTestSecret})
	require.NoError(t, err)
	rotated, err := NewSigner([]string{testSecret, oldTestSecret})
	require.NoError(t, err)

	id := NewID()

	// Cookies signed before the rotation still verify
	got, err := rotated.Unsign(oldSigner.Sign(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// New cookies are signed with the first secret only
	_, err = oldSigner.Unsign(rotated.Sign(id))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignerUsesSalt(t *testing.T) {
	assert.NotEqual(t, []byte(testSecret), deriveKey(testSecret))
	assert.Len(t, deriveKey(testSecret), 32)
}
