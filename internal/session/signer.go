package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// MinSecretLength is the shortest secret NewSigner accepts.
const MinSecretLength = 32

// signerSalt separates cookie signatures from any other HMAC made with the same secret.
const signerSalt = "cookie-session"

// Signer signs session IDs for the cookie and verifies them on the way back.
// The first secret signs; every secret verifies, so old secrets can be rotated out gradually.
type Signer struct {
	keys [][]byte
}

// NewSigner derives one signing key per secret.
func NewSigner(secrets []string) (*Signer, error) {
	if len(secrets) == 0 {
		return nil, ErrNoSecret
	}

	keys := make([][]byte, 0, len(secrets))
	for _, secret := range secrets {
		if len(secret) < MinSecretLength {
			return nil, ErrSecretTooShort
		}
		keys = append(keys, deriveKey(secret))
	}

	return &Signer{keys: keys}, nil
}

func deriveKey(secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signerSalt))
	return mac.Sum(nil)
}

func signature(key []byte, value string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// Sign returns value + "." + base64url(HMAC-SHA256(value)).
func (s *Signer) Sign(value string) string {
	return value + "." + base64.RawURLEncoding.EncodeToString(signature(s.keys[0], value))
}

// Unsign returns the value carried by token, or ErrInvalidSignature.
func (s *Signer) Unsign(token string) (string, error) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", ErrInvalidSignature
	}

	value := token[:i]
	sig, err := base64.RawURLEncoding.DecodeString(token[i+1:])
	if err != nil {
		return "", ErrInvalidSignature
	}

	for _, key := range s.keys {
		if hmac.Equal(sig, signature(key, value)) {
			return value, nil
		}
	}
	return "", ErrInvalidSignature
}
