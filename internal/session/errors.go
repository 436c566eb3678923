package session

import "errors"

var (
	// ErrNoSecret is returned when the store is built without a signing secret.
	ErrNoSecret = errors.New("session: no secret provided")

	// ErrSecretTooShort is returned for secrets shorter than MinSecretLength.
	ErrSecretTooShort = errors.New("session: secret must be at least 32 characters long")

	// ErrInvalidSignature is returned by Unsign for any token it did not produce.
	ErrInvalidSignature = errors.New("session: signature verification failed")

	// ErrDecode is returned for stored records that are not a JSON object.
	ErrDecode = errors.New("session: failed to decode record")

	// ErrSaveSession wraps a failed cache write at commit time.
	ErrSaveSession = errors.New("session: failed to save")

	// ErrDeleteSession wraps a failed cache delete at commit time.
	ErrDeleteSession = errors.New("session: failed to delete")

	// ErrNestedMiddleware is the panic value raised when the session middleware
	// is installed twice on one request chain.
	ErrNestedMiddleware = errors.New("session: middleware installed more than once on the same request")
)
