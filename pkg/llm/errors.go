package llm

import "errors"

var (
	// ErrProbeTransport is returned when the health endpoint cannot be reached at all.
	ErrProbeTransport = errors.New("health probe transport failure")

	// ErrNotReady is returned when the readiness bounds are exhausted.
	ErrNotReady = errors.New("inference service not ready")

	ErrServerResponse  = errors.New("server returned error response")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrEmptyEmbedding  = errors.New("no embedding data in response")
)
