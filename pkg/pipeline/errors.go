package pipeline

import "errors"

var (
	// ErrStartup is returned when the inference service never became ready or
	// the target collection could not be prepared. No document is processed.
	ErrStartup = errors.New("pipeline startup failed")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrBufferRequired is returned when a batch buffer is not provided.
	ErrBufferRequired = errors.New("batch buffer required")
)
