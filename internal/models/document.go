package models

import "github.com/google/uuid"

type Metadata struct {
	Source      string `json:"source"`
	ContentType string `json:"content_type"`
	Language    string `json:"language"`
}

// Payload returns the metadata as the scalar map stored alongside a vector.
func (m Metadata) Payload() map[string]any {
	return map[string]any{
		"source":       m.Source,
		"content_type": m.ContentType,
		"language":     m.Language,
	}
}

type Document struct {
	Content   string    `json:"page_content"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embeddings"`
}

type OutcomeKind int

const (
	NotEmbedded OutcomeKind = iota
	Embedded
)

func (k OutcomeKind) String() string {
	if k == Embedded {
		return "embedded"
	}
	return "not_embedded"
}

// Outcome is the result of one embedding request as it travels from the
// producer to the consumer. Err is only set for NotEmbedded outcomes.
type Outcome struct {
	Kind     OutcomeKind
	Document Document
	Err      error
}

// Point is a storage-ready vector. IDs are generated client side so a
// re-sent point overwrites instead of duplicating.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func NewPoint(doc Document) Point {
	return Point{
		ID:      uuid.NewString(),
		Vector:  doc.Embedding,
		Payload: doc.Metadata.Payload(),
	}
}
