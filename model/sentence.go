package model

import (
	"time"

	"github.com/google/uuid"
)

// Sentence represents a unit of raw text to be annotated.
// The text is immutable once created; deleting a sentence cascades
// to its attributes and annotations.
type Sentence struct {
	ID        int         `json:"id"`
	RID       uuid.UUID   `json:"rid"`
	Text      string      `json:"text"`
	Embedding []float32   `json:"embedding,omitempty"`
	Attrs     []Attribute `json:"attrs,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	// Results
	Similarity float64 `json:"similarity,omitempty"`
}

// Attribute is a name/value pair attached to a sentence (e.g. source file, line).
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
