package model

import (
	"time"

	"github.com/google/uuid"
)

// Concept is a labeled category that can be attached to a span of text.
// Names are not required to be unique; the id is the label key everywhere,
// so renaming a concept never relabels historical data.
type Concept struct {
	ID        int       `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}
