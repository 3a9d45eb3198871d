package model

import (
	"time"

	"github.com/google/uuid"
)

// Origin marks whether an annotation was created by a human or a model.
type Origin string

const (
	OriginManual    Origin = "manual"
	OriginPredicted Origin = "predicted"
)

// Predicted returns the boolean form stored in the database.
func (o Origin) Predicted() bool {
	return o == OriginPredicted
}

// OriginFromPredicted converts the stored boolean back to an Origin.
func OriginFromPredicted(predicted bool) Origin {
	if predicted {
		return OriginPredicted
	}
	return OriginManual
}

// ReviewStatus is the human judgment on an annotation.
// The integer values are the persisted representation.
type ReviewStatus int

const (
	ReviewStatusRejected ReviewStatus = 0
	ReviewStatusAccepted ReviewStatus = 1
	ReviewStatusPending  ReviewStatus = 2
)

// Valid reports whether s is one of the three known statuses.
func (s ReviewStatus) Valid() bool {
	return s == ReviewStatusRejected || s == ReviewStatusAccepted || s == ReviewStatusPending
}

func (s ReviewStatus) String() string {
	switch s {
	case ReviewStatusRejected:
		return "rejected"
	case ReviewStatusAccepted:
		return "accepted"
	case ReviewStatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Annotation attaches a concept to a character span of a sentence.
// (SentenceID, ConceptID, Begin, End) is the natural identity key:
// writing the same four fields twice updates the existing row.
type Annotation struct {
	ID           int          `json:"id"`
	RID          uuid.UUID    `json:"rid"`
	SentenceID   int          `json:"sentence_id"`
	ConceptID    int          `json:"concept_id"`
	Begin        int          `json:"begin"`
	End          int          `json:"end"`
	Origin       Origin       `json:"origin"`
	ModelID      int          `json:"model_id"` // 0 for manual annotations
	ReviewStatus ReviewStatus `json:"review_status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// AcceptedAnnotation is one row of the accepted-only export.
type AcceptedAnnotation struct {
	SentenceID   int    `json:"sentence_id"`
	SentenceText string `json:"sentence"`
	Concept      string `json:"concept"`
	Begin        int    `json:"begin"`
	End          int    `json:"end"`
}
