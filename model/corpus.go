package model

import "time"

// LabeledSpan is a token-aligned training label inside a corpus record.
// The label is the concept id, never the concept name.
type LabeledSpan struct {
	Begin     int `json:"begin"`
	End       int `json:"end"`
	ConceptID int `json:"concept_id"`
}

// CorpusRecord is one sentence with its accepted, realigned labels.
// A record with no spans is a negative example and is kept on purpose.
type CorpusRecord struct {
	Text  string        `json:"text"`
	Spans []LabeledSpan `json:"spans"`
}

// Corpus is the training input handed to a classifier: one record per
// sentence, in sentence order.
type Corpus struct {
	Records []CorpusRecord `json:"records"`
}

// Prediction is a single model output span with its confidence score.
type Prediction struct {
	ConceptID int     `json:"concept_id"`
	Begin     int     `json:"begin"`
	End       int     `json:"end"`
	Score     float64 `json:"score"`
}

// ModelInfo is the persisted metadata of one training run.
type ModelInfo struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Epochs    int       `json:"epochs"`
	Losses    []float64 `json:"losses"`
	CreatedAt time.Time `json:"created_at"`
}
