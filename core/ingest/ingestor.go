// Package ingest runs a predictor over sentences and stores the
// confident predictions as pending annotations.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/annotator/core/classifier"
	"github.com/siherrmann/annotator/model"
)

// DefaultScoreThreshold is the confidence a prediction must exceed to be stored.
const DefaultScoreThreshold = 0.5

// AnnotationWriter is the store-side dependency of the ingestor. It
// reports whether the prediction was written, reviewed spans are skipped.
type AnnotationWriter interface {
	UpsertPrediction(annotation *model.Annotation) (bool, error)
}

// Ingestor batches model predictions into the annotation store.
type Ingestor struct {
	writer AnnotationWriter
	logger *slog.Logger
}

// NewIngestor creates an ingestor writing through the given store.
func NewIngestor(writer AnnotationWriter, logger *slog.Logger) (*Ingestor, error) {
	if writer == nil {
		return nil, fmt.Errorf("%w: annotation writer must not be nil", model.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{writer: writer, logger: logger}, nil
}

// Run predicts over every sentence and upserts each prediction scoring
// above the threshold as a pending annotation of the given model id. It
// returns the number of stored or refreshed predictions. Each sentence
// is an independent write, cancellation between sentences leaves the
// completed ones in place and the run resumable. Predictions a store
// write rejects are logged and skipped, they never abort the batch.
func (i *Ingestor) Run(ctx context.Context, predictor classifier.Predictor, sentences []*model.Sentence, modelID int, scoreThreshold float64) (int, error) {
	if predictor == nil {
		return 0, fmt.Errorf("%w: predictor must not be nil", model.ErrValidation)
	}

	count := 0
	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return count, fmt.Errorf("ingestion canceled after %d predictions: %w", count, err)
		}

		predictions, err := predictor.Predict(sentence.Text)
		if err != nil {
			return count, fmt.Errorf("failed to predict on sentence %d: %w", sentence.ID, err)
		}

		for _, prediction := range predictions {
			if prediction.Score <= scoreThreshold {
				continue
			}

			annotation := &model.Annotation{
				SentenceID: sentence.ID,
				ConceptID:  prediction.ConceptID,
				Begin:      prediction.Begin,
				End:        prediction.End,
				ModelID:    modelID,
			}
			written, err := i.writer.UpsertPrediction(annotation)
			if err != nil {
				i.logger.Warn(
					"skipping prediction rejected by store",
					slog.Int("sentenceId", sentence.ID),
					slog.Int("conceptId", prediction.ConceptID),
					slog.Int("begin", prediction.Begin),
					slog.Int("end", prediction.End),
					slog.String("error", err.Error()),
				)
				continue
			}
			if written {
				count++
			}
		}
	}

	return count, nil
}
