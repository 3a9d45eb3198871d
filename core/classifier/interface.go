// Package classifier defines the pluggable span classification capability
// and ships two implementations: a trainable surface-form model and a
// pretrained NER wrapper for bootstrapping.
package classifier

import (
	"context"

	"github.com/siherrmann/annotator/model"
)

// Predictor scores concept spans in raw text.
type Predictor interface {
	Predict(text string) ([]model.Prediction, error)
}

// Port is the trainable side of the classification capability. Train
// returns the trained predictor together with the per-epoch losses.
// Save and Load move a predictor to and from an artifact directory.
type Port interface {
	Train(ctx context.Context, corpus *model.Corpus) (Predictor, []float64, error)
	Save(predictor Predictor, dir string) error
	Load(dir string) (Predictor, error)
}
