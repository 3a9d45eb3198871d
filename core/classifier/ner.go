package classifier

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/annotator/helper"
	"github.com/siherrmann/annotator/model"
)

// PretrainedNER wraps a pretrained token classification model to
// bootstrap pending annotations before any project model exists.
// It maps the model's entity labels to project concept ids and is a
// Predictor only, it cannot be trained.
type PretrainedNER struct {
	session         *hugot.Session
	pipeline        *pipelines.TokenClassificationPipeline
	conceptsByLabel map[string]int
}

// NewPretrainedNER downloads the model if needed and creates the
// inference pipeline. conceptsByLabel maps entity labels (without BIO
// prefixes, e.g. "PER", "LOC") to concept ids; unmapped labels are
// dropped on predict.
func NewPretrainedNER(modelName string, conceptsByLabel map[string]int) (*PretrainedNER, error) {
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "preannotation-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return &PretrainedNER{
		session:         session,
		pipeline:        nerPipeline,
		conceptsByLabel: conceptsByLabel,
	}, nil
}

// Predict runs the NER pipeline over the text and converts recognized
// entities with mapped labels into predictions.
func (p *PretrainedNER) Predict(text string) ([]model.Prediction, error) {
	result, err := p.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}

	if len(result.Entities) == 0 {
		return nil, nil
	}

	predictions := []model.Prediction{}
	for _, entity := range result.Entities[0] {
		conceptID, ok := p.conceptsByLabel[normalizeLabel(entity.Entity)]
		if !ok {
			continue
		}

		predictions = append(predictions, model.Prediction{
			ConceptID: conceptID,
			Begin:     int(entity.Start),
			End:       int(entity.End),
			Score:     float64(entity.Score),
		})
	}

	return predictions, nil
}

// Close destroys the underlying inference session.
func (p *PretrainedNER) Close() error {
	return p.session.Destroy()
}

// normalizeLabel removes BIO tagging prefixes (B- for beginning, I- for inside).
func normalizeLabel(label string) string {
	if strings.HasPrefix(label, "B-") {
		return label[2:]
	}
	if strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
