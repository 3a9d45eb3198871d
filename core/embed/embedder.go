// Package embed provides sentence embedding functions for similarity
// suggestions.
package embed

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/annotator/helper"
)

// EmbedFunc is a function that generates an embedding vector for text.
type EmbedFunc func(text string) ([]float32, error)

// DefaultEmbedderDim is the embedding dimension of the default model.
const DefaultEmbedderDim = 384

// DefaultEmbedder creates an embedder using the all-MiniLM-L6-v2
// sentence transformer, which produces 384-dimensional embeddings.
// The model is downloaded on first use.
func DefaultEmbedder() (EmbedFunc, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}, nil
}
