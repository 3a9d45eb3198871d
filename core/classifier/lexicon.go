package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/siherrmann/annotator/model"
)

const lexiconArtifactName = "lexicon.json"

var wordPattern = regexp.MustCompile(`\w+`)

// Lexicon is a logistic surface-form classifier. It learns one weight per
// (surface form, concept) pair by stochastic gradient descent over the
// corpus: labeled spans are positive examples for their concept, tokens
// outside any label are negative examples for every known concept. It is
// deliberately simple, the Port interface is where heavier models plug in.
type Lexicon struct {
	Epochs       int
	LearningRate float64
}

// NewLexicon creates a lexicon port with the default training schedule.
func NewLexicon() *Lexicon {
	return &Lexicon{
		Epochs:       20,
		LearningRate: 0.5,
	}
}

// lexiconModel is the trained predictor and the persisted artifact shape.
type lexiconModel struct {
	// Weights maps a lowercased surface form to per-concept logits.
	Weights map[string]map[int]float64 `json:"weights"`
	// MaxTokens is the longest labeled surface seen in training, in tokens.
	MaxTokens int `json:"max_tokens"`
}

type example struct {
	surface   string
	conceptID int
	target    float64
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Train fits surface-form weights over the corpus and returns the trained
// predictor with the per-epoch mean cross-entropy losses.
func (l *Lexicon) Train(ctx context.Context, corpus *model.Corpus) (Predictor, []float64, error) {
	if corpus == nil || len(corpus.Records) == 0 {
		return nil, nil, fmt.Errorf("%w: corpus must contain at least one record", model.ErrValidation)
	}

	examples, maxTokens := collectExamples(corpus)
	if len(examples) == 0 {
		return nil, nil, fmt.Errorf("%w: corpus contains no labeled spans", model.ErrValidation)
	}

	trained := &lexiconModel{
		Weights:   map[string]map[int]float64{},
		MaxTokens: maxTokens,
	}

	losses := make([]float64, 0, l.Epochs)
	for epoch := 0; epoch < l.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("training canceled after %d epochs: %w", epoch, err)
		}

		loss := 0.0
		for _, ex := range examples {
			weights, ok := trained.Weights[ex.surface]
			if !ok {
				weights = map[int]float64{}
				trained.Weights[ex.surface] = weights
			}

			predicted := sigmoid(weights[ex.conceptID])
			weights[ex.conceptID] += l.LearningRate * (ex.target - predicted)
			loss += crossEntropy(ex.target, predicted)
		}
		losses = append(losses, loss/float64(len(examples)))
	}

	return trained, losses, nil
}

func crossEntropy(target, predicted float64) float64 {
	const eps = 1e-12
	return -(target*math.Log(predicted+eps) + (1-target)*math.Log(1-predicted+eps))
}

// collectExamples turns corpus records into training examples. Each
// labeled span yields a positive example for its concept; each token not
// covered by any label yields a negative example for every concept seen
// in the corpus.
func collectExamples(corpus *model.Corpus) ([]example, int) {
	conceptIDs := map[int]bool{}
	for _, record := range corpus.Records {
		for _, span := range record.Spans {
			conceptIDs[span.ConceptID] = true
		}
	}
	ordered := make([]int, 0, len(conceptIDs))
	for id := range conceptIDs {
		ordered = append(ordered, id)
	}
	sort.Ints(ordered)

	examples := []example{}
	maxTokens := 1
	for _, record := range corpus.Records {
		for _, span := range record.Spans {
			surface := strings.ToLower(record.Text[span.Begin:span.End])
			if n := len(wordPattern.FindAllString(surface, -1)); n > maxTokens {
				maxTokens = n
			}
			examples = append(examples, example{surface: surface, conceptID: span.ConceptID, target: 1})
		}

		for _, token := range wordPattern.FindAllStringIndex(record.Text, -1) {
			if coveredByAny(record.Spans, token[0], token[1]) {
				continue
			}
			surface := strings.ToLower(record.Text[token[0]:token[1]])
			for _, conceptID := range ordered {
				examples = append(examples, example{surface: surface, conceptID: conceptID, target: 0})
			}
		}
	}

	return examples, maxTokens
}

func coveredByAny(spans []model.LabeledSpan, begin, end int) bool {
	for _, span := range spans {
		if begin < span.End && end > span.Begin {
			return true
		}
	}
	return false
}

// Predict slides token windows up to the longest trained surface over the
// text and scores every known surface form. Emitted spans follow token
// boundaries by construction.
func (m *lexiconModel) Predict(text string) ([]model.Prediction, error) {
	tokens := wordPattern.FindAllStringIndex(text, -1)

	predictions := []model.Prediction{}
	for i := range tokens {
		for j := i; j < len(tokens) && j-i < m.MaxTokens; j++ {
			begin, end := tokens[i][0], tokens[j][1]
			surface := strings.ToLower(text[begin:end])

			weights, ok := m.Weights[surface]
			if !ok {
				continue
			}

			bestConcept, bestScore := 0, 0.0
			for conceptID, weight := range weights {
				if score := sigmoid(weight); score > bestScore {
					bestConcept, bestScore = conceptID, score
				}
			}
			if bestConcept == 0 {
				continue
			}

			predictions = append(predictions, model.Prediction{
				ConceptID: bestConcept,
				Begin:     begin,
				End:       end,
				Score:     bestScore,
			})
		}
	}

	return predictions, nil
}

// Save writes the predictor artifact into dir.
func (l *Lexicon) Save(predictor Predictor, dir string) error {
	trained, ok := predictor.(*lexiconModel)
	if !ok {
		return fmt.Errorf("%w: predictor is not a lexicon model", model.ErrValidation)
	}

	data, err := json.MarshalIndent(trained, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lexicon model: %w", err)
	}

	err = os.WriteFile(filepath.Join(dir, lexiconArtifactName), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write lexicon artifact: %w", err)
	}

	return nil
}

// Load reads a predictor artifact from dir.
func (l *Lexicon) Load(dir string) (Predictor, error) {
	data, err := os.ReadFile(filepath.Join(dir, lexiconArtifactName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: lexicon artifact missing in %s", model.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read lexicon artifact: %w", err)
	}

	trained := &lexiconModel{}
	err = json.Unmarshal(data, trained)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lexicon artifact: %w", err)
	}
	if trained.Weights == nil || trained.MaxTokens < 1 {
		return nil, fmt.Errorf("%w: lexicon artifact in %s is incomplete", model.ErrNotFound, dir)
	}

	return trained, nil
}
