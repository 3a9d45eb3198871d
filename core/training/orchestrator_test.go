package training

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/siherrmann/annotator/core/classifier"
	"github.com/siherrmann/annotator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPredictor is a fixed-output predictor for orchestrator tests.
type stubPredictor struct {
	Tag string `json:"tag"`
}

func (p *stubPredictor) Predict(text string) ([]model.Prediction, error) {
	return []model.Prediction{{ConceptID: 1, Begin: 0, End: 4, Score: 0.9}}, nil
}

// stubPort is a classifier port with controllable delay and failure.
type stubPort struct {
	delay    time.Duration
	trainErr error
	started  chan struct{}
	release  chan struct{}
}

func (s *stubPort) Train(ctx context.Context, corpus *model.Corpus) (classifier.Predictor, []float64, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.trainErr != nil {
		return nil, nil, s.trainErr
	}
	return &stubPredictor{Tag: "trained"}, []float64{0.7, 0.4, 0.2}, nil
}

func (s *stubPort) Save(predictor classifier.Predictor, dir string) error {
	data, err := json.Marshal(predictor)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "stub.json"), data, 0o644)
}

func (s *stubPort) Load(dir string) (classifier.Predictor, error) {
	data, err := os.ReadFile(filepath.Join(dir, "stub.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: stub artifact missing in %s", model.ErrNotFound, dir)
		}
		return nil, err
	}
	predictor := &stubPredictor{}
	return predictor, json.Unmarshal(data, predictor)
}

func smallCorpus() *model.Corpus {
	return &model.Corpus{Records: []model.CorpusRecord{
		{Text: "Take aspirin", Spans: []model.LabeledSpan{{Begin: 5, End: 12, ConceptID: 1}}},
	}}
}

func TestTrainAndLoad(t *testing.T) {
	orchestrator, err := NewOrchestrator(&stubPort{}, t.TempDir(), nil)
	require.NoError(t, err, "Expected NewOrchestrator to not return an error")
	assert.Equal(t, StateIdle, orchestrator.State())

	info, predictor, err := orchestrator.Train(context.Background(), "first", smallCorpus())
	require.NoError(t, err, "Expected Train to not return an error")
	require.NotNil(t, predictor)
	assert.Equal(t, 1, info.ID)
	assert.Equal(t, "first", info.Name)
	assert.Equal(t, 3, info.Epochs)
	assert.Equal(t, []float64{0.7, 0.4, 0.2}, info.Losses)
	assert.Equal(t, StateSaved, orchestrator.State())

	loadedInfo, loadedPredictor, err := orchestrator.Load("first")
	require.NoError(t, err, "Expected Load to not return an error")
	assert.Equal(t, info.ID, loadedInfo.ID)
	assert.NotNil(t, loadedPredictor)
}

func TestTrainMonotonicIDs(t *testing.T) {
	orchestrator, err := NewOrchestrator(&stubPort{}, t.TempDir(), nil)
	require.NoError(t, err)

	first, _, err := orchestrator.Train(context.Background(), "first", smallCorpus())
	require.NoError(t, err)
	second, _, err := orchestrator.Train(context.Background(), "second", smallCorpus())
	require.NoError(t, err)
	retrained, _, err := orchestrator.Train(context.Background(), "first", smallCorpus())
	require.NoError(t, err)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, 3, retrained.ID, "Expected retraining to mint a new id")
}

func TestTrainConcurrentReturnsBusy(t *testing.T) {
	port := &stubPort{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	orchestrator, err := NewOrchestrator(port, t.TempDir(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, _, firstErr = orchestrator.Train(context.Background(), "first", smallCorpus())
	}()

	<-port.started
	_, _, err = orchestrator.Train(context.Background(), "second", smallCorpus())
	assert.ErrorIs(t, err, model.ErrBusy, "Expected a concurrent training run to be rejected")

	close(port.release)
	wg.Wait()
	require.NoError(t, firstErr, "Expected the first training run to still complete")
	assert.Equal(t, StateSaved, orchestrator.State())
}

func TestTrainFailureLeavesNoModel(t *testing.T) {
	modelsPath := t.TempDir()
	port := &stubPort{trainErr: fmt.Errorf("gradient exploded")}
	orchestrator, err := NewOrchestrator(port, modelsPath, nil)
	require.NoError(t, err)

	_, _, err = orchestrator.Train(context.Background(), "broken", smallCorpus())
	require.ErrorIs(t, err, model.ErrTraining)
	assert.Equal(t, StateFailed, orchestrator.State())

	_, _, err = orchestrator.Load("broken")
	assert.ErrorIs(t, err, model.ErrNotFound, "Expected no loadable model after a failed run")

	_, err = os.Stat(filepath.Join(modelsPath, "broken"))
	assert.True(t, os.IsNotExist(err), "Expected no model directory after a failed run")

	// A failed run must not block the next one.
	port.trainErr = nil
	_, _, err = orchestrator.Train(context.Background(), "fixed", smallCorpus())
	require.NoError(t, err)
	assert.Equal(t, StateSaved, orchestrator.State())
}

func TestLoadUnknownModel(t *testing.T) {
	orchestrator, err := NewOrchestrator(&stubPort{}, t.TempDir(), nil)
	require.NoError(t, err)

	_, _, err = orchestrator.Load("missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLoadIncompleteModel(t *testing.T) {
	modelsPath := t.TempDir()
	orchestrator, err := NewOrchestrator(&stubPort{}, modelsPath, nil)
	require.NoError(t, err)

	// A directory with metadata but no classifier artifact is incomplete.
	modelDir := filepath.Join(modelsPath, "halfway")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	metadata, err := json.Marshal(&model.ModelInfo{ID: 1, Name: "halfway"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "metadata.json"), metadata, 0o644))

	_, _, err = orchestrator.Load("halfway")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTrainInvalidModelName(t *testing.T) {
	orchestrator, err := NewOrchestrator(&stubPort{}, t.TempDir(), nil)
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", ".hidden", "nested/name"} {
		_, _, err := orchestrator.Train(context.Background(), name, smallCorpus())
		assert.ErrorIs(t, err, model.ErrValidation, "Expected %q to be rejected", name)
	}
}

func TestLoadCurrent(t *testing.T) {
	orchestrator, err := NewOrchestrator(&stubPort{}, t.TempDir(), nil)
	require.NoError(t, err)

	_, _, err = orchestrator.LoadCurrent()
	assert.ErrorIs(t, err, model.ErrNotFound, "Expected no current model before training")

	_, _, err = orchestrator.Train(context.Background(), "first", smallCorpus())
	require.NoError(t, err)
	_, _, err = orchestrator.Train(context.Background(), "second", smallCorpus())
	require.NoError(t, err)

	info, predictor, err := orchestrator.LoadCurrent()
	require.NoError(t, err, "Expected LoadCurrent to not return an error")
	assert.Equal(t, "second", info.Name)
	assert.NotNil(t, predictor)
}

func TestListModels(t *testing.T) {
	orchestrator, err := NewOrchestrator(&stubPort{}, t.TempDir(), nil)
	require.NoError(t, err)

	infos, err := orchestrator.ListModels()
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, _, err = orchestrator.Train(context.Background(), "first", smallCorpus())
	require.NoError(t, err)
	_, _, err = orchestrator.Train(context.Background(), "second", smallCorpus())
	require.NoError(t, err)

	infos, err = orchestrator.ListModels()
	require.NoError(t, err, "Expected ListModels to not return an error")
	require.Len(t, infos, 2)
	assert.Equal(t, "first", infos[0].Name)
	assert.Equal(t, "second", infos[1].Name)
}
