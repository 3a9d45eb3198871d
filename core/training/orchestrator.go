// Package training owns model training runs: one at a time per project,
// versioned by monotonically increasing ids, persisted atomically.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/siherrmann/annotator/core/classifier"
	"github.com/siherrmann/annotator/model"
)

const (
	corpusArtifactName   = "corpus.json"
	metadataArtifactName = "metadata.json"
	currentPointerName   = "current"
)

// State is the lifecycle of a training run.
type State string

const (
	StateIdle     State = "idle"
	StateBuilding State = "building"
	StateTraining State = "training"
	StateSaved    State = "saved"
	StateFailed   State = "failed"
)

// Orchestrator runs at most one training job at a time and manages the
// model directories below modelsPath. A model directory only ever
// appears fully written: runs assemble their artifacts in a hidden
// temporary directory and rename it into place at the end.
type Orchestrator struct {
	port       classifier.Port
	modelsPath string
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	state   State
}

// NewOrchestrator creates an orchestrator storing models below modelsPath.
func NewOrchestrator(port classifier.Port, modelsPath string, logger *slog.Logger) (*Orchestrator, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: classifier port must not be nil", model.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	err := os.MkdirAll(modelsPath, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Orchestrator{
		port:       port,
		modelsPath: modelsPath,
		logger:     logger,
		state:      StateIdle,
	}, nil
}

// State returns the current lifecycle state of the orchestrator.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Train runs one training job: persist the corpus, train through the
// port, persist the model artifacts and update the current-model
// pointer. A second call while a run is active returns a busy error
// instead of queueing.
func (o *Orchestrator) Train(ctx context.Context, modelName string, corpus *model.Corpus) (*model.ModelInfo, classifier.Predictor, error) {
	if err := validateModelName(modelName); err != nil {
		return nil, nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: a training run is already active", model.ErrBusy)
	}
	o.running = true
	o.state = StateBuilding
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	info, predictor, err := o.run(ctx, modelName, corpus)
	if err != nil {
		o.setState(StateFailed)
		return nil, nil, err
	}

	o.setState(StateSaved)
	return info, predictor, nil
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, modelName string, corpus *model.Corpus) (*model.ModelInfo, classifier.Predictor, error) {
	id, err := o.nextModelID()
	if err != nil {
		return nil, nil, err
	}

	tempDir, err := os.MkdirTemp(o.modelsPath, ".train-*")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create staging directory: %v", model.ErrTraining, err)
	}
	defer os.RemoveAll(tempDir)

	err = writeJSON(filepath.Join(tempDir, corpusArtifactName), corpus)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to persist corpus: %v", model.ErrTraining, err)
	}

	o.setState(StateTraining)
	o.logger.Info("training model", slog.String("model", modelName), slog.Int("id", id))

	predictor, losses, err := o.port.Train(ctx, corpus)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrTraining, err)
	}

	err = o.port.Save(predictor, tempDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to persist model: %v", model.ErrTraining, err)
	}

	info := &model.ModelInfo{
		ID:        id,
		Name:      modelName,
		Epochs:    len(losses),
		Losses:    losses,
		CreatedAt: time.Now().UTC(),
	}
	err = writeJSON(filepath.Join(tempDir, metadataArtifactName), info)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to persist metadata: %v", model.ErrTraining, err)
	}

	modelDir := filepath.Join(o.modelsPath, modelName)
	err = os.RemoveAll(modelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to clear model directory: %v", model.ErrTraining, err)
	}
	err = os.Rename(tempDir, modelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to finalize model directory: %v", model.ErrTraining, err)
	}

	err = os.WriteFile(filepath.Join(o.modelsPath, currentPointerName), []byte(modelName), 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to update current model pointer: %v", model.ErrTraining, err)
	}

	o.logger.Info("model saved", slog.String("model", modelName), slog.Int("id", id), slog.Int("epochs", info.Epochs))
	return info, predictor, nil
}

// Load reads a saved model by name. An absent or incomplete model
// directory is a not found error.
func (o *Orchestrator) Load(modelName string) (*model.ModelInfo, classifier.Predictor, error) {
	if err := validateModelName(modelName); err != nil {
		return nil, nil, err
	}

	info, err := o.readMetadata(modelName)
	if err != nil {
		return nil, nil, err
	}

	predictor, err := o.port.Load(filepath.Join(o.modelsPath, modelName))
	if err != nil {
		return nil, nil, err
	}

	return info, predictor, nil
}

// LoadCurrent loads the model the current pointer names.
func (o *Orchestrator) LoadCurrent() (*model.ModelInfo, classifier.Predictor, error) {
	data, err := os.ReadFile(filepath.Join(o.modelsPath, currentPointerName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: no model has been trained yet", model.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to read current model pointer: %w", err)
	}

	return o.Load(strings.TrimSpace(string(data)))
}

// ListModels returns the metadata of all saved models ordered by id.
func (o *Orchestrator) ListModels() ([]*model.ModelInfo, error) {
	entries, err := os.ReadDir(o.modelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	infos := []*model.ModelInfo{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := o.readMetadata(entry.Name())
		if err != nil {
			// Leftover directories without metadata are not models.
			continue
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

func (o *Orchestrator) readMetadata(modelName string) (*model.ModelInfo, error) {
	data, err := os.ReadFile(filepath.Join(o.modelsPath, modelName, metadataArtifactName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: model %s", model.ErrNotFound, modelName)
		}
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	info := &model.ModelInfo{}
	err = json.Unmarshal(data, info)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal model metadata: %w", err)
	}

	return info, nil
}

// nextModelID returns one more than the highest id found across saved models.
func (o *Orchestrator) nextModelID() (int, error) {
	infos, err := o.ListModels()
	if err != nil {
		return 0, err
	}

	next := 1
	for _, info := range infos {
		if info.ID >= next {
			next = info.ID + 1
		}
	}
	return next, nil
}

func validateModelName(modelName string) error {
	if modelName == "" || modelName != filepath.Base(modelName) || strings.HasPrefix(modelName, ".") || modelName == currentPointerName {
		return fmt.Errorf("%w: invalid model name %q", model.ErrValidation, modelName)
	}
	return nil
}

func writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
