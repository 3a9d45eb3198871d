package annotator

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/siherrmann/annotator/core/align"
	"github.com/siherrmann/annotator/core/classifier"
	"github.com/siherrmann/annotator/core/corpus"
	"github.com/siherrmann/annotator/core/embed"
	"github.com/siherrmann/annotator/core/ingest"
	"github.com/siherrmann/annotator/core/training"
	"github.com/siherrmann/annotator/database"
	"github.com/siherrmann/annotator/helper"
	"github.com/siherrmann/annotator/model"
	loadSql "github.com/siherrmann/annotator/sql"
)

// Annotator is the per-project context. It owns the database handlers,
// the corpus builder, the training orchestrator and the model directory
// of one annotation project.
type Annotator struct {
	DB          *helper.Database
	Sentences   *database.SentencesDBHandler
	Concepts    *database.ConceptsDBHandler
	Annotations *database.AnnotationsDBHandler
	Builder     *corpus.Builder
	Trainer     *training.Orchestrator
	Ingestor    *ingest.Ingestor
	Embedder    embed.EmbedFunc // Optional, powers similarity suggestions
	// Logging
	log *slog.Logger

	currentModel     *model.ModelInfo
	currentPredictor classifier.Predictor
}

// NewAnnotator creates a new Annotator instance with all handlers
// initialized. Model artifacts are stored below projectPath.
func NewAnnotator(config *helper.DatabaseConfiguration, projectPath string, embeddingDim int) (*Annotator, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("annotator", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (annotations reference
	// sentences and concepts). force=false to not reload if functions
	// already exist.
	sentences, err := database.NewSentencesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create sentences handler", err)
	}

	concepts, err := database.NewConceptsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create concepts handler", err)
	}

	annotations, err := database.NewAnnotationsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create annotations handler", err)
	}

	trainer, err := training.NewOrchestrator(classifier.NewLexicon(), filepath.Join(projectPath, "models"), logger)
	if err != nil {
		return nil, helper.NewError("create training orchestrator", err)
	}

	ingestor, err := ingest.NewIngestor(annotations, logger)
	if err != nil {
		return nil, helper.NewError("create prediction ingestor", err)
	}

	return &Annotator{
		DB:          db,
		Sentences:   sentences,
		Concepts:    concepts,
		Annotations: annotations,
		Builder:     corpus.NewBuilder(logger),
		Trainer:     trainer,
		Ingestor:    ingestor,
		log:         logger,
	}, nil
}

// Close closes the database connection
func (a *Annotator) Close() error {
	if a.DB != nil && a.DB.Instance != nil {
		return a.DB.Instance.Close()
	}
	return nil
}

// SetEmbedder sets the embedding function used for similarity suggestions
// and for embedding new sentences on insert.
func (a *Annotator) SetEmbedder(embedder embed.EmbedFunc) {
	a.Embedder = embedder
}

// UseDefaultEmbedder sets up the default all-MiniLM-L6-v2 embedder
// (384 dimensions). The embedding dimension passed to NewAnnotator must
// match embed.DefaultEmbedderDim.
func (a *Annotator) UseDefaultEmbedder() error {
	embedder, err := embed.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	a.Embedder = embedder
	return nil
}

// AddSentence stores a sentence with its attributes. When an embedder is
// configured the sentence is embedded on insert.
func (a *Annotator) AddSentence(text string, attrs []model.Attribute) (*model.Sentence, error) {
	sentence := &model.Sentence{Text: text, Attrs: attrs}

	if a.Embedder != nil {
		embedding, err := a.Embedder(text)
		if err != nil {
			return nil, helper.NewError("embed sentence", err)
		}
		sentence.Embedding = embedding
	}

	err := a.Sentences.InsertSentence(sentence)
	if err != nil {
		return nil, err
	}

	a.log.Info("Inserted sentence", slog.String("sentence_id", sentence.RID.String()))
	return sentence, nil
}

// AddConcept stores a concept. An empty color is replaced by a random one.
func (a *Annotator) AddConcept(name string, color string) (*model.Concept, error) {
	if color == "" {
		color = helper.RandomColor()
	}

	concept := &model.Concept{Name: name, Color: color}
	err := a.Concepts.InsertConcept(concept)
	if err != nil {
		return nil, err
	}

	return concept, nil
}

// ListSentences returns all sentences of the project.
func (a *Annotator) ListSentences() ([]*model.Sentence, error) {
	return a.Sentences.SelectAllSentences()
}

// ListConcepts returns all concepts of the project.
func (a *Annotator) ListConcepts() ([]*model.Concept, error) {
	return a.Concepts.SelectAllConcepts()
}

// ListAnnotations returns the annotations of a sentence ordered by begin offset.
func (a *Annotator) ListAnnotations(sentenceID int) ([]*model.Annotation, error) {
	return a.Annotations.SelectAnnotationsBySentence(sentenceID)
}

// ListModels returns the metadata of all trained models.
func (a *Annotator) ListModels() ([]*model.ModelInfo, error) {
	return a.Trainer.ListModels()
}

// UpsertAnnotation writes an annotation keyed on its natural identity
// (sentence, concept, begin, end).
func (a *Annotator) UpsertAnnotation(annotation *model.Annotation) error {
	return a.Annotations.UpsertAnnotation(annotation)
}

// AnnotateSelection turns a human text selection into an accepted manual
// annotation. The selection offsets are expanded to token boundaries
// before the annotation is stored.
func (a *Annotator) AnnotateSelection(sentenceRID uuid.UUID, conceptID int, begin int, end int) (*model.Annotation, error) {
	sentence, err := a.Sentences.SelectSentence(sentenceRID)
	if err != nil {
		return nil, err
	}

	span, err := align.ExpandToTokenSpan(sentence.Text, align.Span{Begin: begin, End: end})
	if err != nil {
		return nil, fmt.Errorf("error on align selection: %w: %v", model.ErrValidation, err)
	}

	annotation := &model.Annotation{
		SentenceID:   sentence.ID,
		ConceptID:    conceptID,
		Begin:        span.Begin,
		End:          span.End,
		Origin:       model.OriginManual,
		ReviewStatus: model.ReviewStatusAccepted,
	}
	err = a.Annotations.UpsertAnnotation(annotation)
	if err != nil {
		return nil, err
	}

	return annotation, nil
}

// SetReviewStatus transitions an annotation to the given review status.
func (a *Annotator) SetReviewStatus(annotationRID uuid.UUID, status model.ReviewStatus) (*model.Annotation, error) {
	return a.Annotations.SetReviewStatus(annotationRID, status)
}

// DeleteAnnotation removes a single annotation.
func (a *Annotator) DeleteAnnotation(annotationRID uuid.UUID) error {
	return a.Annotations.DeleteAnnotation(annotationRID)
}

// DeleteSentence removes a sentence together with its annotations.
func (a *Annotator) DeleteSentence(sentenceRID uuid.UUID) error {
	return a.Sentences.DeleteSentence(sentenceRID)
}

// DeleteConcept removes a concept. Concepts referenced by annotations
// cannot be deleted.
func (a *Annotator) DeleteConcept(conceptRID uuid.UUID) error {
	return a.Concepts.DeleteConcept(conceptRID)
}

// ExportAccepted returns all accepted annotations joined with their
// sentence text and concept name.
func (a *Annotator) ExportAccepted() ([]*model.AcceptedAnnotation, error) {
	return a.Annotations.ExportAccepted()
}

// ExportAcceptedCSV writes the accepted annotations to w as CSV with a
// header row.
func (a *Annotator) ExportAcceptedCSV(w io.Writer) error {
	exported, err := a.ExportAccepted()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	err = writer.Write([]string{"sentence_id", "sentence", "concept", "begin", "end"})
	if err != nil {
		return helper.NewError("write export header", err)
	}
	for _, row := range exported {
		err = writer.Write([]string{
			strconv.Itoa(row.SentenceID),
			row.SentenceText,
			row.Concept,
			strconv.Itoa(row.Begin),
			strconv.Itoa(row.End),
		})
		if err != nil {
			return helper.NewError("write export row", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportAcceptedJSON writes the accepted annotations to w as a JSON array.
func (a *Annotator) ExportAcceptedJSON(w io.Writer) error {
	exported, err := a.ExportAccepted()
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// BuildCorpus assembles the training corpus from all sentences and their
// accepted annotations.
func (a *Annotator) BuildCorpus() (*model.Corpus, error) {
	sentences, err := a.Sentences.SelectAllSentences()
	if err != nil {
		return nil, err
	}

	annotations := make([][]*model.Annotation, 0, len(sentences))
	for _, sentence := range sentences {
		annotationsOfSentence, err := a.Annotations.SelectAnnotationsBySentence(sentence.ID)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, annotationsOfSentence)
	}

	return a.Builder.Build(sentences, annotations)
}

// TrainModel builds the current corpus and trains a new model version
// under the given name. The trained model becomes the current model.
// Only one training run is active at a time, a concurrent call fails
// fast with a busy error.
func (a *Annotator) TrainModel(ctx context.Context, modelName string) (*model.ModelInfo, error) {
	builtCorpus, err := a.BuildCorpus()
	if err != nil {
		return nil, err
	}

	info, predictor, err := a.Trainer.Train(ctx, modelName, builtCorpus)
	if err != nil {
		return nil, err
	}

	a.currentModel = info
	a.currentPredictor = predictor
	return info, nil
}

// LoadModel loads a previously trained model by name and makes it the
// current model.
func (a *Annotator) LoadModel(modelName string) (*model.ModelInfo, error) {
	info, predictor, err := a.Trainer.Load(modelName)
	if err != nil {
		return nil, err
	}

	a.currentModel = info
	a.currentPredictor = predictor
	return info, nil
}

// LoadCurrentModel loads the model of the last successful training run.
func (a *Annotator) LoadCurrentModel() (*model.ModelInfo, error) {
	info, predictor, err := a.Trainer.LoadCurrent()
	if err != nil {
		return nil, err
	}

	a.currentModel = info
	a.currentPredictor = predictor
	return info, nil
}

// PredictAndIngest runs the current model over all sentences and stores
// predictions above the score threshold as pending annotations. It
// returns the number of stored or refreshed predictions. Reviewed
// annotations are never touched.
func (a *Annotator) PredictAndIngest(ctx context.Context, scoreThreshold float64) (int, error) {
	if a.currentPredictor == nil {
		return 0, fmt.Errorf("error on predict: %w: no model loaded, train or load one first", model.ErrNotFound)
	}

	sentences, err := a.Sentences.SelectAllSentences()
	if err != nil {
		return 0, err
	}

	return a.Ingestor.Run(ctx, a.currentPredictor, sentences, a.currentModel.ID, scoreThreshold)
}

// Preannotate runs a pretrained NER model over all sentences to bootstrap
// pending annotations before any project model exists. conceptsByLabel
// maps the model's entity labels (e.g. "PER", "LOC") to concept ids.
// Stored annotations carry model id 0.
func (a *Annotator) Preannotate(ctx context.Context, modelName string, conceptsByLabel map[string]int, scoreThreshold float64) (int, error) {
	ner, err := classifier.NewPretrainedNER(modelName, conceptsByLabel)
	if err != nil {
		return 0, helper.NewError("create pretrained NER", err)
	}
	defer func() {
		if closeErr := ner.Close(); closeErr != nil {
			a.log.Warn("failed to close NER session", slog.String("error", closeErr.Error()))
		}
	}()

	sentences, err := a.Sentences.SelectAllSentences()
	if err != nil {
		return 0, err
	}

	return a.Ingestor.Run(ctx, ner, sentences, 0, scoreThreshold)
}

// SuggestSimilarSentences returns the stored sentences closest to the
// given text by embedding cosine similarity, most similar first.
func (a *Annotator) SuggestSimilarSentences(text string, limit int) ([]*model.Sentence, error) {
	if a.Embedder == nil {
		return nil, fmt.Errorf("error on suggest similar sentences: %w: embedder not set, use SetEmbedder() first", model.ErrValidation)
	}

	embedding, err := a.Embedder(text)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	return a.Sentences.SelectSentencesBySimilarity(embedding, limit)
}
