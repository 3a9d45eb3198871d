package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/annotator/helper"
	"github.com/siherrmann/annotator/model"
	loadSql "github.com/siherrmann/annotator/sql"
)

// AnnotationsDBHandlerFunctions defines the interface for Annotations database operations.
type AnnotationsDBHandlerFunctions interface {
	UpsertAnnotation(annotation *model.Annotation) error
	UpsertPrediction(annotation *model.Annotation) (bool, error)
	SelectAnnotationsBySentence(sentenceID int) ([]*model.Annotation, error)
	SetReviewStatus(rid uuid.UUID, status model.ReviewStatus) (*model.Annotation, error)
	DeleteAnnotation(rid uuid.UUID) error
	ExportAccepted() ([]*model.AcceptedAnnotation, error)
}

// AnnotationsDBHandler handles annotation-related database operations
type AnnotationsDBHandler struct {
	db *helper.Database
}

// NewAnnotationsDBHandler creates a new annotations database handler.
// It initializes the database connection and loads annotation-related SQL
// functions. If force is true, it will reload the SQL functions even if
// they already exist. The sentences and concepts tables must exist first.
func NewAnnotationsDBHandler(db *helper.Database, force bool) (*AnnotationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	annotationsDbHandler := &AnnotationsDBHandler{
		db: db,
	}

	err := loadSql.LoadAnnotationsSql(annotationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load annotations sql", err)
	}

	err = annotationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized AnnotationsDBHandler")

	return annotationsDbHandler, nil
}

// CreateTable creates the 'annotations' table in the database.
// If the table already exists, it does not create it again.
// It also creates the identity key constraint and all indexes.
func (h *AnnotationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_annotations();`)
	if err != nil {
		log.Panicf("error initializing annotations table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table annotations")

	return nil
}

// scanAnnotation scans a full annotations row in table column order.
func scanAnnotation(row interface{ Scan(...interface{}) error }, annotation *model.Annotation) error {
	var predicted bool
	var status int
	err := row.Scan(
		&annotation.ID,
		&annotation.RID,
		&annotation.SentenceID,
		&annotation.ConceptID,
		&annotation.Begin,
		&annotation.End,
		&predicted,
		&annotation.ModelID,
		&status,
		&annotation.CreatedAt,
		&annotation.UpdatedAt,
	)
	if err != nil {
		return err
	}

	annotation.Origin = model.OriginFromPredicted(predicted)
	annotation.ReviewStatus = model.ReviewStatus(status)
	return nil
}

// UpsertAnnotation writes an annotation keyed on the natural identity
// (sentence_id, concept_id, begin, end): an existing row is updated in
// place (origin, model id, review status), otherwise a new row is
// inserted. Span bounds are validated against the live sentence text.
func (h *AnnotationsDBHandler) UpsertAnnotation(annotation *model.Annotation) error {
	if !annotation.ReviewStatus.Valid() {
		return fmt.Errorf("error on upsert annotation: %w: review status %d", model.ErrValidation, annotation.ReviewStatus)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_annotation($1, $2, $3, $4, $5, $6, $7)`,
		annotation.SentenceID,
		annotation.ConceptID,
		annotation.Begin,
		annotation.End,
		annotation.Origin.Predicted(),
		annotation.ModelID,
		int(annotation.ReviewStatus),
	)

	err := scanAnnotation(row, annotation)
	if err != nil {
		return helper.ClassifyDBError("upsert annotation", err)
	}

	return nil
}

// UpsertPrediction writes a predicted annotation with pending review
// status on the same identity key as UpsertAnnotation, but never touches
// a row that has already been accepted or rejected. It returns false when
// the write was skipped because of an existing reviewed row.
func (h *AnnotationsDBHandler) UpsertPrediction(annotation *model.Annotation) (bool, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM upsert_prediction($1, $2, $3, $4, $5)`,
		annotation.SentenceID,
		annotation.ConceptID,
		annotation.Begin,
		annotation.End,
		annotation.ModelID,
	)
	if err != nil {
		return false, helper.ClassifyDBError("upsert prediction", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, helper.ClassifyDBError("upsert prediction", err)
		}
		// Reviewed row on the same span, left untouched.
		return false, nil
	}

	err = scanAnnotation(rows, annotation)
	if err != nil {
		return false, helper.ClassifyDBError("upsert prediction", err)
	}

	return true, nil
}

// SelectAnnotationsBySentence retrieves all annotations of a sentence
// ordered by begin offset.
func (h *AnnotationsDBHandler) SelectAnnotationsBySentence(sentenceID int) ([]*model.Annotation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_annotations_by_sentence($1)`,
		sentenceID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var annotations []*model.Annotation
	for rows.Next() {
		annotation := &model.Annotation{}
		err := scanAnnotation(rows, annotation)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		annotations = append(annotations, annotation)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return annotations, nil
}

// SetReviewStatus transitions an annotation to the given review status
// and returns the updated annotation. Unknown annotations fail with a
// not found error.
func (h *AnnotationsDBHandler) SetReviewStatus(rid uuid.UUID, status model.ReviewStatus) (*model.Annotation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("error on set review status: %w: review status %d", model.ErrValidation, status)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM set_review_status($1, $2)`,
		rid,
		int(status),
	)
	if err != nil {
		return nil, helper.ClassifyDBError("set review status", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, helper.ClassifyDBError("set review status", err)
		}
		return nil, fmt.Errorf("error on set review status: %w: annotation %s", model.ErrNotFound, rid)
	}

	annotation := &model.Annotation{}
	err = scanAnnotation(rows, annotation)
	if err != nil {
		return nil, helper.ClassifyDBError("set review status", err)
	}

	return annotation, nil
}

// DeleteAnnotation deletes a single annotation by RID.
func (h *AnnotationsDBHandler) DeleteAnnotation(rid uuid.UUID) error {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT delete_annotation($1)`,
		rid,
	).Scan(&count)
	if err != nil {
		return helper.ClassifyDBError("delete annotation", err)
	}
	if count == 0 {
		return fmt.Errorf("error on delete annotation: %w", model.ErrNotFound)
	}

	return nil
}

// ExportAccepted retrieves all accepted annotations joined with their
// sentence text and concept name, ordered by sentence id.
func (h *AnnotationsDBHandler) ExportAccepted() ([]*model.AcceptedAnnotation, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM export_accepted()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var accepted []*model.AcceptedAnnotation
	for rows.Next() {
		row := &model.AcceptedAnnotation{}
		err := rows.Scan(
			&row.SentenceID,
			&row.SentenceText,
			&row.Concept,
			&row.Begin,
			&row.End,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		accepted = append(accepted, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return accepted, nil
}
