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

// ConceptsDBHandlerFunctions defines the interface for Concepts database operations.
type ConceptsDBHandlerFunctions interface {
	InsertConcept(concept *model.Concept) error
	SelectConcept(rid uuid.UUID) (*model.Concept, error)
	SelectAllConcepts() ([]*model.Concept, error)
	DeleteConcept(rid uuid.UUID) error
}

// ConceptsDBHandler handles concept-related database operations
type ConceptsDBHandler struct {
	db *helper.Database
}

// NewConceptsDBHandler creates a new concepts database handler.
// It initializes the database connection and loads concept-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewConceptsDBHandler(db *helper.Database, force bool) (*ConceptsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	conceptsDbHandler := &ConceptsDBHandler{
		db: db,
	}

	err := loadSql.LoadConceptsSql(conceptsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load concepts sql", err)
	}

	err = conceptsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ConceptsDBHandler")

	return conceptsDbHandler, nil
}

// CreateTable creates the 'concepts' table in the database.
// If the table already exists, it does not create it again.
func (h *ConceptsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_concepts();`)
	if err != nil {
		log.Panicf("error initializing concepts table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table concepts")

	return nil
}

// InsertConcept inserts a new concept. Duplicate names are legal, the
// concept id is the label key everywhere.
func (h *ConceptsDBHandler) InsertConcept(concept *model.Concept) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_concept($1, $2)`,
		concept.Name,
		concept.Color,
	)

	err := row.Scan(
		&concept.ID,
		&concept.RID,
		&concept.Name,
		&concept.Color,
		&concept.CreatedAt,
	)
	if err != nil {
		return helper.ClassifyDBError("insert concept", err)
	}

	return nil
}

// SelectConcept retrieves a concept by RID
func (h *ConceptsDBHandler) SelectConcept(rid uuid.UUID) (*model.Concept, error) {
	concept := &model.Concept{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_concept($1)`,
		rid,
	)

	err := row.Scan(
		&concept.ID,
		&concept.RID,
		&concept.Name,
		&concept.Color,
		&concept.CreatedAt,
	)
	if err != nil {
		return nil, helper.ClassifyDBError("select concept", err)
	}

	return concept, nil
}

// SelectAllConcepts retrieves all concepts ordered by id
func (h *ConceptsDBHandler) SelectAllConcepts() ([]*model.Concept, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_all_concepts()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var concepts []*model.Concept
	for rows.Next() {
		concept := &model.Concept{}
		err := rows.Scan(
			&concept.ID,
			&concept.RID,
			&concept.Name,
			&concept.Color,
			&concept.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		concepts = append(concepts, concept)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return concepts, nil
}

// DeleteConcept deletes a concept by RID. It fails with a referential
// error while annotations still reference the concept.
func (h *ConceptsDBHandler) DeleteConcept(rid uuid.UUID) error {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT delete_concept($1)`,
		rid,
	).Scan(&count)
	if err != nil {
		return helper.ClassifyDBError("delete concept", err)
	}
	if count == 0 {
		return fmt.Errorf("error on delete concept: %w", model.ErrNotFound)
	}

	return nil
}
