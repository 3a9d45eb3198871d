package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/annotator/helper"
	"github.com/siherrmann/annotator/model"
	loadSql "github.com/siherrmann/annotator/sql"
)

// SentencesDBHandlerFunctions defines the interface for Sentences database operations.
type SentencesDBHandlerFunctions interface {
	InsertSentence(sentence *model.Sentence) error
	SelectSentence(rid uuid.UUID) (*model.Sentence, error)
	SelectAllSentences() ([]*model.Sentence, error)
	SelectSentenceAttributes(sentenceID int) ([]model.Attribute, error)
	SelectSentencesBySimilarity(embedding []float32, limit int) ([]*model.Sentence, error)
	DeleteSentence(rid uuid.UUID) error
}

// SentencesDBHandler handles sentence-related database operations
type SentencesDBHandler struct {
	db *helper.Database
}

// NewSentencesDBHandler creates a new sentences database handler.
// It initializes the database connection and loads sentence-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSentencesDBHandler(db *helper.Database, embeddingDim int, force bool) (*SentencesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	sentencesDbHandler := &SentencesDBHandler{
		db: db,
	}

	err := loadSql.LoadSentencesSql(sentencesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load sentences sql", err)
	}

	err = sentencesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SentencesDBHandler")

	return sentencesDbHandler, nil
}

// CreateTable creates the 'sentences' and 'sentence_attributes' tables in
// the database. If the tables already exist, it does not create them again.
// It also creates all necessary indexes.
func (h *SentencesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_sentences($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing sentences table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table sentences")

	return nil
}

// InsertSentence inserts a new sentence with its attributes in one
// transaction. The embedding is optional and only stored for similarity
// suggestions.
func (h *SentencesDBHandler) InsertSentence(sentence *model.Sentence) error {
	names := make([]string, 0, len(sentence.Attrs))
	values := make([]string, 0, len(sentence.Attrs))
	for _, attr := range sentence.Attrs {
		names = append(names, attr.Name)
		values = append(values, attr.Value)
	}

	var embedding interface{}
	if len(sentence.Embedding) > 0 {
		embedding = pgvector.NewVector(sentence.Embedding)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_sentence($1, $2, $3, $4)`,
		sentence.Text,
		pq.Array(names),
		pq.Array(values),
		embedding,
	)

	err := row.Scan(
		&sentence.ID,
		&sentence.RID,
		&sentence.Text,
		&sentence.CreatedAt,
	)
	if err != nil {
		return helper.ClassifyDBError("insert sentence", err)
	}

	return nil
}

// SelectSentence retrieves a sentence by RID, including its attributes.
func (h *SentencesDBHandler) SelectSentence(rid uuid.UUID) (*model.Sentence, error) {
	sentence := &model.Sentence{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_sentence($1)`,
		rid,
	)

	err := row.Scan(
		&sentence.ID,
		&sentence.RID,
		&sentence.Text,
		&sentence.CreatedAt,
	)
	if err != nil {
		return nil, helper.ClassifyDBError("select sentence", err)
	}

	attrs, err := h.SelectSentenceAttributes(sentence.ID)
	if err != nil {
		return nil, err
	}
	sentence.Attrs = attrs

	return sentence, nil
}

// SelectAllSentences retrieves all sentences ordered by id, without attributes.
func (h *SentencesDBHandler) SelectAllSentences() ([]*model.Sentence, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_all_sentences()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var sentences []*model.Sentence
	for rows.Next() {
		sentence := &model.Sentence{}
		err := rows.Scan(
			&sentence.ID,
			&sentence.RID,
			&sentence.Text,
			&sentence.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		sentences = append(sentences, sentence)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return sentences, nil
}

// SelectSentenceAttributes retrieves the attributes of a sentence.
func (h *SentencesDBHandler) SelectSentenceAttributes(sentenceID int) ([]model.Attribute, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_sentence_attributes($1)`,
		sentenceID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var attrs []model.Attribute
	for rows.Next() {
		attr := model.Attribute{}
		err := rows.Scan(&attr.Name, &attr.Value)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		attrs = append(attrs, attr)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return attrs, nil
}

// SelectSentencesBySimilarity retrieves the sentences closest to the given
// embedding by cosine similarity. Sentences without an embedding are skipped.
func (h *SentencesDBHandler) SelectSentencesBySimilarity(embedding []float32, limit int) ([]*model.Sentence, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_sentences_by_similarity($1, $2)`,
		pgvector.NewVector(embedding),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var sentences []*model.Sentence
	for rows.Next() {
		sentence := &model.Sentence{}
		err := rows.Scan(
			&sentence.ID,
			&sentence.RID,
			&sentence.Text,
			&sentence.CreatedAt,
			&sentence.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		sentences = append(sentences, sentence)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return sentences, nil
}

// DeleteSentence deletes a sentence by RID, cascading to its attributes
// and annotations.
func (h *SentencesDBHandler) DeleteSentence(rid uuid.UUID) error {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT delete_sentence($1)`,
		rid,
	).Scan(&count)
	if err != nil {
		return helper.ClassifyDBError("delete sentence", err)
	}
	if count == 0 {
		return fmt.Errorf("error on delete sentence: %w", model.ErrNotFound)
	}

	return nil
}
