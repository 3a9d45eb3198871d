package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed sentences.sql
var sentencesSQL string

//go:embed concepts.sql
var conceptsSQL string

//go:embed annotations.sql
var annotationsSQL string

// Function lists for verification
var SentencesFunctions = []string{
	"init_sentences",
	"insert_sentence",
	"select_sentence",
	"select_all_sentences",
	"select_sentence_attributes",
	"select_sentences_by_similarity",
	"delete_sentence",
}

var ConceptsFunctions = []string{
	"init_concepts",
	"insert_concept",
	"select_concept",
	"select_all_concepts",
	"delete_concept",
}

var AnnotationsFunctions = []string{
	"init_annotations",
	"check_annotation_span",
	"upsert_annotation",
	"upsert_prediction",
	"select_annotations_by_sentence",
	"set_review_status",
	"delete_annotation",
	"export_accepted",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadSentencesSql loads sentence-related SQL functions
func LoadSentencesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, SentencesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing sentences functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(sentencesSQL)
	if err != nil {
		return fmt.Errorf("error executing sentences SQL: %w", err)
	}

	exist, err := checkFunctions(db, SentencesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL sentences functions loaded successfully")
	return nil
}

// LoadConceptsSql loads concept-related SQL functions
func LoadConceptsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, ConceptsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing concepts functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(conceptsSQL)
	if err != nil {
		return fmt.Errorf("error executing concepts SQL: %w", err)
	}

	exist, err := checkFunctions(db, ConceptsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL concepts functions loaded successfully")
	return nil
}

// LoadAnnotationsSql loads annotation-related SQL functions
func LoadAnnotationsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, AnnotationsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing annotations functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(annotationsSQL)
	if err != nil {
		return fmt.Errorf("error executing annotations SQL: %w", err)
	}

	exist, err := checkFunctions(db, AnnotationsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL annotations functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadSentencesSql(db, force); err != nil {
		return err
	}

	if err := LoadConceptsSql(db, force); err != nil {
		return err
	}

	if err := LoadAnnotationsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the
// current schema
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(
				SELECT 1 FROM pg_proc p
				JOIN pg_namespace n ON n.oid = p.pronamespace
				WHERE p.proname = $1 AND n.nspname = current_schema()
			);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
