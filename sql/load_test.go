package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Init creates required extensions", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "Expected vector extension to be installed")
	})
}

func TestLoadSentencesSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Load sentences SQL functions", func(t *testing.T) {
		err := LoadSentencesSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range SentencesFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})

	t.Run("Load sentences SQL is idempotent without force", func(t *testing.T) {
		err := LoadSentencesSql(db.Instance, false)
		assert.NoError(t, err)
	})

	t.Run("Load sentences SQL with force reloads", func(t *testing.T) {
		err := LoadSentencesSql(db.Instance, true)
		assert.NoError(t, err)
	})
}

func TestLoadConceptsSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Load concepts SQL functions", func(t *testing.T) {
		err := LoadConceptsSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range ConceptsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})

	t.Run("Load concepts SQL is idempotent without force", func(t *testing.T) {
		err := LoadConceptsSql(db.Instance, false)
		assert.NoError(t, err)
	})
}

func TestLoadAnnotationsSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Load annotations SQL functions", func(t *testing.T) {
		err := LoadAnnotationsSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range AnnotationsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})
}

func TestLoadAllSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Load all SQL functions", func(t *testing.T) {
		err := LoadAllSql(db.Instance, true)
		assert.NoError(t, err)

		all := append(append(append([]string{}, SentencesFunctions...), ConceptsFunctions...), AnnotationsFunctions...)
		for _, funcName := range all {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})
}
