package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultRunConfig()

		assert.Equal(t, 2, config.MaxDepth, "Default MaxDepth should be 2")
		assert.Equal(t, 50, config.MaxDocuments, "Default MaxDocuments should be 50")
		assert.Equal(t, 200, config.MaxEntities, "Default MaxEntities should be 200")
		assert.Equal(t, 0.5, config.ClassifyThreshold, "Default ClassifyThreshold should be 0.5")
		assert.Equal(t, 2, config.PromoteThreshold, "Default PromoteThreshold should be 2")
		assert.Equal(t, 2, config.Retries, "Default Retries should be 2")
		assert.Equal(t, 2, config.RepairRetries, "Default RepairRetries should be 2")
		assert.Equal(t, 60*time.Second, config.CallTimeout, "Default CallTimeout should be 60s")
		assert.Equal(t, 3, config.AbortAfter, "Default AbortAfter should be 3")
		assert.Equal(t, 4, config.Workers, "Default Workers should be 4")
	})

	t.Run("Can be modified after creation", func(t *testing.T) {
		config := DefaultRunConfig()

		config.MaxDepth = 4
		config.Workers = 8
		config.Seeds = []string{"Ada Lovelace"}

		assert.Equal(t, 4, config.MaxDepth)
		assert.Equal(t, 8, config.Workers)
		assert.Equal(t, []string{"Ada Lovelace"}, config.Seeds)
	})
}

func TestRunConfigValidate(t *testing.T) {
	t.Run("Valid config passes", func(t *testing.T) {
		config := DefaultRunConfig()
		config.Seeds = []string{"Ada Lovelace"}

		err := config.Validate()

		assert.NoError(t, err)
	})

	t.Run("Rejects missing seeds", func(t *testing.T) {
		config := DefaultRunConfig()

		err := config.Validate()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed")
	})

	t.Run("Rejects negative max depth", func(t *testing.T) {
		config := DefaultRunConfig()
		config.Seeds = []string{"Ada Lovelace"}
		config.MaxDepth = -1

		err := config.Validate()

		require.Error(t, err)
	})

	t.Run("Rejects zero budgets", func(t *testing.T) {
		config := DefaultRunConfig()
		config.Seeds = []string{"Ada Lovelace"}
		config.MaxEntities = 0

		err := config.Validate()

		require.Error(t, err)
	})

	t.Run("Rejects zero workers", func(t *testing.T) {
		config := DefaultRunConfig()
		config.Seeds = []string{"Ada Lovelace"}
		config.Workers = 0

		err := config.Validate()

		require.Error(t, err)
	})
}

func TestRunConfigFromFile(t *testing.T) {
	t.Run("Loads values and keeps defaults for unset fields", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "run.yaml")
		content := "seeds:\n  - Ada Lovelace\n  - Charles Babbage\nmax_depth: 3\ncall_timeout: 90s\n"
		err := os.WriteFile(path, []byte(content), 0644)
		require.NoError(t, err)

		config, err := RunConfigFromFile(path)

		require.NoError(t, err)
		assert.Equal(t, []string{"Ada Lovelace", "Charles Babbage"}, config.Seeds)
		assert.Equal(t, 3, config.MaxDepth)
		assert.Equal(t, 90*time.Second, config.CallTimeout)
		assert.Equal(t, 50, config.MaxDocuments, "Unset fields should keep defaults")
		assert.Equal(t, 2, config.PromoteThreshold, "Unset fields should keep defaults")
	})

	t.Run("Keeps default timeout when unset", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "run.yaml")
		err := os.WriteFile(path, []byte("seeds:\n  - Ada Lovelace\n"), 0644)
		require.NoError(t, err)

		config, err := RunConfigFromFile(path)

		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, config.CallTimeout)
	})

	t.Run("Returns error for invalid timeout", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "run.yaml")
		err := os.WriteFile(path, []byte("call_timeout: soon\n"), 0644)
		require.NoError(t, err)

		config, err := RunConfigFromFile(path)

		require.Error(t, err)
		assert.Nil(t, config)
	})

	t.Run("Returns error for missing file", func(t *testing.T) {
		config, err := RunConfigFromFile("/non/existent/run.yaml")

		require.Error(t, err)
		assert.Nil(t, config)
	})
}

func TestDefaultReviewConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultReviewConfig()

		assert.Equal(t, 5, config.SimilarTopK, "Default SimilarTopK should be 5")
		assert.Equal(t, 0.7, config.SimilarityThreshold, "Default SimilarityThreshold should be 0.7")
		assert.Equal(t, 20, config.Limit, "Default Limit should be 20")
	})
}
