package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/errors"
)

func TestNewFastEmbedder(t *testing.T) {
	t.Run("Unsupported model is rejected before loading", func(t *testing.T) {
		_, err := NewFastEmbedder(config.EmbeddingsConfig{Model: "nonexistent-model"}, nil)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.InvalidInput))
	})

	t.Run("Known aliases resolve", func(t *testing.T) {
		model, ok := modelMapping["all-MiniLM-L6-v2"]
		require.True(t, ok)
		assert.Equal(t, 384, modelDimensions[model])
	})
}
