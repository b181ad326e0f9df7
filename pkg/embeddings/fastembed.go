// Package embeddings adapts a local fastembed ONNX model to the embedding
// capability. The model runs in-process; no network calls after the first
// weight download.
package embeddings

import (
	"context"

	"github.com/anush008/fastembed-go"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
)

var modelMapping = map[string]fastembed.EmbeddingModel{
	"all-MiniLM-L6-v2":      fastembed.AllMiniLML6V2,
	"bge-small-en-v1.5":     fastembed.BGESmallENV15,
	"fast-all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.AllMiniLML6V2: 384,
	fastembed.BGESmallENV15: 384,
}

// FastEmbedder implements core.Embedder on a fastembed flag-embedding
// model.
type FastEmbedder struct {
	model     *fastembed.FlagEmbedding
	dimension int
	logger    *logging.Logger
}

// NewFastEmbedder loads the configured model. The first call downloads
// weights into the cache directory.
func NewFastEmbedder(cfg config.EmbeddingsConfig, logger *logging.Logger) (*FastEmbedder, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	model, ok := modelMapping[cfg.Model]
	if !ok {
		model = fastembed.EmbeddingModel(cfg.Model)
	}
	dimension, known := modelDimensions[model]
	if !known {
		return nil, errors.WithFields(errors.New(errors.InvalidInput, "unsupported embedding model"),
			errors.Fields{"model": cfg.Model})
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = ".fastembed_cache"
	}
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.EmbeddingUnavailable, "failed to initialize embedding model"),
			errors.Fields{"model": cfg.Model, "cache_dir": cacheDir})
	}

	logger.Info(context.Background(), "embedding model %s ready (dimension %d)", cfg.Model, dimension)
	return &FastEmbedder{model: flagEmbed, dimension: dimension, logger: logger}, nil
}

// Embed returns the embedding for one text. Failures surface as
// EmbeddingUnavailable, which the projector treats as a degraded-vector
// trigger rather than a fault.
func (e *FastEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := errors.CheckContext(ctx, "embed"); err != nil {
		return nil, err
	}

	raw, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingUnavailable, "embedding failed")
	}

	vec := make([]float64, len(raw))
	for i, v := range raw {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Dimension returns the model's output width.
func (e *FastEmbedder) Dimension() int {
	return e.dimension
}

// Close releases the ONNX runtime resources.
func (e *FastEmbedder) Close() error {
	return e.model.Destroy()
}

var _ core.Embedder = (*FastEmbedder)(nil)
