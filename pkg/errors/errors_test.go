package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndWrap(t *testing.T) {
	t.Run("New carries code and message", func(t *testing.T) {
		err := New(UnknownTool, "no such tool")
		assert.EqualError(t, err, "no such tool")
		assert.Equal(t, UnknownTool, Code(err))
	})

	t.Run("Wrap preserves cause", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := Wrap(cause, StorageWriteFailed, "append failed")
		assert.EqualError(t, err, "append failed: disk full")
		assert.Equal(t, StorageWriteFailed, Code(err))
		assert.Equal(t, cause, stderrors.Unwrap(err))
	})

	t.Run("Wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, Unknown, "nothing"))
	})
}

func TestWithFields(t *testing.T) {
	err := WithFields(New(ToolExecutionFailed, "tool failed"), Fields{"tool": "write_file"})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, "write_file", e.Fields()["tool"])
	assert.Equal(t, ToolExecutionFailed, e.Code())

	t.Run("fields merge without mutating the original", func(t *testing.T) {
		err2 := WithFields(err, Fields{"attempt": 2})
		var e2 *Error
		require.True(t, stderrors.As(err2, &e2))
		assert.Equal(t, 2, e2.Fields()["attempt"])
		assert.NotContains(t, e.Fields(), "attempt")
	})

	t.Run("plain errors are adopted", func(t *testing.T) {
		err := WithFields(fmt.Errorf("plain"), Fields{"k": "v"})
		assert.Equal(t, Unknown, Code(err))
	})
}

func TestCodeMatching(t *testing.T) {
	err := Wrap(New(EmbeddingUnavailable, "embedder down"), Unknown, "projection")

	// errors.Is matches on code through the chain.
	assert.True(t, stderrors.Is(err, New(Unknown, "")))
	assert.True(t, HasCode(err, Unknown))
	assert.False(t, HasCode(nil, Unknown))

	// InsufficientData is distinguishable from every fault code.
	assert.False(t, HasCode(New(InsufficientData, "no opinion"), ProviderFailed))
}

func TestCheckContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, CheckContext(ctx, "step"))

	cancel()
	err := CheckContext(ctx, "step")
	require.Error(t, err)
	assert.Equal(t, Canceled, Code(err))
	assert.Contains(t, err.Error(), "step canceled")
}
