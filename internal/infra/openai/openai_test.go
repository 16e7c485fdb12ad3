package openai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.dimension)
	assert.Equal(t, EmbeddingBatchLimit, embedder.MaxBatchSize())
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewGenerator("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)

	gen, err := NewGenerator("dummy-key", WithChatModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gen.ModelName())
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDuration(1))
	assert.Equal(t, 4*time.Second, backoffDuration(2))
	assert.Equal(t, 8*time.Second, backoffDuration(3))
	// 上限で頭打ちになる
	assert.Equal(t, MaxBackoff, backoffDuration(10))
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, isTransientError(nil))
	assert.False(t, isTransientError(errors.New("plain error")))
	assert.False(t, isTransientError(context.Canceled))
	assert.False(t, isTransientError(&openaisdk.Error{StatusCode: 400}))

	assert.True(t, isTransientError(&openaisdk.Error{StatusCode: 429}))
	assert.True(t, isTransientError(&openaisdk.Error{StatusCode: 500}))
	assert.True(t, isTransientError(&openaisdk.Error{StatusCode: 503}))
	assert.True(t, isTransientError(context.DeadlineExceeded))
	// SDKはコンテキストエラーをラップして返すことがある
	assert.True(t, isTransientError(fmt.Errorf("request failed: %w", context.DeadlineExceeded)))
}
