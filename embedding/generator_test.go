package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quarryai/quarry/ai/mock"
	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmbeddingConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Dimension:            8,
		BatchSize:            2,
		MaxConcurrentBatches: 2,
		MaxAttempts:          3,
		RetryBaseDelay:       time.Millisecond,
	}
}

func newTestGenerator(t *testing.T, embedder *mock.MockEmbedder) *Generator {
	t.Helper()
	gen, err := NewGenerator(embedder, testEmbeddingConfig())
	require.NoError(t, err)
	t.Cleanup(gen.Release)
	return gen
}

func TestEmbed_OrderPreserved(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	gen := newTestGenerator(t, embedder)

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d", i)
	}

	vectors, usage, err := gen.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	assert.Equal(t, 7, usage.Texts)
	assert.Equal(t, 4, usage.Batches)

	// Each output position must match its input text, regardless of which
	// batch finished first.
	for i, text := range texts {
		expected := Normalize(mock.DeterministicVector(text, 8))
		assert.Equal(t, expected, vectors[i], "vector %d out of order", i)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	gen := newTestGenerator(t, mock.NewMockEmbedderWithDimension(8))

	vectors, usage, err := gen.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, 0, usage.Batches)
}

func TestEmbed_TransientFailureRetries(t *testing.T) {
	var calls atomic.Int32
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("%w: provider busy", ErrTransient)
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, 8)
		}
		return vectors, nil
	}

	cfg := testEmbeddingConfig()
	cfg.BatchSize = 10 // single batch
	gen, err := NewGenerator(embedder, cfg)
	require.NoError(t, err)
	defer gen.Release()

	vectors, usage, err := gen.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 2, usage.Retries)
}

func TestEmbed_PermanentFailureFailsFast(t *testing.T) {
	var calls atomic.Int32
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls.Add(1)
		return nil, fmt.Errorf("%w: unauthorized", ErrPermanent)
	}

	cfg := testEmbeddingConfig()
	cfg.BatchSize = 10
	gen, err := NewGenerator(embedder, cfg)
	require.NoError(t, err)
	defer gen.Release()

	_, _, err = gen.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, int32(1), calls.Load(), "permanent errors must not be retried")
}

func TestEmbed_ExhaustedRetriesNoPartialResults(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		// Fail only the batch containing "poison".
		for _, text := range texts {
			if text == "poison" {
				return nil, fmt.Errorf("%w: provider unavailable", ErrTransient)
			}
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, 8)
		}
		return vectors, nil
	}

	gen := newTestGenerator(t, embedder)

	vectors, _, err := gen.Embed(context.Background(), []string{"ok-1", "ok-2", "poison", "ok-3"})
	require.Error(t, err)
	assert.Nil(t, vectors, "callers must not receive partial vectors")
}

func TestEmbed_ResultCountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{mock.DeterministicVector("only one", 8)}, nil
	}

	cfg := testEmbeddingConfig()
	cfg.BatchSize = 10
	gen, err := NewGenerator(embedder, cfg)
	require.NoError(t, err)
	defer gen.Release()

	_, _, err = gen.Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrResultMismatch)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(4) // config says 8
	gen := newTestGenerator(t, embedder)

	_, _, err := gen.Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, core.ErrVectorDimension)
}

func TestEmbed_ProgressReported(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	gen := newTestGenerator(t, embedder)

	var updates atomic.Int32
	var lastTotal atomic.Int32
	_, _, err := gen.EmbedWithProgress(context.Background(), []string{"a", "b", "c", "d", "e"},
		func(done, total int) {
			updates.Add(1)
			lastTotal.Store(int32(total))
		})
	require.NoError(t, err)
	assert.Equal(t, int32(3), updates.Load())
	assert.Equal(t, int32(3), lastTotal.Load())
}

func TestEmbedQuery(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(8)
	gen := newTestGenerator(t, embedder)

	vector, err := gen.EmbedQuery(context.Background(), "what is a quarry")
	require.NoError(t, err)
	assert.Len(t, vector, 8)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("401 unauthorized")))
	assert.False(t, IsTransient(fmt.Errorf("wrap: %w", ErrPermanent)))
	assert.True(t, IsTransient(errors.New("429 too many requests")))
	assert.True(t, IsTransient(errors.New("connection refused")))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", ErrTransient)))
	assert.True(t, IsTransient(errors.New("something unexpected")))
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: flaky", ErrTransient)
		}
		return nil
	}

	made, err := RetryWithBackoff(context.Background(), operation, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, made)
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	expectedErr := fmt.Errorf("%w: persistent", ErrTransient)
	attempts := 0
	operation := func() error {
		attempts++
		return expectedErr
	}

	made, err := RetryWithBackoff(context.Background(), operation, 3, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, made)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
