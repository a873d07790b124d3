package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return base.Add(10 * time.Second) }

	r, err := l.Allow(ctx, "ip|/x")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(1), r.Remaining)
	assert.Equal(t, int64(2), r.Limit)

	r, _ = l.Allow(ctx, "ip|/x")
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(0), r.Remaining)

	r, _ = l.Allow(ctx, "ip|/x")
	assert.False(t, r.Allowed)
	assert.Equal(t, int64(3), r.CurrentHits)
	assert.Equal(t, 50*time.Second, r.RetryAfter)

	// Otra clave tiene su propio contador.
	r, _ = l.Allow(ctx, "other|/x")
	assert.True(t, r.Allowed)

	// Ventana siguiente: el contador arranca de cero.
	l.now = func() time.Time { return base.Add(70 * time.Second) }
	r, _ = l.Allow(ctx, "ip|/x")
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(1), r.CurrentHits)
}

func TestResult_RetryAfterRoundsUp(t *testing.T) {
	r := result(5, 4, 1500*time.Millisecond)
	assert.False(t, r.Allowed)
	assert.Equal(t, 2*time.Second, r.RetryAfter)
	assert.Equal(t, int64(0), r.Remaining)
}
