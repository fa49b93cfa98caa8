package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	ok, err := l.AcquireLock(ctx, "submit:a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.AcquireLock(ctx, "submit:a", time.Second)
	assert.False(t, ok, "held lock must not be acquired twice")

	ok, _ = l.AcquireLock(ctx, "submit:b", time.Second)
	assert.True(t, ok, "locks are per key")

	require.NoError(t, l.ReleaseLock(ctx, "submit:a"))
	ok, _ = l.AcquireLock(ctx, "submit:a", time.Second)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = l.AcquireLock(ctx, "submit:b", time.Second)
	assert.True(t, ok, "expired lock is free again")
}
