package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/config"
)

func TestMemoryStore_MarkProcessed(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := s.MarkProcessed(ctx, "docusign:env-1:completed", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkProcessed(ctx, "docusign:env-1:completed", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	now = now.Add(time.Hour)
	expired, err := s.MarkProcessed(ctx, "docusign:env-1:completed", time.Hour)
	require.NoError(t, err)
	assert.True(t, expired, "key is reusable once its ttl elapsed")
}

func TestMemoryStore_Forget(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	ok, _ := s.MarkProcessed(ctx, "k", time.Hour)
	require.True(t, ok)
	require.NoError(t, s.Forget(ctx, "k"))

	ok, _ = s.MarkProcessed(ctx, "k", time.Hour)
	assert.True(t, ok)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()
	_, _ = s.MarkProcessed(ctx, "short", time.Minute)
	_, _ = s.MarkProcessed(ctx, "long", time.Hour)

	now = now.Add(2 * time.Minute)
	s.sweep()
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.MarkProcessed(context.Background(), "same", time.Minute); ok {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestNewIdempotencyStore_DefaultsToMemory(t *testing.T) {
	s, err := NewIdempotencyStore(context.Background(), config.RedisConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}
