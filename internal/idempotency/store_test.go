package idempotency

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigescrow/internal/store"
)

const scope = "POST /api/v1/purchases"

func TestCompletedResponseIsReplayed(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore(), time.Hour)

	claim, replay, err := s.Begin(ctx, scope, "abc", []byte(`{"itemId":"1"}`))
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Nil(t, replay)
	require.NoError(t, claim.Complete(ctx, 201, []byte(`{"id":"e1"}`)))

	claim, replay, err = s.Begin(ctx, scope, "abc", []byte(`{"itemId":"1"}`))
	require.NoError(t, err)
	assert.Nil(t, claim)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, `{"id":"e1"}`, string(replay.Response))
}

func TestBeginRejectsConflictingUse(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore(), time.Hour)

	claim, _, err := s.Begin(ctx, scope, "abc", []byte(`{"itemId":"1"}`))
	require.NoError(t, err)

	_, _, err = s.Begin(ctx, scope, "abc", []byte(`{"itemId":"1"}`))
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, claim.Complete(ctx, 201, []byte(`{}`)))
	_, _, err = s.Begin(ctx, scope, "abc", []byte(`{"itemId":"2"}`))
	assert.ErrorIs(t, err, ErrKeyReused)

	other, replay, err := s.Begin(ctx, "POST /api/v1/escrows/e1/retry", "abc", []byte(`{"itemId":"1"}`))
	require.NoError(t, err)
	assert.NotNil(t, other)
	assert.Nil(t, replay)
}

func TestReleasedKeyCanRunAgain(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore(), time.Hour)

	claim, _, err := s.Begin(ctx, scope, "abc", nil)
	require.NoError(t, err)
	require.NoError(t, claim.Release(ctx))

	again, replay, err := s.Begin(ctx, scope, "abc", nil)
	require.NoError(t, err)
	assert.NotNil(t, again)
	assert.Nil(t, replay)
}

func TestExpiredRecordsAreReclaimed(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore(), time.Hour)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	claim, _, err := s.Begin(ctx, scope, "done", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, claim.Complete(ctx, 201, []byte(`{}`)))
	_, _, err = s.Begin(ctx, scope, "stuck", []byte("a"))
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	fresh, replay, err := s.Begin(ctx, scope, "done", []byte("b"))
	require.NoError(t, err)
	assert.NotNil(t, fresh)
	assert.Nil(t, replay)

	fresh, _, err = s.Begin(ctx, scope, "stuck", []byte("a"))
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestConcurrentBeginClaimsOnce(t *testing.T) {
	ctx := context.Background()
	docs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "idem.db"))
	require.NoError(t, err)
	defer docs.Close()
	s := NewStore(docs, time.Hour)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		claims   int
		inFlight int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, _, err := s.Begin(ctx, scope, "double-click", []byte(`{"itemId":"1"}`))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && claim != nil:
				claims++
			case assert.ErrorIs(t, err, ErrInProgress):
				inFlight++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claims)
	assert.Equal(t, callers-1, inFlight)
}
