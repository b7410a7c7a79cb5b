// File: internal/healing/history_test.go
package healing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

func TestHistory_PutOverwrites(t *testing.T) {
	h := NewHistory(context.Background(), nil, zap.NewNop())

	h.Put(context.Background(), "#btn", "text=First")
	h.Put(context.Background(), "#btn", "text=Second")

	healed, ok := h.Get("#btn")
	require.True(t, ok)
	assert.Equal(t, schemas.Locator("text=Second"), healed, "a later heal replaces the prior value")
	assert.Equal(t, 1, h.Len())
}

func TestHistory_LoadsPersistedEntries(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), "#a", "text=A"))

	h := NewHistory(context.Background(), store, zap.NewNop())
	healed, ok := h.Get("#a")
	require.True(t, ok)
	assert.Equal(t, schemas.Locator("text=A"), healed)
}

func TestHistory_LoadFailureDegradesToEmpty(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("disk gone")

	h := NewHistory(context.Background(), store, zap.NewNop())
	assert.Zero(t, h.Len())

	// Writes still work against the broken store; persistence is best-effort.
	store.putErr = errors.New("disk still gone")
	h.Put(context.Background(), "#a", "#b")
	_, ok := h.Get("#a")
	assert.True(t, ok)
}

func TestHistory_ConcurrentAccess(t *testing.T) {
	h := NewHistory(context.Background(), newMemStore(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Put(context.Background(), "#hot", "text=Hot")
			_, _ = h.Get("#hot")
			_ = h.Snapshot()
		}()
	}
	wg.Wait()

	healed, ok := h.Get("#hot")
	require.True(t, ok)
	assert.Equal(t, schemas.Locator("text=Hot"), healed)
}

func TestHistory_Snapshot(t *testing.T) {
	h := NewHistory(context.Background(), nil, zap.NewNop())
	h.Put(context.Background(), "#a", "text=A")
	h.Put(context.Background(), "#b", "text=B")

	snap := h.Snapshot()
	assert.Equal(t, map[string]string{"#a": "text=A", "#b": "text=B"}, snap)

	// Mutating the snapshot must not affect the history.
	snap["#a"] = "poisoned"
	healed, _ := h.Get("#a")
	assert.Equal(t, schemas.Locator("text=A"), healed)
}
