// File: internal/healing/history.go
package healing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

// History is the process-wide healing history: a synchronized mapping from an
// original locator to the locator that last healed it. Entries are only ever
// added or overwritten; a later successful heal replaces the prior value
// because pages evolve.
type History struct {
	mu      sync.RWMutex
	entries map[schemas.Locator]schemas.Locator
	store   schemas.HistoryStore
	logger  *zap.Logger
}

// NewHistory creates a history cache. When a store is provided, previously
// persisted entries are loaded eagerly; a load failure degrades to an empty
// in-memory history rather than failing the run.
func NewHistory(ctx context.Context, store schemas.HistoryStore, logger *zap.Logger) *History {
	h := &History{
		entries: make(map[schemas.Locator]schemas.Locator),
		store:   store,
		logger:  logger.Named("history"),
	}
	if store != nil {
		persisted, err := store.Load(ctx)
		if err != nil {
			h.logger.Warn("Failed to load persisted healing history, starting empty", zap.Error(err))
			return h
		}
		for original, healed := range persisted {
			h.entries[schemas.Locator(original)] = schemas.Locator(healed)
		}
		h.logger.Debug("Loaded healing history", zap.Int("entries", len(h.entries)))
	}
	return h
}

// Get returns the healed locator recorded for original, if any.
func (h *History) Get(original schemas.Locator) (schemas.Locator, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	healed, ok := h.entries[original]
	return healed, ok
}

// Put records a successful heal. The in-memory entry is written atomically
// under the lock, so readers never observe a partial entry; persistence is
// best-effort and logged on failure.
func (h *History) Put(ctx context.Context, original, healed schemas.Locator) {
	h.mu.Lock()
	h.entries[original] = healed
	h.mu.Unlock()

	if h.store == nil {
		return
	}
	if err := h.store.Put(ctx, string(original), string(healed)); err != nil {
		h.logger.Warn("Failed to persist healing history entry",
			zap.String("original", string(original)), zap.Error(err))
	}
}

// Len reports the number of recorded heals.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Snapshot returns a copy of the mapping as plain strings, suitable for
// display or serialization.
func (h *History) Snapshot() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.entries))
	for original, healed := range h.entries {
		out[string(original)] = string(healed)
	}
	return out
}
