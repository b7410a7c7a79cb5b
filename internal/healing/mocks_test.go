// File: internal/healing/mocks_test.go
package healing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/voidwalkr/restitch/api/schemas"
)

// fakePage is a configurable in-memory Page used across the healing tests.
type fakePage struct {
	mu       sync.Mutex
	existing map[schemas.Locator]bool
	texts    []string
	ids      []string
	siblings map[schemas.Locator][]schemas.Locator

	findErr     error
	textErr     error
	idsErr      error
	siblingsErr error

	findCalls atomic.Int64
}

func newFakePage(existing ...schemas.Locator) *fakePage {
	p := &fakePage{
		existing: make(map[schemas.Locator]bool),
		siblings: make(map[schemas.Locator][]schemas.Locator),
	}
	for _, loc := range existing {
		p.existing[loc] = true
	}
	return p
}

func (p *fakePage) Find(ctx context.Context, loc schemas.Locator) (*schemas.ElementHandle, error) {
	p.findCalls.Add(1)
	if p.findErr != nil {
		return nil, p.findErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.existing[loc] {
		return &schemas.ElementHandle{Locator: loc}, nil
	}
	return nil, nil
}

func (p *fakePage) AllText(ctx context.Context) ([]string, error) {
	return p.texts, p.textErr
}

func (p *fakePage) AllIdentifiers(ctx context.Context) ([]string, error) {
	return p.ids, p.idsErr
}

func (p *fakePage) StructuralSiblings(ctx context.Context, loc schemas.Locator) ([]schemas.Locator, error) {
	if p.siblingsErr != nil {
		return nil, p.siblingsErr
	}
	return p.siblings[loc], nil
}

// stubStrategy is a scriptable strategy for engine ordering and timeout tests.
type stubStrategy struct {
	name    string
	result  schemas.Locator
	ok      bool
	err     error
	calls   atomic.Int64
	attempt func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error)
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	s.calls.Add(1)
	if s.attempt != nil {
		return s.attempt(ctx, loc, page)
	}
	return s.result, s.ok, s.err
}

// memStore is an in-memory HistoryStore recording persisted entries.
type memStore struct {
	mu      sync.Mutex
	entries map[string]string
	loadErr error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]string)}
}

func (m *memStore) Load(ctx context.Context) (map[string]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Put(ctx context.Context, original, healed string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[original] = healed
	return nil
}
