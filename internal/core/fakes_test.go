package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memStore is an in-memory Store with hooks for injecting failures.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	links  map[string]*Link
	clicks []Click

	existsCalls []string
	// conflictOnCreate makes CreateLink report a conflict for these codes
	// even though CodeExists said they were free.
	conflictOnCreate map[string]bool
	clickErr         error
}

func newMemStore() *memStore {
	return &memStore{links: make(map[string]*Link), conflictOnCreate: make(map[string]bool)}
}

func (m *memStore) CreateLink(_ context.Context, l *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[l.ShortCode]; ok || m.conflictOnCreate[l.ShortCode] {
		return ErrConflict
	}
	m.nextID++
	l.ID = m.nextID
	cp := *l
	m.links[l.ShortCode] = &cp
	return nil
}

func (m *memStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls = append(m.existsCalls, code)
	_, ok := m.links[code]
	return ok, nil
}

func (m *memStore) FindLinkByCode(_ context.Context, code string) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) FindLinksByCodes(_ context.Context, codes []string) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Link
	for _, c := range codes {
		if l, ok := m.links[c]; ok {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) RecordClick(_ context.Context, c Click, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clickErr != nil {
		return m.clickErr
	}
	for _, l := range m.links {
		if l.ID != c.LinkID {
			continue
		}
		if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
			return ErrNotFound
		}
		if l.MaxClicks != nil && l.Clicks >= *l.MaxClicks {
			return ErrNotFound
		}
		l.Clicks++
		c.ID = int64(len(m.clicks) + 1)
		m.clicks = append(m.clicks, c)
		return nil
	}
	return ErrNotFound
}

func (m *memStore) FindClicksByLinkIDs(_ context.Context, ids []int64, since time.Time) ([]Click, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Click
	for _, c := range m.clicks {
		if want[c.LinkID] && !c.Timestamp.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) DeleteExpiredLinks(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for code, l := range m.links {
		if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
			delete(m.links, code)
			n++
		}
	}
	return n, nil
}

func (m *memStore) put(l Link) *Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID = m.nextID
	m.links[l.ShortCode] = &l
	return &l
}

func (m *memStore) clicksFor(id int64) []Click {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Click
	for _, c := range m.clicks {
		if c.LinkID == id {
			out = append(out, c)
		}
	}
	return out
}

// seqGen hands out codes in order, then fails.
type seqGen struct {
	codes []string
	calls int
}

func (g *seqGen) NewCode(context.Context) (string, error) {
	if g.calls >= len(g.codes) {
		return "", errors.New("seqGen: exhausted")
	}
	c := g.codes[g.calls]
	g.calls++
	return c, nil
}

// constGen always returns the same code.
type constGen string

func (g constGen) NewCode(context.Context) (string, error) { return string(g), nil }
