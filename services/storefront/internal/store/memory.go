package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryBackend keeps slot tokens in process memory. Used when no Redis
// address is configured, and in tests.
type MemoryBackend struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryBackend builds an in-memory slot store; ttl <= 0 disables expiry.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (b *MemoryBackend) Get(_ context.Context, slot string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[slot]
	if !ok {
		return "", false, nil
	}
	now := b.now()
	if b.ttl > 0 && now.After(entry.expires) {
		delete(b.entries, slot)
		return "", false, nil
	}
	if b.ttl > 0 {
		entry.expires = now.Add(b.ttl)
		b.entries[slot] = entry
	}
	return entry.token, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, slot, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[slot] = memoryEntry{token: token, expires: b.now().Add(b.ttl)}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, slot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, slot)
	return nil
}

// Sweep drops expired slots and returns how many were removed.
func (b *MemoryBackend) Sweep() int {
	if b.ttl <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	removed := 0
	for slot, entry := range b.entries {
		if now.After(entry.expires) {
			delete(b.entries, slot)
			removed++
		}
	}
	return removed
}

// Len reports the number of live slots.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
