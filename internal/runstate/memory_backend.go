package runstate

import "sync"

type InMemoryBackend struct {
	mu       sync.Mutex
	snapshot Snapshot
	saves    int
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{}
}

func (b *InMemoryBackend) Load() (Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return Snapshot{}, nil
	}
	return b.snapshot.Clone(), nil
}

func (b *InMemoryBackend) Save(snapshot Snapshot) error {
	if b == nil || snapshot == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = snapshot.Clone()
	b.saves++
	return nil
}

// Saves counts successful Save calls.
func (b *InMemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
