// Package idempotency caches terminal settlement API responses by caller key
// so a retried request replays the original outcome instead of broadcasting a
// second transaction.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Record holds a previously returned settlement response. Coin and TxHash
// identify the broadcast the cached response stands for, so replays can be
// reconciled against the settlement ledger.
type Record struct {
	Coin       string    `json:"coin"`
	TxHash     string    `json:"txHash"`
	StatusCode int       `json:"statusCode"`
	Response   []byte    `json:"response"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Store abstracts idempotency persistence.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, record Record) error
}

// MemoryStore is mostly for testing and single-instance deployments without
// a database.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(m.data, key)
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = record
	return nil
}
