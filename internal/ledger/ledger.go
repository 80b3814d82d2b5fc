// Package ledger records the terminal outcome of every settlement attempt so
// the off-chain books can be reconciled against the chain.
package ledger

import (
	"context"
	"sync"
	"time"
)

// Entry is one settled (or failed) payment.
type Entry struct {
	Coin       string    `json:"coin"`
	Kind       string    `json:"kind"` // "transfer" or "withdraw"
	Recipient  string    `json:"recipient,omitempty"`
	FiatAmount string    `json:"fiatAmount,omitempty"`
	CoinAmount string    `json:"coinAmount,omitempty"`
	TxHash     string    `json:"txHash,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Ledger abstracts settlement persistence.
type Ledger interface {
	Append(ctx context.Context, entry Entry) error
	ListByCoin(ctx context.Context, coin string, limit int) ([]Entry, error)
}

// MemoryLedger is mostly for testing.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryLedger) ListByCoin(_ context.Context, coin string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Coin != coin {
			continue
		}
		out = append(out, m.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
