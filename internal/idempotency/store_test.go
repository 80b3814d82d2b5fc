package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if rec, _ := store.Get(ctx, "missing"); rec != nil {
		t.Fatalf("expected nil for missing key")
	}

	record := Record{
		Coin:       "ETH",
		TxHash:     "0x4fd1c96d",
		StatusCode: 200,
		Response:   []byte(`{"outcome":"confirmed"}`),
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, "abc", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, _ := store.Get(ctx, "abc")
	if got == nil || string(got.Response) != `{"outcome":"confirmed"}` {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Coin != "ETH" || got.TxHash != "0x4fd1c96d" {
		t.Fatalf("record lost its broadcast identity: %+v", got)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := Record{
		StatusCode: 200,
		Response:   []byte("stale"),
		CreatedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
	}
	if err := store.Save(ctx, "old", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if got, _ := store.Get(ctx, "old"); got != nil {
		t.Fatalf("expected expired record to be dropped, got %+v", got)
	}
}
