package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAuthStateStore_PutAndConsume(t *testing.T) {
	store := NewMemoryAuthStateStore(time.Minute)
	record := AuthStateRecord{
		State:     "abc123",
		Connector: "demo",
		ChannelID: "c1",
	}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("put: %v", err)
	}

	consumed, err := store.Consume(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.Connector != "demo" || consumed.ChannelID != "c1" {
		t.Fatalf("unexpected record: %+v", consumed)
	}

	// second consume must fail: state is single use
	if _, err := store.Consume(context.Background(), "abc123"); err == nil {
		t.Fatalf("expected second consume to fail")
	}
}

func TestMemoryAuthStateStore_ExpiredState(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryAuthStateStore(time.Minute)
	store.Now = func() time.Time { return current }

	if err := store.Put(context.Background(), AuthStateRecord{State: "abc123", Connector: "demo", ChannelID: "c1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := store.Consume(context.Background(), "abc123"); err == nil {
		t.Fatalf("expected expired state rejection")
	}
}

func TestGenerateAuthState_Unique(t *testing.T) {
	first, err := GenerateAuthState()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := GenerateAuthState()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected distinct non-empty states")
	}
}
