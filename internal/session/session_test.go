package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_PutGetClear(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	d, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if d != nil {
		t.Fatalf("expected no draft, got %+v", d)
	}

	draft := Draft{Intent: "transfer", RecipientCode: "AbCd1234EfGh", CreatedAt: time.Now()}
	if err := s.Put(ctx, 1, draft); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	d, err = s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if d == nil || d.Intent != "transfer" || d.RecipientCode != "AbCd1234EfGh" {
		t.Fatalf("unexpected draft: %+v", d)
	}

	if err := s.Clear(ctx, 1); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	d, err = s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if d != nil {
		t.Fatalf("draft must be gone after Clear, got %+v", d)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	current := time.Now()
	s.now = func() time.Time { return current }

	ctx := context.Background()
	if err := s.Put(ctx, 7, Draft{Intent: "withdraw"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	current = current.Add(2 * time.Minute)

	d, err := s.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if d != nil {
		t.Fatalf("expired draft must not be returned, got %+v", d)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	if err := s.Put(ctx, 3, Draft{Intent: "withdraw"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.Put(ctx, 3, Draft{Intent: "transfer", RecipientCode: "x"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	d, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if d == nil || d.Intent != "transfer" {
		t.Fatalf("draft must be overwritten, got %+v", d)
	}
}
