package limitkit

import (
	"context"
	"testing"
	"time"

	"github.com/nhalm/limitkit/store"
)

func TestListManager_AddIsMemberRemove(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	lm := NewListManager(st)
	ctx := context.Background()

	member, err := lm.IsMember(ctx, DenyList, "203.0.113.7")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if member {
		t.Error("expected identifier to not be listed")
	}

	if err := lm.Add(ctx, DenyList, "203.0.113.7", 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	member, err = lm.IsMember(ctx, DenyList, "203.0.113.7")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if !member {
		t.Error("expected identifier to be listed")
	}

	// Adding an existing member is idempotent.
	if err := lm.Add(ctx, DenyList, "203.0.113.7", 0); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}

	removed, err := lm.Remove(ctx, DenyList, "203.0.113.7")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Error("expected Remove() to report removal")
	}

	removed, err = lm.Remove(ctx, DenyList, "203.0.113.7")
	if err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
	if removed {
		t.Error("expected second Remove() to report nothing removed")
	}
}

func TestListManager_ListsAreIndependent(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	lm := NewListManager(st)
	ctx := context.Background()

	if err := lm.Add(ctx, AllowList, "203.0.113.7", 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	member, err := lm.IsMember(ctx, DenyList, "203.0.113.7")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if member {
		t.Error("allow list entry must not appear on the deny list")
	}
}

func TestListManager_Entries(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	lm := NewListManager(st)
	ctx := context.Background()

	if err := lm.Add(ctx, DenyList, "203.0.113.7", 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := lm.Add(ctx, DenyList, "203.0.113.8", time.Hour); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := lm.Add(ctx, AllowList, "203.0.113.9", 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	entries, err := lm.Entries(ctx, DenyList)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Entries() returned %d entries, want 2: %v", len(entries), entries)
	}

	byID := map[string]ListEntry{}
	for _, e := range entries {
		byID[e.Identifier] = e
	}

	perm, ok := byID["203.0.113.7"]
	if !ok {
		t.Fatal("missing permanent entry")
	}
	if perm.TTL != 0 {
		t.Errorf("permanent entry TTL = %d, want 0", perm.TTL)
	}

	temp, ok := byID["203.0.113.8"]
	if !ok {
		t.Fatal("missing temporary entry")
	}
	if temp.TTL <= 0 || temp.TTL > 3600 {
		t.Errorf("temporary entry TTL = %d, want within (0, 3600]", temp.TTL)
	}
}

func TestListManager_TemporaryEntryExpires(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	lm := NewListManager(st)
	ctx := context.Background()

	if err := lm.Add(ctx, DenyList, "203.0.113.7", 10*time.Millisecond); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	member, err := lm.IsMember(ctx, DenyList, "203.0.113.7")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if member {
		t.Error("expected temporary entry to expire")
	}
}
