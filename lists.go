package limitkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhalm/limitkit/store"
)

// ListKind discriminates the two override lists.
type ListKind string

const (
	// AllowList members bypass rate checks with an unconditional admit.
	AllowList ListKind = "allowlist"
	// DenyList members are rejected before any algorithm runs. Deny wins
	// over allow when an identifier is on both lists.
	DenyList ListKind = "denylist"
)

// ListEntry is one allow/deny list member as reported to operators.
type ListEntry struct {
	Identifier string `json:"identifier"`
	// TTL is the remaining lifetime in seconds, 0 for permanent entries.
	TTL int64 `json:"ttl,omitempty"`
}

// ListManager maintains the allow and deny lists as presence keys in the
// store. Entries with a TTL expire on their own; permanent entries stay
// until removed.
type ListManager struct {
	store store.Store
}

// NewListManager creates a list manager over the given store.
func NewListManager(st store.Store) *ListManager {
	return &ListManager{store: st}
}

func listKey(kind ListKind, identifier string) string {
	return keyPrefix + ":" + string(kind) + ":" + identifier
}

// Add puts identifier on the list. A zero expire makes the entry permanent.
func (m *ListManager) Add(ctx context.Context, kind ListKind, identifier string, expire time.Duration) error {
	if err := m.store.Set(ctx, listKey(kind, identifier), "1", expire); err != nil {
		return fmt.Errorf("add to %s failed: %w", kind, err)
	}
	return nil
}

// Remove deletes identifier from the list. Returns false if it was not listed.
func (m *ListManager) Remove(ctx context.Context, kind ListKind, identifier string) (bool, error) {
	removed, err := m.store.Del(ctx, listKey(kind, identifier))
	if err != nil {
		return false, fmt.Errorf("remove from %s failed: %w", kind, err)
	}
	return removed, nil
}

// IsMember reports whether identifier is currently on the list.
func (m *ListManager) IsMember(ctx context.Context, kind ListKind, identifier string) (bool, error) {
	member, err := m.store.Exists(ctx, listKey(kind, identifier))
	if err != nil {
		return false, fmt.Errorf("%s check failed: %w", kind, err)
	}
	return member, nil
}

// Entries returns every member of the list with its remaining TTL.
// Backed by a pattern scan; intended for the administrative surface, not
// the request path.
func (m *ListManager) Entries(ctx context.Context, kind ListKind) ([]ListEntry, error) {
	prefix := keyPrefix + ":" + string(kind) + ":"
	keys, err := m.store.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list %s failed: %w", kind, err)
	}

	entries := make([]ListEntry, 0, len(keys))
	for _, key := range keys {
		entry := ListEntry{Identifier: strings.TrimPrefix(key, prefix)}
		if ttl, err := m.store.TTL(ctx, key); err == nil && ttl > 0 {
			entry.TTL = int64(ttl / time.Second)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
