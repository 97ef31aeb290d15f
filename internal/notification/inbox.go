package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kampus-erp/kampus/internal/shared"
)

// Inbox caches the most recent notifications of one owner. The store stays
// the source of truth; read flags are updated locally first and rolled back
// when the store rejects the write.
type Inbox struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	window int
	owner  string
	items  []Item // newest first
}

// NewInbox constructs an empty inbox keeping window items.
func NewInbox(store Store, window int, logger *slog.Logger) *Inbox {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{store: store, window: window, logger: logger}
}

// Fetch reads the recent items of owner without touching the cache.
func (i *Inbox) Fetch(ctx context.Context, owner string) ([]Item, error) {
	items, err := i.store.ListRecent(ctx, owner, i.window)
	if err != nil {
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	return items, nil
}

// Replace installs a fetched list as the cache of owner.
func (i *Inbox) Replace(owner string, items []Item) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.owner = owner
	if len(items) > i.window {
		items = items[:i.window]
	}
	i.items = append([]Item(nil), items...)
}

// Load fetches and installs the recent items of owner.
func (i *Inbox) Load(ctx context.Context, owner string) error {
	items, err := i.Fetch(ctx, owner)
	if err != nil {
		return err
	}
	i.Replace(owner, items)
	return nil
}

// Owner returns the identity the cache belongs to.
func (i *Inbox) Owner() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.owner
}

// Items returns a copy of the cached items, newest first.
func (i *Inbox) Items() []Item {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Item(nil), i.items...)
}

// UnreadCount is derived from the cached items.
func (i *Inbox) UnreadCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unreadLocked()
}

func (i *Inbox) unreadLocked() int {
	n := 0
	for _, it := range i.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one item read. Already-read items cause no write.
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	i.mu.Lock()
	owner := i.owner
	idx := i.indexLocked(id)
	if idx < 0 {
		i.mu.Unlock()
		return shared.ErrNotFound
	}
	if i.items[idx].Read {
		i.mu.Unlock()
		return nil
	}
	i.items[idx].Read = true
	i.mu.Unlock()

	if err := i.store.MarkRead(ctx, owner, id); err != nil {
		i.rollback(owner, []string{id})
		return fmt.Errorf("notification: mark read: %w", err)
	}
	return nil
}

// MarkAllRead flags every cached item read. With nothing unread it performs
// no store write.
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	i.mu.Lock()
	owner := i.owner
	var changed []string
	for idx := range i.items {
		if !i.items[idx].Read {
			i.items[idx].Read = true
			changed = append(changed, i.items[idx].ID)
		}
	}
	i.mu.Unlock()
	if len(changed) == 0 || owner == "" {
		return nil
	}

	if _, err := i.store.MarkAllRead(ctx, owner); err != nil {
		i.rollback(owner, changed)
		return fmt.Errorf("notification: mark all read: %w", err)
	}
	return nil
}

func (i *Inbox) rollback(owner string, ids []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.owner != owner {
		return
	}
	for _, id := range ids {
		if idx := i.indexLocked(id); idx >= 0 {
			i.items[idx].Read = false
		}
	}
	i.logger.Warn("notification read flag rolled back", slog.Int("items", len(ids)))
}

// Receive adds a freshly published item of the current owner, keeping the
// window. Items for other owners and duplicates are ignored.
func (i *Inbox) Receive(item Item) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.owner == "" || item.Owner != i.owner || i.indexLocked(item.ID) >= 0 {
		return false
	}
	i.items = append([]Item{item}, i.items...)
	if len(i.items) > i.window {
		i.items = i.items[:i.window]
	}
	return true
}

// Reset empties the inbox.
func (i *Inbox) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.owner = ""
	i.items = nil
}

func (i *Inbox) indexLocked(id string) int {
	for idx := range i.items {
		if i.items[idx].ID == id {
			return idx
		}
	}
	return -1
}
