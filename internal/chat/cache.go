// Package chat reconciles server history, realtime inserts, and optimistic
// local entries into the message list a chat view renders.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/hoxy/internal/models"
)

// DefaultPageSize is the number of messages shown per page.
const DefaultPageSize = 20

// TempIDPrefix marks ids of optimistic entries that the server has not
// confirmed yet.
const TempIDPrefix = "temp-"

// IsTempID reports whether id belongs to an unconfirmed optimistic entry.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// HistoryFetcher loads the full message history of a chat.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, chatID, phone string) ([]models.RawMessage, error)
}

// CacheOpts holds parameters for creating a Cache.
type CacheOpts struct {
	Role     models.Sender  // the local participant; defaults to customer
	PageSize int            // messages per page; defaults to DefaultPageSize
	Location *time.Location // zone for labels and day grouping; defaults to time.Local
	// For testing: override the clock used for optimistic entries.
	Now func() time.Time
}

// Cache holds one chat's messages. full is the sorted server history from
// the initial load; displayed is its newest displayedCount entries followed
// by live entries (realtime inserts and optimistic sends).
type Cache struct {
	role     models.Sender
	pageSize int
	loc      *time.Location
	now      func() time.Time

	mu             sync.Mutex
	full           []models.Message
	displayed      []models.Message
	displayedCount int
	loaded         bool
	loading        bool
	hasMore        bool
	closed         bool
}

// NewCache creates an empty Cache.
func NewCache(opts CacheOpts) *Cache {
	c := &Cache{
		role:     opts.Role,
		pageSize: opts.PageSize,
		loc:      opts.Location,
		now:      opts.Now,
	}
	if c.role == "" {
		c.role = models.SenderCustomer
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Role returns the local participant.
func (c *Cache) Role() models.Sender { return c.role }

// Location returns the zone messages are normalized into.
func (c *Cache) Location() *time.Location { return c.loc }

// InitialLoad fetches the complete history, sorts it by creation time, and
// displays the newest page. It returns the displayed messages.
func (c *Cache) InitialLoad(ctx context.Context, fetcher HistoryFetcher, chatID, phone string) ([]models.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.loading {
		c.mu.Unlock()
		return nil, fmt.Errorf("chat: initial load already in progress")
	}
	c.loading = true
	c.mu.Unlock()

	raws, err := fetcher.FetchMessages(ctx, chatID, phone)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if c.closed {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("chat: initial load: %w", err)
	}

	now := c.now()
	seen := make(map[string]bool, len(raws))
	full := make([]models.Message, 0, len(raws))
	for _, raw := range raws {
		m := normalizeAt(raw, c.loc, now)
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		full = append(full, m)
	}
	sort.SliceStable(full, func(i, j int) bool {
		return full[i].CreatedAt.Before(full[j].CreatedAt)
	})

	// Live entries added before the load finished stay after the history.
	var live []models.Message
	for _, m := range c.displayed {
		if !seen[m.ID] {
			live = append(live, m)
		}
	}

	c.full = full
	c.displayedCount = min(c.pageSize, len(full))
	c.displayed = append(append([]models.Message{}, full[len(full)-c.displayedCount:]...), live...)
	c.loaded = true
	c.hasMore = len(full) > c.displayedCount
	c.propagateRead()
	return c.snapshot(), nil
}

// LoadOlder merges the next page of older history into the displayed
// window by CreatedAt and returns only that batch. Live entries older than
// the window keep their place in time. It is a no-op before the initial load completes, while a load is
// in flight, and once the history is exhausted.
func (c *Cache) LoadOlder() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || c.loading || c.closed {
		return nil
	}
	if c.displayedCount >= len(c.full) {
		c.hasMore = false
		return nil
	}
	end := len(c.full) - c.displayedCount
	start := max(end-c.pageSize, 0)
	batch := append([]models.Message{}, c.full[start:end]...)

	c.displayed = mergeByTime(batch, c.displayed)
	c.displayedCount += len(batch)
	c.hasMore = c.displayedCount < len(c.full)
	return append([]models.Message{}, batch...)
}

// mergeByTime merges two CreatedAt-ordered slices. On equal timestamps
// entries from older come first.
func mergeByTime(older, current []models.Message) []models.Message {
	out := make([]models.Message, 0, len(older)+len(current))
	i, j := 0, 0
	for i < len(older) && j < len(current) {
		if current[j].CreatedAt.Before(older[i].CreatedAt) {
			out = append(out, current[j])
			j++
			continue
		}
		out = append(out, older[i])
		i++
	}
	out = append(out, older[i:]...)
	return append(out, current[j:]...)
}

// Receive merges a message from another participant. Messages whose sender
// is the local role are discarded, as are ids already known. It reports
// whether the message was added and returns the local messages it marked
// read.
func (c *Cache) Receive(m models.Message) (bool, []models.Message) {
	if m.Sender == c.role {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.insert(m) {
		return false, nil
	}
	return true, c.propagateRead()
}

// Reconcile merges a fresh history fetch. Only messages from other
// participants that are not already known are added; they are returned in
// order along with any local messages marked read.
func (c *Cache) Reconcile(raws []models.RawMessage) ([]models.Message, []models.Message) {
	now := c.now()
	msgs := make([]models.Message, 0, len(raws))
	for _, raw := range raws {
		m := normalizeAt(raw, c.loc, now)
		if m.ID == "" || m.Sender == c.role {
			continue
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil, nil
	}
	var added []models.Message
	for _, m := range msgs {
		if c.insert(m) {
			added = append(added, m)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}
	return added, c.propagateRead()
}

// insert places m in displayed order unless its id is already known.
// Callers must hold c.mu.
func (c *Cache) insert(m models.Message) bool {
	if c.closed || m.ID == "" || c.known(m.ID) {
		return false
	}
	i := sort.Search(len(c.displayed), func(i int) bool {
		return c.displayed[i].CreatedAt.After(m.CreatedAt)
	})
	c.displayed = append(c.displayed, models.Message{})
	copy(c.displayed[i+1:], c.displayed[i:])
	c.displayed[i] = m
	return true
}

func (c *Cache) known(id string) bool {
	return indexOf(c.displayed, id) >= 0 || indexOf(c.full, id) >= 0
}

func indexOf(msgs []models.Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// propagateRead marks local messages before the newest message from another
// participant as read, walking backwards until it meets one already read.
// Callers must hold c.mu.
func (c *Cache) propagateRead() []models.Message {
	last := -1
	for i := len(c.displayed) - 1; i >= 0; i-- {
		if c.displayed[i].Sender != c.role {
			last = i
			break
		}
	}
	var marked []models.Message
	for i := last - 1; i >= 0; i-- {
		m := &c.displayed[i]
		if m.Sender != c.role {
			continue
		}
		if m.IsRead {
			break
		}
		m.IsRead = true
		marked = append(marked, *m)
	}
	return marked
}

// AddPending appends an optimistic text entry for the local role.
func (c *Cache) AddPending(text string) models.Message {
	return c.addLocal(models.Message{Text: text, Kind: models.KindText})
}

// AddPendingImages appends an optimistic image entry showing previews while
// the upload is in flight.
func (c *Cache) AddPendingImages(previews []string) models.Message {
	return c.addLocal(models.Message{
		Kind:        models.KindImage,
		ImageURLs:   append([]string{}, previews...),
		IsUploading: true,
	})
}

func (c *Cache) addLocal(m models.Message) models.Message {
	now := c.now().In(c.loc)
	m.ID = TempIDPrefix + uuid.NewString()
	m.Sender = c.role
	m.CreatedAt = now
	m.Timestamp = TimeLabel(now)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return m
	}
	c.insert(m)
	return m
}

// Confirm replaces an optimistic entry's temporary id with the server id.
// If the server id is already present the optimistic entry is dropped.
func (c *Cache) Confirm(tempID, serverID string) (models.Message, bool) {
	return c.resolve(tempID, serverID, nil)
}

// CompleteUpload confirms an optimistic image entry, swapping preview URLs
// for the server's and clearing the uploading state. Previews are dropped
// even when the server returns no URLs.
func (c *Cache) CompleteUpload(tempID, serverID string, urls []string) (models.Message, bool) {
	return c.resolve(tempID, serverID, func(m *models.Message) {
		m.ImageURLs = nil
		if len(urls) > 0 {
			m.ImageURLs = append([]string{}, urls...)
		}
		m.IsUploading = false
	})
}

func (c *Cache) resolve(tempID, serverID string, update func(*models.Message)) (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.Message{}, false
	}
	i := indexOf(c.displayed, tempID)
	if i < 0 {
		return models.Message{}, false
	}
	if serverID != "" && serverID != tempID {
		if c.known(serverID) {
			c.displayed = append(c.displayed[:i], c.displayed[i+1:]...)
			return models.Message{}, false
		}
		c.displayed[i].ID = serverID
	}
	if update != nil {
		update(&c.displayed[i])
	}
	return c.displayed[i], true
}

// Remove deletes the entry with id from the displayed list.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	i := indexOf(c.displayed, id)
	if i < 0 {
		return false
	}
	c.displayed = append(c.displayed[:i], c.displayed[i+1:]...)
	return true
}

// Messages returns a copy of the displayed list.
func (c *Cache) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Cache) snapshot() []models.Message {
	return append([]models.Message{}, c.displayed...)
}

// HasMore reports whether older history remains to be displayed.
func (c *Cache) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Loaded reports whether the initial load has completed.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Close stops the cache from accepting further changes.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
