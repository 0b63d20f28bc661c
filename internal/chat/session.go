package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/models"
	"github.com/zulandar/hoxy/internal/realtime"
	"github.com/zulandar/hoxy/internal/relay"
)

// Backend is the subset of the API client a session uses.
type Backend interface {
	HistoryFetcher
	SendMessage(ctx context.Context, chatID, phone, text string) (*api.SentMessage, error)
	UploadImages(ctx context.Context, chatID, phone string, images []api.ImageFile) (*api.UploadedImages, error)
	MarkRead(ctx context.Context, chatID, phone string) error
}

// UpdateType classifies a change to the displayed list.
type UpdateType string

const (
	UpdateAdded   UpdateType = "added"
	UpdateChanged UpdateType = "changed"
	UpdateRemoved UpdateType = "removed"
	UpdateOlder   UpdateType = "older"
)

// Update is one change pushed to subscribers. ID is the affected message id;
// for UpdateChanged after a confirmation it is the temporary id that was
// replaced.
type Update struct {
	Type    UpdateType     `json:"type"`
	ID      string         `json:"id"`
	Message models.Message `json:"message"`
}

// SessionOpts holds parameters for opening a chat session.
type SessionOpts struct {
	Backend  Backend
	Source   realtime.Source // optional; nil disables realtime
	Notifier relay.Notifier  // optional
	ChatID   string
	Phone    string // digits only; the API uses it as the credential
	Role     models.Sender
	PageSize int
	Location *time.Location
}

// Session binds a Cache to one chat: it loads history, applies realtime
// inserts, and runs sends and uploads with optimistic entries.
type Session struct {
	cache    *Cache
	backend  Backend
	source   realtime.Source
	notifier relay.Notifier
	chatID   string
	phone    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	sending bool
	compose string
	subs    map[chan Update]struct{}
}

// NewSession creates a session. Call Open to load history and subscribe.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("chat: backend is required")
	}
	if opts.ChatID == "" {
		return nil, fmt.Errorf("chat: chat id is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cache: NewCache(CacheOpts{
			Role:     opts.Role,
			PageSize: opts.PageSize,
			Location: opts.Location,
		}),
		backend:  opts.Backend,
		source:   opts.Source,
		notifier: opts.Notifier,
		chatID:   opts.ChatID,
		phone:    opts.Phone,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[chan Update]struct{}),
	}, nil
}

// ChatID returns the chat this session is bound to.
func (s *Session) ChatID() string { return s.chatID }

// Cache exposes the underlying message cache.
func (s *Session) Cache() *Cache { return s.cache }

// Open performs the initial history load, marks the chat read, and starts
// the realtime subscription. A failed subscription is logged and the
// session continues without live updates.
func (s *Session) Open(ctx context.Context) ([]models.Message, error) {
	msgs, err := s.cache.InitialLoad(ctx, s.backend, s.chatID, s.phone)
	if err != nil {
		return nil, err
	}
	s.markReadAsync()

	if s.source == nil {
		return msgs, nil
	}
	ch, err := s.source.Subscribe(s.ctx, s.chatID)
	if err != nil {
		log.Printf("chat: realtime subscribe %s: %v", s.chatID, err)
		return msgs, nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for raw := range ch {
			s.HandleEvent(raw)
		}
	}()
	return msgs, nil
}

// HandleEvent applies one realtime insert. Rows sent by the local role are
// discarded since the optimistic entry already represents them.
func (s *Session) HandleEvent(raw models.RawMessage) {
	if s.isClosed() {
		return
	}
	msg := Normalize(raw, s.cache.Location())
	if msg.Sender == s.cache.Role() {
		return
	}
	added, read := s.cache.Receive(msg)
	if added {
		s.emit(Update{Type: UpdateAdded, ID: msg.ID, Message: msg})
		s.relayAsync(msg)
	}
	for _, m := range read {
		s.emit(Update{Type: UpdateChanged, ID: m.ID, Message: m})
	}
	s.markReadAsync()
}

// Resync refetches the history and merges messages from other participants
// that were missed by the realtime stream.
func (s *Session) Resync(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	raws, err := s.backend.FetchMessages(ctx, s.chatID, s.phone)
	if err != nil {
		return 0, fmt.Errorf("chat: resync: %w", err)
	}
	if s.isClosed() {
		return 0, ErrClosed
	}
	added, read := s.cache.Reconcile(raws)
	for _, m := range added {
		s.emit(Update{Type: UpdateAdded, ID: m.ID, Message: m})
		s.relayAsync(m)
	}
	for _, m := range read {
		s.emit(Update{Type: UpdateChanged, ID: m.ID, Message: m})
	}
	if len(added) > 0 {
		s.markReadAsync()
	}
	return len(added), nil
}

// LoadOlder prepends the next page of history and returns that batch.
func (s *Session) LoadOlder() []models.Message {
	batch := s.cache.LoadOlder()
	for _, m := range batch {
		s.emit(Update{Type: UpdateOlder, ID: m.ID, Message: m})
	}
	return batch
}

// Send posts the trimmed text as the local role. An optimistic entry is
// shown at once and takes the server id on success. On failure the entry is
// removed and the text, as typed, is restored to the compose buffer.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return models.Message{}, ErrEmptyMessage
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	if s.sending {
		s.mu.Unlock()
		return models.Message{}, ErrSendInFlight
	}
	s.sending = true
	s.compose = ""
	s.mu.Unlock()

	pending := s.cache.AddPending(body)
	s.emit(Update{Type: UpdateAdded, ID: pending.ID, Message: pending})

	sent, err := s.backend.SendMessage(ctx, s.chatID, s.phone, body)

	s.mu.Lock()
	s.sending = false
	closed := s.closed
	if err != nil && !closed {
		s.compose = text
	}
	s.mu.Unlock()
	if closed {
		return models.Message{}, ErrClosed
	}

	if err != nil {
		s.cache.Remove(pending.ID)
		s.emit(Update{Type: UpdateRemoved, ID: pending.ID, Message: pending})
		return models.Message{}, fmt.Errorf("chat: send: %w", err)
	}
	confirmed, ok := s.cache.Confirm(pending.ID, api.RawID(sent.ID))
	if !ok {
		s.emit(Update{Type: UpdateRemoved, ID: pending.ID, Message: pending})
		return pending, nil
	}
	s.emit(Update{Type: UpdateChanged, ID: pending.ID, Message: confirmed})
	return confirmed, nil
}

// Sending reports whether a send is waiting for the server.
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Compose returns the text restored after a failed send.
func (s *Session) Compose() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose
}

// SetCompose replaces the compose buffer.
func (s *Session) SetCompose(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compose = text
}

// UploadImages validates and uploads images. Previews are shown in an
// optimistic entry until the server returns canonical URLs; on failure the
// entry is removed.
func (s *Session) UploadImages(ctx context.Context, files []api.ImageFile) (models.Message, error) {
	if s.isClosed() {
		return models.Message{}, ErrClosed
	}
	files, err := PrepareImages(files)
	if err != nil {
		return models.Message{}, err
	}
	previews := make([]string, len(files))
	for i, f := range files {
		previews[i] = PreviewURL(f)
	}
	pending := s.cache.AddPendingImages(previews)
	s.emit(Update{Type: UpdateAdded, ID: pending.ID, Message: pending})

	resp, err := s.backend.UploadImages(ctx, s.chatID, s.phone, files)
	if s.isClosed() {
		return models.Message{}, ErrClosed
	}
	if err != nil {
		s.cache.Remove(pending.ID)
		s.emit(Update{Type: UpdateRemoved, ID: pending.ID, Message: pending})
		return models.Message{}, fmt.Errorf("chat: upload images: %w", err)
	}
	done, ok := s.cache.CompleteUpload(pending.ID, api.RawID(resp.ID), MediaURLs(resp.MediaURL))
	if !ok {
		s.emit(Update{Type: UpdateRemoved, ID: pending.ID, Message: pending})
		return pending, nil
	}
	s.emit(Update{Type: UpdateChanged, ID: pending.ID, Message: done})
	return done, nil
}

// MarkRead tells the server the local participant has read the chat.
func (s *Session) MarkRead(ctx context.Context) error {
	if s.phone == "" {
		return fmt.Errorf("chat: mark read: phone is required")
	}
	return s.backend.MarkRead(ctx, s.chatID, s.phone)
}

func (s *Session) markReadAsync() {
	s.goBackground(func(ctx context.Context) {
		if err := s.MarkRead(ctx); err != nil {
			log.Printf("chat: mark read %s: %v", s.chatID, err)
		}
	})
}

func (s *Session) relayAsync(m models.Message) {
	if s.notifier == nil {
		return
	}
	n := relay.NoticeFromMessage(m)
	if n.ChatID == "" {
		n.ChatID = s.chatID
	}
	s.goBackground(func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.Printf("chat: relay %s: %v", s.notifier.Name(), err)
		}
	})
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Messages returns the displayed messages.
func (s *Session) Messages() []models.Message { return s.cache.Messages() }

// HasMore reports whether older history remains.
func (s *Session) HasMore() bool { return s.cache.HasMore() }

// Subscribe returns a channel of updates and a function that cancels the
// subscription. Slow subscribers miss updates rather than block the session.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 64)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

func (s *Session) emit(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the realtime subscription and background work. Responses
// that arrive afterwards leave the cache untouched. The Source itself is
// owned by the caller and stays open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()

	s.cache.Close()
	s.cancel()
	s.wg.Wait()
	return nil
}
