package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zulandar/hoxy/internal/models"
)

const (
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits consecutive reconnection retries.
	maxReconnectAttempts = 10
	// defaultHeartbeat is the Phoenix heartbeat interval.
	defaultHeartbeat = 25 * time.Second
	// joinTimeout bounds the wait for the channel join reply.
	joinTimeout = 10 * time.Second
)

// envelope is a Phoenix channel message.
type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type joinReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type   string            `json:"type"`
		Schema string            `json:"schema"`
		Table  string            `json:"table"`
		Record models.RawMessage `json:"record"`
	} `json:"data"`
}

// Supabase subscribes to postgres_changes INSERT events through Supabase
// Realtime's Phoenix channel protocol.
type Supabase struct {
	url       string
	apiKey    string
	schema    string
	table     string
	heartbeat time.Duration
	dialer    *websocket.Dialer
	ref       atomic.Uint64

	mu           sync.Mutex
	closed       bool
	cancels      map[uint64]context.CancelFunc
	nextSub      uint64
	wg           sync.WaitGroup
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// SupabaseOpts holds parameters for creating a Supabase source.
type SupabaseOpts struct {
	URL       string // wss://<ref>.supabase.co/realtime/v1/websocket
	APIKey    string // anon key, also sent as the channel access token
	Schema    string // defaults to public
	Table     string // defaults to messages
	Heartbeat time.Duration
	// For testing: inject a dialer.
	Dialer *websocket.Dialer
}

// NewSupabase creates a Supabase source. No connection is made until
// Subscribe.
func NewSupabase(opts SupabaseOpts) (*Supabase, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("realtime: url is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("realtime: api key is required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	q := u.Query()
	if q.Get("apikey") == "" {
		q.Set("apikey", opts.APIKey)
	}
	if q.Get("vsn") == "" {
		q.Set("vsn", "1.0.0")
	}
	u.RawQuery = q.Encode()

	s := &Supabase{
		url:          u.String(),
		apiKey:       opts.APIKey,
		schema:       opts.Schema,
		table:        opts.Table,
		heartbeat:    opts.Heartbeat,
		dialer:       opts.Dialer,
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}
	if s.schema == "" {
		s.schema = "public"
	}
	if s.table == "" {
		s.table = "messages"
	}
	if s.heartbeat <= 0 {
		s.heartbeat = defaultHeartbeat
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	return s, nil
}

// Subscribe connects, joins the chat's channel, and streams inserts. The
// first connection is made before returning so a bad URL or key fails
// fast; later drops are retried with exponential backoff.
func (s *Supabase) Subscribe(ctx context.Context, chatID string) (<-chan models.RawMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("realtime: source closed")
	}
	subCtx, cancel := context.WithCancel(ctx)
	if s.cancels == nil {
		s.cancels = make(map[uint64]context.CancelFunc)
	}
	s.nextSub++
	id := s.nextSub
	s.cancels[id] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	topic := "realtime:chat-" + chatID + "-" + uuid.NewString()[:8]
	conn, err := s.connect(subCtx, topic, chatID)
	if err != nil {
		s.release(id)
		return nil, err
	}

	out := make(chan models.RawMessage, 100)
	go func() {
		defer s.release(id)
		defer close(out)
		s.runWithReconnect(subCtx, conn, topic, chatID, out)
	}()
	return out, nil
}

// release forgets subscription id, cancels its context and marks it done.
func (s *Supabase) release(id uint64) {
	s.mu.Lock()
	cancel := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Done()
}

// Close cancels all subscriptions and waits for them to stop.
func (s *Supabase) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Supabase) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

// connect dials and joins topic, returning once the join is acknowledged.
func (s *Supabase) connect(ctx context.Context, topic, chatID string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	joinRef := s.nextRef()
	join := map[string]any{
		"topic":    topic,
		"event":    "phx_join",
		"ref":      joinRef,
		"join_ref": joinRef,
		"payload": map[string]any{
			"config": map[string]any{
				"broadcast": map[string]any{"self": false},
				"presence":  map[string]any{"key": ""},
				"postgres_changes": []map[string]string{{
					"event":  "INSERT",
					"schema": s.schema,
					"table":  s.table,
					"filter": "chat_id=eq." + chatID,
				}},
			},
			"access_token": s.apiKey,
		},
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime: join: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(joinTimeout))
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			conn.Close()
			return nil, fmt.Errorf("realtime: join: %w", err)
		}
		if env.Event != "phx_reply" || env.Ref == nil || *env.Ref != joinRef {
			continue
		}
		var reply joinReply
		if err := json.Unmarshal(env.Payload, &reply); err != nil {
			conn.Close()
			return nil, fmt.Errorf("realtime: join reply: %w", err)
		}
		if reply.Status != "ok" {
			conn.Close()
			return nil, fmt.Errorf("realtime: join %s: %s %s", topic, reply.Status, reply.Response)
		}
		break
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// runWithReconnect reads from conn until it fails, then redials with
// exponential backoff until ctx is done or attempts run out.
func (s *Supabase) runWithReconnect(ctx context.Context, conn *websocket.Conn, topic, chatID string, out chan<- models.RawMessage) {
	attempt := 0
	for {
		err := s.read(ctx, conn, topic, out)
		if ctx.Err() != nil {
			return
		}
		log.Printf("realtime: %s: connection lost: %v", topic, err)

		for {
			if attempt >= s.maxReconnect {
				log.Printf("realtime: %s: giving up after %d reconnect attempts", topic, attempt)
				return
			}
			wait := time.Duration(math.Pow(2, float64(attempt))) * s.baseBackoff
			if wait > s.maxBackoff {
				wait = s.maxBackoff
			}
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			conn, err = s.connect(ctx, topic, chatID)
			if err == nil {
				attempt = 0
				break
			}
			log.Printf("realtime: %s: reconnect attempt %d: %v", topic, attempt, err)
		}
	}
}

// read pumps one connection. It owns conn and closes it on return.
func (s *Supabase) read(ctx context.Context, conn *websocket.Conn, topic string, out chan<- models.RawMessage) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			case <-done:
				return
			case <-ticker.C:
				hb := map[string]any{"topic": "phoenix", "event": "heartbeat", "payload": map[string]any{}, "ref": s.nextRef()}
				if err := conn.WriteJSON(hb); err != nil {
					return
				}
			}
		}
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.Topic != topic {
			continue
		}
		switch env.Event {
		case "postgres_changes":
			var p changePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Printf("realtime: %s: decode change: %v", topic, err)
				continue
			}
			if p.Data.Type != "INSERT" {
				continue
			}
			select {
			case out <- p.Data.Record:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "phx_error", "phx_close":
			return fmt.Errorf("channel %s", env.Event)
		}
	}
}
