package chat

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/models"
	"github.com/zulandar/hoxy/internal/realtime"
	"github.com/zulandar/hoxy/internal/relay"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type sessionFixture struct {
	backend  *fakeBackend
	source   *realtime.MockSource
	notifier *relay.MockNotifier
	session  *Session
}

func openSession(t *testing.T, raws []models.RawMessage) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		backend:  &fakeBackend{history: raws},
		source:   realtime.NewMockSource(),
		notifier: relay.NewMockNotifier("mock"),
	}
	s, err := NewSession(SessionOpts{
		Backend:  f.backend,
		Source:   f.source,
		Notifier: f.notifier,
		ChatID:   "c1",
		Phone:    "01012345678",
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.session = s
	t.Cleanup(func() {
		s.Close()
		f.source.Close()
	})
	return f
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSession_Validation(t *testing.T) {
	if _, err := NewSession(SessionOpts{ChatID: "c1"}); err == nil {
		t.Error("expected error without backend")
	}
	if _, err := NewSession(SessionOpts{Backend: &fakeBackend{}}); err == nil {
		t.Error("expected error without chat id")
	}
}

func TestOpen_LoadsMarksReadAndSubscribes(t *testing.T) {
	f := openSession(t, history(3))
	if n := len(f.session.Messages()); n != 3 {
		t.Errorf("messages = %d, want 3", n)
	}
	waitFor(t, "mark read", func() bool { return f.backend.reads() >= 1 })
	if n := f.source.Subscribers("c1"); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}

func TestOpen_SubscribeFailureNotFatal(t *testing.T) {
	src := realtime.NewMockSource()
	src.SetSubscribeError(errors.New("realtime down"))
	s, _ := NewSession(SessionOpts{Backend: &fakeBackend{history: history(2)}, Source: src, ChatID: "c1", Phone: "010"})
	defer s.Close()
	msgs, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2", len(msgs))
	}
}

func TestRealtime_CounterpartMessageAddedAndRelayed(t *testing.T) {
	f := openSession(t, history(2))
	updates, cancel := f.session.Subscribe()
	defer cancel()

	f.source.Emit("c1", rawAt("rt-1", 30, models.SenderAuthor))
	select {
	case u := <-updates:
		if u.Type != UpdateAdded || u.ID != "rt-1" {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update for realtime message")
	}
	waitFor(t, "relay", func() bool { return len(f.notifier.Notices()) == 1 })
	if n := f.notifier.Notices()[0]; n.ChatID != "c1" || n.Text != "message rt-1" {
		t.Errorf("notice = %+v", n)
	}
	waitFor(t, "mark read after receipt", func() bool { return f.backend.reads() >= 2 })
}

func TestRealtime_OwnRoleNeverIncreasesCount(t *testing.T) {
	f := openSession(t, history(2))
	if _, err := f.session.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	before := len(f.session.Messages())

	// The server echoes our own message under its new id and under a fresh one.
	f.session.HandleEvent(rawAt("srv-1", 40, models.SenderCustomer))
	f.session.HandleEvent(rawAt("srv-other", 41, models.SenderCustomer))
	if after := len(f.session.Messages()); after != before {
		t.Errorf("displayed %d -> %d, want unchanged", before, after)
	}
	if len(f.notifier.Notices()) != 0 {
		t.Error("own message relayed")
	}
}

func TestRealtime_DuplicateEventOnce(t *testing.T) {
	f := openSession(t, history(2))
	raw := rawAt("rt-dup", 30, models.SenderAuthor)
	f.session.HandleEvent(raw)
	f.session.HandleEvent(raw)
	count := 0
	for _, m := range f.session.Messages() {
		if m.ID == "rt-dup" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("rt-dup entries = %d, want 1", count)
	}
}

func TestSend_Success(t *testing.T) {
	f := openSession(t, history(2))
	f.backend.sendID = "srv-77"
	got, err := f.session.Send(context.Background(), "안녕하세요")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ID != "srv-77" || got.Text != "안녕하세요" || got.Sender != models.SenderCustomer {
		t.Errorf("sent = %+v", got)
	}
	msgs := f.session.Messages()
	if msgs[len(msgs)-1].ID != "srv-77" {
		t.Errorf("last id = %q", msgs[len(msgs)-1].ID)
	}
	for _, m := range msgs {
		if IsTempID(m.ID) {
			t.Errorf("temp entry %q left behind", m.ID)
		}
	}
}

func TestSend_FailureRestoresComposeAndRemovesOnlyTemp(t *testing.T) {
	f := openSession(t, history(3))
	before := ids(f.session.Messages())
	f.backend.sendErr = &api.NetworkError{Op: "send message", Timeout: true}

	_, err := f.session.Send(context.Background(), "다시 보내주세요")
	if err == nil {
		t.Fatal("expected error")
	}
	if !api.IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false", err)
	}
	if got := f.session.Compose(); got != "다시 보내주세요" {
		t.Errorf("Compose() = %q, want original text", got)
	}
	if got := ids(f.session.Messages()); !reflect.DeepEqual(got, before) {
		t.Errorf("messages = %v, want %v", got, before)
	}
}

func TestSend_TrimsText(t *testing.T) {
	f := openSession(t, history(1))
	got, err := f.session.Send(context.Background(), "  hi  \n")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Text != "hi" {
		t.Errorf("Text = %q, want %q", got.Text, "hi")
	}
	if !reflect.DeepEqual(f.backend.sent, []string{"hi"}) {
		t.Errorf("sent = %q", f.backend.sent)
	}

	f.backend.sendErr = errors.New("boom")
	if _, err := f.session.Send(context.Background(), "  again \n"); err == nil {
		t.Fatal("expected error")
	}
	if got := f.session.Compose(); got != "  again \n" {
		t.Errorf("Compose() = %q, want text as typed", got)
	}
}

func TestSend_InFlightGuard(t *testing.T) {
	f := openSession(t, history(1))
	f.backend.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Send(context.Background(), "first")
		done <- err
	}()
	waitFor(t, "send in flight", f.session.Sending)

	if _, err := f.session.Send(context.Background(), "second"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("second Send = %v, want ErrSendInFlight", err)
	}
	close(f.backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if !reflect.DeepEqual(f.backend.sent, []string{"first"}) {
		t.Errorf("sent = %v", f.backend.sent)
	}
}

func TestSend_Empty(t *testing.T) {
	f := openSession(t, nil)
	if _, err := f.session.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send(blank) = %v, want ErrEmptyMessage", err)
	}
}

func TestSend_ResponseAfterCloseIgnored(t *testing.T) {
	f := openSession(t, history(1))
	f.backend.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.session.Send(context.Background(), "late")
		done <- err
	}()
	waitFor(t, "send in flight", f.session.Sending)
	before := ids(f.session.Messages())

	f.session.Close()
	close(f.backend.block)
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if got := ids(f.session.Messages()); !reflect.DeepEqual(got, before) {
		t.Errorf("messages changed after close: %v -> %v", before, got)
	}
}

func TestUploadImages_Success(t *testing.T) {
	f := openSession(t, nil)
	f.backend.uploadRes = &api.UploadedImages{
		ID:       json.RawMessage(`55`),
		MediaURL: json.RawMessage(`"[\"https://cdn/a.png\"]"`),
	}
	updates, cancel := f.session.Subscribe()
	defer cancel()

	got, err := f.session.UploadImages(context.Background(), []api.ImageFile{{Name: "a.png", Data: pngBytes}})
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	if got.ID != "55" || got.IsUploading || !reflect.DeepEqual(got.ImageURLs, []string{"https://cdn/a.png"}) {
		t.Errorf("uploaded = %+v", got)
	}
	first := <-updates
	if first.Type != UpdateAdded || !first.Message.IsUploading {
		t.Errorf("first update = %+v", first)
	}
	if len(first.Message.ImageURLs) != 1 || first.Message.ImageURLs[0][:15] != "data:image/png;" {
		t.Errorf("preview = %v", first.Message.ImageURLs)
	}
	if ct := f.backend.uploads[0][0].ContentType; ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestUploadImages_FailureRemovesEntry(t *testing.T) {
	f := openSession(t, history(2))
	before := ids(f.session.Messages())
	f.backend.uploadErr = errors.New("413")
	if _, err := f.session.UploadImages(context.Background(), []api.ImageFile{{Name: "a.png", Data: pngBytes}}); err == nil {
		t.Fatal("expected error")
	}
	if got := ids(f.session.Messages()); !reflect.DeepEqual(got, before) {
		t.Errorf("messages = %v, want %v", got, before)
	}
}

func TestUploadImages_RejectedBeforeNetwork(t *testing.T) {
	f := openSession(t, nil)
	_, err := f.session.UploadImages(context.Background(), []api.ImageFile{{Name: "a.txt", Data: []byte("hello")}})
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("err = %v, want ErrNotImage", err)
	}
	if len(f.backend.uploads) != 0 {
		t.Error("upload reached the backend")
	}
}

func TestSession_Resync(t *testing.T) {
	f := openSession(t, history(2))
	f.backend.mu.Lock()
	f.backend.history = append(f.backend.history, rawAt("missed", 20, models.SenderAuthor))
	f.backend.mu.Unlock()

	n, err := f.session.Resync(context.Background())
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if n != 1 {
		t.Errorf("added = %d, want 1", n)
	}
	waitFor(t, "relay", func() bool { return len(f.notifier.Notices()) == 1 })
	if n, _ := f.session.Resync(context.Background()); n != 0 {
		t.Errorf("second resync added %d", n)
	}
}

func TestSession_LoadOlder(t *testing.T) {
	f := openSession(t, history(25))
	batch := f.session.LoadOlder()
	if len(batch) != 5 {
		t.Errorf("batch = %d, want 5", len(batch))
	}
	if f.session.HasMore() {
		t.Error("HasMore after loading everything")
	}
}

func TestSession_MarkReadRequiresPhone(t *testing.T) {
	s, _ := NewSession(SessionOpts{Backend: &fakeBackend{}, ChatID: "c1"})
	defer s.Close()
	if err := s.MarkRead(context.Background()); err == nil {
		t.Error("expected error without phone")
	}
}

func TestSession_MarkReadFailureLoggedOnly(t *testing.T) {
	b := &fakeBackend{history: history(2), readErr: errors.New("500")}
	s, _ := NewSession(SessionOpts{Backend: b, ChatID: "c1", Phone: "010"})
	defer s.Close()
	if _, err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, "mark read", func() bool { return b.reads() >= 1 })
}

func TestSession_CloseEndsSubscription(t *testing.T) {
	f := openSession(t, nil)
	updates, _ := f.session.Subscribe()
	f.session.Close()
	if _, ok := <-updates; ok {
		t.Error("updates channel open after Close")
	}
	waitFor(t, "unsubscribe", func() bool { return f.source.Subscribers("c1") == 0 })
	if err := f.session.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
