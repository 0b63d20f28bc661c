package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/models"
)

var baseTime = time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

// rawAt builds a raw text message created n minutes after baseTime.
func rawAt(id string, n int, sender models.Sender) models.RawMessage {
	text := "message " + id
	return models.RawMessage{
		ID:        json.RawMessage(fmt.Sprintf("%q", id)),
		CreatedAt: baseTime.Add(time.Duration(n) * time.Minute).Format(time.RFC3339),
		Sender:    string(sender),
		Type:      string(models.KindText),
		Text:      &text,
	}
}

func history(n int) []models.RawMessage {
	raws := make([]models.RawMessage, n)
	for i := range raws {
		sender := models.SenderAuthor
		if i%2 == 0 {
			sender = models.SenderCustomer
		}
		raws[i] = rawAt(fmt.Sprintf("m%02d", i), i, sender)
	}
	return raws
}

// fakeBackend implements Backend with scripted responses.
type fakeBackend struct {
	mu        sync.Mutex
	history   []models.RawMessage
	fetchErr  error
	sendErr   error
	sendID    string
	uploadErr error
	uploadRes *api.UploadedImages
	readErr   error

	sent      []string
	uploads   [][]api.ImageFile
	readCalls int
	// block, when set, is received from before send/upload return.
	block chan struct{}
}

func (f *fakeBackend) FetchMessages(ctx context.Context, chatID, phone string) ([]models.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]models.RawMessage{}, f.history...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, chatID, phone, text string) (*api.SentMessage, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	id := f.sendID
	if id == "" {
		id = fmt.Sprintf("srv-%d", len(f.sent))
	}
	return &api.SentMessage{ID: json.RawMessage(fmt.Sprintf("%q", id))}, nil
}

func (f *fakeBackend) UploadImages(ctx context.Context, chatID, phone string, images []api.ImageFile) (*api.UploadedImages, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, images)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadRes, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, chatID, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	return f.readErr
}

func (f *fakeBackend) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
