package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/chat"
	"github.com/zulandar/hoxy/internal/models"
)

var t0 = time.Date(2025, 1, 5, 14, 30, 0, 0, time.UTC)

func textMessage(id string, sender models.Sender, minutes int) models.Message {
	return models.Message{
		ID:        id,
		Text:      "hello " + id,
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
		Timestamp: "오후 2:30",
		Sender:    sender,
		Kind:      models.KindText,
	}
}

// fakeSession implements ChatSession with scripted results.
type fakeSession struct {
	mu       sync.Mutex
	messages []models.Message
	older    []models.Message
	hasMore  bool
	compose  string
	sendErr  error
	upErr    error
	sent     []string
	uploaded [][]api.ImageFile
	updates  chan chat.Update
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages: []models.Message{
			textMessage("m1", models.SenderCustomer, 0),
			textMessage("m2", models.SenderAuthor, 1),
		},
		updates: make(chan chat.Update, 8),
	}
}

func (f *fakeSession) ChatID() string { return "42" }

func (f *fakeSession) Messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages...)
}

func (f *fakeSession) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

func (f *fakeSession) LoadOlder() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.older
	f.messages = append(append([]models.Message(nil), batch...), f.messages...)
	f.older = nil
	f.hasMore = false
	return batch
}

func (f *fakeSession) Send(_ context.Context, text string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return models.Message{}, chat.ErrEmptyMessage
	}
	f.sent = append(f.sent, text)
	if f.sendErr != nil {
		f.compose = text
		return models.Message{}, f.sendErr
	}
	return textMessage("srv-1", models.SenderCustomer, 5), nil
}

func (f *fakeSession) Compose() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compose
}

func (f *fakeSession) Sending() bool { return false }

func (f *fakeSession) UploadImages(_ context.Context, files []api.ImageFile) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, files)
	if f.upErr != nil {
		return models.Message{}, f.upErr
	}
	return models.Message{ID: "img-1", Sender: models.SenderCustomer, Kind: models.KindImage, ImageURLs: []string{"https://cdn.example/a.png"}}, nil
}

func (f *fakeSession) Subscribe() (<-chan chat.Update, func()) {
	return f.updates, func() {}
}

func testRouter(t *testing.T, sess ChatSession) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := newRouter(StartOpts{Session: sess, ArtistName: "하루 스튜디오"})
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}
	return router
}

func do(router http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStart_NilSession(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil {
		t.Fatal("expected error for nil session")
	}
	if !strings.Contains(err.Error(), "session is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "session is required")
	}
}

func TestEmbeddedAssets(t *testing.T) {
	for _, name := range []string{"assets/style.css", "assets/chat.js"} {
		data, err := assetsFS.ReadFile(name)
		if err != nil {
			t.Fatalf("%s not embedded: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	router := testRouter(t, newFakeSession())
	w := do(router, http.MethodGet, "/static/chat.js", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestIndex_RendersMessages(t *testing.T) {
	sess := newFakeSession()
	sess.hasMore = true
	router := testRouter(t, sess)

	w := do(router, http.MethodGet, "/", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	html := w.Body.String()
	for _, want := range []string{
		"하루 스튜디오",
		"2025년 1월 5일 일요일",
		`data-id="m1"`,
		"hello m2",
		"이전 메시지 보기",
		"/static/chat.js",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestIndex_StructuredCards(t *testing.T) {
	sess := newFakeSession()
	sess.messages = []models.Message{
		{ID: "r1", CreatedAt: t0, Sender: models.SenderSystem, Kind: models.KindReservationInquiry,
			Structured: &models.StructuredContent{ProductName: "프로필 촬영", DateCandidates: []string{"2025-01-10"}}},
		{ID: "r2", CreatedAt: t0, Sender: models.SenderAuthor, Kind: models.KindConfirmReservation,
			Structured: &models.StructuredContent{ProductName: "프로필 촬영", ConfirmedDate: "2025-01-10"}},
		{ID: "i1", CreatedAt: t0, Sender: models.SenderAuthor, Kind: models.KindImage,
			ImageURLs: []string{"https://cdn.example/1.png", "https://cdn.example/2.png", "https://cdn.example/3.png"}},
	}
	router := testRouter(t, sess)

	html := do(router, http.MethodGet, "/", nil, "").Body.String()
	for _, want := range []string{
		"2025. 1. 10(금)",
		"예약 확인: 프로필 촬영 - 2025-01-10",
		`class="image-row wide"`,
		"https://cdn.example/3.png",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestMessages_JSON(t *testing.T) {
	router := testRouter(t, newFakeSession())
	w := do(router, http.MethodGet, "/api/messages", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		ChatID   string            `json:"chat_id"`
		Sections []chat.DaySection `json:"sections"`
		HasMore  bool              `json:"has_more"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ChatID != "42" {
		t.Errorf("chat_id = %q, want 42", body.ChatID)
	}
	if len(body.Sections) != 1 || len(body.Sections[0].Messages) != 2 {
		t.Errorf("sections = %+v", body.Sections)
	}
}

func TestOlder_ReturnsBatchOnly(t *testing.T) {
	sess := newFakeSession()
	sess.hasMore = true
	sess.older = []models.Message{textMessage("m0", models.SenderAuthor, -1)}
	router := testRouter(t, sess)

	w := do(router, http.MethodPost, "/api/messages/older", nil, "")
	var body struct {
		Messages []models.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Messages[0].ID != "m0" {
		t.Errorf("messages = %+v, want only m0", body.Messages)
	}
	if body.HasMore {
		t.Error("has_more should be false after the last batch")
	}
}

func TestSend(t *testing.T) {
	sess := newFakeSession()
	router := testRouter(t, sess)

	w := do(router, http.MethodPost, "/api/messages", []byte(`{"text":"안녕하세요"}`), "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if len(sess.sent) != 1 || sess.sent[0] != "안녕하세요" {
		t.Errorf("sent = %v", sess.sent)
	}
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		sendErr error
		status  int
		errText string
		compose string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid request body", ""},
		{"empty", `{"text":"  "}`, nil, http.StatusBadRequest, "메시지를 입력해 주세요", ""},
		{"in flight", `{"text":"hi"}`, chat.ErrSendInFlight, http.StatusConflict, "이전 메시지를 전송 중입니다", "hi"},
		{"timeout", `{"text":"hi"}`, &api.NetworkError{Op: "send message", Err: context.DeadlineExceeded, Timeout: true}, http.StatusBadGateway, api.TimeoutMessage, "hi"},
		{"server", `{"text":"hi"}`, &api.ServerError{Status: 500, Message: "채팅방을 찾을 수 없습니다"}, http.StatusBadGateway, "채팅방을 찾을 수 없습니다", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			sess.sendErr = tt.sendErr
			router := testRouter(t, sess)

			w := do(router, http.MethodPost, "/api/messages", []byte(tt.body), "application/json")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.errText {
				t.Errorf("error = %q, want %q", body["error"], tt.errText)
			}
			if tt.status == http.StatusBadGateway && body["compose"] != tt.compose {
				t.Errorf("compose = %q, want %q", body["compose"], tt.compose)
			}
		})
	}
}

func multipartImages(t *testing.T, n int) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i := 0; i < n; i++ {
		fw, err := mw.CreateFormFile("images", "photo.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	}
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	sess := newFakeSession()
	router := testRouter(t, sess)

	body, ct := multipartImages(t, 2)
	w := do(router, http.MethodPost, "/api/images", body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if len(sess.uploaded) != 1 || len(sess.uploaded[0]) != 2 {
		t.Fatalf("uploaded = %v", sess.uploaded)
	}
	if sess.uploaded[0][0].Name != "photo.png" {
		t.Errorf("name = %q", sess.uploaded[0][0].Name)
	}
}

func TestUpload_TooMany(t *testing.T) {
	sess := newFakeSession()
	router := testRouter(t, sess)

	body, ct := multipartImages(t, chat.MaxImages+1)
	w := do(router, http.MethodPost, "/api/images", body, ct)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(sess.uploaded) != 0 {
		t.Error("session received an over-limit upload")
	}
}

func TestUpload_Rejected(t *testing.T) {
	sess := newFakeSession()
	sess.upErr = chat.ErrNotImage
	router := testRouter(t, sess)

	body, ct := multipartImages(t, 1)
	w := do(router, http.MethodPost, "/api/images", body, ct)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "이미지 파일만") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUpload_Failed(t *testing.T) {
	sess := newFakeSession()
	sess.upErr = errors.New("boom")
	router := testRouter(t, sess)

	body, ct := multipartImages(t, 1)
	w := do(router, http.MethodPost, "/api/images", body, ct)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestEvents_StreamsUpdates(t *testing.T) {
	sess := newFakeSession()
	srv := httptest.NewServer(testRouter(t, sess))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q, want text/event-stream", ct)
	}

	sess.updates <- chat.Update{Type: chat.UpdateAdded, ID: "m3", Message: textMessage("m3", models.SenderAuthor, 2)}
	close(sess.updates)

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	want := []string{"connected", "added", "closed"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	writeSSE(&buf, "added", map[string]string{"id": "m1"})
	if got, want := buf.String(), "event: added\ndata: {\"id\":\"m1\"}\n\n"; got != want {
		t.Errorf("writeSSE = %q, want %q", got, want)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	router := testRouter(t, newFakeSession())
	w := do(router, http.MethodGet, "/nonexistent", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
