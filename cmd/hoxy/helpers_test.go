package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeAPI is a scripted reservation API.
type fakeAPI struct {
	mu          sync.Mutex
	reservation map[string]any
	sent        []map[string]string
	uploads     int
	reads       int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/reservations/links/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") != "tok-abc" {
			http.Error(w, `{"message":"링크를 찾을 수 없습니다"}`, http.StatusNotFound)
			return
		}
		io.WriteString(w, `{
			"id": 7, "artist_id": 3, "token": "tok-abc", "product_id": 11, "is_active": true,
			"artist": {"id": 3, "name": "이작가", "brand_name": "하루 스튜디오"},
			"product": {"id": 11, "name": "프로필 촬영"},
			"unavailable_dates": ["2099-01-12"]
		}`)
	})
	mux.HandleFunc("GET /v1/artists/3/products", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"name":"프로필 촬영"},{"name":"바디 프로필"}]`)
	})
	mux.HandleFunc("POST /v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.reservation = body
		f.mu.Unlock()
		io.WriteString(w, `{"chat":{"id":42},"reservation":{"chat_id":42,"reservation_time":""}}`)
	})
	mux.HandleFunc("GET /v1/chats/42/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("phone") != "01012345678" {
			http.Error(w, `{"message":"권한이 없습니다"}`, http.StatusForbidden)
			return
		}
		io.WriteString(w, `{"messages":[
			{"id":2,"created_at":"2025-01-05T05:31:00Z","sender":"author","type":"text","text":"네 확인했습니다"},
			{"id":1,"created_at":"2025-01-05T05:30:00Z","sender":"customer","type":"text","text":"안녕하세요","isRead":false}
		]}`)
	})
	mux.HandleFunc("POST /v1/chats/42/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sent = append(f.sent, body)
		f.mu.Unlock()
		io.WriteString(w, `{"id":99}`)
	})
	mux.HandleFunc("POST /v1/chats/42/messages/image", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.uploads++
		f.mu.Unlock()
		io.WriteString(w, `{"id":100,"media_url":"[\"https://cdn.example/a.png\"]"}`)
	})
	mux.HandleFunc("POST /v1/chats/42/read", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.reads++
		f.mu.Unlock()
		io.WriteString(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

// writeConfig writes a config pointing at baseURL with a sqlite store in a
// temp dir and returns its path.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hoxy.yaml")
	content := fmt.Sprintf(`api:
  base_url: %s
  timeout_seconds: 5
chat:
  timezone: UTC
store:
  driver: sqlite
  path: %s
`, baseURL, filepath.Join(dir, "state.db"))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func mustContain(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q, got:\n%s", w, out)
		}
	}
}
