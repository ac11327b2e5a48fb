package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/notification"
	"github.com/ytdl/ytdl-api/internal/testutil"
)

func TestHub_PushesClientEvents(t *testing.T) {
	queue := notification.NewQueue(notification.Config{}, testutil.NopLogger())
	hub := NewHub(queue, nil, testutil.NopLogger())

	e := echo.New()
	e.GET("/ws/:client", func(c echo.Context) error {
		return hub.Serve(c, c.Param("client"))
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bob := testutil.NewDownload("bob")
	queue.Put("bob", media.NewStatusInfo(bob))

	alice := testutil.NewDownload("alice", testutil.WithStatus(media.StatusDownloading))
	alice.Progress = media.Percent(42)
	queue.Put("alice", media.NewStatusInfo(alice))

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Type != "download:status" {
		t.Errorf("Type = %q, want download:status", msg.Type)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["mediaId"] != alice.MediaID {
		t.Errorf("mediaId = %v, want %s", payload["mediaId"], alice.MediaID)
	}
	if p, ok := payload["progress"].(float64); !ok || p != 42 {
		t.Errorf("progress = %v, want 42", payload["progress"])
	}

	if n := queue.Len("bob"); n != 1 {
		t.Errorf("queue.Len(bob) = %d, other clients' events should stay queued", n)
	}

	hub.Close()
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() after Close = %d", n)
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list allows any", nil, "https://evil.example", true},
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"listed", []string{"https://app.example"}, "https://app.example", true},
		{"no origin header", []string{"https://app.example"}, "", true},
		{"unlisted", []string{"https://app.example"}, "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originChecker(tt.allowed)(req(tt.origin)); got != tt.want {
				t.Errorf("origin %q allowed = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
