package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wsTestServer upgrades one connection, checks the handshake messages, pushes
// the given payloads, then holds the connection open until the client leaves.
func wsTestServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		assert.Equal(t, "auth", auth["action"])
		assert.Equal(t, "key", auth["key"])

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "subscribe", sub["action"])

		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestStreamStoresBarsUntilCancelled(t *testing.T) {
	srv := wsTestServer(t, []string{
		`[{"T": "success", "msg": "connected"}]`,
		`[{"T": "b", "S": "AAPL", "o": 100, "h": 101, "l": 99.5, "c": 100.5, "v": 3200, "n": 80, "t": "2025-03-03T14:30:00Z"}]`,
		`not json`,
		`[{"T": "b", "S": "AAPL", "o": 100.5, "h": 102, "l": 100, "c": 101.7, "v": 2100, "n": 55, "t": "2025-03-03T14:45:00Z"}]`,
	})
	defer srv.Close()

	s := NewBarStream("key", "secret", zap.NewNop())
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	dst := &fakeBarStore{}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, dst, []string{"AAPL"}) }()

	require.Eventually(t, func() bool {
		return len(dst.stored()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}

	bars := dst.stored()
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 101.7, bars[1].Close)
}

// flakyServer authenticates each connection, delivers one bar, then drops the
// connection, counting the sessions that got that far.
func flakyServer(t *testing.T, sessions *int32) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg map[string]any
		if conn.ReadJSON(&msg) != nil || conn.ReadJSON(&msg) != nil {
			return
		}
		atomic.AddInt32(sessions, 1)
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T": "b", "S": "AAPL", "o": 100, "h": 101, "l": 99, "c": 100.5, "v": 1000, "n": 10, "t": "2025-03-03T14:30:00Z"}]`))
	}))
}

func TestStreamReconnectsIndefinitelyWhileSessionsDeliver(t *testing.T) {
	shrinkBackoff(t)

	var sessions int32
	srv := flakyServer(t, &sessions)
	defer srv.Close()

	s := NewBarStream("key", "secret", zap.NewNop())
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	dst := &fakeBarStore{}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, dst, []string{"AAPL"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Every session delivered a bar, so the drops never exhaust the retry
	// budget: the stream outlives far more disconnects than maxAttempts.
	got := atomic.LoadInt32(&sessions)
	assert.Greater(t, got, int32(maxAttempts),
		"stream stopped after %d sessions", got)
	assert.GreaterOrEqual(t, len(dst.stored()), maxAttempts)
}

func TestStreamGivesUpAfterConsecutiveConnectFailures(t *testing.T) {
	shrinkBackoff(t)

	// Not a websocket endpoint: every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no stream here", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewBarStream("key", "secret", zap.NewNop())
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	err := s.Run(context.Background(), &fakeBarStore{}, []string{"AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 5 attempts")
}
