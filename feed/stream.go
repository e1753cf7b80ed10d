package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sentitrade/market"
)

// BarStreamURL is the real-time bar feed (IEX tier).
const BarStreamURL = "wss://stream.data.alpaca.markets/v2/iex"

// BarStream consumes the push bar feed over a websocket and appends each bar
// to the store as it arrives.
type BarStream struct {
	url    string
	key    string
	secret string
	log    *zap.Logger
}

func NewBarStream(key, secret string, log *zap.Logger) *BarStream {
	return &BarStream{url: BarStreamURL, key: key, secret: secret, log: log}
}

type streamMessage struct {
	Type   string  `json:"T"`
	Symbol string  `json:"S"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	Count  int64   `json:"n"`
	Time   string  `json:"t"`
	Msg    string  `json:"msg"`
}

// Run connects, subscribes to bar events for symbols, and appends each bar to
// dst until ctx is done. Only consecutive failed sessions count against the
// retry budget: a session that delivered at least one message resets it, so a
// healthy stream reconnects indefinitely no matter how many times it drops
// over the process lifetime. The upsert keyed on (symbol, timestamp) makes
// redelivery after a reconnect harmless.
func (s *BarStream) Run(ctx context.Context, dst BarStore, symbols []string) error {
	failures := 0
	backoff := baseBackoff

	for {
		delivered, err := s.consume(ctx, dst, symbols)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			failures = 0
			backoff = baseBackoff
		} else {
			failures++
			if failures >= maxAttempts {
				return fmt.Errorf("connect bar stream: giving up after %d attempts: %w", maxAttempts, err)
			}
		}

		s.log.Warn("bar stream disconnected, reconnecting",
			zap.Int("consecutive_failures", failures),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if !delivered {
			backoff *= 2
		}
	}
}

// consume runs one streaming session. The first return value reports whether
// the session delivered at least one message before ending.
func (s *BarStream) consume(ctx context.Context, dst BarStore, symbols []string) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	auth := map[string]string{"action": "auth", "key": s.key, "secret": s.secret}
	if err := conn.WriteJSON(auth); err != nil {
		return false, fmt.Errorf("authenticate: %w", err)
	}

	sub := map[string]any{"action": "subscribe", "bars": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	s.log.Info("bar stream connected", zap.Strings("symbols", symbols))

	delivered := false
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return delivered, nil
			}
			return delivered, fmt.Errorf("read stream: %w", err)
		}
		delivered = true

		var msgs []streamMessage
		if err := json.Unmarshal(payload, &msgs); err != nil {
			s.log.Warn("skipping unparseable stream payload", zap.Error(err))
			continue
		}

		for _, m := range msgs {
			switch m.Type {
			case "b":
				s.handleBar(dst, m)
			case "error":
				s.log.Error("stream error message", zap.String("msg", m.Msg))
			}
		}
	}
}

func (s *BarStream) handleBar(dst BarStore, m streamMessage) {
	t, err := time.Parse(time.RFC3339, m.Time)
	if err != nil {
		s.log.Warn("skipping streamed bar with bad timestamp",
			zap.String("symbol", m.Symbol),
			zap.String("timestamp", m.Time),
			zap.Error(err))
		return
	}

	bar := market.Bar{
		Symbol:     m.Symbol,
		Time:       t.UTC(),
		Open:       m.Open,
		High:       m.High,
		Low:        m.Low,
		Close:      m.Close,
		Volume:     m.Volume,
		TradeCount: m.Count,
	}
	if _, err := dst.UpsertBars([]market.Bar{bar}); err != nil {
		s.log.Error("failed to store streamed bar",
			zap.String("symbol", m.Symbol),
			zap.Time("timestamp", bar.Time),
			zap.Error(err))
	}
}
