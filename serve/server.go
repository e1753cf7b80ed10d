// Package serve streams merged rows to TCP clients as newline-delimited JSON,
// replaying history at a configurable pace for downstream consumers.
package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"sentitrade/market"
)

// Source provides the rows to replay.
type Source interface {
	Merged(symbol string, since, until time.Time) ([]market.MergedRow, error)
}

// Server replays merged rows to every client that connects.
type Server struct {
	src      Source
	since    time.Time
	interval time.Duration
	log      *zap.Logger
}

func New(src Source, since time.Time, interval time.Duration, log *zap.Logger) *Server {
	return &Server{src: src, since: since, interval: interval, log: log}
}

// wireRow is the serialized form, using the canonical column names.
type wireRow struct {
	Symbol         string   `json:"symbol"`
	Timestamp      string   `json:"timestamp"`
	Open           float64  `json:"open"`
	High           float64  `json:"high"`
	Low            float64  `json:"low"`
	Close          float64  `json:"close"`
	Volume         float64  `json:"volume"`
	SMA20          float64  `json:"SMA_20"`
	SMA50          float64  `json:"SMA_50"`
	SMA100         float64  `json:"SMA_100"`
	Volatility     float64  `json:"Volatility"`
	BollingerUpper float64  `json:"Bollinger_Upper"`
	BollingerLower float64  `json:"Bollinger_Lower"`
	Momentum5      *float64 `json:"Momentum_5"`
	Sentiment      float64  `json:"weighted_sentiment"`
	Likes          int64    `json:"likes"`
}

func toWire(r market.MergedRow) wireRow {
	return wireRow{
		Symbol:         r.Symbol,
		Timestamp:      r.Time.UTC().Format("2006-01-02 15:04:05"),
		Open:           r.Open,
		High:           r.High,
		Low:            r.Low,
		Close:          r.Close,
		Volume:         r.Volume,
		SMA20:          r.SMA20,
		SMA50:          r.SMA50,
		SMA100:         r.SMA100,
		Volatility:     r.Volatility,
		BollingerUpper: r.BollingerUpper,
		BollingerLower: r.BollingerLower,
		Momentum5:      r.Momentum5,
		Sentiment:      r.Sentiment,
		Likes:          r.Likes,
	}
}

// ListenAndServe accepts clients on addr until ctx is done. Each client gets
// its own replay from the configured start time.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("replay server listening", zap.String("addr", addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	s.log.Info("client connected", zap.String("remote", remote))

	rows, err := s.src.Merged("", s.since, time.Now().UTC())
	if err != nil {
		s.log.Error("failed to load merged rows", zap.Error(err))
		return
	}

	enc := json.NewEncoder(conn) // Encode appends the newline delimiter
	for _, r := range rows {
		if ctx.Err() != nil {
			return
		}
		if err := enc.Encode(toWire(r)); err != nil {
			s.log.Info("client disconnected",
				zap.String("remote", remote),
				zap.Error(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}

	s.log.Info("replay complete", zap.String("remote", remote), zap.Int("rows", len(rows)))
}
