package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"goldwatch/internal/config"
)

// Stream consumes minute bars over a websocket feed and persists each one as
// a tick. Connection loss is routine; the loop reconnects with jittered
// backoff and resets the backoff after a healthy read.
type Stream struct {
	Repo   Repo
	Logger *zap.Logger
	Config config.StreamConfig
	Symbol string
}

func NewStream(repo Repo, logger *zap.Logger, cfg config.StreamConfig, symbol string) *Stream {
	return &Stream{Repo: repo, Logger: logger, Config: cfg, Symbol: symbol}
}

type subscribeRequest struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

func (s *Stream) Run(ctx context.Context) {
	if s.Config.URL == "" {
		s.Logger.Info("price stream disabled, no url configured")
		return
	}
	b := &backoff.Backoff{
		Min:    s.Config.ReconnectMin,
		Max:    s.Config.ReconnectMax,
		Factor: 2,
		Jitter: true,
	}
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runConn(ctx, b)
		if ctx.Err() != nil {
			s.Logger.Info("price stream stopped")
			return
		}
		delay := b.Duration()
		s.Logger.Warn("price stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Stream) runConn(ctx context.Context, b *backoff.Backoff) error {
	conn, _, err := websocket.Dial(ctx, s.Config.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")
	conn.SetReadLimit(1 << 20)

	req := subscribeRequest{Type: "subscribe", Symbol: s.Symbol, Interval: "1m"}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return err
	}
	s.Logger.Info("price stream connected", zap.String("symbol", s.Symbol))

	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if s.Config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, s.Config.ReadTimeout)
		}
		_, data, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			return err
		}
		b.Reset()
		if err := s.handleMessage(ctx, data); err != nil {
			s.Logger.Warn("bad stream message", zap.Error(err))
		}
	}
}

func (s *Stream) handleMessage(ctx context.Context, data []byte) error {
	var bar Bar
	if err := json.Unmarshal(data, &bar); err != nil {
		return fmt.Errorf("failed to parse bar: %w", err)
	}
	if bar.Timestamp.IsZero() || bar.Close.IsZero() {
		return nil
	}
	if bar.Symbol == "" {
		bar.Symbol = s.Symbol
	}
	return s.Repo.InsertPriceTick(ctx, bar.toTick())
}
