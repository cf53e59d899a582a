package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"goldwatch/internal/config"
)

// Poller pulls the latest minute bar from a REST endpoint on a fixed cadence.
// It is the fallback source when the stream is down and the only source for
// providers without a websocket feed. Duplicate minutes are absorbed by the
// tick table's first-write-wins upsert.
type Poller struct {
	Repo       Repo
	Logger     *zap.Logger
	Config     config.PollerConfig
	Symbol     string
	HTTPClient *http.Client
}

func NewPoller(repo Repo, logger *zap.Logger, cfg config.PollerConfig, symbol string) *Poller {
	return &Poller{
		Repo:       repo,
		Logger:     logger,
		Config:     cfg,
		Symbol:     symbol,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Poller) Run(ctx context.Context) {
	interval := p.Config.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.Logger.Info("price poller started", zap.String("symbol", p.Symbol), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("price poller stopped")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.Logger.Warn("price poll failed", zap.Error(err))
			}
		}
	}
}

func (p *Poller) RunOnce(ctx context.Context) error {
	bar, err := p.fetchLatest(ctx)
	if err != nil {
		return err
	}
	if bar == nil {
		return nil
	}
	return p.Repo.InsertPriceTick(ctx, bar.toTick())
}

func (p *Poller) fetchLatest(ctx context.Context) (*Bar, error) {
	if p.Config.Endpoint == "" {
		return nil, nil
	}
	url := fmt.Sprintf("%s?symbol=%s&interval=1m&limit=1", p.Config.Endpoint, p.Symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed error (%d): %s", resp.StatusCode, string(body))
	}
	var bars []Bar
	if err := json.Unmarshal(body, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, nil
	}
	bar := bars[len(bars)-1]
	if bar.Symbol == "" {
		bar.Symbol = p.Symbol
	}
	return &bar, nil
}
