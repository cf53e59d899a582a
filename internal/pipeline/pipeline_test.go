package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/combiner"
	"goldwatch/internal/config"
	"goldwatch/internal/models"
	"goldwatch/internal/publisher"
	"goldwatch/internal/scorer"
)

type stubStore struct {
	ticks     []models.PriceTick
	signals   []*models.Signal
	queue     []*models.QueueItem
	autoUsers []models.UserSetting
	nextID    uint64
}

func (s *stubStore) ListRecentTicks(_ context.Context, _ string, limit int) ([]models.PriceTick, error) {
	if len(s.ticks) > limit {
		return s.ticks[len(s.ticks)-limit:], nil
	}
	return s.ticks, nil
}

func (s *stubStore) InsertSignal(_ context.Context, item *models.Signal) error {
	s.nextID++
	item.ID = s.nextID
	s.signals = append(s.signals, item)
	return nil
}

func (s *stubStore) ActivateSignal(ctx context.Context, item *models.Signal, _ *uint64) error {
	for _, prev := range s.signals {
		prev.IsActive = false
	}
	item.IsActive = true
	return s.InsertSignal(ctx, item)
}

func (s *stubStore) GetActiveSignal(_ context.Context) (*models.Signal, error) {
	for _, item := range s.signals {
		if item.IsActive {
			return item, nil
		}
	}
	return nil, nil
}

func (s *stubStore) InsertQueueItem(_ context.Context, item *models.QueueItem) error {
	s.queue = append(s.queue, item)
	return nil
}

func (s *stubStore) ListAutoTradingUsers(_ context.Context) ([]models.UserSetting, error) {
	return s.autoUsers, nil
}

func mkWindow(n int, step float64) []models.PriceTick {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	out := make([]models.PriceTick, n)
	price := 2400.0
	for i := range out {
		price += step
		d := decimal.NewFromFloat(price)
		out[i] = models.PriceTick{
			Symbol:    "XAUUSD",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      d,
			High:      d.Add(decimal.NewFromFloat(0.3)),
			Low:       d.Sub(decimal.NewFromFloat(0.3)),
			Close:     d,
		}
	}
	return out
}

func testPipeline(store *stubStore) *Pipeline {
	logger := zap.NewNop()
	bank := scorer.NewBank(logger, time.Second)
	comb := combiner.New(config.CombinerConfig{
		WeightPolicy:    "confidence_weighted",
		Deadband:        10,
		ConfidenceFloor: 25,
		TargetPct:       0.015,
		StopPct:         0.01,
		HoldMinutes:     60,
	})
	pub := publisher.New(store, logger, config.PublisherConfig{
		StrongThreshold:   70,
		WeakThreshold:     40,
		MinConfidence:     30,
		ActivationRetries: 3,
	})
	return New(store, bank, comb, pub, nil, logger, config.PipelineConfig{
		WindowSize:    100,
		ScorerTimeout: time.Second,
	}, "XAUUSD")
}

func TestRunOnce_ShortWindowSkipsPass(t *testing.T) {
	store := &stubStore{ticks: mkWindow(10, 0.2)}
	p := testPipeline(store)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(store.signals) != 0 {
		t.Fatal("short window must publish nothing")
	}
}

func TestRunOnce_StrongUptrendPublishesBuy(t *testing.T) {
	store := &stubStore{ticks: mkWindow(80, 0.6)}
	p := testPipeline(store)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	active, _ := store.GetActiveSignal(context.Background())
	if active == nil {
		t.Fatal("steady uptrend produced no active signal")
	}
	if active.SignalType != models.SignalBuy {
		t.Fatalf("signal type = %s, want BUY", active.SignalType)
	}
	if active.TargetPrice == nil || active.StopLoss == nil {
		t.Fatal("published signal missing strategy prices")
	}
}

func TestRunOnce_EnqueuesForAutoTraders(t *testing.T) {
	store := &stubStore{
		ticks:     mkWindow(80, 0.6),
		autoUsers: []models.UserSetting{{UserID: "u1", AutoTrading: true}},
	}
	p := testPipeline(store)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(store.signals) == 0 {
		t.Fatal("no signal published")
	}
	if len(store.queue) != 1 {
		t.Fatalf("queue items = %d, want 1", len(store.queue))
	}
}
