package publisher

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/combiner"
	"goldwatch/internal/config"
	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

type stubRepo struct {
	signals    []*models.Signal
	queue      []*models.QueueItem
	autoUsers  []models.UserSetting
	nextID     uint64
	conflictsN int // fail the first N activation attempts
}

func newStubRepo() *stubRepo {
	return &stubRepo{nextID: 1}
}

func (s *stubRepo) InsertSignal(_ context.Context, item *models.Signal) error {
	item.ID = s.nextID
	s.nextID++
	s.signals = append(s.signals, item)
	return nil
}

func (s *stubRepo) ActivateSignal(ctx context.Context, item *models.Signal, prevActiveID *uint64) error {
	if s.conflictsN > 0 {
		s.conflictsN--
		return repository.ErrActivationConflict
	}
	active, _ := s.GetActiveSignal(ctx)
	if active == nil {
		if prevActiveID != nil {
			return repository.ErrActivationConflict
		}
	} else {
		if prevActiveID == nil || *prevActiveID != active.ID {
			return repository.ErrActivationConflict
		}
		active.IsActive = false
	}
	item.IsActive = true
	return s.InsertSignal(ctx, item)
}

func (s *stubRepo) GetActiveSignal(_ context.Context) (*models.Signal, error) {
	for _, item := range s.signals {
		if item.IsActive {
			return item, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) InsertQueueItem(_ context.Context, item *models.QueueItem) error {
	s.queue = append(s.queue, item)
	return nil
}

func (s *stubRepo) ListAutoTradingUsers(_ context.Context) ([]models.UserSetting, error) {
	return s.autoUsers, nil
}

func (s *stubRepo) activeCount() int {
	n := 0
	for _, item := range s.signals {
		if item.IsActive {
			n++
		}
	}
	return n
}

func testConfig() config.PublisherConfig {
	return config.PublisherConfig{
		StrongThreshold:   70,
		WeakThreshold:     40,
		MinConfidence:     30,
		ActivationRetries: 3,
		RecordHoldHistory: true,
	}
}

func buyBullRec(confidence float64) combiner.Recommendation {
	entry := decimal.NewFromInt(2400)
	target := decimal.NewFromFloat(2436)
	stop := decimal.NewFromFloat(2376)
	return combiner.Recommendation{
		Action:     combiner.ActionBuyBull,
		Composite:  35,
		Confidence: confidence,
		Strategy: &combiner.Strategy{
			Entry:    entry,
			Target:   target,
			StopLoss: stop,
		},
	}
}

func TestPublish_ActivatesSignal(t *testing.T) {
	repo := newStubRepo()
	p := New(repo, zap.NewNop(), testConfig())

	item, err := p.Publish(context.Background(), buyBullRec(65))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if item == nil || !item.IsActive {
		t.Fatal("expected an active signal")
	}
	if item.SignalType != models.SignalBuy {
		t.Fatalf("signal type = %s, want BUY", item.SignalType)
	}
	if item.Strength != models.StrengthModerate {
		t.Fatalf("strength = %s, want MODERATE", item.Strength)
	}
}

func TestPublish_StrengthThresholds(t *testing.T) {
	cases := []struct {
		confidence float64
		want       string
	}{
		{85, models.StrengthStrong},
		{70, models.StrengthStrong},
		{55, models.StrengthModerate},
		{40, models.StrengthWeak},
	}
	for _, tc := range cases {
		repo := newStubRepo()
		p := New(repo, zap.NewNop(), testConfig())
		item, err := p.Publish(context.Background(), buyBullRec(tc.confidence))
		if err != nil {
			t.Fatalf("publish at %.0f: %v", tc.confidence, err)
		}
		if item.Strength != tc.want {
			t.Fatalf("confidence %.0f: strength = %s, want %s", tc.confidence, item.Strength, tc.want)
		}
	}
}

func TestPublish_SwapKeepsSingleActive(t *testing.T) {
	repo := newStubRepo()
	p := New(repo, zap.NewNop(), testConfig())
	ctx := context.Background()

	first, err := p.Publish(ctx, buyBullRec(60))
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}
	second, err := p.Publish(ctx, buyBullRec(80))
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if repo.activeCount() != 1 {
		t.Fatalf("active signals = %d, want 1", repo.activeCount())
	}
	if first.IsActive {
		t.Fatal("first signal still active after swap")
	}
	if !second.IsActive {
		t.Fatal("second signal not active")
	}
}

func TestPublish_RetriesOnConflict(t *testing.T) {
	repo := newStubRepo()
	repo.conflictsN = 2
	p := New(repo, zap.NewNop(), testConfig())

	item, err := p.Publish(context.Background(), buyBullRec(60))
	if err != nil {
		t.Fatalf("publish despite transient conflicts: %v", err)
	}
	if item == nil || !item.IsActive {
		t.Fatal("expected activation after retries")
	}
}

func TestPublish_GivesUpAfterRetryBudget(t *testing.T) {
	repo := newStubRepo()
	repo.conflictsN = 10
	p := New(repo, zap.NewNop(), testConfig())

	_, err := p.Publish(context.Background(), buyBullRec(60))
	if err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
}

func TestPublish_HoldRecordsHistoryOnly(t *testing.T) {
	repo := newStubRepo()
	p := New(repo, zap.NewNop(), testConfig())

	item, err := p.Publish(context.Background(), combiner.Recommendation{Action: combiner.ActionHold})
	if err != nil {
		t.Fatalf("publish hold: %v", err)
	}
	if item != nil {
		t.Fatal("hold must not return an activated signal")
	}
	if len(repo.signals) != 1 || repo.signals[0].IsActive {
		t.Fatalf("expected one inactive history row, got %d signals", len(repo.signals))
	}
}

func TestPublish_HoldHistoryDisabled(t *testing.T) {
	repo := newStubRepo()
	cfg := testConfig()
	cfg.RecordHoldHistory = false
	p := New(repo, zap.NewNop(), cfg)

	if _, err := p.Publish(context.Background(), combiner.Recommendation{Action: combiner.ActionHold}); err != nil {
		t.Fatalf("publish hold: %v", err)
	}
	if len(repo.signals) != 0 {
		t.Fatalf("expected no rows, got %d", len(repo.signals))
	}
}

func TestPublish_BelowMinConfidenceSkips(t *testing.T) {
	repo := newStubRepo()
	p := New(repo, zap.NewNop(), testConfig())

	item, err := p.Publish(context.Background(), buyBullRec(20))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if item != nil || len(repo.signals) != 0 {
		t.Fatal("low-confidence recommendation must not publish")
	}
}

func TestPublish_EnqueuesForAutoTraders(t *testing.T) {
	repo := newStubRepo()
	repo.autoUsers = []models.UserSetting{
		{UserID: "u1", AutoTrading: true},
		{UserID: "u2", AutoTrading: true},
	}
	p := New(repo, zap.NewNop(), testConfig())

	item, err := p.Publish(context.Background(), buyBullRec(60))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(repo.queue) != 2 {
		t.Fatalf("queue items = %d, want 2", len(repo.queue))
	}
	for _, qi := range repo.queue {
		if qi.SignalID != item.ID {
			t.Fatalf("queue item signal = %d, want %d", qi.SignalID, item.ID)
		}
		if qi.Status != models.QueuePending {
			t.Fatalf("queue item status = %s, want pending", qi.Status)
		}
	}
}
