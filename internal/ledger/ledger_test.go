package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

// stubRepo is an in-memory ledger.Repo that mimics the transactional
// semantics of the real store: conditional close, balance moved together with
// the position row.
type stubRepo struct {
	positions map[uint64]*models.Position
	balances  map[string]decimal.Decimal
	latest    *models.PriceTick
	nextID    uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		positions: map[uint64]*models.Position{},
		balances:  map[string]decimal.Decimal{},
		nextID:    1,
	}
}

func (s *stubRepo) OpenPositionWithBalance(_ context.Context, item *models.Position) error {
	balance := s.balances[item.UserID]
	if balance.LessThan(item.PositionValue) {
		return repository.ErrInsufficientFunds
	}
	s.balances[item.UserID] = balance.Sub(item.PositionValue)
	item.ID = s.nextID
	s.nextID++
	s.positions[item.ID] = item
	return nil
}

func (s *stubRepo) ClosePositionWithBalance(_ context.Context, params repository.ClosePositionParams) error {
	item, ok := s.positions[params.PositionID]
	if !ok || item.Status != models.PositionOpen {
		return repository.ErrPositionNotOpen
	}
	item.Status = models.PositionClosed
	exit := params.ExitPrice
	pl := params.ProfitLoss
	plPct := params.ProfitLossPct
	closedAt := params.ClosedAt
	item.ExitPrice = &exit
	item.ProfitLoss = &pl
	item.ProfitLossPct = &plPct
	item.CloseReason = params.CloseReason
	item.ExitAt = &closedAt
	s.balances[item.UserID] = s.balances[item.UserID].Add(item.PositionValue).Add(pl)
	return nil
}

func (s *stubRepo) GetPositionByID(_ context.Context, id uint64) (*models.Position, error) {
	item, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *stubRepo) EnsureAccount(_ context.Context, userID string, startingBalance decimal.Decimal) error {
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = startingBalance
	}
	return nil
}

func (s *stubRepo) LatestTick(_ context.Context, _ string) (*models.PriceTick, error) {
	return s.latest, nil
}

func newTestLedger(repo *stubRepo) *Ledger {
	return New(repo, zap.NewNop(), "XAUUSD", decimal.NewFromInt(10000))
}

func TestProfitLoss_BullGain(t *testing.T) {
	plPct, plAbs := ProfitLoss(models.InstrumentBull,
		decimal.NewFromInt(70), decimal.NewFromInt(75), decimal.NewFromInt(1000))

	wantPct := decimal.NewFromInt(5).Div(decimal.NewFromInt(70)).Mul(decimal.NewFromInt(100))
	if !plPct.Equal(wantPct) {
		t.Fatalf("plPct = %s, want %s", plPct, wantPct)
	}
	if !plAbs.Equal(decimal.NewFromFloat(71.43)) {
		t.Fatalf("plAbs = %s, want 71.43", plAbs)
	}
}

func TestProfitLoss_BearMirrors(t *testing.T) {
	_, bullAbs := ProfitLoss(models.InstrumentBull,
		decimal.NewFromInt(70), decimal.NewFromInt(75), decimal.NewFromInt(1000))
	_, bearAbs := ProfitLoss(models.InstrumentBear,
		decimal.NewFromInt(70), decimal.NewFromInt(75), decimal.NewFromInt(1000))
	if !bearAbs.Equal(bullAbs.Neg()) {
		t.Fatalf("bear plAbs = %s, want %s", bearAbs, bullAbs.Neg())
	}
}

func TestOpenClose_BalanceRoundTrip(t *testing.T) {
	repo := newStubRepo()
	lg := newTestLedger(repo)
	ctx := context.Background()

	pos, err := lg.Open(ctx, OpenParams{
		UserID:         "u1",
		InstrumentType: models.InstrumentBull,
		Mode:           models.TradingModePaper,
		EntryPrice:     decimal.NewFromInt(70),
		PositionValue:  decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !repo.balances["u1"].Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("balance after open = %s, want 9000", repo.balances["u1"])
	}

	exit := decimal.NewFromInt(75)
	closed, err := lg.Close(ctx, pos.ID, &exit, "user_close")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != models.PositionClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}
	if closed.ProfitLoss == nil || !closed.ProfitLoss.Equal(decimal.NewFromFloat(71.43)) {
		t.Fatalf("profit loss = %v, want 71.43", closed.ProfitLoss)
	}
	want := decimal.NewFromFloat(10071.43)
	if !repo.balances["u1"].Equal(want) {
		t.Fatalf("balance after close = %s, want %s", repo.balances["u1"], want)
	}
}

func TestClose_RejectsSecondClose(t *testing.T) {
	repo := newStubRepo()
	lg := newTestLedger(repo)
	ctx := context.Background()

	pos, err := lg.Open(ctx, OpenParams{
		UserID:         "u1",
		InstrumentType: models.InstrumentBear,
		Mode:           models.TradingModePaper,
		EntryPrice:     decimal.NewFromInt(2400),
		PositionValue:  decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	exit := decimal.NewFromInt(2390)
	if _, err := lg.Close(ctx, pos.ID, &exit, "user_close"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	balance := repo.balances["u1"]

	_, err = lg.Close(ctx, pos.ID, &exit, "user_close")
	if !errors.Is(err, repository.ErrPositionNotOpen) {
		t.Fatalf("second close err = %v, want ErrPositionNotOpen", err)
	}
	if !repo.balances["u1"].Equal(balance) {
		t.Fatal("second close moved the balance")
	}
}

func TestClose_AtMarketUsesLatestTick(t *testing.T) {
	repo := newStubRepo()
	lg := newTestLedger(repo)
	ctx := context.Background()

	pos, err := lg.Open(ctx, OpenParams{
		UserID:         "u1",
		InstrumentType: models.InstrumentBull,
		Mode:           models.TradingModePaper,
		EntryPrice:     decimal.NewFromInt(2400),
		PositionValue:  decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// No tick yet: at-market close must refuse rather than guess.
	if _, err := lg.Close(ctx, pos.ID, nil, "user_close"); !errors.Is(err, ErrNoMarketPrice) {
		t.Fatalf("err = %v, want ErrNoMarketPrice", err)
	}

	repo.latest = &models.PriceTick{
		Symbol:    "XAUUSD",
		Timestamp: time.Now().UTC(),
		Close:     decimal.NewFromInt(2412),
	}
	closed, err := lg.Close(ctx, pos.ID, nil, "user_close")
	if err != nil {
		t.Fatalf("close at market: %v", err)
	}
	if closed.ExitPrice == nil || !closed.ExitPrice.Equal(decimal.NewFromInt(2412)) {
		t.Fatalf("exit price = %v, want 2412", closed.ExitPrice)
	}
}

func TestOpen_RejectsOverdraft(t *testing.T) {
	repo := newStubRepo()
	lg := newTestLedger(repo)

	_, err := lg.Open(context.Background(), OpenParams{
		UserID:         "u1",
		InstrumentType: models.InstrumentBull,
		Mode:           models.TradingModePaper,
		EntryPrice:     decimal.NewFromInt(2400),
		PositionValue:  decimal.NewFromInt(20000),
	})
	if !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestUnrealized_DoesNotMutate(t *testing.T) {
	pos := &models.Position{
		InstrumentType: models.InstrumentBull,
		EntryPrice:     decimal.NewFromInt(2400),
		PositionValue:  decimal.NewFromInt(1000),
		Status:         models.PositionOpen,
	}
	plPct, plAbs := Unrealized(pos, decimal.NewFromInt(2424))
	if !plPct.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("plPct = %s, want 1", plPct)
	}
	if !plAbs.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("plAbs = %s, want 10", plAbs)
	}
	if pos.ProfitLoss != nil || pos.Status != models.PositionOpen {
		t.Fatal("unrealized computation mutated the position")
	}
}
