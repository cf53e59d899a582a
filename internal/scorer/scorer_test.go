package scorer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"goldwatch/internal/market"
)

type fixedTool struct {
	name   string
	result Result
	err    error
	delay  time.Duration
}

func (t *fixedTool) Name() string { return t.name }

func (t *fixedTool) Score(ctx context.Context, _ Context) (Result, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if t.err != nil {
		return Result{}, t.err
	}
	return t.result, nil
}

func testSnapshot() market.Snapshot {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 2400 + float64(i)*0.2
	}
	return market.Snapshot{
		Symbol:    "XAUUSD",
		LastClose: closes[len(closes)-1],
		Closes:    closes,
		Highs:     closes,
		Lows:      closes,
		Volumes:   make([]float64, len(closes)),
	}
}

func TestBank_AlwaysReturnsOneResultPerTool(t *testing.T) {
	b := NewBank(zap.NewNop(), time.Second)
	results := b.Run(context.Background(), Context{
		Snapshot:     testSnapshot(),
		CurrentPrice: 2407.8,
	})
	if len(results) != len(DefaultTools()) {
		t.Fatalf("results = %d, want %d", len(results), len(DefaultTools()))
	}
	for i, tool := range DefaultTools() {
		if results[i].Name != tool.Name() {
			t.Fatalf("slot %d = %s, want %s (registration order)", i, results[i].Name, tool.Name())
		}
	}
}

func TestBank_FailingToolSubstitutesHold(t *testing.T) {
	b := &Bank{
		Tools: []Tool{
			&fixedTool{name: "ok", result: Result{Name: "ok", Score: 50, Confidence: 60, Signal: SignalBuy}},
			&fixedTool{name: "broken", err: errors.New("degenerate math")},
		},
		Logger:  zap.NewNop(),
		Timeout: time.Second,
	}
	results := b.Run(context.Background(), Context{})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	broken := results[1]
	if broken.Signal != SignalHold || broken.Score != 0 || broken.Confidence != 0 {
		t.Fatalf("failed tool result = %+v, want HOLD/0/0", broken)
	}
	if !strings.Contains(broken.Reasoning, "degenerate math") {
		t.Fatalf("reasoning %q does not note the failure", broken.Reasoning)
	}
	if results[0].Score != 50 {
		t.Fatal("sibling result was disturbed by the failure")
	}
}

func TestBank_SlowToolTimesOutToHold(t *testing.T) {
	b := &Bank{
		Tools: []Tool{
			&fixedTool{name: "fast", result: Result{Name: "fast", Score: 30, Confidence: 40, Signal: SignalBuy}},
			&fixedTool{name: "slow", delay: 5 * time.Second, result: Result{Name: "slow", Score: 90, Confidence: 90, Signal: SignalBuy}},
		},
		Logger:  zap.NewNop(),
		Timeout: 50 * time.Millisecond,
	}
	start := time.Now()
	results := b.Run(context.Background(), Context{})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("bounded wait took %s", elapsed)
	}
	if results[1].Signal != SignalHold || results[1].Confidence != 0 {
		t.Fatalf("slow tool slot = %+v, want HOLD fallback", results[1])
	}
	if results[0].Score != 30 {
		t.Fatal("fast tool result lost")
	}
}

func TestBank_ClampsOutOfRangeResults(t *testing.T) {
	b := &Bank{
		Tools: []Tool{
			&fixedTool{name: "wild", result: Result{Name: "wild", Score: 500, Confidence: 900, Signal: "PANIC"}},
		},
		Logger:  zap.NewNop(),
		Timeout: time.Second,
	}
	results := b.Run(context.Background(), Context{})
	got := results[0]
	if got.Score != 100 {
		t.Fatalf("score = %.1f, want clamped to 100", got.Score)
	}
	if got.Confidence != 100 {
		t.Fatalf("confidence = %.1f, want clamped to 100", got.Confidence)
	}
	if got.Signal != SignalHold {
		t.Fatalf("signal = %s, want unknown vote coerced to HOLD", got.Signal)
	}
}

func TestTools_InsufficientDataErrors(t *testing.T) {
	// Two bars are enough for nothing.
	in := Context{
		Snapshot: market.Snapshot{
			Closes: []float64{2400, 2401},
			Highs:  []float64{2400.5, 2401.5},
			Lows:   []float64{2399.5, 2400.5},
		},
		CurrentPrice: 2401,
	}
	for _, tool := range DefaultTools() {
		if _, err := tool.Score(context.Background(), in); err == nil {
			t.Fatalf("tool %s accepted a two-bar window", tool.Name())
		}
	}
}

func TestTools_BoundedOnTrendingWindow(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 2400 + float64(i)*0.5
	}
	snap := market.Snapshot{
		LastClose:     closes[len(closes)-1],
		Closes:        closes,
		Highs:         closes,
		Lows:          closes,
		Volumes:       make([]float64, len(closes)),
		RSI:           95,
		RSIValid:      true,
		MACD:          1.2,
		MACDSig:       0.8,
		MACDHist:      0.4,
		MACDValid:     true,
		BollUpper:     2432,
		BollMiddle:    2425,
		BollLower:     2418,
		BollValid:     true,
		SMAShort:      2428,
		SMALong:       2423,
		SMACrossValid: true,
	}
	in := Context{Snapshot: snap, CurrentPrice: snap.LastClose}
	for _, tool := range DefaultTools() {
		res, err := tool.Score(context.Background(), in)
		if err != nil {
			t.Fatalf("tool %s: %v", tool.Name(), err)
		}
		if res.Score < -100 || res.Score > 100 {
			t.Fatalf("tool %s score %.1f out of range", tool.Name(), res.Score)
		}
		if res.Confidence < 0 || res.Confidence > 100 {
			t.Fatalf("tool %s confidence %.1f out of range", tool.Name(), res.Confidence)
		}
		switch res.Signal {
		case SignalBuy, SignalSell, SignalHold:
		default:
			t.Fatalf("tool %s vote %q invalid", tool.Name(), res.Signal)
		}
	}
}

func TestCadenceTool_UpsVsDowns(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 2400 + float64(i) // every bar up
	}
	res, err := (&CadenceTool{}).Score(context.Background(), Context{
		Snapshot:     market.Snapshot{Closes: closes},
		CurrentPrice: closes[len(closes)-1],
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if res.Signal != SignalBuy {
		t.Fatalf("signal = %s on all-up tape, want BUY", res.Signal)
	}
	if res.Score != 100 {
		t.Fatalf("score = %.1f on all-up tape, want 100", res.Score)
	}
}

func TestReversalMeterTool_DetectsUpReversal(t *testing.T) {
	// Six falling bars then one up bar.
	closes := []float64{2410, 2409, 2408, 2407, 2406, 2405, 2404, 2403, 2402, 2403.5}
	res, err := (&ReversalMeterTool{}).Score(context.Background(), Context{
		Snapshot:     market.Snapshot{Closes: closes},
		CurrentPrice: closes[len(closes)-1],
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if res.Signal != SignalBuy {
		t.Fatalf("signal = %s after decline+up bar, want BUY", res.Signal)
	}
}
