package scorer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goldwatch/internal/market"
)

const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// Result is the stateless verdict of one tool over one snapshot. Score is
// bounded to [-100,100] and confidence to [0,100]; the bank enforces the
// bounds so a misbehaving tool cannot skew the fusion.
type Result struct {
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Signal     string  `json:"signal"`
	Reasoning  string  `json:"reasoning"`
}

// Context is the read-only market state every tool scores against.
type Context struct {
	Snapshot     market.Snapshot
	CurrentPrice float64
}

type Tool interface {
	Name() string
	Score(ctx context.Context, in Context) (Result, error)
}

// Bank runs a fixed set of tools over a snapshot. Tools share no state and
// run concurrently; the bank always returns exactly one result per tool, in
// registration order, substituting a zero-confidence HOLD for any tool that
// errors or overruns the per-tool budget.
type Bank struct {
	Tools   []Tool
	Logger  *zap.Logger
	Timeout time.Duration
}

// DefaultTools returns the nine scorers in their canonical order.
func DefaultTools() []Tool {
	return []Tool{
		&CadenceTool{},
		&MomentumPulseTool{},
		&VolatilityWindowTool{},
		&MicroPatternTool{},
		&SmartExitTool{},
		&ReversalMeterTool{},
		&TradeTimingTool{},
		&CorrelationRadarTool{},
		&RiskPerMinuteTool{},
	}
}

func NewBank(logger *zap.Logger, timeout time.Duration) *Bank {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bank{Tools: DefaultTools(), Logger: logger, Timeout: timeout}
}

func (b *Bank) Run(ctx context.Context, in Context) []Result {
	type indexed struct {
		idx int
		res Result
	}
	runCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	// Buffered so stragglers can still deliver after the deadline without
	// anyone listening.
	ch := make(chan indexed, len(b.Tools))
	for i, tool := range b.Tools {
		go func(idx int, t Tool) {
			ch <- indexed{idx: idx, res: b.runOne(runCtx, t, in)}
		}(i, tool)
	}

	results := make([]Result, len(b.Tools))
	filled := make([]bool, len(b.Tools))
	remaining := len(b.Tools)
	timer := time.NewTimer(b.Timeout)
	defer timer.Stop()
	for remaining > 0 {
		select {
		case m := <-ch:
			results[m.idx] = m.res
			filled[m.idx] = true
			remaining--
		case <-timer.C:
			remaining = 0
		}
	}

	for i, tool := range b.Tools {
		if !filled[i] {
			results[i] = holdResult(tool.Name(), "timed out")
			if b.Logger != nil {
				b.Logger.Warn("scorer timed out", zap.String("tool", tool.Name()))
			}
		}
		results[i] = clampResult(results[i])
	}
	return results
}

func (b *Bank) runOne(ctx context.Context, t Tool, in Context) (out Result) {
	defer func() {
		if r := recover(); r != nil {
			if b.Logger != nil {
				b.Logger.Error("scorer panicked", zap.String("tool", t.Name()), zap.Any("panic", r))
			}
			out = holdResult(t.Name(), fmt.Sprintf("panic: %v", r))
		}
	}()
	res, err := t.Score(ctx, in)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Warn("scorer failed", zap.String("tool", t.Name()), zap.Error(err))
		}
		return holdResult(t.Name(), err.Error())
	}
	if res.Name == "" {
		res.Name = t.Name()
	}
	return res
}

func holdResult(name, reason string) Result {
	return Result{
		Name:       name,
		Score:      0,
		Confidence: 0,
		Signal:     SignalHold,
		Reasoning:  fmt.Sprintf("unavailable: %s", reason),
	}
}

func clampResult(res Result) Result {
	res.Score = clamp(res.Score, -100, 100)
	res.Confidence = clamp(res.Confidence, 0, 100)
	switch res.Signal {
	case SignalBuy, SignalSell, SignalHold:
	default:
		res.Signal = SignalHold
	}
	return res
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// signalFromScore maps a score to a vote with a small neutral band.
func signalFromScore(score float64) string {
	switch {
	case score > 10:
		return SignalBuy
	case score < -10:
		return SignalSell
	default:
		return SignalHold
	}
}
