package combiner

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"goldwatch/internal/config"
	"goldwatch/internal/scorer"
)

const (
	ActionBuyBull  = "BUY_BULL"
	ActionBuyBear  = "BUY_BEAR"
	ActionSellBull = "SELL_BULL"
	ActionSellBear = "SELL_BEAR"
	ActionHold     = "HOLD"
)

// ExpectedResults is the contract size: the fusion only accepts the full
// tool bank's output, never a partial one.
const ExpectedResults = 9

// AggregationError means the fusion was handed a malformed result set. The
// pipeline treats it as fatal to the pass and leaves the previous active
// signal untouched.
type AggregationError struct {
	Got int
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("expected %d tool results, got %d", ExpectedResults, e.Got)
}

// Strategy is the deterministic trade plan attached to a non-HOLD
// recommendation. It derives from price and configuration only, never from
// the tools.
type Strategy struct {
	Entry             decimal.Decimal `json:"entry"`
	Target            decimal.Decimal `json:"target"`
	StopLoss          decimal.Decimal `json:"stop_loss"`
	SuggestedHoldTime time.Duration   `json:"suggested_hold_time"`
}

// Recommendation is the fused verdict over one tool bank run. It is derived
// state, recomputed on every pass; only the signal it may yield is persisted.
type Recommendation struct {
	Action     string
	Composite  float64
	Confidence float64
	Factors    []scorer.Result
	Strategy   *Strategy
}

// WeightPolicy turns the nine results into one composite in [-100,100].
type WeightPolicy interface {
	Name() string
	Composite(results []scorer.Result) float64
}

// ConfidenceWeighted weighs each score by its confidence, so an unsure tool
// moves the composite less than a convinced one. Zero total confidence means
// no tool has an opinion and the composite is zero.
type ConfidenceWeighted struct{}

func (ConfidenceWeighted) Name() string { return "confidence_weighted" }

func (ConfidenceWeighted) Composite(results []scorer.Result) float64 {
	var weighted, total float64
	for _, r := range results {
		weighted += r.Score * r.Confidence
		total += r.Confidence
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// EqualWeight averages the scores flat, ignoring confidence. Kept as the
// alternate policy for back-to-back comparisons.
type EqualWeight struct{}

func (EqualWeight) Name() string { return "equal_weight" }

func (EqualWeight) Composite(results []scorer.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

func PolicyByName(name string) WeightPolicy {
	if name == "equal_weight" {
		return EqualWeight{}
	}
	return ConfidenceWeighted{}
}

type Combiner struct {
	Policy WeightPolicy
	Config config.CombinerConfig
}

func New(cfg config.CombinerConfig) *Combiner {
	return &Combiner{
		Policy: PolicyByName(cfg.WeightPolicy),
		Config: cfg,
	}
}

// Combine fuses exactly nine tool results into one recommendation. Positive
// composite buys the bull certificate, negative buys the bear; a composite
// inside the deadband, an exactly-zero composite, or confidence under the
// floor all force HOLD. Overall confidence is the mean confidence of the
// tools whose score sign agrees with the final direction.
func (c *Combiner) Combine(results []scorer.Result, currentPrice decimal.Decimal) (Recommendation, error) {
	if len(results) != ExpectedResults {
		return Recommendation{}, &AggregationError{Got: len(results)}
	}

	composite := c.Policy.Composite(results)

	rec := Recommendation{
		Action:    ActionHold,
		Composite: composite,
		Factors:   results,
	}

	if composite == 0 {
		return rec, nil
	}
	if composite > -c.Config.Deadband && composite < c.Config.Deadband {
		return rec, nil
	}

	var confSum float64
	var agreeing int
	for _, r := range results {
		if (composite > 0 && r.Score > 0) || (composite < 0 && r.Score < 0) {
			confSum += r.Confidence
			agreeing++
		}
	}
	if agreeing == 0 {
		return rec, nil
	}
	confidence := confSum / float64(agreeing)
	if confidence < c.Config.ConfidenceFloor {
		return rec, nil
	}

	rec.Confidence = confidence
	if composite > 0 {
		rec.Action = ActionBuyBull
	} else {
		rec.Action = ActionBuyBear
	}
	rec.Strategy = c.buildStrategy(rec.Action, currentPrice)
	return rec, nil
}

func (c *Combiner) buildStrategy(action string, entry decimal.Decimal) *Strategy {
	targetPct := decimal.NewFromFloat(c.Config.TargetPct)
	stopPct := decimal.NewFromFloat(c.Config.StopPct)
	one := decimal.NewFromInt(1)

	st := &Strategy{
		Entry:             entry,
		SuggestedHoldTime: time.Duration(c.Config.HoldMinutes) * time.Minute,
	}
	switch action {
	case ActionBuyBull:
		st.Target = entry.Mul(one.Add(targetPct))
		st.StopLoss = entry.Mul(one.Sub(stopPct))
	case ActionBuyBear:
		st.Target = entry.Mul(one.Sub(targetPct))
		st.StopLoss = entry.Mul(one.Add(stopPct))
	}
	return st
}
