package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var errInsufficientData = errors.New("insufficient data")

// CadenceTool scores the up/down cadence of recent bars: a lopsided run of
// rising or falling minutes is read as directional pressure.
type CadenceTool struct{}

func (t *CadenceTool) Name() string { return "cadence" }

func (t *CadenceTool) Score(_ context.Context, in Context) (Result, error) {
	closes := in.Snapshot.Closes
	const window = 15
	if len(closes) < window+1 {
		return Result{}, errInsufficientData
	}
	recent := closes[len(closes)-window-1:]
	ups, downs := 0, 0
	for i := 1; i < len(recent); i++ {
		switch {
		case recent[i] > recent[i-1]:
			ups++
		case recent[i] < recent[i-1]:
			downs++
		}
	}
	total := ups + downs
	if total == 0 {
		return Result{
			Name:       t.Name(),
			Signal:     SignalHold,
			Confidence: 10,
			Reasoning:  "flat tape, no directional cadence",
		}, nil
	}
	score := float64(ups-downs) / float64(window) * 100
	confidence := math.Abs(score) * 0.8
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("%d up vs %d down bars over last %d minutes", ups, downs, window),
	}, nil
}

// MomentumPulseTool reads MACD histogram direction and its change against the
// prior bar as momentum acceleration.
type MomentumPulseTool struct{}

func (t *MomentumPulseTool) Name() string { return "momentum_pulse" }

func (t *MomentumPulseTool) Score(_ context.Context, in Context) (Result, error) {
	snap := in.Snapshot
	if !snap.MACDValid || in.CurrentPrice <= 0 {
		return Result{}, errInsufficientData
	}
	// Histogram in basis points of price keeps the score comparable across
	// price levels.
	histBps := snap.MACDHist / in.CurrentPrice * 10000
	score := clamp(histBps*20, -100, 100)
	confidence := math.Min(math.Abs(score)+20, 90)
	direction := "contracting"
	if snap.MACD > snap.MACDSig {
		direction = "expanding"
	}
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("MACD histogram %.4f (%s), %.1f bps of price", snap.MACDHist, direction, histBps),
	}, nil
}

// VolatilityWindowTool positions the current price inside the Bollinger
// channel: hugging the lower band is read as stretched-down, the upper band
// as stretched-up.
type VolatilityWindowTool struct{}

func (t *VolatilityWindowTool) Name() string { return "volatility_window" }

func (t *VolatilityWindowTool) Score(_ context.Context, in Context) (Result, error) {
	snap := in.Snapshot
	if !snap.BollValid {
		return Result{}, errInsufficientData
	}
	width := snap.BollUpper - snap.BollLower
	if width <= 0 {
		return Result{}, errors.New("degenerate bollinger channel")
	}
	// 0 at the lower band, 1 at the upper.
	pos := (in.CurrentPrice - snap.BollLower) / width
	score := clamp((0.5-pos)*200, -100, 100)
	widthPct := width / snap.BollMiddle * 100
	confidence := clamp(math.Abs(score)*0.7+widthPct*5, 0, 85)
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("price at %.0f%% of bollinger channel, width %.2f%%", pos*100, widthPct),
	}, nil
}

// MicroPatternTool scans the last few bars for staircase patterns: three
// consecutive higher closes or lower closes.
type MicroPatternTool struct{}

func (t *MicroPatternTool) Name() string { return "micro_pattern" }

func (t *MicroPatternTool) Score(_ context.Context, in Context) (Result, error) {
	closes := in.Snapshot.Closes
	if len(closes) < 4 {
		return Result{}, errInsufficientData
	}
	last := closes[len(closes)-4:]
	rising := last[1] > last[0] && last[2] > last[1] && last[3] > last[2]
	falling := last[1] < last[0] && last[2] < last[1] && last[3] < last[2]
	switch {
	case rising:
		move := (last[3] - last[0]) / last[0] * 100
		score := clamp(40+move*100, 0, 100)
		return Result{
			Name:       t.Name(),
			Score:      score,
			Confidence: 55,
			Signal:     SignalBuy,
			Reasoning:  fmt.Sprintf("three rising closes, +%.3f%% over the run", move),
		}, nil
	case falling:
		move := (last[0] - last[3]) / last[0] * 100
		score := clamp(-40-move*100, -100, 0)
		return Result{
			Name:       t.Name(),
			Score:      score,
			Confidence: 55,
			Signal:     SignalSell,
			Reasoning:  fmt.Sprintf("three falling closes, -%.3f%% over the run", move),
		}, nil
	default:
		return Result{
			Name:       t.Name(),
			Signal:     SignalHold,
			Confidence: 15,
			Reasoning:  "no staircase pattern in last three bars",
		}, nil
	}
}

// SmartExitTool votes against chasing a stretched move: RSI past the classic
// 70/30 thresholds argues for fading, not following.
type SmartExitTool struct{}

func (t *SmartExitTool) Name() string { return "smart_exit" }

func (t *SmartExitTool) Score(_ context.Context, in Context) (Result, error) {
	snap := in.Snapshot
	if !snap.RSIValid {
		return Result{}, errInsufficientData
	}
	rsi := snap.RSI
	var score float64
	switch {
	case rsi < 30:
		score = 100 * (30 - rsi) / 30
	case rsi > 70:
		score = -100 * (rsi - 70) / 30
	default:
		score = (50 - rsi) * 0.8
	}
	confidence := clamp(math.Abs(score)+10, 0, 90)
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("RSI14 at %.1f", rsi),
	}, nil
}

// ReversalMeterTool looks for an exhausted streak followed by a counter bar,
// the classic one-bar reversal setup.
type ReversalMeterTool struct{}

func (t *ReversalMeterTool) Name() string { return "reversal_meter" }

func (t *ReversalMeterTool) Score(_ context.Context, in Context) (Result, error) {
	closes := in.Snapshot.Closes
	const lookback = 8
	if len(closes) < lookback+2 {
		return Result{}, errInsufficientData
	}
	n := len(closes)
	lastDelta := closes[n-1] - closes[n-2]
	// Count the streak direction before the last bar.
	streak := 0
	for i := n - 2; i > n-2-lookback && i > 0; i-- {
		d := closes[i] - closes[i-1]
		if d == 0 {
			break
		}
		if streak == 0 {
			if d > 0 {
				streak = 1
			} else {
				streak = -1
			}
			continue
		}
		if (d > 0) == (streak > 0) {
			if streak > 0 {
				streak++
			} else {
				streak--
			}
		} else {
			break
		}
	}
	if abs := math.Abs(float64(streak)); abs >= 4 {
		// Streak down plus an up bar: reversal up. And vice versa.
		if streak < 0 && lastDelta > 0 {
			score := clamp(abs*12, 0, 100)
			return Result{
				Name:       t.Name(),
				Score:      score,
				Confidence: clamp(abs*10, 0, 75),
				Signal:     SignalBuy,
				Reasoning:  fmt.Sprintf("up bar after %d-bar decline", int(abs)),
			}, nil
		}
		if streak > 0 && lastDelta < 0 {
			score := clamp(-abs*12, -100, 0)
			return Result{
				Name:       t.Name(),
				Score:      score,
				Confidence: clamp(abs*10, 0, 75),
				Signal:     SignalSell,
				Reasoning:  fmt.Sprintf("down bar after %d-bar advance", int(abs)),
			}, nil
		}
	}
	return Result{
		Name:       t.Name(),
		Signal:     SignalHold,
		Confidence: 10,
		Reasoning:  "no exhausted streak to reverse",
	}, nil
}

// TradeTimingTool reads the short/long SMA relationship: side of the cross
// gives direction, distance between the averages gives conviction.
type TradeTimingTool struct{}

func (t *TradeTimingTool) Name() string { return "trade_timing" }

func (t *TradeTimingTool) Score(_ context.Context, in Context) (Result, error) {
	snap := in.Snapshot
	if !snap.SMACrossValid || snap.SMALong <= 0 {
		return Result{}, errInsufficientData
	}
	spreadPct := (snap.SMAShort - snap.SMALong) / snap.SMALong * 100
	score := clamp(spreadPct*300, -100, 100)
	confidence := clamp(math.Abs(score)*0.8+15, 0, 85)
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("SMA5 %.2f vs SMA20 %.2f, spread %.3f%%", snap.SMAShort, snap.SMALong, spreadPct),
	}, nil
}

// CorrelationRadarTool measures how linearly the window trends: the Pearson
// correlation of close against time. A tight drift in either direction scores
// with the drift; noise scores near zero.
type CorrelationRadarTool struct{}

func (t *CorrelationRadarTool) Name() string { return "correlation_radar" }

func (t *CorrelationRadarTool) Score(_ context.Context, in Context) (Result, error) {
	closes := in.Snapshot.Closes
	const window = 20
	if len(closes) < window {
		return Result{}, errInsufficientData
	}
	series := closes[len(closes)-window:]
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}
	n := float64(window)
	num := n*sumXY - sumX*sumY
	den := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if den == 0 {
		return Result{}, errors.New("zero variance in window")
	}
	r := num / den
	score := r * 100
	confidence := math.Abs(r) * 80
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("close-vs-time correlation %.2f over %d bars", r, window),
	}, nil
}

// RiskPerMinuteTool estimates the per-minute true range against price. High
// minute risk argues for staying out regardless of direction, so the score
// follows the recent drift but confidence collapses as risk grows.
type RiskPerMinuteTool struct{}

func (t *RiskPerMinuteTool) Name() string { return "risk_per_minute" }

func (t *RiskPerMinuteTool) Score(_ context.Context, in Context) (Result, error) {
	snap := in.Snapshot
	const window = 14
	if len(snap.Closes) < window+1 || in.CurrentPrice <= 0 {
		return Result{}, errInsufficientData
	}
	n := len(snap.Closes)
	var rangeSum float64
	for i := n - window; i < n; i++ {
		tr := snap.Highs[i] - snap.Lows[i]
		if prev := snap.Closes[i-1]; prev > 0 {
			tr = math.Max(tr, math.Abs(snap.Highs[i]-prev))
			tr = math.Max(tr, math.Abs(snap.Lows[i]-prev))
		}
		rangeSum += tr
	}
	riskPct := rangeSum / float64(window) / in.CurrentPrice * 100
	driftPct := (snap.Closes[n-1] - snap.Closes[n-window]) / snap.Closes[n-window] * 100
	score := clamp(driftPct*150, -100, 100)
	// 0.05%/minute is calm for spot gold; above ~0.3% confidence is gone.
	confidence := clamp(70-riskPct*250, 0, 70)
	if confidence < 15 {
		return Result{
			Name:       t.Name(),
			Signal:     SignalHold,
			Confidence: confidence,
			Reasoning:  fmt.Sprintf("minute range %.3f%% of price, too hot to lean either way", riskPct),
		}, nil
	}
	return Result{
		Name:       t.Name(),
		Score:      score,
		Confidence: confidence,
		Signal:     signalFromScore(score),
		Reasoning:  fmt.Sprintf("minute range %.3f%% of price, drift %.3f%% over %dm", riskPct, driftPct, window),
	}, nil
}
