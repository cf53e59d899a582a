package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goldwatch/internal/models"
)

func mkTicks(closes []float64) []models.PriceTick {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	out := make([]models.PriceTick, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		out[i] = models.PriceTick{
			Symbol:    "XAUUSD",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price.Add(decimal.NewFromFloat(0.5)),
			Low:       price.Sub(decimal.NewFromFloat(0.5)),
			Close:     price,
		}
	}
	return out
}

func linearSeries(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestCompute_EmptyWindow(t *testing.T) {
	snap := Compute(nil)
	if snap.RSIValid || snap.MACDValid || snap.BollValid || snap.SMACrossValid {
		t.Fatal("empty window produced valid indicators")
	}
}

func TestCompute_ShortWindowFlagsInvalid(t *testing.T) {
	// 10 bars: below every warm-up except nothing.
	snap := Compute(mkTicks(linearSeries(2400, 0.1, 10)))
	if snap.RSIValid {
		t.Fatal("RSI flagged valid below its period")
	}
	if snap.MACDValid {
		t.Fatal("MACD flagged valid below slow+signal")
	}
	if snap.BollValid {
		t.Fatal("bollinger flagged valid below its period")
	}
	if snap.SMACrossValid {
		t.Fatal("SMA cross flagged valid below the long period")
	}
	if snap.LastClose == 0 {
		t.Fatal("last close missing even on a short window")
	}
}

func TestCompute_PartialWarmup(t *testing.T) {
	// 20 bars: RSI14, bollinger and SMAs warm, MACD (26+9) not yet.
	snap := Compute(mkTicks(linearSeries(2400, 0.1, 20)))
	if !snap.RSIValid {
		t.Fatal("RSI should be valid at 20 bars")
	}
	if !snap.BollValid {
		t.Fatal("bollinger should be valid at 20 bars")
	}
	if !snap.SMACrossValid {
		t.Fatal("SMA cross should be valid at 20 bars")
	}
	if snap.MACDValid {
		t.Fatal("MACD must stay invalid until slow+signal bars")
	}
}

func TestCompute_RisingTrend(t *testing.T) {
	snap := Compute(mkTicks(linearSeries(2400, 0.5, 60)))
	if !snap.RSIValid || !snap.MACDValid || !snap.SMACrossValid {
		t.Fatal("full window left indicators invalid")
	}
	// Monotonic gains push RSI to the top of its range.
	if snap.RSI < 90 {
		t.Fatalf("RSI = %.1f on a pure uptrend, want >= 90", snap.RSI)
	}
	if snap.SMAShort <= snap.SMALong {
		t.Fatalf("SMA5 %.2f should lead SMA20 %.2f in an uptrend", snap.SMAShort, snap.SMALong)
	}
	if snap.MACD <= 0 {
		t.Fatalf("MACD = %.4f on an uptrend, want positive", snap.MACD)
	}
}

func TestCompute_FallingTrend(t *testing.T) {
	snap := Compute(mkTicks(linearSeries(2500, -0.5, 60)))
	if snap.RSI > 10 {
		t.Fatalf("RSI = %.1f on a pure downtrend, want <= 10", snap.RSI)
	}
	if snap.SMAShort >= snap.SMALong {
		t.Fatalf("SMA5 %.2f should trail SMA20 %.2f in a downtrend", snap.SMAShort, snap.SMALong)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	ticks := mkTicks(linearSeries(2400, 0.3, 50))
	first := Compute(ticks)
	for i := 0; i < 5; i++ {
		again := Compute(ticks)
		if !snapshotsEqual(first, again) {
			t.Fatal("identical windows produced different snapshots")
		}
	}
}

func snapshotsEqual(a, b Snapshot) bool {
	if a.RSI != b.RSI || a.MACD != b.MACD || a.MACDSig != b.MACDSig ||
		a.BollUpper != b.BollUpper || a.BollLower != b.BollLower ||
		a.SMAShort != b.SMAShort || a.SMALong != b.SMALong ||
		a.LastClose != b.LastClose {
		return false
	}
	return true
}

func TestCompute_OrdersSeriesOldestFirst(t *testing.T) {
	ticks := mkTicks([]float64{2400, 2401, 2402})
	snap := Compute(ticks)
	if snap.Closes[0] != 2400 || snap.Closes[2] != 2402 {
		t.Fatalf("closes out of order: %v", snap.Closes)
	}
	if snap.LastClose != 2402 {
		t.Fatalf("last close = %.1f, want 2402", snap.LastClose)
	}
}
