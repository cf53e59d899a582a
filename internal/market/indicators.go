package market

import (
	"time"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"goldwatch/internal/models"
)

const (
	RSIPeriod = 14

	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9

	BollingerPeriod = 20
	BollingerStdDev = 2.0

	SMAShortPeriod = 5
	SMALongPeriod  = 20
)

// MinWindow is the smallest tick window on which every indicator can warm up.
// MACD needs slow+signal bars before its signal line stabilises.
const MinWindow = MACDSlow + MACDSignal

// Snapshot holds the indicator values computed over one tick window. Each
// group carries a Valid flag; consumers treat an invalid group as "no
// information", never as zero.
type Snapshot struct {
	Symbol    string
	Timestamp time.Time
	LastClose float64

	RSI      float64
	RSIValid bool

	MACD       float64
	MACDSig    float64
	MACDHist   float64
	MACDValid  bool

	BollUpper  float64
	BollMiddle float64
	BollLower  float64
	BollValid  bool

	SMAShort      float64
	SMALong       float64
	SMACrossValid bool

	// Closes is the raw close series, oldest first, for scorers that look at
	// the shape of recent bars rather than a derived indicator.
	Closes []float64
	// Highs/Lows/Volumes follow Closes index for index.
	Highs   []float64
	Lows    []float64
	Volumes []float64
}

// Compute derives the snapshot from a tick window ordered oldest first.
// Indicators whose warm-up exceeds the window come back with Valid=false
// rather than failing the whole snapshot.
func Compute(ticks []models.PriceTick) Snapshot {
	var snap Snapshot
	if len(ticks) == 0 {
		return snap
	}
	last := ticks[len(ticks)-1]
	snap.Symbol = last.Symbol
	snap.Timestamp = last.Timestamp

	closes := make([]float64, len(ticks))
	highs := make([]float64, len(ticks))
	lows := make([]float64, len(ticks))
	volumes := make([]float64, len(ticks))
	for i, t := range ticks {
		closes[i], _ = t.Close.Float64()
		highs[i], _ = t.High.Float64()
		lows[i], _ = t.Low.Float64()
		if t.Volume != nil {
			volumes[i], _ = t.Volume.Float64()
		}
	}
	snap.Closes = closes
	snap.Highs = highs
	snap.Lows = lows
	snap.Volumes = volumes
	snap.LastClose = closes[len(closes)-1]

	if len(closes) > RSIPeriod {
		rsi := talib.Rsi(closes, RSIPeriod)
		snap.RSI = rsi[len(rsi)-1]
		snap.RSIValid = true
	}

	if len(closes) >= MACDSlow+MACDSignal {
		macd, sig, hist := talib.Macd(closes, MACDFast, MACDSlow, MACDSignal)
		snap.MACD = macd[len(macd)-1]
		snap.MACDSig = sig[len(sig)-1]
		snap.MACDHist = hist[len(hist)-1]
		snap.MACDValid = true
	}

	if len(closes) >= BollingerPeriod {
		upper, middle, lower := talib.BBands(closes, BollingerPeriod, BollingerStdDev, BollingerStdDev, talib.SMA)
		snap.BollUpper = upper[len(upper)-1]
		snap.BollMiddle = middle[len(middle)-1]
		snap.BollLower = lower[len(lower)-1]
		snap.BollValid = snap.BollUpper > snap.BollLower
	}

	if len(closes) >= SMALongPeriod {
		short := talib.Sma(closes, SMAShortPeriod)
		long := talib.Sma(closes, SMALongPeriod)
		snap.SMAShort = short[len(short)-1]
		snap.SMALong = long[len(long)-1]
		snap.SMACrossValid = true
	}

	return snap
}

// LastCloseDecimal returns the window's closing price as a decimal for
// persistence paths that keep money out of float64.
func (s Snapshot) LastCloseDecimal() decimal.Decimal {
	return decimal.NewFromFloat(s.LastClose)
}
