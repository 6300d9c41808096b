package strategy

import (
	"fmt"

	"backtestlab/internal/barstore"
	"backtestlab/internal/config"
)

// MeanReversion goes long a symbol when its RSI falls below oversoldLevel
// and flattens it once RSI recovers above the midline, restating held
// positions every bar they remain relevant (it is not gated by
// RebalanceFrequency, since a mean-reversion edge decays quickly).
type MeanReversion struct {
	period        int
	oversoldLevel float64
	targetWeight  float64
	held          map[string]bool
}

// NewMeanReversion constructs an RSI-based mean-reversion strategy.
func NewMeanReversion(period int, oversoldLevel, targetWeight float64) *MeanReversion {
	return &MeanReversion{period: period, oversoldLevel: oversoldLevel, targetWeight: targetWeight, held: make(map[string]bool)}
}

func (m *MeanReversion) Name() string { return fmt.Sprintf("mean_reversion_rsi_%d", m.period) }

func (m *MeanReversion) Signals(market *barstore.Store, bar int, cfg config.BacktestConfig) []Signal {
	var signals []Signal
	for _, sym := range market.Symbols() {
		rsi, ok := rsiAt(market, sym, bar, m.period)
		if !ok {
			continue
		}
		switch {
		case rsi < m.oversoldLevel:
			signals = append(signals, Signal{Symbol: sym, Direction: Long, TargetWeight: m.targetWeight, Strength: (m.oversoldLevel - rsi) / m.oversoldLevel, Timestamp: bar})
			m.held[sym] = true
		case rsi >= 50 && m.held[sym]:
			signals = append(signals, Signal{Symbol: sym, Direction: Flat, Timestamp: bar})
			delete(m.held, sym)
		case m.held[sym]:
			signals = append(signals, Signal{Symbol: sym, Direction: Long, TargetWeight: m.targetWeight, Strength: 0.5, Timestamp: bar})
		}
	}
	return signals
}

// rsiAt computes the RSI for symbol at bar from the simple average gain and
// loss over the trailing period (no Wilder smoothing across bars),
// returning ok=false when fewer than period+1 bars are available.
func rsiAt(market *barstore.Store, symbol string, bar, period int) (float64, bool) {
	if bar-period < 0 {
		return 0, false
	}
	var gainSum, lossSum float64
	for i := bar - period + 1; i <= bar; i++ {
		curr, ok1 := market.BarAt(symbol, i)
		prev, ok2 := market.BarAt(symbol, i-1)
		if !ok1 || !ok2 {
			return 0, false
		}
		delta := curr.AdjClose - prev.AdjClose
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
