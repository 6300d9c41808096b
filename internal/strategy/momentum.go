package strategy

import (
	"fmt"

	"backtestlab/internal/barstore"
	"backtestlab/internal/config"
)

// Momentum goes long every symbol whose trailing lookback-window return is
// positive, weighting each long equally, and restates its current longs
// every rebalance bar (it only emits signals on RebalanceFrequency bars,
// per §6.2's rebalance policy).
type Momentum struct {
	lookback int
	held     map[string]bool
}

// NewMomentum constructs a Momentum strategy with the given lookback (bar
// count) for its trailing-return signal.
func NewMomentum(lookback int) *Momentum {
	return &Momentum{lookback: lookback, held: make(map[string]bool)}
}

func (m *Momentum) Name() string { return fmt.Sprintf("momentum_%d", m.lookback) }

func (m *Momentum) Signals(market *barstore.Store, bar int, cfg config.BacktestConfig) []Signal {
	if bar%cfg.RebalanceFrequency != 0 {
		return nil
	}

	var longs []string
	for _, sym := range market.Symbols() {
		if market.RollingReturn(sym, bar, m.lookback) > 0 {
			longs = append(longs, sym)
		}
	}

	signals := make([]Signal, 0, len(longs)+len(m.held))
	if len(longs) > 0 {
		weight := 1.0 / float64(len(longs))
		next := make(map[string]bool, len(longs))
		for _, sym := range longs {
			signals = append(signals, Signal{Symbol: sym, Direction: Long, TargetWeight: weight, Strength: 1, Timestamp: bar})
			next[sym] = true
		}
		for sym := range m.held {
			if !next[sym] {
				signals = append(signals, Signal{Symbol: sym, Direction: Flat, Timestamp: bar})
			}
		}
		m.held = next
	} else {
		for sym := range m.held {
			signals = append(signals, Signal{Symbol: sym, Direction: Flat, Timestamp: bar})
		}
		m.held = make(map[string]bool)
	}
	return signals
}
