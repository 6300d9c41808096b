// Package portfolio is the portfolio ledger (component B): the single
// source of truth for cash, open positions, and realized trade history
// within one simulation run.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"backtestlab/internal/execution"
)

// ErrInsufficientCash is returned when a BUY's cost exceeds current cash.
// Per §7 this is recovered locally by the simulation loop: the caller drops
// the order and continues the bar.
var ErrInsufficientCash = errors.New("portfolio: insufficient cash")

// Position is a net holding in one symbol. A zero-quantity position is
// never stored; see Ledger's extinction invariant.
type Position struct {
	Symbol     string
	Quantity   int // signed: positive long, negative short
	AvgCost    float64
	RealizedPL float64
}

// TradeRecord is emitted on every close or partial close of a position.
type TradeRecord struct {
	Symbol       string
	Side         execution.Side // the closing side
	Quantity     int            // closed quantity, positive
	EntryPrice   float64
	ExitPrice    float64
	PnL          float64
	ReturnPct    float64
	HoldingDays  int // left zero; computed externally per §9
	EntryTime    int64
	ExitTime     int64
}

// Snapshot is one row per simulated bar.
type Snapshot struct {
	Timestamp      int64
	Equity         float64
	Cash           float64
	PositionsValue float64
	DailyReturn    float64
	Drawdown       float64
	NumPositions   int
}

// Ledger owns cash, positions, and the append-only trade history for one
// simulation run. The zero value is not usable; construct with New.
type Ledger struct {
	cash      float64
	positions map[string]*Position
	trades    []TradeRecord
}

// New creates a ledger seeded with initialCapital.
func New(initialCapital float64) *Ledger {
	return &Ledger{cash: initialCapital, positions: make(map[string]*Position)}
}

// Cash returns current cash.
func (l *Ledger) Cash() float64 { return l.cash }

// Position returns the position in symbol and whether one exists.
func (l *Ledger) Position(symbol string) (Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Trades returns the append-only trade history.
func (l *Ledger) Trades() []TradeRecord { return l.trades }

// HeldSymbols returns every symbol with a nonzero open position.
func (l *Ledger) HeldSymbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	return out
}

// ExecuteFill prices and applies order against its reference price, per
// §4.2. slippageFraction and commission are precomputed by the
// execution model so the ledger stays free of pricing policy.
func (l *Ledger) ExecuteFill(order execution.Order, slippageFraction, commission float64) (execution.Fill, error) {
	fillPrice := execution.Price(order.ReferencePrice, slippageFraction, order.Side)
	slippageCost := math.Abs(fillPrice-order.ReferencePrice) * float64(order.Quantity)

	fill := execution.Fill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		FillPrice:  fillPrice,
		Slippage:   slippageCost,
		Commission: commission,
		Timestamp:  order.Timestamp,
	}

	switch order.Side {
	case execution.Buy:
		if err := l.applyBuy(order.Symbol, order.Quantity, fillPrice, commission, order.Timestamp); err != nil {
			return execution.Fill{}, err
		}
	case execution.Sell:
		l.applySell(order.Symbol, order.Quantity, fillPrice, commission, order.Timestamp)
	}
	return fill, nil
}

func (l *Ledger) applyBuy(symbol string, qty int, fillPrice, commission float64, ts int64) error {
	cost := fillPrice*float64(qty) + commission
	if cost > l.cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, l.cash)
	}

	pos, exists := l.positions[symbol]
	if !exists {
		pos = &Position{Symbol: symbol}
		l.positions[symbol] = pos
	}

	switch {
	case pos.Quantity >= 0:
		totalCost := pos.AvgCost*float64(pos.Quantity) + fillPrice*float64(qty)
		pos.Quantity += qty
		if pos.Quantity != 0 {
			pos.AvgCost = totalCost / float64(pos.Quantity)
		}
	default:
		covered := qty
		if -pos.Quantity < covered {
			covered = -pos.Quantity
		}
		pnl := (pos.AvgCost - fillPrice) * float64(covered)
		pos.RealizedPL += pnl
		l.trades = append(l.trades, TradeRecord{
			Symbol:     symbol,
			Side:       execution.Buy,
			Quantity:   covered,
			EntryPrice: pos.AvgCost,
			ExitPrice:  fillPrice,
			PnL:        pnl,
			ReturnPct:  safeDiv(pnl, pos.AvgCost*float64(covered)),
			EntryTime:  ts,
			ExitTime:   ts,
		})
		remaining := qty - covered
		pos.Quantity += qty
		if remaining > 0 {
			pos.AvgCost = fillPrice
		}
	}

	l.cash -= cost
	l.pruneIfFlat(symbol)
	return nil
}

func (l *Ledger) applySell(symbol string, qty int, fillPrice, commission float64, ts int64) {
	proceeds := fillPrice*float64(qty) - commission

	pos, exists := l.positions[symbol]
	if !exists {
		pos = &Position{Symbol: symbol}
		l.positions[symbol] = pos
	}

	if pos.Quantity > 0 {
		closed := qty
		if pos.Quantity < closed {
			closed = pos.Quantity
		}
		pnl := (fillPrice - pos.AvgCost) * float64(closed)
		pos.RealizedPL += pnl
		l.trades = append(l.trades, TradeRecord{
			Symbol:     symbol,
			Side:       execution.Sell,
			Quantity:   closed,
			EntryPrice: pos.AvgCost,
			ExitPrice:  fillPrice,
			PnL:        pnl,
			ReturnPct:  safeDiv(pnl, pos.AvgCost*float64(closed)),
			EntryTime:  ts,
			ExitTime:   ts,
		})
		remaining := qty - closed
		pos.Quantity -= qty
		if remaining > 0 {
			pos.AvgCost = fillPrice
		}
	} else {
		totalCost := pos.AvgCost*float64(-pos.Quantity) + fillPrice*float64(qty)
		pos.Quantity -= qty
		if pos.Quantity != 0 {
			pos.AvgCost = totalCost / float64(-pos.Quantity)
		}
	}

	l.cash += proceeds
	l.pruneIfFlat(symbol)
}

func (l *Ledger) pruneIfFlat(symbol string) {
	if pos, ok := l.positions[symbol]; ok && pos.Quantity == 0 {
		delete(l.positions, symbol)
	}
}

// Equity returns cash plus the marked-to-market value of every held symbol
// present in priceMap. Missing symbols contribute zero.
func (l *Ledger) Equity(priceMap map[string]float64) float64 {
	total := l.cash
	for sym, pos := range l.positions {
		if price, ok := priceMap[sym]; ok {
			total += float64(pos.Quantity) * price
		}
	}
	return total
}

// PositionsValue returns the sum of |quantity * price| for every held
// symbol present in priceMap.
func (l *Ledger) PositionsValue(priceMap map[string]float64) float64 {
	total := 0.0
	for sym, pos := range l.positions {
		if price, ok := priceMap[sym]; ok {
			total += math.Abs(float64(pos.Quantity) * price)
		}
	}
	return total
}

// Snapshot computes a PortfolioSnapshot at timestamp. Drawdown is left at
// zero; the simulation loop fills it in from running peak equity.
func (l *Ledger) Snapshot(timestamp int64, priceMap map[string]float64, previousEquity float64) Snapshot {
	equity := l.Equity(priceMap)
	dailyReturn := 0.0
	if previousEquity > 0 {
		dailyReturn = equity/previousEquity - 1
	}
	return Snapshot{
		Timestamp:      timestamp,
		Equity:         equity,
		Cash:           l.cash,
		PositionsValue: l.PositionsValue(priceMap),
		DailyReturn:    dailyReturn,
		NumPositions:   len(l.positions),
	}
}

// Reset clears all positions and trade history and resets cash to
// newCapital, for reuse across walk-forward sub-runs.
func (l *Ledger) Reset(newCapital float64) {
	l.cash = newCapital
	l.positions = make(map[string]*Position)
	l.trades = nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
