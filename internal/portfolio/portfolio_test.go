package portfolio

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"backtestlab/internal/execution"
)

func TestExecuteFillBuyReducesCash(t *testing.T) {
	l := New(100_000)
	order := execution.Order{Symbol: "A", Side: execution.Buy, Quantity: 10, ReferencePrice: 100, Timestamp: 0}
	if _, err := l.ExecuteFill(order, 0, 0); err != nil {
		t.Fatalf("ExecuteFill: %v", err)
	}
	if l.Cash() != 99_000 {
		t.Fatalf("expected cash 99000, got %v", l.Cash())
	}
	pos, ok := l.Position("A")
	if !ok || pos.Quantity != 10 || pos.AvgCost != 100 {
		t.Fatalf("unexpected position: %+v ok=%v", pos, ok)
	}
}

func TestExecuteFillInsufficientCash(t *testing.T) {
	l := New(500)
	order := execution.Order{Symbol: "A", Side: execution.Buy, Quantity: 10, ReferencePrice: 100, Timestamp: 0}
	_, err := l.ExecuteFill(order, 0, 0)
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if l.Cash() != 500 {
		t.Fatalf("cash must be untouched on rejected buy, got %v", l.Cash())
	}
}

// TestPositionExtinctionP2 drives a random sequence of buy/sell fills on a
// single symbol, each fill's quantity and side chosen so the running
// position quantity randomly walks down to zero and back up (a sell never
// exceeds the held quantity, so the walk never goes short). Every time the
// walk lands exactly on zero, the position must be gone from the ledger
// (invariant P2): no stale zero-quantity entries survive a full close.
func TestPositionExtinctionP2(t *testing.T) {
	rng := rand.New(rand.NewSource(202))

	for trial := 0; trial < 100; trial++ {
		l := New(10_000_000)
		qty := 0
		ts := int64(0)
		for step := 0; step < 30; step++ {
			delta := 1 + rng.Intn(20)
			side := execution.Buy
			if qty > 0 && rng.Intn(2) == 0 {
				side, delta = execution.Sell, min(delta, qty)
			} else if qty < 0 && rng.Intn(2) == 0 {
				side, delta = execution.Buy, min(delta, -qty)
			} else if qty < 0 {
				side = execution.Buy
			}
			if delta == 0 {
				continue
			}
			price := 50 + rng.Float64()*50
			order := execution.Order{Symbol: "A", Side: side, Quantity: delta, ReferencePrice: price, Timestamp: ts}
			ts++
			if _, err := l.ExecuteFill(order, 0, 0); err != nil {
				continue // insufficient cash: order rejected, qty unchanged
			}
			if side == execution.Buy {
				qty += delta
			} else {
				qty -= delta
			}

			_, held := l.Position("A")
			if qty == 0 && held {
				t.Fatalf("trial %d step %d: position still present at zero quantity", trial, step)
			}
			if qty != 0 && !held {
				t.Fatalf("trial %d step %d: position missing at nonzero quantity %d", trial, step, qty)
			}
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TestCashNonNegativeP1 fires random-sized buy orders at random prices and
// checks cash never goes negative, regardless of how ExecuteFill accepts or
// rejects each one (invariant P1).
func TestCashNonNegativeP1(t *testing.T) {
	rng := rand.New(rand.NewSource(101))

	for trial := 0; trial < 50; trial++ {
		l := New(500 + rng.Float64()*100_000)
		for i := 0; i < 50; i++ {
			qty := 1 + rng.Intn(500)
			price := 1 + rng.Float64()*500
			order := execution.Order{Symbol: "A", Side: execution.Buy, Quantity: qty, ReferencePrice: price, Timestamp: int64(i)}
			l.ExecuteFill(order, 0, 0)
			if l.Cash() < 0 {
				t.Fatalf("trial %d step %d: cash went negative: %v", trial, i, l.Cash())
			}
		}
	}
}

func TestShortCoverRealizesPnL(t *testing.T) {
	l := New(100_000)
	short := execution.Order{Symbol: "A", Side: execution.Sell, Quantity: 10, ReferencePrice: 100, Timestamp: 0}
	cover := execution.Order{Symbol: "A", Side: execution.Buy, Quantity: 10, ReferencePrice: 90, Timestamp: 1}
	if _, err := l.ExecuteFill(short, 0, 0); err != nil {
		t.Fatalf("short: %v", err)
	}
	if _, err := l.ExecuteFill(cover, 0, 0); err != nil {
		t.Fatalf("cover: %v", err)
	}
	if _, ok := l.Position("A"); ok {
		t.Fatal("expected flat position after full cover")
	}
	trades := l.Trades()
	if len(trades) != 1 || math.Abs(trades[0].PnL-100) > 1e-9 {
		t.Fatalf("expected pnl 100 on short cover, got %+v", trades)
	}
}

func TestEquityAndPositionsValue(t *testing.T) {
	l := New(100_000)
	order := execution.Order{Symbol: "A", Side: execution.Buy, Quantity: 10, ReferencePrice: 100, Timestamp: 0}
	l.ExecuteFill(order, 0, 0)
	prices := map[string]float64{"A": 110}
	if got := l.Equity(prices); got != 99_000+1100 {
		t.Fatalf("unexpected equity: %v", got)
	}
	if got := l.PositionsValue(prices); got != 1100 {
		t.Fatalf("unexpected positions value: %v", got)
	}
}

func TestSnapshotDailyReturn(t *testing.T) {
	l := New(100_000)
	snap := l.Snapshot(1, map[string]float64{}, 100_000)
	if snap.DailyReturn != 0 {
		t.Fatalf("expected 0 daily return at parity, got %v", snap.DailyReturn)
	}
	snap2 := l.Snapshot(2, map[string]float64{}, 0)
	if snap2.DailyReturn != 0 {
		t.Fatalf("expected 0 daily return with non-positive previous equity, got %v", snap2.DailyReturn)
	}
}

func TestResetClearsState(t *testing.T) {
	l := New(100_000)
	order := execution.Order{Symbol: "A", Side: execution.Buy, Quantity: 10, ReferencePrice: 100, Timestamp: 0}
	l.ExecuteFill(order, 0, 0)
	l.Reset(50_000)
	if l.Cash() != 50_000 {
		t.Fatalf("expected reset cash 50000, got %v", l.Cash())
	}
	if _, ok := l.Position("A"); ok {
		t.Fatal("expected positions cleared after reset")
	}
	if len(l.Trades()) != 0 {
		t.Fatal("expected trade history cleared after reset")
	}
}

func TestWinRateProfitFactorS7(t *testing.T) {
	trades := []TradeRecord{
		{Symbol: "A", PnL: 200},
		{Symbol: "A", PnL: 200},
		{Symbol: "A", PnL: -200},
	}
	var wins, losses int
	var sumWin, sumLoss float64
	for _, tr := range trades {
		if tr.PnL > 0 {
			wins++
			sumWin += tr.PnL
		} else {
			losses++
			sumLoss += -tr.PnL
		}
	}
	winRate := float64(wins) / float64(len(trades))
	profitFactor := sumWin / sumLoss
	if winRate != 2.0/3.0 {
		t.Fatalf("expected win rate 2/3, got %v", winRate)
	}
	if profitFactor != 2.0 {
		t.Fatalf("expected profit factor 2.0, got %v", profitFactor)
	}
}
