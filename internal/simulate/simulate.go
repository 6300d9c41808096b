// Package simulate is the bar-driven simulation loop (component F): the
// per-run orchestrator that advances time, queries the strategy, diffs
// target weights against current holdings, places orders through the
// execution model and portfolio ledger, and records snapshots.
package simulate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"backtestlab/internal/barstore"
	"backtestlab/internal/config"
	"backtestlab/internal/execution"
	"backtestlab/internal/obs"
	"backtestlab/internal/portfolio"
	"backtestlab/internal/riskguard"
	"backtestlab/internal/strategy"
	"backtestlab/internal/testsupport"
)

// defaultVolumeFallback is substituted when a symbol has no bar at the
// current index, a defensive fallback for ragged tails (§4.5 step 6).
const defaultVolumeFallback = 1_000_000

// Result is everything the metrics calculator needs: the snapshot series,
// the trade history, and the precomputed benchmark daily returns (empty
// when no benchmark symbol is present). RunID/Seed/ReproducibilityTag are
// echoed back so two runs can be compared or replayed deterministically.
type Result struct {
	Snapshots        []portfolio.Snapshot
	Trades           []portfolio.TradeRecord
	BenchmarkReturns []float64
	Stopped          bool
	LastBar          int

	RunID              string
	Seed               int64
	ReproducibilityTag string
}

// Runner holds the engine instances for one simulation run. It is
// reconstructed (or Reset) for each run — including each walk-forward
// sub-run — so per-run state never leaks across runs.
type Runner struct {
	cfg     config.BacktestConfig
	model   execution.Model
	ledger  *portfolio.Ledger
	guard   *riskguard.Guard
	metrics *obs.EngineMetrics
}

// NewRunner builds a Runner from cfg. Each call owns a fresh ledger and
// guard; callers that need to re-run (walk-forward) should construct a new
// Runner per sub-run rather than reuse one.
func NewRunner(cfg config.BacktestConfig) *Runner {
	return &Runner{
		cfg:    cfg,
		model:  execution.NewModel(cfg.CommissionRate, cfg.SlippageBps),
		ledger: portfolio.New(cfg.InitialCapital),
		guard:  riskguard.New(cfg.MaxDrawdownPct),
	}
}

// SetMetrics wires an EngineMetrics bundle into the runner so Run reports
// bars processed, circuit-breaker trips, and run completions. Optional: a
// nil-metrics Runner simply skips instrumentation.
func (r *Runner) SetMetrics(m *obs.EngineMetrics) *Runner {
	r.metrics = m
	return r
}

// Run executes the simulation loop over [start, end] inclusive against
// market, driving strat for signals. Per-run preparation resets the ledger
// and guard so Run is safe to call multiple times on the same Runner. ctx
// carries the run's Clock (testsupport.WithClock) and, once WithRunInfo is
// attached below, its RunID and strategy name for every log line emitted
// during the run.
func (r *Runner) Run(ctx context.Context, market *barstore.Store, strat strategy.Strategy, start, end int) (Result, error) {
	r.ledger.Reset(r.cfg.InitialCapital)
	r.guard.Reset()

	runID := obs.NewRunID()
	ctx = obs.WithRunInfo(ctx, obs.RunInfo{RunID: runID, Strategy: strat.Name()})
	reproTag, err := config.ReproducibilityTag(r.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("simulate: reproducibility tag: %w", err)
	}

	clock := testsupport.ClockFromContext(ctx)
	runStart := clock.Now()
	obs.LogRunStart(ctx, strat.Name(), start, end)

	var benchmarkReturns []float64
	if r.cfg.BenchmarkSymbol != "" {
		benchmarkReturns = precomputeBenchmarkReturns(market, r.cfg.BenchmarkSymbol, start, end)
	}

	snapshots := make([]portfolio.Snapshot, 0, end-start+1)
	previousEquity := 0.0
	peakEquity := 0.0
	lastBar := start
	stopped := false
	barsProcessed := 0

	for bar := start; bar <= end; bar++ {
		lastBar = bar
		barsProcessed++
		prices := market.PricesAt(bar)
		currentEquity := r.ledger.Equity(prices)

		if r.guard.Check(currentEquity) {
			r.liquidateAll(market, bar, prices)
			snap := r.recordSnapshot(bar, market, prices, previousEquity, &peakEquity)
			snapshots = append(snapshots, snap)
			stopped = true
			if r.metrics != nil {
				r.metrics.CircuitBreakerTrips.Inc()
			}
			break
		}

		// An empty signal set is "not a rebalance bar" (§6.2): holdings are
		// left exactly as they are. Only a non-empty batch triggers the
		// default-to-close diff against current holdings.
		if signals := strat.Signals(market, bar, r.cfg); len(signals) > 0 {
			targets := buildTargetWeights(r.ledger, signals)
			// Deterministic order: map iteration is randomized per process,
			// and which BUY gets dropped by ErrInsufficientCash on a
			// cash-constrained multi-symbol rebalance depends on order.
			symbols := make([]string, 0, len(targets))
			for symbol := range targets {
				symbols = append(symbols, symbol)
			}
			sort.Strings(symbols)
			for _, symbol := range symbols {
				if err := r.rebalanceSymbol(market, bar, symbol, targets[symbol], currentEquity, prices); err != nil {
					return Result{}, fmt.Errorf("simulate: bar %d symbol %s: %w", bar, symbol, err)
				}
			}
		}

		snap := r.recordSnapshot(bar, market, prices, previousEquity, &peakEquity)
		snapshots = append(snapshots, snap)
		previousEquity = snap.Equity
	}

	duration := clock.Now().Sub(runStart)
	obs.LogRunStop(ctx, lastBar, stopped, duration)

	finalEquity := 0.0
	if len(snapshots) > 0 {
		finalEquity = snapshots[len(snapshots)-1].Equity
	}

	if r.metrics != nil {
		r.metrics.BarsProcessed.Add(float64(barsProcessed))
		r.metrics.RunDuration.ObserveDuration(duration)
		r.metrics.RunEquity.Set(finalEquity)
		outcome := "ok"
		if stopped {
			outcome = "stopped"
		}
		r.metrics.RunsCompleted.Inc(outcome)
	}

	return Result{
		Snapshots:          snapshots,
		Trades:             r.ledger.Trades(),
		BenchmarkReturns:   benchmarkReturns,
		Stopped:            stopped,
		LastBar:            lastBar,
		RunID:              runID,
		Seed:               r.cfg.Seed,
		ReproducibilityTag: reproTag,
	}, nil
}

// buildTargetWeights starts from every currently held symbol defaulting to
// close (weight 0), then overwrites with LONG signal weights and explicit
// FLAT zeroes. SHORT signals are reserved (§9 open question) and do not
// affect the target map.
func buildTargetWeights(ledger *portfolio.Ledger, signals []strategy.Signal) map[string]float64 {
	targets := make(map[string]float64)
	for _, sym := range ledger.HeldSymbols() {
		targets[sym] = 0
	}
	for _, sig := range signals {
		switch sig.Direction {
		case strategy.Long:
			targets[sig.Symbol] = sig.TargetWeight
		case strategy.Flat:
			targets[sig.Symbol] = 0
		case strategy.Short:
			// unsupported in the v1 core; ignored.
		}
	}
	return targets
}

func (r *Runner) rebalanceSymbol(market *barstore.Store, bar int, symbol string, targetWeight, currentEquity float64, prices map[string]float64) error {
	price, ok := prices[symbol]
	if !ok || price <= 0 {
		return nil
	}

	pos, _ := r.ledger.Position(symbol)
	currentQty := pos.Quantity

	var targetQty int
	if r.cfg.VolatilitySizing && targetWeight > 0 {
		vol60d := market.RollingVolatility(symbol, bar, 60)
		targetQty = execution.SizeByVolatility(currentEquity, price, vol60d, r.cfg.VolTarget, r.cfg.MaxPositionPct)
	} else {
		targetQty = execution.SizeByWeight(currentEquity, price, targetWeight)
	}

	delta := targetQty - currentQty
	if delta == 0 {
		return nil
	}

	volume := defaultVolumeFallback
	if b, ok := market.BarAt(symbol, bar); ok {
		volume = int(b.Volume)
	}

	side := execution.Buy
	if delta < 0 {
		side = execution.Sell
	}
	qty := int(math.Abs(float64(delta)))

	slippage := r.model.Slippage(float64(volume), qty)
	commission := r.model.Commission(price, qty)

	order := execution.Order{Symbol: symbol, Side: side, Quantity: qty, ReferencePrice: price, Timestamp: int64(bar)}
	if _, err := r.ledger.ExecuteFill(order, slippage, commission); err != nil {
		// Insufficient cash is recovered locally per §7: drop this order
		// and keep processing the remaining symbols.
		return nil
	}
	return nil
}

func (r *Runner) liquidateAll(market *barstore.Store, bar int, prices map[string]float64) {
	for _, symbol := range market.Symbols() {
		pos, ok := r.ledger.Position(symbol)
		if !ok || pos.Quantity == 0 {
			continue
		}
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		volume := defaultVolumeFallback
		if b, ok := market.BarAt(symbol, bar); ok {
			volume = int(b.Volume)
		}
		side := execution.Sell
		if pos.Quantity < 0 {
			side = execution.Buy
		}
		qty := int(math.Abs(float64(pos.Quantity)))
		slippage := r.model.Slippage(float64(volume), qty)
		commission := r.model.Commission(price, qty)
		order := execution.Order{Symbol: symbol, Side: side, Quantity: qty, ReferencePrice: price, Timestamp: int64(bar)}
		// Best-effort: liquidation fills that fail are dropped, per §4.5 step 3.
		_, _ = r.ledger.ExecuteFill(order, slippage, commission)
	}
}

func (r *Runner) recordSnapshot(bar int, market *barstore.Store, prices map[string]float64, previousEquity float64, peakEquity *float64) portfolio.Snapshot {
	ts := int64(bar)
	for _, sym := range market.Symbols() {
		if b, ok := market.BarAt(sym, bar); ok {
			ts = b.Timestamp
			break
		}
	}
	snap := r.ledger.Snapshot(ts, prices, previousEquity)
	if snap.Equity > *peakEquity {
		*peakEquity = snap.Equity
	}
	if *peakEquity > 0 {
		snap.Drawdown = 1 - snap.Equity/(*peakEquity)
	}
	return snap
}

func precomputeBenchmarkReturns(market *barstore.Store, benchmark string, start, end int) []float64 {
	if _, err := market.Bars(benchmark); err != nil {
		return nil
	}
	returns := make([]float64, 0, end-start)
	for bar := start + 1; bar <= end; bar++ {
		returns = append(returns, market.RollingReturn(benchmark, bar, 1))
	}
	return returns
}
