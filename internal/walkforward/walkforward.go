// Package walkforward is the walk-forward orchestrator (component H): it
// generates rolling (train, test) window pairs, evaluates each window's
// in-sample and out-of-sample simulation concurrently, and aggregates
// Sharpe decay and out-of-sample win rate across windows.
package walkforward

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"backtestlab/internal/barstore"
	"backtestlab/internal/config"
	"backtestlab/internal/metrics"
	"backtestlab/internal/obs"
	"backtestlab/internal/simulate"
	"backtestlab/internal/strategy"
)

// Window is one (train, test) bar-index pair. Invariant (P7): TrainEnd <
// TestStart and both ranges fit within the total bar count.
type Window struct {
	WindowID   int
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

// Result is one window's full evaluation: the in-sample and out-of-sample
// PerformanceMetrics plus convenience scalars used for aggregation.
// RunID/Seed/ReproducibilityTag echo the out-of-sample sub-run's identity.
type Result struct {
	WindowID    int
	InSample    metrics.PerformanceMetrics
	OutOfSample metrics.PerformanceMetrics
	TrainSharpe float64
	TestSharpe  float64
	TrainReturn float64
	TestReturn  float64

	RunID              string
	Seed               int64
	ReproducibilityTag string
}

// Summary is the aggregate diagnostic across all windows. RunID/Seed/
// ReproducibilityTag identify the overall walk-forward invocation.
type Summary struct {
	Results            []Result
	AvgInSharpe        float64
	AvgOutSharpe       float64
	SharpeDecayPct     float64
	OutOfSampleWinRate float64

	RunID              string
	Seed               int64
	ReproducibilityTag string
}

// GenerateWindows builds the rolling window sequence per §4.6: starting at
// offset 0, emit (start, start+train-1, start+train, min(start+train+test-1,
// n-1)), advancing start by step, while start+train+test <= n. An empty
// result (not an error, per §7's InvalidWindow) means the data is too short
// for a single window.
func GenerateWindows(totalBars, train, test, step int) []Window {
	var windows []Window
	id := 0
	for start := 0; start+train+test <= totalBars; start += step {
		trainEnd := start + train - 1
		testStart := start + train
		testEnd := testStart + test - 1
		if testEnd > totalBars-1 {
			testEnd = totalBars - 1
		}
		windows = append(windows, Window{
			WindowID:   id,
			TrainStart: start,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testEnd,
		})
		id++
	}
	return windows
}

// Run evaluates windows concurrently against market, at most
// runtime.GOMAXPROCS at a time, constructing a fresh strategy instance per
// sub-run via factory. Shared state is market (read-only), cfg (copied per
// goroutine by value), and the invocation's EngineMetrics, whose collectors
// lock internally; each window owns its own Runner. Results are
// written into a pre-sized slice indexed by window_id — writes never alias,
// so no synchronization is needed beyond the errgroup barrier. Every
// sub-run logs through obs and reports into a shared EngineMetrics, and the
// whole invocation is tagged with a RunID and the config's reproducibility
// tag for deterministic replay.
func Run(ctx context.Context, market *barstore.Store, factory strategy.Factory, cfg config.BacktestConfig, windows []Window) (Summary, error) {
	runID := obs.NewRunID()
	reproTag, err := config.ReproducibilityTag(cfg)
	if err != nil {
		return Summary{}, fmt.Errorf("walkforward: reproducibility tag: %w", err)
	}

	registry := obs.NewRegistry()
	engineMetrics := obs.NewEngineMetrics(registry)

	results := make([]Result, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			windowCtx := obs.WithRunInfo(gctx, obs.RunInfo{RunID: runID})
			res, err := evaluateWindow(windowCtx, market, factory, cfg, w, engineMetrics)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			engineMetrics.WalkForwardWindows.Inc(outcome)
			obs.LogWindow(windowCtx, w.WindowID, res.TrainSharpe, res.TestSharpe, err)
			if err != nil {
				return fmt.Errorf("walkforward: window %d: %w", w.WindowID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := aggregate(results)
	summary.RunID = runID
	summary.Seed = cfg.Seed
	summary.ReproducibilityTag = reproTag
	return summary, nil
}

func evaluateWindow(ctx context.Context, market *barstore.Store, factory strategy.Factory, cfg config.BacktestConfig, w Window, engineMetrics *obs.EngineMetrics) (Result, error) {
	trainRunner := simulate.NewRunner(cfg).SetMetrics(engineMetrics)
	trainStrat := factory()
	trainResult, err := trainRunner.Run(ctx, market, trainStrat, w.TrainStart, w.TrainEnd)
	if err != nil {
		return Result{}, fmt.Errorf("train: %w", err)
	}
	trainMetrics := metrics.Calculate(trainResult.Snapshots, trainResult.Trades, trainResult.BenchmarkReturns, cfg.RiskFreeRate)

	testRunner := simulate.NewRunner(cfg).SetMetrics(engineMetrics)
	testStrat := factory()
	testResult, err := testRunner.Run(ctx, market, testStrat, w.TestStart, w.TestEnd)
	if err != nil {
		return Result{}, fmt.Errorf("test: %w", err)
	}
	testMetrics := metrics.Calculate(testResult.Snapshots, testResult.Trades, testResult.BenchmarkReturns, cfg.RiskFreeRate)

	return Result{
		WindowID:           w.WindowID,
		InSample:           trainMetrics,
		OutOfSample:        testMetrics,
		TrainSharpe:        trainMetrics.SharpeRatio,
		TestSharpe:         testMetrics.SharpeRatio,
		TrainReturn:        trainMetrics.TotalReturn,
		TestReturn:         testMetrics.TotalReturn,
		RunID:              testResult.RunID,
		Seed:               testResult.Seed,
		ReproducibilityTag: testResult.ReproducibilityTag,
	}, nil
}

func aggregate(results []Result) Summary {
	if len(results) == 0 {
		return Summary{Results: results}
	}
	var sumIn, sumOut float64
	var winners int
	for _, r := range results {
		sumIn += r.TrainSharpe
		sumOut += r.TestSharpe
		if r.TestSharpe > 0 {
			winners++
		}
	}
	n := float64(len(results))
	avgIn := sumIn / n
	avgOut := sumOut / n

	decay := 0.0
	if avgIn > 0 {
		decay = (1 - avgOut/avgIn) * 100
	}

	return Summary{
		Results:            results,
		AvgInSharpe:        avgIn,
		AvgOutSharpe:       avgOut,
		SharpeDecayPct:     decay,
		OutOfSampleWinRate: float64(winners) / n,
	}
}

// Verdict returns a human-readable summary of the walk-forward quality
// based on the out-of-sample win rate.
func Verdict(s Summary) string {
	switch {
	case s.OutOfSampleWinRate >= 0.7:
		return "EXCELLENT — strategy transfers to out-of-sample data well"
	case s.OutOfSampleWinRate >= 0.5:
		return "GOOD — strategy is deployable"
	case s.OutOfSampleWinRate >= 0.3:
		return "MARGINAL — live performance likely to underperform in-sample"
	default:
		return "FAIL — strategy loses its edge out-of-sample; do not deploy"
	}
}
