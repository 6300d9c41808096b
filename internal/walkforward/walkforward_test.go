package walkforward

import (
	"context"
	"math/rand"
	"testing"

	"backtestlab/internal/config"
	"backtestlab/internal/strategy"
	"backtestlab/internal/testsupport"
)

func TestGenerateWindowsShapeS5(t *testing.T) {
	windows := GenerateWindows(2520, 504, 126, 63)
	if len(windows) == 0 {
		t.Fatal("expected at least one window")
	}
	for i, w := range windows {
		if w.WindowID != i {
			t.Fatalf("expected window IDs assigned in order, got %d at index %d", w.WindowID, i)
		}
		if got := w.TrainEnd - w.TrainStart + 1; got != 504 {
			t.Fatalf("expected train length 504, got %d", got)
		}
		testLen := w.TestEnd - w.TestStart + 1
		if testLen < 1 || testLen > 126 {
			t.Fatalf("expected test length in [1,126], got %d", testLen)
		}
	}
}

// TestGenerateWindowsDisjointP7 generates random (totalBars, train, test,
// step) quadruples with math/rand and asserts P7 (train/test disjointness,
// in-bounds test end, and contiguous WindowIDs) holds for every one of
// them, not just the §8 S5 fixture's fixed parameters.
func TestGenerateWindowsDisjointP7(t *testing.T) {
	rng := rand.New(rand.NewSource(707))

	for trial := 0; trial < 200; trial++ {
		totalBars := 50 + rng.Intn(5000)
		train := 1 + rng.Intn(1000)
		test := 1 + rng.Intn(500)
		step := 1 + rng.Intn(500)

		windows := GenerateWindows(totalBars, train, test, step)
		for i, w := range windows {
			if w.WindowID != i {
				t.Fatalf("trial %d: expected window IDs assigned in order, got %d at index %d", trial, w.WindowID, i)
			}
			if w.TrainEnd >= w.TestStart {
				t.Fatalf("trial %d (total=%d train=%d test=%d step=%d): P7 violated: train_end %d >= test_start %d",
					trial, totalBars, train, test, step, w.TrainEnd, w.TestStart)
			}
			if w.TestEnd > totalBars-1 {
				t.Fatalf("trial %d (total=%d train=%d test=%d step=%d): P7 violated: window exceeds total bars: %+v",
					trial, totalBars, train, test, step, w)
			}
			if w.TrainStart < 0 || w.TrainEnd < w.TrainStart {
				t.Fatalf("trial %d: invalid train range: %+v", trial, w)
			}
		}
	}
}

func TestGenerateWindowsTooShortIsEmpty(t *testing.T) {
	windows := GenerateWindows(100, 504, 126, 63)
	if len(windows) != 0 {
		t.Fatalf("expected empty window sequence for short data, got %d windows", len(windows))
	}
}

func TestRunProducesOrderedResults(t *testing.T) {
	bars := testsupport.LinearRampBars(300, 100, 150, 0)
	store := testsupport.NewStoreFromBars("A", bars)

	cfg := config.Default()
	cfg.VolatilitySizing = false
	cfg.BenchmarkSymbol = ""

	factory := func() strategy.Strategy { return strategy.NewMomentum(10) }
	windows := GenerateWindows(300, 100, 50, 50)
	if len(windows) == 0 {
		t.Fatal("expected at least one window for this fixture")
	}

	summary, err := Run(context.Background(), store, factory, cfg, windows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != len(windows) {
		t.Fatalf("expected %d results, got %d", len(windows), len(summary.Results))
	}
	for i, r := range summary.Results {
		if r.WindowID != i {
			t.Fatalf("expected results ordered by window_id, got %d at index %d", r.WindowID, i)
		}
	}
}

func TestAggregateSharpeDecayAndWinRate(t *testing.T) {
	results := []Result{
		{WindowID: 0, TrainSharpe: 1.0, TestSharpe: 0.5},
		{WindowID: 1, TrainSharpe: 1.0, TestSharpe: -0.2},
	}
	summary := aggregate(results)
	if summary.AvgInSharpe != 1.0 {
		t.Fatalf("expected avg in-sample sharpe 1.0, got %v", summary.AvgInSharpe)
	}
	if summary.OutOfSampleWinRate != 0.5 {
		t.Fatalf("expected win rate 0.5, got %v", summary.OutOfSampleWinRate)
	}
	expectedDecay := (1 - 0.15/1.0) * 100
	if summary.SharpeDecayPct != expectedDecay {
		t.Fatalf("expected decay %v, got %v", expectedDecay, summary.SharpeDecayPct)
	}
}
