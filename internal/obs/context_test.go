package obs

import (
	"context"
	"testing"
)

func TestWithRunInfoRoundTrips(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{RunID: "run_abc", WindowID: "3", Strategy: "momentum_20"})
	info := RunInfoFromContext(ctx)
	if info.RunID != "run_abc" || info.WindowID != "3" || info.Strategy != "momentum_20" {
		t.Fatalf("unexpected round trip: %+v", info)
	}
}

func TestRunInfoFromContextEmptyByDefault(t *testing.T) {
	info := RunInfoFromContext(context.Background())
	if info != (RunInfo{}) {
		t.Fatalf("expected zero-value RunInfo, got %+v", info)
	}
}

func TestWithRunInfoOmitsBlankFields(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{RunID: "run_only"})
	info := RunInfoFromContext(ctx)
	if info.RunID != "run_only" || info.WindowID != "" || info.Strategy != "" {
		t.Fatalf("unexpected info: %+v", info)
	}
}
