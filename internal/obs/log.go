package obs

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"backtestlab/internal/testsupport"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent writes one structured JSON line carrying level, event name, any
// run identifiers found in ctx, and the given fields. Fields named "config"
// or "payload" are passed through RedactValue first. The timestamp comes
// from the Clock attached to ctx (via testsupport.WithClock), defaulting to
// wall-clock time, so tests can assert on log output deterministically.
func LogEvent(ctx context.Context, level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    testsupport.ClockFromContext(ctx).Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.WindowID != "" {
		payload["window_id"] = info.WindowID
	}
	if info.Strategy != "" {
		payload["strategy"] = info.Strategy
	}

	for k, v := range normalizeFields(fields) {
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogRunStart logs the start of a single simulation run.
func LogRunStart(ctx context.Context, strategy string, startBar, endBar int) {
	LogEvent(ctx, "info", "run_start", map[string]any{
		"strategy":  strategy,
		"start_bar": startBar,
		"end_bar":   endBar,
	})
}

// LogRunStop logs the termination of a run, noting whether the circuit
// breaker forced an early stop.
func LogRunStop(ctx context.Context, lastBar int, stopped bool, duration time.Duration) {
	LogEvent(ctx, "info", "run_stop", map[string]any{
		"last_bar":   lastBar,
		"stopped":    stopped,
		"latency_ms": duration.Milliseconds(),
	})
}

// LogWindow logs the completion of one walk-forward window.
func LogWindow(ctx context.Context, windowID int, trainSharpe, testSharpe float64, err error) {
	fields := map[string]any{
		"window_id":    windowID,
		"train_sharpe": trainSharpe,
		"test_sharpe":  testSharpe,
		"success":      err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "walkforward_window", fields)
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "config", "payload":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
