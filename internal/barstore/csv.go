package barstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedInput marks a bar CSV row that failed to parse. Per §7's
// propagation policy, a malformed row is fatal to the load: no partial
// symbol is ever registered.
var ErrMalformedInput = fmt.Errorf("barstore: malformed input")

// LoadCSV reads a header-plus-rows OHLCV CSV for a single symbol and
// registers it with the store. Expected columns (order-independent, matched
// case-insensitively): timestamp, open, high, low, close, volume, adj_close.
// Timestamp is integer seconds since epoch.
//
// Parsing loads one symbol's bars; callers repeat the call per symbol, per
// §6.1. A parse failure on any row aborts the whole load — no partial symbol
// is registered.
func (s *Store) LoadCSV(symbol string, r io.Reader) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("%w: read header for %s: %v", ErrMalformedInput, symbol, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	required := []string{"timestamp", "open", "high", "low", "close", "volume", "adj_close"}
	idx := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := col[name]
		if !ok {
			return fmt.Errorf("%w: %s: CSV missing column %q", ErrMalformedInput, symbol, name)
		}
		idx[name] = i
	}

	var bars []Bar
	lineNo := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: line %d: %v", ErrMalformedInput, symbol, lineNo+1, err)
		}
		lineNo++

		ts, err := strconv.ParseInt(strings.TrimSpace(row[idx["timestamp"]]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: line %d timestamp: %v", ErrMalformedInput, symbol, lineNo, err)
		}
		floats := make(map[string]float64, 6)
		for _, field := range []string{"open", "high", "low", "close", "volume", "adj_close"} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx[field]]), 64)
			if err != nil {
				return fmt.Errorf("%w: %s: line %d %s: %v", ErrMalformedInput, symbol, lineNo, field, err)
			}
			floats[field] = v
		}

		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      floats["open"],
			High:      floats["high"],
			Low:       floats["low"],
			Close:     floats["close"],
			AdjClose:  floats["adj_close"],
			Volume:    floats["volume"],
		})
	}

	if err := s.Load(symbol, bars); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return nil
}
