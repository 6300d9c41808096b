package testsupport

import "backtestlab/internal/barstore"

// ConstantBars builds n bars at a fixed price with zero OHLC spread,
// timestamped one day (86400s) apart starting at startTs. Used for S1-style
// flat-market scenarios.
func ConstantBars(n int, price float64, startTs int64) []barstore.Bar {
	bars := make([]barstore.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = barstore.Bar{
			Timestamp: startTs + int64(i)*86400,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			AdjClose:  price,
			Volume:    1_000_000,
		}
	}
	return bars
}

// PriceSeriesBars builds bars whose adj_close follows prices exactly, with
// OHLC collapsed to the close and a fixed volume. Used for literal-price
// scenarios like S2-S4.
func PriceSeriesBars(prices []float64, startTs int64, volume float64) []barstore.Bar {
	bars := make([]barstore.Bar, len(prices))
	for i, p := range prices {
		bars[i] = barstore.Bar{
			Timestamp: startTs + int64(i)*86400,
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			AdjClose:  p,
			Volume:    volume,
		}
	}
	return bars
}

// LinearRampBars builds n bars whose adj_close grows linearly from start to
// end inclusive. Used for S6-style metrics-on-a-ramp scenarios.
func LinearRampBars(n int, start, end float64, startTs int64) []barstore.Bar {
	bars := make([]barstore.Bar, n)
	for i := 0; i < n; i++ {
		p := start
		if n > 1 {
			p = start + (end-start)*float64(i)/float64(n-1)
		}
		bars[i] = barstore.Bar{
			Timestamp: startTs + int64(i)*86400,
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			AdjClose:  p,
			Volume:    1_000_000,
		}
	}
	return bars
}

// NewStoreFromBars builds a *barstore.Store pre-loaded with one symbol.
func NewStoreFromBars(symbol string, bars []barstore.Bar) *barstore.Store {
	store := barstore.New()
	if err := store.Load(symbol, bars); err != nil {
		panic(err) // fixtures are constructed by the test author, not untrusted input
	}
	return store
}

// NewMultiSymbolStore builds a *barstore.Store pre-loaded with one sequence
// per entry in bySymbol, for tests exercising cross-symbol behaviour (order
// of execution on a cash-constrained rebalance, common-range queries, etc).
func NewMultiSymbolStore(bySymbol map[string][]barstore.Bar) *barstore.Store {
	store := barstore.New()
	for symbol, bars := range bySymbol {
		if err := store.Load(symbol, bars); err != nil {
			panic(err) // fixtures are constructed by the test author, not untrusted input
		}
	}
	return store
}
