// Package metrics is the metrics calculator (component G): given a
// snapshot series, trade history, and an optional benchmark return series,
// it produces the full PerformanceMetrics record.
package metrics

import (
	"math"
	"sort"

	"backtestlab/internal/portfolio"
)

const tradingDaysPerYear = 252

// PerformanceMetrics is the full set of return, risk, and trade statistics
// for one simulation run. See §4.7.
type PerformanceMetrics struct {
	TotalReturn           float64
	AnnualizedReturn      float64
	AnnualizedVolatility  float64
	SharpeRatio           float64
	DownsideDeviation     float64
	SortinoRatio          float64
	MaxDrawdown           float64
	MaxDrawdownDurationDays int
	CalmarRatio           float64
	Skewness              float64
	Kurtosis              float64
	VaR95                 float64
	CVaR95                float64
	TotalTrades           int
	WinningTrades         int
	LosingTrades          int
	WinRate               float64
	ProfitFactor          float64
	AvgTradeReturn        float64
	AvgWinner             float64
	AvgLoser              float64
	Beta                  float64
	Alpha                 float64
	InformationRatio      float64
	Turnover              float64
}

// Calculate computes PerformanceMetrics from snapshots, trades, and an
// optional benchmark daily return series, at riskFreeRateAnnual (e.g. 0.04).
// Returns an all-zero record when fewer than 2 daily returns (that is,
// fewer than 3 snapshots) are available (§4.7 edge case); every degenerate division returns 0 rather than
// NaN/Inf.
func Calculate(snapshots []portfolio.Snapshot, trades []portfolio.TradeRecord, benchmarkReturns []float64, riskFreeRateAnnual float64) PerformanceMetrics {
	n := len(snapshots) - 1
	if n < 2 {
		return PerformanceMetrics{}
	}

	returns := make([]float64, n)
	for i := 1; i < len(snapshots); i++ {
		returns[i-1] = snapshots[i].DailyReturn
	}

	years := float64(n) / tradingDaysPerYear
	dailyRF := riskFreeRateAnnual / tradingDaysPerYear

	totalReturn := safeDiv(snapshots[len(snapshots)-1].Equity, snapshots[0].Equity) - 1
	annualizedReturn := 0.0
	if years > 0 {
		annualizedReturn = math.Pow(1+totalReturn, 1/years) - 1
	}

	mean := meanOf(returns)
	dailyStd := sampleStd(returns, mean)
	annualizedVol := dailyStd * math.Sqrt(tradingDaysPerYear)

	sharpe := 0.0
	if dailyStd != 0 {
		sharpe = (mean - dailyRF) / dailyStd * math.Sqrt(tradingDaysPerYear)
	}

	downsideDev := downsideDeviation(returns, dailyRF)
	sortino := 0.0
	if downsideDev != 0 {
		sortino = (annualizedReturn - riskFreeRateAnnual) / downsideDev
	}

	maxDD, maxDDDuration := maxDrawdownAndDuration(snapshots)
	calmar := 0.0
	if maxDD != 0 {
		calmar = annualizedReturn / maxDD
	}

	skew, kurt := higherMoments(returns, mean, dailyStd)
	var95, cvar95 := tailRisk(returns)

	totalTrades, winning, losing, winRate, profitFactor, avgReturn, avgWinner, avgLoser := tradeStats(trades)

	beta, alpha, informationRatio := benchmarkStats(returns, benchmarkReturns, annualizedReturn, riskFreeRateAnnual)

	turnover := 0.0
	if years > 0 {
		avgEquity := averageEquity(snapshots)
		turnover = safeDiv(totalEntryNotional(trades), avgEquity) / years
	}

	return PerformanceMetrics{
		TotalReturn:             totalReturn,
		AnnualizedReturn:        annualizedReturn,
		AnnualizedVolatility:    annualizedVol,
		SharpeRatio:             sharpe,
		DownsideDeviation:       downsideDev,
		SortinoRatio:            sortino,
		MaxDrawdown:             maxDD,
		MaxDrawdownDurationDays: maxDDDuration,
		CalmarRatio:             calmar,
		Skewness:                skew,
		Kurtosis:                kurt,
		VaR95:                   var95,
		CVaR95:                  cvar95,
		TotalTrades:             totalTrades,
		WinningTrades:           winning,
		LosingTrades:            losing,
		WinRate:                 winRate,
		ProfitFactor:            profitFactor,
		AvgTradeReturn:          avgReturn,
		AvgWinner:               avgWinner,
		AvgLoser:                avgLoser,
		Beta:                    beta,
		Alpha:                   alpha,
		InformationRatio:        informationRatio,
		Turnover:                turnover,
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func downsideDeviation(returns []float64, dailyRF float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < dailyRF {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	mean := meanOf(downside)
	variance := 0.0
	for _, r := range downside {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(downside))
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdownAndDuration(snapshots []portfolio.Snapshot) (float64, int) {
	peak := snapshots[0].Equity
	peakIndex := 0
	maxDD := 0.0
	maxDuration := 0
	for i, s := range snapshots {
		if s.Equity > peak {
			peak = s.Equity
			peakIndex = i
			continue
		}
		if peak > 0 {
			dd := 1 - s.Equity/peak
			if dd > maxDD {
				maxDD = dd
			}
		}
		if d := i - peakIndex; d > maxDuration {
			maxDuration = d
		}
	}
	return maxDD, maxDuration
}

func higherMoments(returns []float64, mean, std float64) (float64, float64) {
	if std == 0 || len(returns) == 0 {
		return 0, 0
	}
	var sum3, sum4 float64
	for _, r := range returns {
		z := (r - mean) / std
		sum3 += z * z * z
		sum4 += z * z * z * z
	}
	n := float64(len(returns))
	return sum3 / n, sum4/n - 3
}

func tailRisk(returns []float64) (float64, float64) {
	n := len(returns)
	if n == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cut := int(math.Floor(0.05 * float64(n)))
	var95 := -sorted[cut]

	if cut == 0 {
		return var95, -sorted[0]
	}
	sum := 0.0
	for _, r := range sorted[:cut+1] {
		sum += r
	}
	cvar95 := -sum / float64(cut+1)
	return var95, cvar95
}

func tradeStats(trades []portfolio.TradeRecord) (total, winning, losing int, winRate, profitFactor, avgReturn, avgWinner, avgLoser float64) {
	total = len(trades)
	if total == 0 {
		return 0, 0, 0, 0, 0, 0, 0, 0
	}
	var sumReturn, sumWinPnL, sumLossPnL, sumWinnerRet, sumLoserRet float64
	var winCount, lossCount int
	for _, t := range trades {
		sumReturn += t.ReturnPct
		if t.PnL > 0 {
			winCount++
			sumWinPnL += t.PnL
			sumWinnerRet += t.ReturnPct
		} else {
			lossCount++
			sumLossPnL += -t.PnL
			sumLoserRet += t.ReturnPct
		}
	}
	winRate = float64(winCount) / float64(total)
	profitFactor = 0
	switch {
	case sumLossPnL == 0 && sumWinPnL > 0:
		profitFactor = 999
	case sumLossPnL > 0:
		profitFactor = sumWinPnL / sumLossPnL
	}
	avgReturn = sumReturn / float64(total)
	if winCount > 0 {
		avgWinner = sumWinnerRet / float64(winCount)
	}
	if lossCount > 0 {
		avgLoser = sumLoserRet / float64(lossCount)
	}
	return total, winCount, lossCount, winRate, profitFactor, avgReturn, avgWinner, avgLoser
}

func benchmarkStats(returns, benchmarkReturns []float64, annualizedReturn, riskFreeRateAnnual float64) (beta, alpha, informationRatio float64) {
	if len(benchmarkReturns) == 0 {
		return 0, 0, 0
	}
	n := len(returns)
	if len(benchmarkReturns) < n {
		n = len(benchmarkReturns)
	}
	if n < 2 {
		return 0, 0, 0
	}
	r := returns[:n]
	b := benchmarkReturns[:n]

	meanR, meanB := meanOf(r), meanOf(b)
	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (r[i] - meanR) * (b[i] - meanB)
		varB += (b[i] - meanB) * (b[i] - meanB)
	}
	cov /= float64(n - 1)
	varB /= float64(n - 1)

	if varB > 0 {
		beta = cov / varB
	}

	benchmarkAnnualReturn := meanB * tradingDaysPerYear
	alpha = (annualizedReturn - riskFreeRateAnnual) - beta*(benchmarkAnnualReturn-riskFreeRateAnnual)

	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = r[i] - b[i]
	}
	trackingError := sampleStd(diffs, meanOf(diffs)) * math.Sqrt(tradingDaysPerYear)
	if trackingError > 0 {
		informationRatio = (annualizedReturn - benchmarkAnnualReturn) / trackingError
	}
	return beta, alpha, informationRatio
}

func averageEquity(snapshots []portfolio.Snapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range snapshots {
		sum += s.Equity
	}
	return sum / float64(len(snapshots))
}

func totalEntryNotional(trades []portfolio.TradeRecord) float64 {
	sum := 0.0
	for _, t := range trades {
		sum += math.Abs(t.EntryPrice * float64(t.Quantity))
	}
	return sum
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
