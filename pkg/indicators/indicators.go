// Package indicators derives technical analysis values (EMA, RSI, MACD)
// from candle history for the oracle prompt.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// Summary holds the latest indicator values computed from daily candles.
type Summary struct {
	EMA20 decimal.Decimal
	RSI14 decimal.Decimal
	MACD  decimal.Decimal
}

// Summarize computes the most recent EMA20, RSI14 and MACD values from the
// given candles (oldest first).
func Summarize(candles []domain.Candle) (*Summary, error) {
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ema20, err := CalculateEMA(closes, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate EMA20: %w", err)
	}

	rsi14, err := CalculateRSI(closes, 14)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate RSI14: %w", err)
	}

	macd, err := CalculateMACD(closes)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate MACD: %w", err)
	}

	return &Summary{
		EMA20: ema20[len(ema20)-1],
		RSI14: rsi14[len(rsi14)-1],
		MACD:  macd[len(macd)-1],
	}, nil
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	ema := trend.NewEmaWithPeriod[float64](period)
	inputChan := helper.SliceToChan(closesFloat)
	outputChan := ema.Compute(inputChan)
	emaFloat := helper.ChanToSlice(outputChan)

	return float64ToDecimals(emaFloat), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	rsi := momentum.NewRsiWithPeriod[float64](period)
	inputChan := helper.SliceToChan(closesFloat)
	outputChan := rsi.Compute(inputChan)
	rsiFloat := helper.ChanToSlice(outputChan)

	return float64ToDecimals(rsiFloat), nil
}

// CalculateMACD calculates MACD line values.
func CalculateMACD(closes []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(closes) < 26 {
		return nil, fmt.Errorf("not enough data points for MACD: need at least 26, got %d", len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	macd := trend.NewMacd[float64]()
	inputChan := helper.SliceToChan(closesFloat)
	macdChan, signalChan := macd.Compute(inputChan)
	// drain signal channel to prevent blocking
	go func() {
		for range signalChan {
		}
	}()
	macdFloat := helper.ChanToSlice(macdChan)

	return float64ToDecimals(macdFloat), nil
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
