// Package oracle turns recent market history into a validated trading
// recommendation by consulting an LLM behind an OpenAI-compatible API.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/clients"
	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/pkg/indicators"
)

// SystemPrompt instructs the model to act as a conservative analyst and to
// answer with the exact JSON contract the decision parser expects.
const SystemPrompt = `You are a professional cryptocurrency investment analyst and trader with expertise in both technical and fundamental analysis.
Based on the provided daily OHLCV chart data for the asset, analyze the current market condition and determine the safest possible action: buy, sell, or hold.
Your top priority is to avoid any potential loss and protect the principal amount under all circumstances.
If there is any uncertainty or risk of loss, choose hold instead of taking action.
Evaluate short-term momentum, trend direction, and volatility carefully.
Respond with a single JSON object and nothing else.

Response example:
{
  "decision": "buy",
  "confidence": 0.88,
  "reason": "The asset has formed a higher low on the daily chart and just broke above the 20-day moving average with rising volume. RSI is recovering from the mid-40s, suggesting renewed bullish momentum.",
  "risk_level": "low"
}
{
  "decision": "sell",
  "confidence": 0.91,
  "reason": "A double-top pattern has formed with decreasing volume. RSI shows bearish divergence, and price failed to hold the key resistance level.",
  "risk_level": "medium"
}
{
  "decision": "hold",
  "confidence": 0.76,
  "reason": "The market is currently consolidating within a narrow range. No clear breakout or breakdown signal is confirmed, and volatility remains low.",
  "risk_level": "none"
}`

// Oracle requests trading decisions for one asset at a time.
type Oracle struct {
	llm    clients.LLMClient
	logger *zap.Logger
}

func New(llm clients.LLMClient, logger *zap.Logger) *Oracle {
	return &Oracle{llm: llm, logger: logger}
}

// Recommend sends the asset's candle history to the model and returns its
// validated decision.
func (o *Oracle) Recommend(ctx context.Context, asset string, candles []domain.Candle) (*domain.Decision, error) {
	if len(candles) == 0 {
		return nil, errors.New("no candle data to analyze")
	}

	raw, err := o.llm.Complete(ctx, SystemPrompt, buildUserPrompt(asset, candles))
	if err != nil {
		return nil, errors.Wrapf(err, "decision request for %s failed", asset)
	}

	decision, err := domain.ParseDecision(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "unusable decision for %s", asset)
	}

	o.logger.Info("oracle decision",
		zap.String("asset", asset),
		zap.String("decision", decision.Action),
		zap.Float64("confidence", decision.Confidence),
		zap.String("risk_level", string(decision.Risk())))

	return decision, nil
}

func buildUserPrompt(asset string, candles []domain.Candle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Asset: %s\n", asset)
	fmt.Fprintf(&b, "Daily candles, oldest first (%d):\n", len(candles))
	b.WriteString("date,open,high,low,close,volume\n")
	for _, c := range candles {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s\n",
			c.OpenTime.Format("2006-01-02"),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
	}

	// Indicators need warmup data; short histories just go without them.
	if summary, err := indicators.Summarize(candles); err == nil {
		fmt.Fprintf(&b, "\nIndicators (latest): EMA20=%s RSI14=%s MACD=%s\n",
			summary.EMA20.Round(4).String(), summary.RSI14.Round(2).String(), summary.MACD.Round(4).String())
	}

	return b.String()
}
