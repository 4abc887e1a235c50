// Package evaluator decides and executes at most one trade for a single
// asset per run, and records the attempt as exactly one audit row.
//
// Every rejection that happens before an order is submitted is written in a
// single insert with a terminal status. Once an order attempt is made, the
// previously inserted pending row is updated to success or failed; a pending
// row is never left behind.
package evaluator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/clients"
	"github.com/coinpilot/coinpilot/internal/domain"
)

// TradeStore is the persistence surface the evaluator needs: append a row,
// and update the one pending row it created.
type TradeStore interface {
	Create(ctx context.Context, trade *domain.Trade) error
	Update(ctx context.Context, trade *domain.Trade) error
}

// DecisionOracle recommends an action from recent price history.
type DecisionOracle interface {
	Recommend(ctx context.Context, asset string, candles []domain.Candle) (*domain.Decision, error)
}

// DecisionJournal receives a best-effort copy of every oracle verdict.
type DecisionJournal interface {
	Record(asset string, decision *domain.Decision) error
}

// Evaluator runs the buy/sell/hold state machine for one asset at a time.
type Evaluator struct {
	exchange    clients.ExchangeClient
	oracle      DecisionOracle
	trades      TradeStore
	journal     DecisionJournal // optional
	historyDays int
	logger      *zap.Logger
}

func New(exchange clients.ExchangeClient, oracle DecisionOracle, trades TradeStore, journal DecisionJournal, historyDays int, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		exchange:    exchange,
		oracle:      oracle,
		trades:      trades,
		journal:     journal,
		historyDays: historyDays,
		logger:      logger,
	}
}

// Evaluate produces exactly one persisted trade row for the asset. Expected
// failures (oracle faults, threshold rejections, order errors) are encoded
// into the row itself; a returned error means the evaluation could not even
// record its outcome.
func (e *Evaluator) Evaluate(ctx context.Context, asset domain.Asset, cashSnapshot, feeFactor, minOrderValue decimal.Decimal) (*domain.Trade, error) {
	narrative := domain.NewNarrative()

	candles, err := e.exchange.PriceHistory(ctx, asset.Name, e.historyDays)
	if err != nil {
		return e.recordFault(ctx, asset, nil, "", narrative, "price history fetch failed", err)
	}
	narrative.Addf("fetched %d daily candles", len(candles))

	decision, err := e.oracle.Recommend(ctx, asset.Name, candles)
	if err != nil {
		return e.recordFault(ctx, asset, nil, "", narrative, "oracle request failed", err)
	}
	narrative.Addf("oracle recommended %s (confidence %.2f, risk %s)", decision.Action, decision.Confidence, decision.Risk())

	if e.journal != nil {
		if err := e.journal.Record(asset.Name, decision); err != nil {
			e.logger.Warn("decision journal write failed", zap.String("asset", asset.Name), zap.Error(err))
		}
	}

	switch decision.TradeAction() {
	case domain.ActionHold:
		return e.evaluateHold(ctx, asset, decision, narrative)
	case domain.ActionBuy:
		return e.evaluateBuy(ctx, asset, decision, narrative, cashSnapshot, feeFactor, minOrderValue)
	case domain.ActionSell:
		return e.evaluateSell(ctx, asset, decision, narrative, feeFactor, minOrderValue)
	default:
		// the decision validator rules this out
		return e.recordFault(ctx, asset, nil, "", narrative, "unexpected decision", errors.Errorf("action %q", decision.Action))
	}
}

// evaluateHold records the verdict with a fresh market price. No order is
// ever placed for hold.
func (e *Evaluator) evaluateHold(ctx context.Context, asset domain.Asset, decision *domain.Decision, narrative *domain.Narrative) (*domain.Trade, error) {
	action := domain.ActionHold

	price, err := e.exchange.CurrentAskPrice(ctx, asset.Name)
	if err != nil {
		return e.recordFault(ctx, asset, &action, decision.Reason, narrative, "price fetch for hold snapshot failed", err)
	}
	narrative.Addf("holding at market price %s, no order placed", price)

	trade := &domain.Trade{
		AssetID:   &asset.ID,
		Action:    &action,
		Price:     price,
		Quantity:  decimal.Zero,
		RiskLevel: decision.Risk(),
		Status:    domain.StatusNoAction,
		Reason:    decision.Reason,
		Narrative: narrative.String(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

func (e *Evaluator) evaluateBuy(ctx context.Context, asset domain.Asset, decision *domain.Decision, narrative *domain.Narrative, cashSnapshot, feeFactor, minOrderValue decimal.Decimal) (*domain.Trade, error) {
	action := domain.ActionBuy

	available := cashSnapshot.Mul(feeFactor)
	narrative.Addf("cash %s, fee-adjusted budget %s", cashSnapshot, available)

	if available.LessThan(minOrderValue) {
		narrative.Addf("budget below minimum order value %s, buy not attempted", minOrderValue)
		return e.insertRejected(ctx, asset, &action, decision, narrative)
	}

	price, err := e.exchange.CurrentAskPrice(ctx, asset.Name)
	if err != nil {
		return e.recordFault(ctx, asset, &action, decision.Reason, narrative, "ask price fetch failed", err)
	}
	// a halted or delisted market can quote a zero ask; the quantity division
	// below would panic on it
	if price.IsZero() {
		return e.recordFault(ctx, asset, &action, decision.Reason, narrative, "unusable ask price",
			errors.Wrapf(clients.ErrRemoteAPI, "zero ask price for %s", asset.Name))
	}

	quantity := available.Div(price).Mul(feeFactor)
	narrative.Addf("ask price %s, buying quantity %s", price, quantity)

	trade := &domain.Trade{
		AssetID:   &asset.ID,
		Action:    &action,
		Price:     price,
		Quantity:  quantity,
		RiskLevel: decision.Risk(),
		Status:    domain.StatusPending,
		Reason:    decision.Reason,
		Narrative: narrative.String(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	orderErr := e.exchange.PlaceMarketBuy(ctx, asset.Name, available)
	return e.finalize(ctx, trade, narrative, "market buy", orderErr)
}

func (e *Evaluator) evaluateSell(ctx context.Context, asset domain.Asset, decision *domain.Decision, narrative *domain.Narrative, feeFactor, minOrderValue decimal.Decimal) (*domain.Trade, error) {
	action := domain.ActionSell

	held, err := e.exchange.HeldQuantity(ctx, asset.Name)
	if err != nil {
		return e.recordFault(ctx, asset, &action, decision.Reason, narrative, "held quantity fetch failed", err)
	}

	if held.IsZero() {
		narrative.Add("no holdings to sell, sell not attempted")
		return e.insertRejected(ctx, asset, &action, decision, narrative)
	}

	price, err := e.exchange.CurrentAskPrice(ctx, asset.Name)
	if err != nil {
		return e.recordFault(ctx, asset, &action, decision.Reason, narrative, "ask price fetch failed", err)
	}

	gross := held.Mul(price)
	net := gross.Mul(feeFactor)
	narrative.Addf("held %s at ask price %s, gross %s, net after fees %s", held, price, gross, net)

	if net.LessThan(minOrderValue) {
		narrative.Addf("net proceeds below minimum order value %s, sell not attempted", minOrderValue)
		return e.insertRejected(ctx, asset, &action, decision, narrative)
	}

	trade := &domain.Trade{
		AssetID:   &asset.ID,
		Action:    &action,
		Price:     price,
		Quantity:  held,
		RiskLevel: decision.Risk(),
		Status:    domain.StatusPending,
		Reason:    decision.Reason,
		Narrative: narrative.String(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	orderErr := e.exchange.PlaceMarketSell(ctx, asset.Name, held)
	return e.finalize(ctx, trade, narrative, "market sell", orderErr)
}

// finalize moves a pending row to its terminal status after an order attempt.
// The exchange gives no idempotency guarantee, so a failed attempt is
// recorded as failed even though its exchange-side outcome is unknown.
func (e *Evaluator) finalize(ctx context.Context, trade *domain.Trade, narrative *domain.Narrative, what string, orderErr error) (*domain.Trade, error) {
	if orderErr != nil {
		narrative.Addf("%s failed: %s", what, orderErr.Error())
		trade.Status = domain.StatusFailed
	} else {
		narrative.Addf("%s executed", what)
		trade.Status = domain.StatusSuccess
	}
	trade.Narrative = narrative.String()

	if err := e.trades.Update(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// insertRejected writes a terminal failed row for a rejection that happened
// before any order attempt. Price and quantity stay zero.
func (e *Evaluator) insertRejected(ctx context.Context, asset domain.Asset, action *domain.Action, decision *domain.Decision, narrative *domain.Narrative) (*domain.Trade, error) {
	trade := &domain.Trade{
		AssetID:   &asset.ID,
		Action:    action,
		Price:     decimal.Zero,
		Quantity:  decimal.Zero,
		RiskLevel: decision.Risk(),
		Status:    domain.StatusFailed,
		Reason:    decision.Reason,
		Narrative: narrative.String(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// recordFault classifies a remote fault, logs it, and writes a terminal
// failed row in a single insert.
func (e *Evaluator) recordFault(ctx context.Context, asset domain.Asset, action *domain.Action, reason string, narrative *domain.Narrative, what string, cause error) (*domain.Trade, error) {
	class := classifyFault(cause)
	narrative.Addf("%s (%s fault): %s", what, class, cause.Error())

	e.logger.Warn("asset evaluation fault",
		zap.String("asset", asset.Name),
		zap.String("fault_class", class),
		zap.Error(cause))

	risk := domain.RiskNone
	trade := &domain.Trade{
		AssetID:   &asset.ID,
		Action:    action,
		Price:     decimal.Zero,
		Quantity:  decimal.Zero,
		RiskLevel: risk,
		Status:    domain.StatusFailed,
		Reason:    reason,
		Narrative: narrative.String(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

func classifyFault(err error) string {
	switch {
	case errors.Is(err, clients.ErrRateLimited):
		return "rate_limit"
	case errors.Is(err, clients.ErrRemoteAPI):
		return "remote_api"
	default:
		return "unclassified"
	}
}
