// Package executor runs one full trading cycle: it takes the cross-process
// execution lock, walks every active asset in registry order strictly one at
// a time, and always finishes a processed cycle with a balance snapshot.
package executor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// LockName is the shared name under which every worker process competes for
// a cycle.
const LockName = "trade_execution"

// ExecutionLock is a named, non-blocking mutex shared across worker
// processes. TryAcquire must fail closed when the backing store is down.
type ExecutionLock interface {
	TryAcquire(ctx context.Context, name string) bool
	Release(ctx context.Context)
}

// AssetRegistry lists the assets eligible for trading.
type AssetRegistry interface {
	ListActive(ctx context.Context) ([]domain.Asset, error)
}

// CashReader reads the current settlement-currency balance.
type CashReader interface {
	CashBalance(ctx context.Context) (decimal.Decimal, error)
}

// TradeEvaluator produces exactly one persisted trade row per asset.
type TradeEvaluator interface {
	Evaluate(ctx context.Context, asset domain.Asset, cashSnapshot, feeFactor, minOrderValue decimal.Decimal) (*domain.Trade, error)
}

// TradeStore appends global no-action rows.
type TradeStore interface {
	Create(ctx context.Context, trade *domain.Trade) error
}

// BalanceRecorder snapshots wallet state at the end of a cycle.
type BalanceRecorder interface {
	Record(ctx context.Context) (*domain.Balance, error)
}

// Executor orchestrates one trading cycle at a time, system-wide.
type Executor struct {
	lock          ExecutionLock
	lockName      string
	registry      AssetRegistry
	exchange      CashReader
	evaluator     TradeEvaluator
	trades        TradeStore
	recorder      BalanceRecorder
	feeFactor     decimal.Decimal
	minOrderValue decimal.Decimal
	logger        *zap.Logger
}

func New(
	lock ExecutionLock,
	registry AssetRegistry,
	exchange CashReader,
	evaluator TradeEvaluator,
	trades TradeStore,
	recorder BalanceRecorder,
	feeFactor, minOrderValue decimal.Decimal,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		lock:          lock,
		lockName:      LockName,
		registry:      registry,
		exchange:      exchange,
		evaluator:     evaluator,
		trades:        trades,
		recorder:      recorder,
		feeFactor:     feeFactor,
		minOrderValue: minOrderValue,
		logger:        logger,
	}
}

// Execute runs one trading cycle and returns the audit rows it produced.
//
// When another worker already holds the execution lock the cycle is skipped
// without writing anything; the next scheduled tick will try again. This is
// not an error.
func (e *Executor) Execute(ctx context.Context) ([]domain.Trade, error) {
	if !e.lock.TryAcquire(ctx, e.lockName) {
		e.logger.Info("another worker is already running this cycle, skipping")
		return nil, nil
	}
	defer e.lock.Release(ctx)

	assets, err := e.registry.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load active assets")
	}

	if len(assets) == 0 {
		trade, err := e.recordGlobalNoAction(ctx, "no active assets registered, nothing to trade")
		if err != nil {
			return nil, err
		}
		return []domain.Trade{*trade}, nil
	}

	cash, err := e.exchange.CashBalance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read cash balance")
	}
	if cash.IsZero() {
		trade, err := e.recordGlobalNoAction(ctx, "cash balance is zero, buying impossible")
		if err != nil {
			return nil, err
		}
		return []domain.Trade{*trade}, nil
	}

	// Assets are processed strictly one at a time, in registry order. The
	// cash snapshot threaded through the loop is the only shared state, and
	// it is refreshed after every successful buy so two sequential buys can
	// never double-spend the same balance.
	trades := make([]domain.Trade, 0, len(assets))
	for _, asset := range assets {
		trade, err := e.evaluator.Evaluate(ctx, asset, cash, e.feeFactor, e.minOrderValue)
		if err != nil {
			// one asset's fault never aborts the batch
			e.logger.Error("asset evaluation fault, continuing with next asset",
				zap.String("asset", asset.Name), zap.Error(err))
			continue
		}
		trades = append(trades, *trade)

		if boughtSuccessfully(trade) {
			fresh, err := e.exchange.CashBalance(ctx)
			if err != nil {
				e.logger.Warn("cash re-read after buy failed, keeping previous snapshot", zap.Error(err))
				continue
			}
			cash = fresh
		}
	}

	// The snapshot is taken no matter how the individual evaluations went.
	// A failure here is the cycle's own failure and propagates.
	balance, err := e.recorder.Record(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "record balance snapshot")
	}

	e.logger.Info("trading cycle finished",
		zap.Int("trades", len(trades)),
		zap.String("cash", balance.Cash.String()),
		zap.String("holdings_value", balance.HoldingsValue.String()))

	return trades, nil
}

func boughtSuccessfully(trade *domain.Trade) bool {
	return trade.Status == domain.StatusSuccess && trade.Action != nil && *trade.Action == domain.ActionBuy
}

// recordGlobalNoAction writes the single no-asset-processing row for a cycle
// that had nothing to evaluate.
func (e *Executor) recordGlobalNoAction(ctx context.Context, why string) (*domain.Trade, error) {
	narrative := domain.NewNarrative()
	narrative.Add(why)

	trade := &domain.Trade{
		Price:     decimal.Zero,
		Quantity:  decimal.Zero,
		RiskLevel: domain.RiskNone,
		Status:    domain.StatusNoAction,
		Narrative: narrative.String(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, errors.Wrap(err, "record global no-action")
	}

	e.logger.Info("trading cycle produced no action", zap.String("why", why))
	return trade, nil
}
