// Package balance snapshots wallet state after every trading cycle.
package balance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// ExchangeReader is the read-only exchange surface the recorder needs.
type ExchangeReader interface {
	CashBalance(ctx context.Context) (decimal.Decimal, error)
	HeldQuantity(ctx context.Context, asset string) (decimal.Decimal, error)
	CurrentAskPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

// AssetLister lists the assets whose holdings count toward total value.
type AssetLister interface {
	ListActive(ctx context.Context) ([]domain.Asset, error)
}

// BalanceStore appends snapshot rows.
type BalanceStore interface {
	Create(ctx context.Context, balance *domain.Balance) error
}

// Recorder values the wallet and appends one balance row per call. It does
// not retry: it runs as the cycle's own finalization step, so a fault here
// is the cycle's fault and propagates to the caller.
type Recorder struct {
	exchange ExchangeReader
	assets   AssetLister
	store    BalanceStore
	logger   *zap.Logger
}

func NewRecorder(exchange ExchangeReader, assets AssetLister, store BalanceStore, logger *zap.Logger) *Recorder {
	return &Recorder{exchange: exchange, assets: assets, store: store, logger: logger}
}

// Record reads current cash, values every active asset's holdings at the
// current ask price, and persists the snapshot.
func (r *Recorder) Record(ctx context.Context) (*domain.Balance, error) {
	cash, err := r.exchange.CashBalance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read cash balance")
	}

	assets, err := r.assets.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active assets")
	}

	total := decimal.Zero
	for _, asset := range assets {
		held, err := r.exchange.HeldQuantity(ctx, asset.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "read held quantity for %s", asset.Name)
		}
		if held.IsZero() {
			continue
		}

		price, err := r.exchange.CurrentAskPrice(ctx, asset.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "read ask price for %s", asset.Name)
		}
		total = total.Add(held.Mul(price))
	}

	snapshot := &domain.Balance{Cash: cash, HoldingsValue: total}
	if err := r.store.Create(ctx, snapshot); err != nil {
		return nil, errors.Wrap(err, "persist balance snapshot")
	}

	r.logger.Debug("balance snapshot recorded",
		zap.String("cash", cash.String()),
		zap.String("holdings_value", total.String()))

	return snapshot, nil
}
