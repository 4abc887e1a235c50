package clients

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// Remote fault classes surfaced to callers. Wrapped errors should be checked
// with errors.Is.
var (
	// ErrRateLimited marks requests rejected by a remote API's rate limiter.
	ErrRateLimited = errors.New("rate limited by remote API")
	// ErrRemoteAPI marks a remote API that answered with a fault.
	ErrRemoteAPI = errors.New("remote API fault")
)

// ExchangeClient is the venue-side surface the trading core depends on.
// Calls may fail and none of them are idempotent: a failed order placement
// may or may not have executed on the exchange.
type ExchangeClient interface {
	// CashBalance returns the free settlement-currency balance.
	CashBalance(ctx context.Context) (decimal.Decimal, error)
	// HeldQuantity returns the free balance of the asset itself.
	HeldQuantity(ctx context.Context, asset string) (decimal.Decimal, error)
	// CurrentAskPrice returns the best ask for the asset's market.
	CurrentAskPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	// PriceHistory returns up to count daily candles, oldest first.
	PriceHistory(ctx context.Context, asset string, count int) ([]domain.Candle, error)
	// PlaceMarketBuy spends the given settlement-currency amount at market.
	PlaceMarketBuy(ctx context.Context, asset string, spend decimal.Decimal) error
	// PlaceMarketSell sells the given asset quantity at market.
	PlaceMarketSell(ctx context.Context, asset string, quantity decimal.Decimal) error
}
