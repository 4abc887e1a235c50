package clients

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// BinanceClient adapts the Binance spot API to the ExchangeClient surface.
type BinanceClient struct {
	client     *binance.Client
	settlement string
}

// NewBinanceClient creates a Binance-backed exchange client. settlement is
// the quote currency every asset trades against, e.g. "USDT".
func NewBinanceClient(client *binance.Client, settlement string) *BinanceClient {
	return &BinanceClient{client: client, settlement: settlement}
}

// symbol returns the venue symbol for an asset, e.g. "BTCUSDT".
func (c *BinanceClient) symbol(asset string) string {
	return asset + c.settlement
}

// CashBalance returns the free settlement-currency balance.
func (c *BinanceClient) CashBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.freeBalance(ctx, c.settlement)
}

// HeldQuantity returns the free balance of the asset itself.
func (c *BinanceClient) HeldQuantity(ctx context.Context, asset string) (decimal.Decimal, error) {
	return c.freeBalance(ctx, asset)
}

func (c *BinanceClient) freeBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(classifyBinanceErr(err), "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset == currency {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}

// CurrentAskPrice returns the best ask for the asset's market.
func (c *BinanceClient) CurrentAskPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	tickers, err := c.client.NewListBookTickersService().Symbol(c.symbol(asset)).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(classifyBinanceErr(err), "failed to fetch book ticker for %s", asset)
	}
	if len(tickers) == 0 {
		return decimal.Zero, errors.Wrapf(ErrRemoteAPI, "no book ticker for %s", c.symbol(asset))
	}

	price, err := decimal.NewFromString(tickers[0].AskPrice)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to parse ask price")
	}
	return price, nil
}

// PriceHistory returns up to count daily candles, oldest first.
func (c *BinanceClient) PriceHistory(ctx context.Context, asset string, count int) ([]domain.Candle, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(c.symbol(asset)).
		Interval("1d").
		Limit(count).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(classifyBinanceErr(err), "failed to fetch klines for %s", asset)
	}

	result := make([]domain.Candle, len(klines))
	for i, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse open price at index %d", i)
		}
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse high price at index %d", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse low price at index %d", i)
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse volume at index %d", i)
		}

		result[i] = domain.Candle{
			OpenTime: time.Unix(0, k.OpenTime*int64(time.Millisecond)),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		}
	}

	return result, nil
}

// PlaceMarketBuy spends the given settlement-currency amount at market price.
func (c *BinanceClient) PlaceMarketBuy(ctx context.Context, asset string, spend decimal.Decimal) error {
	_, err := c.client.NewCreateOrderService().Symbol(c.symbol(asset)).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeMarket).
		QuoteOrderQty(spend.String()).
		Do(ctx)
	return classifyBinanceErr(err)
}

// PlaceMarketSell sells the given asset quantity at market price.
func (c *BinanceClient) PlaceMarketSell(ctx context.Context, asset string, quantity decimal.Decimal) error {
	_, err := c.client.NewCreateOrderService().Symbol(c.symbol(asset)).
		Side(binance.SideTypeSell).Type(binance.OrderTypeMarket).
		Quantity(quantity.RoundFloor(8).String()).
		Do(ctx)
	return classifyBinanceErr(err)
}

// classifyBinanceErr maps SDK errors onto the shared fault classes.
func classifyBinanceErr(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*common.APIError); ok {
		// -1003: too many requests / IP banned
		if apiErr.Code == -1003 {
			return errors.Wrap(ErrRateLimited, apiErr.Message)
		}
		return errors.Wrapf(ErrRemoteAPI, "binance error %d: %s", apiErr.Code, apiErr.Message)
	}
	return err
}
