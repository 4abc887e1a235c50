package clients

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/coinpilot/coinpilot/internal/domain"
)

const (
	upbitAPIURL      = "https://api.upbit.com"
	upbitHTTPTimeout = 15 * time.Second

	// Upbit allows 10 req/s for the quotation API; stay under it.
	upbitRequestsPerSecond = 8
)

// UpbitClient talks to the Upbit REST API. Private endpoints are signed with
// a per-request JWT (HS256, uuid nonce, SHA512 hash of the query string).
type UpbitClient struct {
	apiURL     string
	accessKey  string
	settlement string
	signer     jose.Signer
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewUpbitClient creates an Upbit client. settlement is the market currency
// every asset trades against, e.g. "KRW".
func NewUpbitClient(accessKey, secretKey, settlement string) (*UpbitClient, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secretKey)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create upbit request signer")
	}

	return &UpbitClient{
		apiURL:     upbitAPIURL,
		accessKey:  accessKey,
		settlement: settlement,
		signer:     signer,
		httpClient: &http.Client{Timeout: upbitHTTPTimeout},
		limiter:    rate.NewLimiter(upbitRequestsPerSecond, 1),
	}, nil
}

// market returns the venue market code for an asset, e.g. "KRW-BTC".
func (c *UpbitClient) market(asset string) string {
	return c.settlement + "-" + asset
}

type upbitAccount struct {
	Currency string      `json:"currency"`
	Balance  json.Number `json:"balance"`
	Locked   json.Number `json:"locked"`
}

// CashBalance returns the free settlement-currency balance.
func (c *UpbitClient) CashBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.freeBalance(ctx, c.settlement)
}

// HeldQuantity returns the free balance of the asset itself.
func (c *UpbitClient) HeldQuantity(ctx context.Context, asset string) (decimal.Decimal, error) {
	return c.freeBalance(ctx, asset)
}

func (c *UpbitClient) freeBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	var accounts []upbitAccount
	if err := c.get(ctx, "/v1/accounts", nil, true, &accounts); err != nil {
		return decimal.Zero, errors.Wrap(err, "fetch accounts")
	}

	for _, acc := range accounts {
		if acc.Currency != currency {
			continue
		}
		balance, err := decimal.NewFromString(acc.Balance.String())
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse balance for %s", currency)
		}
		return balance, nil
	}

	// An account the exchange has never touched simply doesn't appear.
	return decimal.Zero, nil
}

type upbitOrderbook struct {
	Market string `json:"market"`
	Units  []struct {
		AskPrice json.Number `json:"ask_price"`
		BidPrice json.Number `json:"bid_price"`
	} `json:"orderbook_units"`
}

// CurrentAskPrice returns the best ask for the asset's market.
func (c *UpbitClient) CurrentAskPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("markets", c.market(asset))

	var books []upbitOrderbook
	if err := c.get(ctx, "/v1/orderbook", params, false, &books); err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch orderbook for %s", asset)
	}
	if len(books) == 0 || len(books[0].Units) == 0 {
		return decimal.Zero, errors.Wrapf(ErrRemoteAPI, "empty orderbook for %s", c.market(asset))
	}

	price, err := decimal.NewFromString(books[0].Units[0].AskPrice.String())
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse ask price")
	}
	return price, nil
}

type upbitCandle struct {
	CandleDateTimeUTC string      `json:"candle_date_time_utc"`
	OpeningPrice      json.Number `json:"opening_price"`
	HighPrice         json.Number `json:"high_price"`
	LowPrice          json.Number `json:"low_price"`
	TradePrice        json.Number `json:"trade_price"`
	AccTradeVolume    json.Number `json:"candle_acc_trade_volume"`
}

// PriceHistory returns up to count daily candles, oldest first.
func (c *UpbitClient) PriceHistory(ctx context.Context, asset string, count int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("market", c.market(asset))
	params.Set("count", fmt.Sprintf("%d", count))

	var raw []upbitCandle
	if err := c.get(ctx, "/v1/candles/days", params, false, &raw); err != nil {
		return nil, errors.Wrapf(err, "fetch daily candles for %s", asset)
	}

	// Upbit returns newest first.
	candles := make([]domain.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		candle, err := raw[i].toDomain()
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (u upbitCandle) toDomain() (domain.Candle, error) {
	openTime, err := time.Parse("2006-01-02T15:04:05", u.CandleDateTimeUTC)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "parse candle time")
	}

	fields := [...]json.Number{u.OpeningPrice, u.HighPrice, u.LowPrice, u.TradePrice, u.AccTradeVolume}
	parsed := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		v, err := decimal.NewFromString(f.String())
		if err != nil {
			return domain.Candle{}, errors.Wrap(err, "parse candle field")
		}
		parsed[i] = v
	}

	return domain.Candle{
		OpenTime: openTime,
		Open:     parsed[0],
		High:     parsed[1],
		Low:      parsed[2],
		Close:    parsed[3],
		Volume:   parsed[4],
	}, nil
}

// PlaceMarketBuy spends the given settlement-currency amount at market price.
func (c *UpbitClient) PlaceMarketBuy(ctx context.Context, asset string, spend decimal.Decimal) error {
	params := url.Values{}
	params.Set("market", c.market(asset))
	params.Set("side", "bid")
	params.Set("ord_type", "price")
	params.Set("price", spend.String())
	return c.placeOrder(ctx, params)
}

// PlaceMarketSell sells the given asset quantity at market price.
func (c *UpbitClient) PlaceMarketSell(ctx context.Context, asset string, quantity decimal.Decimal) error {
	params := url.Values{}
	params.Set("market", c.market(asset))
	params.Set("side", "ask")
	params.Set("ord_type", "market")
	params.Set("volume", quantity.String())
	return c.placeOrder(ctx, params)
}

func (c *UpbitClient) placeOrder(ctx context.Context, params url.Values) error {
	body := make(map[string]string, len(params))
	for key := range params {
		body[key] = params.Get(key)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal order")
	}

	token, err := c.authToken(params.Encode())
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create order request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "order request failed")
	}
	defer resp.Body.Close()

	return c.checkStatus(resp)
}

func (c *UpbitClient) get(ctx context.Context, path string, params url.Values, private bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.apiURL + path
	query := ""
	if params != nil {
		query = params.Encode()
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	if private {
		token, err := c.authToken(query)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func (c *UpbitClient) checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.Wrapf(ErrRateLimited, "upbit: %s", string(body))
	}
	return errors.Wrapf(ErrRemoteAPI, "upbit returned status %d: %s", resp.StatusCode, string(body))
}

// authToken builds the per-request JWT. query is the urlencoded query string
// of the request, empty for parameterless calls.
func (c *UpbitClient) authToken(query string) (string, error) {
	claims := map[string]interface{}{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		hash := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(hash[:])
		claims["query_hash_alg"] = "SHA512"
	}

	token, err := jwt.Signed(c.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", errors.Wrap(err, "sign upbit token")
	}
	return token, nil
}
