package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/internal/storage"
)

type fakeRunner struct {
	trades []domain.Trade
	err    error
}

func (f *fakeRunner) Execute(context.Context) ([]domain.Trade, error) {
	return f.trades, f.err
}

type fakeTradeLister struct {
	page    *storage.Page[domain.Trade]
	cursor  uint64
	limit   int
	assetID uint64
}

func (f *fakeTradeLister) List(_ context.Context, cursor uint64, limit int) (*storage.Page[domain.Trade], error) {
	f.cursor, f.limit = cursor, limit
	return f.page, nil
}

func (f *fakeTradeLister) ListByAsset(_ context.Context, assetID, cursor uint64, limit int) (*storage.Page[domain.Trade], error) {
	f.assetID, f.cursor, f.limit = assetID, cursor, limit
	return f.page, nil
}

type fakeBalanceLister struct {
	page *storage.Page[domain.Balance]
	err  error
}

func (f *fakeBalanceLister) List(context.Context, uint64, int) (*storage.Page[domain.Balance], error) {
	return f.page, f.err
}

type fakeRegistry struct {
	assets    []domain.Asset
	created   []string
	retired   []uint64
	retireErr error
}

func (f *fakeRegistry) ListActive(context.Context) ([]domain.Asset, error) {
	return f.assets, nil
}

func (f *fakeRegistry) ListAll(context.Context) ([]domain.Asset, error) {
	return f.assets, nil
}

func (f *fakeRegistry) GetByID(_ context.Context, id uint64) (*domain.Asset, error) {
	for _, a := range f.assets {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, storage.ErrAssetNotFound
}

func (f *fakeRegistry) CreateOrRestore(_ context.Context, name string) (*domain.Asset, error) {
	f.created = append(f.created, name)
	return &domain.Asset{ID: uint64(len(f.created)), Name: name, Active: true}, nil
}

func (f *fakeRegistry) Retire(_ context.Context, id uint64) error {
	if f.retireErr != nil {
		return f.retireErr
	}
	f.retired = append(f.retired, id)
	return nil
}

func newTestServer(runner *fakeRunner, trades *fakeTradeLister, balances *fakeBalanceLister, registry *fakeRegistry) *httptest.Server {
	if runner == nil {
		runner = &fakeRunner{}
	}
	if trades == nil {
		trades = &fakeTradeLister{page: &storage.Page[domain.Trade]{Items: []domain.Trade{}}}
	}
	if balances == nil {
		balances = &fakeBalanceLister{page: &storage.Page[domain.Balance]{Items: []domain.Balance{}}}
	}
	if registry == nil {
		registry = &fakeRegistry{}
	}
	s := NewServer("", runner, trades, balances, registry, zap.NewNop())
	return httptest.NewServer(s.Handler())
}

func TestExecuteTradesEndpoint(t *testing.T) {
	action := domain.ActionBuy
	assetID := uint64(1)
	runner := &fakeRunner{trades: []domain.Trade{
		{ID: 7, AssetID: &assetID, Action: &action, Status: domain.StatusSuccess},
	}}
	ts := newTestServer(runner, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/trade", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Trades []domain.Trade `json:"trades"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Trades, 1)
	assert.Equal(t, uint64(7), body.Trades[0].ID)
}

func TestExecuteTradesSkippedCycle(t *testing.T) {
	// a nil trade slice means another worker held the lock
	ts := newTestServer(&fakeRunner{trades: nil}, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/trade", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExecuteTradesFailure(t *testing.T) {
	ts := newTestServer(&fakeRunner{err: errors.New("db down")}, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/trade", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestListTransactionsPageParams(t *testing.T) {
	next := uint64(42)
	lister := &fakeTradeLister{page: &storage.Page[domain.Trade]{
		Items:      []domain.Trade{{ID: 43}},
		NextCursor: &next,
		HasNext:    true,
	}}
	ts := newTestServer(nil, lister, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/trade/transactions?cursor=50&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, uint64(50), lister.cursor)
	assert.Equal(t, 5, lister.limit)

	var page storage.Page[domain.Trade]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.True(t, page.HasNext)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, uint64(42), *page.NextCursor)
}

func TestListTransactionsLimitClamped(t *testing.T) {
	lister := &fakeTradeLister{page: &storage.Page[domain.Trade]{Items: []domain.Trade{}}}
	ts := newTestServer(nil, lister, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/trade/transactions?limit=500")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, maxPageLimit, lister.limit)
}

func TestListTransactionsBadCursor(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/trade/transactions?cursor=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListBalances(t *testing.T) {
	balances := &fakeBalanceLister{page: &storage.Page[domain.Balance]{
		Items: []domain.Balance{{ID: 3}, {ID: 2}},
	}}
	ts := newTestServer(nil, nil, balances, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/balances")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page storage.Page[domain.Balance]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasNext)
}

func TestCreateAssetNormalizesName(t *testing.T) {
	registry := &fakeRegistry{}
	ts := newTestServer(nil, nil, nil, registry)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/assets", "application/json",
		strings.NewReader(`{"name": " btc "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Len(t, registry.created, 1)
	assert.Equal(t, "BTC", registry.created[0])
}

func TestCreateAssetEmptyName(t *testing.T) {
	ts := newTestServer(nil, nil, nil, &fakeRegistry{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/assets", "application/json",
		strings.NewReader(`{"name": ""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAssetTransactions(t *testing.T) {
	lister := &fakeTradeLister{page: &storage.Page[domain.Trade]{Items: []domain.Trade{{ID: 1}}}}
	registry := &fakeRegistry{assets: []domain.Asset{{ID: 4, Name: "XRP"}}}
	ts := newTestServer(nil, lister, nil, registry)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/assets/4/transactions?limit=10")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, uint64(4), lister.assetID)
	assert.Equal(t, 10, lister.limit)
}

func TestListAssetTransactionsUnknownAsset(t *testing.T) {
	ts := newTestServer(nil, nil, nil, &fakeRegistry{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/assets/99/transactions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRetireAsset(t *testing.T) {
	registry := &fakeRegistry{}
	ts := newTestServer(nil, nil, nil, registry)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/assets/12", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []uint64{12}, registry.retired)
}

func TestRetireAssetNotFound(t *testing.T) {
	registry := &fakeRegistry{retireErr: storage.ErrAssetNotFound}
	ts := newTestServer(nil, nil, nil, registry)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/assets/99", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
