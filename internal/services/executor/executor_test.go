package executor

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/domain"
)

var (
	feeFactor     = decimal.RequireFromString("0.9995")
	minOrderValue = decimal.NewFromInt(5000)
)

type fakeLock struct {
	available bool
	held      bool
	releases  int
}

func (l *fakeLock) TryAcquire(context.Context, string) bool {
	if !l.available || l.held {
		return false
	}
	l.held = true
	return true
}

func (l *fakeLock) Release(context.Context) {
	if l.held {
		l.held = false
		l.releases++
	}
}

type fakeRegistry struct {
	assets []domain.Asset
	err    error
}

func (r *fakeRegistry) ListActive(context.Context) ([]domain.Asset, error) {
	return r.assets, r.err
}

// fakeCashReader returns the next balance from the sequence, sticking to the
// last one when the sequence runs out.
type fakeCashReader struct {
	balances []decimal.Decimal
	err      error
	calls    int
}

func (c *fakeCashReader) CashBalance(context.Context) (decimal.Decimal, error) {
	if c.err != nil {
		return decimal.Zero, c.err
	}
	idx := c.calls
	if idx >= len(c.balances) {
		idx = len(c.balances) - 1
	}
	c.calls++
	return c.balances[idx], nil
}

type evaluateCall struct {
	asset domain.Asset
	cash  decimal.Decimal
}

// scriptedEvaluator returns pre-baked outcomes per asset name.
type scriptedEvaluator struct {
	outcomes map[string]*domain.Trade
	faults   map[string]error
	calls    []evaluateCall
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, asset domain.Asset, cash, _, _ decimal.Decimal) (*domain.Trade, error) {
	e.calls = append(e.calls, evaluateCall{asset: asset, cash: cash})
	if err := e.faults[asset.Name]; err != nil {
		return nil, err
	}
	return e.outcomes[asset.Name], nil
}

type memTradeStore struct {
	created []domain.Trade
}

func (s *memTradeStore) Create(_ context.Context, trade *domain.Trade) error {
	trade.ID = uint64(len(s.created) + 1)
	s.created = append(s.created, *trade)
	return nil
}

type fakeRecorder struct {
	err   error
	calls int
}

func (r *fakeRecorder) Record(context.Context) (*domain.Balance, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Balance{Cash: decimal.NewFromInt(1000), HoldingsValue: decimal.NewFromInt(500)}, nil
}

func successfulBuy(assetID uint64) *domain.Trade {
	action := domain.ActionBuy
	return &domain.Trade{AssetID: &assetID, Action: &action, Status: domain.StatusSuccess}
}

func holdTrade(assetID uint64) *domain.Trade {
	action := domain.ActionHold
	return &domain.Trade{AssetID: &assetID, Action: &action, Status: domain.StatusNoAction}
}

func newExecutor(lock *fakeLock, registry *fakeRegistry, cashReader *fakeCashReader, eval *scriptedEvaluator, store *memTradeStore, recorder *fakeRecorder) *Executor {
	return New(lock, registry, cashReader, eval, store, recorder, feeFactor, minOrderValue, zap.NewNop())
}

func TestExecuteLockNotAcquired(t *testing.T) {
	lock := &fakeLock{available: false}
	store := &memTradeStore{}
	recorder := &fakeRecorder{}
	eval := &scriptedEvaluator{}
	e := newExecutor(lock, &fakeRegistry{}, &fakeCashReader{}, eval, store, recorder)

	trades, err := e.Execute(context.Background())
	require.NoError(t, err)

	assert.Nil(t, trades)
	assert.Empty(t, store.created)
	assert.Empty(t, eval.calls)
	assert.Zero(t, recorder.calls)
}

func TestExecuteNoActiveAssets(t *testing.T) {
	lock := &fakeLock{available: true}
	store := &memTradeStore{}
	recorder := &fakeRecorder{}
	e := newExecutor(lock, &fakeRegistry{}, &fakeCashReader{}, &scriptedEvaluator{}, store, recorder)

	trades, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, domain.StatusNoAction, trades[0].Status)
	assert.Nil(t, trades[0].AssetID)
	assert.Nil(t, trades[0].Action)
	assert.Contains(t, trades[0].Narrative, "no active assets")

	assert.Equal(t, 1, lock.releases)
}

func TestExecuteZeroCash(t *testing.T) {
	lock := &fakeLock{available: true}
	registry := &fakeRegistry{assets: []domain.Asset{{ID: 1, Name: "BTC"}}}
	cashReader := &fakeCashReader{balances: []decimal.Decimal{decimal.Zero}}
	eval := &scriptedEvaluator{}
	store := &memTradeStore{}
	e := newExecutor(lock, registry, cashReader, eval, store, &fakeRecorder{})

	trades, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, domain.StatusNoAction, trades[0].Status)
	assert.Nil(t, trades[0].AssetID)
	assert.Contains(t, trades[0].Narrative, "cash balance is zero")
	// no per-asset evaluation happened
	assert.Empty(t, eval.calls)
}

func TestExecuteRefreshesCashAfterBuy(t *testing.T) {
	lock := &fakeLock{available: true}
	registry := &fakeRegistry{assets: []domain.Asset{{ID: 1, Name: "BTC"}, {ID: 2, Name: "ETH"}}}
	// initial read, then the post-buy re-read
	cashReader := &fakeCashReader{balances: []decimal.Decimal{
		decimal.NewFromInt(100_000),
		decimal.NewFromInt(100),
	}}
	eval := &scriptedEvaluator{outcomes: map[string]*domain.Trade{
		"BTC": successfulBuy(1),
		"ETH": holdTrade(2),
	}}
	recorder := &fakeRecorder{}
	e := newExecutor(lock, registry, cashReader, eval, &memTradeStore{}, recorder)

	trades, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 2)

	require.Len(t, eval.calls, 2)
	assert.True(t, eval.calls[0].cash.Equal(decimal.NewFromInt(100_000)))
	// second asset sees the refreshed balance, not the one from run start
	assert.True(t, eval.calls[1].cash.Equal(decimal.NewFromInt(100)),
		"second evaluation used %s", eval.calls[1].cash)

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, 1, lock.releases)
}

func TestExecuteEvaluatorFaultDoesNotAbortBatch(t *testing.T) {
	lock := &fakeLock{available: true}
	registry := &fakeRegistry{assets: []domain.Asset{{ID: 1, Name: "BTC"}, {ID: 2, Name: "ETH"}}}
	cashReader := &fakeCashReader{balances: []decimal.Decimal{decimal.NewFromInt(100_000)}}
	eval := &scriptedEvaluator{
		outcomes: map[string]*domain.Trade{"ETH": holdTrade(2)},
		faults:   map[string]error{"BTC": errors.New("db down")},
	}
	recorder := &fakeRecorder{}
	e := newExecutor(lock, registry, cashReader, eval, &memTradeStore{}, recorder)

	trades, err := e.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, trades, 1)
	require.NotNil(t, trades[0].AssetID)
	assert.Equal(t, uint64(2), *trades[0].AssetID)

	require.Len(t, eval.calls, 2)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, 1, lock.releases)
}

func TestExecuteRecorderFailurePropagates(t *testing.T) {
	lock := &fakeLock{available: true}
	registry := &fakeRegistry{assets: []domain.Asset{{ID: 1, Name: "BTC"}}}
	cashReader := &fakeCashReader{balances: []decimal.Decimal{decimal.NewFromInt(100_000)}}
	eval := &scriptedEvaluator{outcomes: map[string]*domain.Trade{"BTC": holdTrade(1)}}
	recorder := &fakeRecorder{err: errors.New("snapshot failed")}
	e := newExecutor(lock, registry, cashReader, eval, &memTradeStore{}, recorder)

	_, err := e.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record balance snapshot")

	// the lock is still released on the failure path
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestExecuteLockFreeForNextRun(t *testing.T) {
	lock := &fakeLock{available: true}
	e := newExecutor(lock, &fakeRegistry{}, &fakeCashReader{}, &scriptedEvaluator{}, &memTradeStore{}, &fakeRecorder{})

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	_, err = e.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, lock.releases)
}
