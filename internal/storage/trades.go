package storage

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/coinpilot/coinpilot/internal/domain"
)

const defaultPageSize = 50

// TradeRepository persists trade audit records.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade record and fills in its generated id.
func (r *TradeRepository) Create(ctx context.Context, trade *domain.Trade) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(trade).Error, "create trade")
}

// Update writes back all fields of an existing trade record. Used only for
// the single pending-to-terminal transition of an attempted order, so the
// incoming status must be terminal.
func (r *TradeRepository) Update(ctx context.Context, trade *domain.Trade) error {
	if trade.ID == 0 {
		return errors.New("cannot update trade without id")
	}
	if !trade.Status.Terminal() {
		return errors.Errorf("cannot update trade %d to non-terminal status %q", trade.ID, trade.Status)
	}
	return errors.Wrap(r.db.WithContext(ctx).Save(trade).Error, "update trade")
}

// List returns one page of trade history, newest first. A zero cursor starts
// from the newest record.
func (r *TradeRepository) List(ctx context.Context, cursor uint64, limit int) (*Page[domain.Trade], error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit + 1)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}

	var rows []domain.Trade
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list trades")
	}

	return newPage(rows, limit, func(t domain.Trade) uint64 { return t.ID }), nil
}

// ListByAsset returns one page of trade history for a single asset.
func (r *TradeRepository) ListByAsset(ctx context.Context, assetID, cursor uint64, limit int) (*Page[domain.Trade], error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	q := r.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("id DESC").Limit(limit + 1)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}

	var rows []domain.Trade
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list trades by asset")
	}

	return newPage(rows, limit, func(t domain.Trade) uint64 { return t.ID }), nil
}
