package storage

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// BalanceRepository persists the append-only balance history.
type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Create appends one balance snapshot.
func (r *BalanceRepository) Create(ctx context.Context, balance *domain.Balance) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(balance).Error, "create balance")
}

// List returns one page of balance history, newest first.
func (r *BalanceRepository) List(ctx context.Context, cursor uint64, limit int) (*Page[domain.Balance], error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit + 1)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}

	var rows []domain.Balance
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list balances")
	}

	return newPage(rows, limit, func(b domain.Balance) uint64 { return b.ID }), nil
}
