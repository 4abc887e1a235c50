package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is an append-only snapshot of wallet state taken at the end of
// every orchestration run: free cash plus the market value of all holdings,
// both in the settlement currency. Never mutated, never deleted.
type Balance struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Cash          decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"cash"`
	HoldingsValue decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"holdings_value"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Balance) TableName() string {
	return "balances"
}
