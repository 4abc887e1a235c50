package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the trade action recommended by the decision oracle.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// RiskLevel is the oracle's stated risk tier for a recommendation.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether the risk level is one of the known tiers.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// TradeStatus is the lifecycle state of a trade record.
//
// A record is written once with a terminal status when the evaluation was
// rejected before any order attempt, or written as StatusPending and updated
// exactly once to StatusSuccess or StatusFailed after the order attempt.
type TradeStatus string

const (
	StatusPending TradeStatus = "pending"
	StatusSuccess TradeStatus = "success"
	// StatusPartialSuccess is reserved in the schema for partially filled
	// orders; no current code path emits it.
	StatusPartialSuccess TradeStatus = "partial_success"
	StatusFailed         TradeStatus = "failed"
	StatusNoAction       TradeStatus = "no_action"
)

// Valid reports whether the status is one of the defined values.
func (s TradeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusPartialSuccess, StatusFailed, StatusNoAction:
		return true
	}
	return false
}

// Terminal reports whether the status ends the record's lifecycle.
func (s TradeStatus) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// Trade is one audit row per orchestration attempt against one asset, or a
// global row when a run produced no asset-level processing at all.
//
// AssetID is nil only for global no-action rows. Action is nil only when the
// evaluation aborted before a decision was reached (e.g. oracle failure).
type Trade struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetID   *uint64         `gorm:"index" json:"asset_id,omitempty"`
	Action    *Action         `gorm:"type:varchar(10)" json:"action,omitempty"`
	Price     decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"price"`
	Quantity  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"quantity"`
	RiskLevel RiskLevel       `gorm:"type:varchar(10);not null;default:none" json:"risk_level"`
	Status    TradeStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	Reason    string          `gorm:"type:text" json:"reason,omitempty"`
	Narrative string          `gorm:"type:text" json:"narrative,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
