package domain

import "time"

// Asset is a tradable market tracked by the registry. Retirement is soft:
// a retired asset is excluded from future runs but keeps its trade history.
type Asset struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"name"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Asset) TableName() string {
	return "assets"
}
