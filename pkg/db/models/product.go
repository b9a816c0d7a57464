package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog row prices and stock are read from. The catalog service owns
// writes; this service only reads it.
type Product struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string              `gorm:"column:name;not null"`
	CurrentPrice  decimal.NullDecimal `gorm:"column:current_price;type:numeric(12,2)"`
	PreviousPrice decimal.NullDecimal `gorm:"column:previous_price;type:numeric(12,2)"`
	Tax           decimal.NullDecimal `gorm:"column:tax;type:numeric(12,2)"`
	Stock         int                 `gorm:"column:stock;not null;default:0"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
