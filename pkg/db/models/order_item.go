package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem captures the product, quantity and prices a line was sold at.
type OrderItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	Qty           int                 `gorm:"column:qty;not null"`
	UnitPrice     decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null"`
	PreviousPrice decimal.NullDecimal `gorm:"column:previous_price;type:numeric(12,2)"`
	UnitTax       decimal.Decimal     `gorm:"column:unit_tax;type:numeric(12,2);not null;default:0"`
	LineTotal     decimal.Decimal     `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}
