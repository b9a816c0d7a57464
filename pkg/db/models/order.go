package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the immutable price snapshot committed at checkout. Only Status and
// UpdatedAt change after insert.
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Status     enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Subtotal   decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount   decimal.Decimal   `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Tax        decimal.Decimal   `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	TotalPrice decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null"`
	Items      []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
