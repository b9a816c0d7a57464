package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout commits a cart into a pending order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID         `json:"orderId"`
	UserID     uuid.UUID         `json:"userId"`
	Status     enums.OrderStatus `json:"status"`
	ItemCount  int               `json:"itemCount"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
}

// OrderStatusChangedEvent is emitted for every applied lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"orderId"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedBy uuid.UUID         `json:"changedBy"`
	ChangedAt time.Time         `json:"changedAt"`
}
