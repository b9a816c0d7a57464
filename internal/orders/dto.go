package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderItemDTO is the immutable line snapshot captured at checkout.
type OrderItemDTO struct {
	ProductID     uuid.UUID        `json:"productId"`
	Qty           int              `json:"qty"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	PreviousPrice *decimal.Decimal `json:"previousPrice,omitempty"`
	UnitTax       decimal.Decimal  `json:"tax"`
	LineTotal     decimal.Decimal  `json:"lineTotal"`
}

// OrderDTO is the wire shape of an order.
type OrderDTO struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"userId"`
	Status     enums.OrderStatus `json:"status"`
	Items      []OrderItemDTO    `json:"items"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Discount   decimal.Decimal   `json:"discount"`
	Tax        decimal.Decimal   `json:"tax"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// OrderList is one page of the admin review listing.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	TotalPages int        `json:"totalPages"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	Total      int64      `json:"total"`
}

// ToDTO maps a persisted order to its wire shape.
func ToDTO(order models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		dto := OrderItemDTO{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
			UnitTax:   item.UnitTax,
			LineTotal: item.LineTotal,
		}
		if item.PreviousPrice.Valid {
			prev := item.PreviousPrice.Decimal
			dto.PreviousPrice = &prev
		}
		items = append(items, dto)
	}
	return OrderDTO{
		ID:         order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Items:      items,
		Subtotal:   order.Subtotal,
		Discount:   order.Discount,
		Tax:        order.Tax,
		TotalPrice: order.TotalPrice,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}
