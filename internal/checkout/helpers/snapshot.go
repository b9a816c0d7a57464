package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// BuildOrder freezes a priced quote into a pending order. lines must be the input the quote
// was computed from. Item prices are copied so later catalog changes never alter the order.
func BuildOrder(userID uuid.UUID, quote pricing.Quote, lines []pricing.Line) models.Order {
	order := models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     enums.OrderStatusPending,
		Subtotal:   quote.Totals.Subtotal,
		Discount:   quote.Totals.Discount,
		Tax:        quote.Totals.Tax,
		TotalPrice: quote.Totals.Total,
		Items:      make([]models.OrderItem, 0, len(quote.Lines)),
	}

	for i, lt := range quote.Lines {
		item := models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: lt.ProductID,
			Qty:       lt.Qty,
			UnitPrice: lt.UnitPrice,
			UnitTax:   lt.UnitTax,
			LineTotal: lt.Subtotal.Sub(lt.Discount).Add(lt.Tax),
		}
		if i < len(lines) {
			if prev := lines[i].Snapshot.PreviousPrice; prev.Valid && prev.Decimal.IsPositive() {
				item.PreviousPrice = prev
			}
		}
		order.Items = append(order.Items, item)
	}
	return order
}
