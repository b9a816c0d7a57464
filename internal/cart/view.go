package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Warning codes attached to cart lines whose stored state no longer matches the catalog.
const (
	WarningQtyClamped       = "qty_clamped"
	WarningOutOfStock       = "out_of_stock"
	WarningUnavailable      = "unavailable"
	WarningPriceUnavailable = "price_unavailable"
)

// ItemView is a cart line joined with the current snapshot of its product.
type ItemView struct {
	ProductID     uuid.UUID        `json:"productId"`
	Qty           int              `json:"qty"`
	StoredQty     int              `json:"storedQty"`
	MaxQty        int              `json:"maxQty"`
	Stock         int              `json:"stock"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	PreviousPrice *decimal.Decimal `json:"previousPrice,omitempty"`
	UnitTax       *decimal.Decimal `json:"unitTax,omitempty"`
	Totals        *pricing.Totals  `json:"totals,omitempty"`
	Warning       string           `json:"warning,omitempty"`
	Priced        bool             `json:"priced"`
}

// Adjustment reasons name the bound that limited a clamped quantity.
const (
	AdjustmentLimitedByStock   = "limited_by_stock"
	AdjustmentLimitedByMaximum = "limited_by_maximum"
)

// Adjustment reports a mutation whose applied quantity differs from the requested one.
type Adjustment struct {
	ProductID uuid.UUID `json:"productId"`
	Requested int       `json:"requestedQty"`
	Applied   int       `json:"appliedQty"`
	Reason    string    `json:"reason"`
}

// clampAdjustment returns nil when nothing was clamped. Stock wins the tie when it equals
// the platform cap.
func clampAdjustment(productID uuid.UUID, requested, applied, stock, maxQty int) *Adjustment {
	if applied == requested {
		return nil
	}
	reason := AdjustmentLimitedByMaximum
	if stock <= maxQty {
		reason = AdjustmentLimitedByStock
	}
	return &Adjustment{ProductID: productID, Requested: requested, Applied: applied, Reason: reason}
}

// View is the priced cart returned on every read and after every mutation.
type View struct {
	UserID      uuid.UUID      `json:"userId"`
	Items       []ItemView     `json:"items"`
	Totals      pricing.Totals `json:"totals"`
	Adjustments []Adjustment   `json:"adjustments,omitempty"`
}

// buildView prices items against snaps. Lines are never rewritten here: a line whose stock
// dropped is priced at its clamped quantity and flagged, and lines that cannot be priced
// are flagged and left out of the totals.
func buildView(userID uuid.UUID, items []models.CartItem, snaps map[uuid.UUID]pricing.Snapshot, maxQty int) (*View, error) {
	view := &View{UserID: userID, Items: make([]ItemView, 0, len(items))}
	lines := make([]pricing.Line, 0, len(items))

	for _, item := range items {
		iv := ItemView{ProductID: item.ProductID, StoredQty: item.Qty}
		snap, ok := snaps[item.ProductID]
		if !ok {
			iv.Warning = WarningUnavailable
			view.Items = append(view.Items, iv)
			continue
		}
		iv.Stock = snap.Stock
		iv.MaxQty = pricing.Ceiling(snap.Stock, maxQty)
		if snap.CurrentPrice.Valid {
			price := snap.CurrentPrice.Decimal
			iv.UnitPrice = &price
		}
		if snap.PreviousPrice.Valid && snap.PreviousPrice.Decimal.IsPositive() {
			prev := snap.PreviousPrice.Decimal
			iv.PreviousPrice = &prev
		}
		if snap.Tax.Valid {
			tax := snap.Tax.Decimal
			iv.UnitTax = &tax
		}

		qty, err := pricing.Clamp(item.Qty, snap.Stock, maxQty)
		if err != nil {
			iv.Warning = WarningOutOfStock
			view.Items = append(view.Items, iv)
			continue
		}
		iv.Qty = qty
		if qty != item.Qty {
			iv.Warning = WarningQtyClamped
		}

		line := pricing.Line{Qty: qty, Snapshot: snap}
		single, err := pricing.Compute([]pricing.Line{line})
		if err != nil {
			iv.Warning = WarningPriceUnavailable
			iv.Qty = 0
			view.Items = append(view.Items, iv)
			continue
		}
		lineTotals := single.Totals
		iv.Totals = &lineTotals
		iv.Priced = true

		lines = append(lines, line)
		view.Items = append(view.Items, iv)
	}

	quote, err := pricing.Compute(lines)
	if err != nil {
		return nil, err
	}
	view.Totals = quote.Totals
	return view, nil
}
