package helpers

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ReasonUnavailable marks a cart line whose product is no longer in the catalog.
const ReasonUnavailable = "unavailable"

// LineProblem describes why one cart line cannot be committed and what would be valid.
type LineProblem struct {
	ProductID    uuid.UUID `json:"productId"`
	Reason       string    `json:"reason"`
	RequestedQty int       `json:"requestedQty"`
	AllowedQty   int       `json:"allowedQty"`
}

// ValidateBuyer ensures the actor may place an order.
func ValidateBuyer(actor auth.Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.EmailVerified {
		return pkgerrors.New(pkgerrors.CodeForbidden, "verify your email before checking out")
	}
	return nil
}

// ValidateLines checks every cart line against its fresh snapshot with the strict quantity
// guard. All failing lines are reported together.
func ValidateLines(items []models.CartItem, snaps map[uuid.UUID]pricing.Snapshot, maxQty int) ([]pricing.Line, error) {
	lines := make([]pricing.Line, 0, len(items))
	problems := []LineProblem{}
	var errs error

	for _, item := range items {
		snap, ok := snaps[item.ProductID]
		if !ok {
			problems = append(problems, LineProblem{ProductID: item.ProductID, Reason: ReasonUnavailable, RequestedQty: item.Qty})
			errs = multierr.Append(errs, fmt.Errorf("product %s: unavailable", item.ProductID))
			continue
		}
		if err := pricing.Validate(item.Qty, snap.Stock, maxQty); err != nil {
			problem := LineProblem{ProductID: item.ProductID, Reason: err.Error(), RequestedQty: item.Qty}
			var qe *pricing.QuantityError
			if errors.As(err, &qe) {
				problem.Reason = string(qe.Reason)
				problem.AllowedQty = qe.Allowed
			}
			problems = append(problems, problem)
			errs = multierr.Append(errs, fmt.Errorf("product %s: %w", item.ProductID, err))
			continue
		}
		lines = append(lines, pricing.Line{Qty: item.Qty, Snapshot: snap})
	}

	if errs != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errs, "cart has lines that cannot be ordered").
			WithDetails(map[string]any{"lines": problems})
	}
	return lines, nil
}
