package pricing

import "fmt"

// MaxQty caps the quantity of any single line platform wide.
const MaxQty = 500

// Reason classifies why a requested quantity was rejected.
type Reason string

const (
	ReasonBelowMinimum   Reason = "below_minimum"
	ReasonOutOfStock     Reason = "out_of_stock"
	ReasonExceedsMaximum Reason = "exceeds_maximum"
)

var (
	ErrBelowMinimum   = &QuantityError{Reason: ReasonBelowMinimum}
	ErrOutOfStock     = &QuantityError{Reason: ReasonOutOfStock}
	ErrExceedsMaximum = &QuantityError{Reason: ReasonExceedsMaximum}
)

// QuantityError reports a rejected quantity together with the closest valid value.
// Allowed is zero when no quantity is valid (out of stock).
type QuantityError struct {
	Reason    Reason
	Requested int
	Allowed   int
}

func (e *QuantityError) Error() string {
	switch e.Reason {
	case ReasonBelowMinimum:
		return fmt.Sprintf("quantity %d is below the minimum of 1", e.Requested)
	case ReasonOutOfStock:
		return "product is out of stock"
	case ReasonExceedsMaximum:
		return fmt.Sprintf("quantity %d exceeds the allowed maximum of %d", e.Requested, e.Allowed)
	}
	return fmt.Sprintf("quantity %d rejected", e.Requested)
}

// Is matches on Reason so callers can use errors.Is with the sentinel values.
func (e *QuantityError) Is(target error) bool {
	t, ok := target.(*QuantityError)
	return ok && t.Reason == e.Reason
}

// Ceiling is the largest valid quantity for the given stock, never above maxQty.
// A non-positive maxQty falls back to MaxQty.
func Ceiling(stock, maxQty int) int {
	if maxQty <= 0 {
		maxQty = MaxQty
	}
	if stock < 0 {
		stock = 0
	}
	return min(stock, maxQty)
}

// Clamp fits requested into [1, Ceiling(stock, maxQty)]. Quantities below one and
// products without stock are rejected since no clamped value would be meaningful.
func Clamp(requested, stock, maxQty int) (int, error) {
	if requested < 1 {
		return 0, &QuantityError{Reason: ReasonBelowMinimum, Requested: requested, Allowed: min(1, Ceiling(stock, maxQty))}
	}
	ceiling := Ceiling(stock, maxQty)
	if ceiling == 0 {
		return 0, &QuantityError{Reason: ReasonOutOfStock, Requested: requested}
	}
	return max(1, min(requested, ceiling)), nil
}

// Validate is the strict form of Clamp: anything Clamp would have to adjust is rejected.
func Validate(requested, stock, maxQty int) error {
	valid, err := Clamp(requested, stock, maxQty)
	if err != nil {
		return err
	}
	if valid != requested {
		return &QuantityError{Reason: ReasonExceedsMaximum, Requested: requested, Allowed: valid}
	}
	return nil
}

// Step moves current by delta without leaving [1, Ceiling(stock, maxQty)]. Stepping past
// either bound leaves the quantity at that bound.
func Step(current, delta, stock, maxQty int) (int, error) {
	ceiling := Ceiling(stock, maxQty)
	if ceiling == 0 {
		return 0, &QuantityError{Reason: ReasonOutOfStock, Requested: current + delta}
	}
	next := current + delta
	if next < 1 {
		next = 1
	}
	if next > ceiling {
		next = ceiling
	}
	return next, nil
}
