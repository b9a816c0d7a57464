package pricing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput signals quantities or prices that cannot be priced.
	ErrInvalidInput = errors.New("pricing: invalid input")
	// ErrMissingCurrentPrice is returned for a markdown line without an effective price.
	ErrMissingCurrentPrice = errors.New("pricing: previous price set without current price")
)

// Snapshot is the catalog data a line is priced from. Absent money values are
// represented by an invalid NullDecimal.
type Snapshot struct {
	ProductID     uuid.UUID
	CurrentPrice  decimal.NullDecimal
	PreviousPrice decimal.NullDecimal
	Tax           decimal.NullDecimal
	Stock         int
}

// Line pairs a quantity with the snapshot it is priced against.
type Line struct {
	Qty      int
	Snapshot Snapshot
}

// Totals aggregates the priced components of a set of lines.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// LineTotals is the per-line breakdown that makes up Totals.
type LineTotals struct {
	ProductID uuid.UUID
	Qty       int
	UnitBasis decimal.Decimal
	UnitPrice decimal.Decimal
	UnitTax   decimal.Decimal
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
}

// Quote is the result of pricing a set of lines.
type Quote struct {
	Lines  []LineTotals
	Totals Totals
}

// LineError ties a pricing failure to the offending line.
type LineError struct {
	Index     int
	ProductID uuid.UUID
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (product %s): %v", e.Index, e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Compute prices lines in order. It has no side effects and is safe to call on every read.
//
// Per line the basis is previousPrice when it marks a markdown (positive and above the
// current price), otherwise currentPrice. The markdown is reported as discount, tax is
// charged per unit, and total = subtotal - discount + tax.
func Compute(lines []Line) (Quote, error) {
	quote := Quote{
		Lines: make([]LineTotals, 0, len(lines)),
		Totals: Totals{
			Subtotal: decimal.Zero,
			Discount: decimal.Zero,
			Tax:      decimal.Zero,
			Total:    decimal.Zero,
		},
	}

	for i, line := range lines {
		lt, err := priceLine(line)
		if err != nil {
			return Quote{}, &LineError{Index: i, ProductID: line.Snapshot.ProductID, Err: err}
		}
		quote.Lines = append(quote.Lines, lt)
		quote.Totals.Subtotal = quote.Totals.Subtotal.Add(lt.Subtotal)
		quote.Totals.Discount = quote.Totals.Discount.Add(lt.Discount)
		quote.Totals.Tax = quote.Totals.Tax.Add(lt.Tax)
	}

	total := quote.Totals.Subtotal.Sub(quote.Totals.Discount).Add(quote.Totals.Tax)
	if total.IsNegative() {
		total = decimal.Zero
	}
	quote.Totals.Total = total
	return quote, nil
}

func priceLine(line Line) (LineTotals, error) {
	snap := line.Snapshot
	if line.Qty < 1 {
		return LineTotals{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	hasMarkdownRef := snap.PreviousPrice.Valid && snap.PreviousPrice.Decimal.IsPositive()
	if hasMarkdownRef && !snap.CurrentPrice.Valid {
		return LineTotals{}, ErrMissingCurrentPrice
	}
	if !snap.CurrentPrice.Valid {
		return LineTotals{}, fmt.Errorf("%w: current price missing", ErrInvalidInput)
	}
	current := snap.CurrentPrice.Decimal
	if current.IsNegative() {
		return LineTotals{}, fmt.Errorf("%w: negative current price", ErrInvalidInput)
	}
	if snap.PreviousPrice.Valid && snap.PreviousPrice.Decimal.IsNegative() {
		return LineTotals{}, fmt.Errorf("%w: negative previous price", ErrInvalidInput)
	}

	unitTax := decimal.Zero
	if snap.Tax.Valid {
		if snap.Tax.Decimal.IsNegative() {
			return LineTotals{}, fmt.Errorf("%w: negative tax", ErrInvalidInput)
		}
		unitTax = snap.Tax.Decimal
	}

	qty := decimal.NewFromInt(int64(line.Qty))
	// A previous price at or below the current one is not a markdown; the line bills at
	// current so the discount never goes negative.
	basis := current
	unitDiscount := decimal.Zero
	if hasMarkdownRef && snap.PreviousPrice.Decimal.GreaterThan(current) {
		basis = snap.PreviousPrice.Decimal
		unitDiscount = basis.Sub(current)
	}

	return LineTotals{
		ProductID: snap.ProductID,
		Qty:       line.Qty,
		UnitBasis: basis,
		UnitPrice: current,
		UnitTax:   unitTax,
		Subtotal:  basis.Mul(qty),
		Discount:  unitDiscount.Mul(qty),
		Tax:       unitTax.Mul(qty),
	}, nil
}

// Money builds a present money value, mostly for callers assembling snapshots by hand.
func Money(value string) decimal.NullDecimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
