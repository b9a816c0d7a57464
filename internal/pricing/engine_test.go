package pricing

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func snapshot(current, previous, tax string) Snapshot {
	s := Snapshot{ProductID: uuid.New(), Stock: 100}
	if current != "" {
		s.CurrentPrice = Money(current)
	}
	if previous != "" {
		s.PreviousPrice = Money(previous)
	}
	if tax != "" {
		s.Tax = Money(tax)
	}
	return s
}

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: expected %s got %s", label, want, got.String())
	}
}

func TestComputeMarkdownWithTax(t *testing.T) {
	quote, err := Compute([]Line{{Qty: 2, Snapshot: snapshot("100", "120", "5")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "subtotal", quote.Totals.Subtotal, "240")
	assertMoney(t, "discount", quote.Totals.Discount, "40")
	assertMoney(t, "tax", quote.Totals.Tax, "10")
	assertMoney(t, "total", quote.Totals.Total, "210")

	if len(quote.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(quote.Lines))
	}
	assertMoney(t, "unit basis", quote.Lines[0].UnitBasis, "120")
	assertMoney(t, "unit price", quote.Lines[0].UnitPrice, "100")
}

func TestComputeWithoutMarkdownOrTax(t *testing.T) {
	quote, err := Compute([]Line{{Qty: 3, Snapshot: snapshot("80", "", "")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "subtotal", quote.Totals.Subtotal, "240")
	assertMoney(t, "discount", quote.Totals.Discount, "0")
	assertMoney(t, "tax", quote.Totals.Tax, "0")
	assertMoney(t, "total", quote.Totals.Total, "240")
}

func TestComputeZeroPreviousPriceIsNotAMarkdown(t *testing.T) {
	quote, err := Compute([]Line{{Qty: 2, Snapshot: snapshot("19.99", "0", "1.50")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "subtotal", quote.Totals.Subtotal, "39.98")
	assertMoney(t, "discount", quote.Totals.Discount, "0")
	assertMoney(t, "tax", quote.Totals.Tax, "3")
	assertMoney(t, "total", quote.Totals.Total, "42.98")
}

func TestComputePreviousBelowCurrentPricesAtCurrent(t *testing.T) {
	quote, err := Compute([]Line{{Qty: 1, Snapshot: snapshot("50", "45", "")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "subtotal", quote.Totals.Subtotal, "50")
	assertMoney(t, "discount", quote.Totals.Discount, "0")
	assertMoney(t, "total", quote.Totals.Total, "50")
}

func TestComputeSumsLines(t *testing.T) {
	quote, err := Compute([]Line{
		{Qty: 2, Snapshot: snapshot("100", "120", "5")},
		{Qty: 3, Snapshot: snapshot("80", "", "")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "subtotal", quote.Totals.Subtotal, "480")
	assertMoney(t, "discount", quote.Totals.Discount, "40")
	assertMoney(t, "tax", quote.Totals.Tax, "10")
	assertMoney(t, "total", quote.Totals.Total, "450")
}

func TestComputeEmptyCart(t *testing.T) {
	quote, err := Compute(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "total", quote.Totals.Total, "0")
	if len(quote.Lines) != 0 {
		t.Fatalf("expected no lines")
	}
}

func TestComputeRejectsMarkdownWithoutCurrentPrice(t *testing.T) {
	snap := snapshot("", "120", "")
	_, err := Compute([]Line{
		{Qty: 1, Snapshot: snapshot("10", "", "")},
		{Qty: 1, Snapshot: snap},
	})
	if !errors.Is(err, ErrMissingCurrentPrice) {
		t.Fatalf("expected missing current price, got %v", err)
	}
	var lineErr *LineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected *LineError, got %T", err)
	}
	if lineErr.Index != 1 || lineErr.ProductID != snap.ProductID {
		t.Fatalf("unexpected line error %+v", lineErr)
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	cases := map[string]Line{
		"zero qty":         {Qty: 0, Snapshot: snapshot("10", "", "")},
		"no price at all":  {Qty: 1, Snapshot: snapshot("", "", "")},
		"negative price":   {Qty: 1, Snapshot: snapshot("-1", "", "")},
		"negative tax":     {Qty: 1, Snapshot: snapshot("10", "", "-2")},
		"negative markdown": {Qty: 1, Snapshot: snapshot("10", "-5", "")},
	}
	for name, line := range cases {
		if _, err := Compute([]Line{line}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	lines := []Line{{Qty: 7, Snapshot: snapshot("3.33", "4.10", "0.27")}}
	first, err := Compute(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Compute(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Totals.Total.Equal(second.Totals.Total) {
		t.Fatalf("expected identical totals, got %s and %s", first.Totals.Total, second.Totals.Total)
	}
	assertMoney(t, "total", first.Totals.Total, "25.2")
}
