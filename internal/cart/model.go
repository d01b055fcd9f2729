// Package cart implements the client-side shopping cart engine: a single
// authoritative in-memory state over the remote cart API, with guest/server
// reconciliation, optimistic mutations with rollback, per-line single-flight
// guards and pure derived-total calculators.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clynova/cantabria-cart/internal/api"
)

var (
	ErrLineNotFound      = errors.New("cart: line not found")
	ErrInsufficientStock = errors.New("cart: insufficient stock")
	// ErrOperationPending is returned when a mutation for the same line is
	// already in flight. The request is rejected, never queued; callers
	// re-issue once the first operation settles.
	ErrOperationPending = errors.New("cart: operation already in flight for this line")
)

// Variant is the denormalized snapshot of the weight/size option a line was
// added with. It is a display and pricing hint; stock checks prefer fresh
// catalog data when available.
type Variant struct {
	ID     string  `json:"variantId"`
	Weight float64 `json:"weight,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Price  float64 `json:"price,omitempty"`
	SKU    string  `json:"sku,omitempty"`
	// Stock is nil when unknown; unknown stock never blocks the user.
	Stock *int `json:"stock,omitempty"`
}

// Line is the one canonical cart line shape. All historical wire forms are
// collapsed into it at the API boundary, so everything past hydration deals
// with exactly this.
type Line struct {
	ProductID string   `json:"productId"`
	VariantID string   `json:"variantId,omitempty"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unitPrice"`
	Variant   *Variant `json:"variant,omitempty"`
	// Stock is the availability resolved at normalization time; nil means
	// unknown (permissive).
	Stock *int `json:"stock,omitempty"`
}

// Key is the line's identity: productID alone, or productID:variantID. At
// most one line per key may exist in a cart at any time.
func (l Line) Key() string {
	return lineKey(l.ProductID, l.VariantID)
}

func lineKey(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

// WeightKg returns the line's per-unit weight in kilograms. Gram-denominated
// variants are converted; lines without a variant weigh nothing.
func (l Line) WeightKg() float64 {
	if l.Variant == nil || l.Variant.Weight == 0 {
		return 0
	}
	switch strings.ToLower(l.Variant.Unit) {
	case "g", "gr", "gram", "grams":
		return l.Variant.Weight / 1000
	default:
		return l.Variant.Weight
	}
}

// DisplayName names the line for user-facing messages, including the variant
// weight when one is present.
func (l Line) DisplayName() string {
	if l.Variant != nil && l.Variant.Weight > 0 {
		return fmt.Sprintf("%s (%v%s)", l.Name, l.Variant.Weight, l.Variant.Unit)
	}
	return l.Name
}

// newLine builds a canonical line from a product document plus an optional
// variant id, resolving unit price and stock once at construction.
func newLine(product *api.Product, variantID string, quantity int) Line {
	line := Line{
		ProductID: product.ID,
		VariantID: variantID,
		Name:      product.Name,
		Quantity:  quantity,
		UnitPrice: product.Price,
		Stock:     resolveStock(product, variantID),
	}

	if option := findWeightOption(product, variantID); option != nil {
		line.UnitPrice = option.Price
		line.Variant = &Variant{
			ID:     option.ID,
			Weight: option.Weight,
			Unit:   option.Unit,
			Price:  option.Price,
			SKU:    option.SKU,
			Stock:  option.Stock,
		}
	}

	return line
}

// normalizeEntry converts one wire cart entry into a canonical line. The
// product document must already be resolved (embedded or fetched). Variant
// resolution prefers the catalog's option list; when the referenced option no
// longer exists (data drift) the entry's own snapshot is used and stock is
// marked unknown rather than guessed.
func normalizeEntry(entry api.CartEntry, product *api.Product) (Line, error) {
	if product == nil || product.ID == "" {
		return Line{}, fmt.Errorf("cart entry has no resolvable product reference")
	}
	if entry.Quantity < 1 {
		return Line{}, fmt.Errorf("cart entry for product '%s' has non-positive quantity %d", product.ID, entry.Quantity)
	}

	variantID := ""
	if entry.Variant != nil {
		variantID = entry.Variant.ID
	}

	line := newLine(product, variantID, entry.Quantity)

	// Drifted variant: keep the snapshot the server sent, but do not invent
	// a stock number for it.
	if variantID != "" && line.Variant == nil {
		line.UnitPrice = entry.Variant.Price
		line.Variant = &Variant{
			ID:     entry.Variant.ID,
			Weight: entry.Variant.Weight,
			Unit:   entry.Variant.Unit,
			Price:  entry.Variant.Price,
			SKU:    entry.Variant.SKU,
		}
		line.Stock = nil
	}

	return line, nil
}

func findWeightOption(product *api.Product, variantID string) *api.WeightOption {
	if variantID == "" {
		return nil
	}
	for i := range product.WeightOptions {
		if product.WeightOptions[i].ID == variantID {
			return &product.WeightOptions[i]
		}
	}
	if product.SelectedWeightOption != nil && product.SelectedWeightOption.ID == variantID {
		return product.SelectedWeightOption
	}
	return nil
}

// resolveStock is the legacy-compatibility shim for the historical product
// shapes. Priority: the referenced variant's stock, then the transitional
// selectedWeightOption stock, then the sum across all declared options, then
// the flat inventory counter. nil (unknown) when nothing resolves.
func resolveStock(product *api.Product, variantID string) *int {
	if option := findWeightOption(product, variantID); option != nil && option.Stock != nil {
		return intPtr(*option.Stock)
	}
	if variantID != "" {
		// A variant was requested but the catalog no longer knows it.
		return nil
	}
	if product.SelectedWeightOption != nil && product.SelectedWeightOption.Stock != nil {
		return intPtr(*product.SelectedWeightOption.Stock)
	}
	if len(product.WeightOptions) > 0 {
		total := 0
		counted := false
		for _, option := range product.WeightOptions {
			if option.Stock != nil {
				total += *option.Stock
				counted = true
			}
		}
		if counted {
			return intPtr(total)
		}
	}
	if product.CountInStock > 0 {
		return intPtr(product.CountInStock)
	}
	return nil
}

// checkStock enforces the stock ceiling for a candidate quantity. Unknown
// stock is permissive: missing metadata never blocks the user.
func checkStock(line Line, quantity int) error {
	if line.Stock == nil || quantity <= *line.Stock {
		return nil
	}
	return fmt.Errorf("%w: only %d of %s available", ErrInsufficientStock, *line.Stock, line.DisplayName())
}

// dedupe merges lines sharing an identity key, summing quantities and keeping
// first-seen order. Any operation output passes through here so a duplicate
// key is never observable.
func dedupe(lines []Line) []Line {
	if len(lines) < 2 {
		return lines
	}
	merged := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		key := line.Key()
		if at, seen := index[key]; seen {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func intPtr(v int) *int {
	return &v
}
