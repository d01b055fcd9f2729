package cart

import "github.com/shopspring/decimal"

// taxRate is the fixed tax applied only when the caller asks for it.
var taxRate = decimal.NewFromFloat(0.16)

// ShippingSelection is the user's session-scoped shipping choice.
type ShippingSelection struct {
	Name                  string  `json:"name,omitempty"`
	BaseCost              float64 `json:"baseCost"`
	ExtraCostPerKg        float64 `json:"extraCostPerKg"`
	FreeShippingThreshold float64 `json:"freeShippingThreshold"`
}

// PaymentSelection is the user's session-scoped payment method choice.
type PaymentSelection struct {
	Name          string  `json:"name,omitempty"`
	CommissionPct float64 `json:"commissionPercentage"`
}

// Totals is a snapshot of every derived amount for the current lines and
// selections.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	WeightKg      decimal.Decimal `json:"weightKg"`
	Shipping      decimal.Decimal `json:"shipping"`
	Commission    decimal.Decimal `json:"commission"`
	Tax           decimal.Decimal `json:"tax"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	ItemCount     int             `json:"itemCount"`
	FreeShipping  bool            `json:"freeShipping"`
}

// The calculators below are pure: no I/O, no mutation, same inputs always
// produce the same outputs.

// Subtotal is the sum of unit price times quantity over all lines.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		price := decimal.NewFromFloat(line.UnitPrice)
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// TotalWeightKg is the cart's total weight in kilograms.
func TotalWeightKg(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		weight := decimal.NewFromFloat(line.WeightKg())
		total = total.Add(weight.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ShippingCost is zero without a selection or once the subtotal reaches the
// free-shipping threshold; otherwise base cost plus the per-kg surcharge for
// every kilogram beyond the first.
func ShippingCost(lines []Line, shipping *ShippingSelection) decimal.Decimal {
	if shipping == nil {
		return decimal.Zero
	}
	if shipping.FreeShippingThreshold > 0 &&
		Subtotal(lines).GreaterThanOrEqual(decimal.NewFromFloat(shipping.FreeShippingThreshold)) {
		return decimal.Zero
	}
	cost := decimal.NewFromFloat(shipping.BaseCost)
	extraKg := TotalWeightKg(lines).Sub(decimal.NewFromInt(1))
	if extraKg.IsPositive() {
		cost = cost.Add(extraKg.Mul(decimal.NewFromFloat(shipping.ExtraCostPerKg)))
	}
	return cost
}

// PaymentCommission applies the method's percentage to subtotal plus
// shipping.
func PaymentCommission(lines []Line, shipping *ShippingSelection, payment *PaymentSelection) decimal.Decimal {
	if payment == nil || payment.CommissionPct == 0 {
		return decimal.Zero
	}
	base := Subtotal(lines).Add(ShippingCost(lines, shipping))
	return base.Mul(decimal.NewFromFloat(payment.CommissionPct)).Div(decimal.NewFromInt(100))
}

// GrandTotal is subtotal, optional tax, shipping and commission combined.
func GrandTotal(lines []Line, shipping *ShippingSelection, payment *PaymentSelection, withTax bool) decimal.Decimal {
	subtotal := Subtotal(lines)
	total := subtotal.
		Add(ShippingCost(lines, shipping)).
		Add(PaymentCommission(lines, shipping, payment))
	if withTax {
		total = total.Add(subtotal.Mul(taxRate))
	}
	return total
}

// ItemCount is the total unit count across lines, used for badge displays.
func ItemCount(lines []Line) int {
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}

// ComputeTotals evaluates every calculator once over the same inputs.
func ComputeTotals(lines []Line, shipping *ShippingSelection, payment *PaymentSelection, withTax bool) Totals {
	subtotal := Subtotal(lines)
	shippingCost := ShippingCost(lines, shipping)
	tax := decimal.Zero
	if withTax {
		tax = subtotal.Mul(taxRate)
	}
	return Totals{
		Subtotal:     subtotal,
		WeightKg:     TotalWeightKg(lines),
		Shipping:     shippingCost,
		Commission:   PaymentCommission(lines, shipping, payment),
		Tax:          tax,
		GrandTotal:   GrandTotal(lines, shipping, payment, withTax),
		ItemCount:    ItemCount(lines),
		FreeShipping: shipping != nil && shippingCost.IsZero() && ItemCount(lines) > 0,
	}
}
