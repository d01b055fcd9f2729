package cart

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clynova/cantabria-cart/internal/api"
)

func TestLineKey(t *testing.T) {
	require.Equal(t, "p1", lineKey("p1", ""))
	require.Equal(t, "p1:v1", lineKey("p1", "v1"))
}

func TestWeightKg(t *testing.T) {
	grams := Line{Variant: &Variant{Weight: 500, Unit: "g"}}
	require.InDelta(t, 0.5, grams.WeightKg(), 1e-9)

	kilos := Line{Variant: &Variant{Weight: 2, Unit: "kg"}}
	require.InDelta(t, 2.0, kilos.WeightKg(), 1e-9)

	bare := Line{}
	require.Zero(t, bare.WeightKg())
}

func TestResolveStock_PriorityChain(t *testing.T) {
	five, seven, two := 5, 7, 2

	// Variant stock wins.
	withVariant := &api.Product{
		ID:           "p",
		CountInStock: 99,
		WeightOptions: []api.WeightOption{
			{ID: "v1", Stock: &five},
			{ID: "v2", Stock: &seven},
		},
	}
	require.Equal(t, 5, *resolveStock(withVariant, "v1"))

	// Transitional selectedWeightOption shape.
	transitional := &api.Product{
		ID:                   "p",
		CountInStock:         99,
		SelectedWeightOption: &api.WeightOption{ID: "sel", Stock: &two},
	}
	require.Equal(t, 2, *resolveStock(transitional, ""))

	// No variant requested: stock is the sum across declared options.
	require.Equal(t, 12, *resolveStock(withVariant, ""))

	// Legacy flat counter.
	flat := &api.Product{ID: "p", CountInStock: 4}
	require.Equal(t, 4, *resolveStock(flat, ""))

	// Nothing resolves: unknown, permissive.
	require.Nil(t, resolveStock(&api.Product{ID: "p"}, ""))

	// Requested variant unknown to the catalog: unknown, not guessed.
	require.Nil(t, resolveStock(flat, "ghost"))
}

func TestCheckStock(t *testing.T) {
	three := 3
	line := Line{ProductID: "p", Name: "Olive Oil", Stock: &three}

	require.NoError(t, checkStock(line, 3))

	err := checkStock(line, 4)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "Olive Oil")
	require.Contains(t, err.Error(), "3")

	unknown := Line{ProductID: "p"}
	require.NoError(t, checkStock(unknown, 1000))
}

func TestNormalizeEntry_ResolvesVariantFromCatalog(t *testing.T) {
	stock := 8
	product := &api.Product{
		ID:    "p1",
		Name:  "Olive Oil",
		Price: 1000,
		WeightOptions: []api.WeightOption{
			{ID: "v1", Weight: 750, Unit: "g", Price: 1400, SKU: "OO-750", Stock: &stock},
		},
	}
	entry := api.CartEntry{
		Product:  api.ProductRef{ID: "p1", Product: product},
		Quantity: 2,
		// The snapshot's stale price must lose to the catalog's.
		Variant: &api.EntryVariant{ID: "v1", Price: 999},
	}

	line, err := normalizeEntry(entry, product)
	require.NoError(t, err)
	require.Equal(t, 1400.0, line.UnitPrice)
	require.Equal(t, "OO-750", line.Variant.SKU)
	require.Equal(t, 8, *line.Stock)
}

func TestNormalizeEntry_RejectsBadShapes(t *testing.T) {
	_, err := normalizeEntry(api.CartEntry{Quantity: 1}, nil)
	require.Error(t, err)

	product := &api.Product{ID: "p1", Name: "Olive Oil", Price: 1000}
	_, err = normalizeEntry(api.CartEntry{Product: api.ProductRef{ID: "p1"}, Quantity: 0}, product)
	require.Error(t, err)
}

func TestDedupe_MergesQuantitiesKeepsOrder(t *testing.T) {
	lines := []Line{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", VariantID: "v", Quantity: 2},
		{ProductID: "a", Quantity: 3},
	}

	merged := dedupe(lines)
	require.Len(t, merged, 2)
	require.Equal(t, "a", merged[0].ProductID)
	require.Equal(t, 4, merged[0].Quantity)
	require.Equal(t, "b", merged[1].ProductID)
	require.Equal(t, 2, merged[1].Quantity)
}
