package api_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clynova/cantabria-cart/internal/api"
)

func TestProductRef_DecodesBareID(t *testing.T) {
	var entry api.CartEntry
	require.NoError(t, json.Unmarshal([]byte(`{"productId":"p1","quantity":2}`), &entry))

	require.Equal(t, "p1", entry.Product.ID)
	require.Nil(t, entry.Product.Product)
	require.Equal(t, 2, entry.Quantity)
}

func TestProductRef_DecodesEmbeddedProduct(t *testing.T) {
	payload := `{
		"productId": {
			"_id": "p1",
			"name": "Single Origin Coffee",
			"price": 1800,
			"weightOptions": [{"_id":"v1","weight":500,"unit":"g","price":2500,"stock":10}]
		},
		"quantity": 1,
		"variant": {"variantId":"v1"}
	}`

	var entry api.CartEntry
	require.NoError(t, json.Unmarshal([]byte(payload), &entry))

	require.Equal(t, "p1", entry.Product.ID)
	require.NotNil(t, entry.Product.Product)
	require.Equal(t, "Single Origin Coffee", entry.Product.Product.Name)
	require.Len(t, entry.Product.Product.WeightOptions, 1)
	require.Equal(t, "v1", entry.Variant.ID)
}

func TestProductRef_RejectsEmbeddedProductWithoutID(t *testing.T) {
	var ref api.ProductRef
	require.Error(t, json.Unmarshal([]byte(`{"name":"no id"}`), &ref))
}

func TestProductRef_RoundTrip(t *testing.T) {
	bare := api.ProductRef{ID: "p1"}
	encoded, err := json.Marshal(bare)
	require.NoError(t, err)
	require.JSONEq(t, `"p1"`, string(encoded))
}
