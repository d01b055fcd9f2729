// Package api implements the HTTP client for the remote commerce REST API
// (cart and product endpoints) and the wire types it exchanges.
package api

import (
	"encoding/json"
	"fmt"
)

// Product is the catalog's product detail document.
type Product struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Slug  string  `json:"slug,omitempty"`
	Price float64 `json:"price"`
	// CountInStock is the legacy flat inventory counter, still present on
	// products created before weight options existed.
	CountInStock  int            `json:"countInStock,omitempty"`
	WeightOptions []WeightOption `json:"weightOptions,omitempty"`
	// SelectedWeightOption is a transitional shape some cart entries still
	// carry: the option the user picked, denormalized onto the product.
	SelectedWeightOption *WeightOption `json:"selectedWeightOption,omitempty"`
}

// WeightOption is one purchasable variant of a product: a specific weight or
// size with its own price, SKU and stock.
type WeightOption struct {
	ID     string  `json:"_id"`
	Weight float64 `json:"weight"`
	Unit   string  `json:"unit"`
	Price  float64 `json:"price"`
	SKU    string  `json:"sku,omitempty"`
	Stock  *int    `json:"stock,omitempty"`
}

// ProductRef is the polymorphic "productId" field of a cart entry. Historic
// server payloads carry either a bare identifier string or the full embedded
// product document; both decode into this one type so the rest of the code
// never sniffs shapes.
type ProductRef struct {
	ID      string
	Product *Product
}

func (r *ProductRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		r.Product = nil
		return nil
	}

	var product Product
	if err := json.Unmarshal(data, &product); err != nil {
		return fmt.Errorf("productId is neither a string nor a product object: %w", err)
	}
	if product.ID == "" {
		return fmt.Errorf("embedded product is missing _id")
	}
	r.ID = product.ID
	r.Product = &product
	return nil
}

func (r ProductRef) MarshalJSON() ([]byte, error) {
	if r.Product != nil {
		return json.Marshal(r.Product)
	}
	return json.Marshal(r.ID)
}

// EntryVariant is the variant reference carried on a server cart entry. Its
// fields are a snapshot taken at add time and may lag behind the catalog.
type EntryVariant struct {
	ID     string  `json:"variantId"`
	Weight float64 `json:"weight,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Price  float64 `json:"price,omitempty"`
	SKU    string  `json:"sku,omitempty"`
	Stock  *int    `json:"stock,omitempty"`
}

// CartEntry is one line of the wire-format cart.
type CartEntry struct {
	Product  ProductRef    `json:"productId"`
	Quantity int           `json:"quantity"`
	Variant  *EntryVariant `json:"variant,omitempty"`
}

// Cart is the server-side cart document.
type Cart struct {
	Products []CartEntry `json:"products"`
}

// SyncEntry is one guest-cart line submitted to the bulk-sync endpoint.
type SyncEntry struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	VariantID string `json:"variantId,omitempty"`
}

// AdjustAction selects the direction of a server-side quantity adjustment.
type AdjustAction string

const (
	ActionIncrement AdjustAction = "increment"
	ActionDecrement AdjustAction = "decrement"
)

type statusResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
}

type cartResponse struct {
	Success bool   `json:"success"`
	Cart    *Cart  `json:"cart,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

type productResponse struct {
	Success bool     `json:"success"`
	Product *Product `json:"product,omitempty"`
	Msg     string   `json:"msg,omitempty"`
}
