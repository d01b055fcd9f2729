// Package http exposes the cart engine's operations over a small chi surface
// for the storefront views. It is plumbing only: every business decision
// lives in the engine.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/clynova/cantabria-cart/internal/api"
	"github.com/clynova/cantabria-cart/internal/cart"
)

func apiAction(action string) api.AdjustAction {
	if action == "decrement" {
		return api.ActionDecrement
	}
	return api.ActionIncrement
}

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id"`
	Notify    bool   `json:"notify"`
}

type SetQuantityRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

type AdjustRequest struct {
	VariantID string `json:"variant_id"`
	Delta     int    `json:"delta" validate:"required,min=1"`
	Action    string `json:"action" validate:"required,oneof=increment decrement"`
}

type ShippingRequest struct {
	Name                  string  `json:"name"`
	BaseCost              float64 `json:"base_cost" validate:"min=0"`
	ExtraCostPerKg        float64 `json:"extra_cost_per_kg" validate:"min=0"`
	FreeShippingThreshold float64 `json:"free_shipping_threshold" validate:"min=0"`
}

type PaymentRequest struct {
	Name          string  `json:"name"`
	CommissionPct float64 `json:"commission_percentage" validate:"min=0,max=100"`
}

type CartHandler struct {
	engine   *cart.Engine
	remote   cart.API
	validate *validator.Validate
}

func NewCartHandler(engine *cart.Engine, remote cart.API) *CartHandler {
	return &CartHandler{
		engine:   engine,
		remote:   remote,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Get("/cart/totals", h.handleGetTotals)
	router.Post("/cart/items", h.handleAddItem)
	router.Put("/cart/items/{productID}", h.handleSetQuantity)
	router.Post("/cart/items/{productID}/adjust", h.handleAdjust)
	router.Delete("/cart/items/{productID}", h.handleRemoveItem)
	router.Post("/cart/clear", h.handleClear)
	router.Put("/cart/shipping", h.handleSetShipping)
	router.Put("/cart/payment", h.handleSetPayment)
	router.Post("/session/login", h.handleLogin)
	router.Post("/session/logout", h.handleLogout)
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleGetTotals(w http.ResponseWriter, r *http.Request) {
	withTax, _ := strconv.ParseBool(r.URL.Query().Get("tax"))
	respondWithJSON(w, http.StatusOK, h.engine.Totals(withTax))
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var payload AddItemRequest
	if !h.decode(w, r, &payload) {
		return
	}

	product, err := h.remote.GetProductByID(r.Context(), payload.ProductID)
	if err != nil {
		log.Warn().Err(err).Str("productId", payload.ProductID).Msg("product lookup failed")
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Product '%s' not found", payload.ProductID))
		return
	}

	if err := h.engine.AddLine(r.Context(), product, payload.VariantID, payload.Notify); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var payload SetQuantityRequest
	if !h.decode(w, r, &payload) {
		return
	}

	productID := chi.URLParam(r, "productID")
	if err := h.engine.SetQuantity(r.Context(), productID, payload.VariantID, payload.Quantity); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var payload AdjustRequest
	if !h.decode(w, r, &payload) {
		return
	}

	productID := chi.URLParam(r, "productID")
	err := h.engine.Adjust(r.Context(), productID, payload.VariantID, payload.Delta, apiAction(payload.Action))
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	variantID := r.URL.Query().Get("variant")

	if err := h.engine.RemoveLine(r.Context(), productID, variantID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Clear(r.Context()); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleSetShipping(w http.ResponseWriter, r *http.Request) {
	var payload ShippingRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.engine.SetShipping(&cart.ShippingSelection{
		Name:                  payload.Name,
		BaseCost:              payload.BaseCost,
		ExtraCostPerKg:        payload.ExtraCostPerKg,
		FreeShippingThreshold: payload.FreeShippingThreshold,
	})
	respondWithJSON(w, http.StatusOK, h.engine.Totals(false))
}

func (h *CartHandler) handleSetPayment(w http.ResponseWriter, r *http.Request) {
	var payload PaymentRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.engine.SetPayment(&cart.PaymentSelection{
		Name:          payload.Name,
		CommissionPct: payload.CommissionPct,
	})
	respondWithJSON(w, http.StatusOK, h.engine.Totals(false))
}

func (h *CartHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reconcile(r.Context(), true); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}

func (h *CartHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reconcile(r.Context(), false); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.State())
}
