package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/clynova/cantabria-cart/internal/api"
)

// fakeRemote is a minimal stand-in for the remote commerce API.
func fakeRemote(t *testing.T) (*httptest.Server, *capturedRequests) {
	t.Helper()
	captured := &capturedRequests{}

	router := chi.NewRouter()
	router.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		captured.authorization = r.Header.Get("Authorization")
		captured.requestID = r.Header.Get("X-Request-ID")
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"cart": map[string]any{
				"products": []map[string]any{
					{"productId": "p1", "quantity": 2, "variant": map[string]any{"variantId": "v1"}},
				},
			},
		})
	})
	router.Post("/cart/add", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.addBody))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	router.Post("/cart/remove", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "msg": "product not in cart"})
	})
	router.Post("/cart/quantity", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.adjustBody))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	router.Get("/product/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "p1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "msg": "product not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"product": map[string]any{"_id": "p1", "name": "Single Origin Coffee", "price": 1800},
		})
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, captured
}

type capturedRequests struct {
	authorization string
	requestID     string
	addBody       map[string]any
	adjustBody    map[string]any
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestClient(server *httptest.Server) *api.Client {
	return api.NewClient(api.Config{
		BaseURL: server.URL,
		Token:   func() string { return "test-token" },
	})
}

func TestClient_GetCartSendsAuthAndRequestID(t *testing.T) {
	server, captured := fakeRemote(t)
	client := newTestClient(server)

	serverCart, err := client.GetCart(context.Background())
	require.NoError(t, err)
	require.Len(t, serverCart.Products, 1)
	require.Equal(t, "p1", serverCart.Products[0].Product.ID)

	require.Equal(t, "Bearer test-token", captured.authorization)
	require.NotEmpty(t, captured.requestID)
}

func TestClient_AddToCartBody(t *testing.T) {
	server, captured := fakeRemote(t)
	client := newTestClient(server)

	require.NoError(t, client.AddToCart(context.Background(), "p1", 3, "v1"))
	require.Equal(t, "p1", captured.addBody["productId"])
	require.Equal(t, 3.0, captured.addBody["quantity"])
	require.Equal(t, "v1", captured.addBody["variantId"])

	// Products without variants send an explicit null.
	require.NoError(t, client.AddToCart(context.Background(), "p2", 1, ""))
	require.Nil(t, captured.addBody["variantId"])
}

func TestClient_AdjustQuantityBody(t *testing.T) {
	server, captured := fakeRemote(t)
	client := newTestClient(server)

	err := client.AdjustQuantity(context.Background(), "p1", "v1", 1, api.ActionDecrement)
	require.NoError(t, err)
	require.Equal(t, "decrement", captured.adjustBody["action"])
	require.Equal(t, 1.0, captured.adjustBody["quantity"])
}

func TestClient_ErrorCarriesStatusAndMessage(t *testing.T) {
	server, _ := fakeRemote(t)
	client := newTestClient(server)

	err := client.RemoveFromCart(context.Background(), "p1", "v1")
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "product not in cart", apiErr.Msg)
}

func TestClient_GetProductByID(t *testing.T) {
	server, _ := fakeRemote(t)
	client := newTestClient(server)

	product, err := client.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Single Origin Coffee", product.Name)

	_, err = client.GetProductByID(context.Background(), "missing")
	require.True(t, api.IsNotFound(err))
}
