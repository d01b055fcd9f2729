package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clynova/cantabria-cart/internal/api"
	"github.com/clynova/cantabria-cart/internal/notify"
	"github.com/clynova/cantabria-cart/internal/storage"
)

// Local storage keys. The staging key only lives across the guest→login
// transition window.
const (
	cacheKey   = "cart"
	stagingKey = "cart:staged"
)

// defaultSettleDelay absorbs rapid repeated clicks on the same line control
// after an operation completes.
const defaultSettleDelay = 300 * time.Millisecond

// API is the remote cart/product surface the engine drives. The HTTP client
// in internal/api satisfies it; tests substitute a mock.
type API interface {
	GetCart(ctx context.Context) (*api.Cart, error)
	SyncCart(ctx context.Context, entries []api.SyncEntry) (*api.Cart, error)
	AddToCart(ctx context.Context, productID string, quantity int, variantID string) error
	RemoveFromCart(ctx context.Context, productID, variantID string) error
	AdjustQuantity(ctx context.Context, productID, variantID string, delta int, action api.AdjustAction) error
	ClearCart(ctx context.Context) error
	GetProductByID(ctx context.Context, id string) (*api.Product, error)
}

type Config struct {
	API      API
	Store    storage.Store
	Notifier notify.Notifier
	// SettleDelay overrides the guard's settling delay; negative disables it.
	SettleDelay time.Duration
}

// Engine owns the cart state. Every mutation follows optimistic local update
// → remote call → confirm or rollback, serialized per identity key by the
// guard. State writes are additionally epoch-checked so a response that
// arrives after a logout/login transition cannot write into the fresh cart.
type Engine struct {
	api    API
	store  storage.Store
	notify notify.Notifier
	guard  *Guard

	mu       sync.Mutex
	lines    []Line
	syncing  bool
	open     bool
	authed   bool
	epoch    uint64
	shipping *ShippingSelection
	payment  *PaymentSelection
}

func New(cfg Config) *Engine {
	settle := cfg.SettleDelay
	switch {
	case settle < 0:
		settle = 0
	case settle == 0:
		settle = defaultSettleDelay
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		api:    cfg.API,
		store:  cfg.Store,
		notify: notifier,
		guard:  NewGuard(settle),
	}
}

// Snapshot is a deep copy of the client-visible state; views never alias the
// engine's internal slices.
type Snapshot struct {
	Lines   []Line `json:"lines"`
	Syncing bool   `json:"syncing"`
	Open    bool   `json:"open"`
	Authed  bool   `json:"authenticated"`
}

func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Lines:   copyLines(e.lines),
		Syncing: e.syncing,
		Open:    e.open,
		Authed:  e.authed,
	}
}

// SetOpen flips the cart drawer flag. Pure UI state.
func (e *Engine) SetOpen(open bool) {
	e.mu.Lock()
	e.open = open
	e.mu.Unlock()
}

func (e *Engine) SetShipping(s *ShippingSelection) {
	e.mu.Lock()
	e.shipping = s
	e.mu.Unlock()
}

func (e *Engine) SetPayment(p *PaymentSelection) {
	e.mu.Lock()
	e.payment = p
	e.mu.Unlock()
}

// Totals computes every derived amount from the current lines and selections.
func (e *Engine) Totals(withTax bool) Totals {
	e.mu.Lock()
	lines := copyLines(e.lines)
	shipping, payment := e.shipping, e.payment
	e.mu.Unlock()
	return ComputeTotals(lines, shipping, payment, withTax)
}

// AddLine adds one unit of the given product (and optional variant) to the
// cart. A concurrent add for the same line is rejected with
// ErrOperationPending and changes nothing.
func (e *Engine) AddLine(ctx context.Context, product *api.Product, variantID string, notifyUser bool) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("cart: add requires a product reference")
	}
	key := lineKey(product.ID, variantID)
	if !e.guard.Acquire(key) {
		log.Debug().Str("key", key).Msg("add rejected: operation in flight")
		return ErrOperationPending
	}
	defer e.guard.Release(key)

	e.mu.Lock()
	epoch := e.epoch
	authed := e.authed
	prev := copyLines(e.lines)

	newQuantity := 1
	if existing, ok := findLine(e.lines, key); ok {
		newQuantity = existing.Quantity + 1
	}

	candidate := newLine(product, variantID, newQuantity)
	if err := checkStock(candidate, newQuantity); err != nil {
		e.mu.Unlock()
		e.notify.Error(err.Error())
		return err
	}

	// Optimistic apply. Rebuilding through dedupe also repairs any
	// accidental pre-existing duplicate for this key.
	e.lines = dedupe(upsertLine(e.lines, candidate))
	if !authed {
		e.persistLocked()
	}
	e.mu.Unlock()

	if authed {
		// Replace-then-add keeps the server line's quantity authoritative.
		// A failed pre-remove is not fatal; the add below decides.
		if err := e.api.RemoveFromCart(ctx, product.ID, variantID); err != nil && !isBenignRemoveError(err) {
			log.Warn().Err(err).Str("key", key).Msg("pre-add removal failed")
		}
		if err := e.api.AddToCart(ctx, product.ID, newQuantity, variantID); err != nil {
			e.restore(prev, epoch)
			e.notify.Error(fmt.Sprintf("Could not add %s to your cart", candidate.DisplayName()))
			return fmt.Errorf("failed to add '%s' to server cart: %w", key, err)
		}
	}

	e.mu.Lock()
	if epoch == e.epoch {
		e.open = true
		e.persistLocked()
	}
	e.mu.Unlock()

	if notifyUser {
		e.notify.Success(fmt.Sprintf("%s added to your cart", candidate.DisplayName()))
	}
	return nil
}

// RemoveLine removes a line entirely. Removing a line that does not exist is
// a warned no-op, and a server response saying the line was already gone is
// treated as success.
func (e *Engine) RemoveLine(ctx context.Context, productID, variantID string) error {
	key := lineKey(productID, variantID)
	if !e.guard.Acquire(key) {
		log.Debug().Str("key", key).Msg("remove rejected: operation in flight")
		return ErrOperationPending
	}
	defer e.guard.Release(key)

	e.mu.Lock()
	epoch := e.epoch
	authed := e.authed
	removed, ok := findLine(e.lines, key)
	if !ok {
		e.mu.Unlock()
		log.Warn().Str("key", key).Msg("remove requested for absent line")
		return nil
	}
	prev := copyLines(e.lines)
	e.lines = filterLine(e.lines, key)
	if !authed {
		e.persistLocked()
		e.mu.Unlock()
		e.notify.Success(fmt.Sprintf("%s removed from your cart", removed.DisplayName()))
		return nil
	}
	e.mu.Unlock()

	if err := e.api.RemoveFromCart(ctx, productID, variantID); err != nil {
		if !isBenignRemoveError(err) {
			// One consistent policy: any real failure rolls the line back.
			e.restore(prev, epoch)
			e.notify.Error(fmt.Sprintf("Could not remove %s from your cart", removed.DisplayName()))
			return fmt.Errorf("failed to remove '%s' from server cart: %w", key, err)
		}
		log.Debug().Str("key", key).Msg("server reports line already removed")
	}

	// Removal can have server-side side effects on other lines, so the
	// authoritative cart is re-fetched. A failed re-fetch keeps the
	// optimistic removal.
	if serverCart, err := e.api.GetCart(ctx); err == nil {
		if err := e.hydrate(ctx, serverCart, epoch); err != nil {
			log.Warn().Err(err).Msg("re-hydration after removal failed")
		}
	} else {
		log.Warn().Err(err).Msg("cart re-fetch after removal failed; keeping local state")
	}

	e.notify.Success(fmt.Sprintf("%s removed from your cart", removed.DisplayName()))
	return nil
}

// SetQuantity sets a line to an absolute quantity. Anything below one is a
// removal, not an error.
func (e *Engine) SetQuantity(ctx context.Context, productID, variantID string, quantity int) error {
	if quantity < 1 {
		return e.RemoveLine(ctx, productID, variantID)
	}

	key := lineKey(productID, variantID)
	if !e.guard.Acquire(key) {
		log.Debug().Str("key", key).Msg("quantity change rejected: operation in flight")
		return ErrOperationPending
	}
	defer e.guard.Release(key)

	e.mu.Lock()
	epoch := e.epoch
	authed := e.authed
	existing, ok := findLine(e.lines, key)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrLineNotFound, key)
	}
	if err := checkStock(existing, quantity); err != nil {
		e.mu.Unlock()
		e.notify.Error(err.Error())
		return err
	}

	prev := copyLines(e.lines)
	updated := existing
	updated.Quantity = quantity
	e.lines = dedupe(upsertLine(e.lines, updated))
	if !authed {
		e.persistLocked()
		e.mu.Unlock()
		e.notify.Success(fmt.Sprintf("Quantity updated for %s", updated.DisplayName()))
		return nil
	}
	e.mu.Unlock()

	// The server has no absolute-set endpoint; replace the line wholesale.
	if err := e.api.RemoveFromCart(ctx, productID, variantID); err != nil && !isBenignRemoveError(err) {
		log.Warn().Err(err).Str("key", key).Msg("pre-update removal failed")
	}
	if err := e.api.AddToCart(ctx, productID, quantity, variantID); err != nil {
		e.restore(prev, epoch)
		e.notify.Error(fmt.Sprintf("Could not update quantity for %s", existing.DisplayName()))
		return fmt.Errorf("failed to update quantity for '%s': %w", key, err)
	}

	e.mu.Lock()
	if epoch == e.epoch {
		e.persistLocked()
	}
	e.mu.Unlock()
	e.notify.Success(fmt.Sprintf("Quantity updated for %s", updated.DisplayName()))
	return nil
}

// Adjust moves a line's quantity by delta in the given direction. When
// authenticated the math is delegated to the server and the authoritative
// cart re-fetched; the guest path computes locally, floored at one unit.
func (e *Engine) Adjust(ctx context.Context, productID, variantID string, delta int, action api.AdjustAction) error {
	key := lineKey(productID, variantID)
	if !e.guard.Acquire(key) {
		log.Debug().Str("key", key).Msg("adjust rejected: operation in flight")
		return ErrOperationPending
	}
	defer e.guard.Release(key)

	e.mu.Lock()
	epoch := e.epoch
	authed := e.authed
	existing, ok := findLine(e.lines, key)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrLineNotFound, key)
	}

	if !authed {
		quantity := existing.Quantity
		if action == api.ActionIncrement {
			quantity += delta
		} else {
			quantity -= delta
		}
		if quantity < 1 {
			quantity = 1
		}
		if err := checkStock(existing, quantity); err != nil {
			e.mu.Unlock()
			e.notify.Error(err.Error())
			return err
		}
		updated := existing
		updated.Quantity = quantity
		e.lines = dedupe(upsertLine(e.lines, updated))
		e.persistLocked()
		e.mu.Unlock()
		e.notify.Success(fmt.Sprintf("Quantity updated for %s", updated.DisplayName()))
		return nil
	}
	e.mu.Unlock()

	if err := e.api.AdjustQuantity(ctx, productID, variantID, delta, action); err != nil {
		e.notify.Error(fmt.Sprintf("Could not update quantity for %s", existing.DisplayName()))
		return fmt.Errorf("failed to adjust quantity for '%s': %w", key, err)
	}

	if serverCart, err := e.api.GetCart(ctx); err != nil {
		log.Warn().Err(err).Msg("cart re-fetch after adjust failed")
	} else if err := e.hydrate(ctx, serverCart, epoch); err != nil {
		log.Warn().Err(err).Msg("re-hydration after adjust failed")
	}
	e.notify.Success(fmt.Sprintf("Quantity updated for %s", existing.DisplayName()))
	return nil
}

// Clear empties the cart locally and, when authenticated, remotely.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.epoch++
	authed := e.authed
	e.lines = nil
	e.open = false
	e.mu.Unlock()

	if err := e.store.Delete(cacheKey); err != nil {
		log.Warn().Err(err).Msg("failed to clear cart cache")
	}
	if authed {
		if err := e.api.ClearCart(ctx); err != nil {
			return fmt.Errorf("failed to clear server cart: %w", err)
		}
	}
	return nil
}

// restore puts a previous snapshot back, unless the engine has moved to a new
// epoch in the meantime (then the snapshot belongs to a dead session).
func (e *Engine) restore(prev []Line, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		log.Debug().Msg("discarding rollback for stale epoch")
		return
	}
	e.lines = prev
	e.persistLocked()
}

// persistLocked mirrors the lines to local storage. Writes are suppressed
// while a reconciliation is in flight so an intermediate state is never
// cached. Callers hold e.mu.
func (e *Engine) persistLocked() {
	if e.syncing {
		return
	}
	encoded, err := json.Marshal(e.lines)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode cart for caching")
		return
	}
	if err := e.store.Put(cacheKey, encoded); err != nil {
		log.Warn().Err(err).Msg("failed to write cart cache")
	}
}

func findLine(lines []Line, key string) (Line, bool) {
	for _, line := range lines {
		if line.Key() == key {
			return line, true
		}
	}
	return Line{}, false
}

// upsertLine replaces the line with the same key, preserving its position, or
// appends when absent.
func upsertLine(lines []Line, line Line) []Line {
	out := copyLines(lines)
	for i := range out {
		if out[i].Key() == line.Key() {
			out[i] = line
			return out
		}
	}
	return append(out, line)
}

func filterLine(lines []Line, key string) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.Key() != key {
			out = append(out, line)
		}
	}
	return out
}

// copyLines clones the slice and the per-line pointers, so snapshots handed
// out never alias engine-owned data.
func copyLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := append([]Line(nil), lines...)
	for i := range out {
		if out[i].Variant != nil {
			variant := *out[i].Variant
			if variant.Stock != nil {
				stock := *variant.Stock
				variant.Stock = &stock
			}
			out[i].Variant = &variant
		}
		if out[i].Stock != nil {
			stock := *out[i].Stock
			out[i].Stock = &stock
		}
	}
	return out
}

// isBenignRemoveError recognizes server responses meaning "there was nothing
// to remove": idempotent success, not failure.
func isBenignRemoveError(err error) bool {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Msg)
	return strings.Contains(msg, "not in cart") ||
		strings.Contains(msg, "not found in cart") ||
		strings.Contains(msg, "already empty") ||
		strings.Contains(msg, "cart is empty")
}
