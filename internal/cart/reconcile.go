package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/clynova/cantabria-cart/internal/api"
	"github.com/clynova/cantabria-cart/internal/storage"
)

// Reconcile establishes one authoritative cart state for the new
// authentication state. It runs on login, logout and app start.
//
// Authenticated: the server cart wins outright when non-empty. Only when the
// server cart is empty is a staged guest cart bulk-synced up, so a returning
// user's saved cart is never overwritten by an unrelated guest session's
// leftovers. Unauthenticated: the cached cart is staged under a temporary key
// to survive a login within the same session, then active state is cleared.
func (e *Engine) Reconcile(ctx context.Context, authenticated bool) error {
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.authed = authenticated

	if !authenticated {
		e.stageGuestCartLocked()
		e.lines = nil
		e.open = false
		e.syncing = false
		e.mu.Unlock()
		if err := e.store.Delete(cacheKey); err != nil {
			log.Warn().Err(err).Msg("failed to clear cart cache on logout")
		}
		return nil
	}

	// Clear first so stale local data is never rendered as authoritative
	// while the server round-trip is in flight.
	e.syncing = true
	e.lines = nil
	e.mu.Unlock()
	if err := e.store.Delete(cacheKey); err != nil {
		log.Warn().Err(err).Msg("failed to clear cart cache before reconciliation")
	}

	defer func() {
		if err := e.store.Delete(stagingKey); err != nil {
			log.Warn().Err(err).Msg("failed to clear staged guest cart")
		}
		e.mu.Lock()
		if epoch == e.epoch {
			e.syncing = false
			e.persistLocked()
		}
		e.mu.Unlock()
	}()

	// A fetch failure here is the common first-time-user case, not fatal.
	serverCart, err := e.api.GetCart(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("server cart fetch failed; treating as empty")
		serverCart = &api.Cart{}
	}

	if len(serverCart.Products) > 0 {
		if err := e.hydrate(ctx, serverCart, epoch); err != nil {
			e.resetOnHydrationFailure(epoch)
			return err
		}
		return nil
	}

	staged := e.loadStagedGuestCart()
	if len(staged) == 0 {
		return nil
	}

	synced, err := e.api.SyncCart(ctx, staged)
	if err != nil {
		// Do not resurrect a possibly-invalid local cart.
		log.Error().Err(err).Msg("guest cart sync failed; starting empty")
		return nil
	}
	if err := e.hydrate(ctx, synced, epoch); err != nil {
		e.resetOnHydrationFailure(epoch)
		return err
	}
	return nil
}

// stageGuestCartLocked copies the cached cart under the staging key. Callers
// hold e.mu.
func (e *Engine) stageGuestCartLocked() {
	cached, err := e.store.Get(cacheKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.Warn().Err(err).Msg("failed to read cart cache for staging")
		}
		return
	}
	if err := e.store.Put(stagingKey, cached); err != nil {
		log.Warn().Err(err).Msg("failed to stage guest cart")
	}
}

func (e *Engine) loadStagedGuestCart() []api.SyncEntry {
	staged, err := e.store.Get(stagingKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.Warn().Err(err).Msg("failed to read staged guest cart")
		}
		return nil
	}
	var lines []Line
	if err := json.Unmarshal(staged, &lines); err != nil {
		log.Warn().Err(err).Msg("staged guest cart is malformed; discarding")
		return nil
	}
	entries := make([]api.SyncEntry, 0, len(lines))
	for _, line := range dedupe(lines) {
		if line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		entries = append(entries, api.SyncEntry{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			VariantID: line.VariantID,
		})
	}
	return entries
}

// hydrate converts the wire-format server cart into canonical lines and
// atomically replaces the engine's state with them, unless the epoch has
// moved on. Entries whose product must be fetched are resolved concurrently;
// a failed fetch or a malformed entry drops that one line with a warning
// rather than aborting the rest.
func (e *Engine) hydrate(ctx context.Context, serverCart *api.Cart, epoch uint64) error {
	entries := serverCart.Products

	// One fetch per distinct bare product id.
	missing := make(map[string]*api.Product)
	for _, entry := range entries {
		if entry.Product.Product == nil && entry.Product.ID != "" {
			missing[entry.Product.ID] = nil
		}
	}
	if len(missing) > 0 {
		var mu sync.Mutex
		group, groupCtx := errgroup.WithContext(ctx)
		for id := range missing {
			id := id
			group.Go(func() error {
				product, err := e.api.GetProductByID(groupCtx, id)
				if err != nil {
					if groupCtx.Err() != nil {
						return groupCtx.Err()
					}
					log.Warn().Err(err).Str("productId", id).Msg("dropping cart line: product fetch failed")
					return nil
				}
				mu.Lock()
				missing[id] = product
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return fmt.Errorf("hydration aborted: %w", err)
		}
	}

	lines := make([]Line, 0, len(entries))
	for _, entry := range entries {
		product := entry.Product.Product
		if product == nil {
			product = missing[entry.Product.ID]
		}
		if product == nil {
			if entry.Product.ID == "" {
				log.Warn().Msg("dropping cart entry with no product reference")
			}
			// Otherwise the fetch failed above and was already warned.
			continue
		}
		line, err := normalizeEntry(entry, product)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed cart entry")
			continue
		}
		lines = append(lines, line)
	}
	lines = dedupe(lines)

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		log.Debug().Msg("discarding hydration result for stale epoch")
		return nil
	}
	e.lines = lines
	e.persistLocked()
	return nil
}

// resetOnHydrationFailure is the fail-safe for a catastrophic hydration
// error: an empty cart with an error toast, never a partially-built one.
func (e *Engine) resetOnHydrationFailure(epoch uint64) {
	e.mu.Lock()
	if epoch == e.epoch {
		e.lines = nil
	}
	e.mu.Unlock()
	e.notify.Error("We could not load your cart. Please try again.")
}
