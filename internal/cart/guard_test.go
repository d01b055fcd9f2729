package cart_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clynova/cantabria-cart/internal/cart"
)

func TestGuard_RejectsWhileHeld(t *testing.T) {
	guard := cart.NewGuard(0)

	require.True(t, guard.Acquire("p1:v1"))
	require.False(t, guard.Acquire("p1:v1"))

	// A different key is unaffected.
	require.True(t, guard.Acquire("p2"))

	guard.Release("p1:v1")
	require.True(t, guard.Acquire("p1:v1"))
}

func TestGuard_SettlingDelayAbsorbsBurst(t *testing.T) {
	guard := cart.NewGuard(30 * time.Millisecond)

	require.True(t, guard.Acquire("p1"))
	guard.Release("p1")

	// Still settling: the immediate re-click is swallowed.
	require.False(t, guard.Acquire("p1"))

	require.Eventually(t, func() bool {
		return guard.Acquire("p1")
	}, time.Second, 5*time.Millisecond)
}
