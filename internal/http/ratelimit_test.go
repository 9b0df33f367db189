package http

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestIPRateLimiter_PerIP(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Hour), 1)

	assert.True(t, rl.GetLimiter("1.1.1.1").Allow())
	assert.False(t, rl.GetLimiter("1.1.1.1").Allow())
	assert.True(t, rl.GetLimiter("2.2.2.2").Allow())
	assert.Equal(t, 2, rl.Len())
}

func TestIPRateLimiter_PruneKeepsActiveVisitors(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Hour), 2)
	rl.GetLimiter("idle")
	rl.GetLimiter("busy").Allow()

	rl.Prune()
	assert.Equal(t, 1, rl.Len())
}

func TestIPRateLimiter_RunCleanupStops(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Hour), 1)
	rl.GetLimiter("idle")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rl.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
}
