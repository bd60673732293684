package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_UnlimitedNeverBlocks(t *testing.T) {
	kl := New(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 1000; i++ {
		require.NoError(t, kl.Wait(ctx, "example.com"))
	}
}

func TestWait_KeysAreIndependent(t *testing.T) {
	kl := New(0.001, 1)
	ctx := context.Background()

	require.NoError(t, kl.Wait(ctx, "a.example"))
	require.NoError(t, kl.Wait(ctx, "b.example"))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, kl.Wait(short, "a.example"), "bucket for a.example is drained")
}

func TestWait_SameLimiterPerKey(t *testing.T) {
	kl := New(5, 2)
	assert.Same(t, kl.get("x"), kl.get("x"))
	assert.NotSame(t, kl.get("x"), kl.get("y"))
}
