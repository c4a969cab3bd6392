package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, Fixed(DefaultInterval), p)

	p, err = New(Config{Strategy: "none"})
	require.NoError(t, err)
	assert.IsType(t, None{}, p)

	p, err = New(Config{Strategy: "rate", Rate: 5})
	require.NoError(t, err)
	assert.IsType(t, &Limiter{}, p)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Strategy: "rate"})
	assert.Error(t, err)

	_, err = New(Config{Strategy: "fixed", Interval: -time.Second})
	assert.Error(t, err)

	_, err = New(Config{Strategy: "jitter"})
	assert.Error(t, err)
}

func TestFixed_Wait(t *testing.T) {
	start := time.Now()
	require.NoError(t, Fixed(20*time.Millisecond).Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFixed_WaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Fixed(time.Hour).Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	// First token is free, the next two wait ~20ms each
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestNone_Wait(t *testing.T) {
	assert.NoError(t, None{}.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, None{}.Wait(ctx))
}
