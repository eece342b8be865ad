package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_EnforcesDelay(t *testing.T) {
	l := New(50*time.Millisecond, 3)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.gov/a"))
	require.NoError(t, l.Wait(ctx, "https://example.gov/b"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestWait_IndependentDomains(t *testing.T) {
	l := New(100*time.Millisecond, 3)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.example/"))
	require.NoError(t, l.Wait(ctx, "https://b.example/"))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestSetDomainDelay_OverridesDefault(t *testing.T) {
	l := New(10*time.Millisecond, 3)
	l.SetDomainDelay("slow.example", 500*time.Millisecond)

	assert.Equal(t, 500*time.Millisecond, l.DomainDelay("slow.example"))
	assert.Equal(t, 10*time.Millisecond, l.DomainDelay("other.example"))
}

func TestWait_TooManyViolationsAborts(t *testing.T) {
	l := New(50*time.Millisecond, 2)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.gov/"))
	require.NoError(t, l.Wait(ctx, "https://example.gov/")) // violation 1, waits it out
	require.NoError(t, l.Wait(ctx, "https://example.gov/")) // violation 2, waits it out

	err := l.Wait(ctx, "https://example.gov/") // violation 3, exceeds max of 2
	var tooMany *ErrTooManyViolations
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, "example.gov", tooMany.Domain)
	assert.Equal(t, 3, tooMany.Violations)
}

func TestWait_ContextCancellation(t *testing.T) {
	l := New(time.Second, 3)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://example.gov/"))

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(cancelCtx, "https://example.gov/")
	assert.ErrorIs(t, err, context.Canceled)
}
