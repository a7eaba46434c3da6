package circuitbreaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/registry-api/pkg/circuitbreaker"
)

func TestOpensAfterThreshold(t *testing.T) {
	cb := circuitbreaker.New(circuitbreaker.Settings{
		Name:             "test",
		FailureThreshold: 2,
		Cooldown:         time.Hour,
	})

	boom := errors.New("boom")
	fail := func() error { return boom }

	require.ErrorIs(t, cb.Execute(fail), boom)
	require.ErrorIs(t, cb.Execute(fail), boom)

	// Threshold reached; calls are rejected without running fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called)
}

func TestRecoversAfterCooldown(t *testing.T) {
	cb := circuitbreaker.New(circuitbreaker.Settings{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	time.Sleep(5 * time.Millisecond)

	// The trial call after the cooldown closes the breaker again.
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))
}
