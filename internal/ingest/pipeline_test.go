package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartBudget_AllowsExactlyMaxRestarts(t *testing.T) {
	b := newRestartBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		b.record()
		assert.True(t, b.allow(), "restart %d should be permitted", i+1)
	}

	b.record()
	assert.False(t, b.allow(), "restart exceeding the budget must escalate")
}

func TestRestartBudget_WindowExpiresOldRestarts(t *testing.T) {
	b := newRestartBudget(1, 20*time.Millisecond)

	b.record()
	assert.True(t, b.allow())

	time.Sleep(30 * time.Millisecond)

	// The earlier restart has aged out of the window, so a fresh one is
	// allowed again.
	assert.True(t, b.allow())
}
