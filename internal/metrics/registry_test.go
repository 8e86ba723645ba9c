package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegistersAllMetrics(t *testing.T) {
	r := New()

	r.FramesReceived.Inc()
	r.SlateMatches.WithLabelValues("abc123").Inc()
	r.Transitions.WithLabelValues("content", "slate").Inc()
	r.CurrentState.Set(StateSlate)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegistry_ActionMetricsAdapter(t *testing.T) {
	r := New()
	r.ActionDispatched("notify")
	r.ActionFailed("notify")
	r.ActionDropped()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
