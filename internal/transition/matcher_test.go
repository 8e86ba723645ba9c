package transition

import (
	"testing"

	"github.com/jxs/hawkeye/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_FirstMatchOrdering(t *testing.T) {
	idByURL := map[string]string{"file:///s1.png": "abc123"}

	rules := []config.TransitionRule{
		{
			From:    config.FrameDescriptor{FrameType: config.FrameContent},
			To:      config.FrameDescriptor{FrameType: config.FrameSlate, SlateContext: &config.SlateDescription{URL: "file:///s1.png"}},
			Actions: []config.Action{{Description: "first rule"}},
		},
		{
			From:    config.FrameDescriptor{FrameType: config.FrameContent},
			To:      config.FrameDescriptor{FrameType: config.FrameSlate, SlateContext: &config.SlateDescription{URL: "file:///s1.png"}},
			Actions: []config.Action{{Description: "second rule, never reached"}},
		},
	}

	m, err := NewMatcher(rules, idByURL)
	require.NoError(t, err)

	actions, ok := m.Match(Event{From: content(), To: slate("abc123")})
	require.True(t, ok)
	require.Len(t, actions, 1)
	assert.Equal(t, "first rule", actions[0].Description)
}

func TestMatcher_NoMatchReturnsFalse(t *testing.T) {
	m, err := NewMatcher(nil, nil)
	require.NoError(t, err)

	_, ok := m.Match(Event{From: content(), To: slate("unknown")})
	assert.False(t, ok)
}

func TestMatcher_UnresolvableSlateURLFailsConstruction(t *testing.T) {
	rules := []config.TransitionRule{
		{
			From: config.FrameDescriptor{FrameType: config.FrameContent},
			To:   config.FrameDescriptor{FrameType: config.FrameSlate, SlateContext: &config.SlateDescription{URL: "file:///missing.png"}},
		},
	}

	_, err := NewMatcher(rules, map[string]string{})
	assert.Error(t, err)
}
