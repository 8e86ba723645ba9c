package transition

import (
	"fmt"

	"github.com/jxs/hawkeye/internal/config"
)

// resolvedDescriptor is a FrameDescriptor with its slate URL already
// resolved to the library's content-hash ID, so matching at runtime never
// touches the library again.
type resolvedDescriptor struct {
	isSlate bool
	slateID string
}

func (d resolvedDescriptor) matches(c Classification) bool {
	if d.isSlate {
		return c.Kind == Slate && c.SlateID == d.slateID
	}
	return c.Kind == Content
}

type resolvedRule struct {
	from    resolvedDescriptor
	to      resolvedDescriptor
	actions []config.Action
}

// Matcher resolves a TransitionEvent to the first configured rule whose
// from/to descriptors match, in declared order. Deterministic first-match is
// required even when multiple rules could conceptually apply.
type Matcher struct {
	rules []resolvedRule
}

// NewMatcher resolves every rule's slate URL against idByURL (from
// slate.Library.IDByURL) and builds a Matcher over the ordered rule list.
// It returns an error if a rule references a URL the library never loaded —
// this should not happen since the Slate Library is built from the same
// configuration, but the invariant is checked rather than assumed.
func NewMatcher(rules []config.TransitionRule, idByURL map[string]string) (*Matcher, error) {
	resolved := make([]resolvedRule, 0, len(rules))

	for i, rule := range rules {
		from, err := resolveDescriptor(rule.From, idByURL)
		if err != nil {
			return nil, fmt.Errorf("transitions[%d].from: %w", i, err)
		}
		to, err := resolveDescriptor(rule.To, idByURL)
		if err != nil {
			return nil, fmt.Errorf("transitions[%d].to: %w", i, err)
		}
		resolved = append(resolved, resolvedRule{from: from, to: to, actions: rule.Actions})
	}

	return &Matcher{rules: resolved}, nil
}

func resolveDescriptor(d config.FrameDescriptor, idByURL map[string]string) (resolvedDescriptor, error) {
	if d.FrameType == config.FrameContent {
		return resolvedDescriptor{isSlate: false}, nil
	}
	if d.SlateContext == nil {
		return resolvedDescriptor{}, fmt.Errorf("slate descriptor missing slate_context")
	}
	id, ok := idByURL[d.SlateContext.URL]
	if !ok {
		return resolvedDescriptor{}, fmt.Errorf("slate url %q not present in library", d.SlateContext.URL)
	}
	return resolvedDescriptor{isSlate: true, slateID: id}, nil
}

// Match returns the first rule's actions matching ev, or (nil, false) if
// none match.
func (m *Matcher) Match(ev Event) ([]config.Action, bool) {
	for _, rule := range m.rules {
		if rule.from.matches(ev.From) && rule.to.matches(ev.To) {
			return rule.actions, true
		}
	}
	return nil, false
}
