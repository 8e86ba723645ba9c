// Package config loads and validates the Watcher's configuration document.
//
// The Watcher takes exactly one configuration source: a JSON document named
// by the process's single positional argument (see cmd/hawkeye). There is no
// Viper-style merge of files, environment variables, and flags here — the
// spec pins a single frozen document, so the loader is a straight
// json.Unmarshal followed by field-by-field validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Default tuning values, applied when the document omits the field.
const (
	DefaultSamplingIntervalMS = 200
	DefaultMatchThreshold     = 0.95
	DefaultStableFrames       = 2
	DefaultActionParallelism  = 4
	DefaultActionQueueMax     = 256
	DefaultActionTimeout      = 10
	DefaultActionRetries      = 0
	DefaultStreamStallSeconds = 10
	DefaultMaxDecodeRestarts  = 3
)

// LoggingConfig controls the process-wide structured logger. Unlike Config,
// it is never part of the JSON document — it is assembled from CLI flags
// (see cmd/hawkeye) since log destination and verbosity are an operational
// concern of the process, not a property of the watch being run.
type LoggingConfig struct {
	Level      string
	Format     string
	AddSource  bool
	TimeFormat string
}

// DefaultLoggingConfig returns the logger configuration used when no
// --log-level/--log-format flags are given.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// FrameKind distinguishes the tagged variants of a FrameDescriptor.
type FrameKind string

const (
	FrameContent FrameKind = "content"
	FrameSlate   FrameKind = "slate"
)

// Config is the immutable, validated configuration document.
type Config struct {
	Description string           `json:"description"`
	Source      SourceConfig     `json:"source"`
	Transitions []TransitionRule `json:"transitions"`

	SamplingIntervalMS int     `json:"sampling_interval_ms"`
	MatchThreshold     float64 `json:"match_threshold"`
	StableFrames       int     `json:"stable_frames"`
	ActionParallelism  int     `json:"action_parallelism"`
}

// SourceConfig describes the ingest transport. The container/codec/protocol
// fields are fixed by the spec but are still validated against the document
// so a stale or hand-edited config fails loudly rather than silently.
type SourceConfig struct {
	IngestPort int             `json:"ingest_port"`
	Container  string          `json:"container"`
	Codec      string          `json:"codec"`
	Transport  TransportConfig `json:"transport"`
}

// TransportConfig names the wire transport.
type TransportConfig struct {
	Protocol string `json:"protocol"`
}

// FrameDescriptor is the tagged "content" | "slate" variant from spec.md §3.
type FrameDescriptor struct {
	FrameType    FrameKind         `json:"frame_type"`
	SlateContext *SlateDescription `json:"slate_context,omitempty"`
}

// SlateDescription names the reference image backing a "slate" descriptor.
type SlateDescription struct {
	URL string `json:"url"`
}

// TransitionRule fires Actions when classification goes from From to To.
type TransitionRule struct {
	From    FrameDescriptor `json:"from"`
	To      FrameDescriptor `json:"to"`
	Actions []Action        `json:"actions"`
}

// BasicAuth carries HTTP basic-auth credentials for an Action.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authorization is the tagged variant of an Action's optional auth scheme.
// The spec currently defines only "basic"; the wrapper shape leaves room to
// add bearer/digest later without another schema break.
type Authorization struct {
	Basic *BasicAuth `json:"basic,omitempty"`
}

// Action is one HTTP call fired as a side effect of a TransitionRule.
type Action struct {
	Description   string            `json:"description"`
	Type          string            `json:"type"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body,omitempty"`
	Authorization *Authorization    `json:"authorization,omitempty"`
	Timeout       int               `json:"timeout"`
	Retries       int               `json:"retries"`
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &ConfigurationError{Field: "$", Message: err.Error()}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SamplingIntervalMS == 0 {
		c.SamplingIntervalMS = DefaultSamplingIntervalMS
	}
	if c.MatchThreshold == 0 {
		c.MatchThreshold = DefaultMatchThreshold
	}
	if c.StableFrames == 0 {
		c.StableFrames = DefaultStableFrames
	}
	if c.ActionParallelism == 0 {
		c.ActionParallelism = DefaultActionParallelism
	}
	for i := range c.Transitions {
		for j := range c.Transitions[i].Actions {
			a := &c.Transitions[i].Actions[j]
			if a.Timeout == 0 {
				a.Timeout = DefaultActionTimeout
			}
			if a.Type == "" {
				a.Type = "http_call"
			}
		}
	}
}

// allowedSchemes is the closed set of slate URL schemes the Slate Library
// knows how to fetch. Adding a scheme here and in internal/slate is the only
// place network fetchers would be wired in; the spec pins file:// only.
var allowedSchemes = map[string]bool{
	"file": true,
}

// Validate checks every invariant named in spec.md §4.1, returning a
// *ConfigurationError naming the offending field on the first failure.
func (c *Config) Validate() error {
	if c.Source.IngestPort < 1 || c.Source.IngestPort > 65535 {
		return &ConfigurationError{Field: "source.ingest_port", Message: "must be in [1, 65535]"}
	}
	if c.Source.Container != "mpeg-ts" {
		return &ConfigurationError{Field: "source.container", Message: `must be "mpeg-ts"`}
	}
	if c.Source.Codec != "h264" {
		return &ConfigurationError{Field: "source.codec", Message: `must be "h264"`}
	}
	if c.Source.Transport.Protocol != "rtp" {
		return &ConfigurationError{Field: "source.transport.protocol", Message: `must be "rtp"`}
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return &ConfigurationError{Field: "match_threshold", Message: "must be in [0, 1]"}
	}
	if c.StableFrames < 1 {
		return &ConfigurationError{Field: "stable_frames", Message: "must be >= 1"}
	}
	if c.ActionParallelism < 1 {
		return &ConfigurationError{Field: "action_parallelism", Message: "must be >= 1"}
	}
	if len(c.Transitions) == 0 {
		return &ConfigurationError{Field: "transitions", Message: "must contain at least one rule"}
	}

	for i, t := range c.Transitions {
		if err := t.From.validate(fmt.Sprintf("transitions[%d].from", i)); err != nil {
			return err
		}
		if err := t.To.validate(fmt.Sprintf("transitions[%d].to", i)); err != nil {
			return err
		}
		for j, a := range t.Actions {
			if err := a.validate(fmt.Sprintf("transitions[%d].actions[%d]", i, j)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d FrameDescriptor) validate(field string) error {
	switch d.FrameType {
	case FrameContent:
		return nil
	case FrameSlate:
		if d.SlateContext == nil || d.SlateContext.URL == "" {
			return &ConfigurationError{Field: field + ".slate_context.url", Message: "required for slate descriptors"}
		}
		scheme, ok := splitScheme(d.SlateContext.URL)
		if !ok || !allowedSchemes[scheme] {
			return &ConfigurationError{Field: field + ".slate_context.url", Message: fmt.Sprintf("unsupported scheme %q", scheme)}
		}
		return nil
	default:
		return &ConfigurationError{Field: field + ".frame_type", Message: fmt.Sprintf("unknown frame_type %q", d.FrameType)}
	}
}

var validMethods = map[string]bool{"GET": true, "POST": true, "PUT": true, "DELETE": true}

func (a Action) validate(field string) error {
	if a.Type != "http_call" {
		return &ConfigurationError{Field: field + ".type", Message: `must be "http_call"`}
	}
	if !validMethods[a.Method] {
		return &ConfigurationError{Field: field + ".method", Message: "must be one of GET, POST, PUT, DELETE"}
	}
	if a.URL == "" {
		return &ConfigurationError{Field: field + ".url", Message: "required"}
	}
	if a.Retries < 0 {
		return &ConfigurationError{Field: field + ".retries", Message: "must be >= 0"}
	}
	if a.Timeout <= 0 {
		return &ConfigurationError{Field: field + ".timeout", Message: "must be > 0"}
	}
	if a.Authorization != nil && a.Authorization.Basic == nil {
		return &ConfigurationError{Field: field + ".authorization", Message: "only basic authorization is supported"}
	}
	return nil
}

// splitScheme extracts the URL scheme without pulling in net/url's full
// parsing (which accepts far more than the closed set this spec allows).
func splitScheme(u string) (string, bool) {
	for i := 0; i < len(u); i++ {
		switch u[i] {
		case ':':
			if i == 0 {
				return "", false
			}
			if i+2 < len(u) && u[i+1] == '/' && u[i+2] == '/' {
				return u[:i], true
			}
			return "", false
		case '/', '?', '#':
			return "", false
		}
	}
	return "", false
}
