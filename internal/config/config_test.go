package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocument() map[string]any {
	return map[string]any{
		"description": "ad-break slate watcher",
		"source": map[string]any{
			"ingest_port": 5004,
			"container":   "mpeg-ts",
			"codec":       "h264",
			"transport":   map[string]any{"protocol": "rtp"},
		},
		"transitions": []any{
			map[string]any{
				"from": map[string]any{"frame_type": "content"},
				"to": map[string]any{
					"frame_type":    "slate",
					"slate_context": map[string]any{"url": "file:///slates/ad-break.png"},
				},
				"actions": []any{
					map[string]any{
						"description": "start ad break",
						"type":        "http_call",
						"method":      "POST",
						"url":         "http://localhost:9000/ad-break/start",
						"retries":     2,
						"timeout":     5,
					},
				},
			},
		},
	}
}

func writeDocument(t *testing.T, doc map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeDocument(t, validDocument())

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultSamplingIntervalMS, cfg.SamplingIntervalMS)
	assert.Equal(t, DefaultMatchThreshold, cfg.MatchThreshold)
	assert.Equal(t, DefaultStableFrames, cfg.StableFrames)
	assert.Equal(t, DefaultActionParallelism, cfg.ActionParallelism)
	assert.Equal(t, DefaultActionTimeout, cfg.Transitions[0].Actions[0].Timeout)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	doc := validDocument()
	doc["sampling_interval_ms"] = 500
	doc["match_threshold"] = 0.8
	doc["stable_frames"] = 3
	doc["action_parallelism"] = 8
	path := writeDocument(t, doc)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.SamplingIntervalMS)
	assert.InDelta(t, 0.8, cfg.MatchThreshold, 1e-9)
	assert.Equal(t, 3, cfg.StableFrames)
	assert.Equal(t, 8, cfg.ActionParallelism)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	doc := validDocument()
	doc["source"].(map[string]any)["ingest_port"] = 70000
	path := writeDocument(t, doc)

	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "source.ingest_port", cerr.Field)
}

func TestValidate_RejectsUnknownScheme(t *testing.T) {
	doc := validDocument()
	doc["transitions"].([]any)[0].(map[string]any)["to"].(map[string]any)["slate_context"].(map[string]any)["url"] = "https://example.com/slate.png"
	path := writeDocument(t, doc)

	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Field, "slate_context.url")
}

func TestValidate_RejectsBadThreshold(t *testing.T) {
	doc := validDocument()
	doc["match_threshold"] = 1.5
	path := writeDocument(t, doc)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsNegativeRetries(t *testing.T) {
	doc := validDocument()
	doc["transitions"].([]any)[0].(map[string]any)["actions"].([]any)[0].(map[string]any)["retries"] = -1
	path := writeDocument(t, doc)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsBadMethod(t *testing.T) {
	doc := validDocument()
	doc["transitions"].([]any)[0].(map[string]any)["actions"].([]any)[0].(map[string]any)["method"] = "PATCH"
	path := writeDocument(t, doc)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RequiresAtLeastOneTransition(t *testing.T) {
	doc := validDocument()
	doc["transitions"] = []any{}
	path := writeDocument(t, doc)

	_, err := Load(path)
	require.Error(t, err)
}
