package persona

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogBuiltins(t *testing.T) {
	c := NewCatalog("")
	require.NoError(t, c.Load())

	s, err := c.Get("")
	require.NoError(t, err)
	assert.Equal(t, "pip_swe", s.Key)
	assert.Equal(t, "Performance Conversation – SWE PIP", s.Label)
	assert.Equal(t, s, c.Default())
	assert.Equal(t, 1, c.Count())
}

func TestCatalogUnknownScenario(t *testing.T) {
	c := NewCatalog("")

	_, err := c.Get("pm_layoff")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownScenario))
	assert.Contains(t, err.Error(), "pip_swe")
}

func TestCatalogLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	doc := `scenarios:
  - key: designer_feedback
    label: Design Review Feedback
    employee_type: product designer
    description: The designer's last three reviews slipped.
  - key: pip_swe
    label: Override
    employee_type: frontend engineer
    description: Overridden description.
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c := NewCatalog(path)
	require.NoError(t, c.Load())

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "designer_feedback", list[0].Key)
	assert.Equal(t, "Override", list[1].Label)

	require.NoError(t, os.WriteFile(path, []byte("scenarios: []\n"), 0o644))
	require.NoError(t, c.Reload())
	assert.Equal(t, "Performance Conversation – SWE PIP", c.Default().Label)
}

func TestCatalogMissingFileIsIgnored(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, c.Load())
	assert.Equal(t, 1, c.Count())
}

func TestCatalogRejectsIncompleteScenario(t *testing.T) {
	c := NewCatalog("")
	err := c.LoadYAML([]byte("scenarios:\n  - key: x\n    label: X\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "employee_type")

	err = c.LoadYAML([]byte("scenarios:\n  - label: X\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'key'")
}

func TestBuildSystemPromptWithoutProfile(t *testing.T) {
	s := NewCatalog("").Default()

	prompt := BuildSystemPrompt(s, nil)

	assert.True(t, strings.HasPrefix(prompt, "You are **Jordan Lee**"))
	assert.NotContains(t, prompt, situationSlot)
	assert.Contains(t, prompt, "You are having a difficult performance conversation as the manager of a backend software engineer (individual contributor).\n\nScenario:\nThe engineer has missed multiple sprint commitments")
	assert.True(t, strings.HasSuffix(prompt, "Keep your responses concise and conversational, as in a real 1:1."))
}

func TestBuildSystemPromptWithProfile(t *testing.T) {
	s := NewCatalog("").Default()

	prompt := BuildSystemPrompt(s, &UserProfile{Name: "Sam", Role: "SRE", Topic: "missed on-call handoffs"})
	assert.True(t, strings.HasPrefix(prompt,
		"You are speaking with Sam, whose role is SRE.\nThe conversation topic is: \"missed on-call handoffs\"\n\nYou are **Jordan Lee**"))

	prompt = BuildSystemPrompt(s, &UserProfile{})
	assert.True(t, strings.HasPrefix(prompt,
		"You are speaking with your employee, whose role is backend software engineer (individual contributor).\n\nYou are **Jordan Lee**"))
}

func TestPromptHashIsStable(t *testing.T) {
	a := PromptHash("prompt")
	assert.Len(t, a, 64)
	assert.Equal(t, a, PromptHash("prompt"))
	assert.NotEqual(t, a, PromptHash("prompt2"))
}

func TestBuildPayload(t *testing.T) {
	s := NewCatalog("").Default()
	p := BuildPayload(s, "PROMPT")

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "Jordan – Performance Conversation – SWE PIP", doc["persona_name"])
	assert.Equal(t, "full", doc["pipeline_mode"])
	assert.Equal(t, "PROMPT", doc["system_prompt"])
	assert.Equal(t, "r92debe21318", doc["default_replica_id"])
	assert.Contains(t, doc["context"], "find_inspiration")

	layers := doc["layers"].(map[string]interface{})
	llm := layers["llm"].(map[string]interface{})
	assert.Equal(t, "tavus-gpt-4o", llm["model"])
	assert.Equal(t, true, llm["speculative_inference"])
	tool := llm["tools"].([]interface{})[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "find_inspiration", tool["name"])
	params := tool["parameters"].(map[string]interface{})
	assert.Equal(t, []interface{}{"topic"}, params["required"])
	maxResults := params["properties"].(map[string]interface{})["max_results"].(map[string]interface{})
	assert.EqualValues(t, 1, maxResults["minimum"])
	assert.EqualValues(t, 5, maxResults["maximum"])

	assert.Equal(t, map[string]interface{}{"tts_engine": "elevenlabs"}, layers["tts"])
	assert.Equal(t, map[string]interface{}{
		"participant_pause_sensitivity":     "medium",
		"participant_interrupt_sensitivity": "medium",
		"smart_turn_detection":              true,
	}, layers["stt"])

	perception := layers["perception"].(map[string]interface{})
	assert.Equal(t, "raven-0", perception["perception_model"])
	assert.Len(t, perception["ambient_awareness_queries"], 4)
	assert.Contains(t, perception["perception_tool_prompt"], "user_performance_emotion_signal")
	signal := perception["perception_tools"].([]interface{})[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "user_performance_emotion_signal", signal["name"])
	assert.Equal(t, []interface{}{"emotional_state", "indicator"}, signal["parameters"].(map[string]interface{})["required"])
}

func TestBuildPayloadCopiesQueries(t *testing.T) {
	p := BuildPayload(NewCatalog("").Default(), "x")
	p.Layers.Perception.AmbientAwarenessQueries[0] = "mutated"
	assert.NotEqual(t, "mutated", ambientAwarenessQueries[0])
}
