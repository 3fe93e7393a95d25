package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const threeTips = `[
 {"title":"Name the blocker early","description":"Raise risks in standup.","category":"Communication"},
 {"title":"Slow down","description":"Pause before responding.","category":"Tone"},
 {"title":"Be specific","description":"Use concrete dates.","category":"Clarity"}
]`

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestParseTips(t *testing.T) {
	tips, err := ParseTips(threeTips)
	require.NoError(t, err)
	require.Len(t, tips, 3)
	assert.Equal(t, "Slow down", tips[1].Title)
	assert.Equal(t, CategoryClarity, tips[2].Category)
}

func TestParseTipsStripsFences(t *testing.T) {
	tips, err := ParseTips("```json\n" + threeTips + "\n```")
	require.NoError(t, err)
	assert.Len(t, tips, 3)
}

func TestParseTipsRejectsBadCategory(t *testing.T) {
	_, err := ParseTips(`[{"title":"x","description":"y","category":"Volume"}]`)
	assert.ErrorIs(t, err, ErrInvalidTips)

	_, err = ParseTips(`[]`)
	assert.ErrorIs(t, err, ErrInvalidTips)

	_, err = ParseTips(`Sure! Here are some tips.`)
	assert.ErrorIs(t, err, ErrInvalidTips)
}

func TestRenderTranscript(t *testing.T) {
	out := RenderTranscript([]Message{
		{Role: RoleModel, Text: "Thanks for joining."},
		{Role: RoleUser, Text: "Sure."},
	})
	assert.Equal(t, "MODEL: Thanks for joining.\nUSER: Sure.", out)
	assert.Equal(t, "", RenderTranscript(nil))
}

func TestAnalyzeSendsPromptAndParses(t *testing.T) {
	var (
		gotModel, gotPrompt, gotSystem string
		gotConfig                      *genai.GenerateContentConfig
	)
	a := newAnalyzer("", func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotPrompt = contents[0].Parts[0].Text
		gotSystem = config.SystemInstruction.Parts[0].Text
		gotConfig = config
		return textResponse(threeTips), nil
	}, zerolog.Nop())

	tips, err := a.Analyze(context.Background(), "USER: hello")
	require.NoError(t, err)
	assert.Len(t, tips, 3)
	assert.Equal(t, DefaultModel, gotModel)
	assert.True(t, strings.Contains(gotPrompt, "Transcript:\nUSER: hello"))
	assert.Contains(t, gotSystem, "JSON only")

	require.NotNil(t, gotConfig)
	assert.Equal(t, "application/json", gotConfig.ResponseMIMEType)
	schema := gotConfig.ResponseSchema
	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeArray, schema.Type)
	require.NotNil(t, schema.Items)
	assert.Equal(t, genai.TypeObject, schema.Items.Type)
	assert.ElementsMatch(t, []string{"title", "description", "category"}, schema.Items.Required)
	require.Contains(t, schema.Items.Properties, "category")
	assert.Equal(t, []string{"Communication", "Tone", "Clarity"}, schema.Items.Properties["category"].Enum)
}

func TestAnalyzeErrors(t *testing.T) {
	failing := newAnalyzer("gemini-test", func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("quota exceeded")
	}, zerolog.Nop())
	_, err := failing.Analyze(context.Background(), "USER: hi")
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, "gemini-test", failing.Model())

	empty := newAnalyzer("", func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{}, nil
	}, zerolog.Nop())
	_, err = empty.Analyze(context.Background(), "USER: hi")
	assert.ErrorIs(t, err, ErrNoResponse)

	garbage := newAnalyzer("", func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("not json"), nil
	}, zerolog.Nop())
	_, err = garbage.Analyze(context.Background(), "USER: hi")
	assert.ErrorIs(t, err, ErrInvalidTips)
}

func TestNewGeminiAnalyzerRequiresKey(t *testing.T) {
	_, err := NewGeminiAnalyzer(context.Background(), "", "", zerolog.Nop())
	assert.Error(t, err)
}
