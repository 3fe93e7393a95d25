package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/internal/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrNoResponse is returned when the model produced no text.
var ErrNoResponse = errors.New("no response from model")

// Analyzer produces tips for a rendered transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) ([]Tip, error)
}

const systemInstruction = "You are a communication coach reviewing a practice conversation. " +
	"Respond with JSON only, no prose and no markdown."

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiAnalyzer asks a Gemini model for tips.
type GeminiAnalyzer struct {
	model    string
	generate generateFunc
	log      zerolog.Logger
}

// NewGeminiAnalyzer creates a Gemini-backed analyzer.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGoogleAI})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newAnalyzer(model, func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, model, contents, config)
	}, logger), nil
}

func newAnalyzer(model string, generate generateFunc, logger zerolog.Logger) *GeminiAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAnalyzer{model: model, generate: generate, log: logger}
}

// Model returns the configured model name.
func (a *GeminiAnalyzer) Model() string {
	return a.model
}

// Analyze requests three tips for transcript.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, transcript string) (tips []Tip, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFeedback(time.Since(start), err == nil) }()

	resp, err := a.generate(ctx, a.model, genai.Text(BuildPrompt(transcript)), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   tipsResponseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return nil, ErrNoResponse
	}
	tips, err = ParseTips(text)
	if err != nil {
		a.log.Warn().Err(err).Str("model", a.model).Msg("model returned malformed tips")
		return nil, err
	}
	a.log.Info().Int("tips", len(tips)).Str("model", a.model).Dur("latency", time.Since(start)).Msg("generated feedback")
	return tips, nil
}

// tipsResponseSchema mirrors TipsSchema in the model's schema dialect.
func tipsResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":       {Type: genai.TypeString},
				"description": {Type: genai.TypeString},
				"category": {
					Type:   genai.TypeString,
					Format: "enum",
					Enum:   []string{CategoryCommunication, CategoryTone, CategoryClarity},
				},
			},
			Required:         []string{"title", "description", "category"},
			PropertyOrdering: []string{"title", "description", "category"},
		},
	}
}

// BuildPrompt renders the analysis request for transcript.
func BuildPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Analyze the following transcript of a roleplay between an employee and their manager (Jordan Lee).\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nProvide 3 specific, actionable tips for the employee to improve their communication, tone, and clarity.\n")
	b.WriteString("Return a JSON array of objects with keys: title, description, and category (one of 'Communication', 'Tone', 'Clarity').")
	return b.String()
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
