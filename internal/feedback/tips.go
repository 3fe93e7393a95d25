// Package feedback turns a call transcript into coaching tips.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oremus-labs/ol-cvi-coach/internal/validator"
)

// Tip categories.
const (
	CategoryCommunication = "Communication"
	CategoryTone          = "Tone"
	CategoryClarity       = "Clarity"
)

// Tip is one actionable suggestion.
type Tip struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrInvalidTips is returned when the model output does not match the tip
// schema.
var ErrInvalidTips = errors.New("invalid feedback tips")

// TipsSchema is the JSON Schema every analyzer response must satisfy.
const TipsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["title", "description", "category"],
    "properties": {
      "title": {"type": "string", "minLength": 1},
      "description": {"type": "string"},
      "category": {"type": "string", "enum": ["Communication", "Tone", "Clarity"]}
    }
  }
}`

var tipsValidator = validator.MustNew([]byte(TipsSchema))

// ParseTips decodes model output into tips. Markdown code fences around the
// JSON are tolerated.
func ParseTips(text string) ([]Tip, error) {
	raw := []byte(stripFences(text))
	res := tipsValidator.Validate(raw)
	if !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTips, strings.Join(res.Errors, "; "))
	}
	var tips []Tip
	if err := json.Unmarshal(raw, &tips); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTips, err)
	}
	return tips, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
