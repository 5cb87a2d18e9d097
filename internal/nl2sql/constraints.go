package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/observability"
)

const (
	FilterEquals = "="
	FilterLike   = "LIKE"

	RangeBetween    = "between"
	RangeComparison = "comparison"

	DateDirect = "direct"
)

// ConstraintProfile holds the style preferences inferred for one question.
// Every field is optional; nil means the model gave no usable value and
// the field contributes no directive.
type ConstraintProfile struct {
	FilterStyle      *string `json:"filter_style,omitempty"`
	RangeStyle       *string `json:"range_style,omitempty"`
	AllowIn          *bool   `json:"allow_in,omitempty"`
	DateStyle        *string `json:"date_style,omitempty"`
	HavingCount      *string `json:"having_count,omitempty"`
	GroupByPrimary   *bool   `json:"group_by_primary,omitempty"`
	UseCountStar     *bool   `json:"use_count_star,omitempty"`
	UseCountDistinct *bool   `json:"use_count_distinct,omitempty"`
	AllowAliases     *bool   `json:"allow_aliases,omitempty"`
	AllowJoin        *bool   `json:"allow_join,omitempty"`
}

func (p ConstraintProfile) IsEmpty() bool {
	return p == ConstraintProfile{}
}

// ParseConstraintProfile decodes a JSON object and coerces each field on
// its own. Unknown keys are ignored; a field with an unusable value is left
// nil. Anything other than a JSON object is an error.
func ParseConstraintProfile(text string) (ConstraintProfile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return ConstraintProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	if raw == nil {
		return ConstraintProfile{}, fmt.Errorf("decode profile: not an object")
	}

	var p ConstraintProfile
	if v, ok := stringField(raw, "filter_style"); ok {
		switch strings.ToUpper(v) {
		case "=", "==":
			p.FilterStyle = ptr(FilterEquals)
		case "LIKE":
			p.FilterStyle = ptr(FilterLike)
		}
	}
	if v, ok := stringField(raw, "range_style"); ok {
		switch strings.ToLower(v) {
		case RangeBetween:
			p.RangeStyle = ptr(RangeBetween)
		case RangeComparison:
			p.RangeStyle = ptr(RangeComparison)
		}
	}
	if v, ok := stringField(raw, "date_style"); ok && strings.EqualFold(v, DateDirect) {
		p.DateStyle = ptr(DateDirect)
	}
	if v, ok := stringField(raw, "having_count"); ok && v != "" {
		p.HavingCount = ptr(v)
	}
	p.AllowIn = boolField(raw, "allow_in")
	p.GroupByPrimary = boolField(raw, "group_by_primary")
	p.UseCountStar = boolField(raw, "use_count_star")
	p.UseCountDistinct = boolField(raw, "use_count_distinct")
	p.AllowAliases = boolField(raw, "allow_aliases")
	p.AllowJoin = boolField(raw, "allow_join")
	return p, nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	value, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func boolField(raw map[string]json.RawMessage, key string) *bool {
	value, ok := raw[key]
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return &b
	}
	if s, ok := stringField(raw, key); ok {
		switch strings.ToLower(s) {
		case "true", "yes":
			return ptr(true)
		case "false", "no":
			return ptr(false)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// stripJSONFence removes a surrounding ``` or ```json fence. Prose around
// the fence is left in place and fails decoding.
func stripJSONFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return trimmed
	}
	inner := trimmed[3 : len(trimmed)-3]
	if newline := strings.IndexByte(inner, '\n'); newline >= 0 && !strings.Contains(inner[:newline], "{") {
		inner = inner[newline+1:]
	}
	return strings.TrimSpace(inner)
}

// Inferencer asks the model to classify a question into a
// ConstraintProfile.
type Inferencer struct {
	completer llm.Completer
	logger    *slog.Logger
}

func NewInferencer(completer llm.Completer, logger *slog.Logger) *Inferencer {
	return &Inferencer{completer: completer, logger: observability.OrDiscard(logger)}
}

// Infer never fails the caller: on any model or parse error it returns the
// empty profile together with an error wrapping
// ErrConstraintInferenceFailed, so the caller can log and continue.
func (i *Inferencer) Infer(ctx context.Context, question string) (ConstraintProfile, error) {
	completion, err := i.completer.Complete(ctx, InferencePrompt(question))
	if err != nil {
		return ConstraintProfile{}, fmt.Errorf("%w: %w", ErrConstraintInferenceFailed, err)
	}
	observability.AddTokens("constraints", completion.Tokens)

	profile, err := ParseConstraintProfile(stripJSONFence(completion.Text))
	if err != nil {
		i.logger.DebugContext(ctx, "constraint profile rejected",
			slog.String("response", completion.Text),
			slog.String("error", err.Error()),
		)
		return ConstraintProfile{}, fmt.Errorf("%w: %w", ErrConstraintInferenceFailed, err)
	}
	return profile, nil
}

// InferencePrompt is the fixed JSON-only classification prompt.
func InferencePrompt(question string) string {
	return strings.TrimSpace(`
You are a JSON-only assistant.

Your task is to analyze the user's question and return SQL generation preferences.

Return a JSON object with:
- "filter_style": "LIKE" or "="
- "range_style": "between" or "comparison"
- "allow_in": false always unless it is explicitly semantically required
- "date_style": "direct"
- "having_count": "*" or a column name
- "allow_join": false unless question clearly requires multiple tables
- "allow_aliases": true only if the question requires a JOIN, otherwise false
- "group_by_primary": true if grouping by ID but returning other attributes (e.g., name)
- "use_count_star": true if counting all rows, false if question refers to a specific or filtered column
- "use_count_distinct": true if the question asks for "distinct" or "unique" values, otherwise false
DO NOT add any explanation, markdown, or formatting.
DO NOT wrap the output in code blocks.
DO NOT respond with "Here is the JSON"; return only the raw JSON.
Only return valid JSON like this:
{
  "filter_style": "=",
  "range_style": "comparison",
  "allow_in": false,
  "date_style": "direct",
  "having_count": "*",
  "allow_join": false,
  "allow_aliases": false,
  "group_by_primary": true,
  "use_count_star": true,
  "use_count_distinct": false
}

Question:
"""` + question + `"""`)
}
