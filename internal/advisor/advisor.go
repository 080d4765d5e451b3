// ABOUTME: Enriches prediction results with structured advice from a generative model
// ABOUTME: Builds required-key JSON prompts and fills missing keys with "N/A"

package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// NotAvailable replaces any required key the model left out.
const NotAvailable = "N/A"

// Generator produces a JSON text reply for a single prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Kind tags a Result.
type Kind int

const (
	// Structured results carry a parsed object with every required key present.
	Structured Kind = iota
	// Raw results carry reply text that was not a JSON object.
	Raw
)

func (k Kind) String() string {
	if k == Raw {
		return "raw"
	}
	return "structured"
}

// Result is the outcome of one enrichment call.
type Result struct {
	Kind   Kind
	Fields map[string]any
	Raw    string
}

// Topic describes one kind of enrichment request.
type Topic struct {
	// Subject is the phrase used in the prompt, e.g. "crop" or "yield prediction".
	Subject string
	// Label heads the payload section, e.g. "Crop" for "Crop Data:".
	Label string
	Keys  []string
}

var (
	// CropTopic enriches a crop recommendation.
	CropTopic = Topic{Subject: "crop", Label: "Crop", Keys: cropKeys}

	// YieldTopic enriches a yield prediction.
	YieldTopic = Topic{
		Subject: "yield prediction",
		Label:   "Yield",
		Keys:    append([]string{"item", "area", "year", "predicted_yield", "unit"}, cropKeys...),
	}

	// GuidanceTopic produces a cultivation plan for a crop on a given plot.
	GuidanceTopic = Topic{
		Subject: "crop guidance request",
		Label:   "Crop Guidance",
		Keys: []string{
			"land_preparation",
			"seed_selection",
			"sowing_schedule",
			"irrigation_plan",
			"fertilizer_plan",
			"pest_and_disease_management",
			"equipment_usage",
			"harvest_plan",
			"expected_yield",
			"estimated_cost",
			"risk_factors",
			"summary",
		},
	}
)

var cropKeys = []string{
	"predicted_crop",
	"suitability_score",
	"best_planting_time",
	"harvest_period",
	"water_requirements",
	"fertilizer_recommendations",
	"soil_condition",
	"expected_yield",
	"expected_market_price",
	"risk_factors",
	"summary",
}

// Client sends enrichment prompts to a Generator.
type Client struct {
	gen    Generator
	logger *slog.Logger
}

// New creates an advisor client.
func New(gen Generator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gen: gen, logger: logger.With("component", "advisor")}
}

// Prompt renders the instruction text for topic and payload.
func Prompt(topic Topic, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", topic.Subject, err)
	}

	quoted := make([]string, len(topic.Keys))
	for i, k := range topic.Keys {
		quoted[i] = "'" + k + "'"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an agriculture expert. Based on the following %s data, ", topic.Subject)
	b.WriteString("respond ONLY in valid JSON format with exactly these keys:\n\n")
	b.WriteString("[" + strings.Join(quoted, ", ") + "]\n\n")
	fmt.Fprintf(&b, "%s Data:\n%s", label(topic), data)
	return b.String(), nil
}

func label(topic Topic) string {
	if topic.Label != "" {
		return topic.Label
	}
	r := []rune(topic.Subject)
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Enrich asks the model for topic's keys about payload. Generator errors are
// returned unchanged; a reply that is not a JSON object becomes a Raw result.
func (c *Client) Enrich(ctx context.Context, topic Topic, payload any) (Result, error) {
	prompt, err := Prompt(topic, payload)
	if err != nil {
		return Result{}, err
	}

	text, err := c.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	result := Parse(text, topic.Keys)
	if result.Kind == Raw {
		c.logger.Warn("model reply was not a JSON object", "subject", topic.Subject, "length", len(text))
	}
	return result, nil
}

// Parse decodes text as a JSON object and fills missing keys. Anything else
// yields a Raw result holding text.
func Parse(text string, keys []string) Result {
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &fields); err != nil || fields == nil {
		return Result{Kind: Raw, Raw: text}
	}
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			fields[k] = NotAvailable
		}
	}
	return Result{Kind: Structured, Fields: fields}
}
