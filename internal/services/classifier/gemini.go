package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier asks a Gemini model for the label and explanation.
type GeminiClassifier struct {
	models contentGenerator
	model  string
}

// NewGeminiClassifier creates a client using the API key or Vertex settings
// found in the environment.
func NewGeminiClassifier(ctx context.Context, model string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiClassifier(client.Models, model), nil
}

func newGeminiClassifier(models contentGenerator, model string) *GeminiClassifier {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClassifier{models: models, model: model}
}

func (g *GeminiClassifier) Classify(ctx context.Context, req Request) (p *Prediction, err error) {
	start := time.Now()
	defer func() { observe("gemini", start, err) }()

	record, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrClassification, err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(string(record))},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate content: %v", ErrClassification, err)
	}
	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrClassification)
	}

	var out Prediction
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("%w: unmarshal model JSON: %v", ErrClassification, err)
	}
	return validate(&out)
}

func buildPrompt(record string) string {
	return "You are a compliance analyst reviewing carbon-credit trades for fraud and market abuse.\n\n" +
		"Classify the transaction below as exactly one of: \"Normal\", \"Suspicious\", \"Red-Flag\".\n" +
		"Consider the amount, carbon volume, price per ton, origin country, cross-border flag, " +
		"buyer industry, sudden spike flag, hour of day and entity type.\n\n" +
		"Transaction:\n" + record + "\n\n" +
		"Output STRICT JSON only, with this shape:\n" +
		"{\"label\": string, \"explanation\": {\"ai_summary\": string, \"technical_reasons\": [string]}}\n" +
		"Do NOT wrap the response in code fences.\n"
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
