package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

// analysisCharLimit caps how much text is sent for analysis.
const analysisCharLimit = 3000

const enricherSystemPrompt = "You are a document analyst. Respond with a single JSON object and nothing else."

const enrichPromptTemplate = `Analyze the following document excerpt and provide:
1. A concise 2-3 sentence summary
2. 5-8 relevant keywords
3. 2-3 main categories/topics
4. Primary language (English, Spanish, French, etc.)
5. Sentiment (positive, negative, neutral, mixed)

Document excerpt:
%s

Respond in JSON format:
{
    "summary": "...",
    "keywords": ["...", "..."],
    "categories": ["...", "..."],
    "language": "...",
    "sentiment": "..."
}`

type GeminiEnricher struct {
	client    *genai.Client
	modelName string
}

func NewGeminiEnricher(ctx context.Context, apiKey, modelName string) (*GeminiEnricher, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiEnricher{client: cl, modelName: modelName}, nil
}

func (g *GeminiEnricher) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EnrichDocument asks the model for summary/keyword/category metadata and
// parses its JSON reply leniently: a malformed reply degrades to defaults
// rather than failing, since enrichment is best effort.
func (g *GeminiEnricher) EnrichDocument(ctx context.Context, text string) (*models.Enrichment, error) {
	prompt := fmt.Sprintf(enrichPromptTemplate, truncateRunes(text, analysisCharLimit))

	raw, err := g.generate(ctx, enricherSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	enr := parseEnrichment(raw)
	enr.ReadingTimeMin = readingTimeMinutes(text)
	return enr, nil
}

func (g *GeminiEnricher) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// parseEnrichment extracts the first JSON object from the model reply and
// clamps its fields: summary to 1000 chars, 15 keywords, 5 categories.
func parseEnrichment(raw string) *models.Enrichment {
	enr := &models.Enrichment{Language: "Unknown"}

	body := firstJSONObject(raw)
	if body == "" {
		if raw != "" {
			enr.Summary = truncateRunes(raw, 500)
		} else {
			enr.Summary = "AI analysis unavailable"
		}
		return enr
	}

	var payload struct {
		Summary    string   `json:"summary"`
		Keywords   []string `json:"keywords"`
		Categories []string `json:"categories"`
		Language   string   `json:"language"`
		Sentiment  string   `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		enr.Summary = "Error during AI analysis"
		return enr
	}

	enr.Summary = truncateRunes(payload.Summary, 1000)
	if len(payload.Keywords) > 15 {
		payload.Keywords = payload.Keywords[:15]
	}
	enr.Keywords = payload.Keywords
	if len(payload.Categories) > 5 {
		payload.Categories = payload.Categories[:5]
	}
	enr.Categories = payload.Categories
	if payload.Language != "" {
		enr.Language = payload.Language
	}
	enr.SentimentScore = sentimentScore(payload.Sentiment)
	return enr
}

func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// sentimentScore maps a sentiment label onto [-1, 1].
func sentimentScore(sentiment string) float64 {
	switch strings.ToLower(strings.TrimSpace(sentiment)) {
	case "positive":
		return 0.7
	case "negative":
		return -0.7
	default:
		return 0
	}
}

// readingTimeMinutes assumes 200 words per minute, minimum one minute.
func readingTimeMinutes(text string) int {
	words := len(strings.Fields(text))
	mins := int(math.Round(float64(words) / 200))
	if mins < 1 {
		mins = 1
	}
	return mins
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var _ core.Enricher = (*GeminiEnricher)(nil)
