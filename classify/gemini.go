package classify

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"google.golang.org/genai"

	"github.com/crisiswatch/crisiswatch/post"
)

// classifyPrompt is the instruction given to the model. The JSON contract
// mirrors Result so the reply can be unmarshalled directly.
const classifyPrompt = `You classify social media posts for disaster monitoring.
Decide whether the post describes a real, ongoing natural or man-made disaster.
Respond with a single JSON object and nothing else, using this format:
{
  "disaster": boolean,
  "category": "earthquake|flood|wildfire|hurricane|tornado|landslide|tsunami|explosion|storm|other",
  "severity": "LOW|MODERATE|HIGH|CRITICAL",
  "location": "lowercase place name or unknown",
  "confidence": number between 0 and 1,
  "summary": "one sentence"
}

Post:
`

// GeminiClassifier classifies posts with Google's Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a Gemini-backed classifier.
func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClassifier{client: client, model: model}, nil
}

// Classify sends the post text to the model and parses the JSON reply.
func (c *GeminiClassifier) Classify(ctx context.Context, p post.Post) (Result, error) {
	prompt := classifyPrompt + p.Title + "\n" + p.Text

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents,
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return Result{}, fmt.Errorf("gemini classify failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Result{}, fmt.Errorf("gemini returned an empty reply")
	}

	return parseModelReply(text)
}

// parseModelReply extracts the JSON object from the model reply. Models
// occasionally wrap the object in markdown fences despite the MIME type.
func parseModelReply(reply string) (Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object in model reply")
	}

	var r Result
	if err := json.Unmarshal([]byte(reply[start:end+1]), &r); err != nil {
		return Result{}, fmt.Errorf("failed to decode model reply: %w", err)
	}

	r.Location = strings.ToLower(strings.TrimSpace(r.Location))
	if r.Location == "" {
		r.Location = UnknownLocation
	}
	if r.Severity.Rank() == 0 {
		r.Severity = post.SeverityLow
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}

	return r, nil
}
