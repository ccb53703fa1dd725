// Package openaichat talks to any OpenAI-compatible chat completions
// endpoint (OpenAI, OpenRouter, LM Studio, Ollama's /v1 surface).
package openaichat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, apiKey, model, visionModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		executor:    executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Generator exposes the narrative text capabilities.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model:    g.client.model,
		Messages: promptMessages(systemPrompt, userPrompt),
	}
	return g.client.chat(ctx, req, "chat")
}

func (g *Generator) GenerateStream(ctx context.Context, systemPrompt, userPrompt string, onChunk func(chunk string) error) error {
	req := chatRequest{
		Model:    g.client.model,
		Messages: promptMessages(systemPrompt, userPrompt),
		Stream:   true,
	}

	call := func(callCtx context.Context) error {
		return g.client.postStream(callCtx, req, "chat_stream", func(data []byte) error {
			var chunk chatStreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				// providers interleave non-delta frames; skip them
				return nil
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				return nil
			}
			return onChunk(chunk.Choices[0].Delta.Content)
		})
	}

	if g.client.executor != nil {
		return g.client.executor.ExecuteStreaming(ctx, "llm.chat_stream", call, classifyChatError)
	}
	return call(ctx)
}

// Vision resolves artwork identity from the image itself.
type Vision struct {
	client *Client
}

func NewVision(client *Client) *Vision {
	return &Vision{client: client}
}

func (v *Vision) ResolveArtwork(ctx context.Context, image []byte, mimeType string) (*domain.VisionFinding, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	req := chatRequest{
		Model: v.client.visionModel,
		Messages: []chatMessage{
			{Role: "system", Content: visionSystemPrompt},
			{Role: "user", Content: []map[string]any{
				{"type": "text", "text": visionUserPrompt},
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			}},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	}

	raw, err := v.client.chat(ctx, req, "vision")
	if err != nil {
		return nil, err
	}

	var finding domain.VisionFinding
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &finding); err != nil {
		return nil, fmt.Errorf("parse vision json: %w", err)
	}
	finding.Confidence = normalizeConfidence(finding.Confidence)
	return &finding, nil
}

func (c *Client) chat(ctx context.Context, req chatRequest, operation string) (string, error) {
	var response chatResponse

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, req, &response, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "llm."+operation, call, classifyChatError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("llm %s: empty choices", operation)
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func promptMessages(systemPrompt, userPrompt string) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})
	return messages
}

func normalizeConfidence(c domain.VisionConfidence) domain.VisionConfidence {
	switch domain.VisionConfidence(strings.ToLower(string(c))) {
	case domain.VisionConfidenceHigh:
		return domain.VisionConfidenceHigh
	case domain.VisionConfidenceMedium:
		return domain.VisionConfidenceMedium
	default:
		return domain.VisionConfidenceLow
	}
}

// extractJSONObject tolerates markdown fences and prose around the JSON
// object vision models like to produce.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
