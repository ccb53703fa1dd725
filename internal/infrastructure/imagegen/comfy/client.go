// Package comfy drives a ComfyUI instance over its HTTP API: queue a
// text-to-image workflow, poll history until the run completes, and
// build /view URLs for the produced files.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/art-insight-service/internal/infrastructure/resilience"
)

const defaultPollInterval = time.Second

type Client struct {
	baseURL      string
	checkpoint   string
	clientID     string
	timeout      time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
	executor     *resilience.Executor
}

func New(baseURL, checkpoint string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		checkpoint:   checkpoint,
		clientID:     uuid.NewString(),
		timeout:      timeout,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		executor:     executor,
	}
}

// Available probes /system_stats; any failure means the backend is down
// and the caller falls back to placeholders.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 300
}

// GenerateImages queues one workflow run and waits for its outputs.
func (c *Client) GenerateImages(ctx context.Context, prompt, negativePrompt string, count int) ([]string, int64, error) {
	if count < 1 {
		count = 1
	}
	seed := rand.Int64N(1 << 32)
	workflow := c.buildWorkflow(prompt, negativePrompt, seed, count)

	promptID, err := c.queuePrompt(ctx, workflow)
	if err != nil {
		return nil, 0, err
	}

	entry, err := c.waitForCompletion(ctx, promptID)
	if err != nil {
		return nil, 0, err
	}

	filenames := extractImageFilenames(entry)
	if len(filenames) == 0 {
		return nil, 0, fmt.Errorf("comfy run %s produced no images", promptID)
	}
	if len(filenames) > count {
		filenames = filenames[:count]
	}

	urls := make([]string, 0, len(filenames))
	for _, name := range filenames {
		query := url.Values{}
		query.Set("filename", name)
		query.Set("type", "output")
		urls = append(urls, c.baseURL+"/view?"+query.Encode())
	}
	return urls, seed, nil
}

func (c *Client) queuePrompt(ctx context.Context, workflow map[string]any) (string, error) {
	payload := map[string]any{
		"prompt":    workflow,
		"client_id": c.clientID,
	}
	var response struct {
		PromptID string `json:"prompt_id"`
	}

	call := func(callCtx context.Context) error {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal queue request: %w", err)
		}
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create queue request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("comfy queue request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return newStatusError("queue", resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("decode queue response: %w", err)
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "comfy.queue", call, classifyComfyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	if response.PromptID == "" {
		return "", fmt.Errorf("comfy queue: empty prompt id")
	}
	return response.PromptID, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []struct {
			Filename  string `json:"filename"`
			Subfolder string `json:"subfolder"`
			Type      string `json:"type"`
		} `json:"images"`
	} `json:"outputs"`
}

func (c *Client) waitForCompletion(ctx context.Context, promptID string) (*historyEntry, error) {
	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		entry, err := c.fetchHistory(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			if entry.Status.StatusStr == "error" {
				return nil, fmt.Errorf("comfy run %s failed", promptID)
			}
			if len(entry.Outputs) > 0 {
				return entry, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("comfy run %s timed out after %s", promptID, c.timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchHistory(ctx context.Context, promptID string) (*historyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, fmt.Errorf("create history request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, newStatusError("history", resp)
	}

	var history map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	entry, ok := history[promptID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func extractImageFilenames(entry *historyEntry) []string {
	var filenames []string
	for _, output := range entry.Outputs {
		for _, img := range output.Images {
			if img.Type == "output" && img.Filename != "" {
				filenames = append(filenames, img.Filename)
			}
		}
	}
	return filenames
}

// buildWorkflow assembles the standard txt2img graph: checkpoint loader
// (4), prompts (6/7), sampler (3), latent (5), decode (8), save (9).
func (c *Client) buildWorkflow(prompt, negativePrompt string, seed int64, batch int) map[string]any {
	return map[string]any{
		"3": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"seed":         seed,
				"steps":        25,
				"cfg":          7.5,
				"sampler_name": "euler_ancestral",
				"scheduler":    "normal",
				"denoise":      1.0,
				"model":        []any{"4", 0},
				"positive":     []any{"6", 0},
				"negative":     []any{"7", 0},
				"latent_image": []any{"5", 0},
			},
		},
		"4": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs": map[string]any{
				"ckpt_name": c.checkpoint,
			},
		},
		"5": map[string]any{
			"class_type": "EmptyLatentImage",
			"inputs": map[string]any{
				"width":      512,
				"height":     512,
				"batch_size": batch,
			},
		},
		"6": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs": map[string]any{
				"text": prompt,
				"clip": []any{"4", 1},
			},
		},
		"7": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs": map[string]any{
				"text": negativePrompt,
				"clip": []any{"4", 1},
			},
		},
		"8": map[string]any{
			"class_type": "VAEDecode",
			"inputs": map[string]any{
				"samples": []any{"3", 0},
				"vae":     []any{"4", 2},
			},
		},
		"9": map[string]any{
			"class_type": "SaveImage",
			"inputs": map[string]any{
				"filename_prefix": "art_insight",
				"images":          []any{"8", 0},
			},
		},
	}
}

// HTTPStatusError carries the backend status for the error classifier.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "comfy status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("comfy %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("comfy %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func newStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
