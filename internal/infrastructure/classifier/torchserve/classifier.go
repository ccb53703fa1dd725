// Package torchserve submits images to the attribution model served
// behind a TorchServe-style inference endpoint.
package torchserve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/resilience"
)

type Classifier struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *Classifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Classifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type prediction struct {
	Artist      string  `json:"artist"`
	Slug        string  `json:"slug"`
	Probability float64 `json:"probability"`
	Index       int     `json:"index"`
}

// Predict posts the raw image to the model and returns its hypotheses
// ordered by descending probability.
func (c *Classifier) Predict(ctx context.Context, image []byte) ([]domain.Prediction, error) {
	var raw []prediction

	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/predictions/"+c.model, bytes.NewReader(image))
		if err != nil {
			return fmt.Errorf("create predict request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("classifier predict request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return newStatusError("predict", resp)
		}
		raw = raw[:0]
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("decode predict response: %w", err)
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "classifier.predict", call, classifyInferenceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("classifier predict: empty prediction set")
	}

	predictions := make([]domain.Prediction, 0, len(raw))
	for _, p := range raw {
		slug := p.Slug
		if slug == "" {
			slug = domain.Slugify(p.Artist)
		}
		predictions = append(predictions, domain.Prediction{
			Artist:      p.Artist,
			Slug:        slug,
			Probability: p.Probability,
			Index:       p.Index,
		})
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Probability > predictions[j].Probability
	})
	return predictions, nil
}

// HTTPStatusError mirrors the inference server's failure for the error
// classifier.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "classifier status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("classifier %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("classifier %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
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
