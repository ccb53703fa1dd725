package domain

import "time"

// GenerationRequest asks the diffusion backend for artwork variations.
type GenerationRequest struct {
	Description string `json:"description"`
	Style       string `json:"style,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// GenerationBackend names where the images actually came from.
type GenerationBackend string

const (
	BackendDiffusion   GenerationBackend = "diffusion"
	BackendPlaceholder GenerationBackend = "placeholder"
)

// GenerationResult is the finished image synthesis output.
type GenerationResult struct {
	Images     []string          `json:"images"`
	PromptUsed string            `json:"prompt_used"`
	Backend    GenerationBackend `json:"backend"`
	Seed       int64             `json:"seed"`
	CreatedAt  time.Time         `json:"created_at"`
}
