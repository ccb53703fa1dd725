package domain

import (
	"strings"
	"time"
)

// Prediction is one classifier hypothesis for the artwork's author.
type Prediction struct {
	Artist      string  `json:"artist"`
	Slug        string  `json:"slug"`
	Probability float64 `json:"probability"`
	Index       int     `json:"index"`
}

// VisionConfidence grades a vision-fallback finding.
type VisionConfidence string

const (
	VisionConfidenceHigh   VisionConfidence = "high"
	VisionConfidenceMedium VisionConfidence = "medium"
	VisionConfidenceLow    VisionConfidence = "low"
)

// VisionFinding is the vision fallback's identity resolution for artworks
// the classifier could not attribute confidently.
type VisionFinding struct {
	Artist     string           `json:"artist"`
	Title      string           `json:"title,omitempty"`
	Medium     string           `json:"medium,omitempty"`
	Confidence VisionConfidence `json:"confidence"`
	Summary    string           `json:"summary,omitempty"`
}

// Overrides reports whether the finding is strong enough to replace the
// classifier's top prediction in the displayed result.
func (f VisionFinding) Overrides() bool {
	return f.Artist != "" &&
		(f.Confidence == VisionConfidenceHigh || f.Confidence == VisionConfidenceMedium)
}

// AsPrediction renders an overriding finding in prediction shape: the
// negative index and zero probability mark it as vision-resolved.
func (f VisionFinding) AsPrediction() Prediction {
	return Prediction{
		Artist:      f.Artist,
		Slug:        Slugify(f.Artist),
		Probability: 0,
		Index:       -1,
	}
}

func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// ColorShare is one dominant color with its coverage share.
type ColorShare struct {
	Hex   string  `json:"hex"`
	Share float64 `json:"share"`
}

// VisualFeatures are the non-LLM measurements extracted from the uploaded
// image; they seed the deep pipeline's features stage.
type VisualFeatures struct {
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	AspectRatio    float64      `json:"aspect_ratio"`
	DominantColors []ColorShare `json:"dominant_colors,omitempty"`
	Brightness     float64      `json:"brightness"`
	Contrast       float64      `json:"contrast"`
	Saturation     float64      `json:"saturation"`
}

// ArtworkIdentity names the artwork a deep analysis reasons about.
type ArtworkIdentity struct {
	Artist string `json:"artist"`
	Title  string `json:"title,omitempty"`
}

// AnalysisResult is the finished single-image analysis.
type AnalysisResult struct {
	RunID       string         `json:"run_id"`
	Predictions []Prediction   `json:"predictions"`
	Vision      *VisionFinding `json:"vision,omitempty"`
	Narrative   string         `json:"narrative"`
	Interrupted bool           `json:"interrupted"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TopArtist returns the displayed attribution after any vision override.
func (r AnalysisResult) TopArtist() string {
	if len(r.Predictions) == 0 {
		return ""
	}
	return r.Predictions[0].Artist
}

// LatestAnalysis is the per-subject snapshot of the most recent completed
// analysis; the deep pipeline reads it for identity and visual features.
type LatestAnalysis struct {
	Result     AnalysisResult `json:"result"`
	Features   VisualFeatures `json:"features"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}
