// Package imaging computes the non-LLM visual measurements that seed the
// deep pipeline's features stage.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const (
	// sampling keeps cost bounded for large uploads
	samplesPerAxis = 200
	// quantization bucket width per RGB channel
	bucketWidth = 32
	topColors   = 5
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract decodes the image and measures dominant colors, brightness,
// contrast, saturation, and aspect ratio. Formats outside the decoder
// set fail here; callers degrade to identity-only features.
func (e *Extractor) Extract(data []byte) (domain.VisualFeatures, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.VisualFeatures{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return domain.VisualFeatures{}, fmt.Errorf("empty image")
	}

	stepX := width / samplesPerAxis
	if stepX < 1 {
		stepX = 1
	}
	stepY := height / samplesPerAxis
	if stepY < 1 {
		stepY = 1
	}

	var lumSum, lumSqSum, satSum float64
	samples := 0
	buckets := make(map[uint16]int)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)

			lum := 0.299*r + 0.587*g + 0.114*b
			lumSum += lum
			lumSqSum += lum * lum

			maxC := math.Max(r, math.Max(g, b))
			minC := math.Min(r, math.Min(g, b))
			if maxC > 0 {
				satSum += (maxC - minC) / maxC
			}

			buckets[bucketKey(uint8(r16>>8), uint8(g16>>8), uint8(b16>>8))]++
			samples++
		}
	}

	mean := lumSum / float64(samples)
	variance := lumSqSum/float64(samples) - mean*mean
	if variance < 0 {
		variance = 0
	}
	contrast := math.Sqrt(variance) / 128.0
	if contrast > 1 {
		contrast = 1
	}

	return domain.VisualFeatures{
		Width:          width,
		Height:         height,
		AspectRatio:    float64(width) / float64(height),
		DominantColors: dominantColors(buckets, samples),
		Brightness:     mean / 255.0,
		Contrast:       contrast,
		Saturation:     satSum / float64(samples),
	}, nil
}

func bucketKey(r, g, b uint8) uint16 {
	return uint16(r/bucketWidth)<<10 | uint16(g/bucketWidth)<<5 | uint16(b/bucketWidth)
}

func bucketHex(key uint16) string {
	center := func(level uint16) int {
		return int(level)*bucketWidth + bucketWidth/2
	}
	return fmt.Sprintf("#%02x%02x%02x", center(key>>10&0x1f), center(key>>5&0x1f), center(key&0x1f))
}

func dominantColors(buckets map[uint16]int, samples int) []domain.ColorShare {
	type bucketCount struct {
		key   uint16
		count int
	}
	sorted := make([]bucketCount, 0, len(buckets))
	for key, count := range buckets {
		sorted = append(sorted, bucketCount{key: key, count: count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})

	limit := topColors
	if len(sorted) < limit {
		limit = len(sorted)
	}
	colors := make([]domain.ColorShare, 0, limit)
	for _, bc := range sorted[:limit] {
		colors = append(colors, domain.ColorShare{
			Hex:   bucketHex(bc.key),
			Share: float64(bc.count) / float64(samples),
		})
	}
	return colors
}
