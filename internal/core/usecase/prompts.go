package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const narrativeSystemPrompt = `You are an art historian explaining a style attribution to a curious visitor.
Write 2-4 short paragraphs on why the artwork matches the attributed artist's style.
Cover palette, brushwork, composition, and period context where relevant.
Plain text only, no headings and no lists.`

func narrativeUserPrompt(predictions []domain.Prediction, vision *domain.VisionFinding) string {
	var b strings.Builder
	b.WriteString("Attribution candidates:\n")
	for i, p := range predictions {
		if i >= 3 {
			break
		}
		if p.Index < 0 {
			fmt.Fprintf(&b, "- %s (vision identified)\n", p.Artist)
			continue
		}
		fmt.Fprintf(&b, "- %s (%.1f%%)\n", p.Artist, p.Probability*100)
	}
	if vision != nil {
		fmt.Fprintf(&b, "\nVision model finding: artist %s", vision.Artist)
		if vision.Title != "" {
			fmt.Fprintf(&b, ", likely %q", vision.Title)
		}
		if vision.Medium != "" {
			fmt.Fprintf(&b, ", %s", vision.Medium)
		}
		fmt.Fprintf(&b, " (confidence %s).\n", vision.Confidence)
		if vision.Summary != "" {
			b.WriteString(vision.Summary)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nExplain what in this artwork points to the top attribution.")
	return b.String()
}

const deepModuleSystemPrompt = `You are an art analyst writing one focused section of a structured artwork study.
Write 1-2 dense paragraphs of plain text. No headings, no lists, no markdown.`

var deepModuleInstructions = map[domain.DeepModule]string{
	domain.ModuleColor:       "Analyze the color palette: dominant hues, temperature, saturation, value contrasts, and how the palette serves the mood of the work.",
	domain.ModuleComposition: "Analyze the composition: focal points, balance, rhythm, perspective, and how the eye is led through the work.",
	domain.ModuleScene:       "Describe the scene and subject matter: what is depicted, the narrative or symbolic content, and its iconographic context.",
	domain.ModuleTechnique:   "Analyze the technique: handling of the medium, brushwork or mark-making, texture, edges, and layering.",
	domain.ModuleHistorical:  "Place the work in its historical context: movement, period, influences, and its relation to the artist's broader output.",
}

func deepModuleUserPrompt(module domain.DeepModule, identity domain.ArtworkIdentity, features domain.VisualFeatures, prior []domain.ModuleResult) string {
	var b strings.Builder
	b.WriteString("Artwork: ")
	b.WriteString(identityLine(identity))
	b.WriteString("\n\nMeasured visual features:\n")
	b.WriteString(featureLines(features))
	if len(prior) > 0 {
		b.WriteString("\nEarlier sections of this study:\n")
		for _, m := range prior {
			fmt.Fprintf(&b, "[%s] %s\n", m.Module, m.Text)
		}
	}
	b.WriteString("\nTask: ")
	b.WriteString(deepModuleInstructions[module])
	return b.String()
}

const summarySystemPrompt = `You are an art analyst writing the closing synthesis of a structured artwork study.
Weave the section findings into 2-3 paragraphs.
Mark key findings inline with {type|value|label} citations, where type is one of color, technique, composition, mood, era, artist; value is the finding itself (a hex code for colors); label is an optional short display name.
Example: "the palette leans on {color|#1f3a5f|deep Prussian blue} applied in {technique|impasto} strokes".
Plain text apart from the markers.`

func summaryUserPrompt(identity domain.ArtworkIdentity, features domain.VisualFeatures, prior []domain.ModuleResult) string {
	var b strings.Builder
	b.WriteString("Artwork: ")
	b.WriteString(identityLine(identity))
	b.WriteString("\n\nMeasured visual features:\n")
	b.WriteString(featureLines(features))
	b.WriteString("\nCompleted sections:\n")
	for _, m := range prior {
		fmt.Fprintf(&b, "[%s] %s\n", m.Module, m.Text)
	}
	b.WriteString("\nTask: synthesize the study into a final summary with inline markers.")
	return b.String()
}

func identityLine(identity domain.ArtworkIdentity) string {
	if identity.Title != "" {
		return fmt.Sprintf("%q by %s", identity.Title, identity.Artist)
	}
	return "a work attributed to " + identity.Artist
}

func featureLines(f domain.VisualFeatures) string {
	var b strings.Builder
	if f.Width > 0 && f.Height > 0 {
		fmt.Fprintf(&b, "- dimensions %dx%d px, aspect ratio %.2f\n", f.Width, f.Height, f.AspectRatio)
	}
	fmt.Fprintf(&b, "- brightness %.2f, contrast %.2f, saturation %.2f\n", f.Brightness, f.Contrast, f.Saturation)
	if len(f.DominantColors) > 0 {
		b.WriteString("- dominant colors:")
		for _, c := range f.DominantColors {
			fmt.Fprintf(&b, " %s (%.0f%%)", c.Hex, c.Share*100)
		}
		b.WriteString("\n")
	}
	return b.String()
}

const diffusionPromptSystemPrompt = `You convert artwork descriptions into Stable Diffusion prompts.
Reply with a single comma-separated prompt line under 60 words: subject, artistic style, medium, lighting, quality tags.
No negative prompt, no quotes, no explanations.`

func diffusionPromptUserPrompt(req domain.GenerationRequest) string {
	if req.Style != "" {
		return fmt.Sprintf("Description: %s\nStyle: %s", req.Description, req.Style)
	}
	return "Description: " + req.Description
}

const diffusionNegativePrompt = "blurry, low quality, lowres, jpeg artifacts, watermark, signature, text, frame, deformed, disfigured"

// fallbackDiffusionPrompt keeps generation usable when the prompt LLM is
// down: the user's own words plus baseline quality tags.
func fallbackDiffusionPrompt(req domain.GenerationRequest) string {
	prompt := strings.TrimSpace(req.Description)
	if req.Style != "" {
		prompt += ", in the style of " + strings.TrimSpace(req.Style)
	}
	return prompt + ", masterpiece, detailed, high quality"
}

const askSystemPrompt = `You are a knowledgeable gallery guide answering a viewer's question about a shared artwork analysis.
Ground the answer in the provided session data and say so when the data does not cover the question.
Keep it under 150 words, plain text.`

func askUserPrompt(snapshot domain.SessionSnapshot, question string) string {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil || len(snapshot) == 0 {
		data = []byte("{}")
	}
	return fmt.Sprintf("Session data:\n%s\n\nViewer question: %s", data, question)
}
