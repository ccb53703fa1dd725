package domain

import "time"

// DeepModule names one stage of the deep analysis pipeline.
type DeepModule string

const (
	ModuleFeatures    DeepModule = "features"
	ModuleColor       DeepModule = "color"
	ModuleComposition DeepModule = "composition"
	ModuleScene       DeepModule = "scene"
	ModuleTechnique   DeepModule = "technique"
	ModuleHistorical  DeepModule = "historical"
	ModuleSummary     DeepModule = "summary"
)

// DeepModuleOrder is the mandatory execution order. Each LLM module
// receives the outputs of everything before it.
var DeepModuleOrder = []DeepModule{
	ModuleFeatures,
	ModuleColor,
	ModuleComposition,
	ModuleScene,
	ModuleTechnique,
	ModuleHistorical,
	ModuleSummary,
}

// LLMModules are the modules a caller may request individually.
var LLMModules = []DeepModule{
	ModuleColor,
	ModuleComposition,
	ModuleScene,
	ModuleTechnique,
	ModuleHistorical,
}

func IsRequestableModule(name string) bool {
	for _, m := range LLMModules {
		if string(m) == name {
			return true
		}
	}
	return false
}

// ModuleResult is one module's structured output: narrative text plus the
// non-LLM measurements relevant to the module.
type ModuleResult struct {
	Module   DeepModule     `json:"module"`
	Text     string         `json:"text"`
	Features map[string]any `json:"features,omitempty"`
}

// MarkerType tags an inline citation span in a rich summary.
type MarkerType string

const (
	MarkerColor       MarkerType = "color"
	MarkerTechnique   MarkerType = "technique"
	MarkerComposition MarkerType = "composition"
	MarkerMood        MarkerType = "mood"
	MarkerEra         MarkerType = "era"
	MarkerArtist      MarkerType = "artist"
)

// Marker is one parsed {type|value|label} citation from summary text.
type Marker struct {
	Type     MarkerType `json:"type"`
	Value    string     `json:"value"`
	Label    string     `json:"label,omitempty"`
	Icon     string     `json:"icon"`
	CSSClass string     `json:"css_class"`
}

// RichSummary is the deep pipeline's terminal narrative in every
// rendering the presentation layer needs.
type RichSummary struct {
	RawText     string   `json:"raw_text"`
	CleanText   string   `json:"clean_text"`
	HTMLText    string   `json:"html_text"`
	Markers     []Marker `json:"markers"`
	MarkerCount int      `json:"marker_count"`
}

// DeepAnalysis is the full ordered pipeline output. Served only complete:
// a failed module aborts the run and nothing is returned.
type DeepAnalysis struct {
	RunID     string          `json:"run_id"`
	Identity  ArtworkIdentity `json:"identity"`
	Features  VisualFeatures  `json:"features"`
	Modules   []ModuleResult  `json:"modules"`
	Summary   RichSummary     `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
}

// ModuleText returns a completed module's narrative, or "".
func (d DeepAnalysis) ModuleText(module DeepModule) string {
	for _, m := range d.Modules {
		if m.Module == module {
			return m.Text
		}
	}
	return ""
}
