package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

type deepFixture struct {
	texts   *fakeTexts
	cache   *fakeCache
	limiter *fakeLimiter
	gate    *fakeGate
	queue   *fakeQueue
	uc      *DeepAnalysisUseCase
}

func newDeepFixture() *deepFixture {
	f := &deepFixture{
		texts:   &fakeTexts{},
		cache:   newFakeCache(),
		limiter: &fakeLimiter{},
		gate:    &fakeGate{},
		queue:   &fakeQueue{},
	}
	f.cache.Put("user-1", domain.LatestAnalysis{
		Result: domain.AnalysisResult{
			RunID: "run-1",
			Predictions: []domain.Prediction{
				{Artist: "Claude Monet", Slug: "claude-monet", Probability: 0.91, Index: 3},
			},
			Narrative: "Loose brushwork and broken color.",
			CreatedAt: time.Now(),
		},
		Features: domain.VisualFeatures{
			Width: 100, Height: 50, AspectRatio: 2,
			Brightness: 0.5, Contrast: 0.3, Saturation: 0.4,
			DominantColors: []domain.ColorShare{{Hex: "#1f3a5f", Share: 0.42}},
		},
		AnalyzedAt: time.Now(),
	})
	f.uc = NewDeepAnalysisUseCase(f.texts, f.cache, f.limiter, f.gate, f.queue, nil, discardLogger())
	return f
}

func TestFullAnalysisRunsModulesInOrder(t *testing.T) {
	f := newDeepFixture()
	f.texts.responses = []string{
		"Cool palette dominated by blues.",
		"Diagonal composition pulling to the horizon.",
		"A garden scene at dawn.",
		"Short broken strokes of unmixed paint.",
		"Rooted in French Impressionism.",
		"A study in {color|#1f3a5f|deep Prussian blue} rendered with {technique|broken color}.",
	}

	analysis, err := f.uc.FullAnalysis(context.Background(), testSubject(), domain.ArtworkIdentity{})
	if err != nil {
		t.Fatalf("FullAnalysis failed: %v", err)
	}

	if len(analysis.Modules) != len(domain.DeepModuleOrder) {
		t.Fatalf("modules = %d, want %d", len(analysis.Modules), len(domain.DeepModuleOrder))
	}
	for i, module := range domain.DeepModuleOrder {
		if analysis.Modules[i].Module != module {
			t.Errorf("module[%d] = %s, want %s", i, analysis.Modules[i].Module, module)
		}
	}

	if analysis.Identity.Artist != "Claude Monet" {
		t.Errorf("identity filled from cache = %q", analysis.Identity.Artist)
	}
	if analysis.Modules[0].Features["width"] != 100 {
		t.Errorf("features module payload = %+v", analysis.Modules[0].Features)
	}

	// Each LLM module sees everything before it: by the historical
	// module the color text and the features lines are both context.
	if len(f.texts.users) != 6 {
		t.Fatalf("llm calls = %d", len(f.texts.users))
	}
	historical := f.texts.users[4]
	if !strings.Contains(historical, "Cool palette dominated by blues.") {
		t.Error("historical prompt missing earlier color section")
	}
	if !strings.Contains(historical, "Claude Monet") {
		t.Error("historical prompt missing artwork identity")
	}
	if !strings.Contains(historical, "#1f3a5f") {
		t.Error("historical prompt missing measured dominant color")
	}

	if analysis.Summary.MarkerCount != 2 {
		t.Errorf("marker count = %d", analysis.Summary.MarkerCount)
	}
	if !strings.Contains(analysis.Summary.CleanText, "deep Prussian blue") {
		t.Errorf("clean text = %q", analysis.Summary.CleanText)
	}

	if len(f.limiter.calls) != 1 || f.limiter.calls[0] != domain.ClassDeepFull {
		t.Errorf("limiter calls = %v", f.limiter.calls)
	}
	if f.gate.acquired != 1 || f.gate.released != 1 {
		t.Errorf("gate acquired=%d released=%d", f.gate.acquired, f.gate.released)
	}
	if len(f.queue.records) != 1 || f.queue.records[0].Kind != domain.ArchiveDeepAnalysis {
		t.Errorf("archive records = %+v", f.queue.records)
	}
}

func TestFullAnalysisAbortsOnModuleFailure(t *testing.T) {
	f := newDeepFixture()
	f.texts.errAt = 4
	f.texts.err = errors.New("llm overloaded")

	analysis, err := f.uc.FullAnalysis(context.Background(), testSubject(), domain.ArtworkIdentity{})
	if analysis != nil {
		t.Fatal("partial analysis returned after module failure")
	}
	if !domain.IsKind(err, domain.ErrUpstreamFailure) {
		t.Fatalf("expected ErrUpstreamFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "technique") {
		t.Errorf("error does not name the failed module: %v", err)
	}
	// color, composition, scene succeeded; technique failed; nothing after.
	if len(f.texts.users) != 4 {
		t.Errorf("llm calls after abort = %d", len(f.texts.users))
	}
	if len(f.queue.records) != 0 {
		t.Errorf("aborted run archived")
	}
	if f.gate.released != 1 {
		t.Errorf("gate released = %d", f.gate.released)
	}
}

func TestFullAnalysisRequiresCompletedAnalysis(t *testing.T) {
	f := newDeepFixture()
	f.cache = newFakeCache()
	f.uc = NewDeepAnalysisUseCase(f.texts, f.cache, f.limiter, f.gate, f.queue, nil, discardLogger())

	_, err := f.uc.FullAnalysis(context.Background(), testSubject(), domain.ArtworkIdentity{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(f.texts.users) != 0 {
		t.Errorf("llm consulted without a prior analysis")
	}
}

func TestFullAnalysisBusyGateSkipsRateCheck(t *testing.T) {
	f := newDeepFixture()
	f.gate.busy = true

	_, err := f.uc.FullAnalysis(context.Background(), testSubject(), domain.ArtworkIdentity{})
	if !domain.IsKind(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(f.limiter.calls) != 0 {
		t.Errorf("rate budget consulted while busy")
	}
}

func TestFullAnalysisGuestSkipsArchive(t *testing.T) {
	f := newDeepFixture()
	f.cache.Put("guest-7", domain.LatestAnalysis{
		Result: domain.AnalysisResult{
			Predictions: []domain.Prediction{{Artist: "Claude Monet", Slug: "claude-monet", Probability: 0.9}},
		},
	})

	analysis, err := f.uc.FullAnalysis(context.Background(), guestSubject(), domain.ArtworkIdentity{})
	if err != nil {
		t.Fatalf("FullAnalysis failed: %v", err)
	}
	if analysis == nil || len(analysis.Modules) != len(domain.DeepModuleOrder) {
		t.Fatal("guest run did not complete")
	}
	if len(f.queue.records) != 0 {
		t.Errorf("guest run archived")
	}
}

func TestSingleModuleValidatesModuleName(t *testing.T) {
	f := newDeepFixture()

	for _, name := range []string{"summary", "features", "bogus", ""} {
		_, err := f.uc.SingleModule(context.Background(), testSubject(), domain.ArtworkIdentity{}, domain.DeepModule(name))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Errorf("module %q: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if len(f.limiter.calls) != 0 {
		t.Errorf("rate budget consulted for invalid modules")
	}
}

func TestSingleModuleRunsWithoutGate(t *testing.T) {
	f := newDeepFixture()
	f.texts.responses = []string{"Short broken strokes of unmixed paint."}

	result, err := f.uc.SingleModule(context.Background(), testSubject(), domain.ArtworkIdentity{Title: "Haystacks"}, domain.ModuleTechnique)
	if err != nil {
		t.Fatalf("SingleModule failed: %v", err)
	}
	if result.Module != domain.ModuleTechnique || result.Text != "Short broken strokes of unmixed paint." {
		t.Errorf("result = %+v", result)
	}

	if f.gate.acquired != 0 {
		t.Errorf("single module acquired the gate")
	}
	if len(f.limiter.calls) != 1 || f.limiter.calls[0] != domain.ClassDeepModule {
		t.Errorf("limiter calls = %v", f.limiter.calls)
	}

	// The module prompt carries the features context and the resolved title.
	if len(f.texts.users) != 1 {
		t.Fatalf("llm calls = %d", len(f.texts.users))
	}
	if !strings.Contains(f.texts.users[0], `"Haystacks" by Claude Monet`) {
		t.Errorf("prompt identity = %q", f.texts.users[0])
	}
	if !strings.Contains(f.texts.users[0], "[features]") {
		t.Error("prompt missing features section")
	}
}

func TestSingleModuleStripsReasoning(t *testing.T) {
	f := newDeepFixture()
	f.texts.responses = []string{"<thinking>checking palette references</thinking>Cool palette dominated by blues."}

	result, err := f.uc.SingleModule(context.Background(), testSubject(), domain.ArtworkIdentity{}, domain.ModuleColor)
	if err != nil {
		t.Fatalf("SingleModule failed: %v", err)
	}
	if result.Text != "Cool palette dominated by blues." {
		t.Errorf("text = %q", result.Text)
	}
}

func TestSingleModuleFailureIsUpstreamFailure(t *testing.T) {
	f := newDeepFixture()
	f.texts.errAt = 1

	_, err := f.uc.SingleModule(context.Background(), testSubject(), domain.ArtworkIdentity{}, domain.ModuleColor)
	if !domain.IsKind(err, domain.ErrUpstreamFailure) {
		t.Fatalf("expected ErrUpstreamFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "color") {
		t.Errorf("error does not name the module: %v", err)
	}
}
