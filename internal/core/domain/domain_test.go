package domain

import (
	"errors"
	"testing"
	"time"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrUpstreamFailure, "classifier predict", cause)

	if !IsKind(err, ErrUpstreamFailure) {
		t.Fatal("wrapped error lost its kind")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if WrapError(ErrUpstreamFailure, "noop", nil) != nil {
		t.Fatal("wrapping nil should stay nil")
	}
}

func TestRateLimitErrorRoundsUp(t *testing.T) {
	cases := []struct {
		retryAfter time.Duration
		want       int
	}{
		{54 * time.Second, 54},
		{1500 * time.Millisecond, 2},
		{10 * time.Millisecond, 1},
		{0, 1},
	}
	for _, tc := range cases {
		err := &RateLimitError{Class: ClassAnalyze, RetryAfter: tc.retryAfter}
		if got := err.RetryAfterSeconds(); got != tc.want {
			t.Errorf("RetryAfterSeconds(%s) = %d, want %d", tc.retryAfter, got, tc.want)
		}
		if !IsKind(err, ErrRateLimited) {
			t.Errorf("RateLimitError(%s) does not unwrap to ErrRateLimited", tc.retryAfter)
		}
	}
}

func TestErrorKindNames(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{WrapError(ErrBusy, "gate", errors.New("held")), "busy"},
		{&RateLimitError{Class: ClassAsk, RetryAfter: time.Second}, "rate_limited"},
		{ErrSessionExpired, "session_expired"},
		{errors.New("anything else"), "internal"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestNewSubjectDetectsGuests(t *testing.T) {
	if s := NewSubject("u1", "alice"); s.Guest {
		t.Error("regular username marked guest")
	}
	if s := NewSubject("g1", "guest_7f3a"); !s.Guest {
		t.Error("guest_ username not marked guest")
	}
	if s := NewSubject("g2", "Guest_ABC"); !s.Guest {
		t.Error("guest detection should be case-insensitive")
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("  Claude Monet "); got != "claude-monet" {
		t.Fatalf("Slugify = %q", got)
	}
}

func TestVisionFindingOverrides(t *testing.T) {
	high := VisionFinding{Artist: "Ilya Repin", Confidence: VisionConfidenceHigh}
	if !high.Overrides() {
		t.Error("high-confidence finding should override")
	}
	if !(VisionFinding{Artist: "Ilya Repin", Confidence: VisionConfidenceMedium}).Overrides() {
		t.Error("medium-confidence finding should override")
	}
	if (VisionFinding{Artist: "Ilya Repin", Confidence: VisionConfidenceLow}).Overrides() {
		t.Error("low-confidence finding must not override")
	}
	if (VisionFinding{Confidence: VisionConfidenceHigh}).Overrides() {
		t.Error("finding without an artist must not override")
	}

	p := high.AsPrediction()
	if p.Artist != "Ilya Repin" || p.Slug != "ilya-repin" || p.Index != -1 || p.Probability != 0 {
		t.Fatalf("AsPrediction = %+v", p)
	}
}

func TestSessionSnapshotMerge(t *testing.T) {
	base := SessionSnapshot{"artist": "Claude Monet", "narrative": "text"}
	merged := base.Merge(SessionSnapshot{
		"narrative":     nil,
		"deep_analysis": map[string]any{"summary": "..."},
	})

	if merged["artist"] != "Claude Monet" {
		t.Errorf("merge dropped untouched key: %v", merged["artist"])
	}
	if _, ok := merged["narrative"]; ok {
		t.Error("nil patch value should remove the key")
	}
	if !merged.HasDeepAnalysis() {
		t.Error("deep_analysis key not reflected in HasDeepAnalysis")
	}
	if base.HasDeepAnalysis() {
		t.Error("merge mutated the receiver")
	}
}

func TestEventKindProperties(t *testing.T) {
	for _, k := range []EventKind{EventComplete, EventError} {
		if !k.IsTerminal() {
			t.Errorf("%v should be terminal", k)
		}
	}
	for _, k := range []EventKind{EventPredictions, EventVision} {
		if !k.IsIdentity() {
			t.Errorf("%v should be an identity event", k)
		}
	}
	if EventText.IsTerminal() || EventText.IsIdentity() {
		t.Error("text events are neither terminal nor identity")
	}
	if EventVision.String() != "vision" {
		t.Errorf("String() = %q", EventVision.String())
	}
}
