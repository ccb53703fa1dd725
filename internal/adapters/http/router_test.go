package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/art-insight-service/internal/config"
	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const testJWTSecret = "test-secret"

type fakeAnalyzer struct {
	result  *domain.AnalysisResult
	events  []domain.StreamEvent
	err     error
	subject domain.Subject
	upload  domain.ImageUpload
}

func (f *fakeAnalyzer) Analyze(_ context.Context, subject domain.Subject, upload domain.ImageUpload) (*domain.AnalysisResult, error) {
	f.subject = subject
	f.upload = upload
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) AnalyzeStream(_ context.Context, subject domain.Subject, upload domain.ImageUpload) (<-chan domain.StreamEvent, error) {
	f.subject = subject
	f.upload = upload
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.StreamEvent, len(f.events))
	for _, event := range f.events {
		ch <- event
	}
	close(ch)
	return ch, nil
}

type fakeDeep struct {
	analysis *domain.DeepAnalysis
	module   *domain.ModuleResult
	err      error
	gotName  domain.DeepModule
}

func (f *fakeDeep) FullAnalysis(context.Context, domain.Subject, domain.ArtworkIdentity) (*domain.DeepAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func (f *fakeDeep) SingleModule(_ context.Context, _ domain.Subject, _ domain.ArtworkIdentity, module domain.DeepModule) (*domain.ModuleResult, error) {
	f.gotName = module
	if f.err != nil {
		return nil, f.err
	}
	return f.module, nil
}

type fakeGenerator struct {
	result *domain.GenerationResult
	err    error
}

func (f *fakeGenerator) Generate(context.Context, domain.Subject, domain.GenerationRequest) (*domain.GenerationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCollaborative struct {
	ownerView *domain.OwnerSessionView
	view      *domain.SessionView
	heartbeat *domain.HeartbeatStatus
	events    []domain.StreamEvent
	err       error
	caller    domain.Subject
	gotID     string
}

func (f *fakeCollaborative) Create(_ context.Context, subject domain.Subject, _ domain.SessionSnapshot) (*domain.OwnerSessionView, error) {
	f.caller = subject
	if f.err != nil {
		return nil, f.err
	}
	return f.ownerView, nil
}

func (f *fakeCollaborative) Get(_ context.Context, caller domain.Subject, id string) (*domain.SessionView, error) {
	f.caller = caller
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.view, nil
}

func (f *fakeCollaborative) GetFull(_ context.Context, caller domain.Subject, id string) (*domain.OwnerSessionView, error) {
	f.caller = caller
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.ownerView, nil
}

func (f *fakeCollaborative) Heartbeat(_ context.Context, caller domain.Subject, id, _ string) (*domain.HeartbeatStatus, error) {
	f.caller = caller
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.heartbeat, nil
}

func (f *fakeCollaborative) Update(_ context.Context, caller domain.Subject, id string, _ domain.SessionSnapshot) (*domain.OwnerSessionView, error) {
	f.caller = caller
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.ownerView, nil
}

func (f *fakeCollaborative) Close(_ context.Context, caller domain.Subject, id string) error {
	f.caller = caller
	f.gotID = id
	return f.err
}

func (f *fakeCollaborative) Ask(_ context.Context, caller domain.Subject, id, _, _ string) (<-chan domain.StreamEvent, error) {
	f.caller = caller
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.StreamEvent, len(f.events))
	for _, event := range f.events {
		ch <- event
	}
	close(ch)
	return ch, nil
}

type fakeHistory struct {
	records []domain.ArchiveRecord
	err     error
}

func (f *fakeHistory) Recent(context.Context, domain.Subject, int) ([]domain.ArchiveRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type routerFakes struct {
	analyzer      *fakeAnalyzer
	deep          *fakeDeep
	generator     *fakeGenerator
	collaborative *fakeCollaborative
	history       *fakeHistory
}

func newRouterFakes() *routerFakes {
	return &routerFakes{
		analyzer: &fakeAnalyzer{
			result: &domain.AnalysisResult{
				RunID: "run-1",
				Predictions: []domain.Prediction{
					{Artist: "Claude Monet", Slug: "claude-monet", Probability: 0.91, Index: 3},
				},
				Narrative: "Loose brushwork and broken color.",
			},
		},
		deep: &fakeDeep{
			analysis: &domain.DeepAnalysis{RunID: "deep-1", Identity: domain.ArtworkIdentity{Artist: "Claude Monet"}},
			module:   &domain.ModuleResult{Module: domain.ModuleColor, Text: "Cool palette."},
		},
		generator: &fakeGenerator{
			result: &domain.GenerationResult{
				Images:  []string{"http://comfy/view?filename=a.png"},
				Backend: domain.BackendDiffusion,
			},
		},
		collaborative: &fakeCollaborative{
			ownerView: &domain.OwnerSessionView{
				SessionView: domain.SessionView{ID: "sess-1", RemainingSeconds: 2400},
				OwnerID:     "user-1",
			},
			view:      &domain.SessionView{ID: "sess-1", RemainingSeconds: 2400},
			heartbeat: &domain.HeartbeatStatus{ActiveViewers: 1, RemainingSeconds: 2000},
		},
		history: &fakeHistory{records: []domain.ArchiveRecord{}},
	}
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          testJWTSecret,
		UploadMaxBytes:     10 * 1024 * 1024,
		CORSAllowedOrigins: "*",
	}
}

func (f *routerFakes) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, f.analyzer, f.deep, f.generator, f.collaborative, f.history, nil).Handler()
}

// newTestHandler builds a full middleware-wrapped handler over default
// fakes; the middleware tests use it.
func newTestHandler(cfg config.Config) http.Handler {
	return newRouterFakes().handler(cfg)
}

func signTestToken(t *testing.T, sub, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      sub,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'p', 'e', 'g'}

func multipartImage(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doAnalyze(t *testing.T, handler http.Handler, token, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, formContentType := multipartImage(t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
	req.Header.Set("Content-Type", formContentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestAnalyzeRequiresAuth(t *testing.T) {
	handler := newTestHandler(testConfig())

	res := doAnalyze(t, handler, "", "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", res.Code)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Kind != "unauthorized" {
		t.Errorf("kind = %q", envelope.Kind)
	}
}

func TestAnalyzeRejectsGarbageToken(t *testing.T) {
	handler := newTestHandler(testConfig())

	res := doAnalyze(t, handler, "not-a-jwt", "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestAnalyzeReturnsResult(t *testing.T) {
	fakes := newRouterFakes()
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	res := doAnalyze(t, handler, token, "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.Code, res.Body.String())
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.TopArtist() != "Claude Monet" {
		t.Errorf("top artist = %q", result.TopArtist())
	}

	if fakes.analyzer.subject.ID != "user-1" || fakes.analyzer.subject.Guest {
		t.Errorf("subject = %+v", fakes.analyzer.subject)
	}
	if fakes.analyzer.upload.Filename != "art.jpg" {
		t.Errorf("upload filename = %q", fakes.analyzer.upload.Filename)
	}
}

func TestGuestTokenYieldsGuestSubject(t *testing.T) {
	fakes := newRouterFakes()
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "guest-7", "guest_7f3a")

	res := doAnalyze(t, handler, token, "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if !fakes.analyzer.subject.Guest {
		t.Error("guest username did not mark the subject as guest")
	}
}

func TestAnalyzeRejectsUnsupportedExtension(t *testing.T) {
	handler := newTestHandler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	res := doAnalyze(t, handler, token, "malware.exe", "image/jpeg", jpegMagic)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestAnalyzeRejectsNonImageContent(t *testing.T) {
	handler := newTestHandler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	res := doAnalyze(t, handler, token, "art.jpg", "image/jpeg", []byte("plain text, not an image"))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestAnalyzeMapsRateLimitTo429(t *testing.T) {
	fakes := newRouterFakes()
	fakes.analyzer.err = &domain.RateLimitError{Class: domain.ClassAnalyze, RetryAfter: 54 * time.Second}
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	res := doAnalyze(t, handler, token, "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", res.Code)
	}
	if res.Header().Get("Retry-After") != "54" {
		t.Errorf("Retry-After = %q", res.Header().Get("Retry-After"))
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Kind != "rate_limited" || envelope.RetryAfterSeconds != 54 {
		t.Errorf("envelope = %+v", envelope)
	}
}

func TestAnalyzeMapsBusyTo409(t *testing.T) {
	fakes := newRouterFakes()
	fakes.analyzer.err = fmt.Errorf("analyze admission: %w", domain.ErrBusy)
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	res := doAnalyze(t, handler, token, "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestAnalyzeMapsUpstreamFailureTo502(t *testing.T) {
	fakes := newRouterFakes()
	fakes.analyzer.err = domain.WrapError(domain.ErrUpstreamFailure, "classifier predict", errors.New("connection refused"))
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	res := doAnalyze(t, handler, token, "art.jpg", "image/jpeg", jpegMagic)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestAnalyzeStreamWritesNamedEvents(t *testing.T) {
	fakes := newRouterFakes()
	fakes.analyzer.events = []domain.StreamEvent{
		domain.PredictionsEvent([]domain.Prediction{{Artist: "Claude Monet", Slug: "claude-monet", Probability: 0.91, Index: 3}}),
		domain.TextEvent("Loose brushwork "),
		domain.TextEvent("and broken color."),
		domain.CompleteEvent(domain.AnalysisResult{RunID: "run-1", Narrative: "Loose brushwork and broken color."}),
	}
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	body, formContentType := multipartImage(t, "art.jpg", "image/jpeg", jpegMagic)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/stream", body)
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	raw := res.Body.String()
	wantInOrder := []string{
		"event: predictions\n",
		`"claude-monet"`,
		"event: text\n",
		`data: {"chunk":"Loose brushwork "}`,
		"event: complete\n",
		`"run_id":"run-1"`,
	}
	pos := 0
	for _, want := range wantInOrder {
		idx := strings.Index(raw[pos:], want)
		if idx < 0 {
			t.Fatalf("missing %q after offset %d in stream:\n%s", want, pos, raw)
		}
		pos += idx
	}
	if strings.Count(raw, "event: complete") != 1 {
		t.Errorf("complete events = %d", strings.Count(raw, "event: complete"))
	}
}

func TestAnalyzeStreamErrorEvent(t *testing.T) {
	fakes := newRouterFakes()
	fakes.analyzer.events = []domain.StreamEvent{
		domain.PredictionsEvent([]domain.Prediction{{Artist: "Claude Monet"}}),
		domain.ErrorEvent(domain.WrapError(domain.ErrUpstreamFailure, "narrative stream", errors.New("llm down"))),
	}
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	body, formContentType := multipartImage(t, "art.jpg", "image/jpeg", jpegMagic)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/stream", body)
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	raw := res.Body.String()
	if !strings.Contains(raw, "event: error\n") {
		t.Fatalf("missing error event in stream:\n%s", raw)
	}
	if !strings.Contains(raw, `"kind":"upstream_failure"`) {
		t.Errorf("error payload missing kind:\n%s", raw)
	}
}

func TestGenerateReturnsResult(t *testing.T) {
	handler := newTestHandler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"description":"a garden at dawn","style":"impressionism"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.Code, res.Body.String())
	}
	var result domain.GenerationResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Backend != domain.BackendDiffusion || len(result.Images) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestDeepModulePassesPathValue(t *testing.T) {
	fakes := newRouterFakes()
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	req := httptest.NewRequest(http.MethodGet, "/v1/deep-analysis/module/color?artist=Claude+Monet", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.Code, res.Body.String())
	}
	if fakes.deep.gotName != domain.ModuleColor {
		t.Errorf("module = %q", fakes.deep.gotName)
	}
}

func TestSessionNotFoundMapsTo404(t *testing.T) {
	fakes := newRouterFakes()
	fakes.collaborative.err = domain.ErrSessionNotFound
	handler := fakes.handler(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/collaborative/nope", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestSessionExpiredMapsTo410(t *testing.T) {
	fakes := newRouterFakes()
	fakes.collaborative.err = domain.ErrSessionExpired
	handler := fakes.handler(testConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/collaborative/old/heartbeat?viewer_id=v1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusGone {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestCreateSessionReturns201(t *testing.T) {
	handler := newTestHandler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	req := httptest.NewRequest(http.MethodPost, "/v1/collaborative", strings.NewReader(`{"snapshot":{"artist":"Claude Monet"}}`))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", res.Code, res.Body.String())
	}
}

func TestCloseSessionReturns204(t *testing.T) {
	fakes := newRouterFakes()
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	req := httptest.NewRequest(http.MethodDelete, "/v1/collaborative/sess-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("status = %d", res.Code)
	}
	if fakes.collaborative.gotID != "sess-1" {
		t.Errorf("session id = %q", fakes.collaborative.gotID)
	}
}

func TestAskStreamWritesDataLines(t *testing.T) {
	fakes := newRouterFakes()
	fakes.collaborative.events = []domain.StreamEvent{
		domain.TextEvent("The dominant blue "),
		domain.TextEvent("carries the mood."),
		{Kind: domain.EventComplete},
	}
	handler := fakes.handler(testConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/collaborative/sess-1/ask/stream", strings.NewReader(`{"question":"Why so much blue?","viewer_id":"v1"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.Code, res.Body.String())
	}
	raw := res.Body.String()
	for _, want := range []string{
		"data: The dominant blue \n\n",
		"data: carries the mood.\n\n",
		"data: [DONE]\n\n",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("missing %q in stream:\n%s", want, raw)
		}
	}
	if fakes.collaborative.caller.ID == "" {
		t.Error("anonymous caller has no synthesized subject")
	}
	if !fakes.collaborative.caller.Guest {
		t.Error("anonymous caller not marked guest")
	}
}

func TestAskStreamErrorLine(t *testing.T) {
	fakes := newRouterFakes()
	fakes.collaborative.events = []domain.StreamEvent{
		domain.ErrorEvent(domain.WrapError(domain.ErrUpstreamFailure, "session ask", errors.New("llm down"))),
	}
	handler := fakes.handler(testConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/collaborative/sess-1/ask/stream", strings.NewReader(`{"question":"Why?"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	raw := res.Body.String()
	if !strings.Contains(raw, "data: [ERROR] ") {
		t.Fatalf("missing error line in stream:\n%s", raw)
	}
	if strings.Contains(raw, "data: [DONE]") {
		t.Errorf("error stream also carries DONE:\n%s", raw)
	}
}

func TestHistoryReturnsRecords(t *testing.T) {
	fakes := newRouterFakes()
	fakes.history.records = []domain.ArchiveRecord{
		{ID: "rec-1", SubjectID: "user-1", Kind: domain.ArchiveAnalysis, Title: "Claude Monet"},
	}
	handler := fakes.handler(testConfig())
	token := signTestToken(t, "user-1", "alice")

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var payload struct {
		Records []domain.ArchiveRecord `json:"records"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Records) != 1 || payload.Records[0].ID != "rec-1" {
		t.Errorf("records = %+v", payload.Records)
	}
}
