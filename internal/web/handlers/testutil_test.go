package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/kozaktomas/cornea/internal/detect/mock"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/kozaktomas/cornea/internal/training"
)

// testValidator returns the validator used by the server.
func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// testEngine trains a two-person model and returns a serving engine.
func testEngine(t *testing.T) (*engine.Engine, *modelstore.Store) {
	t.Helper()
	store := modelstore.New(filepath.Join(t.TempDir(), "models"))
	pipeline := training.New(training.Options{
		Detector:     &mock.Detector{},
		DetectParams: detect.DefaultParams(),
		Recognizer:   lbph.DefaultParams(),
		Store:        store,
	})
	corpus := training.Corpus{
		{Data: mock.Portrait(1, 0), Label: 1},
		{Data: mock.Portrait(2, 0), Label: 2},
	}
	if _, err := pipeline.Build(context.Background(), corpus, nil); err != nil {
		t.Fatalf("training test model: %v", err)
	}

	e := engine.New(engine.Options{
		Store:        store,
		Pipeline:     pipeline,
		DetectParams: detect.DefaultParams(),
		Executor:     engine.NewExecutor(2),
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("starting engine: %v", err)
	}
	return e, store
}

// fakeModel returns fixed answers.
type fakeModel struct {
	result     *engine.Result
	results    []engine.Result
	err        error
	retrainErr error
	info       engine.Info
	corpus     training.Corpus
}

func (f *fakeModel) Recognize(_ context.Context, _ []byte) (*engine.Result, error) {
	return f.result, f.err
}

func (f *fakeModel) RecognizeAll(_ context.Context, _ []byte) ([]engine.Result, error) {
	return f.results, f.err
}

func (f *fakeModel) Retrain(_ context.Context, corpus training.Corpus, _ training.Progress) (training.Result, error) {
	f.corpus = corpus
	return training.Result{}, f.retrainErr
}

func (f *fakeModel) Info() engine.Info {
	return f.info
}

// jsonBody encodes v as a request body.
func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding body: %v", err)
	}
	return bytes.NewReader(data)
}

// frameBody returns a {"frame": base64} body for data.
func frameBody(t *testing.T, data []byte) *bytes.Reader {
	t.Helper()
	return jsonBody(t, map[string]string{"frame": base64.StdEncoding.EncodeToString(data)})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

var testLog = logging.Discard()
