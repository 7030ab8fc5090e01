package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/database/mock"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/kozaktomas/cornea/internal/training"
)

type stubModel struct{}

func (stubModel) Recognize(context.Context, []byte) (*engine.Result, error) { return nil, nil }
func (stubModel) RecognizeAll(context.Context, []byte) ([]engine.Result, error) {
	return nil, nil
}
func (stubModel) Retrain(context.Context, training.Corpus, training.Progress) (training.Result, error) {
	return training.Result{}, nil
}
func (stubModel) Info() engine.Info { return engine.Info{State: engine.StateServing, Labels: []int{}} }

func newTestServer(t *testing.T, withStore bool) *Server {
	t.Helper()
	deps := Deps{
		Model:   stubModel{},
		Models:  modelstore.New(t.TempDir()),
		Version: "test",
	}
	if withStore {
		deps.Store = mock.NewMockStore()
	}
	return NewServer(config.WebConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"https://app.example.com"}}, deps)
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, true)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/model", "", http.StatusOK},
		{http.MethodGet, "/api/v1/models", "", http.StatusOK},
		{http.MethodPost, "/detect_frame", "{}", http.StatusBadRequest},
		{http.MethodPost, "/model/detect_frame", "{}", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/recognize", "{}", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/retrain/jobs/missing", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/retrain/jobs/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/retrain/jobs/missing/events", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/persons", "", http.StatusOK},
		{http.MethodPost, "/api/v1/persons", `{"first_name":"Jan"}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/persons/7", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/persons/1/faces/abc", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		{http.MethodPut, "/api/v1/health", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_PersonsRequireStore(t *testing.T) {
	s := newTestServer(t, false)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/persons", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected persons routes to be absent, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/retrain", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected retrain without a corpus source to fail with 503, got %d", rec.Code)
	}
}

func TestServer_Middleware(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected CORS origin echoed, got %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestServer_ShutdownCancelsJobs(t *testing.T) {
	s := newTestServer(t, false)
	job := s.jobManager.CreateJob("pending")

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if st := job.GetStatus(); st != "cancelled" {
		t.Errorf("expected pending job to be cancelled, got %s", st)
	}
}
