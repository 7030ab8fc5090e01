package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/cornea/internal/constants"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/kozaktomas/cornea/internal/training"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// Model is the part of the engine the handlers use.
type Model interface {
	Recognize(ctx context.Context, data []byte) (*engine.Result, error)
	RecognizeAll(ctx context.Context, data []byte) ([]engine.Result, error)
	Retrain(ctx context.Context, corpus training.Corpus, progress training.Progress) (training.Result, error)
	Info() engine.Info
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotServing), errors.Is(err, modelstore.ErrNoModelAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, modelstore.ErrDirectory):
		return http.StatusInternalServerError
	case errors.Is(err, training.ErrTraining):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes and validates a request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	body := http.MaxBytesReader(w, r.Body, constants.MaxFrameBytes*4/3+1024)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errors.New(errInvalidRequestBody)
	}
	if err := v.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns validator output into a short client message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "base64":
		return fmt.Errorf("%s must be base64 encoded", field)
	default:
		return fmt.Errorf("%s failed %s validation", field, fe.Tag())
	}
}

// decodeFrame decodes a base64 frame, accepting an optional data URI prefix.
func decodeFrame(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("frame must be base64 encoded: %w", err)
	}
	if len(data) > constants.MaxFrameBytes {
		return nil, fmt.Errorf("frame exceeds %d bytes", constants.MaxFrameBytes)
	}
	return data, nil
}

// readRawFrame reads an image sent as the raw request body.
func readRawFrame(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(data) > constants.MaxFrameBytes {
		return nil, fmt.Errorf("frame exceeds %d bytes", constants.MaxFrameBytes)
	}
	return data, nil
}

// isJSON reports whether the request body is JSON.
func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Hello greets clients at the root path.
func Hello(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Hello from Cornea version: %s", version)
	}
}
