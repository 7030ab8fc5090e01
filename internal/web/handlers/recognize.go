package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/cornea/internal/constants"
	"github.com/kozaktomas/cornea/internal/database"
	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/sirupsen/logrus"
)

// RecognizeHandler serves face recognition requests.
type RecognizeHandler struct {
	model    Model
	persons  database.PersonReader
	validate *validator.Validate
	log      *logrus.Entry
}

// NewRecognizeHandler creates a recognize handler. persons may be nil.
func NewRecognizeHandler(model Model, persons database.PersonReader, v *validator.Validate, log *logrus.Entry) *RecognizeHandler {
	return &RecognizeHandler{model: model, persons: persons, validate: v, log: log}
}

// FrameRequest carries one base64 encoded image.
type FrameRequest struct {
	Frame string `json:"frame" validate:"required"`
	All   bool   `json:"all"`
}

// LegacyMatch is the response of the legacy detect_frame endpoints.
type LegacyMatch struct {
	Tag        any           `json:"tag"`
	Confidence float64       `json:"confidence"`
	Position   detect.Region `json:"position"`
}

// Face is one recognized face in API responses.
type Face struct {
	engine.Result
	Known bool   `json:"known"`
	Name  string `json:"name,omitempty"`
}

// RecognizeResponse lists recognized faces, best match first.
type RecognizeResponse struct {
	Faces []Face `json:"faces"`
}

// DetectFrame handles POST /detect_frame and /model/detect_frame.
func (h *RecognizeHandler) DetectFrame(w http.ResponseWriter, r *http.Request) {
	var req FrameRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := decodeFrame(req.Frame)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.model.Recognize(r.Context(), data)
	if err != nil {
		h.log.WithError(err).Warn("recognition failed")
		respondError(w, statusFor(err), err.Error())
		return
	}

	if res == nil || !res.Known() {
		match := LegacyMatch{Tag: constants.UnknownTag}
		if res != nil {
			match.Confidence = res.Confidence
			match.Position = res.Region
		}
		respondJSON(w, http.StatusOK, match)
		return
	}
	respondJSON(w, http.StatusOK, LegacyMatch{
		Tag:        res.Label,
		Confidence: res.Confidence,
		Position:   res.Region,
	})
}

// Recognize handles POST /api/v1/recognize. The frame is either a JSON
// FrameRequest or the raw image body. ?all=true returns every face.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	var data []byte
	if isJSON(r) {
		var req FrameRequest
		if err := decodeJSON(w, r, h.validate, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		frame, err := decodeFrame(req.Frame)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		data = frame
		all = all || req.All
	} else {
		frame, err := readRawFrame(r)
		if err != nil {
			respondError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		data = frame
	}

	faces, err := h.recognize(r.Context(), data, all)
	if err != nil {
		h.log.WithError(err).Warn("recognition failed")
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, RecognizeResponse{Faces: faces})
}

func (h *RecognizeHandler) recognize(ctx context.Context, data []byte, all bool) ([]Face, error) {
	var results []engine.Result
	if all {
		var err error
		if results, err = h.model.RecognizeAll(ctx, data); err != nil {
			return nil, err
		}
	} else {
		res, err := h.model.Recognize(ctx, data)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results = []engine.Result{*res}
		}
	}
	return h.describe(ctx, results), nil
}

// describe attaches person names when a person store is configured.
func (h *RecognizeHandler) describe(ctx context.Context, results []engine.Result) []Face {
	faces := make([]Face, 0, len(results))
	cache := map[int]string{}
	for _, res := range results {
		f := Face{Result: res, Known: res.Known()}
		if f.Known && h.persons != nil {
			name, ok := cache[res.Label]
			if !ok {
				p, err := h.persons.GetPerson(ctx, res.Label)
				switch {
				case err == nil:
					name = p.Name()
				case !errors.Is(err, database.ErrPersonNotFound):
					h.log.WithError(err).WithField("tag", res.Label).Warn("person lookup failed")
				}
				cache[res.Label] = name
			}
			f.Name = name
		}
		faces = append(faces, f)
	}
	return faces
}
