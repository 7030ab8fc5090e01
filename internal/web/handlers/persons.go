package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/cornea/internal/database"
	"github.com/sirupsen/logrus"
)

// PersonsHandler manages person records and their training faces.
type PersonsHandler struct {
	store    database.Store
	validate *validator.Validate
	log      *logrus.Entry
}

// NewPersonsHandler creates a persons handler.
func NewPersonsHandler(store database.Store, v *validator.Validate, log *logrus.Entry) *PersonsHandler {
	return &PersonsHandler{store: store, validate: v, log: log}
}

// CreatePersonRequest creates a person.
type CreatePersonRequest struct {
	FirstName string `json:"first_name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"max=255"`
}

// PersonResponse is a person with the number of stored faces.
type PersonResponse struct {
	database.Person
	Name  string `json:"name"`
	Faces int    `json:"faces"`
}

// FaceResponse describes a stored face.
type FaceResponse struct {
	ID   int64 `json:"id"`
	Tag  int   `json:"tag"`
	Size int   `json:"size"`
}

func (h *PersonsHandler) faceCounts(r *http.Request) (map[int]int, error) {
	counts, err := h.store.CountFaces(r.Context())
	if err != nil {
		return nil, err
	}
	byTag := make(map[int]int, len(counts))
	for _, c := range counts {
		byTag[c.Tag] = c.Count
	}
	return byTag, nil
}

// List handles GET /api/v1/persons. ?q= filters by name.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		persons []database.Person
		err     error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		persons, err = h.store.FindPersonsByName(r.Context(), q)
	} else {
		persons, err = h.store.ListPersons(r.Context())
	}
	if err != nil {
		h.log.WithError(err).Error("listing persons failed")
		respondError(w, http.StatusInternalServerError, "failed to list persons")
		return
	}

	counts, err := h.faceCounts(r)
	if err != nil {
		h.log.WithError(err).Error("counting faces failed")
		respondError(w, http.StatusInternalServerError, "failed to count faces")
		return
	}

	out := make([]PersonResponse, 0, len(persons))
	for _, p := range persons {
		out = append(out, PersonResponse{Person: p, Name: p.Name(), Faces: counts[p.ID]})
	}
	respondJSON(w, http.StatusOK, out)
}

// Create handles POST /api/v1/persons.
func (h *PersonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.store.CreatePerson(r.Context(), strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName))
	if err != nil {
		h.log.WithError(err).Error("creating person failed")
		respondError(w, http.StatusInternalServerError, "failed to create person")
		return
	}
	h.log.WithFields(logrus.Fields{"tag": p.ID, "name": sanitizeForLog(p.Name())}).Info("person created")
	respondJSON(w, http.StatusCreated, PersonResponse{Person: *p, Name: p.Name()})
}

// Get handles GET /api/v1/persons/{tag}.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tag, ok := tagParam(w, r)
	if !ok {
		return
	}

	p, err := h.store.GetPerson(r.Context(), tag)
	if err != nil {
		if errors.Is(err, database.ErrPersonNotFound) {
			respondError(w, http.StatusNotFound, "person not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get person")
		return
	}

	faces, err := h.store.FacesByTag(r.Context(), tag)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list faces")
		return
	}
	respondJSON(w, http.StatusOK, PersonResponse{Person: *p, Name: p.Name(), Faces: len(faces)})
}

// AddFace handles POST /api/v1/persons/{tag}/faces. The image is either a
// JSON {"frame": base64} body or the raw image body.
func (h *PersonsHandler) AddFace(w http.ResponseWriter, r *http.Request) {
	tag, ok := tagParam(w, r)
	if !ok {
		return
	}

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
	} else {
		frame, err := readRawFrame(r)
		if err != nil {
			respondError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		data = frame
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty image")
		return
	}

	f, err := h.store.StoreFace(r.Context(), tag, data)
	if err != nil {
		if errors.Is(err, database.ErrPersonNotFound) {
			respondError(w, http.StatusNotFound, "person not found")
			return
		}
		h.log.WithError(err).Error("storing face failed")
		respondError(w, http.StatusInternalServerError, "failed to store face")
		return
	}
	respondJSON(w, http.StatusCreated, FaceResponse{ID: f.ID, Tag: f.Tag, Size: len(f.Data)})
}

// GetFace handles GET /api/v1/persons/{tag}/faces/{id} and returns the stored
// image as it was uploaded.
func (h *PersonsHandler) GetFace(w http.ResponseWriter, r *http.Request) {
	tag, ok := tagParam(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	f, err := h.store.GetFace(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrFaceNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		h.log.WithError(err).Error("getting face failed")
		respondError(w, http.StatusInternalServerError, "failed to get face")
		return
	}
	// Face IDs are global, a face of another person is not found here.
	if f.Tag != tag {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(f.Data))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

func tagParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tag, err := strconv.Atoi(chi.URLParam(r, "tag"))
	if err != nil || tag < 0 {
		respondError(w, http.StatusBadRequest, "invalid tag")
		return 0, false
	}
	return tag, true
}
