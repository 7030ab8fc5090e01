package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kozaktomas/cornea/internal/database"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/training"
	"github.com/sirupsen/logrus"
)

// errNoCorpusSource is returned when neither samples nor a face store are available.
var errNoCorpusSource = errors.New("no samples given and no face database configured")

// RetrainHandler rebuilds the model from labeled faces.
type RetrainHandler struct {
	model      Model
	faces      database.FaceReader
	jobManager *JobManager
	validate   *validator.Validate
	log        *logrus.Entry
}

// NewRetrainHandler creates a retrain handler. faces may be nil, in which
// case every request must carry its samples.
func NewRetrainHandler(model Model, faces database.FaceReader, jm *JobManager, v *validator.Validate, log *logrus.Entry) *RetrainHandler {
	return &RetrainHandler{model: model, faces: faces, jobManager: jm, validate: v, log: log}
}

// SampleRequest is one labeled training image.
type SampleRequest struct {
	Frame string `json:"frame" validate:"required"`
	Tag   int    `json:"tag" validate:"gte=0"`
}

// RetrainRequest optionally carries the corpus inline. Without samples the
// corpus is loaded from the face database.
type RetrainRequest struct {
	Samples []SampleRequest `json:"samples" validate:"omitempty,dive"`
}

func newRetrainJobResult(res training.Result) *RetrainJobResult {
	return &RetrainJobResult{
		Path:        res.Artifact.Path,
		Samples:     res.Recognizer.Len(),
		Labels:      res.Recognizer.Labels(),
		Images:      res.Stats.Images,
		Undecodable: res.Stats.Undecodable,
		Faceless:    res.Stats.Faceless,
		MultiFace:   res.Stats.MultiFace,
		DurationMs:  float64(res.Duration.Microseconds()) / 1000,
	}
}

// parseRequest reads the optional inline corpus. A nil corpus means the
// database should be used.
func (h *RetrainHandler) parseRequest(w http.ResponseWriter, r *http.Request) (training.Corpus, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}
	var req RetrainRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		return nil, err
	}
	if len(req.Samples) == 0 {
		return nil, nil
	}
	corpus := make(training.Corpus, 0, len(req.Samples))
	for i, s := range req.Samples {
		data, err := decodeFrame(s.Frame)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		corpus = append(corpus, training.Item{Data: data, Label: s.Tag})
	}
	return corpus, nil
}

func (h *RetrainHandler) loadCorpus(ctx context.Context, inline training.Corpus) (training.Corpus, error) {
	if inline != nil {
		return inline, nil
	}
	if h.faces == nil {
		return nil, errNoCorpusSource
	}
	return database.Corpus(ctx, h.faces)
}

// Retrain handles POST /api/v1/retrain and blocks until the new model is live.
func (h *RetrainHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	inline, err := h.parseRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	corpus, err := h.loadCorpus(r.Context(), inline)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errNoCorpusSource) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, err.Error())
		return
	}

	res, err := h.model.Retrain(r.Context(), corpus, nil)
	if err != nil {
		h.log.WithError(err).Warn("retrain failed")
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, newRetrainJobResult(res))
}

// StartJob handles POST /api/v1/retrain/jobs and runs the retrain in the background.
func (h *RetrainHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	inline, err := h.parseRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if inline == nil && h.faces == nil {
		respondError(w, http.StatusServiceUnavailable, errNoCorpusSource.Error())
		return
	}
	if h.model.Info().State == engine.StateTraining {
		respondError(w, http.StatusConflict, engine.ErrTrainingInProgress.Error())
		return
	}

	job := h.jobManager.CreateJob(uuid.New().String())

	// Request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	go h.runJob(ctx, cancel, job, inline)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

// Status handles GET /api/v1/retrain/jobs/{jobId}.
func (h *RetrainHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.snapshot())
}

// Events streams job events via SSE.
func (h *RetrainHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*RetrainJob).snapshot()
		},
	)
}

// Cancel handles DELETE /api/v1/retrain/jobs/{jobId}.
func (h *RetrainHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *RetrainHandler) runJob(ctx context.Context, cancel context.CancelFunc, job *RetrainJob, inline training.Corpus) {
	defer cancel()
	log := h.log.WithField("job_id", job.ID)

	job.mu.Lock()
	if job.Status == JobStatusCancelled {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Retrain started"})

	corpus, err := h.loadCorpus(ctx, inline)
	if err != nil {
		h.failJob(job, log, fmt.Sprintf("loading corpus: %v", err))
		return
	}
	job.SendEvent(JobEvent{Type: "corpus_loaded", Data: map[string]int{"total": len(corpus)}})

	res, err := h.model.Retrain(ctx, corpus, func(done, total int) {
		job.setProgress(done, total)
		job.SendEvent(JobEvent{
			Type: "progress",
			Data: map[string]int{"current": done, "total": total},
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			// Cancel already moved the job and notified listeners.
			log.Info("retrain cancelled")
			return
		}
		h.failJob(job, log, err.Error())
		return
	}

	result := newRetrainJobResult(res)
	if job.finish(JobStatusCompleted, "", result) {
		log.WithField("path", result.Path).Info("retrain job completed")
		job.SendEvent(JobEvent{Type: "completed", Data: result})
		return
	}
	log.WithField("path", result.Path).Warn("retrain job cancelled after the model was published")
}

func (h *RetrainHandler) failJob(job *RetrainJob, log *logrus.Entry, message string) {
	if job.finish(JobStatusFailed, message, nil) {
		log.WithField("error", sanitizeForLog(message)).Warn("retrain job failed")
		job.SendEvent(JobEvent{Type: "job_error", Message: message})
	}
}
