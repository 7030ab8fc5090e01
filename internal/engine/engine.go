// Package engine owns the active face model and serves recognition and
// retraining against it.
//
// The active model is an immutable value published through an atomic
// pointer. Recognition loads the pointer once and works against that
// snapshot, so a concurrent retrain can never expose a half-built model. A
// retrain builds its model off to the side and replaces the pointer in a
// single store. At most one retrain runs per engine.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/cornea/internal/constants"
	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/kozaktomas/cornea/internal/frame"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/kozaktomas/cornea/internal/training"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTrainingInProgress is returned when a retrain is already running.
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrNotServing is returned when no model has been loaded yet.
	ErrNotServing = errors.New("no active model")
)

// State is the lifecycle state of the engine.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateServing       State = "serving"
	StateTraining      State = "training"
)

// ActiveModel is the detector, recognizer and artifact triple used to serve
// requests. It is never modified after publication.
type ActiveModel struct {
	Detector   detect.Detector
	Recognizer *lbph.Recognizer
	Artifact   modelstore.Artifact
	LoadedAt   time.Time
}

// Result is one recognized face.
type Result struct {
	Label int `json:"label"`
	// Confidence is 1 - distance/100 clamped to [0, 1].
	Confidence float64 `json:"confidence"`
	// RawConfidence is the unclamped 1 - distance/100.
	RawConfidence float64       `json:"raw_confidence"`
	Distance      float64       `json:"distance"`
	Region        detect.Region `json:"region"`
}

// Known reports whether the recognizer assigned an identity.
func (r Result) Known() bool {
	return r.Label != constants.UnknownLabel
}

func newResult(label int, distance float64, region detect.Region) Result {
	raw := 1 - distance/constants.ConfidenceScale
	return Result{
		Label:         label,
		Confidence:    min(max(raw, 0), 1),
		RawConfidence: raw,
		Distance:      distance,
		Region:        region,
	}
}

// Options configure an Engine.
type Options struct {
	Store           *modelstore.Store
	Pipeline        *training.Pipeline
	Detector        detect.Detector
	DetectParams    detect.Params
	Executor        *Executor
	Locker          Locker
	TrainingTimeout time.Duration
	Logger          *logrus.Entry
}

// Engine is the model orchestrator.
type Engine struct {
	store           *modelstore.Store
	pipeline        *training.Pipeline
	detector        detect.Detector
	detectParams    detect.Params
	exec            *Executor
	locker          Locker
	trainingTimeout time.Duration
	log             *logrus.Entry

	active   atomic.Pointer[ActiveModel]
	training atomic.Bool
}

// New creates an engine in the uninitialized state.
func New(opts Options) *Engine {
	e := &Engine{
		store:           opts.Store,
		pipeline:        opts.Pipeline,
		detector:        opts.Detector,
		detectParams:    opts.DetectParams,
		exec:            opts.Executor,
		locker:          opts.Locker,
		trainingTimeout: opts.TrainingTimeout,
		log:             opts.Logger,
	}
	if e.exec == nil {
		e.exec = NewExecutor(constants.WorkerPoolSize)
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.detector == nil && e.pipeline != nil {
		e.detector = e.pipeline.Detector()
	}
	return e
}

// Start loads the latest artifact and enters the serving state.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.EnsureDirectory(); err != nil {
		return err
	}

	latest, err := e.store.DiscoverLatest()
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("%w in %s: train a model first with `cornea train`", modelstore.ErrNoModelAvailable, e.store.Dir())
	}

	var (
		r       *lbph.Recognizer
		loadErr error
	)
	if err := e.exec.Do(ctx, func() { r, loadErr = e.store.Load(latest.Path) }); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	e.Publish(e.detector, r, *latest)
	return nil
}

// Publish atomically replaces the active model.
func (e *Engine) Publish(detector detect.Detector, r *lbph.Recognizer, artifact modelstore.Artifact) {
	e.active.Store(&ActiveModel{
		Detector:   detector,
		Recognizer: r,
		Artifact:   artifact,
		LoadedAt:   time.Now(),
	})
	e.log.WithFields(logrus.Fields{
		"path":    artifact.Path,
		"samples": r.Len(),
		"labels":  len(r.Labels()),
	}).Info("active model published")
}

// Active returns the current model snapshot, or nil before Start.
func (e *Engine) Active() *ActiveModel {
	return e.active.Load()
}

// State reports the lifecycle state.
func (e *Engine) State() State {
	if e.active.Load() == nil {
		return StateUninitialized
	}
	if e.training.Load() {
		return StateTraining
	}
	return StateServing
}

// Recognize returns the face with the highest confidence, or nil when the
// frame cannot be decoded or contains no face.
func (e *Engine) Recognize(ctx context.Context, data []byte) (*Result, error) {
	results, err := e.RecognizeAll(ctx, data)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

// RecognizeAll returns one result per detected face ordered by confidence,
// highest first. Decode and detection failures yield an empty result.
func (e *Engine) RecognizeAll(ctx context.Context, data []byte) ([]Result, error) {
	model := e.active.Load()
	if model == nil {
		return nil, ErrNotServing
	}

	var results []Result
	if err := e.exec.Do(ctx, func() { results = e.recognize(model, data) }); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) recognize(model *ActiveModel, data []byte) []Result {
	img, err := frame.Decode(data)
	if err != nil {
		e.log.WithError(err).Debug("frame not decodable")
		return nil
	}

	regions, err := model.Detector.Detect(img, e.detectParams)
	if err != nil {
		e.log.WithError(err).Warn("face detection failed")
		return nil
	}

	results := make([]Result, 0, len(regions))
	for _, region := range regions {
		patch := frame.Crop(img, region.Rect())
		if patch == nil {
			continue
		}
		label, distance := model.Recognizer.Predict(patch)
		results = append(results, newResult(label, distance, region))
	}
	rank(results)
	return results
}

// rank orders results best match first. Confidence clamps at zero, so the
// raw distance is the only usable key.
func rank(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
}

// Retrain builds a new model from corpus and publishes it on success. A
// failed retrain leaves the active model untouched. Only one retrain runs at
// a time; others fail with ErrTrainingInProgress.
func (e *Engine) Retrain(ctx context.Context, corpus training.Corpus, progress training.Progress) (training.Result, error) {
	if e.active.Load() == nil {
		return training.Result{}, ErrNotServing
	}
	if !e.training.CompareAndSwap(false, true) {
		return training.Result{}, ErrTrainingInProgress
	}

	release := func() {}
	if e.locker != nil {
		r, err := e.locker.Acquire(ctx, LockKey(e.store.Dir()))
		if err != nil {
			e.training.Store(false)
			if errors.Is(err, ErrLocked) {
				return training.Result{}, fmt.Errorf("%w: %w", ErrTrainingInProgress, err)
			}
			return training.Result{}, err
		}
		release = r
	}

	var (
		tctx   context.Context
		cancel context.CancelFunc
	)
	if e.trainingTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, e.trainingTimeout)
	} else {
		tctx, cancel = context.WithCancel(ctx)
	}

	var (
		res      training.Result
		trainErr error
	)
	done, err := e.exec.Go(ctx, func() {
		defer e.training.Store(false)
		defer release()
		defer cancel()
		res, trainErr = e.pipeline.TrainAndSwap(tctx, corpus, e, progress)
	})
	if err != nil {
		cancel()
		release()
		e.training.Store(false)
		return training.Result{}, err
	}

	// Cancellation reaches the worker through tctx. Waiting for it keeps the
	// reported outcome in line with what was published.
	<-done

	if trainErr != nil {
		e.log.WithError(trainErr).Warn("retrain failed, keeping the active model")
		return training.Result{}, trainErr
	}
	return res, nil
}

// Info summarizes the engine for status endpoints.
type Info struct {
	State     State     `json:"state"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	LoadedAt  time.Time `json:"loaded_at,omitzero"`
	Samples   int       `json:"samples"`
	Labels    []int     `json:"labels"`
}

// Info returns the current state and active model details.
func (e *Engine) Info() Info {
	info := Info{State: e.State(), Labels: []int{}}
	if m := e.active.Load(); m != nil {
		info.Path = m.Artifact.Path
		info.CreatedAt = m.Artifact.CreatedAt
		info.LoadedAt = m.LoadedAt
		info.Samples = m.Recognizer.Len()
		info.Labels = m.Recognizer.Labels()
	}
	return info
}

// Close releases the active model and the detector when it holds native
// resources.
func (e *Engine) Close() error {
	e.active.Store(nil)
	if c, ok := e.detector.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing detector: %w", err)
		}
	}
	return nil
}
