package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/sirupsen/logrus"
)

// Result is a trained, persisted and reloaded model.
type Result struct {
	Recognizer *lbph.Recognizer
	Artifact   modelstore.Artifact
	Stats      PrepareStats
	Duration   time.Duration
}

// Publisher installs a freshly built model.
type Publisher interface {
	Publish(detector detect.Detector, recognizer *lbph.Recognizer, artifact modelstore.Artifact)
}

// Build runs prepare, train, persist and load, then checks that the reloaded
// recognizer predicts exactly like the trained one. The returned recognizer
// is the reloaded instance.
func (p *Pipeline) Build(ctx context.Context, corpus Corpus, progress Progress) (Result, error) {
	start := time.Now()
	if len(corpus) == 0 {
		return Result{}, fmt.Errorf("%w: empty corpus", ErrTraining)
	}

	samples, stats, err := p.Prepare(ctx, corpus, progress)
	if err != nil {
		if !errors.Is(err, ErrTraining) {
			err = fmt.Errorf("%w: %w", ErrTraining, err)
		}
		return Result{}, err
	}
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("%w: no usable faces in %d images", ErrTraining, stats.Images)
	}

	trained, err := lbph.Train(p.recognizer, samples)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	artifact, err := p.store.Persist(ctx, trained)
	if err != nil {
		return Result{}, fmt.Errorf("%w: persisting model: %w", ErrTraining, err)
	}

	loaded, err := p.store.Load(artifact.Path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reloading model: %w", ErrTraining, err)
	}

	check := samples[0].Patch
	wantLabel, wantDist := trained.Predict(check)
	gotLabel, gotDist := loaded.Predict(check)
	if wantLabel != gotLabel || wantDist != gotDist {
		return Result{}, fmt.Errorf("%w: reloaded model predicts (%d, %f), trained model (%d, %f)",
			ErrTraining, gotLabel, gotDist, wantLabel, wantDist)
	}

	res := Result{
		Recognizer: loaded,
		Artifact:   artifact,
		Stats:      stats,
		Duration:   time.Since(start),
	}
	p.log.WithFields(logrus.Fields{
		"path":        artifact.Path,
		"images":      stats.Images,
		"samples":     stats.Samples,
		"labels":      len(loaded.Labels()),
		"undecodable": stats.Undecodable,
		"faceless":    stats.Faceless,
		"multi_face":  stats.MultiFace,
		"duration":    res.Duration.String(),
	}).Info("model trained")
	return res, nil
}

// TrainAndSwap builds a model and hands it to pub. pub is only called on
// success, so any failure leaves the published model untouched.
func (p *Pipeline) TrainAndSwap(ctx context.Context, corpus Corpus, pub Publisher, progress Progress) (Result, error) {
	res, err := p.Build(ctx, corpus, progress)
	if err != nil {
		return Result{}, err
	}
	// A caller that gave up must not see its model go live.
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	pub.Publish(p.detector, res.Recognizer, res.Artifact)
	return res, nil
}
