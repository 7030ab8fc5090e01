// Package training turns a labeled image corpus into a persisted recognizer.
package training

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/cornea/internal/constants"
	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/kozaktomas/cornea/internal/frame"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrTraining marks a retrain that produced no usable model. The model that
// was serving before stays authoritative.
var ErrTraining = errors.New("training failed")

// Item is one labeled training image.
type Item struct {
	Data  []byte
	Label int
}

// Corpus is the ordered set of images used for one retrain.
type Corpus []Item

// MultiFacePolicy decides what happens to a training image in which the
// detector finds more than one face.
type MultiFacePolicy string

const (
	// MultiFaceSkip drops the image and logs a warning.
	MultiFaceSkip MultiFacePolicy = "skip"
	// MultiFaceReject fails the whole retrain.
	MultiFaceReject MultiFacePolicy = "reject"
	// MultiFaceKeep labels every detected face with the image label.
	MultiFaceKeep MultiFacePolicy = "keep"
)

// ParsePolicy validates a policy name. An empty name selects MultiFaceSkip.
func ParsePolicy(s string) (MultiFacePolicy, error) {
	switch p := MultiFacePolicy(s); p {
	case "":
		return MultiFaceSkip, nil
	case MultiFaceSkip, MultiFaceReject, MultiFaceKeep:
		return p, nil
	default:
		return "", fmt.Errorf("unknown multi-face policy %q", s)
	}
}

// PrepareStats summarizes one preparation pass.
type PrepareStats struct {
	Images      int `json:"images"`
	Samples     int `json:"samples"`
	Undecodable int `json:"undecodable"`
	Faceless    int `json:"faceless"`
	MultiFace   int `json:"multi_face"`
}

// Progress is called after each corpus image has been prepared. Calls are
// serialized.
type Progress func(done, total int)

// Options configure a Pipeline.
type Options struct {
	Detector     detect.Detector
	DetectParams detect.Params
	Recognizer   lbph.Params
	Store        *modelstore.Store
	MultiFace    MultiFacePolicy
	Concurrency  int
	Logger       *logrus.Entry
}

// Pipeline prepares samples, trains, persists and verifies new models.
type Pipeline struct {
	detector     detect.Detector
	detectParams detect.Params
	recognizer   lbph.Params
	store        *modelstore.Store
	policy       MultiFacePolicy
	concurrency  int
	log          *logrus.Entry
}

// New creates a pipeline from opts.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		detector:     opts.Detector,
		detectParams: opts.DetectParams,
		recognizer:   opts.Recognizer,
		store:        opts.Store,
		policy:       opts.MultiFace,
		concurrency:  opts.Concurrency,
		log:          opts.Logger,
	}
	if p.policy == "" {
		p.policy = MultiFaceSkip
	}
	if p.concurrency <= 0 {
		p.concurrency = constants.PrepareConcurrency
	}
	if p.log == nil {
		p.log = logging.Discard()
	}
	return p
}

// Detector returns the detector used to crop training faces.
func (p *Pipeline) Detector() detect.Detector {
	return p.detector
}

type outcome int

const (
	outcomeSamples outcome = iota
	outcomeUndecodable
	outcomeFaceless
	outcomeMultiFace
)

type prepared struct {
	outcome outcome
	samples []lbph.Sample
}

// Prepare decodes every corpus image, detects faces and crops them into
// labeled samples. Output order follows corpus order.
func (p *Pipeline) Prepare(ctx context.Context, corpus Corpus, progress Progress) ([]lbph.Sample, PrepareStats, error) {
	results := make([]prepared, len(corpus))

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		progress(done, len(corpus))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, item := range corpus {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.prepareOne(i, item)
			if err != nil {
				return err
			}
			results[i] = res
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, PrepareStats{}, err
	}

	stats := PrepareStats{Images: len(corpus)}
	var samples []lbph.Sample
	for _, r := range results {
		switch r.outcome {
		case outcomeUndecodable:
			stats.Undecodable++
		case outcomeFaceless:
			stats.Faceless++
		case outcomeMultiFace:
			stats.MultiFace++
		}
		samples = append(samples, r.samples...)
	}
	stats.Samples = len(samples)
	return samples, stats, nil
}

func (p *Pipeline) prepareOne(i int, item Item) (prepared, error) {
	fields := logrus.Fields{"index": i, "label": item.Label}

	img, err := frame.Decode(item.Data)
	if err != nil {
		p.log.WithFields(fields).WithError(err).Warn("skipping undecodable training image")
		return prepared{outcome: outcomeUndecodable}, nil
	}

	regions, err := p.detector.Detect(img, p.detectParams)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: detecting faces in image %d: %w", ErrTraining, i, err)
	}
	if len(regions) == 0 {
		p.log.WithFields(fields).Debug("no face in training image")
		return prepared{outcome: outcomeFaceless}, nil
	}

	if len(regions) > 1 {
		switch p.policy {
		case MultiFaceReject:
			return prepared{}, fmt.Errorf("%w: image %d (label %d) contains %d faces", ErrTraining, i, item.Label, len(regions))
		case MultiFaceSkip:
			p.log.WithFields(fields).WithField("faces", len(regions)).Warn("skipping training image with more than one face")
			return prepared{outcome: outcomeMultiFace}, nil
		}
	}

	res := prepared{outcome: outcomeSamples}
	for _, r := range regions {
		patch := frame.Crop(img, r.Rect())
		if patch == nil {
			continue
		}
		res.samples = append(res.samples, lbph.Sample{Patch: patch, Label: item.Label})
	}
	if len(res.samples) == 0 {
		res.outcome = outcomeFaceless
	}
	return res, nil
}
