package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/database"
	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/kozaktomas/cornea/internal/training"
	"github.com/sirupsen/logrus"

	// Database backends register themselves by URL scheme.
	_ "github.com/kozaktomas/cornea/internal/database/mariadb"
	_ "github.com/kozaktomas/cornea/internal/database/postgres"
)

// recognizerParams overlays the configured LBPH settings on the defaults.
func recognizerParams(cfg config.RecognizerConfig) lbph.Params {
	p := lbph.DefaultParams()
	if cfg.Radius > 0 {
		p.Radius = cfg.Radius
	}
	if cfg.Neighbors > 0 {
		p.Neighbors = cfg.Neighbors
	}
	if cfg.GridX > 0 && cfg.GridY > 0 {
		p.GridX, p.GridY = cfg.GridX, cfg.GridY
	}
	if cfg.PatchSize > 0 {
		p.PatchSize = cfg.PatchSize
	}
	if cfg.IndexThreshold > 0 {
		p.IndexThreshold = cfg.IndexThreshold
	}
	p.Threshold = cfg.Threshold
	return p
}

// newModelStore opens the artifact directory, mirroring to S3 when a bucket
// is configured.
func newModelStore(cfg *config.Config, logger *logrus.Logger) (*modelstore.Store, error) {
	opts := []modelstore.Option{modelstore.WithLogger(logging.Component(logger, "modelstore"))}
	if cfg.S3.Bucket != "" {
		mirror, err := modelstore.NewS3Mirror(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("configuring S3 mirror: %w", err)
		}
		opts = append(opts, modelstore.WithMirror(mirror))
	}
	return modelstore.New(cfg.Model.Dir, opts...), nil
}

// newPipeline builds the detector and the training pipeline around store.
func newPipeline(cfg *config.Config, store *modelstore.Store, logger *logrus.Logger) (*training.Pipeline, error) {
	detector, err := detect.New(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("loading %s detector: %w", cfg.Detector.Kind, err)
	}
	policy, err := training.ParsePolicy(cfg.Training.MultiFace)
	if err != nil {
		return nil, err
	}
	return training.New(training.Options{
		Detector:     detector,
		DetectParams: detect.ParamsFromConfig(cfg.Detector),
		Recognizer:   recognizerParams(cfg.Recognizer),
		Store:        store,
		MultiFace:    policy,
		Concurrency:  cfg.Training.Concurrency,
		Logger:       logging.Component(logger, "training"),
	}), nil
}

// newEngine wires an engine that has not been started yet.
func newEngine(cfg *config.Config, store *modelstore.Store, pipeline *training.Pipeline, locker engine.Locker, logger *logrus.Logger) *engine.Engine {
	return engine.New(engine.Options{
		Store:           store,
		Pipeline:        pipeline,
		DetectParams:    detect.ParamsFromConfig(cfg.Detector),
		Executor:        engine.NewExecutor(cfg.Training.Workers),
		Locker:          locker,
		TrainingTimeout: cfg.Training.Timeout,
		Logger:          logging.Component(logger, "engine"),
	})
}

// newLocker connects the distributed retrain lock when Redis is configured.
// Without Redis it returns a nil Locker and a no-op close.
func newLocker(ctx context.Context, cfg *config.Config, log *logrus.Entry) (engine.Locker, func(), error) {
	if cfg.Redis.Address == "" {
		return nil, func() {}, nil
	}
	rl, err := engine.NewRedisLocker(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("address", cfg.Redis.Address).Info("distributed retrain lock enabled")
	return rl, func() { rl.Close() }, nil
}

// openDatabase opens the person store. It fails when no URL is configured.
func openDatabase(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required (supported schemes: %v)", database.Schemes())
	}
	return database.Open(ctx, cfg.Database, logging.Component(logger, "database"))
}
