package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/cornea/internal/database"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/training"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a new model",
	Long: `Train a new LBPH model and store it in the model directory.
The corpus comes from the face database, or from --dir laid out as
<dir>/<tag>/*.jpg. A running server picks the model up on its next retrain
or restart.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("dir", "", "Train from a folder of <tag>/ subdirectories instead of the database")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Component(logger, "train")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var corpus training.Corpus
	if dir := mustGetString(cmd, "dir"); dir != "" {
		if corpus, err = folderCorpus(dir, log); err != nil {
			return err
		}
	} else {
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if corpus, err = database.Corpus(ctx, db); err != nil {
			return err
		}
	}
	if len(corpus) == 0 {
		return fmt.Errorf("%w: no labeled images found", training.ErrTraining)
	}

	store, err := newModelStore(cfg, logger)
	if err != nil {
		return err
	}
	if err := store.EnsureDirectory(); err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, store, logger)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	var res training.Result
	bar := newProgressBar(len(corpus), "Preparing faces", "images")
	err = engine.WithLock(ctx, locker, store.Dir(), func() error {
		var buildErr error
		res, buildErr = pipeline.Build(ctx, corpus, func(done, total int) {
			bar.Set(done)
		})
		return buildErr
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Model:       %s\n", res.Artifact.Path)
	fmt.Printf("Samples:     %d from %d images\n", res.Recognizer.Len(), res.Stats.Images)
	fmt.Printf("Identities:  %d\n", len(res.Recognizer.Labels()))
	fmt.Printf("Skipped:     %d undecodable, %d without a face, %d with several faces\n",
		res.Stats.Undecodable, res.Stats.Faceless, res.Stats.MultiFace)
	fmt.Printf("Took:        %s\n", res.Duration.Round(time.Millisecond))
	return nil
}
