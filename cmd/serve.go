package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/cornea/internal/database"
	"github.com/kozaktomas/cornea/internal/engine"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/modelstore"
	"github.com/kozaktomas/cornea/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition server",
	Long: `Start the Cornea HTTP server.
The latest model in the model directory is loaded at startup. Without a
model the server refuses to start unless --bootstrap is given and a face
database is configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().Bool("bootstrap", false, "Train a model from the face database when none exists")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Component(logger, "serve")

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newModelStore(cfg, logger)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, store, logger)
	if err != nil {
		return err
	}

	var db database.Store
	if cfg.Database.URL != "" {
		if db, err = openDatabase(ctx, cfg, logger); err != nil {
			return err
		}
		defer db.Close()
	} else {
		log.Warn("no DATABASE_URL configured, person and face routes are disabled")
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	eng := newEngine(cfg, store, pipeline, locker, logger)
	defer eng.Close()

	if err := eng.Start(ctx); err != nil {
		if !errors.Is(err, modelstore.ErrNoModelAvailable) || !mustGetBool(cmd, "bootstrap") || db == nil {
			return err
		}
		log.Info("no model found, bootstrapping from the face database")
		corpus, err := database.Corpus(ctx, db)
		if err != nil {
			return err
		}
		err = engine.WithLock(ctx, locker, store.Dir(), func() error {
			_, err := pipeline.Build(ctx, corpus, nil)
			return err
		})
		if err != nil {
			return fmt.Errorf("bootstrapping model: %w", err)
		}
		if err := eng.Start(ctx); err != nil {
			return err
		}
	}

	server := web.NewServer(cfg.Web, web.Deps{
		Model:   eng,
		Models:  store,
		Store:   db,
		Version: Version,
		Logger:  logger.WithField("component", "web"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
