package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize faces in an image file with the latest model",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("all", false, "Print every detected face, not only the best match")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newModelStore(cfg, logger)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, store, logger)
	if err != nil {
		return err
	}
	eng := newEngine(cfg, store, pipeline, nil, logger)
	defer eng.Close()

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		return err
	}

	results, err := eng.RecognizeAll(ctx, data)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No face recognized.")
		return nil
	}
	if !mustGetBool(cmd, "all") {
		results = results[:1]
	}
	for _, r := range results {
		label := "unknown"
		if r.Known() {
			label = fmt.Sprintf("tag %d", r.Label)
		}
		fmt.Printf("%-10s confidence %.3f  distance %.2f  at %dx%d+%d+%d\n",
			label, r.Confidence, r.Distance, r.Region.W, r.Region.H, r.Region.X, r.Region.Y)
	}
	return nil
}
