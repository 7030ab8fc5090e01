package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kozaktomas/cornea/internal/database"
	"github.com/kozaktomas/cornea/internal/fingerprint"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <tag> <folder>",
	Short: "Store a folder of face images for a person",
	Long: `Store every .jpg/.jpeg image in folder as a training face of the person
with the given tag. Unreadable and empty files are skipped, as are images
that duplicate a face already stored for the person.`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("allow-duplicates", false, "Store images even when the same shot is already stored")
	ingestCmd.Flags().Int("duplicate-threshold", fingerprint.DefaultThreshold, "Max hash distance treated as the same shot")
}

func runIngest(cmd *cobra.Command, args []string) error {
	tag, err := strconv.Atoi(args[0])
	if err != nil || tag < 0 {
		return fmt.Errorf("invalid tag %q", args[0])
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Component(logger, "ingest")
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	person, err := db.GetPerson(ctx, tag)
	if err != nil {
		return err
	}

	var seen *fingerprint.Set
	if !mustGetBool(cmd, "allow-duplicates") {
		if seen, err = storedFingerprints(ctx, db, tag, mustGetInt(cmd, "duplicate-threshold")); err != nil {
			return err
		}
	}

	files, err := listImages(args[1])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	bar := newProgressBar(len(files), "Storing faces", "images")
	var stored, skipped, duplicates int
	for _, f := range files {
		data, err := readImage(f)
		if err != nil {
			log.WithError(err).WithField("file", f).Warn("skipping image")
			skipped++
			bar.Add(1)
			continue
		}
		if seen != nil {
			h, err := fingerprint.Compute(data)
			if err != nil {
				log.WithError(err).WithField("file", f).Warn("skipping undecodable image")
				skipped++
				bar.Add(1)
				continue
			}
			if seen.Contains(h) {
				duplicates++
				bar.Add(1)
				continue
			}
			seen.Add(h)
		}
		if _, err := db.StoreFace(ctx, tag, data); err != nil {
			bar.Finish()
			return fmt.Errorf("storing %s: %w", f, err)
		}
		stored++
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("\nStored %d faces for %s (skipped %d, duplicates %d)\n", stored, person.Name(), skipped, duplicates)
	return nil
}

// storedFingerprints hashes the faces already stored for tag.
func storedFingerprints(ctx context.Context, faces database.FaceReader, tag, threshold int) (*fingerprint.Set, error) {
	existing, err := faces.FacesByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	set := fingerprint.NewSet(threshold)
	for _, f := range existing {
		if h, err := fingerprint.Compute(f.Data); err == nil {
			set.Add(h)
		}
	}
	return set, nil
}
