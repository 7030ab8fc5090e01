package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/cornea/internal/training"
)

// Corpus loads every labeled face as a training corpus.
func Corpus(ctx context.Context, faces FaceReader) (training.Corpus, error) {
	all, err := faces.AllLabeledFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading labeled faces: %w", err)
	}
	corpus := make(training.Corpus, 0, len(all))
	for _, f := range all {
		corpus = append(corpus, training.Item{Data: f.Data, Label: f.Tag})
	}
	return corpus, nil
}
