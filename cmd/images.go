package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kozaktomas/cornea/internal/training"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// imageExtensions are the file types picked up from folders.
var imageExtensions = []string{".jpg", ".jpeg"}

// listImages returns the image files directly inside dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// readImage loads a file, rejecting empty ones.
func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return data, nil
}

// folderCorpus builds a corpus from dir/<tag>/*.jpg. Subdirectories whose
// name is not a tag are skipped, as are unreadable files.
func folderCorpus(dir string, log *logrus.Entry) (training.Corpus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var corpus training.Corpus
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tag, err := strconv.Atoi(e.Name())
		if err != nil || tag < 0 {
			log.WithField("dir", e.Name()).Warn("skipping directory that is not a tag")
			continue
		}
		files, err := listImages(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			data, err := readImage(f)
			if err != nil {
				log.WithError(err).WithField("file", f).Warn("skipping image")
				continue
			}
			corpus = append(corpus, training.Item{Data: data, Label: tag})
		}
	}
	return corpus, nil
}

func newProgressBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
