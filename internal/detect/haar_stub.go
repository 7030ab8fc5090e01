//go:build !gocv

package detect

import "errors"

// ErrHaarUnavailable is returned when the binary was built without OpenCV.
var ErrHaarUnavailable = errors.New("haar detector requires building with -tags gocv")

// NewHaar reports that OpenCV support is not compiled in.
func NewHaar(string) (Detector, error) {
	return nil, ErrHaarUnavailable
}
