// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Detection constants
const (
	// DefaultScaleFactor is the step between successive detector window scales
	DefaultScaleFactor = 1.2

	// DefaultMinNeighbors is the number of overlapping raw detections a region
	// needs before it is reported
	DefaultMinNeighbors = 5

	// DefaultMinFaceSize is the smallest face side (pixels) the detector looks for
	DefaultMinFaceSize = 20

	// ClusterIoUThreshold is the overlap above which raw detections are merged
	ClusterIoUThreshold = 0.2
)

// Recognition constants
const (
	// ConfidenceScale converts a recognizer distance into a confidence score:
	// confidence = 1 - distance/ConfidenceScale
	ConfidenceScale = 100.0

	// UnknownLabel is the label reported when no identity could be assigned
	UnknownLabel = -1

	// UnknownTag is the tag name the legacy endpoint reports for no result
	UnknownTag = "Unknown"

	// DefaultPatchSize is the side (pixels) every face patch is resized to
	DefaultPatchSize = 100

	// DefaultIndexThreshold is the sample count above which the recognizer
	// searches a HNSW candidate index instead of scanning every histogram
	DefaultIndexThreshold = 2000

	// IndexCandidates is the number of HNSW candidates re-ranked exactly
	IndexCandidates = 32

	// HNSWMaxNeighbors is the M parameter of the candidate graph
	HNSWMaxNeighbors = 16
)

// Processing constants
const (
	// WorkerPoolSize is the default number of concurrent CPU-bound jobs
	WorkerPoolSize = 4

	// PrepareConcurrency is the default parallelism of training preparation
	PrepareConcurrency = 8

	// MaxFrameBytes is the maximum accepted size of one inbound frame
	MaxFrameBytes = 16 << 20
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
