package extsimple

import (
	"go.uber.org/zap"
)

// ImageOption is a functional option for configuring an Image.
type ImageOption func(*Image)

// Recorder receives the outcome of every operation together with the
// counters as they stand afterwards.
type Recorder interface {
	Observe(op string, err error, info Info)
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(logger *zap.Logger) ImageOption {
	return func(img *Image) {
		if logger != nil {
			img.logger = logger
		}
	}
}

// WithRecorder attaches an operation recorder.
func WithRecorder(rec Recorder) ImageOption {
	return func(img *Image) {
		img.recorder = rec
	}
}

// WithWipeOnDelete zeroes the data blocks of deleted files. By default only
// metadata is released and block contents stay in place.
func WithWipeOnDelete(wipe bool) ImageOption {
	return func(img *Image) {
		img.wipeOnDelete = wipe
	}
}

// WithConsistencyCheck runs Check after every mutating operation.
func WithConsistencyCheck(check bool) ImageOption {
	return func(img *Image) {
		img.checkAfterWrite = check
	}
}
