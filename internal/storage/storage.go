// Package storage loads and saves whole extsimple images through a
// core.FS backend, optionally framed with zstd.
package storage

import (
	"bytes"
	"io"
	"io/fs"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/fs/core"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	extsimple "github.com/pilat/go-extsimple"
)

// zstdMagic starts every zstd frame. Loads detect compression from it, so
// plain and compressed images can be mixed freely.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

const filePerm fs.FileMode = 0o644

// Store reads and writes one image file.
type Store struct {
	fsys     core.FS
	path     string
	compress bool
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCompression enables zstd framing on Save.
func WithCompression(enabled bool) Option {
	return func(s *Store) {
		s.compress = enabled
	}
}

// WithLogger sets the logger used for load and save events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Store for the image at path inside fsys.
func New(fsys core.FS, path string, opts ...Option) *Store {
	s := &Store{
		fsys:   fsys,
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the image path inside the backend.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the image file is present.
func (s *Store) Exists() (bool, error) {
	ok, err := s.fsys.Exists(s.path)
	if err != nil {
		return false, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to stat image"),
			"path", s.path)
	}
	return ok, nil
}

// Load reads the image file and decodes it. Image options are passed
// through to extsimple.Open.
func (s *Store) Load(opts ...extsimple.ImageOption) (*extsimple.Image, error) {
	raw, err := s.fsys.ReadFile(s.path)
	if err != nil {
		code := errors.CodeInternal
		if errors.Is(err, core.ErrNotExist) {
			code = errors.CodeNotFound
		}
		return nil, errors.WithContext(
			errors.Wrap(err, code, "failed to read image"),
			"path", s.path)
	}

	compressed := IsCompressed(raw)
	if compressed {
		raw, err = decompress(raw)
		if err != nil {
			return nil, errors.WithContext(
				errors.Wrap(err, extsimple.CodeInvalidImage, "failed to decompress image"),
				"path", s.path)
		}
	}

	img, err := extsimple.Open(raw, opts...)
	if err != nil {
		return nil, errors.WithContext(err, "path", s.path)
	}

	s.logger.Info("loaded image",
		zap.String("path", s.path),
		zap.Bool("compressed", compressed))

	return img, nil
}

// Save encodes the image and writes it over the file. It returns the
// number of bytes written.
func (s *Store) Save(img *extsimple.Image) (int, error) {
	raw, err := img.Bytes()
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "failed to encode image")
	}

	if s.compress {
		raw, err = compress(raw)
		if err != nil {
			return 0, errors.Wrap(err, errors.CodeInternal, "failed to compress image")
		}
	}

	if err := s.fsys.WriteFile(s.path, raw, filePerm); err != nil {
		return 0, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to write image"),
			"path", s.path)
	}

	s.logger.Info("saved image",
		zap.String("path", s.path),
		zap.Int("bytes", len(raw)),
		zap.Bool("compressed", s.compress))

	return len(raw), nil
}

// IsCompressed reports whether raw starts with a zstd frame.
func IsCompressed(raw []byte) bool {
	return bytes.HasPrefix(raw, zstdMagic)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// One byte past a full image is enough to reject oversized payloads.
	return io.ReadAll(io.LimitReader(r, extsimple.PartitionSize+1))
}
