package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	extsimple "github.com/pilat/go-extsimple"
	"github.com/pilat/go-extsimple/internal/config"
	"github.com/pilat/go-extsimple/internal/console"
	"github.com/pilat/go-extsimple/internal/metrics"
	"github.com/pilat/go-extsimple/internal/seed"
	"github.com/pilat/go-extsimple/internal/storage"
)

const shutdownTimeout = 5 * time.Second

type shellCmd struct {
	image       string
	create      bool
	compress    bool
	wipe        bool
	check       bool
	metricsAddr string
}

func (c *shellCmd) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&c.image, "image", cfg.Image.Path, "image file")
	fs.BoolVar(&c.create, "create", false, "format a new image when the file does not exist")
	fs.BoolVar(&c.compress, "compress", cfg.Image.Compress, "save the image zstd compressed")
	fs.BoolVar(&c.wipe, "wipe", cfg.Image.WipeOnDelete, "zero data blocks of deleted files")
	fs.BoolVar(&c.check, "check", cfg.Image.ConsistencyCheck, "verify the image after every change")
	fs.StringVar(&c.metricsAddr, "metrics", cfg.Metrics.Address, "serve Prometheus metrics on this address")
}

func (c *shellCmd) exec(ctx context.Context, env *environment, _ []string) error {
	path, err := absPath(c.image)
	if err != nil {
		return err
	}
	logger := env.logger.WithImage(path)

	store := storage.New(env.fsys, path,
		storage.WithCompression(c.compress),
		storage.WithLogger(logger.Logger))
	m := metrics.New()
	opts := []extsimple.ImageOption{
		extsimple.WithLogger(logger.Logger),
		extsimple.WithRecorder(m),
		extsimple.WithWipeOnDelete(c.wipe),
		extsimple.WithConsistencyCheck(c.check),
	}

	img, err := store.Load(opts...)
	switch {
	case err == nil:
	case c.create && errors.GetCode(err) == errors.CodeNotFound:
		logger.Info("image not found, formatting a new one")
		img = extsimple.Format(opts...)
	default:
		return err
	}
	m.SetSpace(img.Info())

	if c.metricsAddr != "" {
		srv := serveMetrics(c.metricsAddr, m, logger.Logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	fmt.Fprintln(env.stdout, "*** Filesystem image loaded ***")
	con := console.New(img, &recordingSaver{store: store, metrics: m}, env.stdout,
		console.WithLogger(logger.Logger))
	err = con.Run(ctx, env.stdin)
	if errors.Is(err, context.Canceled) {
		// Interrupted sessions end cleanly without writing the image.
		fmt.Fprintln(env.stdout, "*** Interrupted, changes since the last save were discarded ***")
		return nil
	}
	return err
}

// recordingSaver reports every save to the metrics collectors.
type recordingSaver struct {
	store   *storage.Store
	metrics *metrics.Metrics
}

func (s *recordingSaver) Save(img *extsimple.Image) (int, error) {
	n, err := s.store.Save(img)
	s.metrics.RecordSave(n, err)
	return n, err
}

// serveMetrics starts the Prometheus listener in the background. It never
// touches the image.
func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return srv
}

type formatCmd struct {
	image    string
	seed     string
	force    bool
	compress bool
}

func (c *formatCmd) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&c.image, "image", cfg.Image.Path, "image file")
	fs.StringVar(&c.seed, "seed", "", "YAML manifest of files to create")
	fs.BoolVar(&c.force, "force", false, "overwrite an existing image")
	fs.BoolVar(&c.compress, "compress", cfg.Image.Compress, "save the image zstd compressed")
}

func (c *formatCmd) exec(_ context.Context, env *environment, _ []string) error {
	path, err := absPath(c.image)
	if err != nil {
		return err
	}
	logger := env.logger.WithImage(path)

	store := storage.New(env.fsys, path,
		storage.WithCompression(c.compress),
		storage.WithLogger(logger.Logger))

	exists, err := store.Exists()
	if err != nil {
		return err
	}
	if exists && !c.force {
		return errors.WithContext(
			errors.New(errors.CodeAlreadyExists, "image already exists, use -force to overwrite"),
			"path", path)
	}

	img := extsimple.Format(extsimple.WithLogger(logger.Logger))

	if c.seed != "" {
		seedPath, err := absPath(c.seed)
		if err != nil {
			return err
		}
		manifest, err := seed.Load(env.fsys, seedPath)
		if err != nil {
			return err
		}
		if err := manifest.Apply(img, env.fsys, filepath.Dir(seedPath)); err != nil {
			return err
		}
		logger.Info("seeded image", zap.String("manifest", seedPath), zap.Int("files", len(manifest.Files)))
	}

	if _, err := store.Save(img); err != nil {
		return err
	}

	info := img.Info()
	fmt.Fprintf(env.stdout, "formatted %s: %d files, %d free blocks, %d free inodes\n",
		path, len(img.List()), info.FreeBlocksCount, info.FreeInodesCount)
	return nil
}

type checkCmd struct {
	image string
}

func (c *checkCmd) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&c.image, "image", cfg.Image.Path, "image file")
}

func (c *checkCmd) exec(_ context.Context, env *environment, _ []string) error {
	path, err := absPath(c.image)
	if err != nil {
		return err
	}

	img, err := storage.New(env.fsys, path, storage.WithLogger(env.logger.Logger)).Load()
	if err != nil {
		return err
	}

	console.WriteInfo(env.stdout, img.Info())
	if err := img.Check(); err != nil {
		return err
	}

	fmt.Fprintln(env.stdout, "image is consistent")
	return nil
}
