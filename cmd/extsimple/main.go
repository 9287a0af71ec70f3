package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"

	"github.com/pilat/go-extsimple/internal/config"
	"github.com/pilat/go-extsimple/internal/logging"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &environment{
		cfg:    config.LoadOrDefault(),
		fsys:   billy.NewLocal(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}

	if err := run(ctx, env, os.Args[1], os.Args[2:]); err != nil {
		stop()
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

// environment carries what every subcommand needs from the process.
type environment struct {
	cfg    *config.Config
	fsys   core.FS
	stdin  io.Reader
	stdout io.Writer
	logger *logging.Logger
}

// subcommand is one verb of the binary. register binds its flags before
// parsing; exec runs it with the remaining arguments.
type subcommand interface {
	register(fs *flag.FlagSet, cfg *config.Config)
	exec(ctx context.Context, env *environment, args []string) error
}

func lookup(name string) (subcommand, bool) {
	switch name {
	case "shell":
		return &shellCmd{}, true
	case "format":
		return &formatCmd{}, true
	case "check":
		return &checkCmd{}, true
	case "fixture":
		return &fixtureCmd{}, true
	default:
		return nil, false
	}
}

func run(ctx context.Context, env *environment, name string, args []string) error {
	cmd, ok := lookup(name)
	if !ok {
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	logLevel := fs.String("log-level", env.cfg.Logging.Level, "log level (debug, info, warn, error)")
	logDev := fs.Bool("log-dev", env.cfg.Logging.Development, "human readable logs")
	cmd.register(fs, env.cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if env.logger == nil {
		logger, err := logging.New(logging.Config{
			Level:       *logLevel,
			Development: *logDev,
		})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		env.logger = logger.WithSession(uuid.NewString())
		defer func() { _ = env.logger.Sync() }()
	}

	return cmd.exec(ctx, env, fs.Args())
}

func usage(w io.Writer) {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "usage: %s [shell|format|check|fixture] [flags]\n", prog)
}

// absPath resolves p against the working directory. The local backend is
// rooted at "/".
func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", p, err)
	}
	return abs, nil
}
