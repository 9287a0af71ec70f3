// Package console implements the interactive command loop over an image.
//
// Commands operate on the in-memory image; the image is written back only
// by save and exit. Operation failures are printed and the session goes
// on. Storage failures end the session.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	extsimple "github.com/pilat/go-extsimple"
)

// Saver persists the image. storage.Store implements it.
type Saver interface {
	Save(img *extsimple.Image) (int, error)
}

// Console runs commands against one image.
type Console struct {
	img    *extsimple.Image
	saver  Saver
	out    io.Writer
	prompt string
	logger *zap.Logger

	commands map[string]command
}

type command struct {
	args    int
	usage   string
	handler func(c *Console, args []string) (done bool, err error)
}

// Option configures a Console.
type Option func(*Console)

// WithPrompt sets the prompt printed before each command.
func WithPrompt(prompt string) Option {
	return func(c *Console) {
		c.prompt = prompt
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Console) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a console over img that writes to out and persists through
// saver.
func New(img *extsimple.Image, saver Saver, out io.Writer, opts ...Option) *Console {
	c := &Console{
		img:    img,
		saver:  saver,
		out:    out,
		prompt: ">> ",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.commands = map[string]command{
		"info":     {args: 0, usage: "info", handler: (*Console).info},
		"bytemaps": {args: 0, usage: "bytemaps", handler: (*Console).bytemaps},
		"dir":      {args: 0, usage: "dir", handler: (*Console).dir},
		"rename":   {args: 2, usage: "rename <old> <new>", handler: (*Console).rename},
		"print":    {args: 1, usage: "print <name>", handler: (*Console).print},
		"remove":   {args: 1, usage: "remove <name>", handler: (*Console).remove},
		"copy":     {args: 2, usage: "copy <src> <dst>", handler: (*Console).copy},
		"dump":     {args: -1, usage: "dump [region | <offset> <length>]", handler: (*Console).dump},
		"check":    {args: 0, usage: "check", handler: (*Console).check},
		"save":     {args: 0, usage: "save", handler: (*Console).save},
		"exit":     {args: 0, usage: "exit", handler: (*Console).exit},
		"help":     {args: 0, usage: "help", handler: (*Console).help},
	}
	// Command names of the original tool.
	c.commands["imprimir"] = c.commands["print"]
	c.commands["borrar"] = c.commands["remove"]
	c.commands["salir"] = c.commands["exit"]

	return c
}

// Run reads commands from in until exit, end of input or cancellation. End
// of input behaves like exit and saves the image. Cancellation returns the
// context error at once, even while waiting for input, and does not save:
// changes since the last save are discarded.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	// The reader is left blocked on in after cancellation; it exits with the
	// process or when in is closed.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return c.interrupted(err)
		}

		fmt.Fprint(c.out, c.prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return c.interrupted(ctx.Err())
		case l, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return c.interrupted(err)
				}
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read command: %w", err)
				}
				fmt.Fprintln(c.out)
				_, err := c.exit(nil)
				return err
			}
			line = l
		}

		done, err := c.Execute(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (c *Console) interrupted(err error) error {
	c.logger.Warn("session interrupted, unsaved changes discarded", zap.Error(err))
	return err
}

// Execute runs one command line. It reports whether the session is over.
// Only storage failures are returned; every other failure is printed.
func (c *Console) Execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := c.commands[name]
	if !ok {
		fmt.Fprintf(c.out, "unknown command %q, type help for a list\n", fields[0])
		return false, nil
	}
	if cmd.args >= 0 && len(args) != cmd.args {
		fmt.Fprintf(c.out, "usage: %s\n", cmd.usage)
		return false, nil
	}

	c.logger.Debug("command", zap.String("name", name), zap.Strings("args", args))
	return cmd.handler(c, args)
}

// report prints an operation failure and keeps the session going. A change
// that was applied despite the failure is printed as a warning.
func (c *Console) report(err error) (bool, error) {
	if extsimple.Applied(err) {
		fmt.Fprintf(c.out, "warning: %s\n", describe(err))
		c.logger.Warn("command applied with errors", zap.Error(err))
		return false, nil
	}
	fmt.Fprintf(c.out, "error: %s\n", describe(err))
	c.logger.Debug("command failed", zap.Error(err))
	return false, nil
}

// describe turns an operation error into a short message.
func describe(err error) string {
	var perr errors.PlatformError
	if errors.As(err, &perr) {
		return perr.Message()
	}
	return err.Error()
}

func (c *Console) info(_ []string) (bool, error) {
	WriteInfo(c.out, c.img.Info())
	return false, nil
}

func (c *Console) bytemaps(_ []string) (bool, error) {
	WriteBytemaps(c.out, c.img.BlockMap(), c.img.InodeMap())
	return false, nil
}

func (c *Console) dir(_ []string) (bool, error) {
	WriteDir(c.out, c.img.List())
	return false, nil
}

func (c *Console) rename(args []string) (bool, error) {
	if err := c.img.Rename(args[0], args[1]); err != nil {
		return c.report(err)
	}
	fmt.Fprintf(c.out, "renamed %s to %s\n", args[0], args[1])
	return false, nil
}

func (c *Console) print(args []string) (bool, error) {
	content, err := c.img.ReadFile(args[0])
	if err != nil {
		return c.report(err)
	}
	fmt.Fprintf(c.out, "%s\n", content)
	return false, nil
}

func (c *Console) remove(args []string) (bool, error) {
	if err := c.img.Delete(args[0]); err != nil {
		return c.report(err)
	}
	fmt.Fprintf(c.out, "removed %s\n", args[0])
	return false, nil
}

func (c *Console) copy(args []string) (bool, error) {
	if err := c.img.Copy(args[0], args[1]); err != nil {
		return c.report(err)
	}
	fmt.Fprintf(c.out, "copied %s to %s\n", args[0], args[1])
	return false, nil
}

func (c *Console) dump(args []string) (bool, error) {
	var offset, length uint64
	var err error

	switch len(args) {
	case 0:
		offset, length, err = c.img.Layout().Region(extsimple.RegionDirectory)
	case 1:
		offset, length, err = c.img.Layout().Region(args[0])
	case 2:
		offset, err = strconv.ParseUint(args[0], 0, 64)
		if err == nil {
			length, err = strconv.ParseUint(args[1], 0, 64)
		}
	default:
		fmt.Fprintf(c.out, "usage: %s\n", c.commands["dump"].usage)
		return false, nil
	}
	if err != nil {
		return c.report(err)
	}

	data, err := c.img.Region(offset, length)
	if err != nil {
		return c.report(err)
	}
	DumpHex(c.out, data, offset)
	return false, nil
}

func (c *Console) check(_ []string) (bool, error) {
	if err := c.img.Check(); err != nil {
		return c.report(err)
	}
	fmt.Fprintln(c.out, "image is consistent")
	return false, nil
}

func (c *Console) save(_ []string) (bool, error) {
	n, err := c.saver.Save(c.img)
	if err != nil {
		return true, err
	}
	fmt.Fprintf(c.out, "saved %d bytes\n", n)
	return false, nil
}

func (c *Console) exit(_ []string) (bool, error) {
	if _, err := c.save(nil); err != nil {
		return true, err
	}
	return true, nil
}

func (c *Console) help(_ []string) (bool, error) {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(c.out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-9s %s\n", name, c.commands[name].usage)
	}
	return false, nil
}
