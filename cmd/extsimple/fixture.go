package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"

	"github.com/jmgilman/go/errors"

	extsimple "github.com/pilat/go-extsimple"
	"github.com/pilat/go-extsimple/internal/config"
	"github.com/pilat/go-extsimple/internal/storage"
)

// expectedFingerprint is the sha256 of "size:filehash" for the reference
// image. It changes whenever the on-disk encoding or the allocator does.
const expectedFingerprint = "5f3eeba8d9003fa272c982db86a743f5813c71b3804461957fa851a42bbe9775"

type fixtureCmd struct {
	out    string
	verify bool
}

func (c *fixtureCmd) register(fs *flag.FlagSet, _ *config.Config) {
	fs.StringVar(&c.out, "out", "", "also write the reference image to this file")
	fs.BoolVar(&c.verify, "verify", false, "fail when the fingerprint differs from the expected one")
}

func (c *fixtureCmd) exec(_ context.Context, env *environment, _ []string) error {
	img, err := buildFixture()
	if err != nil {
		return fmt.Errorf("fixture build failed: %w", err)
	}

	raw, err := img.Bytes()
	if err != nil {
		return err
	}
	fileHash, fingerprint := fixtureFingerprint(raw)

	if c.out != "" {
		path, err := absPath(c.out)
		if err != nil {
			return err
		}
		if _, err := storage.New(env.fsys, path, storage.WithLogger(env.logger.Logger)).Save(img); err != nil {
			return err
		}
	}

	fmt.Fprintf(env.stdout, "fixture size: %d bytes\n", len(raw))
	fmt.Fprintf(env.stdout, "fixture file sha256: %s\n", fileHash)
	fmt.Fprintf(env.stdout, "fixture fingerprint (sha256 of \"size:filehash\"): %s\n", fingerprint)

	if c.verify && fingerprint != expectedFingerprint {
		return errors.WithContextMap(
			errors.New(extsimple.CodeCorrupt, "fixture does not match expected fingerprint"),
			map[string]interface{}{"expected": expectedFingerprint, "actual": fingerprint})
	}
	return nil
}

// buildFixture exercises every mutating operation on a fresh image in a
// fixed order, so the result is byte-for-byte reproducible.
func buildFixture() (*extsimple.Image, error) {
	img := extsimple.Format()

	pattern := make([]byte, extsimple.BlocksPerInode*extsimple.BlockSize)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}

	files := []struct {
		name    string
		content []byte
	}{
		{"hello", []byte("hello from extsimple\n")},
		{"notes.txt", bytes.Repeat([]byte("extsimple fixture line\n"), 30)},
		{"pattern", pattern},
		{"empty", nil},
	}
	for _, f := range files {
		if err := img.CreateFile(f.name, f.content); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", f.name, err)
		}
	}

	if err := img.Copy("hello", "hello.bak"); err != nil {
		return nil, err
	}
	if err := img.Delete("empty"); err != nil {
		return nil, err
	}
	if err := img.Rename("notes.txt", "notes"); err != nil {
		return nil, err
	}

	return img, img.Check()
}

func fixtureFingerprint(raw []byte) (fileHash, fingerprint string) {
	sum := sha256.Sum256(raw)
	fileHash = hex.EncodeToString(sum[:])
	fp := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", len(raw), fileHash)))
	return fileHash, hex.EncodeToString(fp[:])
}
