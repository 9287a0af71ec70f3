package extsimple

import (
	"strings"

	"github.com/jmgilman/go/errors"
)

// Error codes reported by image operations. CodeNotFound is shared with the
// platform error package so generic callers can match it without importing
// this package.
const (
	CodeNotFound                       = errors.CodeNotFound
	CodeNameExists    errors.ErrorCode = "NAME_EXISTS"
	CodeNameTooLong   errors.ErrorCode = "NAME_TOO_LONG"
	CodeInvalidName   errors.ErrorCode = "INVALID_NAME"
	CodeDirectoryFull errors.ErrorCode = "DIRECTORY_FULL"
	CodeNoFreeInodes  errors.ErrorCode = "NO_FREE_INODES"
	CodeNoFreeBlocks  errors.ErrorCode = "NO_FREE_BLOCKS"
	CodeFileTooLarge  errors.ErrorCode = "FILE_TOO_LARGE"
	CodeInvalidImage  errors.ErrorCode = "INVALID_IMAGE"
	CodeCorrupt       errors.ErrorCode = "IMAGE_CORRUPT"
)

// Applied reports whether err belongs to a mutation that was kept even
// though the call failed. This happens when WithConsistencyCheck finds a
// problem after the change was made.
func Applied(err error) bool {
	var perr errors.PlatformError
	if !errors.As(err, &perr) {
		return false
	}
	applied, _ := perr.Context()["applied"].(bool)
	return applied
}

// message returns the bare message of a platform error.
func message(err error) string {
	var perr errors.PlatformError
	if errors.As(err, &perr) {
		return perr.Message()
	}
	return err.Error()
}

func errNotFound(name string) error {
	return errors.WithContext(
		errors.Newf(CodeNotFound, "file %q not found", name),
		"name", name)
}

func errNameExists(name string) error {
	return errors.WithContext(
		errors.Newf(CodeNameExists, "file %q already exists", name),
		"name", name)
}

func errNoFreeBlocks(needed, free int) error {
	err := errors.Newf(CodeNoFreeBlocks, "need %d free blocks, %d available", needed, free)
	return errors.WithContextMap(err, map[string]interface{}{
		"needed": needed,
		"free":   free,
	})
}

// validateName checks a name against the bounded name field. The self
// entry name is reserved and NUL would truncate the stored name.
func validateName(name string) error {
	if name == "" || name == selfName || strings.IndexByte(name, 0) >= 0 {
		return errors.WithContext(
			errors.Newf(CodeInvalidName, "invalid file name %q", name),
			"name", name)
	}
	if len(name) > MaxNameLen {
		return errors.WithContext(
			errors.Newf(CodeNameTooLong, "file name %q exceeds %d bytes", name, MaxNameLen),
			"name", name)
	}
	return nil
}

func errOutOfRange(offset, length uint64) error {
	return errors.Newf(errors.CodeInvalidInput, "range %d+%d exceeds image size %d", offset, length, PartitionSize)
}
