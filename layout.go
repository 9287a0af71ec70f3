package extsimple

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

// Layout describes where each metadata region lives inside the image.
// The geometry is fixed by the format constants; Layout exists so callers
// such as hex dumps can address regions by name instead of by arithmetic.
type Layout struct {
	BlockSize      uint32
	TotalBlocks    uint32
	FirstDataBlock uint32

	SuperblockOffset uint64
	BytemapsOffset   uint64
	InodeTableOffset uint64
	DirectoryOffset  uint64
	DataOffset       uint64
}

// Region names accepted by Layout.Region.
const (
	RegionSuperblock = "superblock"
	RegionBytemaps   = "bytemaps"
	RegionInodes     = "inodes"
	RegionDirectory  = "directory"
	RegionData       = "data"
)

// DefaultLayout returns the layout of the image format.
func DefaultLayout() Layout {
	l := Layout{
		BlockSize:      BlockSize,
		TotalBlocks:    PartitionBlocks,
		FirstDataBlock: FirstDataBlock,
	}

	l.SuperblockOffset = l.BlockOffset(superblockBlock)
	l.BytemapsOffset = l.BlockOffset(bytemapsBlock)
	l.InodeTableOffset = l.BlockOffset(inodeTableBlock)
	l.DirectoryOffset = l.BlockOffset(directoryBlock)
	l.DataOffset = l.BlockOffset(FirstDataBlock)

	return l
}

// BlockOffset returns the absolute byte offset of a block number.
func (l Layout) BlockOffset(blockNum uint32) uint64 {
	return uint64(blockNum) * uint64(l.BlockSize)
}

// Size returns the total image size in bytes.
func (l Layout) Size() uint64 {
	return uint64(l.TotalBlocks) * uint64(l.BlockSize)
}

// Region returns the byte offset and length of a named metadata region.
// The data region spans every block from FirstDataBlock to the end.
func (l Layout) Region(name string) (offset, length uint64, err error) {
	switch name {
	case RegionSuperblock:
		return l.SuperblockOffset, uint64(l.BlockSize), nil
	case RegionBytemaps:
		return l.BytemapsOffset, uint64(l.BlockSize), nil
	case RegionInodes:
		return l.InodeTableOffset, uint64(l.BlockSize), nil
	case RegionDirectory:
		return l.DirectoryOffset, uint64(l.BlockSize), nil
	case RegionData:
		return l.DataOffset, l.Size() - l.DataOffset, nil
	default:
		return 0, 0, errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "unknown region %q", name),
			"region", name)
	}
}

// String returns a human-readable description of the layout.
func (l Layout) String() string {
	return fmt.Sprintf(`Image Layout:
  Block size: %d bytes
  Total blocks: %d
  Superblock: offset=%d
  Bytemaps: offset=%d
  Inode table: offset=%d (%d inodes)
  Directory: offset=%d (%d entries)
  Data: offset=%d (blocks %d-%d)`,
		l.BlockSize,
		l.TotalBlocks,
		l.SuperblockOffset,
		l.BytemapsOffset,
		l.InodeTableOffset, MaxInodes,
		l.DirectoryOffset, MaxEntries,
		l.DataOffset, l.FirstDataBlock, l.TotalBlocks-1)
}
