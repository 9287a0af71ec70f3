// Package extsimple provides a pure Go implementation of a minimal
// single-partition filesystem image: one superblock, a pair of byte maps,
// a fixed inode table, one flat directory and a small data region.
//
// The whole image is held in memory by an Image handle. Loading and saving
// the raw bytes is left to the caller; Open decodes a buffer and Bytes
// encodes the current state back into one.
//
// Example usage:
//
//	img, err := extsimple.Open(raw)
//	if err != nil {
//		return err
//	}
//
//	if err := img.Copy("notes", "notes.bak"); err != nil {
//		return err
//	}
//	content, err := img.ReadFile("notes.bak")
package extsimple

const (
	// Block geometry
	BlockSize       = 512
	PartitionBlocks = 100
	PartitionSize   = PartitionBlocks * BlockSize
	FirstDataBlock  = 4
	DataBlocks      = PartitionBlocks - FirstDataBlock

	// Table capacities
	MaxInodes      = 24
	MaxEntries     = 20
	BlocksPerInode = 7
	NameLen        = 17 // includes the terminating NUL
	MaxNameLen     = NameLen - 1

	// Sentinels
	NullInode = 0xFFFF
	NullBlock = 0xFFFF

	// Reserved inodes
	RootInode      = 2
	firstUserInode = RootInode + 1

	// Name of the directory self-entry
	selfName = "."
)

// Metadata block numbers. Everything below FirstDataBlock is metadata.
const (
	superblockBlock = 0
	bytemapsBlock   = 1
	inodeTableBlock = 2
	directoryBlock  = 3
)

// ============================================================================
// On-disk records (byte layout must match the C tool exactly)
// ============================================================================

// superblock holds the aggregate counters of the image. It occupies the
// first 24 bytes of block 0; the rest of the block is zero padding.
type superblock struct {
	InodesCount     uint32 // 0x00
	BlocksCount     uint32 // 0x04
	FreeBlocksCount uint32 // 0x08
	FreeInodesCount uint32 // 0x0C
	FirstDataBlock  uint32 // 0x10
	BlockSize       uint32 // 0x14
}

// byteMaps holds one byte per block followed by one byte per inode.
// A non-zero byte marks the entry as in use.
type byteMaps struct {
	Blocks [PartitionBlocks]uint8 // 0x00
	Inodes [MaxInodes]uint8       // 0x64
}

// inode is one 20-byte record of the inode table. The trailing two bytes
// are the alignment padding the C compiler inserts after the pointer array.
type inode struct {
	Size    uint32                 // 0x00
	Blocks  [BlocksPerInode]uint16 // 0x04
	Padding [2]byte                // 0x12
}

// dirEntry is one 20-byte record of the directory table.
type dirEntry struct {
	Name    [NameLen]byte // 0x00: NUL terminated
	Padding byte          // 0x11
	Inode   uint16        // 0x12
}
