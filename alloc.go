package extsimple

import (
	"github.com/jmgilman/go/errors"
)

// Free counts in the superblock are only ever changed by the four
// primitives below, so they cannot drift from the byte maps.

// nextFreeBlock returns the lowest free data block (first fit).
func (img *Image) nextFreeBlock() (uint16, bool) {
	for b := FirstDataBlock; b < PartitionBlocks; b++ {
		if img.maps.Blocks[b] == 0 {
			return uint16(b), true
		}
	}
	return NullBlock, false
}

// nextFreeInode returns the lowest free inode number (first fit).
func (img *Image) nextFreeInode() (uint16, bool) {
	for i := 0; i < MaxInodes; i++ {
		if img.maps.Inodes[i] == 0 {
			return uint16(i), true
		}
	}
	return NullInode, false
}

// markBlockUsed sets a block's map byte and takes it from the free count.
func (img *Image) markBlockUsed(blockNum uint16) error {
	if int(blockNum) < FirstDataBlock || int(blockNum) >= PartitionBlocks {
		return errors.Newf(CodeCorrupt, "block %d is outside the data region", blockNum)
	}
	if img.maps.Blocks[blockNum] != 0 {
		return errors.Newf(CodeCorrupt, "block %d is already in use", blockNum)
	}
	if img.sb.FreeBlocksCount == 0 {
		return errors.Newf(CodeCorrupt, "superblock has no free blocks but block %d is free in the byte map", blockNum)
	}

	img.maps.Blocks[blockNum] = 1
	img.sb.FreeBlocksCount--

	return nil
}

// freeBlock clears a block's map byte and returns it to the free count.
// The block contents are zeroed only when wipe-on-delete is enabled.
func (img *Image) freeBlock(blockNum uint16) error {
	if int(blockNum) < FirstDataBlock || int(blockNum) >= PartitionBlocks {
		return errors.Newf(CodeCorrupt, "block %d is outside the data region", blockNum)
	}
	if img.maps.Blocks[blockNum] == 0 {
		return errors.Newf(CodeCorrupt, "block %d is already free", blockNum)
	}

	img.maps.Blocks[blockNum] = 0
	img.sb.FreeBlocksCount++

	if img.wipeOnDelete {
		clear(img.blocks[blockNum][:])
	}

	return nil
}

// markInodeUsed sets an inode's map byte and takes it from the free count.
func (img *Image) markInodeUsed(inodeNum uint16) error {
	if int(inodeNum) >= MaxInodes {
		return errors.Newf(CodeCorrupt, "inode %d out of range", inodeNum)
	}
	if img.maps.Inodes[inodeNum] != 0 {
		return errors.Newf(CodeCorrupt, "inode %d is already in use", inodeNum)
	}
	if img.sb.FreeInodesCount == 0 {
		return errors.Newf(CodeCorrupt, "superblock has no free inodes but inode %d is free in the byte map", inodeNum)
	}

	img.maps.Inodes[inodeNum] = 1
	img.sb.FreeInodesCount--

	return nil
}

// freeInode clears an inode's map byte and returns it to the free count.
func (img *Image) freeInode(inodeNum uint16) error {
	if int(inodeNum) >= MaxInodes {
		return errors.Newf(CodeCorrupt, "inode %d out of range", inodeNum)
	}
	if img.maps.Inodes[inodeNum] == 0 {
		return errors.Newf(CodeCorrupt, "inode %d is already free", inodeNum)
	}

	img.maps.Inodes[inodeNum] = 0
	img.sb.FreeInodesCount++

	return nil
}

// allocateBlocks takes n data blocks, re-scanning first fit for each one.
// If the region runs out part way, every block taken so far is released
// before the error is returned.
func (img *Image) allocateBlocks(n int) ([]uint16, error) {
	if n == 0 {
		return nil, nil
	}

	blocks := make([]uint16, 0, n)
	for len(blocks) < n {
		b, ok := img.nextFreeBlock()
		if !ok {
			img.releaseBlocks(blocks)
			return nil, errNoFreeBlocks(n, len(blocks))
		}
		if err := img.markBlockUsed(b); err != nil {
			img.releaseBlocks(blocks)
			return nil, err
		}
		blocks = append(blocks, b)
	}

	return blocks, nil
}

// releaseBlocks undoes allocateBlocks without touching block contents.
func (img *Image) releaseBlocks(blocks []uint16) {
	for _, b := range blocks {
		img.maps.Blocks[b] = 0
		img.sb.FreeBlocksCount++
	}
}

// reserveCheck confirms the superblock can account for one more inode and
// n more blocks. A superblock that disagrees with its byte maps is reported
// before anything is changed.
func (img *Image) reserveCheck(n int) error {
	if img.sb.FreeInodesCount == 0 {
		return errors.New(CodeCorrupt, "superblock has no free inodes left to allocate")
	}
	if uint64(img.sb.FreeBlocksCount) < uint64(n) {
		err := errors.Newf(CodeCorrupt, "superblock has %d free blocks, %d needed", img.sb.FreeBlocksCount, n)
		return errors.WithContextMap(err, map[string]interface{}{
			"needed":          n,
			"superblock_free": img.sb.FreeBlocksCount,
			"bytemap_free":    img.freeBlockCount(),
		})
	}
	return nil
}

// freeBlockCount counts unused data blocks straight from the byte map.
func (img *Image) freeBlockCount() int {
	n := 0
	for b := FirstDataBlock; b < PartitionBlocks; b++ {
		if img.maps.Blocks[b] == 0 {
			n++
		}
	}
	return n
}
