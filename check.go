package extsimple

import (
	"fmt"
	"strings"

	"github.com/jmgilman/go/errors"
)

// Check verifies that the metadata structures agree with each other:
//
//   - free counts equal the number of unused byte map entries
//   - every block pointer is in range, marked in use and owned by one inode
//   - no allocated data block is unreachable
//   - pointer lists have no gaps
//   - names are unique and each inode is referenced by at most one entry
//   - every referenced inode is allocated and every allocated user inode
//     is referenced
//
// All problems found are reported together in one CodeCorrupt error.
func (img *Image) Check() error {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	freeBlocks, freeInodes := 0, 0
	for _, v := range img.maps.Blocks {
		if v == 0 {
			freeBlocks++
		}
	}
	for _, v := range img.maps.Inodes {
		if v == 0 {
			freeInodes++
		}
	}
	if uint32(freeBlocks) != img.sb.FreeBlocksCount {
		report("superblock free blocks %d, byte map has %d", img.sb.FreeBlocksCount, freeBlocks)
	}
	if uint32(freeInodes) != img.sb.FreeInodesCount {
		report("superblock free inodes %d, byte map has %d", img.sb.FreeInodesCount, freeInodes)
	}

	for b := 0; b < FirstDataBlock; b++ {
		if img.maps.Blocks[b] == 0 {
			report("metadata block %d is marked free", b)
		}
	}

	refs := make(map[uint16]string, MaxEntries)
	names := make(map[string]int, MaxEntries)
	for slot := range img.dir {
		e := &img.dir[slot]
		if !e.inUse() {
			continue
		}
		name := e.name()
		if prev, dup := names[name]; dup {
			report("name %q used by slots %d and %d", name, prev, slot)
		}
		names[name] = slot

		if other, dup := refs[e.Inode]; dup {
			report("inode %d referenced by %q and %q", e.Inode, other, name)
		}
		refs[e.Inode] = name

		if img.maps.Inodes[e.Inode] == 0 {
			report("entry %q references free inode %d", name, e.Inode)
		}
	}

	owner := make(map[uint16]int, PartitionBlocks)
	for num := range img.inodes {
		if img.maps.Inodes[num] == 0 {
			continue
		}
		if num >= firstUserInode {
			if _, ok := refs[uint16(num)]; !ok {
				report("inode %d is allocated but not referenced", num)
			}
		}

		n := &img.inodes[num]
		gap := false
		for _, b := range n.Blocks {
			if b == NullBlock {
				gap = true
				continue
			}
			if gap {
				report("inode %d has a pointer after an empty slot", num)
				gap = false
			}
			if int(b) >= PartitionBlocks {
				report("inode %d points at block %d out of range", num, b)
				continue
			}
			if int(b) < FirstDataBlock && num != RootInode {
				report("inode %d points at metadata block %d", num, b)
			}
			if img.maps.Blocks[b] == 0 {
				report("inode %d points at free block %d", num, b)
			}
			if prev, dup := owner[b]; dup {
				report("block %d shared by inodes %d and %d", b, prev, num)
			}
			owner[b] = num
		}
		if capacity := uint32(len(n.blockList())) * BlockSize; n.Size > capacity {
			report("inode %d size %d exceeds its %d bytes of blocks", num, n.Size, capacity)
		}
	}

	for b := FirstDataBlock; b < PartitionBlocks; b++ {
		if img.maps.Blocks[b] == 0 {
			continue
		}
		if _, ok := owner[uint16(b)]; !ok {
			report("block %d is allocated but not referenced", b)
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return errors.WithContext(
		errors.Newf(CodeCorrupt, "image is inconsistent: %s", strings.Join(problems, "; ")),
		"problems", len(problems))
}
