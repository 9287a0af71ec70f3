package extsimple

import (
	"bytes"
)

// reset returns an inode to its unallocated form: size zero and every
// pointer slot set to the sentinel.
func (n *inode) reset() {
	n.Size = 0
	for i := range n.Blocks {
		n.Blocks[i] = NullBlock
	}
}

// blockList returns the non-sentinel pointers in slot order.
func (n *inode) blockList() []uint16 {
	blocks := make([]uint16, 0, BlocksPerInode)
	for _, b := range n.Blocks {
		if b != NullBlock {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// inUse reports whether the entry references an inode. Name bytes of an
// unused entry are meaningless.
func (e *dirEntry) inUse() bool {
	return e.Inode != NullInode
}

// name returns the stored name up to the first NUL.
func (e *dirEntry) name() string {
	if i := bytes.IndexByte(e.Name[:], 0); i >= 0 {
		return string(e.Name[:i])
	}
	return string(e.Name[:])
}

// setName stores name NUL padded. Callers validate the length first.
func (e *dirEntry) setName(name string) {
	clear(e.Name[:])
	copy(e.Name[:MaxNameLen], name)
}

// reset clears the name and the inode reference.
func (e *dirEntry) reset() {
	clear(e.Name[:])
	e.Inode = NullInode
}

// isSelf reports whether the entry is the directory self-reference.
func (e *dirEntry) isSelf() bool {
	return e.inUse() && e.name() == selfName
}
