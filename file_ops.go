package extsimple

import (
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// Operation names reported to the Recorder.
const (
	OpRename = "rename"
	OpDelete = "delete"
	OpCopy   = "copy"
	OpRead   = "read"
	OpCreate = "create"
)

// Rename changes the name of an existing file in place. Nothing but the
// name field is touched. Renaming a file to its own name is reported as a
// collision, because the new name already resolves.
func (img *Image) Rename(oldName, newName string) error {
	return img.finish(OpRename, true, img.rename(oldName, newName))
}

func (img *Image) rename(oldName, newName string) error {
	slot, ok := img.Find(oldName)
	if !ok {
		return errNotFound(oldName)
	}
	if err := validateName(newName); err != nil {
		return err
	}
	if _, exists := img.Find(newName); exists {
		return errNameExists(newName)
	}

	img.dir[slot].setName(newName)

	img.logger.Debug("renamed file",
		zap.String("from", oldName),
		zap.String("to", newName),
		zap.Int("slot", slot))

	return nil
}

// Delete removes a file: its blocks are released first, then its inode,
// then its directory entry. Block contents are left in place unless the
// image was opened with WithWipeOnDelete.
func (img *Image) Delete(name string) error {
	return img.finish(OpDelete, true, img.delete(name))
}

func (img *Image) delete(name string) error {
	slot, ok := img.Find(name)
	if !ok {
		return errNotFound(name)
	}

	inodeNum := img.dir[slot].Inode
	n := &img.inodes[inodeNum]
	if err := img.checkOwned(inodeNum, n); err != nil {
		return err
	}

	freed := n.blockList()
	for i, b := range n.Blocks {
		if b == NullBlock {
			continue
		}
		if err := img.freeBlock(b); err != nil {
			return err
		}
		n.Blocks[i] = NullBlock
	}
	n.Size = 0

	if err := img.freeInode(inodeNum); err != nil {
		return err
	}

	img.dir[slot].reset()

	img.logger.Debug("deleted file",
		zap.String("name", name),
		zap.Uint16("inode", inodeNum),
		zap.Uint16s("blocks", freed))

	return nil
}

// checkOwned verifies that an inode and every block it points at are
// marked in use, so a release cannot fail half way through.
func (img *Image) checkOwned(inodeNum uint16, n *inode) error {
	if img.maps.Inodes[inodeNum] == 0 {
		return errors.WithContext(
			errors.Newf(CodeCorrupt, "inode %d is referenced but not allocated", inodeNum),
			"inode", inodeNum)
	}
	seen := make(map[uint16]bool, BlocksPerInode)
	for _, b := range n.Blocks {
		if b == NullBlock {
			continue
		}
		if int(b) < FirstDataBlock || img.maps.Blocks[b] == 0 || seen[b] {
			return errors.WithContext(
				errors.Newf(CodeCorrupt, "inode %d points at block %d which is not an allocated data block", inodeNum, b),
				"inode", inodeNum)
		}
		seen[b] = true
	}
	return nil
}

// Copy duplicates src under the name dst with its own inode and blocks.
// Every precondition is checked before anything is allocated, so a failed
// copy leaves the image exactly as it was.
func (img *Image) Copy(src, dst string) error {
	return img.finish(OpCopy, true, img.copy(src, dst))
}

func (img *Image) copy(src, dst string) error {
	srcSlot, ok := img.Find(src)
	if !ok {
		return errNotFound(src)
	}
	if err := validateName(dst); err != nil {
		return err
	}
	if _, exists := img.Find(dst); exists {
		return errNameExists(dst)
	}

	slot, ok := img.freeSlot()
	if !ok {
		return errors.New(CodeDirectoryFull, "no free directory entry")
	}
	inodeNum, ok := img.nextFreeInode()
	if !ok {
		return errors.New(CodeNoFreeInodes, "no free inodes")
	}

	srcInode := img.inodes[img.dir[srcSlot].Inode]
	needed := len(srcInode.blockList())
	if free := img.freeBlockCount(); free < needed {
		return errNoFreeBlocks(needed, free)
	}
	if err := img.reserveCheck(needed); err != nil {
		return err
	}

	blocks, err := img.allocateBlocks(needed)
	if err != nil {
		return err
	}

	dstInode := &img.inodes[inodeNum]
	dstInode.reset()
	dstInode.Size = srcInode.Size

	next := 0
	for i, b := range srcInode.Blocks {
		if b == NullBlock {
			continue
		}
		nb := blocks[next]
		next++
		img.blocks[nb] = img.blocks[b]
		dstInode.Blocks[i] = nb
	}

	if err := img.markInodeUsed(inodeNum); err != nil {
		dstInode.reset()
		img.releaseBlocks(blocks)
		return err
	}

	img.dir[slot].setName(dst)
	img.dir[slot].Inode = inodeNum

	img.logger.Debug("copied file",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Uint16("inode", inodeNum),
		zap.Uint16s("blocks", blocks))

	return nil
}

// ReadFile returns the content of a file: its blocks in slot order,
// trimmed to the stored size.
func (img *Image) ReadFile(name string) ([]byte, error) {
	content, err := img.readFile(name)
	return content, img.finish(OpRead, false, err)
}

func (img *Image) readFile(name string) ([]byte, error) {
	slot, ok := img.Find(name)
	if !ok {
		return nil, errNotFound(name)
	}

	n := &img.inodes[img.dir[slot].Inode]
	remaining := int(n.Size)
	content := make([]byte, 0, remaining)
	for _, b := range n.Blocks {
		if b == NullBlock || remaining == 0 {
			continue
		}
		chunk := min(remaining, BlockSize)
		content = append(content, img.blocks[b][:chunk]...)
		remaining -= chunk
	}

	return content, nil
}

// CreateFile stores content as a new file. Allocation follows the same
// first-fit policy as Copy and is equally all-or-nothing.
func (img *Image) CreateFile(name string, content []byte) error {
	return img.finish(OpCreate, true, img.createFile(name, content))
}

func (img *Image) createFile(name string, content []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, exists := img.Find(name); exists {
		return errNameExists(name)
	}
	if len(content) > BlocksPerInode*BlockSize {
		return errors.WithContext(
			errors.Newf(CodeFileTooLarge, "file %q is %d bytes, limit is %d", name, len(content), BlocksPerInode*BlockSize),
			"name", name)
	}

	slot, ok := img.freeSlot()
	if !ok {
		return errors.New(CodeDirectoryFull, "no free directory entry")
	}
	inodeNum, ok := img.nextFreeInode()
	if !ok {
		return errors.New(CodeNoFreeInodes, "no free inodes")
	}

	needed := (len(content) + BlockSize - 1) / BlockSize
	if free := img.freeBlockCount(); free < needed {
		return errNoFreeBlocks(needed, free)
	}
	if err := img.reserveCheck(needed); err != nil {
		return err
	}

	blocks, err := img.allocateBlocks(needed)
	if err != nil {
		return err
	}

	n := &img.inodes[inodeNum]
	n.reset()
	n.Size = uint32(len(content))
	for i, b := range blocks {
		img.blocks[b] = [BlockSize]byte{}
		copy(img.blocks[b][:], content[i*BlockSize:])
		n.Blocks[i] = b
	}

	if err := img.markInodeUsed(inodeNum); err != nil {
		n.reset()
		img.releaseBlocks(blocks)
		return err
	}

	img.dir[slot].setName(name)
	img.dir[slot].Inode = inodeNum

	img.logger.Debug("created file",
		zap.String("name", name),
		zap.Uint16("inode", inodeNum),
		zap.Int("size", len(content)),
		zap.Uint16s("blocks", blocks))

	return nil
}
