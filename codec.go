package extsimple

import (
	"encoding/binary"

	"github.com/jmgilman/go/errors"
)

// record is one typed metadata structure and its place in the image.
type record struct {
	name   string
	offset uint64
	data   any
}

func (img *Image) records() []record {
	return []record{
		{"superblock", img.layout.SuperblockOffset, &img.sb},
		{"bytemaps", img.layout.BytemapsOffset, &img.maps},
		{"inode table", img.layout.InodeTableOffset, &img.inodes},
		{"directory", img.layout.DirectoryOffset, &img.dir},
	}
}

// decodeImage parses a full image buffer into its typed records. Only the
// structure is validated here: record geometry and index ranges. Semantic
// invariants are left to Check.
func decodeImage(buf []byte, img *Image) error {
	if len(buf) != PartitionSize {
		return errors.Newf(CodeInvalidImage, "image must be %d bytes, got %d", PartitionSize, len(buf))
	}

	for i := range img.blocks {
		copy(img.blocks[i][:], buf[i*BlockSize:(i+1)*BlockSize])
	}

	for _, r := range img.records() {
		if _, err := binary.Decode(buf[r.offset:], binary.LittleEndian, r.data); err != nil {
			return errors.Wrapf(err, CodeInvalidImage, "failed to decode %s", r.name)
		}
	}

	if err := validateGeometry(&img.sb); err != nil {
		return err
	}

	return validateReferences(img)
}

// encodeImage serializes the records back over the raw blocks. Padding
// bytes inside the metadata blocks are preserved as loaded.
func encodeImage(img *Image) ([]byte, error) {
	buf := make([]byte, PartitionSize)
	for i := range img.blocks {
		copy(buf[i*BlockSize:], img.blocks[i][:])
	}

	for _, r := range img.records() {
		if _, err := binary.Encode(buf[r.offset:], binary.LittleEndian, r.data); err != nil {
			return nil, errors.Wrapf(err, errors.CodeInternal, "failed to encode %s", r.name)
		}
	}

	return buf, nil
}

func validateGeometry(sb *superblock) error {
	checks := []struct {
		field string
		got   uint32
		want  uint32
	}{
		{"inodes count", sb.InodesCount, MaxInodes},
		{"blocks count", sb.BlocksCount, PartitionBlocks},
		{"first data block", sb.FirstDataBlock, FirstDataBlock},
		{"block size", sb.BlockSize, BlockSize},
	}
	for _, c := range checks {
		if c.got != c.want {
			return errors.WithContext(
				errors.Newf(CodeInvalidImage, "unsupported %s: %d (expected %d)", c.field, c.got, c.want),
				"field", c.field)
		}
	}

	if sb.FreeBlocksCount > PartitionBlocks || sb.FreeInodesCount > MaxInodes {
		return errors.Newf(CodeInvalidImage, "free counts out of range: blocks=%d inodes=%d",
			sb.FreeBlocksCount, sb.FreeInodesCount)
	}

	return nil
}

// validateReferences makes sure every index reachable from an in-use entry
// or inode is inside its table, so accessors never see a wild number.
func validateReferences(img *Image) error {
	for slot, e := range img.dir {
		if e.Inode != NullInode && int(e.Inode) >= MaxInodes {
			return errors.Newf(CodeInvalidImage, "directory entry %d references inode %d out of range", slot, e.Inode)
		}
	}

	referenced := make(map[int]bool, MaxEntries)
	for _, e := range img.dir {
		if e.Inode != NullInode {
			referenced[int(e.Inode)] = true
		}
	}

	for num := range img.inodes {
		if img.maps.Inodes[num] == 0 && !referenced[num] {
			continue
		}
		for _, b := range img.inodes[num].Blocks {
			if b != NullBlock && int(b) >= PartitionBlocks {
				return errors.Newf(CodeInvalidImage, "inode %d references block %d out of range", num, b)
			}
		}
	}

	return nil
}
