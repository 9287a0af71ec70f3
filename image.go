package extsimple

import (
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// Image is the in-memory handle over one filesystem image. It owns the
// superblock, both byte maps, the inode table, the directory table and
// every block of the partition. Operations either apply completely or
// leave the image untouched.
//
// An Image is not safe for concurrent use.
type Image struct {
	layout Layout

	sb     superblock
	maps   byteMaps
	inodes [MaxInodes]inode
	dir    [MaxEntries]dirEntry
	blocks [PartitionBlocks][BlockSize]byte

	logger          *zap.Logger
	recorder        Recorder
	wipeOnDelete    bool
	checkAfterWrite bool
}

// Info is a snapshot of the superblock counters.
type Info struct {
	InodesCount     uint32
	BlocksCount     uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	BlockSize       uint32
}

func newImage(opts []ImageOption) *Image {
	img := &Image{
		layout: DefaultLayout(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(img)
	}
	return img
}

// Format creates a fresh, empty image. Metadata blocks and inodes 0-2 are
// reserved, and the directory holds only the self entry "." backed by
// RootInode, which points at the directory block.
func Format(opts ...ImageOption) *Image {
	img := newImage(opts)

	img.sb = superblock{
		InodesCount:     MaxInodes,
		BlocksCount:     PartitionBlocks,
		FreeBlocksCount: PartitionBlocks,
		FreeInodesCount: MaxInodes,
		FirstDataBlock:  FirstDataBlock,
		BlockSize:       BlockSize,
	}

	for b := 0; b < FirstDataBlock; b++ {
		img.maps.Blocks[b] = 1
		img.sb.FreeBlocksCount--
	}
	for i := 0; i < firstUserInode; i++ {
		img.maps.Inodes[i] = 1
		img.sb.FreeInodesCount--
	}

	for i := range img.inodes {
		img.inodes[i].reset()
	}
	for i := range img.dir {
		img.dir[i].reset()
	}

	img.inodes[RootInode].Size = BlockSize
	img.inodes[RootInode].Blocks[0] = directoryBlock
	img.dir[0].setName(selfName)
	img.dir[0].Inode = RootInode

	img.logger.Debug("formatted image",
		zap.Uint32("free_blocks", img.sb.FreeBlocksCount),
		zap.Uint32("free_inodes", img.sb.FreeInodesCount))

	return img
}

// Open decodes a full image buffer. The buffer is copied; later changes to
// it do not affect the Image.
func Open(buf []byte, opts ...ImageOption) (*Image, error) {
	img := newImage(opts)
	if err := decodeImage(buf, img); err != nil {
		return nil, err
	}

	img.logger.Debug("opened image",
		zap.Uint32("free_blocks", img.sb.FreeBlocksCount),
		zap.Uint32("free_inodes", img.sb.FreeInodesCount))

	return img, nil
}

// Bytes encodes the current state into a new full image buffer.
func (img *Image) Bytes() ([]byte, error) {
	return encodeImage(img)
}

// Layout returns the region layout of the image.
func (img *Image) Layout() Layout {
	return img.layout
}

// Info returns the superblock counters.
func (img *Image) Info() Info {
	return Info{
		InodesCount:     img.sb.InodesCount,
		BlocksCount:     img.sb.BlocksCount,
		FreeBlocksCount: img.sb.FreeBlocksCount,
		FreeInodesCount: img.sb.FreeInodesCount,
		FirstDataBlock:  img.sb.FirstDataBlock,
		BlockSize:       img.sb.BlockSize,
	}
}

// BlockMap returns the in-use state of every block, metadata included.
func (img *Image) BlockMap() []bool {
	m := make([]bool, PartitionBlocks)
	for i, v := range img.maps.Blocks {
		m[i] = v != 0
	}
	return m
}

// InodeMap returns the in-use state of every inode.
func (img *Image) InodeMap() []bool {
	m := make([]bool, MaxInodes)
	for i, v := range img.maps.Inodes {
		m[i] = v != 0
	}
	return m
}

// Region returns a copy of the encoded bytes in [offset, offset+length).
func (img *Image) Region(offset, length uint64) ([]byte, error) {
	buf, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	if offset > uint64(len(buf)) || length > uint64(len(buf))-offset {
		return nil, errOutOfRange(offset, length)
	}
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, nil
}

// finish reports the outcome of an operation to the recorder and, when
// enabled, verifies the image after a successful mutation. A mutation that
// fails verification stays applied; the returned error says so and Applied
// reports true for it.
func (img *Image) finish(op string, mutating bool, err error) error {
	if err == nil && mutating && img.checkAfterWrite {
		if cerr := img.Check(); cerr != nil {
			err = errors.WithContextMap(
				errors.Newf(CodeCorrupt, "%s was applied but the image failed its consistency check: %s", op, message(cerr)),
				map[string]interface{}{
					"op":      op,
					"applied": true,
				})
		}
	}
	if img.recorder != nil {
		img.recorder.Observe(op, err, img.Info())
	}
	return err
}
