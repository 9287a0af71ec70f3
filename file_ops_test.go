package extsimple_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	extsimple "github.com/pilat/go-extsimple"
)

func TestRename(t *testing.T) {
	testCases := []struct {
		name     string
		from     string
		to       string
		wantCode errors.ErrorCode
	}{
		{name: "simple rename", from: "A", to: "C"},
		{name: "max length name", from: "A", to: "abcdefghijklmnop"},
		{name: "missing source", from: "Z", to: "C", wantCode: extsimple.CodeNotFound},
		{name: "destination exists", from: "A", to: "B", wantCode: extsimple.CodeNameExists},
		{name: "rename to itself", from: "A", to: "A", wantCode: extsimple.CodeNameExists},
		{name: "name too long", from: "A", to: "abcdefghijklmnopq", wantCode: extsimple.CodeNameTooLong},
		{name: "empty name", from: "A", to: "", wantCode: extsimple.CodeInvalidName},
		{name: "self entry name", from: "A", to: ".", wantCode: extsimple.CodeInvalidName},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img := newTestImage(t, map[string][]byte{
				"A": []byte("content of A"),
				"B": []byte("content of B"),
			}, "A", "B")
			before := snapshot(t, img)
			slot, _ := img.Find(tc.from)

			err := img.Rename(tc.from, tc.to)
			if tc.wantCode != "" {
				requireCode(t, err, tc.wantCode)
				assert.Equal(t, before, snapshot(t, img), "failed rename must not change the image")
				return
			}

			require.NoError(t, err)

			_, ok := img.Find(tc.from)
			assert.False(t, ok)
			newSlot, ok := img.Find(tc.to)
			assert.True(t, ok)
			assert.Equal(t, slot, newSlot, "rename is in place")

			content, err := img.ReadFile(tc.to)
			require.NoError(t, err)
			assert.Equal(t, "content of A", string(content))

			after := img.Info()
			assert.Equal(t, extsimple.Format().Info().FreeInodesCount-2, after.FreeInodesCount)
			assert.NoError(t, img.Check())
		})
	}
}

func TestRenameCollisionLeavesBothEntries(t *testing.T) {
	img := newTestImage(t, map[string][]byte{
		"A": []byte("a"),
		"B": []byte("b"),
	}, "A", "B")

	requireCode(t, img.Rename("A", "B"), extsimple.CodeNameExists)

	a, err := img.ReadFile("A")
	require.NoError(t, err)
	b, err := img.ReadFile("B")
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
}

func TestDelete(t *testing.T) {
	img := scenarioImage(t)
	before := img.Info()
	entry, err := img.Stat("A")
	require.NoError(t, err)
	require.Len(t, entry.Blocks, 1)

	require.NoError(t, img.Delete("A"))

	after := img.Info()
	assert.Equal(t, before.FreeBlocksCount+1, after.FreeBlocksCount)
	assert.Equal(t, before.FreeInodesCount+1, after.FreeInodesCount)

	_, ok := img.Find("A")
	assert.False(t, ok)
	assert.False(t, img.BlockMap()[entry.Blocks[0]])
	assert.False(t, img.InodeMap()[entry.Inode])
	assert.Empty(t, img.List())
	assert.NoError(t, img.Check())

	requireCode(t, img.Delete("A"), extsimple.CodeNotFound)
}

func TestDeleteMultiBlockFile(t *testing.T) {
	content := bytes.Repeat([]byte("z"), extsimple.BlocksPerInode*extsimple.BlockSize)
	img := newTestImage(t, map[string][]byte{"full": content, "keep": []byte("k")}, "full", "keep")
	before := img.Info()

	require.NoError(t, img.Delete("full"))

	after := img.Info()
	assert.Equal(t, before.FreeBlocksCount+extsimple.BlocksPerInode, after.FreeBlocksCount)
	assert.Equal(t, before.FreeInodesCount+1, after.FreeInodesCount)

	keep, err := img.ReadFile("keep")
	require.NoError(t, err)
	assert.Equal(t, "k", string(keep))
	assert.NoError(t, img.Check())
}

func TestDeleteSelfEntryIsNotFound(t *testing.T) {
	img := extsimple.Format()
	before := snapshot(t, img)

	requireCode(t, img.Delete("."), extsimple.CodeNotFound)
	assert.Equal(t, before, snapshot(t, img))
}

func TestDeleteLeavesDataUnlessWiped(t *testing.T) {
	testCases := []struct {
		name string
		wipe bool
		want []byte
	}{
		{name: "metadata only", wipe: false, want: []byte("hi")},
		{name: "wipe on delete", wipe: true, want: []byte{0, 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img := extsimple.Format(extsimple.WithWipeOnDelete(tc.wipe))
			require.NoError(t, img.CreateFile("A", padded("hi", 100)))
			require.NoError(t, img.Delete("A"))

			data, err := img.Region(4*extsimple.BlockSize, 2)
			require.NoError(t, err)
			assert.Equal(t, tc.want, data)
		})
	}
}

func TestDeleteRejectsCorruptInode(t *testing.T) {
	buf := snapshot(t, scenarioImage(t))
	// Free block 4 in the byte map while inode 3 still points at it.
	buf[blockMapOff+4] = 0

	img, err := extsimple.Open(buf)
	require.NoError(t, err)

	requireCode(t, img.Delete("A"), extsimple.CodeCorrupt)
	assert.Equal(t, buf, snapshot(t, img))
}

func TestCopy(t *testing.T) {
	img := scenarioImage(t)
	before := img.Info()

	require.NoError(t, img.Copy("A", "B"))

	after := img.Info()
	assert.Equal(t, before.FreeBlocksCount-1, after.FreeBlocksCount)
	assert.Equal(t, before.FreeInodesCount-1, after.FreeInodesCount)

	src, err := img.Stat("A")
	require.NoError(t, err)
	dst, err := img.Stat("B")
	require.NoError(t, err)

	assert.Equal(t, uint32(100), dst.Size)
	require.Len(t, dst.Blocks, 1)
	assert.NotEqual(t, src.Blocks[0], dst.Blocks[0])
	assert.NotEqual(t, src.Inode, dst.Inode)

	content, err := img.ReadFile("B")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content[:2]))

	srcContent, err := img.ReadFile("A")
	require.NoError(t, err)
	assert.Equal(t, srcContent, content)
	assert.NoError(t, img.Check())
}

func TestCopyRoundTrip(t *testing.T) {
	sizes := []int{0, 1, extsimple.BlockSize - 1, extsimple.BlockSize, extsimple.BlockSize + 1, 3*extsimple.BlockSize + 100, extsimple.BlocksPerInode * extsimple.BlockSize}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			content := make([]byte, size)
			for i := range content {
				content[i] = byte(i % 251)
			}

			img := newTestImage(t, map[string][]byte{"src": content}, "src")
			before := img.Info()

			require.NoError(t, img.Copy("src", "dst"))

			got, err := img.ReadFile("dst")
			require.NoError(t, err)
			assert.Equal(t, content, got)

			src, err := img.Stat("src")
			require.NoError(t, err)
			dst, err := img.Stat("dst")
			require.NoError(t, err)
			assert.Equal(t, src.Size, dst.Size)

			for _, b := range dst.Blocks {
				assert.NotContains(t, src.Blocks, b, "blocks must not be shared")
			}

			blocks := uint32(len(src.Blocks))
			after := img.Info()
			assert.Equal(t, before.FreeBlocksCount-blocks, after.FreeBlocksCount)
			assert.Equal(t, before.FreeInodesCount-1, after.FreeInodesCount)
			assert.NoError(t, img.Check())
		})
	}
}

func TestCopyReusesLowestFreeBlock(t *testing.T) {
	img := newTestImage(t, map[string][]byte{
		"first":  []byte("1"),
		"second": []byte("2"),
		"third":  []byte("3"),
	}, "first", "second", "third")

	require.NoError(t, img.Delete("first"))
	require.NoError(t, img.Copy("third", "copy"))

	entry, err := img.Stat("copy")
	require.NoError(t, err)
	assert.Equal(t, []uint16{extsimple.FirstDataBlock}, entry.Blocks)
	assert.Equal(t, uint16(3), entry.Inode, "freed inode is reused first")
	assert.Equal(t, 1, entry.Slot, "freed slot is reused first")
}

func TestCopyFailuresLeaveImageUnchanged(t *testing.T) {
	testCases := []struct {
		name     string
		setup    func(t *testing.T) *extsimple.Image
		src, dst string
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing source",
			setup:    scenarioImage,
			src:      "nope",
			dst:      "B",
			wantCode: extsimple.CodeNotFound,
		},
		{
			name:     "destination exists",
			setup:    scenarioImage,
			src:      "A",
			dst:      "A",
			wantCode: extsimple.CodeNameExists,
		},
		{
			name:     "destination name too long",
			setup:    scenarioImage,
			src:      "A",
			dst:      "this-name-is-too-long",
			wantCode: extsimple.CodeNameTooLong,
		},
		{
			name:     "directory full",
			setup:    fullDirectoryImage,
			src:      "f01",
			dst:      "extra",
			wantCode: extsimple.CodeDirectoryFull,
		},
		{
			name:     "no free inodes",
			setup:    noFreeInodesImage,
			src:      "A",
			dst:      "B",
			wantCode: extsimple.CodeNoFreeInodes,
		},
		{
			name:     "no free blocks",
			setup:    nearlyFullImage,
			src:      "big00",
			dst:      "big-copy",
			wantCode: extsimple.CodeNoFreeBlocks,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img := tc.setup(t)
			before := snapshot(t, img)

			requireCode(t, img.Copy(tc.src, tc.dst), tc.wantCode)
			assert.Equal(t, before, snapshot(t, img), "failed copy must not change the image")

			_, ok := img.Find(tc.dst)
			if tc.wantCode != extsimple.CodeNameExists {
				assert.False(t, ok)
			}
		})
	}
}

func TestCopyUsesRemainingBlocksExactly(t *testing.T) {
	img := nearlyFullImage(t)
	require.NoError(t, img.CreateFile("small", bytes.Repeat([]byte("s"), 5*extsimple.BlockSize)))
	assert.Equal(t, uint32(0), img.Info().FreeBlocksCount)

	requireCode(t, img.Copy("small", "small2"), extsimple.CodeNoFreeBlocks)

	require.NoError(t, img.Delete("big00"))
	require.NoError(t, img.Copy("small", "small2"))
	assert.Equal(t, uint32(extsimple.BlocksPerInode-5), img.Info().FreeBlocksCount)
	assert.NoError(t, img.Check())
}

func TestAllocationRejectsStaleFreeCounts(t *testing.T) {
	testCases := []struct {
		name   string
		offset int
		op     func(img *extsimple.Image) error
	}{
		{
			name:   "copy with zero free blocks recorded",
			offset: superblockFreeBlocksOff,
			op:     func(img *extsimple.Image) error { return img.Copy("A", "B") },
		},
		{
			name:   "copy with zero free inodes recorded",
			offset: superblockFreeInodesOff,
			op:     func(img *extsimple.Image) error { return img.Copy("A", "B") },
		},
		{
			name:   "create with zero free blocks recorded",
			offset: superblockFreeBlocksOff,
			op:     func(img *extsimple.Image) error { return img.CreateFile("B", []byte("b")) },
		},
		{
			name:   "create with zero free inodes recorded",
			offset: superblockFreeInodesOff,
			op:     func(img *extsimple.Image) error { return img.CreateFile("B", []byte("b")) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := snapshot(t, scenarioImage(t))
			binary.LittleEndian.PutUint32(buf[tc.offset:], 0)

			img, err := extsimple.Open(buf)
			require.NoError(t, err)

			requireCode(t, tc.op(img), extsimple.CodeCorrupt)
			assert.Equal(t, buf, snapshot(t, img), "rejected allocation must not change the image")

			_, err = extsimple.Open(snapshot(t, img))
			assert.NoError(t, err, "image must still open after the rejected allocation")
		})
	}
}

func TestCopyPreservesPointerGaps(t *testing.T) {
	content := append(bytes.Repeat([]byte("a"), extsimple.BlockSize), bytes.Repeat([]byte("b"), extsimple.BlockSize)...)
	content = append(content, bytes.Repeat([]byte("c"), extsimple.BlockSize)...)
	buf := snapshot(t, newTestImage(t, map[string][]byte{"src": content}, "src"))

	// Drop the middle block of inode 3 and leave a sentinel in its slot.
	binary.LittleEndian.PutUint16(buf[pointerOff(3, 1):], extsimple.NullBlock)
	binary.LittleEndian.PutUint32(buf[inodeTableOff+3*inodeSize:], 2*extsimple.BlockSize)
	buf[blockMapOff+extsimple.FirstDataBlock+1] = 0
	buf[superblockFreeBlocksOff]++

	img, err := extsimple.Open(buf)
	require.NoError(t, err)

	require.NoError(t, img.Copy("src", "dst"))

	dst, err := img.Stat("dst")
	require.NoError(t, err)
	require.Equal(t, uint16(4), dst.Inode)

	raw := snapshot(t, img)
	slots := make([]uint16, extsimple.BlocksPerInode)
	for i := range slots {
		slots[i] = binary.LittleEndian.Uint16(raw[pointerOff(4, i):])
	}
	want := []uint16{
		extsimple.FirstDataBlock + 1,
		extsimple.NullBlock,
		extsimple.FirstDataBlock + 3,
		extsimple.NullBlock,
		extsimple.NullBlock,
		extsimple.NullBlock,
		extsimple.NullBlock,
	}
	assert.Equal(t, want, slots)

	expected := append(bytes.Repeat([]byte("a"), extsimple.BlockSize), bytes.Repeat([]byte("c"), extsimple.BlockSize)...)
	got, err := img.ReadFile("dst")
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	srcContent, err := img.ReadFile("src")
	require.NoError(t, err)
	assert.Equal(t, expected, srcContent)
}

func TestReadFile(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 60)
	img := newTestImage(t, map[string][]byte{"data": content}, "data")

	got, err := img.ReadFile("data")
	require.NoError(t, err)
	assert.Equal(t, content, got, "content is trimmed to the stored size")

	_, err = img.ReadFile("missing")
	requireCode(t, err, extsimple.CodeNotFound)
}

func TestCreateFile(t *testing.T) {
	img := extsimple.Format()

	require.NoError(t, img.CreateFile("hello", []byte("hello world")))
	requireCode(t, img.CreateFile("hello", []byte("again")), extsimple.CodeNameExists)

	tooBig := make([]byte, extsimple.BlocksPerInode*extsimple.BlockSize+1)
	requireCode(t, img.CreateFile("big", tooBig), extsimple.CodeFileTooLarge)
	requireCode(t, img.CreateFile("bad\x00name", nil), extsimple.CodeInvalidName)

	got, err := img.ReadFile("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.NoError(t, img.Check())
}

type recordedOp struct {
	op  string
	err bool
}

type fakeRecorder struct {
	ops  []recordedOp
	last extsimple.Info
}

func (r *fakeRecorder) Observe(op string, err error, info extsimple.Info) {
	r.ops = append(r.ops, recordedOp{op: op, err: err != nil})
	r.last = info
}

func TestRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	img := extsimple.Format(extsimple.WithRecorder(rec))

	require.NoError(t, img.CreateFile("a", []byte("a")))
	require.NoError(t, img.Copy("a", "b"))
	require.NoError(t, img.Rename("b", "c"))
	_, err := img.ReadFile("c")
	require.NoError(t, err)
	require.Error(t, img.Delete("missing"))

	assert.Equal(t, []recordedOp{
		{op: extsimple.OpCreate},
		{op: extsimple.OpCopy},
		{op: extsimple.OpRename},
		{op: extsimple.OpRead},
		{op: extsimple.OpDelete, err: true},
	}, rec.ops)
	assert.Equal(t, img.Info(), rec.last)
}

// fullDirectoryImage fills every directory slot with empty files.
func fullDirectoryImage(t *testing.T) *extsimple.Image {
	t.Helper()

	img := extsimple.Format()
	for i := 1; i < extsimple.MaxEntries; i++ {
		require.NoError(t, img.CreateFile(fmt.Sprintf("f%02d", i), nil))
	}
	return img
}

// noFreeInodesImage marks every inode in use without touching the
// directory, leaving slots free.
func noFreeInodesImage(t *testing.T) *extsimple.Image {
	t.Helper()

	buf := snapshot(t, scenarioImage(t))
	for i := 0; i < extsimple.MaxInodes; i++ {
		buf[inodeMapOff+i] = 1
	}
	buf[superblockFreeInodesOff] = 0

	img, err := extsimple.Open(buf)
	require.NoError(t, err)
	return img
}

// nearlyFullImage holds 13 full-size files, leaving 5 free data blocks.
func nearlyFullImage(t *testing.T) *extsimple.Image {
	t.Helper()

	img := extsimple.Format()
	content := bytes.Repeat([]byte("b"), extsimple.BlocksPerInode*extsimple.BlockSize)
	for i := 0; i < extsimple.DataBlocks/extsimple.BlocksPerInode; i++ {
		require.NoError(t, img.CreateFile(fmt.Sprintf("big%02d", i), content))
	}
	require.Equal(t, uint32(extsimple.DataBlocks%extsimple.BlocksPerInode), img.Info().FreeBlocksCount)
	return img
}
