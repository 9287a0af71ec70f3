package console

import (
	"fmt"
	"io"
	"strings"

	extsimple "github.com/pilat/go-extsimple"
)

// bytemapPreview is how many block map entries the bytemaps command shows.
const bytemapPreview = 25

const hexRowWidth = 16

// WriteInfo prints the superblock counters.
func WriteInfo(w io.Writer, info extsimple.Info) {
	fmt.Fprintf(w, "Total inodes: %d\n", info.InodesCount)
	fmt.Fprintf(w, "Total blocks: %d\n", info.BlocksCount)
	fmt.Fprintf(w, "Free blocks: %d\n", info.FreeBlocksCount)
	fmt.Fprintf(w, "Free inodes: %d\n", info.FreeInodesCount)
	fmt.Fprintf(w, "First data block: %d\n", info.FirstDataBlock)
	fmt.Fprintf(w, "Block size: %d bytes\n", info.BlockSize)
}

// WriteBytemaps prints the first block map entries and the whole inode map
// as rows of 0 and 1.
func WriteBytemaps(w io.Writer, blocks, inodes []bool) {
	fmt.Fprintf(w, "Block bytemap (first %d):\n", bytemapPreview)
	fmt.Fprintln(w, bitRow(blocks[:min(bytemapPreview, len(blocks))]))
	fmt.Fprintln(w, "Inode bytemap:")
	fmt.Fprintln(w, bitRow(inodes))
}

func bitRow(bits []bool) string {
	var sb strings.Builder
	for _, b := range bits {
		if b {
			sb.WriteString("1 ")
		} else {
			sb.WriteString("0 ")
		}
	}
	return sb.String()
}

// WriteDir prints every listed entry with its inode, size and blocks.
func WriteDir(w io.Writer, entries []extsimple.Entry) {
	fmt.Fprintln(w, "Files in directory:")
	for _, e := range entries {
		fmt.Fprintf(w, "\nFile %d:\n", e.Slot)
		fmt.Fprintf(w, "  Name: %s\n", e.Name)
		fmt.Fprintf(w, "  Inode: %d\n", e.Inode)
		fmt.Fprintf(w, "  Size: %d bytes\n", e.Size)
		fmt.Fprint(w, "  Blocks: ")
		for _, b := range e.Blocks {
			fmt.Fprintf(w, "%d ", b)
		}
		fmt.Fprintln(w)
	}
}

// DumpHex prints data as offset, sixteen hex bytes split in two groups of
// eight, and the printable ASCII rendering. Offsets start at base.
func DumpHex(w io.Writer, data []byte, base uint64) {
	fmt.Fprintln(w, "Offset    Hexadecimal                                       ASCII")
	fmt.Fprintln(w, strings.Repeat("-", 69))

	for i := 0; i < len(data); i += hexRowWidth {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%08X  ", base+uint64(i))

		for j := 0; j < hexRowWidth; j++ {
			if i+j < len(data) {
				fmt.Fprintf(&sb, "%02X ", data[i+j])
			} else {
				sb.WriteString("   ")
			}
			if j == 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte(' ')

		for j := 0; j < hexRowWidth && i+j < len(data); j++ {
			c := data[i+j]
			if c >= 0x20 && c < 0x7F {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		fmt.Fprintln(w, sb.String())
	}
}
