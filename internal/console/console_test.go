package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	extsimple "github.com/pilat/go-extsimple"
)

type fakeSaver struct {
	saved [][]byte
	err   error
}

func (s *fakeSaver) Save(img *extsimple.Image) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	raw, err := img.Bytes()
	if err != nil {
		return 0, err
	}
	s.saved = append(s.saved, raw)
	return len(raw), nil
}

func newConsole(t *testing.T) (*Console, *extsimple.Image, *fakeSaver, *bytes.Buffer) {
	t.Helper()

	img := extsimple.Format()
	require.NoError(t, img.CreateFile("A", append([]byte("hi"), make([]byte, 98)...)))

	saver := &fakeSaver{}
	out := &bytes.Buffer{}
	return New(img, saver, out, WithPrompt("")), img, saver, out
}

func TestRunTranscript(t *testing.T) {
	c, img, saver, out := newConsole(t)

	input := strings.Join([]string{
		"info",
		"copy A B",
		"rename B C",
		"borrar A",
		"dir",
		"salir",
		"info",
	}, "\n")

	require.NoError(t, c.Run(context.Background(), strings.NewReader(input)))

	text := out.String()
	assert.Contains(t, text, "Free blocks: 95")
	assert.Contains(t, text, "copied A to B")
	assert.Contains(t, text, "renamed B to C")
	assert.Contains(t, text, "removed A")
	assert.Contains(t, text, "  Name: C\n")
	assert.NotContains(t, text, "  Name: A\n")
	assert.Equal(t, 1, strings.Count(text, "Total inodes"), "nothing runs after exit")

	require.Len(t, saver.saved, 1)
	want, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, saver.saved[0])
}

func TestRunSavesAtEndOfInput(t *testing.T) {
	c, _, saver, _ := newConsole(t)

	require.NoError(t, c.Run(context.Background(), strings.NewReader("dir\n")))
	assert.Len(t, saver.saved, 1)
}

func TestRunStopsOnSaveFailure(t *testing.T) {
	c, _, saver, _ := newConsole(t)
	saver.err = errors.New(errors.CodeInternal, "disk gone")

	err := c.Run(context.Background(), strings.NewReader("save\ninfo\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.GetCode(err))
}

func TestRunCancelled(t *testing.T) {
	c, _, saver, _ := newConsole(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx, strings.NewReader("info\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, saver.saved)
}

func TestExecuteWarnsWhenChangeIsKept(t *testing.T) {
	raw, err := extsimple.Format().Bytes()
	require.NoError(t, err)
	// Leave one data block marked used but unreferenced.
	raw[extsimple.BlockSize+50] = 1

	img, err := extsimple.Open(raw, extsimple.WithConsistencyCheck(true))
	require.NoError(t, err)
	require.Error(t, img.CreateFile("A", []byte("a")))

	out := &bytes.Buffer{}
	c := New(img, &fakeSaver{}, out, WithPrompt(""))

	done, err := c.Execute("rename A B")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Contains(t, out.String(), "warning: rename was applied")
	assert.NotContains(t, out.String(), "error:")

	_, ok := img.Find("B")
	assert.True(t, ok)
}

func TestRunCancelledWhileWaitingForInput(t *testing.T) {
	c, _, saver, _ := newConsole(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	result := make(chan error, 1)
	go func() {
		result <- c.Run(ctx, pr)
	}()

	_, err := pw.Write([]byte("info\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Empty(t, saver.saved, "an interrupted session is not saved")
}

func TestExecute(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want string
	}{
		{name: "blank line", line: "   ", want: ""},
		{name: "unknown command", line: "format", want: `unknown command "format"`},
		{name: "wrong arity", line: "rename A", want: "usage: rename <old> <new>"},
		{name: "print", line: "imprimir A", want: "hi"},
		{name: "missing file", line: "print Z", want: `error: file "Z" not found`},
		{name: "collision", line: "copy A A", want: `error: file "A" already exists`},
		{name: "name too long", line: "rename A abcdefghijklmnopq", want: "error: file name"},
		{name: "case insensitive command", line: "INFO", want: "Block size: 512 bytes"},
		{name: "bytemaps", line: "bytemaps", want: "1 1 1 1 1 0 0"},
		{name: "check", line: "check", want: "image is consistent"},
		{name: "dump region", line: "dump superblock", want: "00000000  18 00 00 00 64 00 00 00  5F 00 00 00 14 00 00 00"},
		{name: "dump range", line: "dump 0x800 2", want: "00000800  68 69"},
		{name: "dump bad region", line: "dump nowhere", want: `error: unknown region "nowhere"`},
		{name: "dump out of range", line: "dump 51199 2", want: "error: range 51199+2"},
		{name: "help", line: "help", want: "salir"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _, saver, out := newConsole(t)

			done, err := c.Execute(tc.line)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Contains(t, out.String(), tc.want)
			assert.Empty(t, saver.saved)
		})
	}
}

func TestDumpHex(t *testing.T) {
	data := []byte("Hello, world!\x00\x01\x02ABC")
	out := &bytes.Buffer{}

	DumpHex(out, data, 0x600)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "00000600  48 65 6C 6C 6F 2C 20 77  6F 72 6C 64 21 00 01 02  Hello, world!...", lines[2])
	assert.Equal(t, "00000610  41 42 43"+strings.Repeat(" ", 3*13+1)+"  ABC", lines[3])
}

func TestWriteBytemaps(t *testing.T) {
	img := extsimple.Format()
	out := &bytes.Buffer{}

	WriteBytemaps(out, img.BlockMap(), img.InodeMap())

	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "Block bytemap (first 25):", lines[0])
	assert.Equal(t, "1 1 1 1 "+strings.Repeat("0 ", 21), lines[1])
	assert.Equal(t, "1 1 1 "+strings.Repeat("0 ", 21), lines[3])
}
