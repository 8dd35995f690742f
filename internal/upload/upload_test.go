package upload

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/lecturequiz/internal/notify"
)

func memFile(name, mediaType string, data []byte, src Source) File {
	return File{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Source:    src,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func TestSelectRejectsNonMP4(t *testing.T) {
	for _, src := range []Source{SourcePicker, SourceDrop} {
		for _, mt := range []string{"video/quicktime", "video/webm", "application/octet-stream", "", "video/mp4x"} {
			t.Run(string(src)+"/"+mt, func(t *testing.T) {
				q := notify.NewQueue()
				g := NewGate("", DefaultMaxBytes, q)

				prev, err := g.Select(memFile("ok.mp4", "video/mp4", []byte("ftyp"), src))
				require.NoError(t, err)
				q.Drain()

				c, err := g.Select(memFile("lecture.mov", mt, []byte("moov"), src))
				require.ErrorIs(t, err, ErrInvalidMediaType)
				assert.Nil(t, c)
				assert.Same(t, prev, g.Current(), "selection must be untouched")

				got := q.Drain()
				require.Len(t, got, 1)
				assert.Equal(t, notify.LevelError, got[0].Level)
				assert.Equal(t, notify.MsgInvalidMediaType, got[0].MessageID)
				assert.Equal(t, "video/mp4", got[0].Data["Type"])
			})
		}
	}
}

func TestSelectAcceptsAndReplaces(t *testing.T) {
	q := notify.NewQueue()
	g := NewGate("", DefaultMaxBytes, q)

	first, err := g.Select(memFile("a.mp4", "video/mp4", []byte("aaaa"), SourcePicker))
	require.NoError(t, err)
	assert.Same(t, first, g.Current())

	second, err := g.Select(memFile("b.mp4", "video/mp4; codecs=avc1", []byte("bb"), SourceDrop))
	require.NoError(t, err)
	assert.Same(t, second, g.Current())
	assert.Equal(t, SourceDrop, second.Source)
	assert.Zero(t, q.Len(), "accepted files produce no notification")

	taken, err := g.Take()
	require.NoError(t, err)
	assert.Same(t, second, taken)
	assert.Nil(t, g.Current())

	_, err = g.Take()
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestSelectFiles(t *testing.T) {
	q := notify.NewQueue()
	g := NewGate("", DefaultMaxBytes, q)

	_, err := g.SelectFiles(nil)
	assert.ErrorIs(t, err, ErrNoFile)

	f := memFile("a.mp4", "video/mp4", []byte("a"), SourcePicker)
	_, err = g.SelectFiles([]File{f, f})
	assert.ErrorIs(t, err, ErrMultipleFiles)
	assert.Nil(t, g.Current())

	c, err := g.SelectFiles([]File{f})
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", c.Name)

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, notify.MsgNoFile, got[0].MessageID)
	assert.Equal(t, notify.MsgMultipleFiles, got[1].MessageID)
}

func TestSizeCap(t *testing.T) {
	q := notify.NewQueue()
	g := NewGate("", 10, q)

	_, err := g.Select(memFile("big.mp4", "video/mp4", make([]byte, 11), SourcePicker))
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Nil(t, g.Current())

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.MsgFileTooLarge, got[0].MessageID)

	_, err = g.Select(memFile("fits.mp4", "video/mp4", make([]byte, 10), SourcePicker))
	assert.NoError(t, err)
}

func TestSpoolingAndRelease(t *testing.T) {
	dir := t.TempDir()
	q := notify.NewQueue()
	g := NewGate(dir, 1024, q)

	first, err := g.Select(memFile("a.mp4", "video/mp4", []byte("first"), SourcePicker))
	require.NoError(t, err)

	entries, _ := os.ReadDir(dir)
	require.Len(t, entries, 1)

	rc, err := first.Open()
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "first", string(data))

	_, err = g.Select(memFile("b.mp4", "video/mp4", []byte("second"), SourceDrop))
	require.NoError(t, err)

	entries, _ = os.ReadDir(dir)
	require.Len(t, entries, 1, "replaced candidate is released")

	c, err := g.Take()
	require.NoError(t, err)
	require.NoError(t, c.Release())
	entries, _ = os.ReadDir(dir)
	assert.Empty(t, entries)
	assert.NoError(t, c.Release(), "second release is a no-op")
}

func TestSpoolingEnforcesCapOnActualBytes(t *testing.T) {
	dir := t.TempDir()
	q := notify.NewQueue()
	g := NewGate(dir, 4, q)

	f := memFile("lies.mp4", "video/mp4", []byte("0123456789"), SourcePicker)
	f.Size = 2 // declared size understates the body

	_, err := g.Select(f)
	require.ErrorIs(t, err, ErrFileTooLarge)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
	assert.Equal(t, 1, q.Len())
}

func TestLocalFile(t *testing.T) {
	dir := t.TempDir()
	mp4 := filepath.Join(dir, "lecture.mp4")
	mov := filepath.Join(dir, "lecture.MOV")
	require.NoError(t, os.WriteFile(mp4, []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(mov, []byte("data"), 0o644))

	f, err := LocalFile(mp4)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", f.MediaType)
	assert.Equal(t, int64(4), f.Size)
	assert.Equal(t, SourceCLI, f.Source)

	f, err = LocalFile(mov)
	require.NoError(t, err)
	assert.Equal(t, "video/quicktime", f.MediaType)

	_, err = LocalFile(filepath.Join(dir, "missing.mp4"))
	assert.Error(t, err)

	_, err = LocalFile(dir)
	assert.True(t, err != nil && strings.Contains(err.Error(), "directory"))
}

func TestHumanSize(t *testing.T) {
	c := &Candidate{Size: 3 * 1024 * 1024}
	assert.Equal(t, "3.0 MiB", c.HumanSize())
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(dir, DefaultMaxBytes, notify.NewQueue())

	c, err := g.Select(memFile("a.mp4", "video/mp4", []byte("a"), SourcePicker))
	require.NoError(t, err)
	taken, err := g.Take()
	require.NoError(t, err)
	require.Same(t, c, taken)

	g.Restore(taken)
	assert.Same(t, c, g.Current())

	taken, err = g.Take()
	require.NoError(t, err)
	_, err = g.Select(memFile("b.mp4", "video/mp4", []byte("b"), SourcePicker))
	require.NoError(t, err)

	g.Restore(taken)
	assert.Equal(t, "b.mp4", g.Current().Name)
	_, err = taken.Open()
	assert.ErrorIs(t, err, os.ErrNotExist, "restored-over candidate is released")

	g.Restore(nil)
}
