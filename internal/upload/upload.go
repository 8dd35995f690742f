// Package upload validates user-selected lecture videos and holds the current
// selection until it is handed to the processing workflow.
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pavelanni/lecturequiz/internal/notify"
)

// AcceptedMediaType is the only media type the processing backend accepts.
const AcceptedMediaType = "video/mp4"

// DefaultMaxBytes is the advertised 1 GiB upload cap.
const DefaultMaxBytes int64 = 1 << 30

var (
	ErrInvalidMediaType = errors.New("invalid media type")
	ErrFileTooLarge     = errors.New("file too large")
	ErrNoFile           = errors.New("no file selected")
	ErrMultipleFiles    = errors.New("exactly one file per submission")
)

// Source identifies how the user picked a file. Both sources go through the
// same validation.
type Source string

const (
	SourcePicker Source = "picker"
	SourceDrop   Source = "drop"
	SourceCLI    Source = "cli"
)

// File is a file offered by the user, before validation.
type File struct {
	Name      string
	MediaType string
	Size      int64
	Source    Source
	Open      func() (io.ReadCloser, error)
}

// Candidate is a validated file waiting to be submitted.
type Candidate struct {
	ID        string
	Name      string
	MediaType string
	Size      int64
	Source    Source

	open    func() (io.ReadCloser, error)
	release func() error
}

// Open returns a reader over the candidate's bytes.
func (c *Candidate) Open() (io.ReadCloser, error) {
	return c.open()
}

// Release frees whatever backs the candidate (a spooled temp file, if any).
func (c *Candidate) Release() error {
	if c.release == nil {
		return nil
	}
	err := c.release()
	c.release = nil
	return err
}

// HumanSize formats the candidate size for display.
func (c *Candidate) HumanSize() string {
	return humanize.IBytes(uint64(c.Size))
}

// Gate validates selections and owns the current candidate.
type Gate struct {
	spoolDir string
	maxBytes int64
	notifier notify.Notifier

	mu      sync.Mutex
	current *Candidate
}

// NewGate creates a gate. When spoolDir is non-empty, accepted files are
// copied there so they outlive the request that delivered them. A maxBytes
// of zero or less disables the size check.
func NewGate(spoolDir string, maxBytes int64, n notify.Notifier) *Gate {
	return &Gate{spoolDir: spoolDir, maxBytes: maxBytes, notifier: n}
}

// SelectFiles applies the one-file rule and then Select.
func (g *Gate) SelectFiles(files []File) (*Candidate, error) {
	switch len(files) {
	case 0:
		g.notifier.Notify(notify.Error(notify.MsgNoFile, nil))
		return nil, ErrNoFile
	case 1:
		return g.Select(files[0])
	default:
		g.notifier.Notify(notify.Error(notify.MsgMultipleFiles, nil))
		return nil, ErrMultipleFiles
	}
}

// Select validates f and, if it passes, makes it the current candidate,
// replacing any prior one. A rejected file leaves the current selection
// untouched and produces exactly one notification.
func (g *Gate) Select(f File) (*Candidate, error) {
	if err := g.validate(f); err != nil {
		slog.Info("upload rejected", "name", f.Name, "media_type", f.MediaType, "size", f.Size, "source", f.Source, "error", err)
		g.notifyRejection(err)
		return nil, err
	}

	c, err := g.materialize(f)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			g.notifyRejection(err)
		} else {
			g.notifier.Notify(notify.Error(notify.MsgUploadFailed, nil))
		}
		return nil, err
	}

	g.mu.Lock()
	prev := g.current
	g.current = c
	g.mu.Unlock()

	if prev != nil {
		if err := prev.Release(); err != nil {
			slog.Warn("release replaced candidate", "name", prev.Name, "error", err)
		}
	}
	slog.Info("upload selected", "name", c.Name, "size", c.Size, "source", c.Source)
	return c, nil
}

// Current returns the selected candidate, or nil.
func (g *Gate) Current() *Candidate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Take hands the current candidate off and clears the selection. The caller
// becomes responsible for releasing it.
func (g *Gate) Take() (*Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil, ErrNoFile
	}
	c := g.current
	g.current = nil
	return c, nil
}

// Restore puts back a candidate taken with Take whose submission was refused.
// If another file was selected in the meantime, c is released instead.
func (g *Gate) Restore(c *Candidate) {
	if c == nil {
		return
	}
	g.mu.Lock()
	if g.current == nil {
		g.current = c
		c = nil
	}
	g.mu.Unlock()
	if c != nil {
		_ = c.Release()
	}
}

// Clear drops and releases the current candidate.
func (g *Gate) Clear() {
	g.mu.Lock()
	c := g.current
	g.current = nil
	g.mu.Unlock()
	if c != nil {
		_ = c.Release()
	}
}

func (g *Gate) validate(f File) error {
	if !IsAccepted(f.MediaType) {
		return fmt.Errorf("%w: %q", ErrInvalidMediaType, f.MediaType)
	}
	if g.maxBytes > 0 && f.Size > g.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, f.Size)
	}
	return nil
}

func (g *Gate) notifyRejection(err error) {
	switch {
	case errors.Is(err, ErrInvalidMediaType):
		g.notifier.Notify(notify.Error(notify.MsgInvalidMediaType, map[string]any{"Type": AcceptedMediaType}))
	case errors.Is(err, ErrFileTooLarge):
		g.notifier.Notify(notify.Error(notify.MsgFileTooLarge, map[string]any{"Max": humanize.IBytes(uint64(g.maxBytes))}))
	}
}

// materialize turns an accepted file into a candidate, spooling it to disk
// when the gate has a spool directory.
func (g *Gate) materialize(f File) (*Candidate, error) {
	c := &Candidate{
		ID:        uuid.NewString(),
		Name:      f.Name,
		MediaType: f.MediaType,
		Size:      f.Size,
		Source:    f.Source,
		open:      f.Open,
	}
	if g.spoolDir == "" {
		return c, nil
	}

	src, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(g.spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	path := filepath.Join(g.spoolDir, c.ID+".mp4")
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	var r io.Reader = src
	if g.maxBytes > 0 {
		r = io.LimitReader(src, g.maxBytes+1)
	}
	n, copyErr := io.Copy(dst, r)
	closeErr := dst.Close()
	if copyErr == nil && g.maxBytes > 0 && n > g.maxBytes {
		copyErr = fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, g.maxBytes)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("spool upload: %w", copyErr)
	}

	c.Size = n
	c.open = func() (io.ReadCloser, error) { return os.Open(path) }
	c.release = func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return c, nil
}

// IsAccepted reports whether mediaType is the accepted video type. Parameters
// such as "; codecs=..." are ignored.
func IsAccepted(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return false
	}
	return mt == AcceptedMediaType
}

// LocalFile describes a file on disk as if the user had picked it. The media
// type comes from the extension, falling back to content sniffing.
func LocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	mediaType, err := detectMediaType(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:      filepath.Base(path),
		MediaType: mediaType,
		Size:      info.Size(),
		Source:    SourceCLI,
		Open:      func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

func detectMediaType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionTypes[ext]; ok {
		return mt, nil
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return http.DetectContentType(buf[:n]), nil
}
