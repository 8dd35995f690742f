// Package backend talks to the external processing service that transcribes
// lectures, segments them and generates questions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/lecturequiz/internal/model"
)

const (
	listPath   = "/video-processing"
	uploadPath = "/video-processing/upload"

	// uploadField is the multipart field the backend reads the video from.
	uploadField = "video"

	maxResponseBytes = 64 << 20

	// DefaultTimeout is long enough for the backend to transcribe and
	// segment an hour-long lecture.
	DefaultTimeout = 30 * time.Minute
)

var (
	// ErrUploadFailed covers non-2xx responses and transport errors on upload.
	ErrUploadFailed = errors.New("video processing failed")
	// ErrListFailed covers failures fetching the lecture catalog.
	ErrListFailed = errors.New("fetch lectures failed")
	// ErrMalformedResult means the backend answered 2xx with an unexpected body.
	ErrMalformedResult = errors.New("malformed processing result")
	// ErrLectureNotFound is returned by GetLecture for unknown ids.
	ErrLectureNotFound = errors.New("lecture not found")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Err        error
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d", e.Err, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Err, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Video is an upload payload.
type Video struct {
	Name      string
	MediaType string
	Body      io.Reader
}

// Client wraps the backend's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New creates a client for the backend at baseURL. A positive timeout bounds
// every request.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q must be http or https", baseURL)
	}
	return &Client{
		baseURL: u.String(),
		http:    &http.Client{},
		timeout: timeout,
	}, nil
}

// BaseURL returns the normalised backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the backend answers the catalog endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListLectures(ctx)
	return err
}

// ListLectures fetches the lecture catalog.
func (c *Client) ListLectures(ctx context.Context) ([]model.Lecture, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrListFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Err: ErrListFailed, StatusCode: resp.StatusCode, Body: snippet(data)}
	}

	var lectures []model.Lecture
	if err := json.Unmarshal(data, &lectures); err != nil {
		return nil, fmt.Errorf("%w: decode lectures: %w", ErrListFailed, err)
	}
	return lectures, nil
}

// GetLecture returns one lecture from the catalog.
func (c *Client) GetLecture(ctx context.Context, id model.ObjectID) (model.Lecture, error) {
	lectures, err := c.ListLectures(ctx)
	if err != nil {
		return model.Lecture{}, err
	}
	for _, l := range lectures {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Lecture{}, fmt.Errorf("%w: %s", ErrLectureNotFound, id)
}

// ProcessVideo uploads a video and returns the generated segments. The body
// is streamed; it is not buffered in memory.
func (c *Client) ProcessVideo(ctx context.Context, v Video) ([]model.Segment, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeVideoPart(mw, v))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUploadFailed, err)
	}
	slog.Info("backend processed video", "name", v.Name, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Err: ErrUploadFailed, StatusCode: resp.StatusCode, Body: snippet(data)}
	}
	return DecodeSegments(data)
}

func writeVideoPart(mw *multipart.Writer, v Video) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, uploadField, quoteEscaper.Replace(v.Name)))
	mediaType := v.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h.Set("Content-Type", mediaType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, v.Body); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// DecodeSegments normalises a processing response into segments. The
// canonical envelope is {"chunks": [...]}; a bare list of segments is also
// accepted.
func DecodeSegments(data []byte) ([]model.Segment, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResult)
	}
	switch data[0] {
	case '{':
		var env struct {
			Chunks *[]model.Segment `json:"chunks"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
		}
		if env.Chunks == nil {
			return nil, fmt.Errorf("%w: missing chunks", ErrMalformedResult)
		}
		return *env.Chunks, nil
	case '[':
		var segs []model.Segment
		if err := json.Unmarshal(data, &segs); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
		}
		return segs, nil
	default:
		return nil, fmt.Errorf("%w: unexpected body %q", ErrMalformedResult, snippet(data))
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
