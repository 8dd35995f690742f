package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/lecturequiz/internal/model"
)

const chunksBody = `{"chunks":[
	{"_id":{"$oid":"s1"},"chunkNumber":1,"startTime":0,"endTime":300,"transcription":"one","mcqs":[
		{"_id":{"$oid":"q1"},"question":"Q1?","options":["A","B"],"answer":"A"}
	]},
	{"_id":{"$oid":"s2"},"chunkNumber":2,"startTime":300,"endTime":600,"transcription":"two","mcqs":[]}
]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestNewValidatesURL(t *testing.T) {
	_, err := New("ftp://example.com", 0)
	assert.Error(t, err)
	_, err = New("://bad", 0)
	assert.Error(t, err)

	c, err := New("http://localhost:3000/", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", c.BaseURL())
}

func TestProcessVideoSendsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/video-processing/upload", r.URL.Path)

		file, header, err := r.FormFile("video")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "fake mp4 bytes", string(data))
		assert.Equal(t, `lecture "1".mp4`, header.Filename)
		assert.Equal(t, "video/mp4", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chunksBody)
	})

	segs, err := c.ProcessVideo(context.Background(), Video{
		Name:      `lecture "1".mp4`,
		MediaType: "video/mp4",
		Body:      strings.NewReader("fake mp4 bytes"),
	})
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, model.ObjectID("s1"), segs[0].ID)
	assert.Equal(t, "A", segs[0].MCQs[0].Answer)
	assert.Equal(t, 300.0, segs[1].StartTime)
}

func TestProcessVideoNon2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "transcriber offline", http.StatusBadGateway)
	})

	_, err := c.ProcessVideo(context.Background(), Video{Name: "a.mp4", MediaType: "video/mp4", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrUploadFailed)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Contains(t, se.Body, "transcriber offline")
}

func TestProcessVideoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second)
	require.NoError(t, err)
	_, err = c.ProcessVideo(context.Background(), Video{Name: "a.mp4", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestProcessVideoTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, 50*time.Millisecond)
	require.NoError(t, err)
	_, err = c.ProcessVideo(context.Background(), Video{Name: "a.mp4", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessVideoMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"segments": []}`)
	})
	_, err := c.ProcessVideo(context.Background(), Video{Name: "a.mp4", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestDecodeSegments(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"envelope", chunksBody, 2, false},
		{"bare list", `[{"_id":"s1","startTime":0,"endTime":10,"mcqs":[]}]`, 1, false},
		{"empty envelope", `{"chunks":[]}`, 0, false},
		{"missing chunks", `{"data":[]}`, 0, true},
		{"null chunks", `{"chunks":null}`, 0, true},
		{"wrong chunk type", `{"chunks":"nope"}`, 0, true},
		{"empty body", "  ", 0, true},
		{"html", "<html>oops</html>", 0, true},
		{"truncated", `[{"_id":"s1"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, err := DecodeSegments([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResult)
				return
			}
			require.NoError(t, err)
			assert.Len(t, segs, tt.want)
		})
	}
}

func TestListAndGetLecture(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/video-processing", r.URL.Path)
		_, _ = io.WriteString(w, `[
			{"_id":{"$oid":"L1"},"videoName":"Week one","createdAt":"2025-03-14T09:30:00Z","chunks":[]},
			{"_id":{"$oid":"L2"},"videoName":"Week two","createdAt":{"$date":"2025-03-21T09:30:00Z"},"chunks":[
				{"_id":{"$oid":"s1"},"startTime":0,"endTime":300,"mcqs":[]}
			]}
		]`)
	})

	lectures, err := c.ListLectures(context.Background())
	require.NoError(t, err)
	require.Len(t, lectures, 2)
	assert.Equal(t, "Week one", lectures[0].VideoName)
	assert.Equal(t, 2025, lectures[1].CreatedAt.Year())

	l, err := c.GetLecture(context.Background(), "L2")
	require.NoError(t, err)
	assert.Len(t, l.Chunks, 1)

	_, err = c.GetLecture(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLectureNotFound)

	assert.NoError(t, c.Ping(context.Background()))
}

func TestListLecturesFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.ListLectures(context.Background())
	assert.ErrorIs(t, err, ErrListFailed)
	assert.Error(t, c.Ping(context.Background()))
}
