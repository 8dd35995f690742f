package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/lecturequiz/internal/model"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"ru", "/ru"},
		{"/ru/", "/ru"},
		{"/a/b", "/a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeBasePath(tt.in), "input %q", tt.in)
	}
}

func TestConfigYAML(t *testing.T) {
	data, err := configYAML(map[string]any{
		"addr":           ":8080",
		"results-delay":  500 * time.Millisecond,
		"secure-cookies": true,
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, ":8080", got["addr"])
	assert.Equal(t, "500ms", got["results-delay"])
	assert.Equal(t, true, got["secure-cookies"])
	assert.Less(t, bytes.Index(data, []byte("addr")), bytes.Index(data, []byte("results-delay")))
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lecturequiz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: :9090\n"), 0o644))

	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init", "--path", path})
	assert.Error(t, root.Execute())

	root = rootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init", "--path", path, "--force"})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max-upload-bytes")
}

func TestProcessCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video-processing/upload" {
			http.NotFound(w, r)
			return
		}
		_, _, err := r.FormFile("video")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"chunks": []map[string]any{{
			"_id":           "c1",
			"chunkNumber":   1,
			"startTime":     0,
			"endTime":       61,
			"transcription": "Hello class.",
			"mcqs": []map[string]any{
				{"_id": "m1", "question": "Who?", "options": []string{"A", "B"}, "answer": "A"},
			},
		}}})
	}))
	defer srv.Close()

	dir := t.TempDir()
	video := filepath.Join(dir, "lecture.mp4")
	require.NoError(t, os.WriteFile(video, []byte("not really a video"), 0o644))
	outDir := filepath.Join(dir, "out")

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"process", video, "--api-url", srv.URL, "--out-dir", outDir, "--log-level", "error"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Processing Complete")
	assert.Contains(t, out.String(), "1 segment")
	assert.Contains(t, out.String(), "00:00 - 01:01")

	data, err := os.ReadFile(filepath.Join(outDir, "segments-c1.json"))
	require.NoError(t, err)
	var seg model.SegmentExport
	require.NoError(t, json.Unmarshal(data, &seg))
	assert.Equal(t, "Hello class.", seg.Transcript)
	assert.FileExists(t, filepath.Join(outDir, "mcq-segment-c1.json"))
}

func TestProcessCommandRejectsMov(t *testing.T) {
	video := filepath.Join(t.TempDir(), "lecture.mov")
	require.NoError(t, os.WriteFile(video, []byte("mov"), 0o644))

	var stderr bytes.Buffer
	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetErr(&stderr)
	root.SetArgs([]string{"process", video, "--api-url", "http://127.0.0.1:1", "--log-level", "error"})
	assert.Error(t, root.Execute())
	assert.Contains(t, stderr.String(), "Please upload an MP4 video file")
}
