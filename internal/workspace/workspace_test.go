package workspace

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/lecturequiz/internal/backend"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
)

func testConfig(t *testing.T) Config {
	return Config{
		Processor: workflow.ProcessorFunc(func(ctx context.Context, v backend.Video) ([]model.Segment, error) {
			_, _ = io.Copy(io.Discard, v.Body)
			return []model.Segment{{ID: "s1", EndTime: 60, MCQs: []model.MCQ{
				{ID: "q1", Question: "?", Options: []string{"A", "B"}, Answer: "A"},
			}}}, nil
		}),
		UploadDir:      t.TempDir(),
		MaxUploadBytes: upload.DefaultMaxBytes,
	}
}

func mp4(data string) upload.File {
	return upload.File{
		Name:      "lecture.mp4",
		MediaType: "video/mp4",
		Size:      int64(len(data)),
		Source:    upload.SourceDrop,
		Open:      func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte(data))), nil },
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(testConfig(t))

	ws := r.Get("")
	require.NotEmpty(t, ws.ID)
	assert.Same(t, ws, r.Get(ws.ID))
	assert.Equal(t, 1, r.Len())

	other := r.Get("unknown-id")
	assert.NotEqual(t, "unknown-id", other.ID)
	assert.NotSame(t, ws, other)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Lookup(ws.ID)
	assert.True(t, ok)
	assert.Same(t, ws, got)
	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestWorkspacesAreIsolated(t *testing.T) {
	r := NewRegistry(testConfig(t))
	a, b := r.Get(""), r.Get("")

	_, err := a.Gate.Select(upload.File{Name: "x.mov", MediaType: "video/quicktime", Size: 1})
	require.Error(t, err)

	assert.Equal(t, 1, a.Notifications.Len())
	assert.Zero(t, b.Notifications.Len())
}

func TestWorkspaceRunsWorkflow(t *testing.T) {
	r := NewRegistry(testConfig(t))
	ws := r.Get("")

	_, err := ws.Gate.Select(mp4("bytes"))
	require.NoError(t, err)
	c, err := ws.Gate.Take()
	require.NoError(t, err)

	_, err = ws.Workflow.Start(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, ws.Workflow.Wait(context.Background()))

	assert.Equal(t, 1, ws.Results.Len())
	assert.Equal(t, workflow.ViewResults, ws.Workflow.View())
}

func TestQuizLifecycle(t *testing.T) {
	ws := NewRegistry(testConfig(t)).Get("")
	mcqs := []model.MCQ{{ID: "q1", Options: []string{"A", "B"}, Answer: "A"}}

	key := QuizKey{Segment: "s1"}

	q := ws.Quiz(key, mcqs)
	assert.Same(t, q, ws.Quiz(key, nil))
	require.True(t, q.Select("q1", "B"))

	existing, ok := ws.ExistingQuiz(key)
	require.True(t, ok)
	assert.Same(t, q, existing)

	ws.ResetQuizzes()
	_, ok = ws.ExistingQuiz(key)
	assert.False(t, ok)
	assert.Empty(t, ws.Quiz(key, mcqs).Selections())
}

func TestQuizKeyIncludesLecture(t *testing.T) {
	ws := NewRegistry(testConfig(t)).Get("")
	mcqs := []model.MCQ{{ID: "q1", Options: []string{"A", "B"}, Answer: "A"}}

	own := ws.Quiz(QuizKey{Segment: "s1"}, mcqs)
	fromLecture := ws.Quiz(QuizKey{Lecture: "L1", Segment: "s1"}, mcqs)
	assert.NotSame(t, own, fromLecture)

	require.True(t, own.Select("q1", "B"))
	assert.Empty(t, fromLecture.Selections())
	assert.Equal(t, model.ObjectID("s1"), fromLecture.SegmentID())
}

func TestDropReleasesSelection(t *testing.T) {
	cfg := testConfig(t)
	r := NewRegistry(cfg)
	ws := r.Get("")

	_, err := ws.Gate.Select(mp4("spooled"))
	require.NoError(t, err)
	entries, err := os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	r.Drop(ws.ID)
	assert.Zero(t, r.Len())
	entries, err = os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweep(t *testing.T) {
	r := NewRegistry(testConfig(t))
	idle := r.Get("")
	fresh := r.Get("")

	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Hour)
	idle.mu.Unlock()

	assert.Equal(t, 1, r.Sweep(time.Hour))
	_, ok := r.Lookup(idle.ID)
	assert.False(t, ok)
	_, ok = r.Lookup(fresh.ID)
	assert.True(t, ok)
}
