package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/lecturequiz/internal/backend"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/results"
	"github.com/pavelanni/lecturequiz/internal/upload"
)

func candidate(t *testing.T, name, mediaType string) (*upload.Candidate, error) {
	t.Helper()
	g := upload.NewGate("", upload.DefaultMaxBytes, notify.NewQueue())
	data := []byte("mp4 payload")
	return g.Select(upload.File{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Source:    upload.SourcePicker,
		Open:      func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	})
}

func collect(t *testing.T, events <-chan State) []State {
	t.Helper()
	var got []State
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, s)
		case <-timeout:
			t.Fatalf("events channel not closed; got %v", got)
		}
	}
}

// gatedProcessor blocks until release is closed, so tests can observe the
// optimistic state before the backend answers.
type gatedProcessor struct {
	release  chan struct{}
	segments []model.Segment
	err      error
	gotVideo backend.Video
	gotBody  string
}

func (p *gatedProcessor) ProcessVideo(ctx context.Context, v backend.Video) ([]model.Segment, error) {
	<-p.release
	p.gotVideo = v
	b, _ := io.ReadAll(v.Body)
	p.gotBody = string(b)
	return p.segments, p.err
}

func TestSuccessfulRunStageSequence(t *testing.T) {
	q := notify.NewQueue()
	res := results.New()
	p := &gatedProcessor{
		release: make(chan struct{}),
		segments: []model.Segment{
			{ID: "s1", StartTime: 0, EndTime: 300},
			{ID: "s2", StartTime: 300, EndTime: 600},
		},
	}
	wf := New(p, res, q, 0)

	c, err := candidate(t, "lecture.mp4", "video/mp4")
	require.NoError(t, err)

	events, err := wf.Start(context.Background(), c)
	require.NoError(t, err)

	// The optimistic advance is visible before the backend has answered.
	assert.Equal(t, State{Stage: StageTranscription, Progress: 30, Active: true}, wf.Snapshot())
	assert.Equal(t, ViewProcessing, wf.View())
	assert.Zero(t, res.Len())

	close(p.release)
	got := collect(t, events)

	assert.Equal(t, []State{
		{Stage: StageUpload, Progress: 10, Active: true},
		{Stage: StageTranscription, Progress: 30, Active: true},
		{Stage: StageSegmentation, Progress: 60, Active: true},
		{Stage: StageGeneration, Progress: 90, Active: true},
		{Stage: StageComplete, Progress: 100, Active: true},
	}, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Stage.Index(), got[i-1].Stage.Index())
		assert.GreaterOrEqual(t, got[i].Progress, got[i-1].Progress)
	}

	require.NoError(t, wf.Wait(context.Background()))
	assert.Equal(t, State{Stage: StageComplete, Progress: 100, Active: false}, wf.Snapshot())
	assert.Equal(t, ViewResults, wf.View())
	assert.Equal(t, 2, res.Len())

	assert.Equal(t, "lecture.mp4", p.gotVideo.Name)
	assert.Equal(t, "video/mp4", p.gotVideo.MediaType)
	assert.Equal(t, "mp4 payload", p.gotBody)

	ids := []string{}
	for _, n := range q.Drain() {
		ids = append(ids, n.MessageID)
	}
	assert.Equal(t, []string{notify.MsgProcessingStarted, notify.MsgProcessingSucceeded}, ids)
}

func TestFailedRunResets(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"non-2xx", &backend.StatusError{Err: backend.ErrUploadFailed, StatusCode: 500}, notify.MsgProcessingFailed},
		{"transport", fmt.Errorf("%w: connection refused", backend.ErrUploadFailed), notify.MsgProcessingFailed},
		{"malformed", fmt.Errorf("%w: missing chunks", backend.ErrMalformedResult), notify.MsgMalformedResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := notify.NewQueue()
			res := results.New()
			p := &gatedProcessor{release: make(chan struct{}), err: tt.err}
			wf := New(p, res, q, time.Hour)

			c, err := candidate(t, "lecture.mp4", "video/mp4")
			require.NoError(t, err)
			events, err := wf.Start(context.Background(), c)
			require.NoError(t, err)
			close(p.release)

			got := collect(t, events)
			require.Len(t, got, 3)
			assert.Equal(t, StageTranscription, got[1].Stage)
			assert.Equal(t, Initial(), got[2])

			err = wf.Wait(context.Background())
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, State{Stage: StageUpload, Progress: 0, Active: false}, wf.Snapshot())
			assert.Equal(t, ViewUpload, wf.View())
			assert.Zero(t, res.Len())

			notes := q.Drain()
			require.Len(t, notes, 2)
			assert.Equal(t, notify.LevelError, notes[1].Level)
			assert.Equal(t, tt.wantMsg, notes[1].MessageID)
		})
	}
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	q := notify.NewQueue()
	p := &gatedProcessor{release: make(chan struct{})}
	wf := New(p, results.New(), q, 0)

	c1, err := candidate(t, "a.mp4", "video/mp4")
	require.NoError(t, err)
	events, err := wf.Start(context.Background(), c1)
	require.NoError(t, err)

	c2, err := candidate(t, "b.mp4", "video/mp4")
	require.NoError(t, err)
	_, err = wf.Start(context.Background(), c2)
	assert.ErrorIs(t, err, ErrBusy)

	close(p.release)
	collect(t, events)
	require.NoError(t, wf.Wait(context.Background()))

	var busy int
	for _, n := range q.Drain() {
		if n.MessageID == notify.MsgAlreadyProcessing {
			busy++
		}
	}
	assert.Equal(t, 1, busy)

	// A new run is accepted once the previous one is over.
	p2 := &gatedProcessor{release: make(chan struct{})}
	close(p2.release)
	wf.processor = p2
	events, err = wf.Start(context.Background(), c2)
	require.NoError(t, err)
	collect(t, events)
}

func TestStartSurvivesCallerCancellation(t *testing.T) {
	p := &gatedProcessor{release: make(chan struct{}), segments: []model.Segment{{ID: "s1", EndTime: 1}}}
	wf := New(p, results.New(), notify.NewQueue(), 0)

	c, err := candidate(t, "a.mp4", "video/mp4")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := wf.Start(ctx, c)
	require.NoError(t, err)
	cancel()
	close(p.release)

	got := collect(t, events)
	assert.Equal(t, StageComplete, got[len(got)-1].Stage)
}

func TestRejectedFileNeverStartsWorkflow(t *testing.T) {
	q := notify.NewQueue()
	wf := New(ProcessorFunc(func(context.Context, backend.Video) ([]model.Segment, error) {
		t.Fatal("processor must not be called")
		return nil, nil
	}), results.New(), q, 0)

	c, err := candidate(t, "lecture.mov", "video/quicktime")
	require.ErrorIs(t, err, upload.ErrInvalidMediaType)

	_, err = wf.Start(context.Background(), c)
	assert.ErrorIs(t, err, upload.ErrNoFile)
	assert.Equal(t, State{Stage: StageUpload, Progress: 0, Active: false}, wf.Snapshot())
	assert.Equal(t, ViewUpload, wf.View())
	assert.NoError(t, wf.Wait(context.Background()))
}

func TestResultsDelayKeepsRunActive(t *testing.T) {
	p := &gatedProcessor{release: make(chan struct{}), segments: []model.Segment{{ID: "s1", EndTime: 1}}}
	wf := New(p, results.New(), notify.NewQueue(), 300*time.Millisecond)

	c, err := candidate(t, "a.mp4", "video/mp4")
	require.NoError(t, err)
	_, err = wf.Start(context.Background(), c)
	require.NoError(t, err)
	close(p.release)

	require.Eventually(t, func() bool {
		return wf.Snapshot().Stage == StageComplete
	}, time.Second, 5*time.Millisecond)
	assert.True(t, wf.Snapshot().Active, "still active during the results delay")
	assert.Equal(t, ViewProcessing, wf.View())

	require.NoError(t, wf.Wait(context.Background()))
	assert.False(t, wf.Snapshot().Active)
	assert.Equal(t, ViewResults, wf.View())
}

func TestTabsAndSetView(t *testing.T) {
	res := results.New()
	wf := New(ProcessorFunc(nil), res, notify.NewQueue(), 0)

	assert.Equal(t, []Tab{
		{View: ViewUpload, Enabled: true, Current: true},
		{View: ViewProcessing, Enabled: false},
		{View: ViewResults, Enabled: false},
	}, wf.Tabs())
	assert.False(t, wf.SetView(ViewResults))
	assert.False(t, wf.SetView(ViewProcessing))

	res.Set([]model.Segment{{ID: "s1", EndTime: 1}})
	assert.True(t, wf.SetView(ViewResults))
	assert.Equal(t, ViewResults, wf.View())
	assert.True(t, wf.SetView(ViewProcessing))
	assert.True(t, wf.SetView(ViewUpload))
}

func TestSteps(t *testing.T) {
	steps := Steps(StageSegmentation)
	require.Len(t, steps, 5)
	want := []StepStatus{StepComplete, StepComplete, StepActive, StepPending, StepPending}
	for i, s := range steps {
		assert.Equal(t, want[i], s.Status, "step %d", i)
		assert.Equal(t, i+1, s.Number)
	}

	for _, s := range Steps(StageComplete)[:4] {
		assert.Equal(t, StepComplete, s.Status)
	}
	assert.Equal(t, StepActive, Steps(StageUpload)[0].Status)
}

func TestParseView(t *testing.T) {
	v, ok := ParseView("results")
	assert.True(t, ok)
	assert.Equal(t, ViewResults, v)
	_, ok = ParseView("settings")
	assert.False(t, ok)
}

func TestStageHelpers(t *testing.T) {
	assert.Equal(t, 0, StageUpload.Index())
	assert.Equal(t, 4, StageComplete.Index())
	assert.Equal(t, -1, Stage("bogus").Index())
	assert.Equal(t, "StageGeneration", StageGeneration.MessageID())
}
