// Package workflow drives the staged processing of an uploaded lecture video:
// upload, transcription, segmentation, question generation, complete.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/lecturequiz/internal/backend"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/results"
	"github.com/pavelanni/lecturequiz/internal/upload"
)

// ErrBusy is returned by Start while a run is still active.
var ErrBusy = errors.New("processing already in progress")

// DefaultResultsDelay is the pause between reaching "complete" and switching
// to the results view.
const DefaultResultsDelay = 500 * time.Millisecond

// Processor performs the backend call.
type Processor interface {
	ProcessVideo(ctx context.Context, v backend.Video) ([]model.Segment, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, v backend.Video) ([]model.Segment, error)

// ProcessVideo calls f.
func (f ProcessorFunc) ProcessVideo(ctx context.Context, v backend.Video) ([]model.Segment, error) {
	return f(ctx, v)
}

// Workflow owns the processing state of one upload interaction.
type Workflow struct {
	processor    Processor
	results      *results.Model
	notifier     notify.Notifier
	resultsDelay time.Duration

	mu      sync.Mutex
	state   State
	view    View
	lastErr error
	done    chan struct{}
}

// New creates a workflow that stores its output in res.
func New(p Processor, res *results.Model, n notify.Notifier, resultsDelay time.Duration) *Workflow {
	return &Workflow{
		processor:    p,
		results:      res,
		notifier:     n,
		resultsDelay: resultsDelay,
		state:        Initial(),
		view:         ViewUpload,
	}
}

// Start submits the candidate. It emits upload(10) and the simulated
// transcription(30) step before returning, then runs the backend call in the
// background. The returned channel receives every subsequent state change and
// is closed when the run is over. The candidate is released when the run
// ends.
//
// Runs are not cancellable: the backend call is detached from ctx
// cancellation and is bounded only by the processor's own timeout.
func (w *Workflow) Start(ctx context.Context, c *upload.Candidate) (<-chan State, error) {
	if c == nil {
		return nil, upload.ErrNoFile
	}

	w.mu.Lock()
	if w.state.Active {
		w.mu.Unlock()
		w.notifier.Notify(notify.Info(notify.MsgAlreadyProcessing, nil))
		return nil, ErrBusy
	}
	events := make(chan State, len(Stages)+1)
	done := make(chan struct{})
	w.done = done
	w.lastErr = nil
	w.view = ViewProcessing
	w.emitLocked(events, State{Stage: StageUpload, Progress: progressFor[StageUpload], Active: true})
	w.mu.Unlock()

	slog.Info("processing started", "name", c.Name, "size", c.Size, "source", c.Source)
	w.notifier.Notify(notify.Info(notify.MsgProcessingStarted, map[string]any{"Name": c.Name}))

	w.simulateProgress(events)

	go w.run(context.WithoutCancel(ctx), c, events, done)
	return events, nil
}

// simulateProgress moves the display to the transcription stage without
// waiting for the backend. It is a display step only: it does not mean
// transcription has begun, and it never blocks on the network.
func (w *Workflow) simulateProgress(events chan<- State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.Active || w.state.Stage != StageUpload {
		return
	}
	w.emitLocked(events, State{Stage: StageTranscription, Progress: progressFor[StageTranscription], Active: true})
}

func (w *Workflow) run(ctx context.Context, c *upload.Candidate, events chan State, done chan struct{}) {
	defer close(done)
	defer close(events)
	defer func() {
		if err := c.Release(); err != nil {
			slog.Warn("release submitted candidate", "name", c.Name, "error", err)
		}
	}()

	segments, err := w.process(ctx, c)
	if err != nil {
		w.fail(events, err)
		return
	}
	w.succeed(events, segments)
}

func (w *Workflow) process(ctx context.Context, c *upload.Candidate) ([]model.Segment, error) {
	body, err := c.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", backend.ErrUploadFailed, c.Name, err)
	}
	defer body.Close()

	return w.processor.ProcessVideo(ctx, backend.Video{
		Name:      c.Name,
		MediaType: c.MediaType,
		Body:      body,
	})
}

func (w *Workflow) succeed(events chan<- State, segments []model.Segment) {
	w.mu.Lock()
	w.emitLocked(events, State{Stage: StageSegmentation, Progress: progressFor[StageSegmentation], Active: true})
	w.emitLocked(events, State{Stage: StageGeneration, Progress: progressFor[StageGeneration], Active: true})
	kept := w.results.Set(segments)
	w.emitLocked(events, State{Stage: StageComplete, Progress: progressFor[StageComplete], Active: true})
	w.mu.Unlock()

	slog.Info("processing complete", "segments", kept, "received", len(segments))
	w.notifier.Notify(notify.Success(notify.MsgProcessingSucceeded, map[string]any{"Count": kept}))

	if w.resultsDelay > 0 {
		time.Sleep(w.resultsDelay)
	}

	w.mu.Lock()
	w.state.Active = false
	w.view = ViewResults
	w.mu.Unlock()
}

func (w *Workflow) fail(events chan<- State, err error) {
	w.mu.Lock()
	w.lastErr = err
	w.view = ViewUpload
	w.state = Initial()
	events <- w.state
	w.mu.Unlock()

	slog.Error("processing failed", "error", err)
	msg := notify.MsgProcessingFailed
	if errors.Is(err, backend.ErrMalformedResult) {
		msg = notify.MsgMalformedResult
	}
	w.notifier.Notify(notify.Error(msg, nil))
}

// emitLocked applies a forward transition and publishes it. w.mu must be held.
func (w *Workflow) emitLocked(events chan<- State, s State) {
	if w.state.Active && s.Stage.Index() < w.state.Stage.Index() {
		slog.Error("refusing backward stage transition", "from", w.state.Stage, "to", s.Stage)
		return
	}
	if w.state.Active && s.Progress < w.state.Progress {
		s.Progress = w.state.Progress
	}
	w.state = s
	events <- s
}

// Snapshot returns the current processing state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// View returns the view the user should currently see.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// SetView switches views if the target tab is enabled.
func (w *Workflow) SetView(v View) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !tabEnabled(v, w.state.Active, w.results.Len() > 0) {
		return false
	}
	w.view = v
	return true
}

// Tabs returns the tab strip for the current state.
func (w *Workflow) Tabs() []Tab {
	w.mu.Lock()
	defer w.mu.Unlock()
	hasResults := w.results.Len() > 0
	tabs := make([]Tab, 0, len(views))
	for _, v := range views {
		tabs = append(tabs, Tab{
			View:    v,
			Enabled: tabEnabled(v, w.state.Active, hasResults),
			Current: v == w.view,
		})
	}
	return tabs
}

// Results returns the model the workflow writes into.
func (w *Workflow) Results() *results.Model {
	return w.results
}

// Wait blocks until the current run finishes or ctx is done, and returns the
// run's error, if any.
func (w *Workflow) Wait(ctx context.Context) error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
