// Package workspace keeps the per-browser state of one upload interaction:
// the selected file, the processing workflow, its results, open quizzes and
// pending notifications.
package workspace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/quiz"
	"github.com/pavelanni/lecturequiz/internal/results"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
)

// Config holds what every new workspace is built from.
type Config struct {
	Processor      workflow.Processor
	UploadDir      string
	MaxUploadBytes int64
	ResultsDelay   time.Duration
}

// Workspace is the state behind one browser session.
type Workspace struct {
	ID            string
	Notifications *notify.Queue
	Gate          *upload.Gate
	Workflow      *workflow.Workflow
	Results       *results.Model

	mu       sync.Mutex
	quizzes  map[QuizKey]*quiz.Quiz
	lastSeen time.Time
}

// QuizKey identifies a quiz by its segment and the lecture it was opened
// from. Segments of the workspace's own results have an empty Lecture.
type QuizKey struct {
	Lecture model.ObjectID
	Segment model.ObjectID
}

func newWorkspace(id string, cfg Config) *Workspace {
	q := notify.NewQueue()
	res := results.New()
	return &Workspace{
		ID:            id,
		Notifications: q,
		Gate:          upload.NewGate(cfg.UploadDir, cfg.MaxUploadBytes, q),
		Workflow:      workflow.New(cfg.Processor, res, q, cfg.ResultsDelay),
		Results:       res,
		quizzes:       make(map[QuizKey]*quiz.Quiz),
		lastSeen:      time.Now(),
	}
}

// ResetQuizzes drops every quiz instance. Pages call it when they are
// (re)loaded so selections never survive a reload.
func (ws *Workspace) ResetQuizzes() {
	ws.mu.Lock()
	ws.quizzes = make(map[QuizKey]*quiz.Quiz)
	ws.mu.Unlock()
}

// Quiz returns the quiz for key, creating it from mcqs on first use.
func (ws *Workspace) Quiz(key QuizKey, mcqs []model.MCQ) *quiz.Quiz {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if q, ok := ws.quizzes[key]; ok {
		return q
	}
	q := quiz.New(key.Segment, mcqs, ws.Notifications)
	ws.quizzes[key] = q
	return q
}

// ExistingQuiz returns the quiz for key if one has been opened.
func (ws *Workspace) ExistingQuiz(key QuizKey) (*quiz.Quiz, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	q, ok := ws.quizzes[key]
	return q, ok
}

func (ws *Workspace) touch(now time.Time) {
	ws.mu.Lock()
	ws.lastSeen = now
	ws.mu.Unlock()
}

func (ws *Workspace) idleSince(now time.Time) time.Duration {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return now.Sub(ws.lastSeen)
}

// close releases the spooled file held by the gate.
func (ws *Workspace) close() {
	ws.Gate.Clear()
}

// Registry maps workspace ids to workspaces.
type Registry struct {
	cfg Config

	mu    sync.Mutex
	items map[string]*Workspace
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.ResultsDelay < 0 {
		cfg.ResultsDelay = 0
	}
	return &Registry{cfg: cfg, items: make(map[string]*Workspace)}
}

// Get returns the workspace for id, creating a fresh one when id is empty or
// unknown. The returned workspace's ID may differ from id.
func (r *Registry) Get(id string) *Workspace {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.items[id]; ok && id != "" {
		ws.touch(now)
		return ws
	}
	ws := newWorkspace(uuid.NewString(), r.cfg)
	r.items[ws.ID] = ws
	slog.Debug("workspace created", "id", ws.ID)
	return ws
}

// Lookup returns an existing workspace without creating one.
func (r *Registry) Lookup(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.items[id]
	return ws, ok
}

// Drop removes a workspace, releasing its selection.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	ws, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if ok {
		ws.close()
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep drops workspaces idle for longer than maxIdle whose workflow is not
// running, and returns how many were dropped.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	now := time.Now()
	r.mu.Lock()
	var stale []*Workspace
	for id, ws := range r.items {
		if ws.idleSince(now) > maxIdle && !ws.Workflow.Snapshot().Active {
			stale = append(stale, ws)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range stale {
		ws.close()
	}
	if len(stale) > 0 {
		slog.Info("swept idle workspaces", "count", len(stale))
	}
	return len(stale)
}
