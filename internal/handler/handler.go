package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lecturequiz/internal/backend"
	"github.com/pavelanni/lecturequiz/internal/export"
	"github.com/pavelanni/lecturequiz/internal/handler/views"
	appI18n "github.com/pavelanni/lecturequiz/internal/i18n"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/store"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
	"github.com/pavelanni/lecturequiz/internal/workspace"
)

const (
	workspaceCookieName = "workspace"

	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling to disk.
	multipartMemory = 32 << 20
	// uploadSlack covers multipart framing and form fields around the video.
	uploadSlack = 1 << 20

	recentAttempts = 5
)

// Catalog is the read side of the processing backend.
type Catalog interface {
	ListLectures(ctx context.Context) ([]model.Lecture, error)
	GetLecture(ctx context.Context, id model.ObjectID) (model.Lecture, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	catalog    Catalog
	workspaces *workspace.Registry
	exporter   *export.Exporter
	config     model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, c Catalog, ws *workspace.Registry, ex *export.Exporter, cfg model.AppConfig) (*Handler, error) {
	if s == nil || c == nil || ws == nil {
		return nil, errors.New("handler: store, catalog and workspaces are required")
	}
	if ex == nil {
		ex = export.New(0)
	}
	return &Handler{store: s, catalog: c, workspaces: ws, exporter: ex, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.limitBody)
	r.Use(h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.handleRegisterPage)
	r.Post("/register", h.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(h.withWorkspace)

		r.Post("/logout", h.handleLogout)

		r.Get("/", h.handleHome)
		r.Post("/upload/select", h.handleUploadSelect)
		r.Post("/upload/process", h.handleUploadProcess)
		r.Post("/upload/clear", h.handleUploadClear)
		r.Get("/processing/status", h.handleProcessingStatus)

		r.Get("/dashboard", h.handleDashboard)
		r.Get("/lectures/{lectureID}", h.handleLecture)

		r.Post("/quiz/{segmentID}/select", h.handleQuizSelect)
		r.Post("/quiz/{segmentID}/check", h.handleQuizCheck)
		r.Get("/segments/{segmentID}/export", h.handleSegmentExport)
		r.Get("/quiz/{segmentID}/export", h.handleQuizExport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, http.StatusNotFound, "NotFound")
	})
}

type workspaceCtxKey struct{}

// withWorkspace attaches the browser's workspace, issuing a new one when the
// cookie is missing or stale.
func (h *Handler) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(workspaceCookieName); err == nil {
			id = c.Value
		}
		ws := h.workspaces.Get(id)
		if ws.ID != id {
			h.setCookie(w, workspaceCookieName, ws.ID, true)
		}
		ctx := context.WithValue(r.Context(), workspaceCtxKey{}, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func workspaceFrom(ctx context.Context) *workspace.Workspace {
	ws, _ := ctx.Value(workspaceCtxKey{}).(*workspace.Workspace)
	return ws
}

func (h *Handler) layout(r *http.Request, ws *workspace.Workspace) views.Layout {
	l := views.Layout{
		User:      model.UserFromContext(r.Context()),
		Languages: appI18n.Languages(),
	}
	if ws != nil {
		l.Notifications = ws.Notifications.Drain()
	}
	return l
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	h.renderPage(w, r, status, views.ErrorPage(views.ErrorData{
		Layout:    h.layout(r, workspaceFrom(r.Context())),
		Status:    status,
		MessageID: msgID,
	}))
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	if tab := r.URL.Query().Get("tab"); tab != "" {
		if v, ok := workflow.ParseView(tab); ok && !ws.Workflow.SetView(v) {
			slog.Debug("tab not available", "tab", tab)
		}
	}
	ws.ResetQuizzes()
	h.renderHome(w, r, ws)
}

func (h *Handler) renderHome(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) {
	state := ws.Workflow.Snapshot()
	d := views.HomeData{
		View:      ws.Workflow.View(),
		Tabs:      ws.Workflow.Tabs(),
		State:     state,
		Steps:     workflow.Steps(state.Stage),
		Selected:  ws.Gate.Current(),
		MaxUpload: h.config.MaxUploadBytes,
		Accept:    upload.AcceptedMediaType,
	}
	if d.View == workflow.ViewResults {
		d.Segments = h.segmentCards(r.Context(), ws, ws.Results.Get(), "")
		if u := model.UserFromContext(r.Context()); u != nil {
			recent, err := h.store.RecentAttempts(u.ID, recentAttempts)
			if err != nil {
				slog.Error("failed to load recent attempts", "user", u.ID, "error", err)
			}
			d.Recent = recent
		}
	}
	// Drain last so notifications raised while building the page are shown.
	d.Layout = h.layout(r, ws)
	h.renderPage(w, r, http.StatusOK, views.HomePage(d))
}

// segmentCards builds the rendered cards for segments, opening a quiz for
// each one in the workspace.
func (h *Handler) segmentCards(ctx context.Context, ws *workspace.Workspace, segments []model.Segment, lectureID model.ObjectID) []views.SegmentCard {
	cards := make([]views.SegmentCard, 0, len(segments))
	for i, seg := range segments {
		cards = append(cards, h.segmentCard(ctx, ws, seg, i+1, lectureID))
	}
	return cards
}

func (h *Handler) segmentCard(ctx context.Context, ws *workspace.Workspace, seg model.Segment, number int, lectureID model.ObjectID) views.SegmentCard {
	if seg.ChunkNumber > 0 {
		number = seg.ChunkNumber
	}
	q := ws.Quiz(workspace.QuizKey{Lecture: lectureID, Segment: seg.ID}, seg.MCQs)
	card := views.SegmentCard{
		Number:     number,
		Segment:    seg,
		TimeRange:  export.TimeRange(seg.StartTime, seg.EndTime),
		Questions:  q.View(),
		Checked:    q.ShowAnswers(),
		Open:       q.ShowAnswers() || len(q.Selections()) > 0,
		LectureID:  lectureID,
		Exportable: true,
	}
	if u := model.UserFromContext(ctx); u != nil {
		best, err := h.store.BestAttempt(u.ID, seg.ID.String())
		if err != nil {
			slog.Error("failed to load best attempt", "segment_id", seg.ID, "error", err)
		}
		card.Best = best
	}
	return card
}

type statusStep struct {
	Stage  workflow.Stage      `json:"stage"`
	Label  string              `json:"label"`
	Status workflow.StepStatus `json:"status"`
}

type statusResponse struct {
	workflow.State
	Label    string        `json:"label"`
	View     workflow.View `json:"view"`
	Steps    []statusStep  `json:"steps"`
	Segments int           `json:"segments"`
}

func (h *Handler) handleProcessingStatus(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	state := ws.Workflow.Snapshot()
	resp := statusResponse{
		State:    state,
		Label:    appI18n.T(r.Context(), state.Stage.MessageID()),
		View:     ws.Workflow.View(),
		Segments: ws.Results.Len(),
	}
	for _, s := range workflow.Steps(state.Stage) {
		resp.Steps = append(resp.Steps, statusStep{
			Stage:  s.Stage,
			Label:  appI18n.T(r.Context(), s.Stage.MessageID()),
			Status: s.Status,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encode status", "error", err)
	}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	d := views.DashboardData{}

	lectures, err := h.catalog.ListLectures(r.Context())
	if err != nil {
		slog.Error("failed to list lectures", "error", err)
		d.LoadFailed = true
	}
	for _, l := range lectures {
		d.Lectures = append(d.Lectures, views.LectureRow{
			ID:        l.ID,
			Title:     l.ShortTitle(),
			FullTitle: l.VideoName,
			Created:   l.CreatedAt.Time,
			Duration:  l.Duration(),
			Segments:  len(l.Chunks),
		})
	}

	d.Layout = h.layout(r, ws)
	h.renderPage(w, r, http.StatusOK, views.DashboardPage(d))
}

func (h *Handler) handleLecture(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	id := model.ObjectID(chi.URLParam(r, "lectureID"))

	lecture, err := h.catalog.GetLecture(r.Context(), id)
	if errors.Is(err, backend.ErrLectureNotFound) {
		h.renderError(w, r, http.StatusNotFound, "LectureNotFound")
		return
	}
	if err != nil {
		slog.Error("failed to load lecture", "lecture_id", id, "error", err)
		h.renderError(w, r, http.StatusBadGateway, "DashboardLoadFailed")
		return
	}

	ws.ResetQuizzes()
	h.renderLecture(w, r, ws, lecture)
}

func (h *Handler) renderLecture(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, lecture model.Lecture) {
	d := views.LectureData{
		Lecture:  lecture,
		Segments: h.segmentCards(r.Context(), ws, lecture.Chunks, lecture.ID),
	}
	d.Layout = h.layout(r, ws)
	h.renderPage(w, r, http.StatusOK, views.LecturePage(d))
}
