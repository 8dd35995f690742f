package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lecturequiz/internal/backend"
	"github.com/pavelanni/lecturequiz/internal/handler/views"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/quiz"
	"github.com/pavelanni/lecturequiz/internal/workspace"
)

var errSegmentNotFound = errors.New("segment not found")

// segmentRef is a segment together with where it was found.
type segmentRef struct {
	segment   model.Segment
	number    int
	lectureID model.ObjectID
	lecture   *model.Lecture
}

func (ref segmentRef) quizKey() workspace.QuizKey {
	return workspace.QuizKey{Lecture: ref.lectureID, Segment: ref.segment.ID}
}

// findSegment looks a segment up in the workspace results first and then,
// when lectureID is set, in that lecture from the catalog.
func (h *Handler) findSegment(ctx context.Context, ws *workspace.Workspace, id, lectureID model.ObjectID) (segmentRef, error) {
	if lectureID == "" {
		for i, seg := range ws.Results.Get() {
			if seg.ID == id {
				return segmentRef{segment: seg, number: i + 1}, nil
			}
		}
		return segmentRef{}, errSegmentNotFound
	}

	lecture, err := h.catalog.GetLecture(ctx, lectureID)
	if err != nil {
		return segmentRef{}, err
	}
	for i, seg := range lecture.Chunks {
		if seg.ID == id {
			return segmentRef{segment: seg, number: i + 1, lectureID: lectureID, lecture: &lecture}, nil
		}
	}
	return segmentRef{}, errSegmentNotFound
}

func (h *Handler) segmentFromRequest(w http.ResponseWriter, r *http.Request, lectureID string) (segmentRef, bool) {
	ws := workspaceFrom(r.Context())
	id := model.ObjectID(chi.URLParam(r, "segmentID"))

	ref, err := h.findSegment(r.Context(), ws, id, model.ObjectID(strings.TrimSpace(lectureID)))
	switch {
	case err == nil:
		return ref, true
	case errors.Is(err, errSegmentNotFound), errors.Is(err, backend.ErrLectureNotFound):
		h.renderError(w, r, http.StatusNotFound, "NotFound")
	default:
		slog.Error("failed to load segment", "segment_id", id, "lecture_id", lectureID, "error", err)
		h.renderError(w, r, http.StatusBadGateway, "DashboardLoadFailed")
	}
	return segmentRef{}, false
}

func (h *Handler) handleQuizSelect(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.segmentFromRequest(w, r, r.PostFormValue("lecture"))
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	q := ws.Quiz(ref.quizKey(), ref.segment.MCQs)

	questionID := model.ObjectID(r.PostFormValue("question"))
	if !q.Select(questionID, r.PostFormValue("option")) {
		slog.Debug("ignored quiz selection", "segment_id", ref.segment.ID, "question_id", questionID)
	}
	h.respondQuiz(w, r, ws, ref)
}

func (h *Handler) handleQuizCheck(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.segmentFromRequest(w, r, r.PostFormValue("lecture"))
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	q := ws.Quiz(ref.quizKey(), ref.segment.MCQs)

	res := q.Check()
	h.recordAttempt(r.Context(), q, res)
	h.respondQuiz(w, r, ws, ref)
}

func (h *Handler) recordAttempt(ctx context.Context, q *quiz.Quiz, res quiz.Result) {
	u := model.UserFromContext(ctx)
	if u == nil || res.Total == 0 {
		return
	}
	if _, err := h.store.RecordAttempt(model.QuizAttempt{
		UserID:    u.ID,
		SegmentID: q.SegmentID().String(),
		Correct:   res.Correct,
		Total:     res.Total,
	}); err != nil {
		slog.Error("failed to record quiz attempt", "segment_id", q.SegmentID(), "error", err)
		return
	}
	slog.Info("quiz checked", "user", u.Username, "segment_id", q.SegmentID(), "correct", res.Correct, "total", res.Total)
}

// respondQuiz swaps the quiz in place for htmx requests. Plain form posts get
// the whole page back, with the open quizzes kept as they are.
func (h *Handler) respondQuiz(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, ref segmentRef) {
	if r.Header.Get("HX-Request") == "true" {
		card := h.segmentCard(r.Context(), ws, ref.segment, ref.number, ref.lectureID)
		h.renderPage(w, r, http.StatusOK, views.QuizFragment(views.QuizFragmentData{
			Card:          card,
			Notifications: ws.Notifications.Drain(),
		}))
		return
	}
	if ref.lecture != nil {
		h.renderLecture(w, r, ws, *ref.lecture)
		return
	}
	h.renderHome(w, r, ws)
}
