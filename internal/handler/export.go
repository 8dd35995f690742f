package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pavelanni/lecturequiz/internal/export"
	"github.com/pavelanni/lecturequiz/internal/notify"
)

func (h *Handler) handleSegmentExport(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.segmentFromRequest(w, r, r.URL.Query().Get("lecture"))
	if !ok {
		return
	}
	doc, err := h.exporter.Segment(ref.segment)
	h.sendDocument(w, r, ref, doc, err, notify.MsgSegmentExported)
}

func (h *Handler) handleQuizExport(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.segmentFromRequest(w, r, r.URL.Query().Get("lecture"))
	if !ok {
		return
	}
	doc, err := h.exporter.QuizSet(ref.segment.MCQs, ref.segment.ID)
	h.sendDocument(w, r, ref, doc, err, notify.MsgQuestionsExported)
}

// sendDocument serves doc as a download and queues the outcome toast for the
// next page the browser renders. A failed export goes back to the page the
// segment was shown on.
func (h *Handler) sendDocument(w http.ResponseWriter, r *http.Request, ref segmentRef, doc export.Document, err error, successID string) {
	ws := workspaceFrom(r.Context())
	if err != nil {
		slog.Error("export failed", "path", r.URL.Path, "lecture_id", ref.lectureID, "error", err)
		ws.Notifications.Notify(notify.Error(notify.MsgExportFailed, nil))
		if ref.lectureID != "" {
			http.Redirect(w, r, h.path("/lectures/"+url.PathEscape(ref.lectureID.String())), http.StatusSeeOther)
			return
		}
		h.redirectHome(w, r)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	if _, err := w.Write(doc.Data); err != nil {
		slog.Warn("failed to write export", "file", doc.Filename, "error", err)
		return
	}
	ws.Notifications.Notify(notify.Success(successID, map[string]any{"File": doc.Filename}))
	slog.Info("exported", "file", doc.Filename, "bytes", len(doc.Data))
}
