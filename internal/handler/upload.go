package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
)

const videoField = "video"

// multipartFiles turns the uploaded parts of field into gate input.
func multipartFiles(r *http.Request, field string) []upload.File {
	if r.MultipartForm == nil {
		return nil
	}
	source := upload.SourcePicker
	if upload.Source(r.PostFormValue("source")) == upload.SourceDrop {
		source = upload.SourceDrop
	}

	headers := r.MultipartForm.File[field]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" && fh.Size == 0 {
			// Browsers post an empty part when nothing was picked.
			continue
		}
		files = append(files, upload.File{
			Name:      fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Size:      fh.Size,
			Source:    source,
			Open:      func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return files
}

// uploadFormFailed reports a body that could not be read. Nothing else in
// the request is acted on.
func (h *Handler) uploadFormFailed(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		slog.Warn("upload body too large", "path", r.URL.Path, "limit", tooLarge.Limit)
		h.renderError(w, r, http.StatusRequestEntityTooLarge, "RequestTooLarge")
		return
	}
	slog.Warn("failed to parse upload", "path", r.URL.Path, "error", err)
	workspaceFrom(r.Context()).Notifications.Notify(notify.Error(notify.MsgUploadFailed, nil))
	h.redirectHome(w, r)
}

func (h *Handler) handleUploadSelect(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	if err := parseForm(r); err != nil {
		h.uploadFormFailed(w, r, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	// Rejections are reported through the workspace notifications.
	_, _ = ws.Gate.SelectFiles(multipartFiles(r, videoField))
	h.redirectHome(w, r)
}

// handleUploadProcess submits the selected file. A file posted with the
// same request is selected first, so a single form can do both.
func (h *Handler) handleUploadProcess(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	if err := parseForm(r); err != nil {
		h.uploadFormFailed(w, r, err)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if files := multipartFiles(r, videoField); len(files) > 0 {
		if _, err := ws.Gate.SelectFiles(files); err != nil {
			h.redirectHome(w, r)
			return
		}
	}

	c, err := ws.Gate.Take()
	if err != nil {
		ws.Notifications.Notify(notify.Error(notify.MsgNoFile, nil))
		h.redirectHome(w, r)
		return
	}

	if _, err := ws.Workflow.Start(r.Context(), c); err != nil {
		if errors.Is(err, workflow.ErrBusy) {
			ws.Gate.Restore(c)
		} else {
			slog.Error("failed to start processing", "name", c.Name, "error", err)
			if rerr := c.Release(); rerr != nil {
				slog.Warn("release candidate", "name", c.Name, "error", rerr)
			}
		}
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleUploadClear(w http.ResponseWriter, r *http.Request) {
	workspaceFrom(r.Context()).Gate.Clear()
	h.redirectHome(w, r)
}
