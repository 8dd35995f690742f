// Package views holds the templ page components and the data they render.
package views

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"

	appI18n "github.com/pavelanni/lecturequiz/internal/i18n"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
	"github.com/pavelanni/lecturequiz/internal/quiz"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
)

// Layout is the data every full page shares.
type Layout struct {
	User          *model.User
	Notifications []notify.Notification
	Languages     []string
}

// SegmentCard is one transcript segment with its quiz.
type SegmentCard struct {
	Number     int
	Segment    model.Segment
	TimeRange  string
	Questions  []quiz.QuestionView
	Checked    bool
	Open       bool
	Best       *model.QuizAttempt
	LectureID  model.ObjectID
	Exportable bool
}

// HomeData drives the upload / processing / results tabs.
type HomeData struct {
	Layout
	View      workflow.View
	Tabs      []workflow.Tab
	State     workflow.State
	Steps     []workflow.Step
	Selected  *upload.Candidate
	MaxUpload int64
	Accept    string
	Segments  []SegmentCard
	Recent    []model.QuizAttempt
}

// LectureRow is one line of the dashboard table.
type LectureRow struct {
	ID        model.ObjectID
	Title     string
	FullTitle string
	Created   time.Time
	Duration  float64
	Segments  int
}

// DashboardData drives the lecture catalog page.
type DashboardData struct {
	Layout
	Lectures   []LectureRow
	LoadFailed bool
}

// LectureData drives the lecture detail page.
type LectureData struct {
	Layout
	Lecture  model.Lecture
	Segments []SegmentCard
}

// AuthData drives the login and register forms.
type AuthData struct {
	Layout
	ErrorID   string
	ErrorData map[string]any
	Username  string
}

// ErrorData drives the error page.
type ErrorData struct {
	Layout
	Status    int
	MessageID string
}

// QuizFragmentData is a quiz re-rendered after a selection or a check, with
// the notifications it produced.
type QuizFragmentData struct {
	Card          SegmentCard
	Notifications []notify.Notification
}

func t(ctx context.Context, id string) string { return appI18n.T(ctx, id) }

func tp(ctx context.Context, id string, n int) string { return appI18n.Tp(ctx, id, n) }

// td translates id with alternating key/value template data.
func td(ctx context.Context, id string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		data[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return appI18n.Td(ctx, id, data)
}

func notification(ctx context.Context, n notify.Notification) string {
	return appI18n.Td(ctx, n.MessageID, n.Data)
}

func authError(ctx context.Context, d AuthData) string {
	if d.ErrorData != nil {
		return appI18n.Td(ctx, d.ErrorID, d.ErrorData)
	}
	return appI18n.T(ctx, d.ErrorID)
}

func path(ctx context.Context, p string) string { return model.BasePathFromContext(ctx) + p }

func csrf(ctx context.Context) string { return model.CSRFTokenFromContext(ctx) }

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

var tabMessageIDs = map[workflow.View]string{
	workflow.ViewUpload:     "TabUpload",
	workflow.ViewProcessing: "TabProcessing",
	workflow.ViewResults:    "TabResults",
}

func tabLabel(ctx context.Context, v workflow.View) string { return appI18n.T(ctx, tabMessageIDs[v]) }

func stageLabel(ctx context.Context, s workflow.Stage) string { return appI18n.T(ctx, s.MessageID()) }

// segmentURL builds /<kind>/<segment>/<action>, carrying the lecture when the
// segment came from the catalog.
func segmentURL(ctx context.Context, kind string, c SegmentCard, action string) string {
	u := path(ctx, "/"+kind+"/"+url.PathEscape(c.Segment.ID.String())+"/"+action)
	if c.LectureID != "" && action == "export" {
		u += "?lecture=" + url.QueryEscape(c.LectureID.String())
	}
	return u
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// FormatDuration renders seconds as M:SS, or H:MM:SS for an hour or more.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
