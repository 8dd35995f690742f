// Package notify queues user-visible notifications ("toasts") until the next
// page render picks them up.
package notify

import (
	"log/slog"
	"sync"
)

// Level is the visual severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Message ids shared by the emitters and the locale files.
const (
	MsgInvalidMediaType    = "InvalidMediaType"
	MsgFileTooLarge        = "FileTooLarge"
	MsgNoFile              = "NoFile"
	MsgMultipleFiles       = "MultipleFiles"
	MsgUploadFailed        = "UploadFailed"
	MsgProcessingStarted   = "ProcessingStarted"
	MsgProcessingSucceeded = "ProcessingSucceeded"
	MsgProcessingFailed    = "ProcessingFailed"
	MsgMalformedResult     = "MalformedResult"
	MsgAlreadyProcessing   = "AlreadyProcessing"
	MsgQuizScore           = "QuizScore"
	MsgSegmentExported     = "SegmentExported"
	MsgQuestionsExported   = "QuestionsExported"
	MsgExportFailed        = "ExportFailed"
	MsgLoggedOut           = "LoggedOut"
)

// Notification is a message to show the user. MessageID is a translation key;
// Data fills its template.
type Notification struct {
	Level     Level
	MessageID string
	Data      map[string]any
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Queue is a thread-safe Notifier that buffers notifications for rendering.
type Queue struct {
	mu    sync.Mutex
	items []Notification
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Notify appends a notification.
func (q *Queue) Notify(n Notification) {
	slog.Debug("notification", "level", n.Level, "id", n.MessageID, "data", n.Data)
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()
}

// Drain returns all pending notifications and empties the queue.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of pending notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Success builds a success notification.
func Success(id string, data map[string]any) Notification {
	return Notification{Level: LevelSuccess, MessageID: id, Data: data}
}

// Error builds an error notification.
func Error(id string, data map[string]any) Notification {
	return Notification{Level: LevelError, MessageID: id, Data: data}
}

// Info builds an informational notification.
func Info(id string, data map[string]any) Notification {
	return Notification{Level: LevelInfo, MessageID: id, Data: data}
}
