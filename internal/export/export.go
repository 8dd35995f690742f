// Package export builds the downloadable JSON documents for segments and
// their quizzes.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/pavelanni/lecturequiz/internal/model"
)

// DefaultMaxBytes bounds the size of a generated document.
const DefaultMaxBytes = 8 << 20

// ErrDocumentTooLarge is returned when a document exceeds the size guard.
var ErrDocumentTooLarge = errors.New("export document too large")

// Document is a ready-to-download file.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Exporter serialises segments and quiz sets.
type Exporter struct {
	maxBytes int
}

// New creates an exporter. A maxBytes of zero or less uses DefaultMaxBytes.
func New(maxBytes int) *Exporter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Exporter{maxBytes: maxBytes}
}

// Segment exports a transcript segment with its questions.
func (e *Exporter) Segment(seg model.Segment) (Document, error) {
	doc := model.SegmentExport{
		ID:         seg.ID.String(),
		TimeRange:  TimeRange(seg.StartTime, seg.EndTime),
		Transcript: seg.Transcription,
		Questions:  make([]model.QuestionExport, 0, len(seg.MCQs)),
	}
	for _, q := range seg.MCQs {
		doc.Questions = append(doc.Questions, model.QuestionExport{
			Question:      q.Question,
			Options:       q.Options,
			CorrectOption: q.Answer,
		})
	}
	return e.encode(SegmentFilename(seg.ID), doc)
}

// QuizSet exports the questions of one segment.
func (e *Exporter) QuizSet(mcqs []model.MCQ, segmentID model.ObjectID) (Document, error) {
	doc := model.QuizSetExport{
		SegmentID: segmentID.String(),
		Questions: make([]model.QuizQuestionExport, 0, len(mcqs)),
	}
	for _, q := range mcqs {
		doc.Questions = append(doc.Questions, model.QuizQuestionExport{
			Question: q.Question,
			Options:  q.Options,
			Answer:   q.Answer,
		})
	}
	return e.encode(QuizSetFilename(segmentID), doc)
}

func (e *Exporter) encode(filename string, v any) (Document, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("marshal %s: %w", filename, err)
	}
	if len(data) > e.maxBytes {
		return Document{}, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrDocumentTooLarge, filename, len(data), e.maxBytes)
	}
	return Document{
		Filename:    filename,
		ContentType: "application/json",
		Data:        data,
	}, nil
}

// SegmentFilename is the download name for a segment export.
func SegmentFilename(id model.ObjectID) string {
	return fmt.Sprintf("segments-%s.json", id)
}

// QuizSetFilename is the download name for a quiz-set export.
func QuizSetFilename(id model.ObjectID) string {
	return fmt.Sprintf("mcq-segment-%s.json", id)
}

// FormatTime renders seconds as MM:SS. Minutes are not wrapped into hours.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// TimeRange renders "MM:SS - MM:SS".
func TimeRange(start, end float64) string {
	return FormatTime(start) + " - " + FormatTime(end)
}
