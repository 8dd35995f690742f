package model

import "time"

// SegmentExport is the downloadable JSON document for one transcript segment.
type SegmentExport struct {
	ID         string           `json:"id"`
	TimeRange  string           `json:"timeRange"`
	Transcript string           `json:"transcript"`
	Questions  []QuestionExport `json:"questions"`
}

// QuestionExport is a question inside a segment export. The answer is
// published as correctOption.
type QuestionExport struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
}

// QuizSetExport is the downloadable JSON document for a segment's quiz.
type QuizSetExport struct {
	SegmentID string               `json:"segmentId"`
	Questions []QuizQuestionExport `json:"questions"`
}

// QuizQuestionExport is a question inside a quiz-set export.
type QuizQuestionExport struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// AttemptExport is one quiz attempt in the attempts report, joined with the
// account that made it.
type AttemptExport struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	SegmentID   string    `json:"segment_id"`
	Correct     int       `json:"correct"`
	Total       int       `json:"total"`
	At          time.Time `json:"at"`
}
