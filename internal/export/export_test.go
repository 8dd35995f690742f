package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/lecturequiz/internal/model"
)

func sampleSegment() model.Segment {
	return model.Segment{
		ID:            "65f0c1",
		ChunkNumber:   1,
		StartTime:     65,
		EndTime:       125,
		Transcription: "Today we talk about consensus.",
		MCQs: []model.MCQ{
			{ID: "q1", Question: "What is Raft?", Options: []string{"A protocol", "A boat"}, Answer: "A protocol"},
			{ID: "q2", Question: "Quorum size for 5?", Options: []string{"2", "3", "5"}, Answer: "3"},
		},
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00"},
		{65, "01:05"},
		{125, "02:05"},
		{59.9, "00:59"},
		{600, "10:00"},
		{6000, "100:00"},
		{-3, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.in), "FormatTime(%v)", tt.in)
	}
	assert.Equal(t, "01:05 - 02:05", TimeRange(65, 125))
}

func TestSegmentExport(t *testing.T) {
	seg := sampleSegment()
	doc, err := New(0).Segment(seg)
	require.NoError(t, err)

	assert.Equal(t, "segments-65f0c1.json", doc.Filename)
	assert.Equal(t, "application/json", doc.ContentType)

	var got model.SegmentExport
	require.NoError(t, json.Unmarshal(doc.Data, &got))
	assert.Equal(t, "65f0c1", got.ID)
	assert.Equal(t, "01:05 - 02:05", got.TimeRange)
	assert.Equal(t, seg.Transcription, got.Transcript)
	require.Len(t, got.Questions, len(seg.MCQs))
	for i, q := range seg.MCQs {
		assert.Equal(t, q.Question, got.Questions[i].Question)
		assert.Equal(t, q.Options, got.Questions[i].Options)
		assert.Equal(t, q.Answer, got.Questions[i].CorrectOption)
	}

	// The answer field is renamed, and the document is indented.
	assert.Contains(t, string(doc.Data), `"correctOption": "A protocol"`)
	assert.NotContains(t, string(doc.Data), `"answer"`)
	assert.True(t, strings.HasPrefix(string(doc.Data), "{\n  \"id\""))
}

func TestSegmentExportWithoutQuestions(t *testing.T) {
	seg := sampleSegment()
	seg.MCQs = nil
	doc, err := New(0).Segment(seg)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), `"questions": []`)
}

func TestQuizSetExport(t *testing.T) {
	seg := sampleSegment()
	doc, err := New(0).QuizSet(seg.MCQs, seg.ID)
	require.NoError(t, err)

	assert.Equal(t, "mcq-segment-65f0c1.json", doc.Filename)

	var got model.QuizSetExport
	require.NoError(t, json.Unmarshal(doc.Data, &got))
	assert.Equal(t, "65f0c1", got.SegmentID)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "3", got.Questions[1].Answer)
	assert.Equal(t, []string{"2", "3", "5"}, got.Questions[1].Options)
}

func TestSizeGuard(t *testing.T) {
	seg := sampleSegment()
	seg.Transcription = strings.Repeat("x", 2048)

	_, err := New(1024).Segment(seg)
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	_, err = New(1024).QuizSet(seg.MCQs, seg.ID)
	assert.NoError(t, err)
}
