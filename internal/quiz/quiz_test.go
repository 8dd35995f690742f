package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
)

func abcQuestions() []model.MCQ {
	return []model.MCQ{
		{ID: "q1", Question: "First?", Options: []string{"A", "X", "Y"}, Answer: "A"},
		{ID: "q2", Question: "Second?", Options: []string{"B", "X", "Y"}, Answer: "B"},
		{ID: "q3", Question: "Third?", Options: []string{"C", "X", "Y"}, Answer: "C"},
	}
}

func TestGradeScenario(t *testing.T) {
	res := Grade(abcQuestions(), Selections{"q1": "A", "q2": "X", "q3": "C"})

	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, map[model.ObjectID]bool{"q1": true, "q2": false, "q3": true}, res.PerQuestion)
}

func TestGradeEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		mcqs    []model.MCQ
		sel     Selections
		correct int
		total   int
	}{
		{"no questions", nil, Selections{"q1": "A"}, 0, 0},
		{"no selections", abcQuestions(), nil, 0, 3},
		{"partial selections", abcQuestions(), Selections{"q2": "B"}, 1, 3},
		{"unknown question ids ignored", abcQuestions(), Selections{"zz": "A"}, 0, 3},
		{"all correct", abcQuestions(), Selections{"q1": "A", "q2": "B", "q3": "C"}, 3, 3},
		{
			"answer missing from options",
			[]model.MCQ{{ID: "q1", Options: []string{"A", "B"}, Answer: "D"}},
			Selections{"q1": "A"},
			0, 1,
		},
		{
			"case sensitive",
			[]model.MCQ{{ID: "q1", Options: []string{"Paris", "paris"}, Answer: "Paris"}},
			Selections{"q1": "paris"},
			0, 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Grade(tt.mcqs, tt.sel)
			assert.Equal(t, tt.correct, res.Correct)
			assert.Equal(t, tt.total, res.Total)
			assert.LessOrEqual(t, res.Correct, res.Total)

			want := 0
			for _, q := range tt.mcqs {
				if v, ok := tt.sel[q.ID]; ok && v == q.Answer {
					want++
				}
			}
			assert.Equal(t, want, res.Correct)
		})
	}
}

func TestGradeIdempotent(t *testing.T) {
	qs := abcQuestions()
	sel := Selections{"q1": "A", "q2": "Y"}
	assert.Equal(t, Grade(qs, sel), Grade(qs, sel))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		correct, selected, show bool
		want                    OptionClass
	}{
		{true, true, false, ClassNeutral},
		{true, false, false, ClassNeutral},
		{false, true, false, ClassNeutral},
		{false, false, false, ClassNeutral},
		{true, true, true, ClassCorrectSelected},
		{true, false, true, ClassCorrect},
		{false, true, true, ClassIncorrectSelected},
		{false, false, true, ClassNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.correct, tt.selected, tt.show),
			"Classify(%v, %v, %v)", tt.correct, tt.selected, tt.show)
	}
}

func TestQuizCheckFlow(t *testing.T) {
	q := notify.NewQueue()
	qz := New("seg1", abcQuestions(), q)

	assert.True(t, qz.Select("q1", "A"))
	assert.True(t, qz.Select("q2", "X"))
	assert.True(t, qz.Select("q3", "C"))
	assert.False(t, qz.Select("nope", "A"), "unknown question")
	assert.False(t, qz.Select("q1", "not an option"))
	assert.Equal(t, Selections{"q1": "A", "q2": "X", "q3": "C"}, qz.Selections())

	for _, v := range qz.View() {
		for _, o := range v.Options {
			assert.Equal(t, ClassNeutral, o.Class, "nothing highlighted before check")
		}
	}
	assert.False(t, qz.ShowAnswers())

	res := qz.Check()
	assert.Equal(t, 2, res.Correct)
	assert.True(t, qz.ShowAnswers())

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.MsgQuizScore, got[0].MessageID)
	assert.Equal(t, map[string]any{"Correct": 2, "Total": 3}, got[0].Data)

	view := qz.View()
	require.Len(t, view, 3)
	assert.Equal(t, 2, view[1].Number)
	assert.Equal(t, ClassCorrectSelected, view[0].Options[0].Class)
	assert.Equal(t, ClassCorrect, view[1].Options[0].Class)
	assert.Equal(t, ClassIncorrectSelected, view[1].Options[1].Class)
	assert.True(t, view[1].Options[1].Selected)
	assert.Equal(t, ClassNeutral, view[1].Options[2].Class)

	// Answers stay revealed after changing a selection.
	qz.Select("q2", "B")
	assert.True(t, qz.ShowAnswers())
	assert.Equal(t, ClassCorrectSelected, qz.View()[1].Options[0].Class)
}

func TestQuizAccessors(t *testing.T) {
	qz := New("seg9", abcQuestions(), notify.NewQueue())
	assert.Equal(t, model.ObjectID("seg9"), qz.SegmentID())
	assert.Len(t, qz.Questions(), 3)

	sel := qz.Selections()
	sel["q1"] = "A"
	assert.Empty(t, qz.Selections(), "Selections returns a copy")
}
