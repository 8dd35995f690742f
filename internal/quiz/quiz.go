// Package quiz grades learner selections against segment MCQs and tracks the
// per-quiz selection state.
package quiz

import (
	"sync"

	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/notify"
)

// Selections maps a question id to the option the learner chose.
type Selections map[model.ObjectID]string

// Result is the outcome of grading a set of questions.
type Result struct {
	Correct     int
	Total       int
	PerQuestion map[model.ObjectID]bool
}

// Grade compares each question's selection to its answer by exact string
// equality. Unanswered questions count as incorrect.
func Grade(mcqs []model.MCQ, sel Selections) Result {
	res := Result{
		Total:       len(mcqs),
		PerQuestion: make(map[model.ObjectID]bool, len(mcqs)),
	}
	for _, q := range mcqs {
		choice, ok := sel[q.ID]
		correct := ok && choice == q.Answer
		res.PerQuestion[q.ID] = correct
		if correct {
			res.Correct++
		}
	}
	return res
}

// OptionClass is the visual classification of one option.
type OptionClass string

const (
	ClassNeutral           OptionClass = "neutral"
	ClassCorrect           OptionClass = "correct"
	ClassCorrectSelected   OptionClass = "correct-selected"
	ClassIncorrectSelected OptionClass = "incorrect-selected"
)

// Classify maps an option's state to its display class. Nothing is
// highlighted until answers are shown.
func Classify(isCorrect, isSelected, showAnswers bool) OptionClass {
	switch {
	case !showAnswers:
		return ClassNeutral
	case isCorrect && isSelected:
		return ClassCorrectSelected
	case isCorrect:
		return ClassCorrect
	case isSelected:
		return ClassIncorrectSelected
	default:
		return ClassNeutral
	}
}

// Option is one rendered option row.
type Option struct {
	Index    int
	Text     string
	Selected bool
	Class    OptionClass
}

// QuestionView is one rendered question with its options.
type QuestionView struct {
	Number   int
	ID       model.ObjectID
	Question string
	Options  []Option
}

// Quiz is the state of one rendered quiz: a segment's questions, the
// learner's selections, and whether answers have been revealed.
type Quiz struct {
	segmentID model.ObjectID
	questions []model.MCQ
	notifier  notify.Notifier

	mu          sync.Mutex
	selections  Selections
	showAnswers bool
}

// New creates a quiz for a segment.
func New(segmentID model.ObjectID, questions []model.MCQ, n notify.Notifier) *Quiz {
	return &Quiz{
		segmentID:  segmentID,
		questions:  questions,
		notifier:   n,
		selections: make(Selections),
	}
}

// SegmentID returns the segment this quiz belongs to.
func (q *Quiz) SegmentID() model.ObjectID { return q.segmentID }

// Questions returns the quiz questions.
func (q *Quiz) Questions() []model.MCQ { return q.questions }

// Select records the learner's choice for a question. Unknown questions and
// options that are not offered by the question are ignored and reported as
// false, so a question whose answer is missing from its options can never be
// graded correct.
func (q *Quiz) Select(questionID model.ObjectID, option string) bool {
	mcq, ok := q.question(questionID)
	if !ok || !mcq.HasOption(option) {
		return false
	}
	q.mu.Lock()
	q.selections[questionID] = option
	q.mu.Unlock()
	return true
}

// Selections returns a copy of the current selections.
func (q *Quiz) Selections() Selections {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(Selections, len(q.selections))
	for k, v := range q.selections {
		out[k] = v
	}
	return out
}

// Check grades the current selections, reveals the answers and emits a
// summary notification. Answers stay revealed afterwards.
func (q *Quiz) Check() Result {
	q.mu.Lock()
	res := Grade(q.questions, q.selections)
	q.showAnswers = true
	q.mu.Unlock()

	q.notifier.Notify(notify.Success(notify.MsgQuizScore, map[string]any{
		"Correct": res.Correct,
		"Total":   res.Total,
	}))
	return res
}

// ShowAnswers reports whether answers have been revealed.
func (q *Quiz) ShowAnswers() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.showAnswers
}

// View builds the rendered rows for every question.
func (q *Quiz) View() []QuestionView {
	q.mu.Lock()
	defer q.mu.Unlock()

	views := make([]QuestionView, 0, len(q.questions))
	for i, mcq := range q.questions {
		choice, chosen := q.selections[mcq.ID]
		qv := QuestionView{Number: i + 1, ID: mcq.ID, Question: mcq.Question}
		for j, opt := range mcq.Options {
			selected := chosen && choice == opt
			qv.Options = append(qv.Options, Option{
				Index:    j,
				Text:     opt,
				Selected: selected,
				Class:    Classify(opt == mcq.Answer, selected, q.showAnswers),
			})
		}
		views = append(views, qv)
	}
	return views
}

func (q *Quiz) question(id model.ObjectID) (model.MCQ, bool) {
	for _, mcq := range q.questions {
		if mcq.ID == id {
			return mcq, true
		}
	}
	return model.MCQ{}, false
}
