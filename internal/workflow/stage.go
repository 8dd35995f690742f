package workflow

// Stage is one named step of processing shown to the user.
type Stage string

const (
	StageUpload        Stage = "upload"
	StageTranscription Stage = "transcription"
	StageSegmentation  Stage = "segmentation"
	StageGeneration    Stage = "generation"
	StageComplete      Stage = "complete"
)

// Stages lists every stage in order.
var Stages = []Stage{StageUpload, StageTranscription, StageSegmentation, StageGeneration, StageComplete}

var progressFor = map[Stage]int{
	StageUpload:        10,
	StageTranscription: 30,
	StageSegmentation:  60,
	StageGeneration:    90,
	StageComplete:      100,
}

// Index returns the stage's position, or -1 for unknown stages.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// MessageID is the translation key of the stage label.
func (s Stage) MessageID() string {
	switch s {
	case StageUpload:
		return "StageUpload"
	case StageTranscription:
		return "StageTranscription"
	case StageSegmentation:
		return "StageSegmentation"
	case StageGeneration:
		return "StageGeneration"
	case StageComplete:
		return "StageComplete"
	}
	return string(s)
}

// State is the processing state: stage, progress percentage, and whether a
// run is active.
type State struct {
	Stage    Stage `json:"stage"`
	Progress int   `json:"progress"`
	Active   bool  `json:"active"`
}

// Initial is the idle state.
func Initial() State {
	return State{Stage: StageUpload, Progress: 0, Active: false}
}

// StepStatus is how a stage is drawn relative to the current one.
type StepStatus string

const (
	StepComplete StepStatus = "complete"
	StepActive   StepStatus = "active"
	StepPending  StepStatus = "pending"
)

// Step is one entry of the progress step list.
type Step struct {
	Number int
	Stage  Stage
	Status StepStatus
}

// Steps returns every stage with its status relative to current.
func Steps(current Stage) []Step {
	cur := current.Index()
	steps := make([]Step, 0, len(Stages))
	for i, s := range Stages {
		status := StepPending
		switch {
		case i < cur:
			status = StepComplete
		case i == cur:
			status = StepActive
		}
		steps = append(steps, Step{Number: i + 1, Stage: s, Status: status})
	}
	return steps
}

// View is the tab the user sees.
type View string

const (
	ViewUpload     View = "upload"
	ViewProcessing View = "processing"
	ViewResults    View = "results"
)

var views = []View{ViewUpload, ViewProcessing, ViewResults}

// ParseView converts a tab name, reporting false for unknown names.
func ParseView(s string) (View, bool) {
	for _, v := range views {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

// Tab is one entry of the tab strip.
type Tab struct {
	View    View
	Enabled bool
	Current bool
}

func tabEnabled(v View, active, hasResults bool) bool {
	switch v {
	case ViewUpload:
		return true
	case ViewProcessing:
		return active || hasResults
	case ViewResults:
		return hasResults
	}
	return false
}
