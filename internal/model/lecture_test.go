package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestObjectIDDecoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ObjectID
	}{
		{"bare string", `"abc123"`, "abc123"},
		{"extended", `{"$oid":"65f0c1"}`, "65f0c1"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ObjectID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
		})
	}

	var id ObjectID
	if err := json.Unmarshal([]byte(`42`), &id); err == nil {
		t.Error("expected error for numeric id")
	}
}

func TestTimestampDecoding(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	for _, in := range []string{
		`"2025-03-14T09:30:00Z"`,
		`{"$date":"2025-03-14T09:30:00Z"}`,
		`{"$date":1741944600000}`,
	} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Fatalf("Unmarshal(%s): %v", in, err)
		}
		if !ts.Equal(want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", in, ts.Time, want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestLectureHelpers(t *testing.T) {
	l := Lecture{
		VideoName: "Intro to Distributed Systems Lecture Three Consensus",
		Chunks: []Segment{
			{ID: "a", StartTime: 0, EndTime: 300},
			{ID: "b", StartTime: 300, EndTime: 545},
		},
	}

	if got := l.ShortTitle(); got != "Intro to Distributed Systems Lecture..." {
		t.Errorf("ShortTitle() = %q", got)
	}
	if got := l.Duration(); got != 545 {
		t.Errorf("Duration() = %v, want 545", got)
	}
	if _, ok := l.FindSegment("b"); !ok {
		t.Error("FindSegment(b) not found")
	}
	if _, ok := l.FindSegment("zzz"); ok {
		t.Error("FindSegment(zzz) unexpectedly found")
	}
	if got := (Lecture{}).Duration(); got != 0 {
		t.Errorf("empty Duration() = %v, want 0", got)
	}
}

func TestSegmentDecoding(t *testing.T) {
	raw := `{
		"_id": {"$oid": "seg1"},
		"chunkNumber": 2,
		"startTime": 65,
		"endTime": 125,
		"transcription": "hello",
		"mcqs": [{"_id": {"$oid": "q1"}, "question": "Q?", "options": ["A","B"], "answer": "A"}]
	}`
	var s Segment
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.ID != "seg1" || s.ChunkNumber != 2 || s.Duration() != 60 {
		t.Errorf("unexpected segment: %+v", s)
	}
	if len(s.MCQs) != 1 || s.MCQs[0].ID != "q1" || !s.MCQs[0].HasOption("A") {
		t.Errorf("unexpected mcqs: %+v", s.MCQs)
	}
}
