package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObjectID is a backend document identifier. The backend emits either a bare
// string or the extended form {"$oid": "..."}.
type ObjectID string

// String returns the raw identifier.
func (id ObjectID) String() string { return string(id) }

// UnmarshalJSON accepts both identifier encodings.
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var ext struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &ext); err != nil {
			return fmt.Errorf("decode object id: %w", err)
		}
		*id = ObjectID(ext.OID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode object id: %w", err)
	}
	*id = ObjectID(s)
	return nil
}

// Timestamp is a creation time that arrives either as an RFC 3339 string or
// as {"$date": "..."}.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts both timestamp encodings.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	raw := data
	if len(data) > 0 && data[0] == '{' {
		var ext struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(data, &ext); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		raw = ext.Date
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var ms int64
		if err2 := json.Unmarshal(raw, &ms); err2 != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes the timestamp as RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// MCQ is a multiple-choice question generated for a segment.
type MCQ struct {
	ID       ObjectID `json:"_id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// HasOption reports whether opt is one of the question's options.
func (q MCQ) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// Segment is a time-bounded slice of a lecture transcript with its questions.
// The backend calls these "chunks".
type Segment struct {
	ID            ObjectID `json:"_id"`
	ChunkNumber   int      `json:"chunkNumber"`
	StartTime     float64  `json:"startTime"`
	EndTime       float64  `json:"endTime"`
	Transcription string   `json:"transcription"`
	MCQs          []MCQ    `json:"mcqs"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Lecture is a processed video as listed by the backend catalog.
type Lecture struct {
	ID        ObjectID  `json:"_id"`
	VideoName string    `json:"videoName"`
	CreatedAt Timestamp `json:"createdAt"`
	Chunks    []Segment `json:"chunks"`
}

// Duration returns the lecture length in seconds, taken from the end of the
// last chunk.
func (l Lecture) Duration() float64 {
	if len(l.Chunks) == 0 {
		return 0
	}
	return l.Chunks[len(l.Chunks)-1].EndTime
}

// ShortTitle returns the first five words of the video name followed by "...".
func (l Lecture) ShortTitle() string {
	words := strings.Fields(l.VideoName)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ") + "..."
}

// FindSegment returns the chunk with the given id.
func (l Lecture) FindSegment(id ObjectID) (Segment, bool) {
	for _, s := range l.Chunks {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}
