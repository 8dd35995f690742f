package results

import (
	"testing"

	"github.com/pavelanni/lecturequiz/internal/model"
)

func TestSetSkipsMalformed(t *testing.T) {
	m := New()
	kept := m.Set([]model.Segment{
		{ID: "a", StartTime: 0, EndTime: 300},
		{ID: "bad", StartTime: 300, EndTime: 200},
		{ID: "zero", StartTime: 400, EndTime: 400},
		{ID: "c", StartTime: 600, EndTime: 900},
	})
	if kept != 3 {
		t.Fatalf("Set kept %d, want 3", kept)
	}

	got := m.Get()
	var ids []model.ObjectID
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	want := []model.ObjectID{"a", "zero", "c"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	if _, ok := m.Find("bad"); ok {
		t.Error("malformed segment should not be findable")
	}
	if s, ok := m.Find("c"); !ok || s.EndTime != 900 {
		t.Errorf("Find(c) = %+v, %v", s, ok)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := New()
	m.Set([]model.Segment{{ID: "a", EndTime: 1}})

	got := m.Get()
	got[0].ID = "mutated"

	if s := m.Get(); s[0].ID != "a" {
		t.Errorf("stored segment mutated through Get: %q", s[0].ID)
	}
}

func TestEmpty(t *testing.T) {
	m := New()
	if m.Len() != 0 || len(m.Get()) != 0 {
		t.Error("new model should be empty")
	}
	m.Set([]model.Segment{{ID: "a", EndTime: 1}})
	m.Set(nil)
	if m.Len() != 0 {
		t.Errorf("Set(nil) should clear, Len = %d", m.Len())
	}
}
