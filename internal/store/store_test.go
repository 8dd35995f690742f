package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/lecturequiz/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  "User " + username,
		PasswordHash: "hash",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("createTestUser: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := createTestUser(t, s, "ada")

	u, err := s.GetUserByUsername("ada")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.DisplayName != "User ada" || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	u, err = s.GetUserByID(id)
	if err != nil || u == nil || u.Username != "ada" {
		t.Fatalf("GetUserByID = %+v, %v", u, err)
	}

	missing, err := s.GetUserByUsername("nobody")
	if err != nil || missing != nil {
		t.Errorf("missing user = %+v, %v; want nil, nil", missing, err)
	}

	_, err = s.CreateUser(model.User{Username: "ada", PasswordHash: "x", Active: true})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate username err = %v, want ErrUsernameTaken", err)
	}

	if err := s.SetUserActive(id, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "grace")

	token, err := s.CreateAuthSession(uid, 0)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession = %+v, %v", sess, err)
	}
	if sess.UserID != uid {
		t.Errorf("session user = %d, want %d", sess.UserID, uid)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != DefaultSessionTTL {
		t.Errorf("ttl = %v, want %v", got, DefaultSessionTTL)
	}

	u, err := s.UserForSession(token)
	if err != nil || u == nil || u.Username != "grace" {
		t.Fatalf("UserForSession = %+v, %v", u, err)
	}

	if err := s.SetUserActive(uid, false); err != nil {
		t.Fatal(err)
	}
	u, err = s.UserForSession(token)
	if err != nil || u != nil {
		t.Errorf("inactive user resolved: %+v, %v", u, err)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil || sess != nil {
		t.Errorf("deleted session = %+v, %v", sess, err)
	}
}

func TestExpiredSession(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "linus")

	token, err := s.CreateAuthSession(uid, time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	live, err := s.CreateAuthSession(uid, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned %d sessions, want 1", n)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("expired session still resolves")
	}
	if sess, _ := s.GetAuthSession(live); sess == nil {
		t.Error("live session was removed")
	}
}

func TestQuizAttempts(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "ada")
	other := createTestUser(t, s, "bob")

	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	attempts := []model.QuizAttempt{
		{UserID: uid, SegmentID: "s1", Correct: 1, Total: 3, CreatedAt: base},
		{UserID: uid, SegmentID: "s1", Correct: 3, Total: 3, CreatedAt: base.Add(time.Minute)},
		{UserID: uid, SegmentID: "s2", Correct: 0, Total: 2, CreatedAt: base.Add(2 * time.Minute)},
		{UserID: other, SegmentID: "s1", Correct: 2, Total: 3, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, a := range attempts {
		if _, err := s.RecordAttempt(a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	if _, err := s.RecordAttempt(model.QuizAttempt{UserID: uid, SegmentID: "s1", Correct: 4, Total: 3}); err == nil {
		t.Error("expected error for correct > total")
	}

	count, err := s.AttemptCount()
	if err != nil || count != 4 {
		t.Errorf("AttemptCount = %d, %v; want 4", count, err)
	}

	recent, err := s.RecentAttempts(uid, 2)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(recent))
	}
	if recent[0].SegmentID != "s2" || recent[1].Correct != 3 {
		t.Errorf("unexpected order: %+v", recent)
	}

	all, err := s.RecentAttempts(uid, 0)
	if err != nil || len(all) != 3 {
		t.Errorf("RecentAttempts(all) = %d, %v; want 3", len(all), err)
	}

	best, err := s.BestAttempt(uid, "s1")
	if err != nil || best == nil {
		t.Fatalf("BestAttempt = %+v, %v", best, err)
	}
	if best.Correct != 3 {
		t.Errorf("best correct = %d, want 3", best.Correct)
	}

	none, err := s.BestAttempt(uid, "s9")
	if err != nil || none != nil {
		t.Errorf("BestAttempt(s9) = %+v, %v; want nil", none, err)
	}
}

func TestExportAttempts(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "ada")

	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	for i, seg := range []string{"s1", "s2"} {
		_, err := s.RecordAttempt(model.QuizAttempt{
			UserID: uid, SegmentID: seg, Correct: i, Total: 2, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	out, err := s.ExportAttempts(time.Time{})
	if err != nil {
		t.Fatalf("ExportAttempts: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if out[0].Username != "ada" || out[0].DisplayName != "User ada" || out[0].SegmentID != "s1" {
		t.Errorf("unexpected first row %+v", out[0])
	}
	if !out[1].At.Equal(base.Add(time.Hour)) {
		t.Errorf("second row at %v", out[1].At)
	}

	out, err = s.ExportAttempts(base.Add(30 * time.Minute))
	if err != nil || len(out) != 1 || out[0].SegmentID != "s2" {
		t.Errorf("ExportAttempts(since) = %+v, %v", out, err)
	}
}
