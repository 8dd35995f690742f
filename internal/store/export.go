package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/lecturequiz/internal/model"
)

// ExportAttempts returns every quiz attempt with its account, oldest first.
// A non-zero since drops attempts made before it.
func (s *Store) ExportAttempts(since time.Time) ([]model.AttemptExport, error) {
	rows, err := s.db.Query(
		`SELECT u.username, u.display_name, a.segment_id, a.correct, a.total, a.created_at
		 FROM quiz_attempts a JOIN users u ON u.id = a.user_id
		 WHERE a.created_at >= ?
		 ORDER BY a.created_at, a.id`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []model.AttemptExport
	for rows.Next() {
		var a model.AttemptExport
		if err := rows.Scan(&a.Username, &a.DisplayName, &a.SegmentID, &a.Correct, &a.Total, &a.At); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
