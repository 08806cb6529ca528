package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edusuite/sage-gateway/internal/rag"
)

// SchoolStore reads live school records for the RAG builder. It implements
// rag.DataSource over the institution database.
type SchoolStore struct {
	db *pgxpool.Pool
}

func NewSchoolStore(db *pgxpool.Pool) *SchoolStore {
	return &SchoolStore{db: db}
}

func (s *SchoolStore) Profile(ctx context.Context, userID string) (rag.Profile, error) {
	var p rag.Profile
	err := s.db.QueryRow(ctx, `
		SELECT kind, display_name, COALESCE(grade, '')
		FROM user_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.Kind, &p.DisplayName, &p.Grade)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

func (s *SchoolStore) AttendanceRatio(ctx context.Context, userID string) (int, int, error) {
	var present, total int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'present'), COUNT(*)
		FROM attendance
		WHERE user_id = $1
	`, userID).Scan(&present, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("query attendance: %w", err)
	}
	return present, total, nil
}

func (s *SchoolStore) RecentGrades(ctx context.Context, userID string, n int) ([]rag.Grade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT exam_name, subject, score, max_score, status, graded_at
		FROM exam_results
		WHERE user_id = $1
		ORDER BY graded_at DESC
		LIMIT $2
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query grades: %w", err)
	}
	defer rows.Close()

	var out []rag.Grade
	for rows.Next() {
		var g rag.Grade
		if err := rows.Scan(&g.ExamName, &g.Subject, &g.Score, &g.Max, &g.Status, &g.Date); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SchoolStore) UpcomingExams(ctx context.Context, grade string, from time.Time, window time.Duration) ([]rag.Exam, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, scheduled_on
		FROM exam_schedule
		WHERE grade = $1 AND scheduled_on >= $2 AND scheduled_on < $3
		ORDER BY scheduled_on
	`, grade, from, from.Add(window))
	if err != nil {
		return nil, fmt.Errorf("query exam schedule: %w", err)
	}
	defer rows.Close()

	var out []rag.Exam
	for rows.Next() {
		var e rag.Exam
		if err := rows.Scan(&e.Name, &e.Date); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SchoolStore) FeeStatus(ctx context.Context, userID string) (rag.FeeStatus, error) {
	var fs rag.FeeStatus
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM fee_invoices
		WHERE user_id = $1 AND status = 'overdue'
	`, userID).Scan(&fs.OverdueCount)
	if err != nil {
		return fs, fmt.Errorf("query fees: %w", err)
	}
	fs.OK = fs.OverdueCount == 0
	return fs, nil
}
