package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	profile    Profile
	profileErr error

	present, total int
	attendanceErr  error

	grades    []Grade
	gradesErr error

	exams    []Exam
	examsErr error

	fees    FeeStatus
	feesErr error
}

func (f *fakeSource) Profile(ctx context.Context, userID string) (Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeSource) AttendanceRatio(ctx context.Context, userID string) (int, int, error) {
	return f.present, f.total, f.attendanceErr
}

func (f *fakeSource) RecentGrades(ctx context.Context, userID string, n int) ([]Grade, error) {
	return f.grades, f.gradesErr
}

func (f *fakeSource) UpcomingExams(ctx context.Context, grade string, from time.Time, window time.Duration) ([]Exam, error) {
	return f.exams, f.examsErr
}

func (f *fakeSource) FeeStatus(ctx context.Context, userID string) (FeeStatus, error) {
	return f.fees, f.feesErr
}

func fullSource() *fakeSource {
	return &fakeSource{
		profile: Profile{Kind: "student", DisplayName: "Asha Verma", Grade: "10"},
		present: 153, total: 180,
		grades: []Grade{
			{ExamName: "Midterm", Subject: "Mathematics", Score: 87, Max: 100, Status: "pass"},
			{ExamName: "Midterm", Subject: "Physics", Score: 91, Max: 100, Status: "pass"},
		},
		exams: []Exam{{Name: "Final Mathematics", Date: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)}},
		fees:  FeeStatus{OK: true},
	}
}

func TestContextForFullBlock(t *testing.T) {
	b := NewBuilder(fullSource())
	got := b.ContextFor(context.Background(), "u1")

	if !strings.HasPrefix(got, "SYSTEM CONTEXT (REAL-TIME USER DATA):\n") {
		t.Fatalf("missing header:\n%s", got)
	}
	for _, want := range []string{
		"Student Profile: Asha Verma (Grade 10)",
		"Attendance Record: 85.0% (153/180 days)",
		"Midterm Mathematics: 87/100 (pass)",
		"Final Mathematics on 2025-03-14",
		"Fee Status: all payments up to date",
		`INSTRUCTIONS: Use this data to answer questions about "my marks/attendance/exams".`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("block missing %q:\n%s", want, got)
		}
	}
}

func TestContextForAttendanceOneDecimal(t *testing.T) {
	src := fullSource()
	src.present, src.total = 2, 3 // 66.666…%
	got := NewBuilder(src).ContextFor(context.Background(), "u1")
	if !strings.Contains(got, "Attendance Record: 66.7% (2/3 days)") {
		t.Errorf("attendance not rounded to one decimal:\n%s", got)
	}
}

func TestContextForProfileFailureOmitsBlock(t *testing.T) {
	src := fullSource()
	src.profileErr = errors.New("db down")
	if got := NewBuilder(src).ContextFor(context.Background(), "u1"); got != "" {
		t.Errorf("block should be silently omitted, got:\n%s", got)
	}
}

func TestContextForPartialFailuresSkipSections(t *testing.T) {
	src := fullSource()
	src.attendanceErr = errors.New("timeout")
	src.gradesErr = errors.New("timeout")
	got := NewBuilder(src).ContextFor(context.Background(), "u1")

	if strings.Contains(got, "Attendance Record") || strings.Contains(got, "Recent Exam Results") {
		t.Errorf("failed sections must be skipped:\n%s", got)
	}
	if !strings.Contains(got, "Fee Status") {
		t.Errorf("healthy sections must survive:\n%s", got)
	}
}

func TestContextForNonStudent(t *testing.T) {
	src := fullSource()
	src.profile.Kind = "staff"
	if got := NewBuilder(src).ContextFor(context.Background(), "u1"); got != "" {
		t.Errorf("staff should get no record block, got:\n%s", got)
	}
}

func TestContextForNoUser(t *testing.T) {
	if got := NewBuilder(fullSource()).ContextFor(context.Background(), ""); got != "" {
		t.Errorf("empty user id must yield empty block, got %q", got)
	}
}

func TestContextForOverdueFees(t *testing.T) {
	src := fullSource()
	src.fees = FeeStatus{OverdueCount: 2}
	got := NewBuilder(src).ContextFor(context.Background(), "u1")
	if !strings.Contains(got, "Fee Status: 2 overdue payment(s)") {
		t.Errorf("overdue line missing:\n%s", got)
	}
}
