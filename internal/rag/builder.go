// Package rag builds the real-time user-data block injected into the prompt.
// It consumes domain data through the narrow DataSource contract so the
// gateway never depends on the school information system's schema directly.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Profile identifies what kind of user is asking.
type Profile struct {
	Kind        string // student, staff, parent, other
	DisplayName string
	Grade       string
}

// Grade is one recent exam result.
type Grade struct {
	ExamName string
	Subject  string
	Score    float64
	Max      float64
	Status   string
	Date     time.Time
}

// Exam is one scheduled upcoming exam.
type Exam struct {
	Name string
	Date time.Time
}

// FeeStatus summarizes the user's payment standing.
type FeeStatus struct {
	OverdueCount int
	OK           bool
}

// DataSource is the read contract the builder needs from the school records
// system. Implementations must be safe for concurrent use.
type DataSource interface {
	Profile(ctx context.Context, userID string) (Profile, error)
	AttendanceRatio(ctx context.Context, userID string) (present, total int, err error)
	RecentGrades(ctx context.Context, userID string, n int) ([]Grade, error)
	UpcomingExams(ctx context.Context, grade string, from time.Time, window time.Duration) ([]Exam, error)
	FeeStatus(ctx context.Context, userID string) (FeeStatus, error)
}

const (
	recentGradeCount = 5
	examWindow       = 30 * 24 * time.Hour
)

// Builder synthesizes one system-role context block per request.
type Builder struct {
	source DataSource
	now    func() time.Time
}

func NewBuilder(source DataSource) *Builder {
	return &Builder{source: source, now: time.Now}
}

// ContextFor returns the SYSTEM CONTEXT block for a user, or "" when the
// user is unknown or the data source fails. It never returns an error: the
// block is additive and a chat must not fail because records are unreachable.
func (b *Builder) ContextFor(ctx context.Context, userID string) string {
	if b == nil || b.source == nil || userID == "" {
		return ""
	}

	profile, err := b.source.Profile(ctx, userID)
	if err != nil {
		slog.Debug("rag profile lookup failed", "user_id", userID, "error", err)
		return ""
	}
	if profile.Kind != "student" {
		// Staff and parents get no live record block for now.
		return ""
	}

	var sb strings.Builder
	sb.WriteString("SYSTEM CONTEXT (REAL-TIME USER DATA):\n")
	if profile.Grade != "" {
		fmt.Fprintf(&sb, "Student Profile: %s (Grade %s)\n", profile.DisplayName, profile.Grade)
	} else {
		fmt.Fprintf(&sb, "Student Profile: %s\n", profile.DisplayName)
	}

	if present, total, err := b.source.AttendanceRatio(ctx, userID); err == nil && total > 0 {
		pct := float64(present) / float64(total) * 100
		fmt.Fprintf(&sb, "Attendance Record: %.1f%% (%d/%d days)\n", pct, present, total)
	}

	if grades, err := b.source.RecentGrades(ctx, userID, recentGradeCount); err == nil && len(grades) > 0 {
		sb.WriteString("Recent Exam Results:\n")
		for _, g := range grades {
			fmt.Fprintf(&sb, "- %s %s: %.0f/%.0f (%s)\n", g.ExamName, g.Subject, g.Score, g.Max, g.Status)
		}
	}

	if profile.Grade != "" {
		if exams, err := b.source.UpcomingExams(ctx, profile.Grade, b.now(), examWindow); err == nil && len(exams) > 0 {
			sb.WriteString("Upcoming Exams:\n")
			for _, e := range exams {
				fmt.Fprintf(&sb, "- %s on %s\n", e.Name, e.Date.Format("2006-01-02"))
			}
		}
	}

	if fees, err := b.source.FeeStatus(ctx, userID); err == nil {
		if fees.OK {
			sb.WriteString("Fee Status: all payments up to date\n")
		} else {
			fmt.Fprintf(&sb, "Fee Status: %d overdue payment(s)\n", fees.OverdueCount)
		}
	}

	sb.WriteString(`INSTRUCTIONS: Use this data to answer questions about "my marks/attendance/exams".`)
	return sb.String()
}
