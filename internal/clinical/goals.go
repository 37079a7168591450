// Package clinical holds therapy goal progress tracking.
package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telehealth-scheduling/internal/db"
)

var (
	ErrGoalNotFound    = errors.New("therapy goal not found")
	ErrInvalidProgress = errors.New("correct and incorrect must be non-negative")
)

type GoalStatus string

const (
	GoalInProgress GoalStatus = "inprogress"
	GoalComplete   GoalStatus = "complete"
	GoalIncomplete GoalStatus = "uncomplete"
)

type Progress struct {
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Percentage float64 `json:"percentage"`
}

type Goal struct {
	ID            uuid.UUID  `json:"id"`
	TherapistID   uuid.UUID  `json:"therapistId"`
	PatientID     uuid.UUID  `json:"patientId"`
	Title         string     `json:"title"`
	Status        GoalStatus `json:"status"`
	TotalSessions string     `json:"totalSessions"`
	Progress      Progress   `json:"progress"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ProgressPercentage is correct / (correct + incorrect) * 100, or 0 with no attempts.
func ProgressPercentage(correct, incorrect int) float64 {
	total := correct + incorrect
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

type GoalRepository struct {
	db db.DB
}

func NewGoalRepository(pool db.DB) *GoalRepository {
	return &GoalRepository{db: pool}
}

// RecordProgress adds attempts to a goal and stores the recomputed percentage
// in the same transaction.
func (r *GoalRepository) RecordProgress(ctx context.Context, id uuid.UUID, correct, incorrect int) (*Goal, error) {
	if correct < 0 || incorrect < 0 {
		return nil, ErrInvalidProgress
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	var c, i int
	err = tx.QueryRow(ctx, `
		SELECT progress_correct, progress_incorrect
		FROM therapy_goals
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&c, &i)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, fmt.Errorf("load goal progress: %w", err)
	}

	c += correct
	i += incorrect

	var g Goal
	err = tx.QueryRow(ctx, `
		UPDATE therapy_goals
		SET progress_correct = $2,
		    progress_incorrect = $3,
		    progress_percentage = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, therapist_id, patient_id, title, status, total_sessions,
		          progress_correct, progress_incorrect, progress_percentage, updated_at
	`, id, c, i, ProgressPercentage(c, i)).Scan(
		&g.ID,
		&g.TherapistID,
		&g.PatientID,
		&g.Title,
		&g.Status,
		&g.TotalSessions,
		&g.Progress.Correct,
		&g.Progress.Incorrect,
		&g.Progress.Percentage,
		&g.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("update goal progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &g, nil
}
