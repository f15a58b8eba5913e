package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

// PostgresLoginEventRepository implements the grader duty log on
// PostgreSQL.
type PostgresLoginEventRepository struct {
	db *sql.DB
}

// NewPostgresLoginEventRepository creates a PostgreSQL login event
// repository.
func NewPostgresLoginEventRepository(db *sql.DB) ports.LoginEventRepository {
	return &PostgresLoginEventRepository{db: db}
}

// Append records one login or logout event.
func (r *PostgresLoginEventRepository) Append(ctx context.Context, e *domain.LoginEvent) error {
	query := `
		INSERT INTO login_events (id, course_id, user_id, kind, at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.CourseID, e.UserID, string(e.Kind), e.At)
	if err != nil {
		return fmt.Errorf("appending login event: %w", err)
	}
	return nil
}

// ByCourse lists the course's login events since the given time.
func (r *PostgresLoginEventRepository) ByCourse(ctx context.Context, courseID string, since time.Time) ([]*domain.LoginEvent, error) {
	query := `
		SELECT id, course_id, user_id, kind, at
		FROM login_events
		WHERE course_id = $1 AND at >= $2
		ORDER BY at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, courseID, since)
	if err != nil {
		return nil, fmt.Errorf("loading login events: %w", err)
	}
	defer rows.Close()

	var events []*domain.LoginEvent
	for rows.Next() {
		var e domain.LoginEvent
		if err := rows.Scan(&e.ID, &e.CourseID, &e.UserID, &e.Kind, &e.At); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// ActiveGraders returns the user ids whose latest event is a login.
func (r *PostgresLoginEventRepository) ActiveGraders(ctx context.Context, courseID string) ([]string, error) {
	query := `
		SELECT user_id FROM (
			SELECT DISTINCT ON (user_id) user_id, kind
			FROM login_events
			WHERE course_id = $1
			ORDER BY user_id, at DESC, id DESC
		) latest
		WHERE kind = 'LOGIN'
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("loading active graders: %w", err)
	}
	defer rows.Close()

	var graders []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		graders = append(graders, userID)
	}
	return graders, rows.Err()
}
