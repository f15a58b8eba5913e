package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helpq/helpq/internal/domain"
)

const queueColumns = `id, course_id, status, high_capacity_enabled, high_capacity_threshold,
	high_capacity_message, high_capacity_warning, cooldown_seconds`

// PostgresQueueRepository implements QueueRepository on PostgreSQL. It also
// serves as the course directory, since the queue row carries the mapping.
type PostgresQueueRepository struct {
	db *sql.DB
}

// NewPostgresQueueRepository creates a PostgreSQL queue repository.
func NewPostgresQueueRepository(db *sql.DB) *PostgresQueueRepository {
	return &PostgresQueueRepository{db: db}
}

func scanQueue(row rowScanner) (*domain.Queue, error) {
	var (
		q               domain.Queue
		cooldownSeconds int
	)
	err := row.Scan(
		&q.ID, &q.CourseID, &q.Status, &q.HighCapacityEnabled, &q.HighCapacityThreshold,
		&q.HighCapacityMessage, &q.HighCapacityWarning, &cooldownSeconds,
	)
	if err != nil {
		return nil, err
	}
	q.Cooldown = time.Duration(cooldownSeconds) * time.Second
	return &q, nil
}

// FindByID retrieves a queue by its ID.
func (r *PostgresQueueRepository) FindByID(ctx context.Context, id string) (*domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE id = $1`
	q, err := scanQueue(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrQueueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding queue: %w", err)
	}
	return q, nil
}

// FindByCourse retrieves the course's queue.
func (r *PostgresQueueRepository) FindByCourse(ctx context.Context, courseID string) (*domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE course_id = $1`
	q, err := scanQueue(r.db.QueryRowContext(ctx, query, courseID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrQueueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding queue by course: %w", err)
	}
	return q, nil
}

// Save upserts the queue configuration.
func (r *PostgresQueueRepository) Save(ctx context.Context, q *domain.Queue) error {
	query := `
		INSERT INTO queues (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			high_capacity_enabled = EXCLUDED.high_capacity_enabled,
			high_capacity_threshold = EXCLUDED.high_capacity_threshold,
			high_capacity_message = EXCLUDED.high_capacity_message,
			high_capacity_warning = EXCLUDED.high_capacity_warning,
			cooldown_seconds = EXCLUDED.cooldown_seconds
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.CourseID, string(q.Status), q.HighCapacityEnabled, q.HighCapacityThreshold,
		q.HighCapacityMessage, q.HighCapacityWarning, int(q.Cooldown/time.Second),
	)
	if err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	return nil
}

// UpdateStatus applies a status change guarded by a CAS on the prior
// status.
func (r *PostgresQueueRepository) UpdateStatus(ctx context.Context, queueID string, from, to domain.QueueStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE queues SET status = $3 WHERE id = $1 AND status = $2`,
		queueID, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("updating queue status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInvalidQueueTransition
	}
	return nil
}

// CourseForQueue maps a queue to its owning course.
func (r *PostgresQueueRepository) CourseForQueue(ctx context.Context, queueID string) (string, error) {
	var courseID string
	err := r.db.QueryRowContext(ctx, `SELECT course_id FROM queues WHERE id = $1`, queueID).Scan(&courseID)
	if err == sql.ErrNoRows {
		return "", domain.ErrQueueNotFound
	}
	if err != nil {
		return "", fmt.Errorf("finding course for queue: %w", err)
	}
	return courseID, nil
}
