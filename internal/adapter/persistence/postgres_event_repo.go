package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

const eventColumns = `id, ticket_id, kind, message, private, actor_user_id, actor_course_id, actor_role, at`

// PostgresEventRepository implements the append-only audit trail on
// PostgreSQL. There is deliberately no update or delete path.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) ports.EventRepository {
	return &PostgresEventRepository{db: db}
}

func scanEvent(row rowScanner) (*domain.TicketEvent, error) {
	var (
		e    domain.TicketEvent
		role string
	)
	err := row.Scan(
		&e.ID, &e.TicketID, &e.Kind, &e.Message, &e.Private,
		&e.Actor.UserID, &e.Actor.CourseID, &role, &e.At,
	)
	if err != nil {
		return nil, err
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	e.Actor.Role = r
	return &e, nil
}

func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*domain.TicketEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.TicketEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Append records one immutable event.
func (r *PostgresEventRepository) Append(ctx context.Context, e *domain.TicketEvent) error {
	query := `
		INSERT INTO ticket_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TicketID, string(e.Kind), e.Message, e.Private,
		e.Actor.UserID, e.Actor.CourseID, e.Actor.Role.String(), e.At,
	)
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// ByTicket lists a ticket's events by ascending timestamp.
func (r *PostgresEventRepository) ByTicket(ctx context.Context, ticketID string) ([]*domain.TicketEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ticket_events WHERE ticket_id = $1 ORDER BY at ASC, id ASC`
	return r.queryEvents(ctx, query, ticketID)
}

// ByActor lists events on the queue's tickets performed by the user.
func (r *PostgresEventRepository) ByActor(ctx context.Context, queueID, actorUserID string) ([]*domain.TicketEvent, error) {
	query := `
		SELECT e.id, e.ticket_id, e.kind, e.message, e.private,
		       e.actor_user_id, e.actor_course_id, e.actor_role, e.at
		FROM ticket_events e
		JOIN tickets t ON t.id = e.ticket_id
		WHERE t.queue_id = $1 AND e.actor_user_id = $2
		ORDER BY e.at ASC
	`
	return r.queryEvents(ctx, query, queueID, actorUserID)
}

// CountByKind tallies the queue's events per kind.
func (r *PostgresEventRepository) CountByKind(ctx context.Context, queueID string) (map[domain.EventKind]int, error) {
	query := `
		SELECT e.kind, COUNT(*)
		FROM ticket_events e
		JOIN tickets t ON t.id = e.ticket_id
		WHERE t.queue_id = $1
		GROUP BY e.kind
	`
	rows, err := r.db.QueryContext(ctx, query, queueID)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[domain.EventKind(kind)] = count
	}
	return counts, rows.Err()
}
