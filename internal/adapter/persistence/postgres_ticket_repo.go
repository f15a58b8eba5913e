package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

const activeTicketConstraint = "tickets_one_active_per_student"

const ticketColumns = `id, queue_id, course_id, student_user_id, student_role,
	grader_user_id, grader_role, status, title, description, room, workstation,
	private, help_type, tags, created_at, accepted_at, closed_at`

// PostgresTicketRepository implements TicketRepository on PostgreSQL. All
// status mutations commit the ticket row and its audit event in one
// transaction, with a compare-and-swap on the prior status.
type PostgresTicketRepository struct {
	db *sql.DB
}

// NewPostgresTicketRepository creates a PostgreSQL ticket repository.
func NewPostgresTicketRepository(db *sql.DB) ports.TicketRepository {
	return &PostgresTicketRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t           domain.Ticket
		studentRole string
		graderID    sql.NullString
		graderRole  sql.NullString
		tags        pq.StringArray
		acceptedAt  sql.NullTime
		closedAt    sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.QueueID, &t.Student.CourseID, &t.Student.UserID, &studentRole,
		&graderID, &graderRole, &t.Status, &t.Title, &t.Description, &t.Room,
		&t.Workstation, &t.Private, &t.HelpType, &tags, &t.CreatedAt,
		&acceptedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}

	role, err := domain.ParseRole(studentRole)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", t.ID, err)
	}
	t.Student.Role = role
	t.Tags = []string(tags)

	if graderID.Valid {
		grole, err := domain.ParseRole(graderRole.String)
		if err != nil {
			return nil, fmt.Errorf("ticket %s: %w", t.ID, err)
		}
		t.Grader = &domain.Enrollment{
			UserID:   graderID.String,
			CourseID: t.Student.CourseID,
			Role:     grole,
		}
	}
	if acceptedAt.Valid {
		at := acceptedAt.Time
		t.AcceptedAt = &at
	}
	if closedAt.Valid {
		at := closedAt.Time
		t.ClosedAt = &at
	}
	return &t, nil
}

func (r *PostgresTicketRepository) queryTickets(ctx context.Context, query string, args ...interface{}) ([]*domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func insertTicket(ctx context.Context, tx *sql.Tx, t *domain.Ticket) error {
	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	var graderID, graderRole interface{}
	if t.Grader != nil {
		graderID = t.Grader.UserID
		graderRole = t.Grader.Role.String()
	}
	_, err := tx.ExecContext(ctx, query,
		t.ID, t.QueueID, t.Student.CourseID, t.Student.UserID, t.Student.Role.String(),
		graderID, graderRole, string(t.Status), t.Title, t.Description, t.Room,
		t.Workstation, t.Private, string(t.HelpType), pq.Array(t.Tags),
		t.CreatedAt, t.AcceptedAt, t.ClosedAt,
	)
	return err
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *domain.TicketEvent) error {
	query := `
		INSERT INTO ticket_events (id, ticket_id, kind, message, private, actor_user_id, actor_course_id, actor_role, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		e.ID, e.TicketID, string(e.Kind), e.Message, e.Private,
		e.Actor.UserID, e.Actor.CourseID, e.Actor.Role.String(), e.At,
	)
	return err
}

// updateTicket applies the ticket's current field values guarded by a CAS
// on the prior status. Returns false when the row was not in that status.
func updateTicket(ctx context.Context, tx *sql.Tx, t *domain.Ticket, from domain.TicketStatus) (bool, error) {
	query := `
		UPDATE tickets
		SET status = $3, title = $4, description = $5, room = $6,
		    workstation = $7, private = $8, tags = $9,
		    grader_user_id = $10, grader_role = $11, accepted_at = $12, closed_at = $13
		WHERE id = $1 AND status = $2
	`
	var graderID, graderRole interface{}
	if t.Grader != nil {
		graderID = t.Grader.UserID
		graderRole = t.Grader.Role.String()
	}
	res, err := tx.ExecContext(ctx, query,
		t.ID, string(from), string(t.Status), t.Title, t.Description, t.Room,
		t.Workstation, t.Private, pq.Array(t.Tags),
		graderID, graderRole, t.AcceptedAt, t.ClosedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// Create saves a new ticket with its CREATED event. The partial unique
// index re-validates the one-active-ticket rule atomically with the insert.
func (r *PostgresTicketRepository) Create(ctx context.Context, t *domain.Ticket, created *domain.TicketEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertTicket(ctx, tx, t); err != nil {
		if isUniqueViolation(err, activeTicketConstraint) {
			return domain.ErrDuplicateActiveTicket
		}
		return fmt.Errorf("inserting ticket: %w", err)
	}
	if err := insertEvent(ctx, tx, created); err != nil {
		return fmt.Errorf("inserting created event: %w", err)
	}
	return tx.Commit()
}

// FindByID retrieves a ticket by its ID.
func (r *PostgresTicketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	t, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding ticket: %w", err)
	}
	return t, nil
}

// Update persists the ticket and appends the event atomically.
func (r *PostgresTicketRepository) Update(ctx context.Context, t *domain.Ticket, from domain.TicketStatus, event *domain.TicketEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ok, err := updateTicket(ctx, tx, t, from)
	if err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	if !ok {
		return domain.ErrStaleTicket
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return tx.Commit()
}

// AcceptForGrader defers the grader's other held ticket and accepts the
// target in a single transaction. Row locks on both tickets serialize
// racing accepts: the loser observes a non-PENDING status.
func (r *PostgresTicketRepository) AcceptForGrader(ctx context.Context, ticketID string, grader domain.Enrollment, at time.Time) (*domain.Ticket, *domain.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	lockQuery := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	target, err := scanTicket(tx.QueryRowContext(ctx, lockQuery, ticketID))
	if err == sql.ErrNoRows {
		return nil, nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("locking ticket: %w", err)
	}
	if target.Status != domain.TicketStatusPending {
		return nil, nil, domain.ErrTicketNotPending
	}

	heldQuery := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE course_id = $1 AND grader_user_id = $2 AND status = 'ACCEPTED' AND id <> $3
		FOR UPDATE
	`
	var deferred *domain.Ticket
	held, err := scanTicket(tx.QueryRowContext(ctx, heldQuery, grader.CourseID, grader.UserID, ticketID))
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("locking held ticket: %w", err)
	}
	if held != nil {
		from := held.Status
		if err := held.Defer(); err != nil {
			return nil, nil, err
		}
		ok, err := updateTicket(ctx, tx, held, from)
		if err != nil || !ok {
			return nil, nil, fmt.Errorf("deferring held ticket %s: %w", held.ID, err)
		}
		if err := insertEvent(ctx, tx, domain.NewTicketEvent(held, domain.EventDeferred, grader, "", at)); err != nil {
			return nil, nil, fmt.Errorf("inserting deferred event: %w", err)
		}
		deferred = held
	}

	if err := target.Accept(grader, at); err != nil {
		return nil, nil, err
	}
	ok, err := updateTicket(ctx, tx, target, domain.TicketStatusPending)
	if err != nil {
		return nil, nil, fmt.Errorf("accepting ticket: %w", err)
	}
	if !ok {
		return nil, nil, domain.ErrTicketNotPending
	}
	if err := insertEvent(ctx, tx, domain.NewTicketEvent(target, domain.EventAccepted, grader, "", at)); err != nil {
		return nil, nil, fmt.Errorf("inserting accepted event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return target, deferred, nil
}

// ActiveByStudent returns the student's PENDING or ACCEPTED ticket, or nil.
func (r *PostgresTicketRepository) ActiveByStudent(ctx context.Context, queueID, studentUserID string) (*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE queue_id = $1 AND student_user_id = $2 AND status IN ('PENDING', 'ACCEPTED')
	`
	t, err := scanTicket(r.db.QueryRowContext(ctx, query, queueID, studentUserID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding active ticket: %w", err)
	}
	return t, nil
}

// Pending lists the queue's PENDING tickets by ascending creation time.
func (r *PostgresTicketRepository) Pending(ctx context.Context, queueID string) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE queue_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC, id ASC
	`
	return r.queryTickets(ctx, query, queueID)
}

// Accepted lists the queue's ACCEPTED tickets.
func (r *PostgresTicketRepository) Accepted(ctx context.Context, queueID string) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE queue_id = $1 AND status = 'ACCEPTED'
		ORDER BY accepted_at ASC
	`
	return r.queryTickets(ctx, query, queueID)
}

// Unresolved lists every PENDING and ACCEPTED ticket on the queue.
func (r *PostgresTicketRepository) Unresolved(ctx context.Context, queueID string) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE queue_id = $1 AND status IN ('PENDING', 'ACCEPTED')
		ORDER BY created_at ASC
	`
	return r.queryTickets(ctx, query, queueID)
}

// ResolvedBetween lists tickets resolved with closed_at in [start, end].
func (r *PostgresTicketRepository) ResolvedBetween(ctx context.Context, queueID string, start, end time.Time) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE queue_id = $1 AND status = 'RESOLVED' AND closed_at >= $2 AND closed_at <= $3
		ORDER BY closed_at ASC
	`
	return r.queryTickets(ctx, query, queueID, start, end)
}

// Position returns the 1-based rank among the queue's pending tickets.
func (r *PostgresTicketRepository) Position(ctx context.Context, t *domain.Ticket) (int, error) {
	query := `
		SELECT COUNT(*) + 1
		FROM tickets
		WHERE queue_id = $1 AND status = 'PENDING'
		  AND (created_at < $2 OR (created_at = $2 AND id < $3))
	`
	var position int
	if err := r.db.QueryRowContext(ctx, query, t.QueueID, t.CreatedAt, t.ID).Scan(&position); err != nil {
		return 0, fmt.Errorf("computing position: %w", err)
	}
	return position, nil
}
