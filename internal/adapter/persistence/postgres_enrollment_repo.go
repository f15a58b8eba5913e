package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

// PostgresEnrollmentRepository resolves course-scoped identities from the
// enrollments table.
type PostgresEnrollmentRepository struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepository creates a PostgreSQL enrollment resolver.
func NewPostgresEnrollmentRepository(db *sql.DB) ports.EnrollmentResolver {
	return &PostgresEnrollmentRepository{db: db}
}

// ResolveEnrollment returns the user's enrollment in the course.
func (r *PostgresEnrollmentRepository) ResolveEnrollment(ctx context.Context, userID, courseID string) (domain.Enrollment, error) {
	var roleName string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM enrollments WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&roleName)
	if err == sql.ErrNoRows {
		return domain.Enrollment{}, domain.ErrNotEnrolled
	}
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("resolving enrollment: %w", err)
	}
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return domain.Enrollment{}, err
	}
	return domain.Enrollment{UserID: userID, CourseID: courseID, Role: role}, nil
}
