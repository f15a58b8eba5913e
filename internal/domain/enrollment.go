package domain

import "fmt"

// Role is a course-scoped privilege level. Lower values carry more
// privilege, so comparisons read as "at least".
type Role int

const (
	RoleRoot Role = iota
	RoleAdmin
	RoleInstructor
	RoleGrader
	RoleStudent
)

var roleNames = map[Role]string{
	RoleRoot:       "ROOT",
	RoleAdmin:      "ADMIN",
	RoleInstructor: "INSTRUCTOR",
	RoleGrader:     "GRADER",
	RoleStudent:    "STUDENT",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", int(r))
}

// ParseRole maps a stored role name to its privilege level.
func ParseRole(name string) (Role, error) {
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return RoleStudent, NewValidationError(fmt.Sprintf("unknown role %q", name))
}

// HasAtLeast reports whether the role carries at least the given
// privilege.
func (r Role) HasAtLeast(min Role) bool {
	return r <= min
}

// MarshalText renders the role by name so JSON stays readable.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a role name.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Enrollment is a user's membership in one course with a role. All
// authorization decisions are made against an enrollment, never a bare
// user id.
type Enrollment struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	Role     Role   `json:"role"`
}

// IsStaff reports whether the enrollment holds grader privileges or
// higher.
func (e Enrollment) IsStaff() bool {
	return e.Role.HasAtLeast(RoleGrader)
}

// SameUser reports whether both enrollments belong to the same user.
func (e Enrollment) SameUser(other Enrollment) bool {
	return e.UserID == other.UserID
}
