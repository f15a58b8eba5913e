package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/helpq/helpq/internal/domain"
)

// MemoryStore is an in-process implementation of every repository port,
// honoring the same atomicity contracts under a single mutex. It backs
// tests and single-node development without Postgres.
type MemoryStore struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	events      []*domain.TicketEvent
	queues      map[string]*domain.Queue
	logins      []*domain.LoginEvent
	enrollments map[string]domain.Enrollment // userID + "/" + courseID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:     make(map[string]*domain.Ticket),
		queues:      make(map[string]*domain.Queue),
		enrollments: make(map[string]domain.Enrollment),
	}
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	if t.Grader != nil {
		g := *t.Grader
		c.Grader = &g
	}
	if t.AcceptedAt != nil {
		at := *t.AcceptedAt
		c.AcceptedAt = &at
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		c.ClosedAt = &at
	}
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}

// AddEnrollment registers a course-scoped identity.
func (m *MemoryStore) AddEnrollment(e domain.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.UserID+"/"+e.CourseID] = e
}

// ResolveEnrollment implements ports.EnrollmentResolver.
func (m *MemoryStore) ResolveEnrollment(_ context.Context, userID, courseID string) (domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[userID+"/"+courseID]
	if !ok {
		return domain.Enrollment{}, domain.ErrNotEnrolled
	}
	return e, nil
}

// Create implements ports.TicketRepository.
func (m *MemoryStore) Create(_ context.Context, t *domain.Ticket, created *domain.TicketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tickets {
		if existing.QueueID == t.QueueID &&
			existing.Student.UserID == t.Student.UserID &&
			!existing.Terminal() {
			return domain.ErrDuplicateActiveTicket
		}
	}
	m.tickets[t.ID] = cloneTicket(t)
	m.events = append(m.events, created)
	return nil
}

// FindByID implements ports.TicketRepository.
func (m *MemoryStore) FindByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return cloneTicket(t), nil
}

// Update implements ports.TicketRepository.
func (m *MemoryStore) Update(_ context.Context, t *domain.Ticket, from domain.TicketStatus, event *domain.TicketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[t.ID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if stored.Status != from {
		return domain.ErrStaleTicket
	}
	m.tickets[t.ID] = cloneTicket(t)
	m.events = append(m.events, event)
	return nil
}

// AcceptForGrader implements ports.TicketRepository.
func (m *MemoryStore) AcceptForGrader(_ context.Context, ticketID string, grader domain.Enrollment, at time.Time) (*domain.Ticket, *domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.tickets[ticketID]
	if !ok {
		return nil, nil, domain.ErrTicketNotFound
	}
	if target.Status != domain.TicketStatusPending {
		return nil, nil, domain.ErrTicketNotPending
	}

	var deferred *domain.Ticket
	for _, t := range m.tickets {
		if t.ID == ticketID || t.Status != domain.TicketStatusAccepted {
			continue
		}
		if t.Grader != nil && t.Grader.UserID == grader.UserID && t.Student.CourseID == grader.CourseID {
			if err := t.Defer(); err != nil {
				return nil, nil, err
			}
			m.events = append(m.events, domain.NewTicketEvent(t, domain.EventDeferred, grader, "", at))
			deferred = cloneTicket(t)
			break
		}
	}

	if err := target.Accept(grader, at); err != nil {
		return nil, nil, err
	}
	m.events = append(m.events, domain.NewTicketEvent(target, domain.EventAccepted, grader, "", at))
	return cloneTicket(target), deferred, nil
}

// ActiveByStudent implements ports.TicketRepository.
func (m *MemoryStore) ActiveByStudent(_ context.Context, queueID, studentUserID string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.QueueID == queueID && t.Student.UserID == studentUserID && !t.Terminal() {
			return cloneTicket(t), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) listTickets(queueID string, match func(*domain.Ticket) bool) []*domain.Ticket {
	var out []*domain.Ticket
	for _, t := range m.tickets {
		if t.QueueID == queueID && match(t) {
			out = append(out, cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pending implements ports.TicketRepository.
func (m *MemoryStore) Pending(_ context.Context, queueID string) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTickets(queueID, func(t *domain.Ticket) bool {
		return t.Status == domain.TicketStatusPending
	}), nil
}

// Accepted implements ports.TicketRepository.
func (m *MemoryStore) Accepted(_ context.Context, queueID string) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTickets(queueID, func(t *domain.Ticket) bool {
		return t.Status == domain.TicketStatusAccepted
	}), nil
}

// Unresolved implements ports.TicketRepository.
func (m *MemoryStore) Unresolved(_ context.Context, queueID string) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTickets(queueID, func(t *domain.Ticket) bool {
		return !t.Terminal()
	}), nil
}

// ResolvedBetween implements ports.TicketRepository.
func (m *MemoryStore) ResolvedBetween(_ context.Context, queueID string, start, end time.Time) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTickets(queueID, func(t *domain.Ticket) bool {
		return t.Status == domain.TicketStatusResolved &&
			t.ClosedAt != nil &&
			!t.ClosedAt.Before(start) && !t.ClosedAt.After(end)
	}), nil
}

// Position implements ports.TicketRepository.
func (m *MemoryStore) Position(_ context.Context, target *domain.Ticket) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	position := 1
	for _, t := range m.tickets {
		if t.QueueID != target.QueueID || t.Status != domain.TicketStatusPending || t.ID == target.ID {
			continue
		}
		if t.CreatedAt.Before(target.CreatedAt) ||
			(t.CreatedAt.Equal(target.CreatedAt) && t.ID < target.ID) {
			position++
		}
	}
	return position, nil
}

// Append implements ports.EventRepository.
func (m *MemoryStore) Append(_ context.Context, e *domain.TicketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// sortEvents orders by timestamp, keeping append order for equal
// instants so same-instant pairs stay in causal order.
func sortEvents(events []*domain.TicketEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
}

// ByTicket implements ports.EventRepository.
func (m *MemoryStore) ByTicket(_ context.Context, ticketID string) ([]*domain.TicketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TicketEvent
	for _, e := range m.events {
		if e.TicketID == ticketID {
			c := *e
			out = append(out, &c)
		}
	}
	sortEvents(out)
	return out, nil
}

// ByActor implements ports.EventRepository.
func (m *MemoryStore) ByActor(_ context.Context, queueID, actorUserID string) ([]*domain.TicketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TicketEvent
	for _, e := range m.events {
		t, ok := m.tickets[e.TicketID]
		if ok && t.QueueID == queueID && e.Actor.UserID == actorUserID {
			c := *e
			out = append(out, &c)
		}
	}
	sortEvents(out)
	return out, nil
}

// CountByKind implements ports.EventRepository.
func (m *MemoryStore) CountByKind(_ context.Context, queueID string) (map[domain.EventKind]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.EventKind]int)
	for _, e := range m.events {
		if t, ok := m.tickets[e.TicketID]; ok && t.QueueID == queueID {
			counts[e.Kind]++
		}
	}
	return counts, nil
}

// Save implements ports.QueueRepository.
func (m *MemoryStore) Save(_ context.Context, q *domain.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *q
	m.queues[q.ID] = &c
	return nil
}

func (m *MemoryStore) findQueue(id string) (*domain.Queue, error) {
	q, ok := m.queues[id]
	if !ok {
		return nil, domain.ErrQueueNotFound
	}
	c := *q
	return &c, nil
}

// QueueRepo exposes the store as a ports.QueueRepository. A separate view
// is needed because FindByID is already the ticket lookup.
func (m *MemoryStore) QueueRepo() *MemoryQueueRepo {
	return &MemoryQueueRepo{store: m}
}

// MemoryQueueRepo is the queue-repository view over a MemoryStore.
type MemoryQueueRepo struct {
	store *MemoryStore
}

func (r *MemoryQueueRepo) FindByID(_ context.Context, id string) (*domain.Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.findQueue(id)
}

func (r *MemoryQueueRepo) FindByCourse(_ context.Context, courseID string) (*domain.Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, q := range r.store.queues {
		if q.CourseID == courseID {
			c := *q
			return &c, nil
		}
	}
	return nil, domain.ErrQueueNotFound
}

func (r *MemoryQueueRepo) Save(ctx context.Context, q *domain.Queue) error {
	return r.store.Save(ctx, q)
}

func (r *MemoryQueueRepo) UpdateStatus(_ context.Context, queueID string, from, to domain.QueueStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.queues[queueID]
	if !ok {
		return domain.ErrQueueNotFound
	}
	if q.Status != from {
		return domain.ErrInvalidQueueTransition
	}
	q.Status = to
	return nil
}

func (r *MemoryQueueRepo) CourseForQueue(_ context.Context, queueID string) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, err := r.store.findQueue(queueID)
	if err != nil {
		return "", err
	}
	return q.CourseID, nil
}

// LoginRepo exposes the store as a ports.LoginEventRepository.
func (m *MemoryStore) LoginRepo() *MemoryLoginRepo {
	return &MemoryLoginRepo{store: m}
}

// MemoryLoginRepo is the login-event view over a MemoryStore.
type MemoryLoginRepo struct {
	store *MemoryStore
}

func (r *MemoryLoginRepo) Append(_ context.Context, e *domain.LoginEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.logins = append(r.store.logins, e)
	return nil
}

func (r *MemoryLoginRepo) ByCourse(_ context.Context, courseID string, since time.Time) ([]*domain.LoginEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.LoginEvent
	for _, e := range r.store.logins {
		if e.CourseID == courseID && !e.At.Before(since) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (r *MemoryLoginRepo) ActiveGraders(_ context.Context, courseID string) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var course []*domain.LoginEvent
	for _, e := range r.store.logins {
		if e.CourseID == courseID {
			course = append(course, e)
		}
	}
	return domain.OnDuty(course), nil
}
