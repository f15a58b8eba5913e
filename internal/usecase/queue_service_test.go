package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpq/helpq/internal/adapter/cooldown"
	"github.com/helpq/helpq/internal/adapter/notify"
	"github.com/helpq/helpq/internal/adapter/persistence"
	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/logger"
	"github.com/helpq/helpq/internal/ports"
)

// fixture wires a QueueService against the in-memory store with a
// controllable clock.
type fixture struct {
	store   *persistence.MemoryStore
	guard   *cooldown.MemoryGuard
	service *QueueService
	now     time.Time
}

func newFixture(t *testing.T, queue *domain.Queue) *fixture {
	t.Helper()
	f := &fixture{
		store: persistence.NewMemoryStore(),
		now:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	clock := ports.ClockFunc(func() time.Time { return f.now })
	f.guard = cooldown.NewMemoryGuard(clock)
	f.service = NewQueueService(
		f.store, f.store, f.store.QueueRepo(), f.store,
		f.guard, notify.NewNoopNotifier(), clock, logger.NewNop(),
	)
	require.NoError(t, f.store.Save(context.Background(), queue))
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) enroll(userID string, role domain.Role) {
	f.store.AddEnrollment(domain.Enrollment{UserID: userID, CourseID: "cs101", Role: role})
}

func openQueue() *domain.Queue {
	return &domain.Queue{ID: "q1", CourseID: "cs101", Status: domain.QueueStatusOpen}
}

func ticketParams() domain.TicketParams {
	return domain.TicketParams{
		Title:       "Segfault in part 2",
		Description: "Crashes when the input list is empty",
		HelpType:    domain.HelpTypeQuestion,
		Tags:        []string{"hw3"},
	}
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)

	position, err := f.service.Position(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, position)

	events, err := f.service.Events(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreated, events[0].Kind)
}

func TestSubmit_NotEnrolled(t *testing.T) {
	f := newFixture(t, openQueue())
	_, err := f.service.Submit(context.Background(), "q1", "stranger", ticketParams())
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)
}

func TestSubmit_ClosedQueue(t *testing.T) {
	q := openQueue()
	q.Status = domain.QueueStatusClosed
	f := newFixture(t, q)
	f.enroll("alice", domain.RoleStudent)

	_, err := f.service.Submit(context.Background(), "q1", "alice", ticketParams())
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestSubmit_LockedQueueStillAccepts(t *testing.T) {
	q := openQueue()
	q.Status = domain.QueueStatusLocked
	f := newFixture(t, q)
	f.enroll("alice", domain.RoleStudent)

	_, err := f.service.Submit(context.Background(), "q1", "alice", ticketParams())
	assert.NoError(t, err)
}

func TestSubmit_DuplicateActive(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, "q1", "alice", ticketParams())
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveTicket)
}

func TestSubmit_CooldownAfterResolve(t *testing.T) {
	q := openQueue()
	q.Cooldown = 15 * time.Minute
	f := newFixture(t, q)
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	_, err = f.service.Resolve(ctx, ticket.ID, "bob")
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, "q1", "alice", ticketParams())
	assert.ErrorIs(t, err, domain.ErrCooldownActive)

	// Once the window elapses the student may submit again.
	f.advance(16 * time.Minute)
	_, err = f.service.Submit(ctx, "q1", "alice", ticketParams())
	assert.NoError(t, err)
}

func TestAccept(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	accepted, err := f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.Grader)
	assert.Equal(t, "bob", accepted.Grader.UserID)
	assert.NotNil(t, accepted.AcceptedAt)
}

func TestAccept_StudentForbidden(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, ticket.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestAccept_DefersHeldTicket(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	first, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	f.advance(time.Minute)
	second, err := f.service.Submit(ctx, "q1", "carol", ticketParams())
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, first.ID, "bob")
	require.NoError(t, err)
	f.advance(time.Minute)
	_, err = f.service.Accept(ctx, second.ID, "bob")
	require.NoError(t, err)

	// The first ticket went back to the queue with exactly one DEFERRED
	// event on its trail.
	reloaded, err := f.service.Ticket(ctx, first.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, reloaded.Status)
	assert.Nil(t, reloaded.Grader)

	events, err := f.service.Events(ctx, first.ID, "alice")
	require.NoError(t, err)
	deferred := 0
	for _, e := range events {
		if e.Kind == domain.EventDeferred {
			deferred++
		}
	}
	assert.Equal(t, 1, deferred)
}

func TestAccept_AlreadyAccepted(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	f.enroll("carol", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, ticket.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrTicketNotPending)
}

func TestDefer(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)

	deferred, err := f.service.Defer(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, deferred.Status)
	assert.Nil(t, deferred.Grader)

	_, err = f.service.Defer(ctx, ticket.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrTicketNotHeld)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	f.advance(10 * time.Minute)

	resolved, err := f.service.Resolve(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Grader)
	assert.Equal(t, "bob", resolved.Grader.UserID)
	assert.NotNil(t, resolved.ClosedAt)
}

func TestResolve_NonHolderForbidden(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	f.enroll("carol", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)

	// Only the grader holding the ticket may resolve it.
	_, err = f.service.Resolve(ctx, ticket.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	held, err := f.service.Ticket(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAccepted, held.Status)
	require.NotNil(t, held.Grader)
	assert.Equal(t, "bob", held.Grader.UserID)
}

func TestDefer_NonHolderForbidden(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	f.enroll("carol", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)

	_, err = f.service.Defer(ctx, ticket.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestResolve_PendingRejected(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	_, err = f.service.Resolve(ctx, ticket.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrTicketNotHeld)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	// Another student cannot cancel someone else's ticket.
	_, err = f.service.Cancel(ctx, ticket.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	canceled, err := f.service.Cancel(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCanceled, canceled.Status)

	// Canceling twice is rejected, not silently absorbed.
	_, err = f.service.Cancel(ctx, ticket.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrTicketTerminal)
}

func TestStudentUpdate(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	desc := "Now it crashes on every input"
	updated, err := f.service.StudentUpdate(ctx, ticket.ID, "alice", domain.TicketUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	events, err := f.service.Events(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventUpdated, last.Kind)
	assert.Equal(t, desc, last.Message)
}

func TestComment(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	_, err = f.service.Comment(ctx, ticket.ID, "bob", "")
	assert.Error(t, err)

	ev, err := f.service.Comment(ctx, ticket.ID, "bob", "be right there")
	require.NoError(t, err)
	assert.Equal(t, domain.EventCommented, ev.Kind)

	events, err := f.service.Events(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestPrivateTicketVisibility(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	params := ticketParams()
	params.Private = true
	ticket, err := f.service.Submit(ctx, "q1", "alice", params)
	require.NoError(t, err)

	// A classmate cannot read the ticket and gets an empty history, not an
	// error.
	_, err = f.service.Ticket(ctx, ticket.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	events, err := f.service.Events(ctx, ticket.ID, "carol")
	require.NoError(t, err)
	assert.Empty(t, events)

	// Owner and staff see everything.
	_, err = f.service.Ticket(ctx, ticket.ID, "alice")
	assert.NoError(t, err)
	_, err = f.service.Ticket(ctx, ticket.ID, "bob")
	assert.NoError(t, err)
}

func TestPosition_Ordering(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	f.enroll("dave", domain.RoleStudent)
	ctx := context.Background()

	first, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	f.advance(time.Minute)
	second, err := f.service.Submit(ctx, "q1", "carol", ticketParams())
	require.NoError(t, err)
	f.advance(time.Minute)
	third, err := f.service.Submit(ctx, "q1", "dave", ticketParams())
	require.NoError(t, err)

	for i, tk := range []*domain.Ticket{first, second, third} {
		pos, err := f.service.Position(ctx, tk.ID, tk.Student.UserID)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}

	// Canceling the head moves everyone up.
	_, err = f.service.Cancel(ctx, first.ID, "alice")
	require.NoError(t, err)
	pos, err := f.service.Position(ctx, second.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	// Position is only defined for pending tickets.
	_, err = f.service.Position(ctx, first.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrTicketNotPending)
}

func TestHighCapacity(t *testing.T) {
	q := openQueue()
	q.HighCapacityEnabled = true
	q.HighCapacityThreshold = 1
	q.HighCapacityMessage = "Expect long waits"
	f := newFixture(t, q)
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)

	info, err := f.service.HighCapacity(ctx, "q1")
	require.NoError(t, err)
	assert.False(t, info.AtHighCapacity)

	f.advance(time.Minute)
	_, err = f.service.Submit(ctx, "q1", "carol", ticketParams())
	require.NoError(t, err)

	info, err = f.service.HighCapacity(ctx, "q1")
	require.NoError(t, err)
	assert.True(t, info.AtHighCapacity)
	assert.Equal(t, 2, info.Unresolved)
	assert.Equal(t, "Expect long waits", info.Message)
}

func TestClearTickets(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("carol", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	f.enroll("ivy", domain.RoleInstructor)
	ctx := context.Background()

	first, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	f.advance(time.Minute)
	_, err = f.service.Submit(ctx, "q1", "carol", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, first.ID, "bob")
	require.NoError(t, err)

	// Graders may not clear the queue.
	_, err = f.service.ClearTickets(ctx, "q1", "bob")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	cleared, err := f.service.ClearTickets(ctx, "q1", "ivy")
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	unresolved, err := f.store.Unresolved(ctx, "q1")
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestSetQueueStatus(t *testing.T) {
	f := newFixture(t, openQueue())
	f.enroll("bob", domain.RoleGrader)
	f.enroll("ivy", domain.RoleInstructor)
	ctx := context.Background()

	_, err := f.service.SetQueueStatus(ctx, "q1", "bob", domain.QueueStatusClosed)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	q, err := f.service.SetQueueStatus(ctx, "q1", "ivy", domain.QueueStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatusClosed, q.Status)

	// Closed to locked is not a legal transition.
	_, err = f.service.SetQueueStatus(ctx, "q1", "ivy", domain.QueueStatusLocked)
	assert.ErrorIs(t, err, domain.ErrInvalidQueueTransition)
}
