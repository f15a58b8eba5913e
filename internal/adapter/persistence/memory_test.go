package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpq/helpq/internal/domain"
)

var storeNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTicket(t *testing.T, queueID, student string, at time.Time) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(queueID,
		domain.Enrollment{UserID: student, CourseID: "cs101", Role: domain.RoleStudent},
		domain.TicketParams{
			Title:       "Segfault in part 2",
			Description: "Crashes when the input list is empty",
			HelpType:    domain.HelpTypeQuestion,
			Tags:        []string{"hw3"},
		}, at)
	require.NoError(t, err)
	return ticket
}

func grader(userID string) domain.Enrollment {
	return domain.Enrollment{UserID: userID, CourseID: "cs101", Role: domain.RoleGrader}
}

func createTicket(t *testing.T, store *MemoryStore, ticket *domain.Ticket) {
	t.Helper()
	ev := domain.NewTicketEvent(ticket, domain.EventCreated, ticket.Student, "", ticket.CreatedAt)
	require.NoError(t, store.Create(context.Background(), ticket, ev))
}

func TestMemoryStore_DuplicateActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newTicket(t, "q1", "alice", storeNow)
	createTicket(t, store, first)

	second := newTicket(t, "q1", "alice", storeNow.Add(time.Minute))
	ev := domain.NewTicketEvent(second, domain.EventCreated, second.Student, "", second.CreatedAt)
	err := store.Create(ctx, second, ev)
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveTicket)

	// A different queue or a closed first ticket clears the constraint.
	other := newTicket(t, "q2", "alice", storeNow)
	createTicket(t, store, other)

	require.NoError(t, first.Cancel(storeNow.Add(time.Minute)))
	require.NoError(t, store.Update(ctx, first, domain.TicketStatusPending,
		domain.NewTicketEvent(first, domain.EventCanceled, first.Student, "", storeNow.Add(time.Minute))))
	third := newTicket(t, "q1", "alice", storeNow.Add(2*time.Minute))
	createTicket(t, store, third)
}

func TestMemoryStore_UpdateCAS(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket(t, "q1", "alice", storeNow)
	createTicket(t, store, ticket)

	// A stale writer whose from-status no longer matches is rejected.
	stale := *ticket
	require.NoError(t, stale.Accept(grader("bob"), storeNow))
	require.NoError(t, store.Update(ctx, &stale, domain.TicketStatusPending,
		domain.NewTicketEvent(&stale, domain.EventAccepted, grader("bob"), "", storeNow)))

	err := store.Update(ctx, ticket, domain.TicketStatusPending,
		domain.NewTicketEvent(ticket, domain.EventCanceled, ticket.Student, "", storeNow))
	assert.ErrorIs(t, err, domain.ErrStaleTicket)
}

func TestMemoryStore_AcceptForGrader(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newTicket(t, "q1", "alice", storeNow)
	createTicket(t, store, first)
	second := newTicket(t, "q1", "carol", storeNow.Add(time.Minute))
	createTicket(t, store, second)

	bob := grader("bob")
	accepted, deferred, err := store.AcceptForGrader(ctx, first.ID, bob, storeNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, deferred)
	assert.Equal(t, domain.TicketStatusAccepted, accepted.Status)

	// Accepting the second defers the held first in the same call.
	accepted, deferred, err = store.AcceptForGrader(ctx, second.ID, bob, storeNow.Add(3*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, deferred)
	assert.Equal(t, first.ID, deferred.ID)
	assert.Equal(t, domain.TicketStatusPending, deferred.Status)
	assert.Equal(t, domain.TicketStatusAccepted, accepted.Status)

	// Accepting a non-pending ticket fails.
	_, _, err = store.AcceptForGrader(ctx, second.ID, grader("dave"), storeNow.Add(4*time.Minute))
	assert.ErrorIs(t, err, domain.ErrTicketNotPending)

	events, err := store.ByTicket(ctx, first.ID)
	require.NoError(t, err)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []domain.EventKind{domain.EventCreated, domain.EventAccepted, domain.EventDeferred}, kinds)
}

func TestMemoryStore_AcceptForGrader_Race(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket(t, "q1", "alice", storeNow)
	createTicket(t, store, ticket)

	// Racing graders: exactly one accept wins, the rest see the ticket
	// already out of PENDING.
	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.AcceptForGrader(ctx, ticket.ID, grader(fmt.Sprintf("grader%d", i)), storeNow.Add(time.Minute))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrTicketNotPending)
	}
	assert.Equal(t, 1, wins)

	reloaded, err := store.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAccepted, reloaded.Status)
	require.NotNil(t, reloaded.Grader)
}

func TestMemoryStore_Position(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newTicket(t, "q1", "alice", storeNow)
	createTicket(t, store, first)
	second := newTicket(t, "q1", "carol", storeNow.Add(time.Minute))
	createTicket(t, store, second)

	pos, err := store.Position(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	// Accepted tickets leave the pending ranking.
	_, _, err = store.AcceptForGrader(ctx, first.ID, grader("bob"), storeNow.Add(2*time.Minute))
	require.NoError(t, err)

	pos, err = store.Position(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestMemoryStore_ResolvedBetween(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket(t, "q1", "alice", storeNow)
	createTicket(t, store, ticket)
	_, _, err := store.AcceptForGrader(ctx, ticket.ID, grader("bob"), storeNow.Add(time.Minute))
	require.NoError(t, err)

	reloaded, err := store.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	closedAt := storeNow.Add(10 * time.Minute)
	require.NoError(t, reloaded.Resolve(closedAt))
	require.NoError(t, store.Update(ctx, reloaded, domain.TicketStatusAccepted,
		domain.NewTicketEvent(reloaded, domain.EventResolved, grader("bob"), "", closedAt)))

	within, err := store.ResolvedBetween(ctx, "q1", storeNow, storeNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, within, 1)

	// A ticket resolved exactly at the window end still counts.
	atEnd, err := store.ResolvedBetween(ctx, "q1", storeNow, closedAt)
	require.NoError(t, err)
	assert.Len(t, atEnd, 1)

	before, err := store.ResolvedBetween(ctx, "q1", storeNow.Add(-time.Hour), closedAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, before)
}
