package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

type statsFixture struct {
	*fixture
	stats *StatsService
}

func newStatsFixture(t *testing.T, queue *domain.Queue) *statsFixture {
	t.Helper()
	f := newFixture(t, queue)
	clock := ports.ClockFunc(func() time.Time { return f.now })
	return &statsFixture{
		fixture: f,
		stats:   NewStatsService(f.store, f.store.LoginRepo(), f.store.QueueRepo(), clock),
	}
}

func TestEventCounts(t *testing.T) {
	f := newStatsFixture(t, openQueue())
	f.enroll("alice", domain.RoleStudent)
	f.enroll("bob", domain.RoleGrader)
	ctx := context.Background()

	ticket, err := f.service.Submit(ctx, "q1", "alice", ticketParams())
	require.NoError(t, err)
	_, err = f.service.Accept(ctx, ticket.ID, "bob")
	require.NoError(t, err)
	_, err = f.service.Resolve(ctx, ticket.ID, "bob")
	require.NoError(t, err)

	counts, err := f.stats.EventCounts(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.EventCreated])
	assert.Equal(t, 1, counts[domain.EventAccepted])
	assert.Equal(t, 1, counts[domain.EventResolved])
	assert.Zero(t, counts[domain.EventDeferred])
}

func TestGraderHelpTime(t *testing.T) {
	f := newStatsFixture(t, openQueue())
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
	f.advance(10 * time.Minute)
	_, err = f.service.Resolve(ctx, first.ID, "bob")
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, second.ID, "bob")
	require.NoError(t, err)
	f.advance(4 * time.Minute)
	_, err = f.service.Resolve(ctx, second.ID, "bob")
	require.NoError(t, err)

	total, err := f.stats.GraderHelpTime(ctx, "q1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 14*time.Minute, total)

	// A grader who never accepted anything has no help time.
	none, err := f.stats.GraderHelpTime(ctx, "q1", "carol")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestDutySessions(t *testing.T) {
	f := newStatsFixture(t, openQueue())
	ctx := context.Background()
	start := f.now

	logins := f.store.LoginRepo()
	require.NoError(t, logins.Append(ctx, domain.NewLoginEvent("cs101", "bob", domain.LoginEventLogin, start)))
	require.NoError(t, logins.Append(ctx, domain.NewLoginEvent("cs101", "bob", domain.LoginEventLogout, start.Add(time.Hour))))
	require.NoError(t, logins.Append(ctx, domain.NewLoginEvent("cs101", "carol", domain.LoginEventLogin, start.Add(30*time.Minute))))

	sessions, err := f.stats.DutySessions(ctx, "q1", start.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "bob", sessions[0].UserID)
	assert.False(t, sessions[0].Open)
	assert.Equal(t, "carol", sessions[1].UserID)
	assert.True(t, sessions[1].Open)
}
