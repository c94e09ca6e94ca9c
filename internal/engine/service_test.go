package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"freeflow/status-engine/status-engine-backend/internal/history"
	"freeflow/status-engine/status-engine-backend/internal/statuses"
	"freeflow/status-engine/status-engine-backend/internal/transitions"
	"freeflow/status-engine/status-engine-backend/pkg/apperrors"
	"freeflow/status-engine/status-engine-backend/pkg/predicate"
)

// fakeCatalog serves statuses from a map.
type fakeCatalog struct {
	byID map[uuid.UUID]*statuses.Status
}

func (c *fakeCatalog) GetStatusByID(_ context.Context, id uuid.UUID) (*statuses.Status, error) {
	return c.byID[id], nil
}

// fakeTable serves transitions from a slice and counts lookups so tests can
// assert the table was never consulted.
type fakeTable struct {
	edges   []transitions.Transition
	catalog *fakeCatalog
	lookups int
}

func (t *fakeTable) FindTransition(_ context.Context, from, to uuid.UUID) (*transitions.Transition, error) {
	t.lookups++
	for i := range t.edges {
		edge := &t.edges[i]
		if edge.FromStatusID == from && edge.ToStatusID == to && edge.IsActive {
			return edge, nil
		}
	}
	return nil, nil
}

func (t *fakeTable) GetAvailableTransitions(_ context.Context, from uuid.UUID) ([]transitions.AvailableTransition, error) {
	result := []transitions.AvailableTransition{}
	for _, edge := range t.edges {
		if edge.FromStatusID == from && edge.IsActive {
			result = append(result, transitions.AvailableTransition{
				Transition: edge,
				ToStatus:   *t.catalog.byID[edge.ToStatusID],
			})
		}
	}
	return result, nil
}

// memoryLedger is an in-memory append-only chain with the same optimistic
// check the real repository performs inside its transaction.
type memoryLedger struct {
	mu      sync.Mutex
	entries []history.Entry
	seq     int64
}

func (l *memoryLedger) latestLocked(entityType, entityID string) *history.Entry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].EntityType == entityType && l.entries[i].EntityID == entityID {
			return &l.entries[i]
		}
	}
	return nil
}

func (l *memoryLedger) Append(_ context.Context, entry *history.Entry, expectedFromStatusID *uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	latest := l.latestLocked(entry.EntityType, entry.EntityID)
	if latest == nil {
		if expectedFromStatusID != nil {
			return apperrors.ConcurrentModification("no history where a current status was expected")
		}
	} else if expectedFromStatusID == nil || latest.StatusID != *expectedFromStatusID {
		return apperrors.ConcurrentModification("entity changed status concurrently")
	}

	l.seq++
	entry.Seq = l.seq
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *memoryLedger) GetLatest(_ context.Context, entityType, entityID string) (*history.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	latest := l.latestLocked(entityType, entityID)
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (l *memoryLedger) GetHistory(_ context.Context, entityType, entityID string, opts history.QueryOptions) ([]history.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := []history.Entry{}
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		if entry.EntityType != entityType || entry.EntityID != entityID {
			continue
		}
		if opts.FromDate != nil && entry.ChangedAt.Before(*opts.FromDate) {
			continue
		}
		if opts.ToDate != nil && entry.ChangedAt.After(*opts.ToDate) {
			continue
		}
		result = append(result, entry)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

func (l *memoryLedger) CountForEntity(_ context.Context, entityType, entityID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var count int64
	for _, entry := range l.entries {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			count++
		}
	}
	return count, nil
}

// capturingPublisher records published events; optionally fails.
type capturingPublisher struct {
	mu     sync.Mutex
	events []StatusChangedEvent
	fail   bool
}

func (p *capturingPublisher) Publish(_ context.Context, event StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("dispatcher unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	catalog   *fakeCatalog
	table     *fakeTable
	ledger    *memoryLedger
	publisher *capturingPublisher
	service   Service
}

func newFixture() *fixture {
	catalog := &fakeCatalog{byID: map[uuid.UUID]*statuses.Status{}}
	table := &fakeTable{catalog: catalog}
	ledger := &memoryLedger{}
	publisher := &capturingPublisher{}
	service := NewService(catalog, table, ledger, predicate.NewRuleEvaluator(), publisher)
	return &fixture{catalog: catalog, table: table, ledger: ledger, publisher: publisher, service: service}
}

func (f *fixture) addStatus(entityType, code string, isDefault, isFinal bool) *statuses.Status {
	status := &statuses.Status{
		ID:         uuid.New(),
		EntityType: entityType,
		Code:       code,
		Name:       code,
		IsDefault:  isDefault,
		IsFinal:    isFinal,
		IsActive:   true,
	}
	f.catalog.byID[status.ID] = status
	return status
}

func (f *fixture) addTransition(from, to *statuses.Status, requiresComment bool, conditions datatypes.JSON) *transitions.Transition {
	edge := transitions.Transition{
		ID:              uuid.New(),
		FromStatusID:    from.ID,
		ToStatusID:      to.ID,
		Name:            from.Code + " -> " + to.Code,
		RequiresComment: requiresComment,
		Conditions:      conditions,
		IsActive:        true,
	}
	f.table.edges = append(f.table.edges, edge)
	return &f.table.edges[len(f.table.edges)-1]
}

func TestFirstAssignmentSkipsTransitionTable(t *testing.T) {
	f := newFixture()
	open := f.addStatus("ticket", "open", true, false)

	entry, err := f.service.ChangeStatus(context.Background(), "ticket", "T1", open.ID, "alice", ChangeOptions{})

	require.NoError(t, err)
	assert.Nil(t, entry.FromStatusID)
	assert.Equal(t, open.ID, entry.StatusID)
	assert.Equal(t, "alice", entry.ChangedBy)
	assert.Equal(t, 0, f.table.lookups, "first assignment must not consult the transition table")

	count, _ := f.ledger.CountForEntity(context.Background(), "ticket", "T1")
	assert.EqualValues(t, 1, count)
}

func TestFirstAssignmentRejectsWrongEntityType(t *testing.T) {
	f := newFixture()
	open := f.addStatus("ticket", "open", true, false)

	_, err := f.service.ChangeStatus(context.Background(), "order", "O1", open.ID, "alice", ChangeOptions{})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestChangeStatusUnknownTarget(t *testing.T) {
	f := newFixture()

	_, err := f.service.ChangeStatus(context.Background(), "ticket", "T1", uuid.New(), "alice", ChangeOptions{})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestIllegalEdgeRejected(t *testing.T) {
	f := newFixture()
	a := f.addStatus("order", "a", true, false)
	b := f.addStatus("order", "b", false, false)
	c := f.addStatus("order", "c", false, false)
	f.addTransition(a, b, false, nil)

	_, err := f.service.ChangeStatus(context.Background(), "order", "O1", a.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	_, err = f.service.ChangeStatus(context.Background(), "order", "O1", c.ID, "alice", ChangeOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransitionNotAllowed))

	// No entry may be appended on a rejected move.
	count, _ := f.ledger.CountForEntity(context.Background(), "order", "O1")
	assert.EqualValues(t, 1, count)
}

func TestCommentGuard(t *testing.T) {
	f := newFixture()
	a := f.addStatus("order", "a", true, false)
	b := f.addStatus("order", "b", false, false)
	f.addTransition(a, b, true, nil)

	_, err := f.service.ChangeStatus(context.Background(), "order", "O1", a.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	_, err = f.service.ChangeStatus(context.Background(), "order", "O1", b.ID, "alice", ChangeOptions{Comment: ""})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCommentRequired))

	entry, err := f.service.ChangeStatus(context.Background(), "order", "O1", b.ID, "alice", ChangeOptions{Comment: "approved by finance"})
	require.NoError(t, err)
	assert.Equal(t, "approved by finance", entry.Comment)
}

func TestConditionGuard(t *testing.T) {
	f := newFixture()
	a := f.addStatus("invoice", "draft", true, false)
	b := f.addStatus("invoice", "sent", false, false)
	conditions := datatypes.JSON(`{"logic":"AND","conditions":[{"field":"amount","operator":"gte","value":100}]}`)
	f.addTransition(a, b, false, conditions)

	_, err := f.service.ChangeStatus(context.Background(), "invoice", "I1", a.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	_, err = f.service.ChangeStatus(context.Background(), "invoice", "I1", b.ID, "alice", ChangeOptions{
		EntitySnapshot: map[string]interface{}{"amount": 50},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConditionNotMet))

	_, err = f.service.ChangeStatus(context.Background(), "invoice", "I1", b.ID, "alice", ChangeOptions{
		EntitySnapshot: map[string]interface{}{"amount": 150},
	})
	assert.NoError(t, err)
}

func TestPublishFailureDoesNotFailChange(t *testing.T) {
	f := newFixture()
	f.publisher.fail = true
	open := f.addStatus("ticket", "open", true, false)

	entry, err := f.service.ChangeStatus(context.Background(), "ticket", "T1", open.ID, "alice", ChangeOptions{})

	require.NoError(t, err)
	assert.NotNil(t, entry)

	count, _ := f.ledger.CountForEntity(context.Background(), "ticket", "T1")
	assert.EqualValues(t, 1, count)
}

func TestAvailableTransitionsWithoutStatus(t *testing.T) {
	f := newFixture()

	available, err := f.service.GetAvailableTransitions(context.Background(), "ticket", "T-unassigned")

	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestCurrentStatusAbsentForUnknownEntity(t *testing.T) {
	f := newFixture()

	status, err := f.service.GetCurrentStatus(context.Background(), "ticket", "T-unassigned")

	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestTicketLifecycleScenario(t *testing.T) {
	f := newFixture()
	open := f.addStatus("ticket", "open", true, false)
	inProgress := f.addStatus("ticket", "in_progress", false, false)
	resolved := f.addStatus("ticket", "resolved", false, true)
	f.addTransition(open, inProgress, false, nil)
	f.addTransition(inProgress, resolved, true, nil)

	ctx := context.Background()

	_, err := f.service.ChangeStatus(ctx, "ticket", "T1", open.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	// open -> resolved has no edge.
	_, err = f.service.ChangeStatus(ctx, "ticket", "T1", resolved.ID, "alice", ChangeOptions{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransitionNotAllowed))

	_, err = f.service.ChangeStatus(ctx, "ticket", "T1", inProgress.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	_, err = f.service.ChangeStatus(ctx, "ticket", "T1", resolved.ID, "alice", ChangeOptions{Comment: ""})
	assert.True(t, apperrors.IsKind(err, apperrors.KindCommentRequired))

	_, err = f.service.ChangeStatus(ctx, "ticket", "T1", resolved.ID, "alice", ChangeOptions{Comment: "fixed"})
	require.NoError(t, err)

	entries, err := f.service.GetHistory(ctx, "ticket", "T1", history.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first, and the current status matches the newest entry.
	assert.Equal(t, resolved.ID, entries[0].StatusID)
	current, err := f.service.GetCurrentStatus(ctx, "ticket", "T1")
	require.NoError(t, err)
	assert.Equal(t, resolved.ID, current.ID)

	// changed_at is non-increasing in newest-first order.
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i-1].ChangedAt.Before(entries[i].ChangedAt))
	}

	// Events fired once per successful change.
	assert.Len(t, f.publisher.events, 3)
}

func TestConcurrentChangesSingleWinner(t *testing.T) {
	f := newFixture()
	a := f.addStatus("order", "a", true, false)
	b := f.addStatus("order", "b", false, false)
	c := f.addStatus("order", "c", false, false)
	f.addTransition(a, b, false, nil)
	f.addTransition(a, c, false, nil)

	ctx := context.Background()
	_, err := f.service.ChangeStatus(ctx, "order", "O1", a.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	// Both goroutines read current status a, then race to append.
	start := make(chan struct{})
	results := make(chan error, 2)
	for _, target := range []uuid.UUID{b.ID, c.ID} {
		go func(target uuid.UUID) {
			<-start
			_, err := f.service.ChangeStatus(ctx, "order", "O1", target, "bob", ChangeOptions{})
			results <- err
		}(target)
	}
	close(start)

	var failures []error
	successes := 0
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			failures = append(failures, err)
		} else {
			successes++
		}
	}

	assert.Equal(t, 1, successes)
	require.Len(t, failures, 1)
	kind := apperrors.KindOf(failures[0])
	assert.Contains(t,
		[]apperrors.Kind{apperrors.KindConcurrentModification, apperrors.KindTransitionNotAllowed},
		kind)

	// Exactly one append landed on top of the initial assignment.
	count, _ := f.ledger.CountForEntity(ctx, "order", "O1")
	assert.EqualValues(t, 2, count)
}

func TestHistoryQueryOptions(t *testing.T) {
	f := newFixture()
	a := f.addStatus("ticket", "a", true, false)
	b := f.addStatus("ticket", "b", false, false)
	f.addTransition(a, b, false, nil)

	ctx := context.Background()
	_, err := f.service.ChangeStatus(ctx, "ticket", "T1", a.ID, "alice", ChangeOptions{})
	require.NoError(t, err)
	_, err = f.service.ChangeStatus(ctx, "ticket", "T1", b.ID, "alice", ChangeOptions{})
	require.NoError(t, err)

	limited, err := f.service.GetHistory(ctx, "ticket", "T1", history.QueryOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, b.ID, limited[0].StatusID)

	future := time.Now().Add(time.Hour)
	none, err := f.service.GetHistory(ctx, "ticket", "T1", history.QueryOptions{FromDate: &future})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMetadataRecorded(t *testing.T) {
	f := newFixture()
	open := f.addStatus("ticket", "open", true, false)

	metadata := datatypes.JSON(`{"source":"import"}`)
	entry, err := f.service.ChangeStatus(context.Background(), "ticket", "T1", open.ID, "importer", ChangeOptions{Metadata: metadata})

	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"import"}`, string(entry.Metadata))
}
