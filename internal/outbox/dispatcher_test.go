package outbox

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu        sync.Mutex
	pending   []Task
	completed []string
	failed    []string
	retried   map[string]time.Time
}

func newFakeQueue(tasks ...Task) *fakeQueue {
	return &fakeQueue{pending: tasks, retried: map[string]time.Time{}}
}

func (q *fakeQueue) Claim(_ context.Context, _ time.Time, limit int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(limit, len(q.pending))
	out := q.pending[:n]
	q.pending = q.pending[n:]
	return out, nil
}

func (q *fakeQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueue) Retry(_ context.Context, id string, next time.Time, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried[id] = next
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, id string, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	return nil
}

type recorder struct {
	mu       sync.Mutex
	escrows  []string
	streams  []string
	quests   []QuestEvent
	achieved []AchievementEvent
	stages   []StageCompletion
	failWith error
}

func (r *recorder) ScheduleEscrowSettlement(_ context.Context, lobbyID, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.escrows = append(r.escrows, lobbyID)
	return nil
}

func (r *recorder) StopAgentStream(_ context.Context, _, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, agentID)
	return nil
}

func (r *recorder) ReportQuestEvent(_ context.Context, ev QuestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quests = append(r.quests, ev)
	return nil
}

func (r *recorder) ReportAchievementEvent(_ context.Context, ev AchievementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.achieved = append(r.achieved, ev)
	return nil
}

func (r *recorder) ReportStageCompletion(_ context.Context, sc StageCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, sc)
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTaskIDsAreStable(t *testing.T) {
	now := time.Now()
	a := NewQuestEventTask("l1", QuestEvent{UserID: "u1", Type: "win", Value: 1}, now)
	b := NewQuestEventTask("l1", QuestEvent{UserID: "u1", Type: "win", Value: 1}, now.Add(time.Hour))
	c := NewQuestEventTask("l1", QuestEvent{UserID: "u2", Type: "win", Value: 1}, now)
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)

	var ev QuestEvent
	require.NoError(t, a.Decode(&ev))
	assert.Equal(t, "u1", ev.UserID)
}

func TestDispatcherRoutesTasks(t *testing.T) {
	now := time.Now()
	q := newFakeQueue(
		NewSettleEscrowTask("l1", "w", "l", now),
		NewStopAgentStreamTask("l1", "agent-1", now),
		NewQuestEventTask("l1", QuestEvent{UserID: "w", Type: "win", Value: 1}, now),
		NewAchievementEventTask("l1", AchievementEvent{UserID: "w", Type: "first_win", Value: 1}, now),
		NewStageCompletionTask("l1", StageCompletion{UserID: "w", StageID: "s1", Won: true, FinalLifePoints: 1200}, now),
	)
	rec := &recorder{}
	d := NewDispatcher(q, Collaborators{Escrow: rec, Streams: rec, Progression: rec}, DispatcherConfig{Workers: 2}, quietLogger())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, q.completed, 5)
	assert.Equal(t, []string{"l1"}, rec.escrows)
	assert.Equal(t, []string{"agent-1"}, rec.streams)
	require.Len(t, rec.stages, 1)
	assert.Equal(t, 1200, rec.stages[0].FinalLifePoints)
	assert.Len(t, rec.quests, 1)
	assert.Len(t, rec.achieved, 1)

	n, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := NewSettleEscrowTask("l1", "w", "l", now)
	task.Attempts = 2
	q := newFakeQueue(task)
	rec := &recorder{failWith: errors.New("chain unavailable")}
	d := NewDispatcher(q, Collaborators{Escrow: rec}, DispatcherConfig{BaseBackoff: time.Second, MaxAttempts: 5}, quietLogger())
	d.now = func() time.Time { return now }

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, q.completed)
	assert.Equal(t, now.Add(4*time.Second), q.retried[task.ID])
}

func TestDispatcherGivesUp(t *testing.T) {
	task := NewStopAgentStreamTask("l1", "a1", time.Now())
	task.Attempts = 4
	q := newFakeQueue(task)
	d := NewDispatcher(q, Collaborators{}, DispatcherConfig{MaxAttempts: 5}, quietLogger())

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, q.failed)
}

func TestBackoffIsCapped(t *testing.T) {
	d := NewDispatcher(newFakeQueue(), Collaborators{}, DispatcherConfig{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}, quietLogger())
	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 4*time.Second, d.backoff(3))
	assert.Equal(t, 5*time.Second, d.backoff(4))
	assert.Equal(t, 5*time.Second, d.backoff(20))
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(newFakeQueue(), NewLogCollaborators(quietLogger()), DispatcherConfig{Poll: time.Millisecond}, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, d.Run(ctx))
}
