package match

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peterkuimelis/duelserver/internal/outbox"
)

// claimTTL is how long a claimed task stays hidden from other claimers.
const claimTTL = time.Minute

type queuedTask struct {
	task         outbox.Task
	claimedUntil time.Time
	done         bool
	failed       bool
}

type memData struct {
	lobbies   map[string]Lobby
	players   map[string]Player
	agents    map[string]Agent // by user id
	history   []MatchHistory
	ledger    []LedgerEntry
	completed int64
	tasks     map[string]queuedTask
	taskOrder []string
}

func (d *memData) clone() *memData {
	return &memData{
		lobbies:   maps.Clone(d.lobbies),
		players:   maps.Clone(d.players),
		agents:    maps.Clone(d.agents),
		history:   slices.Clone(d.history),
		ledger:    slices.Clone(d.ledger),
		completed: d.completed,
		tasks:     maps.Clone(d.tasks),
		taskOrder: slices.Clone(d.taskOrder),
	}
}

// MemoryRepository is a Repository held in memory. Transactions run one at
// a time against a copy that replaces the data only on success.
type MemoryRepository struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: &memData{
		lobbies: make(map[string]Lobby),
		players: make(map[string]Player),
		agents:  make(map[string]Agent),
		tasks:   make(map[string]queuedTask),
	}}
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.data.clone()
	if err := fn(ctx, &memTx{d: work}); err != nil {
		return err
	}
	r.data = work
	return nil
}

func (r *MemoryRepository) History(_ context.Context, lobbyID string) ([]MatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MatchHistory
	for _, h := range r.data.history {
		if lobbyID == "" || h.LobbyID == lobbyID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Ledger(_ context.Context, userID string) ([]LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LedgerEntry
	for _, e := range r.data.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CompletedGames(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.completed, nil
}

// Tasks returns every queued task, in enqueue order.
func (r *MemoryRepository) Tasks() []outbox.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbox.Task, 0, len(r.data.taskOrder))
	for _, id := range r.data.taskOrder {
		out = append(out, r.data.tasks[id].task)
	}
	return out
}

func (r *MemoryRepository) Claim(_ context.Context, now time.Time, limit int) ([]outbox.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.Task
	for _, id := range r.data.taskOrder {
		if len(out) >= limit {
			break
		}
		qt := r.data.tasks[id]
		if qt.done || qt.failed || qt.task.NextAttemptAt.After(now) || qt.claimedUntil.After(now) {
			continue
		}
		qt.claimedUntil = now.Add(claimTTL)
		r.data.tasks[id] = qt
		out = append(out, qt.task)
	}
	return out, nil
}

func (r *MemoryRepository) Complete(_ context.Context, taskID string) error {
	return r.updateTask(taskID, func(qt *queuedTask) {
		qt.done = true
	})
}

func (r *MemoryRepository) Retry(_ context.Context, taskID string, next time.Time, cause string) error {
	return r.updateTask(taskID, func(qt *queuedTask) {
		qt.task.Attempts++
		qt.task.NextAttemptAt = next
		qt.task.LastError = cause
		qt.claimedUntil = time.Time{}
	})
}

func (r *MemoryRepository) Fail(_ context.Context, taskID string, cause string) error {
	return r.updateTask(taskID, func(qt *queuedTask) {
		qt.task.Attempts++
		qt.task.LastError = cause
		qt.failed = true
	})
}

func (r *MemoryRepository) updateTask(taskID string, fn func(*queuedTask)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	qt, ok := r.data.tasks[taskID]
	if !ok {
		return nil
	}
	fn(&qt)
	r.data.tasks[taskID] = qt
	return nil
}

type memTx struct {
	d *memData
}

func (t *memTx) Lobby(_ context.Context, id string) (*Lobby, error) {
	l, ok := t.d.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return &l, nil
}

func (t *memTx) CreateLobby(_ context.Context, l *Lobby) error {
	if _, ok := t.d.lobbies[l.ID]; ok {
		return ErrLobbyExists
	}
	t.d.lobbies[l.ID] = *l
	return nil
}

func (t *memTx) SaveLobby(_ context.Context, l *Lobby) error {
	if _, ok := t.d.lobbies[l.ID]; !ok {
		return ErrLobbyNotFound
	}
	t.d.lobbies[l.ID] = *l
	return nil
}

func (t *memTx) Player(_ context.Context, id string) (*Player, error) {
	p, ok := t.d.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

func (t *memTx) SavePlayer(_ context.Context, p *Player) error {
	t.d.players[p.ID] = *p
	return nil
}

func (t *memTx) AgentByUser(_ context.Context, userID string) (*Agent, error) {
	a, ok := t.d.agents[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *memTx) SaveAgent(_ context.Context, a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	t.d.agents[a.UserID] = *a
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, h MatchHistory) error {
	t.d.history = append(t.d.history, h)
	return nil
}

func (t *memTx) IncrementCompletedGames(context.Context) (int64, error) {
	t.d.completed++
	return t.d.completed, nil
}

func (t *memTx) AppendLedger(_ context.Context, entry LedgerEntry) (int64, error) {
	p, ok := t.d.players[entry.UserID]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	p.Gold += entry.Delta
	t.d.players[p.ID] = p
	entry.Balance = p.Gold
	t.d.ledger = append(t.d.ledger, entry)
	return p.Gold, nil
}

func (t *memTx) Enqueue(_ context.Context, tasks ...outbox.Task) error {
	for _, task := range tasks {
		if _, ok := t.d.tasks[task.ID]; ok {
			continue
		}
		t.d.tasks[task.ID] = queuedTask{task: task}
		t.d.taskOrder = append(t.d.taskOrder, task.ID)
	}
	return nil
}
