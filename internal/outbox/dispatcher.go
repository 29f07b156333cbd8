package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Queue is the durable side of the outbox. Claim hands out due tasks and
// hides them from other claimers until they are completed, retried or
// failed.
type Queue interface {
	Claim(ctx context.Context, now time.Time, limit int) ([]Task, error)
	Complete(ctx context.Context, taskID string) error
	Retry(ctx context.Context, taskID string, next time.Time, cause string) error
	Fail(ctx context.Context, taskID string, cause string) error
}

var errNoCollaborator = errors.New("no collaborator configured")

type DispatcherConfig struct {
	Workers     int
	Batch       int
	Poll        time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     4,
		Batch:       32,
		Poll:        time.Second,
		MaxAttempts: 10,
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Minute,
	}
}

// Dispatcher delivers claimed tasks to the collaborators with a bounded
// worker pool.
type Dispatcher struct {
	queue  Queue
	collab Collaborators
	cfg    DispatcherConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewDispatcher(queue Queue, collab Collaborators, cfg DispatcherConfig, logger logrus.FieldLogger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Batch <= 0 {
		cfg.Batch = def.Batch
	}
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Dispatcher{queue: queue, collab: collab, cfg: cfg, log: logger, now: time.Now}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Poll)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.WithError(err).Warn("outbox poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and processes it. It returns how many tasks were
// delivered successfully.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	tasks, err := d.queue.Claim(ctx, d.now(), d.cfg.Batch)
	if err != nil {
		return 0, fmt.Errorf("claim tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	delivered := make([]bool, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, task := range tasks {
		g.Go(func() error {
			ok, err := d.process(gctx, task)
			delivered[i] = ok
			return err
		})
	}
	err = g.Wait()

	n := 0
	for _, ok := range delivered {
		if ok {
			n++
		}
	}
	return n, err
}

// process delivers one task. Delivery failures are recorded on the task;
// only queue errors are returned.
func (d *Dispatcher) process(ctx context.Context, task Task) (bool, error) {
	logger := d.log.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"kind":     task.Kind,
		"lobby_id": task.LobbyID,
		"attempt":  task.Attempts + 1,
	})

	err := d.deliver(ctx, task)
	if err == nil {
		logger.Debug("task delivered")
		return true, d.queue.Complete(ctx, task.ID)
	}

	attempts := task.Attempts + 1
	if attempts >= d.cfg.MaxAttempts {
		logger.WithError(err).Error("task failed permanently")
		return false, d.queue.Fail(ctx, task.ID, err.Error())
	}
	next := d.now().Add(d.backoff(attempts))
	logger.WithError(err).WithField("next_attempt", next).Warn("task failed, will retry")
	return false, d.queue.Retry(ctx, task.ID, next, err.Error())
}

func (d *Dispatcher) deliver(ctx context.Context, task Task) error {
	switch task.Kind {
	case KindSettleEscrow:
		var p EscrowSettlement
		if err := task.Decode(&p); err != nil {
			return err
		}
		if d.collab.Escrow == nil {
			return errNoCollaborator
		}
		return d.collab.Escrow.ScheduleEscrowSettlement(ctx, p.LobbyID, p.WinnerID, p.LoserID)

	case KindStopAgentStream:
		var p AgentStreamStop
		if err := task.Decode(&p); err != nil {
			return err
		}
		if d.collab.Streams == nil {
			return errNoCollaborator
		}
		return d.collab.Streams.StopAgentStream(ctx, p.LobbyID, p.AgentID)

	case KindQuestEvent, KindAchievementEvent, KindStageCompletion:
		if d.collab.Progression == nil {
			return errNoCollaborator
		}
		return d.deliverProgress(ctx, task)
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}

func (d *Dispatcher) deliverProgress(ctx context.Context, task Task) error {
	switch task.Kind {
	case KindQuestEvent:
		var ev QuestEvent
		if err := task.Decode(&ev); err != nil {
			return err
		}
		return d.collab.Progression.ReportQuestEvent(ctx, ev)
	case KindAchievementEvent:
		var ev AchievementEvent
		if err := task.Decode(&ev); err != nil {
			return err
		}
		return d.collab.Progression.ReportAchievementEvent(ctx, ev)
	default:
		var sc StageCompletion
		if err := task.Decode(&sc); err != nil {
			return err
		}
		return d.collab.Progression.ReportStageCompletion(ctx, sc)
	}
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	wait := d.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		wait *= 2
		if wait >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return wait
}
