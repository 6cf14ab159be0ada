package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/tudu/server/internal/logger"
	"github.com/tudu/server/internal/model"
	"github.com/tudu/server/internal/notify"
	"github.com/tudu/server/internal/repo"
	apperrors "github.com/tudu/server/pkg/errors"
)

const (
	// DefaultInterval is the tick period when none is configured.
	DefaultInterval = time.Minute
	// DefaultBatchSize caps how many due tasks one tick processes; overflow
	// spills into later ticks in due_at order.
	DefaultBatchSize = 100

	maxSendTimeout = 30 * time.Second
)

// Scheduler scans the task store on a fixed interval and attempts exactly one
// notification per newly-due task. Ticks never overlap: the loop is a single
// goroutine and a tick must finish (or abort) before the next fires.
type Scheduler struct {
	tasks    repo.TaskRepo
	users    repo.UserRepo
	gateway  notify.Gateway
	logger   *logger.Logger
	interval time.Duration
	batch    int
	loc      *time.Location
	now      func() time.Time
}

// New creates a scheduler. Zero interval/batch fall back to the defaults,
// nil loc to UTC.
func New(
	tasks repo.TaskRepo,
	users repo.UserRepo,
	gateway notify.Gateway,
	log *logger.Logger,
	interval time.Duration,
	batch int,
	loc *time.Location,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		tasks:    tasks,
		users:    users,
		gateway:  gateway,
		logger:   log,
		interval: interval,
		batch:    batch,
		loc:      loc,
		now:      time.Now,
	}
}

// Run executes the tick loop until ctx is cancelled. A failed tick is logged
// and retried naturally on the next interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"interval", s.interval.String(),
		"batch", s.batch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if n, err := s.Tick(ctx); err != nil {
				s.logger.Error("tick aborted", "error", err.Error())
			} else if n > 0 {
				s.logger.Info("tick processed due tasks", "count", n)
			}
		}
	}
}

// Tick runs one scan-and-notify cycle and returns the number of tasks
// processed. A failure of the due-task query aborts the whole tick with no
// task mutated; per-task outcomes are independent of each other.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)

	due, err := s.tasks.FindDue(ctx, now, s.batch)
	if err != nil {
		return 0, fmt.Errorf("query due tasks: %w", err)
	}

	processed := 0
	for _, task := range due {
		if err := s.processTask(ctx, task); err != nil {
			// Transient store failure for this task only; it stays unnotified
			// and is picked up again next tick.
			s.logger.Error("task left for next tick",
				"task_id", task.ID,
				"error", err.Error())
			continue
		}
		processed++
	}
	return processed, nil
}

// processTask attempts at most one delivery for the task and marks it
// notified regardless of the delivery outcome. A missing delivery address is
// terminal (no channel to deliver to), not retryable.
func (s *Scheduler) processTask(ctx context.Context, task model.Task) error {
	address := ""
	owner, err := s.users.GetByID(ctx, task.UserID)
	switch {
	case err == nil:
		if owner.DeviceToken != nil {
			address = *owner.DeviceToken
		}
	case apperrors.Is(err, apperrors.ErrIdentityNotFound):
		// Owner row gone: nothing to deliver to, fall through and mark.
	default:
		return fmt.Errorf("resolve owner: %w", err)
	}

	if address != "" {
		s.deliver(ctx, task, address)
	}

	// Unconditional and immediate, so a crash mid-batch cannot re-deliver
	// beyond the tasks already processed this tick.
	if err := s.tasks.MarkNotified(ctx, task.ID); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// deliver makes the single best-effort gateway call. Failures are logged and
// swallowed: the task is marked notified either way (at-most-one-attempt).
func (s *Scheduler) deliver(ctx context.Context, task model.Task, address string) {
	body := "Your task is due now!"
	if task.Description != nil && *task.Description != "" {
		body = *task.Description
	}

	// Own deadline, shorter than the tick interval, so a stalled provider
	// cannot block the polling loop.
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout())
	defer cancel()

	receipt, err := s.gateway.Send(sendCtx, address, "Task Due: "+task.Title, body, map[string]string{
		"task_id": task.ID.String(),
	})
	if err != nil {
		s.logger.Error("notification delivery failed",
			"task_id", task.ID,
			"error", err.Error())
		return
	}
	s.logger.Info("notification sent",
		"task_id", task.ID,
		"message_id", receipt.MessageID)
}

func (s *Scheduler) sendTimeout() time.Duration {
	timeout := s.interval / 2
	if timeout > maxSendTimeout {
		timeout = maxSendTimeout
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return timeout
}
