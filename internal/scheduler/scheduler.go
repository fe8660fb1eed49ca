// Package scheduler runs periodic maintenance sweeps.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yogaflow/attendance/internal/models"
)

// Task is a job run once at start and then every Interval
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns the goroutines of its tasks
type Scheduler struct {
	tasks []Task
	log   *slog.Logger
	wg    sync.WaitGroup
}

func New(log *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, log: log}
}

// Start launches every task. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		if task.Interval <= 0 {
			s.log.Warn("task disabled", slog.String("task", task.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()
	log := s.log.With(slog.String("task", task.Name))

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx, log, task)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, log *slog.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		log.Error("task failed", slog.Any("error", err))
		return
	}
	log.Debug("task finished", slog.Duration("took", time.Since(start)))
}

// Wait blocks until every task goroutine has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Evaluator re-evaluates every user below the maximum level
type Evaluator interface {
	Sweep(ctx context.Context) (int, error)
}

// TokenPurger deletes refresh tokens past their expiry
type TokenPurger interface {
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// NotificationPruner deletes notifications of a kind older than a time
type NotificationPruner interface {
	DeleteNotificationsBefore(ctx context.Context, kind string, before time.Time) (int64, error)
}

func ProgressionTask(e Evaluator, interval time.Duration, log *slog.Logger) Task {
	return Task{
		Name:     "progression",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := e.Sweep(ctx)
			if n > 0 {
				log.Info("progression sweep advanced users", slog.Int("advanced", n))
			}
			if err != nil {
				return fmt.Errorf("progression sweep: %w", err)
			}
			return nil
		},
	}
}

// TokenPurgeTask removes expired refresh tokens. Sessions are kept.
func TokenPurgeTask(p TokenPurger, interval time.Duration, log *slog.Logger) Task {
	return Task{
		Name:     "token-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := p.DeleteExpiredRefreshTokens(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("purge refresh tokens: %w", err)
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", slog.Int64("deleted", n))
			}
			return nil
		},
	}
}

// ReminderCleanupTask drops attendance reminders older than a day
func ReminderCleanupTask(p NotificationPruner, interval time.Duration, log *slog.Logger) Task {
	return Task{
		Name:     "reminder-cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := p.DeleteNotificationsBefore(ctx, models.KindReminder, time.Now().Add(-24*time.Hour))
			if err != nil {
				return fmt.Errorf("prune reminders: %w", err)
			}
			if n > 0 {
				log.Info("pruned old reminders", slog.Int64("deleted", n))
			}
			return nil
		},
	}
}
