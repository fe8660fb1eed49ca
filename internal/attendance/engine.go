package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/metrics"
	"github.com/yogaflow/attendance/internal/models"
)

// Engine advances users whose attended days at their current level reach
// the threshold. Evaluation only reads stored state, so it can be re-run
// from any trigger and reaches the same result.
type Engine struct {
	store     Store
	notifier  Notifier
	metrics   *metrics.Metrics
	log       *slog.Logger
	threshold int
	maxLevel  int
}

func NewEngine(store Store, notifier Notifier, m *metrics.Metrics, threshold, maxLevel int, log *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxLevel < models.MinLevel || maxLevel > models.MaxLevel {
		maxLevel = models.MaxLevel
	}
	return &Engine{
		store:     store,
		notifier:  notifier,
		metrics:   m,
		log:       log,
		threshold: threshold,
		maxLevel:  maxLevel,
	}
}

// Evaluate returns the user's level after moving them up at most one level.
func (e *Engine) Evaluate(ctx context.Context, username string) (int, error) {
	const op = "attendance.Engine.Evaluate"
	log := e.log.With(slog.String("op", op), slog.String("username", username))

	user, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	level := user.Level
	if user.AtMaxLevel(e.maxLevel) {
		return level, nil
	}

	count, err := e.store.CountAttended(ctx, username, level)
	if err != nil {
		return level, fmt.Errorf("%s: count: %w", op, err)
	}
	if count < e.threshold {
		return level, nil
	}

	next := level + 1
	advanced, err := e.store.AdvanceLevel(ctx, username, level, next)
	if err != nil {
		return level, fmt.Errorf("%s: advance: %w", op, err)
	}
	if !advanced {
		// someone else moved the level since we read it
		current, err := e.store.GetUserByUsername(ctx, username)
		if err != nil {
			return level, fmt.Errorf("%s: %w", op, err)
		}
		return current.Level, nil
	}

	if err := e.store.ResetLevelCursor(ctx, username, next); err != nil {
		log.Error("level advanced but cursor not reset", slog.Int("level", next), slog.Any("error", err))
	}

	e.metrics.LevelUpgraded(next)
	e.notifier.Notify(ctx, username, "Level Up!",
		fmt.Sprintf("Congratulations! You have reached level %d.", next), models.KindLevelUp)

	log.Info("user advanced", slog.Int("from", level), slog.Int("to", next), slog.Int("attended", count))
	return next, nil
}

// Sweep evaluates every non-admin user below the maximum level and returns
// how many advanced. One failing user does not stop the sweep.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	const op = "attendance.Engine.Sweep"

	users, err := e.store.ListUsersBelowLevel(ctx, e.maxLevel)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	advanced := 0
	var errs []error
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}
		level, err := e.Evaluate(ctx, u.Username)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if level > u.Level {
			advanced++
		}
	}
	return advanced, errors.Join(errs...)
}
