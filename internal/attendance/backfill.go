package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/models"
)

// Backfiller marks every task of a day complete
type Backfiller struct {
	store Store
}

func NewBackfiller(store Store) *Backfiller {
	return &Backfiller{store: store}
}

// Backfill upserts username's progress for date with all tasks done
func (b *Backfiller) Backfill(ctx context.Context, username, date string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	p := &models.DailyProgress{Username: username, Date: date}
	p.CompleteAll()
	if err := b.store.UpsertDailyProgress(ctx, p); err != nil {
		return fmt.Errorf("attendance.Backfiller.Backfill: %w", err)
	}
	return nil
}

// ValidateDate checks d is a YYYY-MM-DD calendar day
func ValidateDate(d string) error {
	if _, err := time.Parse(models.DateLayout, d); err != nil {
		return apperrors.Validation(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", d))
	}
	return nil
}
