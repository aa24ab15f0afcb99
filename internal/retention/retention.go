// Package retention prunes read notifications past their retention age.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigroom/gigroom/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Pruner deletes read notifications older than MaxAge. Unread
// notifications are never removed.
type Pruner struct {
	DB     *gorm.DB
	MaxAge time.Duration
	Logger *slog.Logger     // nil means slog.Default()
	Now    func() time.Time // nil means time.Now
}

// Prune runs one pass and returns the number of rows deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.DB == nil {
		return 0, fmt.Errorf("retention: db is required")
	}
	if p.MaxAge <= 0 {
		return 0, fmt.Errorf("retention: max age must be positive")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)

	res := p.DB.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("retention: prune: %w", res.Error)
	}
	p.logger().Info("retention: pruned read notifications", "deleted", res.RowsAffected, "cutoff", cutoff)
	return res.RowsAffected, nil
}

func (p *Pruner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Schedule starts a cron scheduler that runs p on expr. Stop the returned
// scheduler to end it; Stop's context is done once a running pass returns.
func Schedule(expr string, p *Pruner) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(expr, func() {
		if _, err := p.Prune(context.Background()); err != nil {
			p.logger().Error("retention: scheduled prune failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("retention: schedule %q: %w", expr, err)
	}
	c.Start()
	return c, nil
}

// NextRun parses a 5-field cron expression and returns the duration until
// its next fire time after from. Returns 0 on parse error.
func NextRun(expr string, from time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(from).Sub(from)
	if d < 0 {
		return 0
	}
	return d
}
