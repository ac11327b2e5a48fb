package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/notification"
	"github.com/ytdl/ytdl-api/internal/scheduler"
)

const (
	MailboxPruneTaskID      = "mailbox-prune"
	DefaultMailboxPruneCron = "*/10 * * * *"
	DefaultMailboxIdleTTL   = time.Hour
)

// RegisterMailboxPruneTask registers the task evicting idle, empty client
// mailboxes from the notification queue.
func RegisterMailboxPruneTask(sched *scheduler.Scheduler, queue *notification.Queue, cron string, idle time.Duration, logger zerolog.Logger) error {
	if cron == "" {
		cron = DefaultMailboxPruneCron
	}
	if idle <= 0 {
		idle = DefaultMailboxIdleTTL
	}
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          MailboxPruneTaskID,
		Name:        "Mailbox Prune",
		Description: "Evicts notification mailboxes idle for longer than " + idle.String(),
		Cron:        cron,
		Func: func(context.Context) error {
			if n := queue.Prune(idle); n > 0 {
				logger.Debug().Int("evicted", n).Msg("Pruned idle mailboxes")
			}
			return nil
		},
	})
}
