package tasks

import (
	"github.com/ytdl/ytdl-api/internal/expiration"
	"github.com/ytdl/ytdl-api/internal/scheduler"
)

const (
	ExpirationTaskID      = "expired-downloads-cleanup"
	DefaultExpirationCron = "0 * * * *"
)

// RegisterExpirationTask registers the sweep that soft deletes downloads past
// the retention window and removes their artifacts.
func RegisterExpirationTask(sched *scheduler.Scheduler, svc *expiration.Service, cron string, runOnStart bool) error {
	if cron == "" {
		cron = DefaultExpirationCron
	}
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          ExpirationTaskID,
		Name:        "Expired Downloads Cleanup",
		Description: "Deletes downloads older than " + svc.Retention().String() + " and their files",
		Cron:        cron,
		RunOnStart:  runOnStart,
		Func:        svc.Run,
	})
}
