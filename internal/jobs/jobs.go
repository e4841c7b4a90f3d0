package jobs

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const (
	ProgressSweepJob = "progress-sweep"
	BatchLogPruneJob = "batch-log-prune"
)

// RegisterAll adds the maintenance jobs to jm.
func RegisterAll(jm *JobManager) {
	jm.Register(ProgressSweepJob, "Progress Sweep", runProgressSweep)
	jm.Register(BatchLogPruneJob, "Batch Log Prune", runBatchLogPrune)
}

func runProgressSweep(ctx JobContext) (string, error) {
	n := ctx.Tracker().Sweep()
	return fmt.Sprintf("Removed %d finished records.", n), nil
}

func runBatchLogPrune(ctx JobContext) (string, error) {
	days := ctx.Config().Batch.LogRetentionDays
	if days <= 0 {
		return "Batch log retention is disabled.", nil
	}
	n, err := ctx.Store().PruneBatchRuns(time.Now().AddDate(0, 0, -days))
	if err != nil {
		return "", fmt.Errorf("prune batch runs: %w", err)
	}
	return fmt.Sprintf("Pruned %d batch runs.", n), nil
}

// StartJobs starts the background job scheduler. The caller stops it.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	log := app.Logger()
	schedule(s, app, ProgressSweepJob, app.Config().SweepInterval())
	schedule(s, app, BatchLogPruneJob, time.Hour)

	log.Info("starting background job scheduler")
	s.StartAsync()
	return s
}

func schedule(s *gocron.Scheduler, app JobContext, jobID string, every time.Duration) {
	log := app.Logger()
	if every <= 0 {
		log.Info("job interval is 0, scheduled run is disabled", zap.String("job", jobID))
		return
	}

	log.Info("scheduling job", zap.String("job", jobID), zap.Duration("every", every))
	_, err := s.Every(every).Do(func() {
		// Go through the manager so a manual run and a scheduled run never overlap.
		if err := app.JobManager().RunJob(jobID, app); err != nil {
			log.Debug("scheduled job could not start", zap.String("job", jobID), zap.Error(err))
		}
	})
	if err != nil {
		log.Error("error scheduling job", zap.String("job", jobID), zap.Error(err))
	}
}
