package stores

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionJob periodically prunes sessions that have not been touched for
// longer than maxAge.
type RetentionJob struct {
	scheduler *cron.Cron
	store     TranscriptStore
	maxAge    time.Duration
}

// StartRetentionJob schedules pruning with a cron expression, e.g.
// "0 3 * * *" for 3am daily. The job runs until Stop is called.
func StartRetentionJob(store TranscriptStore, schedule string, maxAge time.Duration) (*RetentionJob, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention maxAge must be positive")
	}

	job := &RetentionJob{
		scheduler: cron.New(),
		store:     store,
		maxAge:    maxAge,
	}

	_, err := job.scheduler.AddFunc(schedule, job.run)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	job.scheduler.Start()
	return job, nil
}

// Stop halts scheduling. A run already in progress finishes.
func (j *RetentionJob) Stop() {
	j.scheduler.Stop()
}

func (j *RetentionJob) run() {
	cutoff := time.Now().Add(-j.maxAge)
	n, err := j.store.PruneSessionsBefore(cutoff)
	if err != nil {
		log.Printf("Retention prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Retention pruned %d stale sessions", n)
	}
}
