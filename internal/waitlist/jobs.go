package waitlist

import (
	"context"
	"sync"
	"time"

	"academy/pkg/logger"
)

// Sweeper is the part of Manager the scheduler drives
type Sweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	Now() time.Time
}

// Job is an extra periodic task run next to the expiry sweep
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// JobProcessor runs the expiry sweep on a ticker. The manager itself owns no timer;
// this is one of several possible schedulers (cmd/sweep and POST /waitlist/sweep are the others).
type JobProcessor struct {
	sweeper Sweeper
	config  *JobConfig
	jobs    []Job
	logger  *logger.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	SweepInterval time.Duration
	RunOnStart    bool
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		SweepInterval: 5 * time.Minute,
		RunOnStart:    true,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(sweeper Sweeper, config *JobConfig, log *logger.Logger, jobs ...Job) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &JobProcessor{
		sweeper: sweeper,
		config:  config,
		jobs:    jobs,
		logger:  log.WithComponent("jobs"),
		done:    make(chan struct{}),
	}
}

// Start launches the sweep and every extra job
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.logger.Info("Starting waitlist background jobs",
		"sweep_interval", jp.config.SweepInterval.String(), "extra_jobs", len(jp.jobs))

	jp.spawn(ctx, Job{Name: "expiry_sweep", Interval: jp.config.SweepInterval, Run: jp.sweep})
	for _, job := range jp.jobs {
		jp.spawn(ctx, job)
	}
}

// Stop signals every job and waits for in-flight runs to finish
func (jp *JobProcessor) Stop() {
	jp.stop.Do(func() {
		close(jp.done)
	})
	jp.wg.Wait()
	jp.logger.Info("Waitlist background jobs stopped")
}

func (jp *JobProcessor) spawn(ctx context.Context, job Job) {
	jp.wg.Add(1)
	go func() {
		defer jp.wg.Done()
		jp.loop(ctx, job)
	}()
}

func (jp *JobProcessor) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if jp.config.RunOnStart {
		jp.runOnce(ctx, job)
	}

	for {
		select {
		case <-ticker.C:
			jp.runOnce(ctx, job)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) runOnce(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		jp.logger.ErrorWithContext(ctx, "Background job failed", err, map[string]interface{}{"job": job.Name})
	}
}

func (jp *JobProcessor) sweep(ctx context.Context) error {
	_, err := jp.sweeper.ExpireStale(ctx, jp.sweeper.Now())
	return err
}

// GetJobStatus returns the status of background jobs
func (jp *JobProcessor) GetJobStatus() map[string]interface{} {
	names := make([]string, 0, len(jp.jobs)+1)
	names = append(names, "expiry_sweep")
	for _, j := range jp.jobs {
		names = append(names, j.Name)
	}
	return map[string]interface{}{
		"sweep_interval": jp.config.SweepInterval.String(),
		"jobs":           names,
	}
}
