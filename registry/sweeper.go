package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sashapodgoreanu/opfs-poc/internal/metrics"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

// sweepTimeout bounds a single scheduled sweep
const sweepTimeout = 5 * time.Minute

// Sweep deletes every bucket whose expiry is at or before now and returns the
// names of the deleted ones. Failures do not stop the sweep; they are joined
// into the returned error.
func (r *Registry) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	logger := util.GetLogger("Sweep")

	expired, err := r.buckets.ExpiredBuckets(ctx, now)
	if err != nil {
		return nil, err
	}
	var (
		deleted []string
		errs    []error
	)
	for _, d := range expired {
		if err := r.DeleteRoot(ctx, d.Name); err != nil {
			logger.Warn().Err(err).Str("root", d.Name).Msg("Failed to reclaim expired bucket")
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, d.Name)
	}
	metrics.RecordBucketsReclaimed(len(deleted))
	if len(deleted) > 0 {
		logger.Info().Strs("roots", deleted).Msg("Reclaimed expired buckets")
	}
	return deleted, errors.Join(errs...)
}

// ParseSchedule parses a cron expression, descriptor (@every 1m, @hourly) or
// plain duration
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(spec); err == nil {
		return sched, nil
	}
	dur, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", spec)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", spec)
	}
	return cron.Every(dur), nil
}

// StartSweeper runs [Registry.Sweep] on the given schedule until the
// returned stop function is called. stop waits for a running sweep.
func (r *Registry) StartSweeper(spec string) (stop func(), err error) {
	logger := util.GetLogger("Sweeper")

	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		sweepCtx, done := context.WithTimeout(ctx, sweepTimeout)
		defer done()
		if _, err := r.Sweep(sweepCtx, r.now()); err != nil {
			logger.Warn().Err(err).Msg("Sweep finished with errors")
		}
	}))
	c.Start()
	logger.Debug().Str("schedule", spec).Msg("Sweeper started")

	return func() {
		cancel()
		<-c.Stop().Done()
		logger.Debug().Msg("Sweeper stopped")
	}, nil
}
