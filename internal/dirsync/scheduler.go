package dirsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Runner executes one sync for a carrier and handles its failure.
type Runner interface {
	Handle(ctx context.Context, carrierID string)
}

// JobKind tells why a job was scheduled.
type JobKind string

// Job kinds.
const (
	JobInitial   JobKind = "initial"
	JobManual    JobKind = "manual"
	JobRecurring JobKind = "recurring"
)

// Job is a scheduled sync.
type Job struct {
	ID       string        `json:"id"`
	Carrier  string        `json:"carrier"`
	Kind     JobKind       `json:"kind"`
	RunAt    time.Time     `json:"runAt"`
	Interval time.Duration `json:"interval,omitempty"`
}

// SchedulerConfig holds scheduling delays.
type SchedulerConfig struct {
	InitialDelay time.Duration
	ManualDelay  time.Duration
	Interval     time.Duration
}

// Scheduler is an in-process timer queue of sync jobs.
type Scheduler struct {
	runner Runner
	cfg    SchedulerConfig
	logger *otelzap.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	wake chan struct{}
	now  func() time.Time
}

// NewScheduler creates a scheduler. Zero delays run jobs immediately;
// a zero interval defaults to one day.
func NewScheduler(cfg SchedulerConfig, runner Runner, logger *otelzap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		jobs:   make(map[string]*Job),
		wake:   make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Enqueue schedules a manual sync shortly. A manual sync already waiting for
// the carrier is returned instead of adding another.
func (s *Scheduler) Enqueue(carrierID string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Kind == JobManual && j.Carrier == carrierID {
			return *j
		}
	}
	return s.addLocked(carrierID, JobManual, s.cfg.ManualDelay, 0)
}

// ScheduleInitial schedules the first sync of a carrier, unless any job is
// already pending for it. It reports whether a job was added.
func (s *Scheduler) ScheduleInitial(carrierID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Carrier == carrierID {
			return false
		}
	}
	s.addLocked(carrierID, JobInitial, s.cfg.InitialDelay, 0)
	return true
}

// ScheduleRecurring replaces every recurring job with one daily job per
// carrier, first due one interval from now.
func (s *Scheduler) ScheduleRecurring(carrierIDs ...string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, j := range s.jobs {
		if j.Kind == JobRecurring {
			delete(s.jobs, id)
		}
	}
	jobs := make([]Job, 0, len(carrierIDs))
	for _, c := range lo.Uniq(carrierIDs) {
		jobs = append(jobs, s.addLocked(c, JobRecurring, s.cfg.Interval, s.cfg.Interval))
	}
	return jobs
}

// Unschedule removes every pending job.
func (s *Scheduler) Unschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*Job)
	s.signal()
}

// ApplyAutoRefresh installs recurring syncs for the carriers when enabled
// and clears all pending syncs when disabled.
func (s *Scheduler) ApplyAutoRefresh(enabled bool, carrierIDs ...string) {
	if enabled {
		s.ScheduleRecurring(carrierIDs...)
		s.logger.Info("Automatic directory refresh enabled",
			zap.Strings("carriers", carrierIDs),
			zap.Duration("interval", s.cfg.Interval),
		)
		return
	}
	s.Unschedule()
	s.logger.Info("Automatic directory refresh disabled")
}

// Pending returns the scheduled jobs ordered by due time.
func (s *Scheduler) Pending() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].RunAt.Equal(jobs[b].RunAt) {
			return jobs[a].Carrier < jobs[b].Carrier
		}
		return jobs[a].RunAt.Before(jobs[b].RunAt)
	})
	return jobs
}

// Run dispatches due jobs until ctx is cancelled, then waits for the syncs
// it started.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Directory sync scheduler started")

	var wg sync.WaitGroup
	defer wg.Wait()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		for _, job := range s.takeDue() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.logger.Info("Running scheduled directory sync",
					zap.String("job_id", job.ID),
					zap.String("carrier", job.Carrier),
					zap.String("kind", string(job.Kind)),
				)
				s.runner.Handle(ctx, job.Carrier)
			}()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.untilNext())

		select {
		case <-ctx.Done():
			s.logger.Info("Directory sync scheduler stopped")
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// takeDue removes due one-off jobs and advances due recurring jobs.
func (s *Scheduler) takeDue() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []Job
	for id, j := range s.jobs {
		if j.RunAt.After(now) {
			continue
		}
		due = append(due, *j)
		if j.Kind == JobRecurring {
			for !j.RunAt.After(now) {
				j.RunAt = j.RunAt.Add(j.Interval)
			}
			continue
		}
		delete(s.jobs, id)
	}
	return due
}

func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := time.Hour
	now := s.now()
	for _, j := range s.jobs {
		if d := j.RunAt.Sub(now); d < next {
			next = d
		}
	}
	return max(next, 0)
}

func (s *Scheduler) addLocked(carrierID string, kind JobKind, delay, interval time.Duration) Job {
	j := &Job{
		ID:       uuid.NewString(),
		Carrier:  carrierID,
		Kind:     kind,
		RunAt:    s.now().Add(delay),
		Interval: interval,
	}
	s.jobs[j.ID] = j
	s.signal()
	return *j
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
