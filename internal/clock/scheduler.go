// Package clock schedules recurring work for the fetch-to-digest pipeline.
//
// Two registration forms are supported:
//   - RunEvery: fire a function on a fixed interval (e.g. every 15 minutes),
//     starting one full interval after registration rather than immediately.
//   - RunAt: fire a function at one or more wall-clock times of day, in the
//     scheduler's configured timezone, at minute resolution.
//
// Every job is single-flight by ID: if a previous firing of a job hasn't
// finished when the next one comes due, the next firing is skipped rather
// than queued or coalesced. Job errors are logged and never stop the
// scheduler.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"briefloom/internal/callgroup"
	"briefloom/internal/logging"
)

// Unit is the granularity of an Interval.
type Unit string

const (
	UnitSecond Unit = "s"
	UnitMinute Unit = "m"
	UnitHour   Unit = "h"
	UnitDay    Unit = "d"
)

// Interval is a recurring period expressed as a count of a unit, e.g.
// {Value: 15, Unit: UnitMinute} for "every 15 minutes".
type Interval struct {
	Value int
	Unit  Unit
}

// Duration converts the interval to a time.Duration.
func (iv Interval) Duration() (time.Duration, error) {
	if iv.Value <= 0 {
		return 0, fmt.Errorf("interval value must be positive, got %d", iv.Value)
	}
	switch iv.Unit {
	case UnitSecond:
		return time.Duration(iv.Value) * time.Second, nil
	case UnitMinute:
		return time.Duration(iv.Value) * time.Minute, nil
	case UnitHour:
		return time.Duration(iv.Value) * time.Hour, nil
	case UnitDay:
		return time.Duration(iv.Value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval unit %q", iv.Unit)
	}
}

// JobFunc is the work performed by a scheduled job. The context passed in
// is detached from the scheduler's own lifecycle: once a firing starts, it
// runs to completion even if the scheduler is stopped.
type JobFunc func(ctx context.Context) error

// JobInfo describes a registered job for status reporting.
type JobInfo struct {
	ID      string
	Kind    string // "interval" or "cron"
	Spec    string // human-readable schedule, e.g. "15m" or "07:00,19:00"
	LastRun time.Time
	NextRun time.Time
	Running bool
}

// Scheduler wires gocron for timing with a callgroup for single-flight
// dedup of job firings.
type Scheduler struct {
	mu      sync.Mutex
	sched   gocron.Scheduler
	group   callgroup.Group[string]
	logger  *slog.Logger
	entries map[string][]gocron.Job // jobID -> underlying gocron jobs (RunAt may register several)
	kinds   map[string]string
	specs   map[string]string
}

// New creates a scheduler whose cron-style (RunAt) jobs are interpreted in loc.
func New(logger *slog.Logger, loc *time.Location) (*Scheduler, error) {
	logger = logging.Default(logger).With("component", "clock")
	if loc == nil {
		loc = time.UTC
	}
	gs, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{
		sched:   gs,
		logger:  logger,
		entries: make(map[string][]gocron.Job),
		kinds:   make(map[string]string),
		specs:   make(map[string]string),
	}
	gs.Start()
	return s, nil
}

// RunEvery registers a job that fires every iv, starting one full interval
// from now (not immediately). jobID must be unique.
func (s *Scheduler) RunEvery(jobID string, iv Interval, fn JobFunc) error {
	d, err := iv.Duration()
	if err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[jobID]; exists {
		return fmt.Errorf("job already registered: %s", jobID)
	}

	j, err := s.sched.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(s.wrap(jobID, fn)),
		gocron.WithName(jobID),
	)
	if err != nil {
		return fmt.Errorf("register interval job %s: %w", jobID, err)
	}

	s.entries[jobID] = []gocron.Job{j}
	s.kinds[jobID] = "interval"
	s.specs[jobID] = d.String()
	s.logger.Info("registered interval job", "job", jobID, "every", d)
	return nil
}

// RunAt registers a job that fires at each wall-clock time in times
// (format "HH:MM", minute resolution), in the scheduler's configured
// timezone. jobID must be unique.
func (s *Scheduler) RunAt(jobID string, times []string) *atJobBuilder {
	return &atJobBuilder{s: s, jobID: jobID, times: times}
}

// atJobBuilder defers registration so callers can write
// scheduler.RunAt(id, times).Do(fn) symmetrically with RunEvery.
type atJobBuilder struct {
	s     *Scheduler
	jobID string
	times []string
}

// Do finalizes registration of the wall-clock job with fn as its body.
func (b *atJobBuilder) Do(fn JobFunc) error {
	s, jobID, times := b.s, b.jobID, b.times
	if len(times) == 0 {
		return fmt.Errorf("job %s: no times given", jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[jobID]; exists {
		return fmt.Errorf("job already registered: %s", jobID)
	}

	wrapped := s.wrap(jobID, fn)
	jobs := make([]gocron.Job, 0, len(times))
	for _, t := range times {
		hh, mm, err := parseClockTime(t)
		if err != nil {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		cronExpr := fmt.Sprintf("%d %d * * *", mm, hh)
		j, err := s.sched.NewJob(
			gocron.CronJob(cronExpr, false),
			gocron.NewTask(wrapped),
			gocron.WithName(fmt.Sprintf("%s@%s", jobID, t)),
		)
		if err != nil {
			return fmt.Errorf("register cron job %s@%s: %w", jobID, t, err)
		}
		jobs = append(jobs, j)
	}

	s.entries[jobID] = jobs
	s.kinds[jobID] = "cron"
	s.specs[jobID] = strings.Join(times, ",")
	s.logger.Info("registered wall-clock job", "job", jobID, "times", s.specs[jobID])
	return nil
}

// wrap applies single-flight dedup and error logging to a job body.
func (s *Scheduler) wrap(jobID string, fn JobFunc) func() {
	return func() {
		started := s.group.TryRun(jobID, func() {
			ctx := context.Background()
			if err := fn(ctx); err != nil {
				s.logger.Error("job failed", "job", jobID, "error", err)
			}
		})
		if !started {
			s.logger.Warn("job skipped, previous firing still running", "job", jobID)
		}
	}
}

// Running reports whether jobID currently has a firing in flight.
func (s *Scheduler) Running(jobID string) bool {
	return s.group.Running(jobID)
}

// Jobs returns status info for every registered job, sorted by ID.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for id, jobs := range s.entries {
		info := JobInfo{
			ID:      id,
			Kind:    s.kinds[id],
			Spec:    s.specs[id],
			Running: s.group.Running(id),
		}
		for _, j := range jobs {
			if lr, err := j.LastRun(); err == nil && lr.After(info.LastRun) {
				info.LastRun = lr
			}
			if nr, err := j.NextRun(); err == nil {
				if info.NextRun.IsZero() || nr.Before(info.NextRun) {
					info.NextRun = nr
				}
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stop halts future firings. Any in-flight firing runs to completion,
// since it was spawned detached from the gocron scheduler's own lifecycle.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// ParseInterval parses a short duration string like "15m", "1h", or "2d"
// into an Interval. Accepts exactly one integer followed by one of
// s/m/h/d, matching the units Interval itself supports.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Interval{}, fmt.Errorf("empty interval")
	}
	unit := Unit(s[len(s)-1:])
	switch unit {
	case UnitSecond, UnitMinute, UnitHour, UnitDay:
	default:
		return Interval{}, fmt.Errorf("invalid interval %q: unit must be one of s, m, h, d", s)
	}
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return Interval{}, fmt.Errorf("invalid interval %q: must be a positive integer followed by s/m/h/d", s)
	}
	return Interval{Value: value, Unit: unit}, nil
}

func parseClockTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
