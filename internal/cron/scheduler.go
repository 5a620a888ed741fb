// Package cron fires configured submissions on a schedule through the async
// pipeline, so each tick leaves an ordinary outcome row.
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/pipeline"
)

const submitTimeout = 30 * time.Second

// ErrJobNotFound is returned by RunNow for an unknown schedule name.
var ErrJobNotFound = errors.New("schedule not found")

// Submitter accepts a submit payload for background processing.
type Submitter interface {
	SubmitAsync(ctx context.Context, mode string, body []byte) (*pipeline.Accepted, error)
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	jobs      map[string]*Job
	mu        sync.RWMutex
}

func NewScheduler(submitter Submitter) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		submitter: submitter,
		jobs:      make(map[string]*Job),
	}
}

// normalizeCron prepends "0 " to standard 5-field cron expressions
// so they work with the 6-field (with seconds) parser.
func normalizeCron(schedule string) string {
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

// Load registers every configured schedule. Names must be unique.
func (s *Scheduler) Load(schedules []config.ScheduleConfig) error {
	for i, sc := range schedules {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i+1)
		}
		if err := s.Add(&Job{Name: name, Schedule: sc.Cron, Request: sc.Request}); err != nil {
			return err
		}
	}
	return nil
}

// Add validates and schedules job.
func (s *Scheduler) Add(job *Job) error {
	if len(job.Request) == 0 {
		return fmt.Errorf("schedule %s: request is empty", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("schedule %s: duplicate name", job.Name)
	}

	entryID, err := s.cron.AddFunc(normalizeCron(job.Schedule), func() {
		s.executeJob(job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: invalid cron %q: %w", job.Name, job.Schedule, err)
	}
	job.EntryID = entryID
	s.jobs[job.Name] = job
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("[CRON] Scheduler started with %d jobs", s.count())
}

// Stop halts new ticks and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	logger.Info("[CRON] Scheduler stopped")
}

// ListJobs returns the jobs ordered by name, with their next fire time
// when the scheduler is running.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		clone := job.Clone()
		if next := s.cron.Entry(job.EntryID).Next; !next.IsZero() {
			clone.NextRun = &next
		}
		jobs = append(jobs, clone)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// RunNow fires the named job immediately and returns its updated state.
func (s *Scheduler) RunNow(name string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.executeJob(job)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return job.Clone(), nil
}

func (s *Scheduler) executeJob(job *Job) {
	now := time.Now()
	s.mu.Lock()
	job.LastRun = &now
	s.mu.Unlock()

	body, err := json.Marshal(job.Request)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		var ack *pipeline.Accepted
		ack, err = s.submitter.SubmitAsync(ctx, "schedule", body)
		if err == nil {
			s.mu.Lock()
			job.LastRequestID = ack.RequestID
			s.mu.Unlock()
			if ack.Error != nil {
				err = fmt.Errorf("request rejected: %s", *ack.Error)
			}
		}
	}

	s.mu.Lock()
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	requestID := job.LastRequestID
	s.mu.Unlock()

	if err != nil {
		logger.Error("[CRON] Job failed: %s - error: %v", job.Name, err)
		return
	}
	logger.Info("[CRON] Job submitted: %s request_id=%s", job.Name, requestID)
}

func (s *Scheduler) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
