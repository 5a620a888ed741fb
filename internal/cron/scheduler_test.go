package cron

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/pipeline"
)

type testSubmitter struct {
	mu     sync.Mutex
	bodies []map[string]any
	modes  []string
	err    error
	reject bool
}

func (s *testSubmitter) SubmitAsync(_ context.Context, mode string, body []byte) (*pipeline.Accepted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	s.bodies = append(s.bodies, payload)
	s.modes = append(s.modes, mode)
	ack := &pipeline.Accepted{Status: "accepted", RequestID: "req-1"}
	if s.reject {
		code := "validation_error"
		ack.Error = &code
	}
	return ack, nil
}

func TestNormalizeCron(t *testing.T) {
	cases := map[string]string{
		"0 8 * * *":     "0 0 8 * * *",
		"30 0 8 * * *":  "30 0 8 * * *",
		"@every 1h":     "@every 1h",
	}
	for in, want := range cases {
		if got := normalizeCron(in); got != want {
			t.Fatalf("normalizeCron(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadRegistersSchedules(t *testing.T) {
	s := NewScheduler(&testSubmitter{})
	err := s.Load([]config.ScheduleConfig{
		{Name: "morning", Cron: "0 8 * * *", Request: map[string]any{"prompt_id": "daily", "chat_id": 1, "bot_api_key": "1:x"}},
		{Cron: "*/10 * * * * *", Request: map[string]any{"prompt": "ping", "chat_id": 2, "bot_api_key": "1:x"}},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	jobs := s.ListJobs()
	if len(jobs) != 2 || jobs[0].Name != "morning" || jobs[1].Name != "schedule-2" {
		t.Fatalf("unexpected jobs: %#v", jobs)
	}
}

func TestLoadRejectsBadSchedules(t *testing.T) {
	req := map[string]any{"prompt": "x"}
	cases := map[string][]config.ScheduleConfig{
		"bad cron":  {{Name: "a", Cron: "not a cron", Request: req}},
		"empty":     {{Name: "a", Cron: "0 8 * * *"}},
		"duplicate": {{Name: "a", Cron: "0 8 * * *", Request: req}, {Name: "a", Cron: "0 9 * * *", Request: req}},
	}
	for name, schedules := range cases {
		t.Run(name, func(t *testing.T) {
			if err := NewScheduler(&testSubmitter{}).Load(schedules); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRunNowSubmitsRequest(t *testing.T) {
	sub := &testSubmitter{}
	s := NewScheduler(sub)
	if err := s.Add(&Job{Name: "morning", Schedule: "0 8 * * *", Request: map[string]any{"prompt_id": "daily", "chat_id": 42}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	ran, err := s.RunNow("morning")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ran.LastRequestID != "req-1" {
		t.Fatalf("RunNow returned stale state: %#v", ran)
	}

	if len(sub.bodies) != 1 || sub.bodies[0]["prompt_id"] != "daily" || sub.modes[0] != "schedule" {
		t.Fatalf("unexpected submissions: %#v %#v", sub.bodies, sub.modes)
	}
	job := s.ListJobs()[0]
	if job.LastRun == nil || job.LastRequestID != "req-1" || job.LastError != "" {
		t.Fatalf("unexpected job state: %#v", job)
	}
	if job.NextRun != nil {
		t.Fatalf("next fire time reported before start: %v", job.NextRun)
	}
}

func TestListJobsReportsNextRunOnceStarted(t *testing.T) {
	s := NewScheduler(&testSubmitter{})
	if err := s.Add(&Job{Name: "morning", Schedule: "0 8 * * *", Request: map[string]any{"prompt": "x"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())

	var next *time.Time
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		if next = s.ListJobs()[0].NextRun; next != nil {
			break
		}
	}
	if next == nil {
		t.Fatalf("expected next fire time after start")
	}
	if next.Hour() != 8 || next.Minute() != 0 || !next.After(time.Now()) {
		t.Fatalf("unexpected next fire time %v", next)
	}
}

func TestRunNowRecordsFailures(t *testing.T) {
	sub := &testSubmitter{err: errors.New("service is shutting down")}
	s := NewScheduler(sub)
	_ = s.Add(&Job{Name: "a", Schedule: "0 8 * * *", Request: map[string]any{"prompt": "x"}})

	_, _ = s.RunNow("a")
	if got := s.ListJobs()[0].LastError; got != "service is shutting down" {
		t.Fatalf("unexpected last error %q", got)
	}

	sub.err = nil
	sub.reject = true
	_, _ = s.RunNow("a")
	if got := s.ListJobs()[0].LastError; got != "request rejected: validation_error" {
		t.Fatalf("unexpected last error %q", got)
	}
	if _, err := s.RunNow("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
