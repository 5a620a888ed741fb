package cron

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a submission fired on a cron schedule.
type Job struct {
	Name          string         `json:"name"`
	Schedule      string         `json:"schedule"`           // 5- or 6-field cron expression
	Request       map[string]any `json:"-"`                  // submit payload, may hold a bot token
	NextRun       *time.Time     `json:"next_run,omitempty"` // filled by ListJobs once started
	LastRun       *time.Time     `json:"last_run,omitempty"` // last tick
	LastRequestID string         `json:"last_request_id,omitempty"`
	LastError     string         `json:"last_error,omitempty"`

	EntryID cron.EntryID `json:"-"`
}

// Clone returns a copy safe to hand out while the scheduler keeps running.
func (j *Job) Clone() *Job {
	clone := &Job{
		Name:          j.Name,
		Schedule:      j.Schedule,
		LastRequestID: j.LastRequestID,
		LastError:     j.LastError,
		EntryID:       j.EntryID,
	}
	if j.LastRun != nil {
		lastRun := *j.LastRun
		clone.LastRun = &lastRun
	}
	if j.Request != nil {
		clone.Request = make(map[string]any, len(j.Request))
		for k, v := range j.Request {
			clone.Request[k] = v
		}
	}
	return clone
}
