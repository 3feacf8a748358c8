package domain

import (
	"strconv"
	"strings"
	"time"
)

// Job is a scheduled post tracked by the dashboard.
type Job struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Platform  Platform  `json:"platform"`
	Status    JobStatus `json:"status"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// JobStatuses lists statuses in display order.
var JobStatuses = []JobStatus{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// IsValid checks if the status is known.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func (s JobStatus) String() string { return string(s) }

// Platform is the social network a job publishes to.
type Platform string

const (
	PlatformThreads   Platform = "threads"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

func (p Platform) String() string { return string(p) }

// Matches reports whether the job satisfies every filter in f.
func (j Job) Matches(f FilterState) bool {
	for key, value := range f.values {
		switch key {
		case KeyAccountID:
			if j.AccountID != value {
				return false
			}
		case KeyPlatform:
			if string(j.Platform) != value {
				return false
			}
		case KeyStatus:
			if string(j.Status) != value {
				return false
			}
		case KeyQuery:
			needle := strings.ToLower(value)
			if !strings.Contains(strings.ToLower(j.Title), needle) &&
				!strings.Contains(strings.ToLower(j.Content), needle) {
				return false
			}
		case KeyMinRetries:
			n, _ := strconv.Atoi(value)
			if j.Retries < n {
				return false
			}
		}
	}
	from, to := f.Range()
	if !from.IsZero() && j.CreatedAt.Before(from) {
		return false
	}
	if !to.IsZero() && j.CreatedAt.After(to) {
		return false
	}
	return true
}
