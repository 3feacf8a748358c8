package storage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

var sampleTitles = []string{
	"Morning update",
	"Product launch teaser",
	"Weekly recap",
	"Behind the scenes",
	"Customer story",
	"Flash sale reminder",
}

var samplePlatforms = []domain.Platform{domain.PlatformThreads, domain.PlatformFacebook, domain.PlatformInstagram}

// SampleJobs builds n jobs spread over accounts and the hour before now.
// The same seed always yields the same jobs.
func SampleJobs(n int, accounts []string, now time.Time, seed uint64) []domain.Job {
	if len(accounts) == 0 {
		accounts = []string{"acct-1"}
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // sample data
	jobs := make([]domain.Job, 0, n)
	for i := range n {
		title := sampleTitles[rng.IntN(len(sampleTitles))]
		jobs = append(jobs, domain.Job{
			ID:        fmt.Sprintf("seed-%04d", i+1),
			AccountID: accounts[rng.IntN(len(accounts))],
			Platform:  samplePlatforms[rng.IntN(len(samplePlatforms))],
			Status:    domain.JobStatuses[rng.IntN(len(domain.JobStatuses))],
			Title:     title,
			Content:   fmt.Sprintf("%s #%d", title, i+1),
			Retries:   rng.IntN(4),
			CreatedAt: now.Add(-time.Duration(rng.IntN(3600)) * time.Second).UTC(),
		})
	}
	return jobs
}

// Seed inserts jobs and returns how many were stored.
func (s *Store) Seed(ctx context.Context, jobs []domain.Job) (int, error) {
	for i, job := range jobs {
		if _, err := s.Create(ctx, job); err != nil {
			return i, fmt.Errorf("storage: seed job %d: %w", i+1, err)
		}
	}
	return len(jobs), nil
}
