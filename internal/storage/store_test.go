package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "nested", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func filters(t *testing.T, p domain.Patch) domain.FilterState {
	t.Helper()
	f, warnings := domain.NewFilterState(p)
	require.Empty(t, warnings)
	return f
}

func seedFixtures(t *testing.T, s *Store) {
	t.Helper()
	jobs := []domain.Job{
		{ID: "a1", AccountID: "acct-1", Platform: domain.PlatformThreads, Status: domain.StatusFailed, Title: "Launch teaser", Retries: 3, CreatedAt: base},
		{ID: "a2", AccountID: "acct-1", Platform: domain.PlatformThreads, Status: domain.StatusPending, Title: "Weekly recap", CreatedAt: base.Add(time.Hour)},
		{ID: "a3", AccountID: "acct-1", Platform: domain.PlatformFacebook, Status: domain.StatusFailed, Content: "launch day 50%_off", Retries: 1, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "b1", AccountID: "acct-2", Platform: domain.PlatformInstagram, Status: domain.StatusCompleted, Title: "Other account", CreatedAt: base.Add(3 * time.Hour)},
	}
	n, err := s.Seed(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, len(jobs), n)
}

func ids(page domain.Page[domain.Job]) []string {
	out := make([]string, 0, len(page.Items))
	for _, j := range page.Items {
		out = append(out, j.ID)
	}
	return out
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	require.ErrorIs(t, err, ErrUnsupportedDriver)

	_, err = Open(DriverSQLite, "  ")
	require.Error(t, err)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, domain.Job{AccountID: "acct-1", Platform: domain.PlatformThreads, Title: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hello", got.Title)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Get(ctx, "")
	require.ErrorIs(t, err, ErrInvalidJobID)
}

func TestCreateValidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		job  domain.Job
	}{
		{name: "missing account", job: domain.Job{Platform: domain.PlatformThreads}},
		{name: "missing platform", job: domain.Job{AccountID: "acct-1"}},
		{name: "bad status", job: domain.Job{AccountID: "acct-1", Platform: domain.PlatformThreads, Status: "lost"}},
		{name: "negative retries", job: domain.Job{AccountID: "acct-1", Platform: domain.PlatformThreads, Retries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.job)
			require.ErrorIs(t, err, ErrInvalidJob)
		})
	}
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()
	window := domain.Pagination{Page: 1, PageSize: 10}

	tests := []struct {
		name  string
		patch domain.Patch
		want  []string
	}{
		{name: "no filters newest first", patch: nil, want: []string{"b1", "a3", "a2", "a1"}},
		{name: "account", patch: domain.Patch{"account_id": "acct-1"}, want: []string{"a3", "a2", "a1"}},
		{name: "status and platform", patch: domain.Patch{"status": "failed", "platform": "threads"}, want: []string{"a1"}},
		{name: "free text is case insensitive", patch: domain.Patch{"q": "LAUNCH"}, want: []string{"a3", "a1"}},
		{name: "free text escapes wildcards", patch: domain.Patch{"q": "50%_"}, want: []string{"a3"}},
		{name: "min retries", patch: domain.Patch{"min_retries": 1}, want: []string{"a3", "a1"}},
		{name: "date range inclusive", patch: domain.Patch{"from": base.Add(time.Hour), "to": base.Add(2 * time.Hour)}, want: []string{"a3", "a2"}},
		{name: "unknown keys ignored", patch: domain.Patch{"campaign": "spring", "account_id": "acct-2"}, want: []string{"b1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.List(ctx, filters(t, tt.patch), window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page))
			assert.Equal(t, len(tt.want), page.Total)
		})
	}
}

func TestListPaginates(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	page, err := s.FetchList(ctx, domain.FilterState{}, domain.Pagination{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(page))
	assert.Equal(t, 4, page.Total)

	page, err = s.List(ctx, domain.FilterState{}, domain.Pagination{Page: 5, PageSize: 3})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 4, page.Total)

	_, err = s.List(ctx, domain.FilterState{}, domain.Pagination{Page: 1})
	require.Error(t, err)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	seedFixtures(t, s)
	ctx := context.Background()

	status := domain.StatusRunning
	retries := 4
	updated, err := s.Update(ctx, "a2", JobUpdate{Status: &status, Retries: &retries})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, updated.Status)
	assert.Equal(t, 4, updated.Retries)
	assert.Equal(t, "Weekly recap", updated.Title)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	_, err = s.Update(ctx, "zz", JobUpdate{Status: &status})
	require.ErrorIs(t, err, ErrJobNotFound)

	bad := domain.JobStatus("lost")
	_, err = s.Update(ctx, "a2", JobUpdate{Status: &bad})
	require.ErrorIs(t, err, ErrInvalidJob)
}

func TestSampleJobsAreDeterministic(t *testing.T) {
	now := base
	a := SampleJobs(25, []string{"acct-1", "acct-2"}, now, 7)
	b := SampleJobs(25, []string{"acct-1", "acct-2"}, now, 7)
	require.Len(t, a, 25)
	assert.Equal(t, a, b)
	for _, j := range a {
		assert.True(t, j.Status.IsValid())
		assert.False(t, j.CreatedAt.After(now))
	}

	s := newTestStore(t)
	n, err := s.Seed(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}
