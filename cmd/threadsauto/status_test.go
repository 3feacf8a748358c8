package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/listsync"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

func runStatus(t *testing.T, newSrc listSourceFactory, args ...string) (string, error) {
	t.Helper()
	statusCmd := NewStatusCmd(newSrc)
	var out bytes.Buffer
	statusCmd.SetOut(&out)
	statusCmd.SetErr(&out)
	statusCmd.SetArgs(args)
	err := statusCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusPresets(t *testing.T) {
	dsn := setupConfig(t)
	store := seededStore(t, dsn)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "default compact", want: "[2/3] launch day\n"},
		{name: "detailed", args: []string{"--format", "detailed"}, want: "1 pending, 0 running, 2 failed | Latest: launch day\n"},
		{name: "json", args: []string{"--format", "json"}, want: `{"total":3,"active":1,"failed":2}` + "\n"},
		{name: "scoped", args: []string{"--account", "acct-1", "--format", "account"}, want: "acct-1: 1 active\n"},
		{name: "platform", args: []string{"--platform", "facebook", "--format", "{{total-count}} {{latest-status}}"}, want: "1 pending\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runStatus(t, storeFactory(store), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestStatusFormatFromConfig(t *testing.T) {
	dsn := setupConfig(t)
	store := seededStore(t, dsn)
	t.Setenv(config.EnvPrefix+"STATUS_FORMAT", "failures")
	config.Load()

	out, err := runStatus(t, storeFactory(store))
	require.NoError(t, err)
	assert.Equal(t, "2 failed\n", out)

	out, err = runStatus(t, storeFactory(store), "--format", "count-only")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out, "flag wins over config")
}

func TestStatusRejectsBadTemplates(t *testing.T) {
	setupConfig(t)
	never := func(string, logging.Logger) (listsync.DataSource[domain.Job], func(), error) {
		t.Fatal("source must not be built for invalid input")
		return nil, nil, nil
	}

	_, err := runStatus(t, never, "--format", "fancy")
	require.ErrorContains(t, err, `unknown preset "fancy"`)

	_, err = runStatus(t, never, "--format", "{{unread-count}}")
	require.ErrorContains(t, err, "unknown variable: unread-count")
}

func TestStatusPropagatesFetchErrors(t *testing.T) {
	setupConfig(t)
	failing := func(string, logging.Logger) (listsync.DataSource[domain.Job], func(), error) {
		return listsync.DataSourceFunc[domain.Job](func(_ context.Context, f domain.FilterState, _ domain.Pagination) (domain.Page[domain.Job], error) {
			if _, ok := f.Get(domain.KeyStatus); ok {
				return domain.Page[domain.Job]{}, errors.New("status index offline")
			}
			return domain.Page[domain.Job]{Total: 0}, nil
		}), func() {}, nil
	}

	_, err := runStatus(t, failing)
	require.ErrorContains(t, err, "status index offline")
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchList(ctx context.Context, filters domain.FilterState, p domain.Pagination) (domain.Page[domain.Job], error) {
	args := m.Called(filters.Canonical(), p)
	return args.Get(0).(domain.Page[domain.Job]), args.Error(1)
}

func TestSummarizeAsksForOneRowPerQuery(t *testing.T) {
	src := &mockSource{}
	one := domain.Pagination{Page: 1, PageSize: 1}
	latest := domain.Job{ID: "job-9", Title: "newest", Status: domain.StatusRunning}

	src.On("FetchList", "account_id=acct-1", one).Return(domain.Page[domain.Job]{Items: []domain.Job{latest}, Total: 9}, nil).Once()
	src.On("FetchList", "account_id=acct-1&status=pending", one).Return(domain.Page[domain.Job]{Total: 4}, nil).Once()
	src.On("FetchList", "account_id=acct-1&status=running", one).Return(domain.Page[domain.Job]{Total: 1}, nil).Once()
	src.On("FetchList", "account_id=acct-1&status=completed", one).Return(domain.Page[domain.Job]{Total: 3}, nil).Once()
	src.On("FetchList", "account_id=acct-1&status=failed", one).Return(domain.Page[domain.Job]{Total: 1}, nil).Once()

	filters, _ := domain.NewFilterState(domain.Patch{domain.KeyAccountID: "acct-1"})
	vars, err := summarize(context.Background(), src, filters)
	require.NoError(t, err)
	src.AssertExpectations(t)

	assert.Equal(t, "acct-1", vars.Account)
	assert.Equal(t, 9, vars.TotalCount)
	assert.Equal(t, 5, vars.ActiveCount())
	assert.Equal(t, 3, vars.CompletedCount)
	require.NotNil(t, vars.Latest)
	assert.Equal(t, "job-9", vars.Latest.ID)
}
