package listsync

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/dthanhvu03/threadsauto-sub000/internal/coordinator"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	apperrors "github.com/dthanhvu03/threadsauto-sub000/internal/errors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/location"
	"github.com/dthanhvu03/threadsauto-sub000/internal/realtime"
)

type fetchCall struct {
	filters domain.FilterState
	page    domain.Pagination
}

type fakeSource struct {
	mu    sync.Mutex
	calls []fetchCall
	total int
	err   error
	gate  chan struct{}
}

func (f *fakeSource) FetchList(ctx context.Context, filters domain.FilterState, page domain.Pagination) (domain.Page[domain.Job], error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{filters: filters, page: page})
	total, err, gate := f.total, f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Page[domain.Job]{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Page[domain.Job]{}, err
	}
	var items []domain.Job
	for i := page.Offset(); i < total && len(items) < page.PageSize; i++ {
		items = append(items, domain.Job{ID: fmt.Sprintf("job-%d", i)})
	}
	return domain.Page[domain.Job]{Items: items, Total: total}, nil
}

func (f *fakeSource) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type harness struct {
	clock    *testclock.FakeClock
	source   *fakeSource
	hub      *realtime.Hub
	provider *location.MemoryProvider
	ctrl     *Controller[domain.Job]
}

type harnessOption func(*Config, *Deps[domain.Job])

func withLocation(p *location.MemoryProvider) harnessOption {
	return func(_ *Config, d *Deps[domain.Job]) { d.Location = p }
}

func withConfig(fn func(*Config)) harnessOption {
	return func(c *Config, _ *Deps[domain.Job]) { fn(c) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:  testclock.NewFakeClock(time.Now()),
		source: &fakeSource{total: 95},
		hub:    realtime.NewHub(nil),
	}
	cfg := Config{
		DefaultFilters:   domain.Patch{domain.KeyAccountID: "acct-1"},
		TransientBackoff: time.Millisecond,
		RateLimitBackoff: time.Millisecond,
	}
	deps := Deps[domain.Job]{Source: h.source, Channel: h.hub, Clock: h.clock}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	if p, ok := deps.Location.(*location.MemoryProvider); ok {
		h.provider = p
	}
	ctrl, err := New(cfg, deps)
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(func() { _ = ctrl.Close() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitCalls(t, 1)
}

func (h *harness) idle() bool {
	return !h.ctrl.Snapshot().IsLoading && h.ctrl.coord.State() == coordinator.StateIdle
}

func (h *harness) waitCalls(t *testing.T, n int) []fetchCall {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.source.Calls()) == n && h.idle()
	}, 2*time.Second, 5*time.Millisecond)
	return h.source.Calls()
}

func (h *harness) assertCallsStay(t *testing.T, n int) {
	t.Helper()
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.source.Calls(), n)
}

func (h *harness) waitSubscribed(t *testing.T, room string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.hub.Members(room) == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(Config{}, Deps[domain.Job]{})
	require.Error(t, err)
}

func TestStartFetchesFirstPage(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	calls := h.source.Calls()
	assert.Equal(t, domain.Pagination{Page: 1, PageSize: 20}, calls[0].page)
	assert.Equal(t, "account_id=acct-1", calls[0].filters.Canonical())

	snap := h.ctrl.Snapshot()
	assert.Len(t, snap.Items, 20)
	assert.Equal(t, 95, snap.Total)
	assert.Equal(t, 5, snap.TotalPages)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.Notice)

	require.ErrorIs(t, h.ctrl.Start(context.Background()), ErrStarted)
}

func TestFilterChangeOnPageThreeFetchesFirstPage(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.True(t, h.ctrl.GoToPage(3))
	calls := h.waitCalls(t, 2)
	assert.Equal(t, 3, calls[1].page.Page)

	changed, warnings := h.ctrl.SetFilters(domain.Patch{domain.KeyStatus: "failed"})
	require.True(t, changed)
	assert.Empty(t, warnings)
	assert.Equal(t, 1, h.ctrl.Snapshot().Page, "page resets before the refresh is issued")

	h.clock.Step(499 * time.Millisecond)
	h.assertCallsStay(t, 2)

	h.clock.Step(time.Millisecond)
	calls = h.waitCalls(t, 3)
	assert.Equal(t, 1, calls[2].page.Page)
	status, _ := calls[2].filters.Get(domain.KeyStatus)
	assert.Equal(t, "failed", status)
}

func TestFilterBurstCollapsesToLastValue(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	for i := range 10 {
		h.ctrl.SetFilters(domain.Patch{domain.KeyQuery: fmt.Sprintf("draft %d", i)})
		h.clock.Step(100 * time.Millisecond)
	}
	h.assertCallsStay(t, 1)

	h.clock.Step(500 * time.Millisecond)
	calls := h.waitCalls(t, 2)
	q, _ := calls[1].filters.Get(domain.KeyQuery)
	assert.Equal(t, "draft 9", q)

	h.clock.Step(time.Second)
	h.assertCallsStay(t, 2)
}

func TestEmptyAndNilValuesAreEquivalent(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	changed, _ := h.ctrl.SetFilters(domain.Patch{domain.KeyStatus: "", domain.KeyPlatform: "threads"})
	require.True(t, changed)
	h.clock.Step(500 * time.Millisecond)
	h.waitCalls(t, 2)

	changed, _ = h.ctrl.SetFilters(domain.Patch{domain.KeyStatus: nil, domain.KeyPlatform: "threads"})
	assert.False(t, changed)
	assert.False(t, h.ctrl.user.Pending())
	h.clock.Step(time.Second)
	h.assertCallsStay(t, 2)
}

func TestInvalidFilterValueBecomesWarning(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	changed, warnings := h.ctrl.SetFilters(domain.Patch{domain.KeyFrom: "yesterday-ish"})
	assert.False(t, changed)
	require.Len(t, warnings, 1)

	snap := h.ctrl.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, apperrors.NoticeWarning, snap.Notice.Type)
	assert.False(t, h.ctrl.user.Pending())
}

func TestGoToPageClampsIntoRange(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	assert.False(t, h.ctrl.GoToPage(0), "already on page 1")
	require.True(t, h.ctrl.GoToPage(9))
	calls := h.waitCalls(t, 2)
	assert.Equal(t, 5, calls[1].page.Page)

	require.True(t, h.ctrl.PrevPage())
	calls = h.waitCalls(t, 3)
	assert.Equal(t, 4, calls[2].page.Page)
}

func TestChangePageSizeResetsPage(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.True(t, h.ctrl.GoToPage(3))
	h.waitCalls(t, 2)

	require.True(t, h.ctrl.ChangePageSize(1000))
	calls := h.waitCalls(t, 3)
	assert.Equal(t, domain.Pagination{Page: 1, PageSize: 200}, calls[2].page)
	assert.Equal(t, 1, h.ctrl.Snapshot().TotalPages)
}

func TestShrinkingTotalMovesToLastPage(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.True(t, h.ctrl.GoToPage(5))
	h.waitCalls(t, 2)

	h.source.set(func(f *fakeSource) { f.total = 30 })
	require.NoError(t, h.ctrl.ManualRefresh())
	calls := h.waitCalls(t, 4)
	assert.Equal(t, 5, calls[2].page.Page)
	assert.Equal(t, 2, calls[3].page.Page)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 2, snap.Page)
	assert.Len(t, snap.Items, 10)
}

type failingLocation struct {
	*location.MemoryProvider
}

func (failingLocation) Write(location.Query, location.WriteOptions) error {
	return stderrors.New("disk full")
}

func TestLocationWriteFailureRaisesWarning(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps[domain.Job]) {
		d.Location = failingLocation{location.NewMemoryProvider(nil)}
	})
	h.start(t)

	h.ctrl.SetFilters(domain.Patch{domain.KeyStatus: "failed"})
	h.clock.Step(500 * time.Millisecond)
	h.waitCalls(t, 2)

	snap := h.ctrl.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, apperrors.NoticeWarning, snap.Notice.Type)
	assert.Contains(t, snap.Notice.Text, "disk full")
	assert.Len(t, snap.Items, 20, "the fetched page is still shown")
	assert.Equal(t, "", h.ctrl.loc.Snapshot())
}

func TestFetchErrorKeepsItemsAndRaisesNotice(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.source.set(func(f *fakeSource) { f.err = stderrors.New("backend exploded") })
	require.NoError(t, h.ctrl.ManualRefresh())
	h.waitCalls(t, 2)

	snap := h.ctrl.Snapshot()
	assert.Len(t, snap.Items, 20, "last good items are kept")
	require.NotNil(t, snap.Notice)
	assert.Equal(t, apperrors.NoticeError, snap.Notice.Type)
	assert.Equal(t, apperrors.KindFatal, snap.Notice.Kind)
	assert.Contains(t, snap.Notice.Text, "backend exploded")

	require.True(t, h.ctrl.DismissNotice())
	assert.Nil(t, h.ctrl.Snapshot().Notice)

	require.NoError(t, h.ctrl.ManualRefresh())
	h.waitCalls(t, 3)
	require.NotNil(t, h.ctrl.Snapshot().Notice)

	h.source.set(func(f *fakeSource) { f.err = nil })
	require.NoError(t, h.ctrl.ManualRefresh())
	h.waitCalls(t, 4)
	assert.Nil(t, h.ctrl.Snapshot().Notice, "success clears fetch errors")
}

func TestRefreshBlocksUntilResult(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	page, err := h.ctrl.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 95, page.Total)
	assert.Len(t, page.Items, 20)
}

func TestStartAdoptsLocation(t *testing.T) {
	provider := location.NewMemoryProvider(location.Query{"status": "running", "page": "2"})
	h := newHarness(t, withLocation(provider))
	h.start(t)

	calls := h.source.Calls()
	assert.Equal(t, 2, calls[0].page.Page)
	assert.Equal(t, "account_id=acct-1&status=running", calls[0].filters.Canonical())
	assert.Equal(t, location.Query{"status": "running", "page": "2"}, provider.Read())
}

func TestLocationWritesDoNotLoopBack(t *testing.T) {
	provider := location.NewMemoryProvider(nil)
	h := newHarness(t, withLocation(provider))
	h.start(t)

	require.True(t, h.ctrl.GoToPage(2))
	h.waitCalls(t, 2)
	require.Eventually(t, func() bool {
		return provider.Read().Equal(location.Query{"page": "2"})
	}, time.Second, 5*time.Millisecond)
	h.assertCallsStay(t, 2)

	h.ctrl.SetFilters(domain.Patch{domain.KeyPlatform: "threads"})
	h.clock.Step(500 * time.Millisecond)
	h.waitCalls(t, 3)
	require.Eventually(t, func() bool {
		return provider.Read().Equal(location.Query{"platform": "threads"})
	}, time.Second, 5*time.Millisecond)
	h.assertCallsStay(t, 3)
}

func TestExternalNavigationReplacesFilters(t *testing.T) {
	provider := location.NewMemoryProvider(location.Query{"platform": "threads"})
	h := newHarness(t, withLocation(provider))
	h.start(t)

	provider.Navigate(location.Query{"status": "failed", "page": "3"})
	calls := h.waitCalls(t, 2)
	assert.Equal(t, "account_id=acct-1&status=failed", calls[1].filters.Canonical())
	assert.Equal(t, 3, calls[1].page.Page)

	snap := h.ctrl.Snapshot()
	_, hasPlatform := snap.Filters.Get(domain.KeyPlatform)
	assert.False(t, hasPlatform, "navigation replaces instead of merging")

	require.True(t, provider.Back())
	calls = h.waitCalls(t, 3)
	assert.Equal(t, "account_id=acct-1&platform=threads", calls[2].filters.Canonical())
	assert.Equal(t, 1, calls[2].page.Page)
}

func TestPushBurstTriggersOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitSubscribed(t, "acct-1")

	for range 5 {
		h.hub.Publish(realtime.Event{Room: "acct-1", Name: realtime.EventJobUpdated})
		h.clock.Step(400 * time.Millisecond)
	}
	h.clock.Step(4 * time.Second)
	h.assertCallsStay(t, 1)

	h.clock.Step(600 * time.Millisecond)
	calls := h.waitCalls(t, 2)
	assert.Equal(t, calls[0].filters.Canonical(), calls[1].filters.Canonical())

	h.clock.Step(10 * time.Second)
	h.assertCallsStay(t, 2)
}

func TestPushSuppressedWhileRefreshing(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.source.set(func(f *fakeSource) { f.gate = gate })
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitSubscribed(t, "acct-1")
	require.Eventually(t, func() bool { return len(h.source.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, coordinator.StateRefreshing, h.ctrl.coord.State())

	for range 3 {
		h.hub.Publish(realtime.Event{Room: "acct-1", Name: realtime.EventJobCreated})
	}
	close(gate)
	h.waitCalls(t, 1)

	h.clock.Step(10 * time.Second)
	h.assertCallsStay(t, 1)
}

func TestPushSuppressedWhileUserChangePending(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitSubscribed(t, "acct-1")

	h.ctrl.SetFilters(domain.Patch{domain.KeyQuery: "launch"})
	h.hub.Publish(realtime.Event{Room: "acct-1", Name: realtime.EventJobCreated})

	h.clock.Step(500 * time.Millisecond)
	h.waitCalls(t, 2)
	h.clock.Step(10 * time.Second)
	h.assertCallsStay(t, 2)
}

func TestRoomFollowsAccountFilter(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.waitSubscribed(t, "acct-1")

	h.ctrl.SetFilters(domain.Patch{domain.KeyAccountID: "acct-2"})
	h.waitSubscribed(t, "acct-2")
	assert.Equal(t, 0, h.hub.Members("acct-1"))
	assert.Equal(t, "acct-2", h.ctrl.Snapshot().Room)

	h.ctrl.SetRoom("ops")
	h.waitSubscribed(t, "ops")
	assert.Equal(t, 0, h.hub.Members("acct-2"))

	h.ctrl.SetRoom("")
	h.waitSubscribed(t, "acct-2")
}

func TestPollerIssuesScheduledRefresh(t *testing.T) {
	h := newHarness(t, withConfig(func(c *Config) {
		c.PollInterval = 30 * time.Second
	}))
	h.start(t)
	require.Eventually(t, h.clock.HasWaiters, time.Second, 5*time.Millisecond)

	h.clock.Step(30 * time.Second)
	h.waitCalls(t, 2)
}

func TestSubscribeReceivesNewestSnapshot(t *testing.T) {
	h := newHarness(t)
	updates, cancel := h.ctrl.Subscribe()
	defer cancel()

	first := <-updates
	assert.Equal(t, 1, first.Page)

	h.start(t)
	h.ctrl.SetFilters(domain.Patch{domain.KeyStatus: "pending"})
	require.Eventually(t, func() bool {
		select {
		case snap := <-updates:
			status, _ := snap.Filters.Get(domain.KeyStatus)
			return status == "pending"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestCloseCancelsInFlightFetch(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.source.set(func(f *fakeSource) { f.gate = gate })
	updates, _ := h.ctrl.Subscribe()

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return len(h.source.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Close())
	assert.Nil(t, h.ctrl.Snapshot().Items)
	for range updates {
	}

	changed, _ := h.ctrl.SetFilters(domain.Patch{domain.KeyStatus: "failed"})
	assert.False(t, changed)
	require.ErrorIs(t, h.ctrl.ManualRefresh(), ErrClosed)
	h.clock.Step(time.Minute)
	h.assertCallsStay(t, 1)
	require.NoError(t, h.ctrl.Close())
}
