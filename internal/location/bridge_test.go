package location

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

type navRecorder struct {
	mu   sync.Mutex
	navs []Navigation
}

func (r *navRecorder) record(n Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navs = append(r.navs, n)
}

func (r *navRecorder) all() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.navs...)
}

func newTestBridge(t *testing.T, initial Query) (*Bridge, *MemoryProvider, *testclock.FakeClock, *navRecorder) {
	t.Helper()
	clk := testclock.NewFakeClock(time.Now())
	m := NewMemoryProvider(initial)
	b := NewBridge(m, BridgeConfig{Codec: testCodec(t), Clock: clk})
	rec := &navRecorder{}
	b.Start(rec.record)
	t.Cleanup(b.Close)
	return b, m, clk, rec
}

func filters(t *testing.T, p domain.Patch) domain.FilterState {
	t.Helper()
	f, _ := domain.NewFilterState(p)
	return f
}

func TestPushStateEchoIsIgnored(t *testing.T) {
	b, m, _, rec := newTestBridge(t, nil)

	f := filters(t, domain.Patch{"account_id": "acct-1", "status": "failed"})
	require.NoError(t, b.PushState(f, domain.Pagination{Page: 2, PageSize: 20}))

	assert.Equal(t, Query{"status": "failed", "page": "2"}, m.Read())
	assert.Equal(t, "page=2&status=failed", b.Snapshot())

	// A provider that reports the same query again must not look external.
	m.listeners.notify(Query{"status": "failed", "page": "2"})
	assert.Empty(t, rec.all())
}

func TestPushStateSkipsIdenticalWrite(t *testing.T) {
	b, m, _, _ := newTestBridge(t, Query{"status": "failed"})

	writes := 0
	cancel := m.OnChange(func(Query) { writes++ })
	defer cancel()

	require.NoError(t, b.PushState(filters(t, domain.Patch{"account_id": "acct-1", "status": "failed"}), domain.Pagination{Page: 1, PageSize: 20}))
	assert.Equal(t, 0, writes)
	assert.Equal(t, "status=failed", b.Snapshot())
}

type readOnlyProvider struct {
	*MemoryProvider
}

func (readOnlyProvider) Write(Query, WriteOptions) error {
	return errors.New("location is read-only")
}

func TestFailedPushStateIsForgotten(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	m := NewMemoryProvider(Query{"status": "pending"})
	b := NewBridge(readOnlyProvider{m}, BridgeConfig{Codec: testCodec(t), Clock: clk})
	b.Initial()
	rec := &navRecorder{}
	b.Start(rec.record)
	t.Cleanup(b.Close)

	err := b.PushState(filters(t, domain.Patch{"account_id": "acct-1", "status": "failed"}), domain.Pagination{Page: 1, PageSize: 20})
	require.ErrorContains(t, err, "read-only")
	assert.Equal(t, "status=pending", b.Snapshot(), "snapshot keeps the last query that was really written")

	// The user navigating to the query that failed to write is external.
	m.Navigate(Query{"status": "failed"})
	navs := rec.all()
	require.Len(t, navs, 1)
	assert.Equal(t, "failed", navs[0].Filters["status"])
}

func TestBackNavigationIsExternal(t *testing.T) {
	b, m, clk, rec := newTestBridge(t, nil)

	m.Navigate(Query{"status": "pending", "page": "4"})
	navs := rec.all()
	require.Len(t, navs, 1)
	assert.Equal(t, 4, navs[0].Page)
	assert.Equal(t, "pending", navs[0].Filters["status"])
	assert.Equal(t, "acct-1", navs[0].Filters["account_id"])

	require.NoError(t, b.PushState(filters(t, domain.Patch{"account_id": "acct-1", "status": "pending"}), domain.Pagination{Page: 1, PageSize: 20}))
	require.Len(t, rec.all(), 1)

	clk.Step(time.Second)
	require.True(t, m.Back())
	navs = rec.all()
	require.Len(t, navs, 2)
	assert.Equal(t, 1, navs[1].Page)
	assert.Equal(t, domain.Patch{"account_id": "acct-1"}, navs[1].Filters)
}

func TestGraceWindowAbsorbsLateEcho(t *testing.T) {
	b, m, clk, rec := newTestBridge(t, nil)

	f1 := filters(t, domain.Patch{"account_id": "acct-1", "status": "failed"})
	f2 := filters(t, domain.Patch{"account_id": "acct-1", "status": "pending"})
	require.NoError(t, b.PushState(f1, domain.Pagination{Page: 1, PageSize: 20}))
	require.NoError(t, b.PushState(f2, domain.Pagination{Page: 1, PageSize: 20}))

	clk.Step(100 * time.Millisecond)
	m.listeners.notify(Query{"status": "failed"})
	assert.Empty(t, rec.all(), "late echo of an earlier write inside the grace window")

	clk.Step(time.Second)
	m.listeners.notify(Query{"status": "failed"})
	assert.Len(t, rec.all(), 1, "the same query outside the grace window is navigation")
}

func TestInitialAdoptsLocation(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	m := NewMemoryProvider(Query{"status": "failed", "page": "3"})
	b := NewBridge(m, BridgeConfig{Codec: testCodec(t), Clock: clk})

	nav := b.Initial()
	assert.Equal(t, 3, nav.Page)
	assert.Equal(t, "failed", nav.Filters["status"])
	assert.Equal(t, "page=3&status=failed", b.Snapshot())
}

func TestCloseStopsNavigation(t *testing.T) {
	b, m, _, rec := newTestBridge(t, nil)
	b.Close()
	m.Navigate(Query{"status": "pending"})
	assert.Empty(t, rec.all())
}
