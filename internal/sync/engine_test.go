package sync

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/erp"
	"erp-sync-service/internal/store"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, tr *scriptTransport, opts Options) (*Engine, *memStore) {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := newMemStore(clock)
	e := NewEngine(st, tr, opts, nil)
	e.now = clock
	return e, st
}

func TestSyncPaginatesWhileFull(t *testing.T) {
	tr := &scriptTransport{responses: []string{
		soapResponse(inventoryPage("a", 200)),
		soapResponse(inventoryPage("b", 150)),
	}}
	e, st := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Inventory, entity.Filter{})

	assert.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, int64(350), out.Records)
	assert.Equal(t, 2, tr.callCount())
	assert.Equal(t, 350, st.count(entity.Inventory))

	require.Len(t, tr.bodies, 2)
	assert.Contains(t, tr.bodies[0], "<oldal>0</oldal>")
	assert.Contains(t, tr.bodies[1], "<oldal>1</oldal>")
	assert.Contains(t, tr.bodies[0], "<limit>200</limit>")

	state, err := st.GetSyncState(context.Background(), "keszlet", entity.Filter{}.Fingerprint(entity.Inventory))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, store.StatusIdle, state.Status)
	assert.Equal(t, 2, state.PagesFetched)
	assert.Equal(t, int64(350), state.RecordsSynced)
	assert.True(t, state.LastSyncedAt.Valid)
}

func TestSyncStopsOnShortPage(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse(inventoryPage("a", 150))}}
	e, _ := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Inventory, entity.Filter{})
	assert.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, 1, out.Pages)
	assert.Equal(t, 1, tr.callCount())
}

func TestSyncStopsOnEmptyPayload(t *testing.T) {
	tr := &scriptTransport{responses: []string{
		soapResponse(inventoryPage("a", 200)),
		soapResponse(""),
	}}
	e, _ := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Inventory, entity.Filter{})
	assert.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, 1, out.Pages)
	assert.Equal(t, int64(200), out.Records)
	assert.Equal(t, 2, tr.callCount())
}

func TestSyncUsesConfiguredPageSize(t *testing.T) {
	tr := &scriptTransport{responses: []string{
		soapResponse(inventoryPage("a", 3)),
		soapResponse(inventoryPage("b", 1)),
	}}
	e, st := newTestEngine(t, tr, Options{})
	st.configs["keszlet"].PageSize = 3

	out := e.Sync(context.Background(), entity.Inventory, entity.Filter{})
	assert.Equal(t, 2, out.Pages)
	assert.Contains(t, tr.bodies[0], "<limit>3</limit>")
}

func TestSyncDisabled(t *testing.T) {
	tests := []struct {
		name  string
		setup func(st *memStore)
	}{
		{"disabled flag", func(st *memStore) { st.configs["cikk"].Enabled = false }},
		{"missing config", func(st *memStore) { delete(st.configs, "cikk") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptTransport{}
			e, st := newTestEngine(t, tr, Options{})
			tt.setup(st)

			out := e.Sync(context.Background(), entity.Product, entity.Filter{})
			assert.Equal(t, OutcomeDisabled, out.Status)
			assert.Equal(t, 0, tr.callCount())
			assert.Empty(t, st.states)
		})
	}
}

func TestSyncSkipsWhileRunning(t *testing.T) {
	tr := &scriptTransport{}
	e, st := newTestEngine(t, tr, Options{})
	fp := entity.Filter{}.Fingerprint(entity.Product)
	st.setState(store.SyncState{
		Entity:        "cikk",
		FilterHash:    fp,
		Status:        store.StatusRunning,
		SyncStartedAt: nullTime(testNow.Add(-time.Minute)),
	})

	out := e.Sync(context.Background(), entity.Product, entity.Filter{})
	assert.Equal(t, OutcomeSkipped, out.Status)
	assert.Equal(t, skipReason, out.Reason)
	assert.Equal(t, 0, tr.callCount())
}

func TestSyncReclaimsStaleRunning(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse("<elem><cikksz>P1</cikksz><nev>Widget</nev></elem>")}}
	e, st := newTestEngine(t, tr, Options{})
	fp := entity.Filter{}.Fingerprint(entity.Product)
	st.setState(store.SyncState{
		Entity:        "cikk",
		FilterHash:    fp,
		Status:        store.StatusRunning,
		SyncStartedAt: nullTime(testNow.Add(-2 * time.Hour)),
		LastSyncedAt:  nullTime(testNow.Add(-3 * time.Hour)),
	})

	out := e.Sync(context.Background(), entity.Product, entity.Filter{})
	assert.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, int64(1), out.Records)
}

func TestSyncIdleIsClaimedRegardlessOfAge(t *testing.T) {
	tr := &scriptTransport{}
	e, st := newTestEngine(t, tr, Options{})
	fp := entity.Filter{}.Fingerprint(entity.Product)
	st.setState(store.SyncState{
		Entity:       "cikk",
		FilterHash:   fp,
		Status:       store.StatusIdle,
		LastSyncedAt: nullTime(testNow.Add(-time.Second)),
	})

	out := e.Sync(context.Background(), entity.Product, entity.Filter{})
	assert.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, 1, tr.callCount())
}

func TestSyncOutlivesCallerCancellation(t *testing.T) {
	tr := &scriptTransport{
		responses: []string{soapResponse(inventoryPage("a", 3))},
		block:     make(chan struct{}),
	}
	e, st := newTestEngine(t, tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- e.Sync(ctx, entity.Inventory, entity.Filter{}) }()

	require.Eventually(t, func() bool { return tr.enteredCount() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(tr.block)

	var out Outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not finish")
	}
	assert.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, int64(3), out.Records)
	assert.Equal(t, 3, st.count(entity.Inventory))

	state, err := st.GetSyncState(context.Background(), "keszlet", entity.Filter{}.Fingerprint(entity.Inventory))
	require.NoError(t, err)
	assert.Equal(t, store.StatusIdle, state.Status)
	assert.Equal(t, 0, st.failCalls)
}

func TestSyncConcurrentSingleClaimant(t *testing.T) {
	tr := &scriptTransport{block: make(chan struct{})}
	e, _ := newTestEngine(t, tr, Options{})

	const n = 10
	results := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- e.Sync(context.Background(), entity.Inventory, entity.Filter{SKU: "A1"})
		}()
	}

	// The claimant is parked in the transport; everyone else returns.
	for i := 0; i < n-1; i++ {
		select {
		case out := <-results:
			assert.Equal(t, OutcomeSkipped, out.Status)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for skipped attempts")
		}
	}
	close(tr.block)

	select {
	case out := <-results:
		assert.Equal(t, OutcomeSynced, out.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the claimant")
	}
	assert.Equal(t, 1, tr.callCount())
}

func TestSyncDifferentFiltersDoNotContend(t *testing.T) {
	tr := &scriptTransport{}
	e, _ := newTestEngine(t, tr, Options{})

	a := e.Sync(context.Background(), entity.Sales, MonthFilter(testNow))
	b := e.Sync(context.Background(), entity.Sales, MonthFilter(testNow.AddDate(0, -1, 0)))
	assert.Equal(t, OutcomeSynced, a.Status)
	assert.Equal(t, OutcomeSynced, b.Status)
}

func TestSyncUpstreamErrorReleasesToError(t *testing.T) {
	tr := &scriptTransport{responses: []string{errorResponse(5, "Hibas API kulcs")}}
	e, st := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Sales, entity.Filter{})
	require.True(t, out.Failed())
	assert.Contains(t, out.Error, "5")
	assert.Contains(t, out.Error, "Hibas API kulcs")
	assert.Equal(t, 1, st.failCalls)

	state, _ := st.GetSyncState(context.Background(), "kimeno_szamla", entity.Filter{}.Fingerprint(entity.Sales))
	require.NotNil(t, state)
	assert.Equal(t, store.StatusError, state.Status)
	assert.Equal(t, out.Error, state.ErrorMessage.String)

	// An errored fingerprint is claimable again right away.
	tr.mu.Lock()
	tr.responses = []string{soapResponse("")}
	tr.calls = 0
	tr.mu.Unlock()
	again := e.Sync(context.Background(), entity.Sales, entity.Filter{})
	assert.Equal(t, OutcomeSynced, again.Status)
}

func TestSyncTransportFailure(t *testing.T) {
	tr := &scriptTransport{err: &erp.TransportError{Timeout: true, Err: context.DeadlineExceeded}}
	e, st := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Movement, entity.Filter{})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Contains(t, out.Error, "timeout")
	assert.Equal(t, 1, st.failCalls)
}

func TestSyncProtocolErrorOnMissingReturn(t *testing.T) {
	tr := &scriptTransport{responses: []string{"<html>gateway</html>"}}
	e, _ := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Product, entity.Filter{})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Contains(t, out.Error, "no result element")
}

func TestSyncMaxPagesBound(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse(inventoryPage("a", 2))}}
	e, st := newTestEngine(t, tr, Options{MaxPages: 3})
	st.configs["keszlet"].PageSize = 2

	out := e.Sync(context.Background(), entity.Inventory, entity.Filter{})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Equal(t, 3, out.Pages)
	assert.Equal(t, 3, tr.callCount())
	assert.Contains(t, out.Error, "protocol")
}

func TestSyncPersistsInChunks(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse(salesPage(5))}}
	e, st := newTestEngine(t, tr, Options{BatchInsertSize: 2})

	out := e.Sync(context.Background(), entity.Sales, entity.Filter{})
	require.Equal(t, OutcomeSynced, out.Status)
	assert.Equal(t, int64(5), out.Records)
	assert.Equal(t, []int{2, 2, 1}, st.batches)
}

func TestSyncDatedInsertsAreIdempotent(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse(salesPage(4))}}
	e, st := newTestEngine(t, tr, Options{})

	first := e.Sync(context.Background(), entity.Sales, entity.Filter{})
	second := e.Sync(context.Background(), entity.Sales, entity.Filter{})
	require.Equal(t, OutcomeSynced, first.Status)
	require.Equal(t, OutcomeSynced, second.Status)
	assert.Equal(t, 4, st.count(entity.Sales))
}

func TestSyncStoreWriteFailure(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse(salesPage(1))}}
	e, st := newTestEngine(t, tr, Options{})
	st.writeErr = errors.New("deadlock found")

	out := e.Sync(context.Background(), entity.Sales, entity.Filter{})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Equal(t, "deadlock found", out.Error)
	assert.Equal(t, "store", errorClass(st.writeErr))
}

func TestSyncRecordsHistory(t *testing.T) {
	tr := &scriptTransport{responses: []string{soapResponse(inventoryPage("a", 3))}}
	e, st := newTestEngine(t, tr, Options{})

	e.Sync(context.Background(), entity.Inventory, entity.Filter{})

	history, err := st.GetSyncHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.StatusSuccess, history[0].Status)
	assert.Equal(t, int64(3), history[0].RecordsSynced)
	assert.True(t, history[0].CompletedAt.Valid)
}

func TestSyncUnknownKind(t *testing.T) {
	tr := &scriptTransport{}
	e, _ := newTestEngine(t, tr, Options{})

	out := e.Sync(context.Background(), entity.Kind(42), entity.Filter{})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Contains(t, out.Error, "unknown entity")
	assert.Equal(t, 0, tr.callCount())
}

func TestSyncSendsSKUFilter(t *testing.T) {
	tr := &scriptTransport{}
	e, _ := newTestEngine(t, tr, Options{Credentials: erp.Credentials{CustomerCode: "C1", CompanyCode: "F1", APIKey: "k"}})

	e.Sync(context.Background(), entity.Inventory, entity.Filter{SKU: " A&B "})
	require.Len(t, tr.bodies, 1)
	body := tr.bodies[0]
	assert.Contains(t, body, "<ertek>A&amp;B</ertek>")
	assert.Contains(t, body, ">C1</param0>")
	assert.True(t, strings.Contains(body, ">keszlet</param3>"))
}

func TestFreshness(t *testing.T) {
	ctx := context.Background()

	t.Run("never synced uses default ttl without config", func(t *testing.T) {
		e, st := newTestEngine(t, &scriptTransport{}, Options{})
		delete(st.configs, "keszlet")

		f, err := e.Freshness(ctx, entity.Inventory, entity.Filter{})
		require.NoError(t, err)
		assert.False(t, f.IsFresh)
		assert.False(t, f.HasData)
		assert.Equal(t, StatusNeverSynced, f.Status)
		assert.Equal(t, DefaultTTLSeconds, f.TTLSeconds)
		assert.Nil(t, f.LastSyncedAt)
		assert.Nil(t, f.AgeSeconds)
	})

	t.Run("fresh", func(t *testing.T) {
		e, st := newTestEngine(t, &scriptTransport{}, Options{})
		st.configs["keszlet"].TTLSeconds = 300
		st.setState(store.SyncState{
			Entity:        "keszlet",
			FilterHash:    entity.Filter{}.Fingerprint(entity.Inventory),
			Status:        store.StatusIdle,
			LastSyncedAt:  nullTime(testNow.Add(-100400 * time.Millisecond)),
			RecordsSynced: 12,
		})

		f, err := e.Freshness(ctx, entity.Inventory, entity.Filter{})
		require.NoError(t, err)
		assert.True(t, f.IsFresh)
		assert.True(t, f.HasData)
		assert.Equal(t, "idle", f.Status)
		assert.Equal(t, 300, f.TTLSeconds)
		require.NotNil(t, f.AgeSeconds)
		assert.Equal(t, int64(100), *f.AgeSeconds)
	})

	t.Run("stale with error", func(t *testing.T) {
		e, st := newTestEngine(t, &scriptTransport{}, Options{})
		st.setState(store.SyncState{
			Entity:        "cikk",
			FilterHash:    entity.Filter{}.Fingerprint(entity.Product),
			Status:        store.StatusError,
			LastSyncedAt:  nullTime(testNow.Add(-31 * time.Minute)),
			ErrorMessage:  sql.NullString{String: "erp error 5: bad key", Valid: true},
			RecordsSynced: 0,
		})

		f, err := e.Freshness(ctx, entity.Product, entity.Filter{})
		require.NoError(t, err)
		assert.False(t, f.IsFresh)
		assert.False(t, f.HasData)
		assert.Equal(t, "error", f.Status)
		assert.Equal(t, "erp error 5: bad key", f.ErrorMessage)
	})

	t.Run("running without completion has no age", func(t *testing.T) {
		e, st := newTestEngine(t, &scriptTransport{}, Options{})
		st.setState(store.SyncState{
			Entity:     "cikk",
			FilterHash: entity.Filter{}.Fingerprint(entity.Product),
			Status:     store.StatusRunning,
		})

		f, err := e.Freshness(ctx, entity.Product, entity.Filter{})
		require.NoError(t, err)
		assert.False(t, f.IsFresh)
		assert.Equal(t, "running", f.Status)
		assert.Nil(t, f.AgeSeconds)
	})
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&erp.ProtocolError{Reason: "x"}, "protocol"},
		{&erp.UpstreamError{Code: 5}, "upstream"},
		{&erp.TransportError{Err: errors.New("reset")}, "transport"},
		{&entity.ConfigError{Reason: "unknown entity"}, "config"},
		{context.Canceled, "canceled"},
		{errors.New("disk full"), "store"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorClass(tt.err), tt.err.Error())
	}
}
