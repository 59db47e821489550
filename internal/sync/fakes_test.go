package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/xmlscan"
)

// memStore keeps state in memory. Claims are evaluated under one mutex so
// they behave like the conditional update of the MySQL store.
type memStore struct {
	mu        sync.Mutex
	now       func() time.Time
	configs   map[string]*store.EntityConfig
	states    map[string]*store.SyncState
	records   map[entity.Kind]map[string]entity.Record
	batches   []int
	history   map[string]*store.SyncHistory
	writeErr  error
	failCalls int
}

func newMemStore(now func() time.Time) *memStore {
	s := &memStore{
		now:     now,
		configs: make(map[string]*store.EntityConfig),
		states:  make(map[string]*store.SyncState),
		records: make(map[entity.Kind]map[string]entity.Record),
		history: make(map[string]*store.SyncHistory),
	}
	for _, k := range entity.Kinds {
		s.configs[k.Name()] = &store.EntityConfig{Entity: k.Name(), TTLSeconds: 1800, PageSize: 200, Enabled: true}
	}
	return s
}

func stateKey(name, hash string) string { return name + "|" + hash }

func (s *memStore) GetEntityConfig(_ context.Context, name string) (*store.EntityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[name]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetSyncState(_ context.Context, name, hash string) (*store.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[stateKey(name, hash)]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) setState(st store.SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey(st.Entity, st.FilterHash)] = &st
}

func (s *memStore) ClaimSyncLock(_ context.Context, c store.Claim) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := stateKey(c.Entity, c.FilterHash)
	st, ok := s.states[key]
	if !ok {
		s.states[key] = &store.SyncState{
			Entity:        c.Entity,
			FilterHash:    c.FilterHash,
			FilterParams:  c.FilterParams,
			Status:        store.StatusRunning,
			SyncStartedAt: nullTime(now),
			TTLSeconds:    int(c.TTL / time.Second),
			UpdatedAt:     now,
		}
		return true, nil
	}

	if st.Status == store.StatusRunning {
		expired := func(t time.Time) bool { return !t.After(now.Add(-c.TTL)) }
		staleDone := !st.LastSyncedAt.Valid || expired(st.LastSyncedAt.Time)
		staleStart := !st.SyncStartedAt.Valid || expired(st.SyncStartedAt.Time)
		if !staleDone || !staleStart {
			return false, nil
		}
	}
	st.Status = store.StatusRunning
	st.SyncStartedAt = nullTime(now)
	st.ErrorMessage.Valid = false
	st.UpdatedAt = now
	return true, nil
}

func (s *memStore) CompleteSync(_ context.Context, rel store.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[stateKey(rel.Entity, rel.FilterHash)]
	st.Status = store.StatusIdle
	st.LastSyncedAt = nullTime(s.now())
	st.PagesFetched = rel.PagesFetched
	st.RecordsSynced = rel.RecordsSynced
	st.ErrorMessage.Valid = false
	s.finish(rel, store.StatusSuccess)
	return nil
}

func (s *memStore) FailSync(_ context.Context, rel store.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCalls++
	st := s.states[stateKey(rel.Entity, rel.FilterHash)]
	st.Status = store.StatusError
	st.ErrorMessage.String = rel.ErrorMessage
	st.ErrorMessage.Valid = true
	s.finish(rel, store.StatusError)
	return nil
}

func (s *memStore) finish(rel store.Release, status store.SyncStatus) {
	if h, ok := s.history[rel.RunID]; ok {
		h.Status = status
		h.PagesFetched = rel.PagesFetched
		h.RecordsSynced = rel.RecordsSynced
		h.CompletedAt = nullTime(s.now())
	}
}

func (s *memStore) write(kind entity.Kind, records []entity.Record, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.batches = append(s.batches, len(records))
	table, ok := s.records[kind]
	if !ok {
		table = make(map[string]entity.Record)
		s.records[kind] = table
	}
	for _, r := range records {
		if _, exists := table[r.Key()]; exists && !replace {
			continue
		}
		table[r.Key()] = r
	}
	return nil
}

func (s *memStore) UpsertSnapshot(_ context.Context, kind entity.Kind, records []entity.Record) error {
	return s.write(kind, records, true)
}

func (s *memStore) InsertIgnore(_ context.Context, kind entity.Kind, records []entity.Record) error {
	return s.write(kind, records, false)
}

func (s *memStore) CreateSyncHistory(_ context.Context, h *store.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.history[h.ID] = &cp
	return nil
}

func (s *memStore) GetSyncHistory(_ context.Context, limit, offset int) ([]*store.SyncHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.SyncHistory
	for _, h := range s.history {
		out = append(out, h)
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) count(kind entity.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[kind])
}

var _ store.Store = (*memStore)(nil)

// scriptTransport answers calls from a list of responses, repeating the
// last one once the list is exhausted.
type scriptTransport struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	bodies    []string
	// block, when set, holds every call until it is closed or ctx ends.
	block   chan struct{}
	entered int
}

func (t *scriptTransport) Call(ctx context.Context, entityName, body string) (string, error) {
	t.mu.Lock()
	t.entered++
	t.mu.Unlock()

	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.bodies = append(t.bodies, body)
	if t.err != nil {
		return "", t.err
	}
	if len(t.responses) == 0 {
		return soapResponse(""), nil
	}
	idx := min(t.calls-1, len(t.responses)-1)
	return t.responses[idx], nil
}

// enteredCount includes calls still parked on block.
func (t *scriptTransport) enteredCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entered
}

func (t *scriptTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func soapResponse(payload string) string {
	inner := `<?xml version="1.0" encoding="UTF-8"?><valaszok><hiba>0</hiba><valasz>` + payload + `</valasz></valaszok>`
	return `<SOAP-ENV:Envelope><SOAP-ENV:Body><ns1:lekerResponse><return xsi:type="xsd:string">` +
		xmlscan.Escape(inner) + `</return></ns1:lekerResponse></SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

func errorResponse(code int, msg string) string {
	inner := fmt.Sprintf(`<valaszok><hiba>%d</hiba><valasz>%s</valasz></valaszok>`, code, msg)
	return `<SOAP-ENV:Envelope><SOAP-ENV:Body><return>` + xmlscan.Escape(inner) + `</return></SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

// inventoryPage renders n inventory rows with SKUs prefix-0..prefix-(n-1).
func inventoryPage(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<elem><cikksz>%s-%d</cikksz><kiadhato1>1</kiadhato1><kiadhato3>2</kiadhato3></elem>", prefix, i)
	}
	return b.String()
}

// salesPage renders n rows of one line item each, all on the same date.
func salesPage(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<elem><fej><telj_dat>2024.03.15</telj_dat></fej>"+
			"<tetel><cikksz>S-%d</cikksz><menny>%d</menny><netto_ar>100</netto_ar><afa_szaz>27</afa_szaz></tetel></elem>", i, i+1)
	}
	return b.String()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
