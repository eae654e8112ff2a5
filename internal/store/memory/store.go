// Package memory is an in-process ledger store: per-tenant mutexes stand in
// for the row locks of the MySQL store. Used by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/model"
)

type tenantState struct {
	mu           sync.Mutex
	quota        model.QuotaConfig
	reservations map[string]*model.Reservation
	usage        []model.UsageRecord
}

type Store struct {
	mu      sync.Mutex
	tenants map[int64]*tenantState
	byRes   map[string]int64 // reservation handle -> tenant
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tenants: make(map[int64]*tenantState),
		byRes:   make(map[string]int64),
	}
}

func (s *Store) tenant(id int64, def *model.QuotaConfig) *tenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tenants[id]
	if !ok {
		if def == nil {
			return nil
		}
		ts = &tenantState{
			quota:        *def,
			reservations: make(map[string]*model.Reservation),
		}
		s.tenants[id] = ts
	}
	return ts
}

func (s *Store) Reserve(_ context.Context, def model.QuotaConfig, decide func(q *model.QuotaConfig) error, res *model.Reservation) error {
	ts := s.tenant(res.TenantID, &def)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	q := ts.quota
	if err := decide(&q); err != nil {
		return err
	}
	ts.quota = q

	cp := *res
	ts.reservations[cp.ID] = &cp

	s.mu.Lock()
	s.byRes[cp.ID] = cp.TenantID
	s.mu.Unlock()
	return nil
}

func (s *Store) Consume(_ context.Context, handle string, finalize func(r *model.Reservation, q *model.QuotaConfig) (*model.UsageRecord, error)) (bool, error) {
	s.mu.Lock()
	tenantID, ok := s.byRes[handle]
	s.mu.Unlock()
	if !ok {
		return false, ledger.ErrUnknownReservation
	}

	ts := s.tenant(tenantID, nil)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	res := ts.reservations[handle]
	if res == nil {
		return false, ledger.ErrUnknownReservation
	}
	if res.State != model.ReservationOpen {
		return false, nil
	}

	q := ts.quota
	r := *res
	rec, err := finalize(&r, &q)
	if err != nil {
		return false, err
	}
	ts.quota = q
	*res = r
	if rec != nil {
		ts.usage = append(ts.usage, *rec)
	}
	return true, nil
}

func (s *Store) UpdateQuota(_ context.Context, tenantID int64, def model.QuotaConfig, fn func(q *model.QuotaConfig) error) error {
	ts := s.tenant(tenantID, &def)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	q := ts.quota
	if err := fn(&q); err != nil {
		return err
	}
	ts.quota = q
	return nil
}

func (s *Store) GetQuota(_ context.Context, tenantID int64) (*model.QuotaConfig, error) {
	ts := s.tenant(tenantID, nil)
	if ts == nil {
		return nil, nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	q := ts.quota
	return &q, nil
}

func (s *Store) ListStaleOpen(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	states := make([]*tenantState, 0, len(s.tenants))
	for _, ts := range s.tenants {
		states = append(states, ts)
	}
	s.mu.Unlock()

	var out []string
	for _, ts := range states {
		ts.mu.Lock()
		for id, r := range ts.reservations {
			if r.State == model.ReservationOpen && r.CreatedAt.Before(cutoff) {
				out = append(out, id)
			}
		}
		ts.mu.Unlock()
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reporting reads. They mirror the SQL aggregates so the reporter can run
// against this store in tests.

func (s *Store) records(tenantID int64) []model.UsageRecord {
	ts := s.tenant(tenantID, nil)
	if ts == nil {
		return nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]model.UsageRecord, len(ts.usage))
	copy(out, ts.usage)
	return out
}

func inWindow(r *model.UsageRecord, from, to time.Time) bool {
	return !r.CreatedAt.Before(from) && !r.CreatedAt.After(to)
}

func accumulate(t *model.UsageTotals, r *model.UsageRecord) {
	t.InputTokens += r.InputTokens
	t.OutputTokens += r.OutputTokens
	t.Cost += r.Cost
	t.Records++
}

func (s *Store) Totals(_ context.Context, tenantID int64, from, to time.Time) (model.UsageTotals, error) {
	var t model.UsageTotals
	for _, r := range s.records(tenantID) {
		if inWindow(&r, from, to) {
			accumulate(&t, &r)
		}
	}
	return t, nil
}

func (s *Store) TotalsByFeature(_ context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error) {
	return s.groupBy(tenantID, from, to, func(r *model.UsageRecord) string { return r.Feature })
}

func (s *Store) TotalsByModel(_ context.Context, tenantID int64, from, to time.Time) (map[string]model.UsageTotals, error) {
	return s.groupBy(tenantID, from, to, func(r *model.UsageRecord) string { return r.Model })
}

func (s *Store) groupBy(tenantID int64, from, to time.Time, key func(*model.UsageRecord) string) (map[string]model.UsageTotals, error) {
	out := make(map[string]model.UsageTotals)
	for _, r := range s.records(tenantID) {
		if !inWindow(&r, from, to) {
			continue
		}
		t := out[key(&r)]
		accumulate(&t, &r)
		out[key(&r)] = t
	}
	return out, nil
}

func (s *Store) Recent(_ context.Context, tenantID int64, n int) ([]model.UsageRecord, error) {
	recs := s.records(tenantID)
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

func (s *Store) GlobalTotals(_ context.Context, from, to time.Time) (model.UsageTotals, error) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var t model.UsageTotals
	for _, id := range ids {
		for _, r := range s.records(id) {
			if inWindow(&r, from, to) {
				accumulate(&t, &r)
			}
		}
	}
	return t, nil
}
