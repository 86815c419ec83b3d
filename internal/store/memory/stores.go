// Package memory holds in-memory store implementations used by unit tests
// and local runs without a database.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"lossback/internal/models"
)

type TimerStore struct {
	mu sync.Mutex
	st *models.CycleTimerState
}

func NewTimerStore() *TimerStore {
	return &TimerStore{}
}

func (s *TimerStore) EnsureInit(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		s.st = &models.CycleTimerState{
			ID:           models.CycleTimerStateID,
			LastPayoutAt: now,
		}
	}
	return nil
}

func (s *TimerStore) Get(ctx context.Context) (*models.CycleTimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil, errors.New("cycle timer state not initialized")
	}
	cp := *s.st
	return &cp, nil
}

func (s *TimerStore) TryLock(ctx context.Context, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return false, errors.New("cycle timer state not initialized")
	}
	if s.st.InProgress && (s.st.LockedAt == nil || !s.st.LockedAt.Before(staleBefore)) {
		return false, nil
	}
	s.st.InProgress = true
	t := now
	s.st.LockedAt = &t
	return true, nil
}

func (s *TimerStore) Save(ctx context.Context, st *models.CycleTimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	cp.ID = models.CycleTimerStateID
	s.st = &cp
	return nil
}

type PayoutStore struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.CyclePayout
}

func NewPayoutStore() *PayoutStore {
	return &PayoutStore{nextID: 1}
}

func (s *PayoutStore) Create(ctx context.Context, p *models.CyclePayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, *p)
	return nil
}

func (s *PayoutStore) MarkOutcome(ctx context.Context, id uint, status string, txRef, errorDetail *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].Status == models.PayoutStatusPending {
			s.rows[i].Status = status
			s.rows[i].TxRef = txRef
			s.rows[i].ErrorDetail = errorDetail
			return nil
		}
	}
	return nil
}

func (s *PayoutStore) ExistsForCycle(ctx context.Context, cycle int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Cycle == cycle {
			return true, nil
		}
	}
	return false, nil
}

func (s *PayoutStore) ListByCycle(ctx context.Context, cycle int64) ([]models.CyclePayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CyclePayout
	for _, r := range s.rows {
		if r.Cycle == cycle {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

type HolderStore struct {
	mu       sync.Mutex
	nextID   uint
	byWallet map[string]*models.HolderSnapshot
}

func NewHolderStore() *HolderStore {
	return &HolderStore{nextID: 1, byWallet: make(map[string]*models.HolderSnapshot)}
}

func (s *HolderStore) Upsert(ctx context.Context, h *models.HolderSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byWallet[h.Wallet]; ok {
		h.ID = existing.ID
	} else {
		h.ID = s.nextID
		s.nextID++
	}
	cp := *h
	s.byWallet[h.Wallet] = &cp
	return nil
}

func (s *HolderStore) Get(ctx context.Context, wallet string) (*models.HolderSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byWallet[wallet]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (s *HolderStore) List(ctx context.Context) ([]models.HolderSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HolderSnapshot, 0, len(s.byWallet))
	for _, h := range s.byWallet {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

func (s *HolderStore) MarkWinner(ctx context.Context, wallet string, cycle int64, price float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byWallet[wallet]
	if !ok {
		return nil
	}
	c := cycle
	h.LastWinCycle = &c
	p := price
	h.CostBasis = &p
	h.TotalCostBasisUsd = h.TotalTokensBought * price
	t := now
	h.CostBasisResetAt = &t
	rp := price
	h.CostBasisResetPrice = &rp
	return nil
}

type DisqualificationStore struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.Disqualification
}

func NewDisqualificationStore() *DisqualificationStore {
	return &DisqualificationStore{nextID: 1}
}

func (s *DisqualificationStore) Create(ctx context.Context, d *models.Disqualification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, *d)
	return nil
}

func (s *DisqualificationStore) ActiveWallets(ctx context.Context, now time.Time) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	active := make(map[string]string)
	for _, d := range s.rows {
		if d.ExpiresAt.After(now) {
			kept = append(kept, d)
			active[d.Wallet] = d.Reason
		}
	}
	s.rows = kept
	return active, nil
}
