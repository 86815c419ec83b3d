// Package gormdb implements the store interfaces over a gorm-managed
// Postgres database.
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lossback/internal/models"
)

type TimerStore struct {
	db *gorm.DB
}

func NewTimerStore(db *gorm.DB) *TimerStore {
	return &TimerStore{db: db}
}

func (s *TimerStore) EnsureInit(ctx context.Context, now time.Time) error {
	st := models.CycleTimerState{
		ID:           models.CycleTimerStateID,
		LastPayoutAt: now,
		CurrentCycle: 0,
	}
	// Insert-if-absent; an existing row wins.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&st).Error
	if err != nil {
		return fmt.Errorf("init cycle timer state: %w", err)
	}
	return nil
}

func (s *TimerStore) Get(ctx context.Context) (*models.CycleTimerState, error) {
	var st models.CycleTimerState
	if err := s.db.WithContext(ctx).First(&st, models.CycleTimerStateID).Error; err != nil {
		return nil, fmt.Errorf("load cycle timer state: %w", err)
	}
	return &st, nil
}

func (s *TimerStore) TryLock(ctx context.Context, now, staleBefore time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.CycleTimerState{}).
		Where("id = ? AND (in_progress = ? OR locked_at < ?)",
			models.CycleTimerStateID, false, staleBefore).
		Updates(map[string]interface{}{
			"in_progress": true,
			"locked_at":   now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("acquire cycle lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *TimerStore) Save(ctx context.Context, st *models.CycleTimerState) error {
	st.ID = models.CycleTimerStateID
	if err := s.db.WithContext(ctx).Save(st).Error; err != nil {
		return fmt.Errorf("save cycle timer state: %w", err)
	}
	return nil
}

type PayoutStore struct {
	db *gorm.DB
}

func NewPayoutStore(db *gorm.DB) *PayoutStore {
	return &PayoutStore{db: db}
}

func (s *PayoutStore) Create(ctx context.Context, p *models.CyclePayout) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create cycle payout: %w", err)
	}
	return nil
}

func (s *PayoutStore) MarkOutcome(ctx context.Context, id uint, status string, txRef, errorDetail *string) error {
	err := s.db.WithContext(ctx).
		Model(&models.CyclePayout{}).
		Where("id = ? AND status = ?", id, models.PayoutStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"tx_ref":       txRef,
			"error_detail": errorDetail,
		}).Error
	if err != nil {
		return fmt.Errorf("mark payout %d %s: %w", id, status, err)
	}
	return nil
}

func (s *PayoutStore) ExistsForCycle(ctx context.Context, cycle int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CyclePayout{}).
		Where("cycle = ?", cycle).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count payouts for cycle %d: %w", cycle, err)
	}
	return count > 0, nil
}

func (s *PayoutStore) ListByCycle(ctx context.Context, cycle int64) ([]models.CyclePayout, error) {
	var rows []models.CyclePayout
	err := s.db.WithContext(ctx).
		Where("cycle = ?", cycle).
		Order("rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payouts for cycle %d: %w", cycle, err)
	}
	return rows, nil
}

type HolderStore struct {
	db *gorm.DB
}

func NewHolderStore(db *gorm.DB) *HolderStore {
	return &HolderStore{db: db}
}

func (s *HolderStore) Upsert(ctx context.Context, h *models.HolderSnapshot) error {
	var existing models.HolderSnapshot
	err := s.db.WithContext(ctx).Where("wallet = ?", h.Wallet).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
				return fmt.Errorf("create holder snapshot %s: %w", h.Wallet, err)
			}
			return nil
		}
		return fmt.Errorf("load holder snapshot %s: %w", h.Wallet, err)
	}
	h.ID = existing.ID
	h.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(h).Error; err != nil {
		return fmt.Errorf("update holder snapshot %s: %w", h.Wallet, err)
	}
	return nil
}

func (s *HolderStore) Get(ctx context.Context, wallet string) (*models.HolderSnapshot, error) {
	var h models.HolderSnapshot
	err := s.db.WithContext(ctx).Where("wallet = ?", wallet).First(&h).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load holder snapshot %s: %w", wallet, err)
	}
	return &h, nil
}

func (s *HolderStore) List(ctx context.Context) ([]models.HolderSnapshot, error) {
	var rows []models.HolderSnapshot
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list holder snapshots: %w", err)
	}
	return rows, nil
}

func (s *HolderStore) MarkWinner(ctx context.Context, wallet string, cycle int64, price float64, now time.Time) error {
	// The reset keeps the VWAP invariant: cost basis becomes the at-win
	// price, so the cost accumulator is rewritten to price * tokens bought.
	err := s.db.WithContext(ctx).
		Model(&models.HolderSnapshot{}).
		Where("wallet = ?", wallet).
		Updates(map[string]interface{}{
			"last_win_cycle":         cycle,
			"cost_basis":             price,
			"total_cost_basis_usd":   gorm.Expr("total_tokens_bought * ?", price),
			"cost_basis_reset_at":    now,
			"cost_basis_reset_price": price,
		}).Error
	if err != nil {
		return fmt.Errorf("mark winner %s cycle %d: %w", wallet, cycle, err)
	}
	return nil
}

type DisqualificationStore struct {
	db *gorm.DB
}

func NewDisqualificationStore(db *gorm.DB) *DisqualificationStore {
	return &DisqualificationStore{db: db}
}

func (s *DisqualificationStore) Create(ctx context.Context, d *models.Disqualification) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create disqualification for %s: %w", d.Wallet, err)
	}
	return nil
}

func (s *DisqualificationStore) ActiveWallets(ctx context.Context, now time.Time) (map[string]string, error) {
	// Lazy purge: expired overrides are deleted on read.
	if err := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.Disqualification{}).Error; err != nil {
		return nil, fmt.Errorf("purge expired disqualifications: %w", err)
	}

	var rows []models.Disqualification
	if err := s.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list active disqualifications: %w", err)
	}
	active := make(map[string]string, len(rows))
	for _, d := range rows {
		active[d.Wallet] = d.Reason
	}
	return active, nil
}
