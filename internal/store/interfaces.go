package store

import (
	"context"
	"time"

	"lossback/internal/models"
)

// TimerStore manages the singleton cycle timer record. TryLock is the
// cross-instance mutex: it must be an atomic compare-and-set, never a
// read-then-write.
type TimerStore interface {
	// EnsureInit creates the singleton row if it does not exist yet.
	EnsureInit(ctx context.Context, now time.Time) error

	// Get returns the current timer state.
	Get(ctx context.Context) (*models.CycleTimerState, error)

	// TryLock atomically marks the timer in-progress. It succeeds when the
	// lock is free, or held but locked before staleBefore (crash recovery).
	// Returns false without error when another instance holds the lock.
	TryLock(ctx context.Context, now, staleBefore time.Time) (bool, error)

	// Save persists the full timer state. Only the lock holder calls this.
	Save(ctx context.Context, st *models.CycleTimerState) error
}

// PayoutStore manages the immutable cycle payout audit rows.
type PayoutStore interface {
	// Create inserts a pending payout row and fills its ID.
	Create(ctx context.Context, p *models.CyclePayout) error

	// MarkOutcome records the terminal status of one payout row.
	MarkOutcome(ctx context.Context, id uint, status string, txRef, errorDetail *string) error

	// ExistsForCycle reports whether any payout row exists for the cycle.
	ExistsForCycle(ctx context.Context, cycle int64) (bool, error)

	// ListByCycle returns all payout rows for a cycle, rank order.
	ListByCycle(ctx context.Context, cycle int64) ([]models.CyclePayout, error)
}

// HolderStore persists holder snapshots between refreshes and instances.
type HolderStore interface {
	// Upsert writes a snapshot keyed by wallet.
	Upsert(ctx context.Context, h *models.HolderSnapshot) error

	// Get returns the snapshot for a wallet, nil when unknown.
	Get(ctx context.Context, wallet string) (*models.HolderSnapshot, error)

	// List returns all snapshots.
	List(ctx context.Context) ([]models.HolderSnapshot, error)

	// MarkWinner records a win: sets the last win cycle and resets the
	// wallet's cost basis to the given market price as of now.
	MarkWinner(ctx context.Context, wallet string, cycle int64, price float64, now time.Time) error
}

// DisqualificationStore manages time-bounded eligibility overrides.
type DisqualificationStore interface {
	// Create inserts an override.
	Create(ctx context.Context, d *models.Disqualification) error

	// ActiveWallets returns wallet→reason for unexpired overrides and
	// lazily purges expired rows.
	ActiveWallets(ctx context.Context, now time.Time) (map[string]string, error)
}
