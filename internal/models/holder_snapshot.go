package models

import "time"

// HolderSnapshot represents one wallet's tracked position in the reward token.
// costBasis is the volume-weighted average entry price and stays NULL until
// at least one buy is observed. It is reset to the market price when the
// wallet wins a cycle.
type HolderSnapshot struct {
	ID                 uint       `gorm:"primarykey" json:"id"`
	Wallet             string     `gorm:"size:100;not null;uniqueIndex" json:"wallet"`
	Balance            float64    `json:"balance"`
	CostBasis          *float64   `json:"cost_basis"`
	TotalTokensBought  float64    `json:"total_tokens_bought"`
	TotalCostBasisUsd  float64    `json:"total_cost_basis_usd"`
	FirstAcquisitionAt *time.Time `json:"first_acquisition_at"`
	LastActivityAt     *time.Time `json:"last_activity_at"`
	HasDisposed        bool       `json:"has_disposed"`
	HasWithdrawn       bool       `json:"has_withdrawn"`
	LastWinCycle       *int64     `json:"last_win_cycle"`
	// CostBasisResetAt and CostBasisResetPrice record a win-time reset of
	// the cost basis to the market price. Refreshes reprice all buys up to
	// the reset instant at the reset price so re-aggregation over the full
	// history stays idempotent.
	CostBasisResetAt    *time.Time `json:"cost_basis_reset_at"`
	CostBasisResetPrice *float64   `json:"cost_basis_reset_price"`
	SkippedBuys         int        `json:"skipped_buys"`
	CreatedAt           time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (HolderSnapshot) TableName() string {
	return "holder_snapshot"
}
