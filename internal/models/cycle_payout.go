package models

import "time"

// Payout row statuses. A row is created as pending before the transfer is
// attempted and never mutated again after reaching success or failed.
const (
	PayoutStatusPending = "pending"
	PayoutStatusSuccess = "success"
	PayoutStatusFailed  = "failed"
)

// CyclePayout is the immutable audit record of one payee in one cycle.
// Rank 0 is the fee recipient, ranks 1..3 are the winners.
type CyclePayout struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Cycle        int64     `gorm:"not null;index" json:"cycle"`
	Rank         int       `gorm:"not null" json:"rank"`
	Wallet       string    `gorm:"size:100;not null" json:"wallet"`
	AmountUsd    float64   `json:"amount_usd"`
	AmountNative float64   `json:"amount_native"`
	DrawdownPct  float64   `json:"drawdown_pct"`
	LossUsd      float64   `json:"loss_usd"`
	TxRef        *string   `gorm:"size:128" json:"tx_ref"`
	Status       string    `gorm:"size:16;not null" json:"status"`
	ErrorDetail  *string   `json:"error_detail"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CyclePayout) TableName() string {
	return "cycle_payout"
}
