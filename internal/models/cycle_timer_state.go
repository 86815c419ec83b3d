package models

import "time"

// CycleTimerStateID is the fixed primary key of the singleton timer row.
const CycleTimerStateID = 1

// CycleTimerState is the singleton coordination record shared by every
// process instance. InProgress together with LockedAt forms the
// cross-instance mutex: the lock is taken with a conditional update and a
// stale LockedAt lets a later caller force-clear a lock orphaned by a
// crash.
type CycleTimerState struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	LastPayoutAt   time.Time  `json:"last_payout_at"`
	CurrentCycle   int64      `json:"current_cycle"`
	FailedAttempts int        `json:"failed_attempts"`
	InProgress     bool       `json:"in_progress"`
	LockedAt       *time.Time `json:"locked_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CycleTimerState) TableName() string {
	return "cycle_timer_state"
}
