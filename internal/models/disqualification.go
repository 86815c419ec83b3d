package models

import "time"

// Disqualification is a time-bounded eligibility override, independent of
// the rules derived from the holder snapshot. Created when a wallet wins
// (cooldown) or misbehaves; expired rows are purged lazily on read.
type Disqualification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Wallet    string    `gorm:"size:100;not null;index" json:"wallet"`
	Reason    string    `gorm:"size:64;not null" json:"reason"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Disqualification) TableName() string {
	return "disqualification"
}
