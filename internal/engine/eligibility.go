package engine

import (
	"time"

	"lossback/internal/models"
)

// Ineligibility reasons, reported to downstream consumers verbatim.
const (
	ReasonInsufficientBalance = "Insufficient balance"
	ReasonNoBuyHistory        = "No buy history"
	ReasonHoldDurationNotMet  = "Hold duration not met"
	ReasonSoldTokens          = "Sold tokens"
	ReasonTransferredOut      = "Transferred out"
	ReasonWinnerCooldown      = "Winner cooldown"
	ReasonInProfit            = "In profit"
	ReasonLossBelowThreshold  = "Loss below threshold"
)

// EligibilityResult is the derived classification of one holder for one
// cycle. DrawdownPct and LossUsd are filled even for ineligible holders so
// consumers can explain the outcome; both are 0 when no cost basis exists.
type EligibilityResult struct {
	Wallet      string  `json:"wallet"`
	Eligible    bool    `json:"eligible"`
	Reason      string  `json:"reason,omitempty"`
	DrawdownPct float64 `json:"drawdown_pct"`
	LossUsd     float64 `json:"loss_usd"`
}

// Drawdown returns the percentage gap between the current price and the
// cost basis. Negative means underwater. An absent or non-positive cost
// basis yields 0.
func Drawdown(costBasis *float64, currentPrice float64) float64 {
	if costBasis == nil || *costBasis <= 0 {
		return 0
	}
	return (currentPrice - *costBasis) / *costBasis * 100
}

// lossUsd sizes the holder's unrealized loss. The position is capped at
// totalTokensBought so transferred-in tokens cannot inflate the loss
// beyond what the wallet actually paid for.
func lossUsd(h *models.HolderSnapshot, currentPrice float64) float64 {
	if h.CostBasis == nil || *h.CostBasis <= 0 {
		return 0
	}
	held := h.Balance
	if h.TotalTokensBought < held {
		held = h.TotalTokensBought
	}
	return (*h.CostBasis - currentPrice) * held
}

// Classify applies the eligibility rules in their fixed order, stopping at
// the first failure. The order is part of the contract: a holder failing
// several rules always reports the earliest one.
func Classify(h *models.HolderSnapshot, currentPrice, poolValueUsd float64, currentCycle int64, cfg Config, now time.Time) EligibilityResult {
	res := EligibilityResult{
		Wallet:      h.Wallet,
		DrawdownPct: Drawdown(h.CostBasis, currentPrice),
		LossUsd:     lossUsd(h, currentPrice),
	}

	switch {
	case h.Balance < cfg.MinHolding:
		res.Reason = ReasonInsufficientBalance
	case h.CostBasis == nil || *h.CostBasis <= 0:
		res.Reason = ReasonNoBuyHistory
	case h.FirstAcquisitionAt == nil:
		res.Reason = ReasonNoBuyHistory
	case now.Sub(*h.FirstAcquisitionAt).Hours() < cfg.MinHoldHours:
		res.Reason = ReasonHoldDurationNotMet
	case h.HasDisposed:
		res.Reason = ReasonSoldTokens
	case h.HasWithdrawn:
		res.Reason = ReasonTransferredOut
	case h.LastWinCycle != nil && *h.LastWinCycle >= currentCycle-cfg.CooldownCycles:
		res.Reason = ReasonWinnerCooldown
	case res.DrawdownPct >= 0:
		res.Reason = ReasonInProfit
	case res.LossUsd < poolValueUsd*cfg.MinLossPct/100:
		res.Reason = ReasonLossBelowThreshold
	default:
		res.Eligible = true
	}
	return res
}
