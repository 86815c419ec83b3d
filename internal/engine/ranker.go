package engine

import "sort"

// RankedEntry is one row of the cycle leaderboard. Rank is 1-based, dense
// and gapless.
type RankedEntry struct {
	Wallet      string  `json:"wallet"`
	DrawdownPct float64 `json:"drawdown_pct"`
	LossUsd     float64 `json:"loss_usd"`
	Rank        int     `json:"rank"`
}

// RankLosers filters to eligible holders and orders them worst-first:
// drawdown ascending (most negative first), then loss USD descending.
// Wallet address breaks any remaining tie so the order is a total order,
// identical across repeated invocations and process instances.
func RankLosers(results []EligibilityResult) []RankedEntry {
	entries := make([]RankedEntry, 0, len(results))
	for _, r := range results {
		if !r.Eligible {
			continue
		}
		entries = append(entries, RankedEntry{
			Wallet:      r.Wallet,
			DrawdownPct: r.DrawdownPct,
			LossUsd:     r.LossUsd,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DrawdownPct != b.DrawdownPct {
			return a.DrawdownPct < b.DrawdownPct
		}
		if a.LossUsd != b.LossUsd {
			return a.LossUsd > b.LossUsd
		}
		return a.Wallet < b.Wallet
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
