package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankLosers(t *testing.T) {
	t.Run("orders by drawdown then loss then wallet", func(t *testing.T) {
		results := []EligibilityResult{
			{Wallet: "w-mild", Eligible: true, DrawdownPct: -20, LossUsd: 500},
			{Wallet: "w-deep", Eligible: true, DrawdownPct: -80, LossUsd: 100},
			{Wallet: "w-big-loss", Eligible: true, DrawdownPct: -20, LossUsd: 900},
			{Wallet: "w-blocked", Eligible: false, Reason: ReasonSoldTokens, DrawdownPct: -95, LossUsd: 9999},
		}

		ranked := RankLosers(results)
		require.Len(t, ranked, 3)
		assert.Equal(t, "w-deep", ranked[0].Wallet)
		assert.Equal(t, "w-big-loss", ranked[1].Wallet)
		assert.Equal(t, "w-mild", ranked[2].Wallet)
	})

	t.Run("exact ties resolved by wallet", func(t *testing.T) {
		results := []EligibilityResult{
			{Wallet: "charlie", Eligible: true, DrawdownPct: -50, LossUsd: 100},
			{Wallet: "alice", Eligible: true, DrawdownPct: -50, LossUsd: 100},
			{Wallet: "bob", Eligible: true, DrawdownPct: -50, LossUsd: 100},
		}

		first := RankLosers(results)
		second := RankLosers(results)
		assert.Equal(t, first, second)

		require.Len(t, first, 3)
		assert.Equal(t, "alice", first[0].Wallet)
		assert.Equal(t, "bob", first[1].Wallet)
		assert.Equal(t, "charlie", first[2].Wallet)
	})

	t.Run("ranks are dense and one based", func(t *testing.T) {
		results := []EligibilityResult{
			{Wallet: "a", Eligible: true, DrawdownPct: -10, LossUsd: 1},
			{Wallet: "b", Eligible: false, Reason: ReasonInProfit},
			{Wallet: "c", Eligible: true, DrawdownPct: -30, LossUsd: 1},
		}

		ranked := RankLosers(results)
		require.Len(t, ranked, 2)
		assert.Equal(t, 1, ranked[0].Rank)
		assert.Equal(t, 2, ranked[1].Rank)
	})

	t.Run("empty input yields empty leaderboard", func(t *testing.T) {
		assert.Empty(t, RankLosers(nil))
		assert.Empty(t, RankLosers([]EligibilityResult{{Wallet: "x", Eligible: false}}))
	})
}
