package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(v float64) *float64 {
	return &v
}

func TestAggregateCostBasis(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("volume weighted average across buys", func(t *testing.T) {
		events := []Event{
			{Kind: EventBuy, Timestamp: base, TokenAmount: 1_000_000, UsdValue: usd(100)},
			{Kind: EventBuy, Timestamp: base.Add(time.Hour), TokenAmount: 500_000, UsdValue: usd(100)},
		}

		pos := AggregateCostBasis(events)
		require.NotNil(t, pos.CostBasis)
		assert.InDelta(t, 0.000133333, *pos.CostBasis, 1e-9)
		assert.Equal(t, 1_500_000.0, pos.TotalTokensBought)
		assert.Equal(t, 200.0, pos.TotalCostBasisUsd)
	})

	t.Run("idempotent over the same history", func(t *testing.T) {
		events := []Event{
			{Kind: EventBuy, Timestamp: base, TokenAmount: 1000, UsdValue: usd(25)},
			{Kind: EventSell, Timestamp: base.Add(time.Hour), TokenAmount: 200},
			{Kind: EventBuy, Timestamp: base.Add(2 * time.Hour), TokenAmount: 500, UsdValue: usd(10)},
		}

		first := AggregateCostBasis(events)
		second := AggregateCostBasis(events)
		assert.Equal(t, first, second)
	})

	t.Run("sells flag disposal without reducing accumulators", func(t *testing.T) {
		events := []Event{
			{Kind: EventBuy, Timestamp: base, TokenAmount: 1000, UsdValue: usd(100)},
			{Kind: EventSell, Timestamp: base.Add(time.Hour), TokenAmount: 900},
		}

		pos := AggregateCostBasis(events)
		assert.True(t, pos.HasDisposed)
		assert.Equal(t, 1000.0, pos.TotalTokensBought)
		assert.Equal(t, 100.0, pos.TotalCostBasisUsd)
		require.NotNil(t, pos.CostBasis)
		assert.InDelta(t, 0.1, *pos.CostBasis, 1e-12)
	})

	t.Run("transfer out flags withdrawal", func(t *testing.T) {
		events := []Event{
			{Kind: EventBuy, Timestamp: base, TokenAmount: 1000, UsdValue: usd(100)},
			{Kind: EventTransferOut, Timestamp: base.Add(time.Hour), TokenAmount: 100},
		}

		pos := AggregateCostBasis(events)
		assert.True(t, pos.HasWithdrawn)
		assert.False(t, pos.HasDisposed)
	})

	t.Run("no buys leaves cost basis nil", func(t *testing.T) {
		events := []Event{
			{Kind: EventTransferIn, Timestamp: base, TokenAmount: 5000},
		}

		pos := AggregateCostBasis(events)
		assert.Nil(t, pos.CostBasis)
		assert.Nil(t, pos.FirstBuyAt)
		assert.Zero(t, pos.TotalTokensBought)
	})

	t.Run("unpriced buys are skipped not zero cost", func(t *testing.T) {
		events := []Event{
			{Kind: EventBuy, Timestamp: base, TokenAmount: 1000, UsdValue: usd(100)},
			{Kind: EventBuy, Timestamp: base.Add(time.Hour), TokenAmount: 9000},
		}

		pos := AggregateCostBasis(events)
		assert.Equal(t, 1, pos.SkippedBuys)
		assert.Equal(t, 1000.0, pos.TotalTokensBought)
		require.NotNil(t, pos.CostBasis)
		assert.InDelta(t, 0.1, *pos.CostBasis, 1e-12)
	})

	t.Run("tracks first buy and last activity", func(t *testing.T) {
		events := []Event{
			{Kind: EventTransferIn, Timestamp: base.Add(-time.Hour), TokenAmount: 10},
			{Kind: EventBuy, Timestamp: base, TokenAmount: 1000, UsdValue: usd(1)},
			{Kind: EventBuy, Timestamp: base.Add(time.Hour), TokenAmount: 1000, UsdValue: usd(1)},
			{Kind: EventSell, Timestamp: base.Add(3 * time.Hour), TokenAmount: 10},
		}

		pos := AggregateCostBasis(events)
		require.NotNil(t, pos.FirstBuyAt)
		assert.Equal(t, base, *pos.FirstBuyAt)
		require.NotNil(t, pos.LastEventAt)
		assert.Equal(t, base.Add(3*time.Hour), *pos.LastEventAt)
	})
}
