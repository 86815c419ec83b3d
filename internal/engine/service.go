package engine

import (
	"context"
	"fmt"
)

// GetRankedLosers returns the current leaderboard of eligible underwater
// holders, worst first. Read path: computed from the cache snapshot and
// live prices, never touches the cycle lock.
func (o *Orchestrator) GetRankedLosers(ctx context.Context) ([]RankedEntry, error) {
	now := o.now()

	st, err := o.timer.Get(ctx)
	if err != nil {
		return nil, err
	}

	tokenPrice, err := o.prices.AssetPrice(ctx, o.cfg.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("token price unavailable: %w", err)
	}
	nativePrice, err := o.prices.AssetPrice(ctx, o.cfg.NativeMint)
	if err != nil {
		return nil, fmt.Errorf("native price unavailable: %w", err)
	}
	balance, err := o.balances.Balance(ctx, o.cfg.SourceWallet)
	if err != nil {
		return nil, fmt.Errorf("pool balance unavailable: %w", err)
	}
	poolValueUsd := balance * o.cfg.PoolFraction * nativePrice

	return o.rankForCycle(ctx, tokenPrice, poolValueUsd, st.CurrentCycle+1, now), nil
}

// GetCycleStatus reports the countdown to the next payout and the cycle
// number currently accruing.
func (o *Orchestrator) GetCycleStatus(ctx context.Context) (CycleStatus, error) {
	st, err := o.timer.Get(ctx)
	if err != nil {
		return CycleStatus{}, err
	}
	remaining := o.cfg.Interval - o.now().Sub(st.LastPayoutAt)
	if remaining < 0 {
		remaining = 0
	}
	return CycleStatus{
		SecondsUntilNext: int64(remaining.Seconds()),
		CurrentCycle:     st.CurrentCycle + 1,
	}, nil
}
