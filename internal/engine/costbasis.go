package engine

import "time"

// Transaction event kinds, as classified by the indexing provider.
const (
	EventBuy         = "BUY"
	EventSell        = "SELL"
	EventTransferIn  = "TRANSFER_IN"
	EventTransferOut = "TRANSFER_OUT"
)

// Event is one wallet transaction touching the reward token. UsdValue is
// only meaningful for buys and is nil when the indexer could not resolve a
// counter-leg value for the swap.
type Event struct {
	Kind        string
	Timestamp   time.Time
	TokenAmount float64
	UsdValue    *float64
}

// Position is the cost-basis view of a wallet derived from its full event
// history. CostBasis is nil until at least one priced buy is observed.
type Position struct {
	TotalTokensBought float64
	TotalCostBasisUsd float64
	CostBasis         *float64
	HasDisposed       bool
	HasWithdrawn      bool
	FirstBuyAt        *time.Time
	LastEventAt       *time.Time
	// SkippedBuys counts buys excluded from the accumulators because no
	// USD value could be resolved. They are never treated as zero-cost.
	SkippedBuys int
}

// AggregateCostBasis folds a chronologically ordered event list into a
// volume-weighted average entry price. Pure transform: re-running it over
// the same (or a fuller) history is safe and yields the same result.
func AggregateCostBasis(events []Event) Position {
	var pos Position

	for _, ev := range events {
		ts := ev.Timestamp
		if pos.LastEventAt == nil || ts.After(*pos.LastEventAt) {
			t := ts
			pos.LastEventAt = &t
		}

		switch ev.Kind {
		case EventBuy:
			if pos.FirstBuyAt == nil || ts.Before(*pos.FirstBuyAt) {
				t := ts
				pos.FirstBuyAt = &t
			}
			if ev.UsdValue == nil {
				pos.SkippedBuys++
				continue
			}
			pos.TotalTokensBought += ev.TokenAmount
			pos.TotalCostBasisUsd += *ev.UsdValue
		case EventSell:
			pos.HasDisposed = true
		case EventTransferOut:
			pos.HasWithdrawn = true
		case EventTransferIn:
			// Transferred-in tokens carry no cost; balance tracking is the
			// indexer's concern, not the aggregator's.
		}
	}

	if pos.TotalTokensBought > 0 {
		vwap := pos.TotalCostBasisUsd / pos.TotalTokensBought
		pos.CostBasis = &vwap
	}
	return pos
}
