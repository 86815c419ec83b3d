package engine

import (
	"context"

	"lossback/internal/models"
)

// PriceOracle supplies the current USD price of an asset.
type PriceOracle interface {
	AssetPrice(ctx context.Context, mint string) (float64, error)
}

// BalanceSource reads a wallet's native balance in human units.
type BalanceSource interface {
	Balance(ctx context.Context, wallet string) (float64, error)
}

// Transferer moves native funds to a destination wallet and returns a
// transaction reference. The underlying primitive gives no dedupe
// guarantee, which is why payout rows are persisted before calling it.
type Transferer interface {
	Transfer(ctx context.Context, destination string, amountNative float64) (string, error)
}

// HolderView is the orchestrator's read surface over the holder cache.
// Snapshot is an eventually-consistent copy; a slightly stale ranking is
// preferred over blocking payouts on a full rescan.
type HolderView interface {
	Snapshot() []models.HolderSnapshot
	ApplyWin(wallet string, cycle int64, price float64)
}

// Notifier publishes cycle results for downstream consumers. Matches the
// message queue publisher; a nil Notifier disables publishing.
type Notifier interface {
	Publish(queueName string, message interface{}) error
}
