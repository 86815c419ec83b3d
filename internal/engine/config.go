package engine

import "time"

// Config holds the engine tunables. DefaultConfig matches the production
// reward campaign; tests override individual fields.
type Config struct {
	// Eligibility thresholds.
	MinHolding   float64 // minimum token balance, human units
	MinHoldHours float64 // minimum hold duration since first buy
	MinLossPct   float64 // loss must be at least this % of the pool value

	// Payout cycle.
	Interval            time.Duration // one payout interval
	MaxAttempts         int           // bounded retries per interval
	PoolFraction        float64       // distributable share of the source balance
	FeeFraction         float64       // fee recipient share of the distributable pool
	Split               Split         // winner split of the post-fee pool
	MinPoolNative       float64       // below this the cycle is skipped
	MinTransferNative   float64       // sub-minimum payee amounts are not attempted
	LockStaleAfter      time.Duration // force-clear a held lock older than this
	CooldownCycles      int64         // disqualification window for winners
	FeeWallet           string        // rank-0 payee
	TransferConcurrency int           // parallel transfer calls per cycle

	// Assets and accounts.
	TokenMint    string // reward token mint, priced for drawdown
	NativeMint   string // native asset mint, priced for pool USD value
	SourceWallet string // pool source wallet whose balance funds payouts
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	interval := time.Hour
	return Config{
		MinHolding:          1000,
		MinHoldHours:        1,
		MinLossPct:          0.1,
		Interval:            interval,
		MaxAttempts:         3,
		PoolFraction:        0.90,
		FeeFraction:         0.10,
		Split:               DefaultSplit(),
		MinPoolNative:       0.05,
		MinTransferNative:   0.001,
		LockStaleAfter:      2 * interval,
		CooldownCycles:      1,
		TransferConcurrency: 3,
	}
}
