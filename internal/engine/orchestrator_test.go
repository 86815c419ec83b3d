package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lossback/internal/models"
	"lossback/internal/store/memory"
)

type stubPrices struct {
	prices map[string]float64
	err    error
}

func (s *stubPrices) AssetPrice(ctx context.Context, mint string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.prices[mint], nil
}

type stubBalances struct {
	balance float64
	err     error
}

func (s *stubBalances) Balance(ctx context.Context, wallet string) (float64, error) {
	return s.balance, s.err
}

type stubTransferer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (s *stubTransferer) Transfer(ctx context.Context, destination string, amountNative float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[destination]; ok {
		return "", err
	}
	s.calls = append(s.calls, destination)
	return "tx-" + destination, nil
}

func (s *stubTransferer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubView struct {
	mu      sync.Mutex
	holders []models.HolderSnapshot
	wins    []string
}

func (v *stubView) Snapshot() []models.HolderSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.HolderSnapshot, len(v.holders))
	copy(out, v.holders)
	return out
}

func (v *stubView) ApplyWin(wallet string, cycle int64, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.wins = append(v.wins, wallet)
}

type harness struct {
	orch     *Orchestrator
	cfg      Config
	timer    *memory.TimerStore
	payouts  *memory.PayoutStore
	holders  *memory.HolderStore
	disq     *memory.DisqualificationStore
	view     *stubView
	prices   *stubPrices
	balances *stubBalances
	transfer *stubTransferer
	now      time.Time
}

const (
	testMint   = "TOKEN-MINT"
	testNative = "NATIVE-MINT"
)

// snapshotAt builds a holder that is eligible at price 0.10 with the given
// cost basis.
func snapshotAt(wallet string, costBasis float64, now time.Time) models.HolderSnapshot {
	firstBuy := now.Add(-48 * time.Hour)
	return models.HolderSnapshot{
		Wallet:             wallet,
		Balance:            50_000,
		CostBasis:          usd(costBasis),
		TotalTokensBought:  50_000,
		TotalCostBasisUsd:  costBasis * 50_000,
		FirstAcquisitionAt: &firstBuy,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.MinHoldHours = 1
	cfg.FeeWallet = "fee-wallet"
	cfg.TokenMint = testMint
	cfg.NativeMint = testNative
	cfg.SourceWallet = "pool-wallet"

	h := &harness{
		cfg:      cfg,
		timer:    memory.NewTimerStore(),
		payouts:  memory.NewPayoutStore(),
		holders:  memory.NewHolderStore(),
		disq:     memory.NewDisqualificationStore(),
		prices:   &stubPrices{prices: map[string]float64{testMint: 0.10, testNative: 100}},
		balances: &stubBalances{balance: 10},
		transfer: &stubTransferer{},
		now:      now,
	}
	h.view = &stubView{holders: []models.HolderSnapshot{
		snapshotAt("wallet-deep", 0.50, now),
		snapshotAt("wallet-mid", 0.25, now),
		snapshotAt("wallet-mild", 0.20, now),
	}}
	for i := range h.view.holders {
		require.NoError(t, h.holders.Upsert(context.Background(), &h.view.holders[i]))
	}

	orch, err := New(Options{
		Config:                cfg,
		TimerStore:            h.timer,
		PayoutStore:           h.payouts,
		HolderStore:           h.holders,
		DisqualificationStore: h.disq,
		Holders:               h.view,
		Prices:                h.prices,
		Balances:              h.balances,
		Transfer:              h.transfer,
		Now:                   func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.orch = orch

	// Seed the timer one interval in the past so a cycle is due.
	require.NoError(t, h.timer.EnsureInit(context.Background(), now.Add(-cfg.Interval)))
	return h
}

func (h *harness) timerState(t *testing.T) *models.CycleTimerState {
	t.Helper()
	st, err := h.timer.Get(context.Background())
	require.NoError(t, err)
	return st
}

func TestAttemptPayoutCycleSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.orch.AttemptPayoutCycle(ctx)
	require.Equal(t, CycleSuccess, res.Status)
	assert.Empty(t, res.Reason)
	assert.Equal(t, int64(1), res.Cycle)
	require.Len(t, res.Payees, 4)

	// balance 10, pool 9: fee 0.9, winner pool 8.1 split 80/15/5
	fee := res.Payees[0]
	assert.Equal(t, 0, fee.Rank)
	assert.Equal(t, "fee-wallet", fee.Wallet)
	assert.InDelta(t, 0.9, fee.AmountNative, 1e-9)
	assert.Equal(t, PayeeSuccess, fee.Status)

	assert.Equal(t, "wallet-deep", res.Payees[1].Wallet)
	assert.InDelta(t, 6.48, res.Payees[1].AmountNative, 1e-9)
	assert.Equal(t, "wallet-mid", res.Payees[2].Wallet)
	assert.InDelta(t, 1.215, res.Payees[2].AmountNative, 1e-9)
	assert.Equal(t, "wallet-mild", res.Payees[3].Wallet)
	assert.InDelta(t, 0.405, res.Payees[3].AmountNative, 1e-9)

	rows, err := h.payouts.ListByCycle(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Equal(t, models.PayoutStatusSuccess, row.Status)
		require.NotNil(t, row.TxRef)
		assert.Equal(t, "tx-"+row.Wallet, *row.TxRef)
	}

	st := h.timerState(t)
	assert.Equal(t, int64(1), st.CurrentCycle)
	assert.False(t, st.InProgress)
	assert.Zero(t, st.FailedAttempts)
	assert.Equal(t, h.now, st.LastPayoutAt)

	// Winner bookkeeping: persisted reset plus immediate cache update.
	winner, err := h.holders.Get(ctx, "wallet-deep")
	require.NoError(t, err)
	require.NotNil(t, winner.LastWinCycle)
	assert.Equal(t, int64(1), *winner.LastWinCycle)
	require.NotNil(t, winner.CostBasis)
	assert.InDelta(t, 0.10, *winner.CostBasis, 1e-12)
	assert.ElementsMatch(t, []string{"wallet-deep", "wallet-mid", "wallet-mild"}, h.view.wins)

	active, err := h.disq.ActiveWallets(ctx, h.now)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	assert.Equal(t, ReasonWinnerCooldown, active["wallet-deep"])
}

func TestAtMostOncePerInterval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const callers = 10
	results := make([]CycleResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.orch.AttemptPayoutCycle(ctx)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, res := range results {
		switch res.Status {
		case CycleSuccess:
			successes++
		case CycleBusy, CycleSkipped:
		default:
			t.Fatalf("unexpected status %q (%s)", res.Status, res.Reason)
		}
	}
	assert.Equal(t, 1, successes)

	// Exactly one cycle's worth of transfers and rows.
	assert.Equal(t, 4, h.transfer.callCount())
	rows, err := h.payouts.ListByCycle(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, int64(1), h.timerState(t).CurrentCycle)
}

func TestPartialFailureIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.transfer.fail = map[string]error{"wallet-mid": errors.New("rpc node rejected transaction")}

	res := h.orch.AttemptPayoutCycle(ctx)
	require.Equal(t, CycleSuccess, res.Status)
	assert.Equal(t, "partial failure", res.Reason)

	byWallet := map[string]PayeeOutcome{}
	for _, p := range res.Payees {
		byWallet[p.Wallet] = p
	}
	assert.Equal(t, PayeeSuccess, byWallet["wallet-deep"].Status)
	assert.Equal(t, PayeeFailed, byWallet["wallet-mid"].Status)
	assert.Contains(t, byWallet["wallet-mid"].Error, "rejected")
	assert.Equal(t, PayeeSuccess, byWallet["wallet-mild"].Status)

	rows, err := h.payouts.ListByCycle(ctx, 1)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Wallet == "wallet-mid" {
			assert.Equal(t, models.PayoutStatusFailed, row.Status)
			require.NotNil(t, row.ErrorDetail)
		} else {
			assert.Equal(t, models.PayoutStatusSuccess, row.Status)
		}
	}

	// The failed payee keeps its eligibility state untouched.
	failed, err := h.holders.Get(ctx, "wallet-mid")
	require.NoError(t, err)
	assert.Nil(t, failed.LastWinCycle)
	assert.NotContains(t, h.view.wins, "wallet-mid")

	// One payee failing never blocks the cycle from advancing.
	assert.Equal(t, int64(1), h.timerState(t).CurrentCycle)
}

func TestSkipAndGuardPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("not due", func(t *testing.T) {
		h := newHarness(t)
		st := h.timerState(t)
		st.LastPayoutAt = h.now
		require.NoError(t, h.timer.Save(ctx, st))

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleSkipped, res.Status)
		assert.Equal(t, ReasonNotDue, res.Reason)
		assert.Zero(t, h.transfer.callCount())
		assert.Zero(t, h.timerState(t).CurrentCycle)
	})

	t.Run("pool below minimum advances the cycle", func(t *testing.T) {
		h := newHarness(t)
		h.balances.balance = 0.01

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleSkipped, res.Status)
		assert.Equal(t, ReasonPoolBelowMinimum, res.Reason)
		assert.Zero(t, h.transfer.callCount())

		st := h.timerState(t)
		assert.Equal(t, int64(1), st.CurrentCycle)
		assert.False(t, st.InProgress)
	})

	t.Run("no eligible winners advances the cycle", func(t *testing.T) {
		h := newHarness(t)
		h.view.holders = nil

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleSkipped, res.Status)
		assert.Equal(t, ReasonNoEligibleWinners, res.Reason)
		assert.Equal(t, int64(1), h.timerState(t).CurrentCycle)
	})

	t.Run("price unavailable advances the cycle", func(t *testing.T) {
		h := newHarness(t)
		h.prices.err = errors.New("price feed down")

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleSkipped, res.Status)
		assert.Equal(t, ReasonPriceUnavailable, res.Reason)
		assert.Equal(t, int64(1), h.timerState(t).CurrentCycle)
	})

	t.Run("max attempts releases the lock without advancing", func(t *testing.T) {
		h := newHarness(t)
		st := h.timerState(t)
		st.FailedAttempts = h.cfg.MaxAttempts
		require.NoError(t, h.timer.Save(ctx, st))

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleSkipped, res.Status)
		assert.Equal(t, ReasonMaxAttempts, res.Reason)
		assert.Zero(t, h.transfer.callCount())

		st = h.timerState(t)
		assert.Zero(t, st.CurrentCycle)
		assert.False(t, st.InProgress)
	})

	t.Run("already paid advances past the settled cycle", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.payouts.Create(ctx, &models.CyclePayout{
			Cycle: 1, Rank: 1, Wallet: "wallet-deep", Status: models.PayoutStatusSuccess,
		}))

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleSkipped, res.Status)
		assert.Equal(t, ReasonAlreadyPaid, res.Reason)
		assert.Zero(t, h.transfer.callCount())

		// Persisted rows prove the cycle ran: the timer moves on.
		st := h.timerState(t)
		assert.Equal(t, int64(1), st.CurrentCycle)
		assert.False(t, st.InProgress)
	})

	t.Run("busy while another caller holds the lock", func(t *testing.T) {
		h := newHarness(t)
		st := h.timerState(t)
		st.InProgress = true
		lockedAt := h.now.Add(-10 * time.Minute)
		st.LockedAt = &lockedAt
		require.NoError(t, h.timer.Save(ctx, st))

		res := h.orch.AttemptPayoutCycle(ctx)
		assert.Equal(t, CycleBusy, res.Status)
		assert.Equal(t, ReasonAlreadyInProgress, res.Reason)
		assert.Zero(t, h.transfer.callCount())
	})
}

func TestStaleLockRecovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A crashed instance left the lock held well past the staleness bound.
	st := h.timerState(t)
	st.InProgress = true
	lockedAt := h.now.Add(-3 * time.Hour)
	st.LockedAt = &lockedAt
	require.NoError(t, h.timer.Save(ctx, st))

	res := h.orch.AttemptPayoutCycle(ctx)
	assert.Equal(t, CycleSuccess, res.Status)
	assert.Equal(t, int64(1), h.timerState(t).CurrentCycle)
}

func TestCrashRecoveryAdvancesPastPersistedPayouts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A previous instance persisted cycle-1 payout rows and crashed before
	// advancing the timer; its lock has since expired or been released.
	require.NoError(t, h.payouts.Create(ctx, &models.CyclePayout{
		Cycle: 1, Rank: 0, Wallet: "fee-wallet", Status: models.PayoutStatusSuccess,
	}))
	require.NoError(t, h.payouts.Create(ctx, &models.CyclePayout{
		Cycle: 1, Rank: 1, Wallet: "wallet-deep", Status: models.PayoutStatusSuccess,
	}))

	res := h.orch.AttemptPayoutCycle(ctx)
	assert.Equal(t, CycleSkipped, res.Status)
	assert.Equal(t, ReasonAlreadyPaid, res.Reason)
	assert.Zero(t, h.transfer.callCount())

	// The recovery consumed the interval instead of wedging on the guard.
	st := h.timerState(t)
	assert.Equal(t, int64(1), st.CurrentCycle)
	assert.False(t, st.InProgress)
	assert.Equal(t, h.now, st.LastPayoutAt)

	// Repeated attempts in the same interval are a plain not-due skip.
	res = h.orch.AttemptPayoutCycle(ctx)
	assert.Equal(t, CycleSkipped, res.Status)
	assert.Equal(t, ReasonNotDue, res.Reason)

	// The next interval executes cycle 2 normally.
	h.now = h.now.Add(h.cfg.Interval)
	res = h.orch.AttemptPayoutCycle(ctx)
	require.Equal(t, CycleSuccess, res.Status)
	assert.Equal(t, int64(2), res.Cycle)
	assert.Equal(t, int64(2), h.timerState(t).CurrentCycle)
}

func TestWinnerCooldownCoversNextAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.orch.AttemptPayoutCycle(ctx)
	require.Equal(t, CycleSuccess, res.Status)

	// The override must still be active when the next cycle's attempt fires
	// exactly one interval later.
	active, err := h.disq.ActiveWallets(ctx, h.now.Add(h.cfg.Interval))
	require.NoError(t, err)
	assert.Contains(t, active, "wallet-deep")

	// Gone once the cooldown window has fully passed.
	active, err = h.disq.ActiveWallets(ctx, h.now.Add(2*h.cfg.Interval))
	require.NoError(t, err)
	assert.NotContains(t, active, "wallet-deep")
}

func TestSubMinimumTransferSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cfg.MinTransferNative = 0.5
	h.orch.cfg.MinTransferNative = 0.5

	res := h.orch.AttemptPayoutCycle(ctx)
	require.Equal(t, CycleSuccess, res.Status)
	require.Len(t, res.Payees, 4)

	// Third share is 0.405, below the 0.5 floor: reported but not attempted.
	third := res.Payees[3]
	assert.Equal(t, "wallet-mild", third.Wallet)
	assert.Equal(t, PayeeSkipped, third.Status)
	assert.Empty(t, third.TxRef)

	rows, err := h.payouts.ListByCycle(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.NotEqual(t, "wallet-mild", row.Wallet)
	}
	assert.Equal(t, 3, h.transfer.callCount())
}
