// Package engine implements the loss-ranking and payout-cycle core: cost
// basis aggregation, eligibility classification, deterministic ranking,
// pool allocation and the at-most-once cycle orchestrator.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lossback/internal/models"
	"lossback/internal/store"
)

// CycleEventsQueue is the queue cycle results are published to when a
// Notifier is configured.
const CycleEventsQueue = "payout_cycle_events"

// Orchestrator drives the payout cycle. It owns no scheduler: any number
// of concurrent, uncoordinated callers invoke AttemptPayoutCycle and the
// persisted timer state arbitrates which one executes.
type Orchestrator struct {
	cfg Config

	timer    store.TimerStore
	payouts  store.PayoutStore
	holders  store.HolderStore
	disq     store.DisqualificationStore
	cache    HolderView
	prices   PriceOracle
	balances BalanceSource
	transfer Transferer
	notifier Notifier

	now func() time.Time
}

// Options for creating an Orchestrator.
type Options struct {
	Config Config

	TimerStore            store.TimerStore
	PayoutStore           store.PayoutStore
	HolderStore           store.HolderStore
	DisqualificationStore store.DisqualificationStore
	Holders               HolderView
	Prices                PriceOracle
	Balances              BalanceSource
	Transfer              Transferer

	// Optional.
	Notifier Notifier
	Now      func() time.Time
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if err := opts.Config.Split.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payout split: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:      opts.Config,
		timer:    opts.TimerStore,
		payouts:  opts.PayoutStore,
		holders:  opts.HolderStore,
		disq:     opts.DisqualificationStore,
		cache:    opts.Holders,
		prices:   opts.Prices,
		balances: opts.Balances,
		transfer: opts.Transfer,
		notifier: opts.Notifier,
		now:      now,
	}, nil
}

// Init creates the timer singleton on first deployment.
func (o *Orchestrator) Init(ctx context.Context) error {
	return o.timer.EnsureInit(ctx, o.now())
}

// AttemptPayoutCycle runs one payout attempt. Safe under N-way concurrent
// invocation: exactly one caller per interval executes, the rest get a
// busy or skipped result with zero side effects. Once execution begins the
// cycle commits to advancing the timer, whatever happens in between.
func (o *Orchestrator) AttemptPayoutCycle(ctx context.Context) CycleResult {
	now := o.now()

	st, err := o.timer.Get(ctx)
	if err != nil {
		return CycleResult{Status: CycleFailed, Reason: err.Error()}
	}
	if now.Sub(st.LastPayoutAt) < o.cfg.Interval {
		return CycleResult{Status: CycleSkipped, Reason: ReasonNotDue, Cycle: st.CurrentCycle + 1}
	}

	ok, err := o.timer.TryLock(ctx, now, now.Add(-o.cfg.LockStaleAfter))
	if err != nil {
		return CycleResult{Status: CycleFailed, Reason: err.Error()}
	}
	if !ok {
		return CycleResult{Status: CycleBusy, Reason: ReasonAlreadyInProgress, Cycle: st.CurrentCycle + 1}
	}

	// Lock held from here. Guard steps release it again before executing;
	// only the already-paid guard also advances, since persisted payout rows
	// prove the cycle already ran.
	st, err = o.timer.Get(ctx)
	if err != nil {
		o.unlock(ctx, nil)
		return CycleResult{Status: CycleFailed, Reason: err.Error()}
	}
	executing := st.CurrentCycle + 1

	if now.Sub(st.LastPayoutAt) < o.cfg.Interval {
		o.unlock(ctx, st)
		return CycleResult{Status: CycleSkipped, Reason: ReasonNotDue, Cycle: executing}
	}
	paid, err := o.payouts.ExistsForCycle(ctx, executing)
	if err != nil {
		o.unlock(ctx, st)
		return CycleResult{Status: CycleFailed, Reason: err.Error(), Cycle: executing}
	}
	if paid {
		// Rows for this cycle mean a previous attempt reached the payout
		// phase and crashed before advancing. The rows are the proof the
		// cycle ran: roll the timer forward, otherwise every future caller
		// reports "already paid" and the engine wedges permanently.
		o.advance(ctx, executing, now)
		return CycleResult{Status: CycleSkipped, Reason: ReasonAlreadyPaid, Cycle: executing}
	}
	if st.FailedAttempts >= o.cfg.MaxAttempts {
		o.unlock(ctx, st)
		return CycleResult{Status: CycleSkipped, Reason: ReasonMaxAttempts, Cycle: executing}
	}

	// Commit to the cycle. The persisted attempt counter survives a crash
	// between here and the final advance.
	st.FailedAttempts++
	if err := o.timer.Save(ctx, st); err != nil {
		o.unlock(ctx, st)
		return CycleResult{Status: CycleFailed, Reason: err.Error(), Cycle: executing}
	}

	log.WithFields(log.Fields{"cycle": executing, "attempt": st.FailedAttempts}).
		Info("payout cycle execution started")

	res := o.runGuarded(ctx, executing, now)

	// The cycle always advances once execution began, success or not;
	// leaving the lock held would deadlock every future caller.
	o.advance(ctx, executing, now)

	o.publish(res)
	return res
}

// runGuarded executes the cycle body and converts panics into a failed
// result so the caller's advance-and-unlock always runs.
func (o *Orchestrator) runGuarded(ctx context.Context, cycle int64, now time.Time) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("cycle", cycle).Errorf("payout cycle panicked: %v", r)
			res = CycleResult{Status: CycleFailed, Reason: fmt.Sprintf("panic: %v", r), Cycle: cycle}
		}
	}()
	return o.executeCycle(ctx, cycle, now)
}

// executeCycle is steps 5-10: pool sizing, ranking, allocation, transfers
// and winner bookkeeping.
func (o *Orchestrator) executeCycle(ctx context.Context, cycle int64, now time.Time) CycleResult {
	tokenPrice, err := o.prices.AssetPrice(ctx, o.cfg.TokenMint)
	if err != nil || tokenPrice <= 0 {
		log.WithField("cycle", cycle).Warnf("token price unavailable, skipping cycle: %v", err)
		return CycleResult{Status: CycleSkipped, Reason: ReasonPriceUnavailable, Cycle: cycle}
	}
	nativePrice, err := o.prices.AssetPrice(ctx, o.cfg.NativeMint)
	if err != nil || nativePrice <= 0 {
		log.WithField("cycle", cycle).Warnf("native price unavailable, skipping cycle: %v", err)
		return CycleResult{Status: CycleSkipped, Reason: ReasonPriceUnavailable, Cycle: cycle}
	}

	balance, err := o.balances.Balance(ctx, o.cfg.SourceWallet)
	if err != nil {
		return CycleResult{Status: CycleFailed, Reason: fmt.Sprintf("pool balance unavailable: %v", err), Cycle: cycle}
	}
	pool := balance * o.cfg.PoolFraction
	if pool < o.cfg.MinPoolNative {
		log.WithFields(log.Fields{"cycle": cycle, "pool": pool}).Info("pool below minimum, skipping cycle")
		return CycleResult{Status: CycleSkipped, Reason: ReasonPoolBelowMinimum, Cycle: cycle}
	}
	poolValueUsd := pool * nativePrice

	ranked := o.rankForCycle(ctx, tokenPrice, poolValueUsd, cycle, now)
	if len(ranked) == 0 {
		log.WithField("cycle", cycle).Info("no eligible winners, skipping cycle")
		return CycleResult{Status: CycleSkipped, Reason: ReasonNoEligibleWinners, Cycle: cycle}
	}
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	fee := pool * o.cfg.FeeFraction
	shares := o.cfg.Split.Allocate(pool - fee)

	type payee struct {
		rank     int
		wallet   string
		amount   float64
		drawdown float64
		loss     float64
	}
	payees := []payee{{rank: 0, wallet: o.cfg.FeeWallet, amount: fee}}
	for i, e := range ranked {
		payees = append(payees, payee{
			rank:     e.Rank,
			wallet:   e.Wallet,
			amount:   shares[i],
			drawdown: e.DrawdownPct,
			loss:     e.LossUsd,
		})
	}

	outcomes := make([]PayeeOutcome, len(payees))
	rows := make([]*models.CyclePayout, len(payees))
	for i, p := range payees {
		outcomes[i] = PayeeOutcome{
			Rank:         p.rank,
			Wallet:       p.wallet,
			AmountNative: p.amount,
			AmountUsd:    p.amount * nativePrice,
		}
		if p.amount < o.cfg.MinTransferNative {
			outcomes[i].Status = PayeeSkipped
			outcomes[i].Error = "amount below minimum transferable unit"
			continue
		}
		// Pending row first: a crash mid-transfer must leave an auditable
		// record, never a silently lost payment decision.
		row := &models.CyclePayout{
			Cycle:        cycle,
			Rank:         p.rank,
			Wallet:       p.wallet,
			AmountUsd:    p.amount * nativePrice,
			AmountNative: p.amount,
			DrawdownPct:  p.drawdown,
			LossUsd:      p.loss,
			Status:       models.PayoutStatusPending,
		}
		if err := o.payouts.Create(ctx, row); err != nil {
			// Without the audit row the transfer must not be attempted.
			outcomes[i].Status = PayeeFailed
			outcomes[i].Error = fmt.Sprintf("persist pending payout: %v", err)
			log.WithFields(log.Fields{"cycle": cycle, "wallet": p.wallet}).
				Errorf("failed to persist pending payout: %v", err)
			continue
		}
		rows[i] = row
	}

	// Transfers to distinct payees are independent; issue them
	// concurrently and record each outcome before the final timer write.
	sem := make(chan struct{}, o.cfg.TransferConcurrency)
	var wg sync.WaitGroup
	for i := range payees {
		if rows[i] == nil {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			txRef, err := o.transfer.Transfer(ctx, payees[i].wallet, payees[i].amount)
			if err != nil {
				msg := err.Error()
				outcomes[i].Status = PayeeFailed
				outcomes[i].Error = msg
				if markErr := o.payouts.MarkOutcome(ctx, rows[i].ID, models.PayoutStatusFailed, nil, &msg); markErr != nil {
					log.WithField("payout_id", rows[i].ID).Errorf("failed to record payout failure: %v", markErr)
				}
				return
			}
			outcomes[i].Status = PayeeSuccess
			outcomes[i].TxRef = txRef
			if markErr := o.payouts.MarkOutcome(ctx, rows[i].ID, models.PayoutStatusSuccess, &txRef, nil); markErr != nil {
				log.WithField("payout_id", rows[i].ID).Errorf("failed to record payout success: %v", markErr)
			}
		}(i)
	}
	wg.Wait()

	// Winner bookkeeping: cooldown override, last win cycle, and the cost
	// basis reset to the at-win price. A further reward now requires a new
	// loss measured from this price, not the old entry.
	for i, p := range payees {
		if p.rank == 0 || outcomes[i].Status != PayeeSuccess {
			continue
		}
		// Half an extra interval so the override still covers an attempt
		// landing exactly CooldownCycles intervals out.
		expires := now.Add(time.Duration(o.cfg.CooldownCycles)*o.cfg.Interval + o.cfg.Interval/2)
		if err := o.disq.Create(ctx, &models.Disqualification{
			Wallet:    p.wallet,
			Reason:    ReasonWinnerCooldown,
			ExpiresAt: expires,
		}); err != nil {
			log.WithField("wallet", p.wallet).Errorf("failed to create cooldown: %v", err)
		}
		if err := o.holders.MarkWinner(ctx, p.wallet, cycle, tokenPrice, now); err != nil {
			log.WithField("wallet", p.wallet).Errorf("failed to mark winner: %v", err)
		}
		o.cache.ApplyWin(p.wallet, cycle, tokenPrice)
	}

	res := CycleResult{Status: CycleSuccess, Cycle: cycle, Payees: outcomes}
	for _, out := range outcomes {
		if out.Status == PayeeFailed {
			res.Reason = "partial failure"
			break
		}
	}
	log.WithFields(log.Fields{"cycle": cycle, "payees": len(outcomes), "status": res.Status}).
		Info("payout cycle executed")
	return res
}

// rankForCycle classifies the current holder snapshot and ranks the
// eligible losers. Active disqualification overrides win over the derived
// rules.
func (o *Orchestrator) rankForCycle(ctx context.Context, tokenPrice, poolValueUsd float64, cycle int64, now time.Time) []RankedEntry {
	holders := o.cache.Snapshot()

	overrides, err := o.disq.ActiveWallets(ctx, now)
	if err != nil {
		// Cooldowns are also enforced through lastWinCycle, so a failed
		// override read degrades rather than blocks.
		log.Warnf("failed to load disqualification overrides: %v", err)
		overrides = nil
	}

	results := make([]EligibilityResult, 0, len(holders))
	for i := range holders {
		h := &holders[i]
		if reason, blocked := overrides[h.Wallet]; blocked {
			results = append(results, EligibilityResult{
				Wallet:      h.Wallet,
				Reason:      reason,
				DrawdownPct: Drawdown(h.CostBasis, tokenPrice),
				LossUsd:     lossUsd(h, tokenPrice),
			})
			continue
		}
		results = append(results, Classify(h, tokenPrice, poolValueUsd, cycle, o.cfg, now))
	}
	return RankLosers(results)
}

// unlock releases the lock without advancing the cycle (guard paths only).
func (o *Orchestrator) unlock(ctx context.Context, st *models.CycleTimerState) {
	if st == nil {
		var err error
		st, err = o.timer.Get(ctx)
		if err != nil {
			log.Errorf("failed to reload timer state for unlock: %v", err)
			return
		}
	}
	st.InProgress = false
	st.LockedAt = nil
	if err := o.timer.Save(ctx, st); err != nil {
		log.Errorf("failed to release cycle lock: %v", err)
	}
}

// advance is step 11: persist the timer roll-over and release the lock,
// best effort even after failures. A lost write here self-heals via the
// lock staleness timeout.
func (o *Orchestrator) advance(ctx context.Context, cycle int64, now time.Time) {
	st, err := o.timer.Get(ctx)
	if err != nil {
		log.Errorf("failed to reload timer state for advance: %v", err)
		st = &models.CycleTimerState{}
	}
	st.LastPayoutAt = now
	st.CurrentCycle = cycle
	st.FailedAttempts = 0
	st.InProgress = false
	st.LockedAt = nil
	if err := o.timer.Save(ctx, st); err != nil {
		log.Errorf("failed to advance cycle timer, lock recovers via staleness timeout: %v", err)
	}
}

// publish sends the cycle result to the event queue, best effort.
func (o *Orchestrator) publish(res CycleResult) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(CycleEventsQueue, res); err != nil {
		log.Errorf("failed to publish cycle result: %v", err)
	}
}
