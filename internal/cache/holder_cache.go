// Package cache maintains the in-memory holder table the ranking path
// reads from. Each process refreshes its own copy from the indexer; the
// database keeps the durable snapshots so a restart does not start cold.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lossback/internal/engine"
	"lossback/internal/models"
	"lossback/internal/store"
)

// HolderBalance is one row of the indexer's holder list.
type HolderBalance struct {
	Wallet  string
	Balance float64
}

// Indexer is the chain-history source the cache refreshes from.
type Indexer interface {
	TokenHolders(ctx context.Context, mint string) ([]HolderBalance, error)
	WalletEvents(ctx context.Context, wallet, mint string) ([]engine.Event, error)
}

// HolderCache implements engine.HolderView. Reads are served from memory;
// Refresh rebuilds the table from the indexer and persists every snapshot.
type HolderCache struct {
	mint        string
	concurrency int

	indexer Indexer
	holders store.HolderStore

	mu            sync.RWMutex
	byWallet      map[string]models.HolderSnapshot
	lastRefreshAt time.Time
}

func New(mint string, concurrency int, indexer Indexer, holders store.HolderStore) *HolderCache {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &HolderCache{
		mint:        mint,
		concurrency: concurrency,
		indexer:     indexer,
		holders:     holders,
		byWallet:    make(map[string]models.HolderSnapshot),
	}
}

// Load warms the cache from the persisted snapshots so rankings are
// available before the first indexer refresh completes.
func (c *HolderCache) Load(ctx context.Context) error {
	rows, err := c.holders.List(ctx)
	if err != nil {
		return fmt.Errorf("warm holder cache: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range rows {
		c.byWallet[h.Wallet] = h
	}
	log.Infof("> holder cache warmed with %d persisted snapshots", len(rows))
	return nil
}

// Refresh pulls the current holder list, re-aggregates each wallet's event
// history and swaps the in-memory table. Wallets that fail to refresh keep
// their previous snapshot.
func (c *HolderCache) Refresh(ctx context.Context) error {
	started := time.Now()
	holders, err := c.indexer.TokenHolders(ctx, c.mint)
	if err != nil {
		return fmt.Errorf("list token holders: %w", err)
	}
	log.Infof("> refreshing %d holders for mint %s", len(holders), c.mint)

	prev := c.snapshotMap()

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	results := make([]*models.HolderSnapshot, len(holders))

	for i, hb := range holders {
		wg.Add(1)
		sem <- struct{}{} // acquire
		go func(i int, hb HolderBalance) {
			defer wg.Done()
			defer func() { <-sem }() // release

			events, err := c.indexer.WalletEvents(ctx, hb.Wallet, c.mint)
			if err != nil {
				log.Errorf("> refresh wallet %s failed: %v", hb.Wallet, err)
				return
			}
			snap := buildSnapshot(prev[hb.Wallet], hb, events)
			if err := c.holders.Upsert(ctx, snap); err != nil {
				log.Errorf("> persist snapshot %s failed: %v", hb.Wallet, err)
			}
			results[i] = snap
		}(i, hb)
	}
	wg.Wait()

	next := make(map[string]models.HolderSnapshot, len(holders))
	failed := 0
	for i, snap := range results {
		if snap == nil {
			// keep the stale snapshot rather than dropping the wallet
			if old, ok := prev[holders[i].Wallet]; ok {
				cp := *old
				next[cp.Wallet] = cp
			}
			failed++
			continue
		}
		next[snap.Wallet] = *snap
	}

	c.mu.Lock()
	c.byWallet = next
	c.lastRefreshAt = time.Now()
	c.mu.Unlock()

	log.Infof("> holder cache refresh done: %d wallets, %d failed, took %s",
		len(next), failed, time.Since(started).Round(time.Millisecond))
	return nil
}

// Snapshot returns a copy of the current holder table.
func (c *HolderCache) Snapshot() []models.HolderSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.HolderSnapshot, 0, len(c.byWallet))
	for _, h := range c.byWallet {
		out = append(out, h)
	}
	return out
}

// ApplyWin resets the in-memory cost basis of a cycle winner immediately,
// without waiting for the next indexer refresh. The durable reset goes
// through store.HolderStore.MarkWinner.
func (c *HolderCache) ApplyWin(wallet string, cycle int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.byWallet[wallet]
	if !ok {
		return
	}
	cyc := cycle
	h.LastWinCycle = &cyc
	p := price
	h.CostBasis = &p
	h.TotalCostBasisUsd = h.TotalTokensBought * price
	now := time.Now()
	h.CostBasisResetAt = &now
	rp := price
	h.CostBasisResetPrice = &rp
	c.byWallet[wallet] = h
}

func (c *HolderCache) LastRefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefreshAt
}

func (c *HolderCache) snapshotMap() map[string]*models.HolderSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*models.HolderSnapshot, len(c.byWallet))
	for w := range c.byWallet {
		h := c.byWallet[w]
		out[w] = &h
	}
	return out
}

// buildSnapshot folds a wallet's full event history into a snapshot. When
// the previous snapshot carries a win-time reset, every buy up to the reset
// instant is repriced at the reset price so the recomputed VWAP matches the
// reset basis no matter how many times the history is re-aggregated.
func buildSnapshot(prev *models.HolderSnapshot, hb HolderBalance, events []engine.Event) *models.HolderSnapshot {
	pos := engine.AggregateCostBasis(events)

	snap := &models.HolderSnapshot{
		Wallet:             hb.Wallet,
		Balance:            hb.Balance,
		CostBasis:          pos.CostBasis,
		TotalTokensBought:  pos.TotalTokensBought,
		TotalCostBasisUsd:  pos.TotalCostBasisUsd,
		FirstAcquisitionAt: pos.FirstBuyAt,
		LastActivityAt:     pos.LastEventAt,
		HasDisposed:        pos.HasDisposed,
		HasWithdrawn:       pos.HasWithdrawn,
		SkippedBuys:        pos.SkippedBuys,
	}
	if prev != nil {
		snap.ID = prev.ID
		snap.CreatedAt = prev.CreatedAt
		snap.LastWinCycle = prev.LastWinCycle
		snap.CostBasisResetAt = prev.CostBasisResetAt
		snap.CostBasisResetPrice = prev.CostBasisResetPrice
	}

	if snap.CostBasisResetAt != nil && snap.CostBasisResetPrice != nil {
		repriceThroughReset(snap, events, *snap.CostBasisResetAt, *snap.CostBasisResetPrice)
	}
	return snap
}

func repriceThroughReset(snap *models.HolderSnapshot, events []engine.Event, resetAt time.Time, resetPrice float64) {
	var before, after []engine.Event
	for _, ev := range events {
		if ev.Timestamp.After(resetAt) {
			after = append(after, ev)
		} else {
			before = append(before, ev)
		}
	}
	base := engine.AggregateCostBasis(before)
	post := engine.AggregateCostBasis(after)

	tokens := base.TotalTokensBought + post.TotalTokensBought
	cost := base.TotalTokensBought*resetPrice + post.TotalCostBasisUsd
	snap.TotalTokensBought = tokens
	snap.TotalCostBasisUsd = cost
	if tokens > 0 {
		cb := cost / tokens
		snap.CostBasis = &cb
	} else {
		snap.CostBasis = nil
	}
	// buys without a price before the reset were repriced away
	snap.SkippedBuys = post.SkippedBuys
}
