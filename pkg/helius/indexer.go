package helius

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"lossback/internal/cache"
	"lossback/internal/engine"
)

// Stablecoin mints accepted as a USD counter-leg.
var stablecoinMints = map[string]bool{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": true, // USDT
}

const (
	wsolMint         = "So11111111111111111111111111111111111111112"
	holdersPageLimit = 1000
	txPageLimit      = 100
	maxTxPages       = 10
	lamportsPerSol   = 1e9
)

// Indexer builds holder lists and per-wallet event histories from the
// Helius enhanced transaction API. Implements cache.Indexer.
type Indexer struct {
	client        *Client
	prices        engine.PriceOracle
	nativeMint    string
	tokenDecimals int
}

func NewIndexer(client *Client, prices engine.PriceOracle, nativeMint string, tokenDecimals int) *Indexer {
	if tokenDecimals <= 0 {
		tokenDecimals = 9
	}
	return &Indexer{
		client:        client,
		prices:        prices,
		nativeMint:    nativeMint,
		tokenDecimals: tokenDecimals,
	}
}

// TokenHolders pages through the mint's token accounts and folds them into
// per-owner balances in human units.
func (ix *Indexer) TokenHolders(ctx context.Context, mint string) ([]cache.HolderBalance, error) {
	pow := math.Pow(10, float64(ix.tokenDecimals))
	byOwner := make(map[string]float64)

	for page := 1; ; page++ {
		accounts, err := ix.client.GetTokenAccounts(ctx, mint, page, holdersPageLimit)
		if err != nil {
			return nil, fmt.Errorf("get token accounts page %d: %w", page, err)
		}
		if len(accounts) == 0 {
			break
		}
		for _, acc := range accounts {
			byOwner[acc.Owner] += float64(acc.Amount) / pow
		}
		if len(accounts) < holdersPageLimit {
			break
		}
	}

	out := make([]cache.HolderBalance, 0, len(byOwner))
	for owner, balance := range byOwner {
		out = append(out, cache.HolderBalance{Wallet: owner, Balance: balance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

// WalletEvents pulls the wallet's transaction history touching the mint and
// classifies each transaction as a buy, sell or transfer. Returned events
// are in chronological order.
//
// Buy pricing precedence: a stablecoin counter-leg is taken at face value;
// otherwise the native leg is priced at the current SOL price. Buys with
// neither stay unpriced and are skipped by the aggregator.
func (ix *Indexer) WalletEvents(ctx context.Context, wallet, mint string) ([]engine.Event, error) {
	solPrice, err := ix.prices.AssetPrice(ctx, ix.nativeMint)
	if err != nil {
		log.Warnf("> SOL price unavailable, native-leg buys for %s will be unpriced: %v", wallet, err)
		solPrice = 0
	}

	var events []engine.Event
	var before *string

	for page := 0; page < maxTxPages; page++ {
		opts := &TransactionOptions{Limit: IntPtr(txPageLimit), Before: before}
		txs, err := ix.client.GetEnhancedTransactionsByAddress(ctx, wallet, opts)
		if err != nil {
			return nil, fmt.Errorf("get transactions for %s: %w", wallet, err)
		}
		if len(txs) == 0 {
			break
		}
		for _, tx := range txs {
			if ev := classify(tx, wallet, mint, solPrice); ev != nil {
				events = append(events, *ev)
			}
		}
		last := txs[len(txs)-1].Signature
		before = &last
		if len(txs) < txPageLimit {
			break
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

func classify(tx EnhancedTransaction, wallet, mint string, solPrice float64) *engine.Event {
	if tx.TransactionError != nil {
		return nil
	}

	var received, sent float64
	var stableIn, stableOut float64
	var wsolIn, wsolOut float64
	for _, tt := range tx.TokenTransfers {
		switch {
		case tt.Mint == mint:
			if tt.ToUserAccount == wallet {
				received += tt.TokenAmount
			}
			if tt.FromUserAccount == wallet {
				sent += tt.TokenAmount
			}
		case stablecoinMints[tt.Mint]:
			if tt.ToUserAccount == wallet {
				stableIn += tt.TokenAmount
			}
			if tt.FromUserAccount == wallet {
				stableOut += tt.TokenAmount
			}
		case tt.Mint == wsolMint:
			if tt.ToUserAccount == wallet {
				wsolIn += tt.TokenAmount
			}
			if tt.FromUserAccount == wallet {
				wsolOut += tt.TokenAmount
			}
		}
	}

	var nativeIn, nativeOut float64
	for _, nt := range tx.NativeTransfers {
		if nt.ToUserAccount == wallet {
			nativeIn += float64(nt.Amount) / lamportsPerSol
		}
		if nt.FromUserAccount == wallet {
			nativeOut += float64(nt.Amount) / lamportsPerSol
		}
	}

	net := received - sent
	if net == 0 {
		return nil
	}

	ev := &engine.Event{
		Timestamp:   timestampOf(tx),
		TokenAmount: math.Abs(net),
	}

	if net > 0 {
		paidSwap := stableOut > 0 || nativeOut+wsolOut > 0 || tx.Type == "SWAP"
		if !paidSwap {
			ev.Kind = engine.EventTransferIn
			return ev
		}
		ev.Kind = engine.EventBuy
		if stableOut > 0 {
			usd := stableOut
			ev.UsdValue = &usd
		} else if spent := nativeOut + wsolOut; spent > 0 && solPrice > 0 {
			usd := spent * solPrice
			ev.UsdValue = &usd
		}
		return ev
	}

	if stableIn > 0 || nativeIn+wsolIn > 0 || tx.Type == "SWAP" {
		ev.Kind = engine.EventSell
	} else {
		ev.Kind = engine.EventTransferOut
	}
	return ev
}

func timestampOf(tx EnhancedTransaction) time.Time {
	return time.Unix(tx.Timestamp, 0).UTC()
}
