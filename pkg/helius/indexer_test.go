package helius

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lossback/internal/engine"
)

const (
	testWallet = "holder-wallet"
	testMint   = "reward-mint"
	usdcTest   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func tx(ts time.Time, kind string, transfers []TokenTransfer, native []NativeTransfer) EnhancedTransaction {
	return EnhancedTransaction{
		Type:            kind,
		Timestamp:       ts.Unix(),
		TokenTransfers:  transfers,
		NativeTransfers: native,
	}
}

func TestClassify(t *testing.T) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("stablecoin leg prices the buy", func(t *testing.T) {
		ev := classify(tx(ts, "SWAP",
			[]TokenTransfer{
				{Mint: testMint, ToUserAccount: testWallet, TokenAmount: 10_000},
				{Mint: usdcTest, FromUserAccount: testWallet, TokenAmount: 250},
			}, nil), testWallet, testMint, 150)

		require.NotNil(t, ev)
		assert.Equal(t, engine.EventBuy, ev.Kind)
		assert.Equal(t, 10_000.0, ev.TokenAmount)
		require.NotNil(t, ev.UsdValue)
		assert.InDelta(t, 250.0, *ev.UsdValue, 1e-9)
	})

	t.Run("native leg priced at SOL price", func(t *testing.T) {
		ev := classify(tx(ts, "SWAP",
			[]TokenTransfer{{Mint: testMint, ToUserAccount: testWallet, TokenAmount: 5000}},
			[]NativeTransfer{{FromUserAccount: testWallet, Amount: 2_000_000_000}}),
			testWallet, testMint, 150)

		require.NotNil(t, ev)
		assert.Equal(t, engine.EventBuy, ev.Kind)
		require.NotNil(t, ev.UsdValue)
		assert.InDelta(t, 300.0, *ev.UsdValue, 1e-9) // 2 SOL * 150
	})

	t.Run("buy without price stays unpriced", func(t *testing.T) {
		ev := classify(tx(ts, "SWAP",
			[]TokenTransfer{{Mint: testMint, ToUserAccount: testWallet, TokenAmount: 5000}},
			nil), testWallet, testMint, 0)

		require.NotNil(t, ev)
		assert.Equal(t, engine.EventBuy, ev.Kind)
		assert.Nil(t, ev.UsdValue)
	})

	t.Run("plain incoming transfer", func(t *testing.T) {
		ev := classify(tx(ts, "TRANSFER",
			[]TokenTransfer{{Mint: testMint, ToUserAccount: testWallet, TokenAmount: 42}},
			nil), testWallet, testMint, 150)

		require.NotNil(t, ev)
		assert.Equal(t, engine.EventTransferIn, ev.Kind)
	})

	t.Run("sell against a counter leg", func(t *testing.T) {
		ev := classify(tx(ts, "SWAP",
			[]TokenTransfer{
				{Mint: testMint, FromUserAccount: testWallet, TokenAmount: 1000},
				{Mint: usdcTest, ToUserAccount: testWallet, TokenAmount: 20},
			}, nil), testWallet, testMint, 150)

		require.NotNil(t, ev)
		assert.Equal(t, engine.EventSell, ev.Kind)
		assert.Equal(t, 1000.0, ev.TokenAmount)
	})

	t.Run("plain outgoing transfer", func(t *testing.T) {
		ev := classify(tx(ts, "TRANSFER",
			[]TokenTransfer{{Mint: testMint, FromUserAccount: testWallet, TokenAmount: 1000}},
			nil), testWallet, testMint, 150)

		require.NotNil(t, ev)
		assert.Equal(t, engine.EventTransferOut, ev.Kind)
	})

	t.Run("failed transactions are ignored", func(t *testing.T) {
		failed := tx(ts, "SWAP",
			[]TokenTransfer{{Mint: testMint, ToUserAccount: testWallet, TokenAmount: 5000}}, nil)
		failed.TransactionError = map[string]interface{}{"InstructionError": []interface{}{}}

		assert.Nil(t, classify(failed, testWallet, testMint, 150))
	})

	t.Run("transactions not touching the mint are ignored", func(t *testing.T) {
		ev := classify(tx(ts, "TRANSFER",
			[]TokenTransfer{{Mint: "other-mint", ToUserAccount: testWallet, TokenAmount: 5}},
			nil), testWallet, testMint, 150)
		assert.Nil(t, ev)
	})
}
