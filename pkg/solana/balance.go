// Package solana wraps the RPC reads the payout engine needs: native
// balance lookups for the reward pool wallet and endpoint health checks.
package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const lamportsPerSol = 1e9

// RPCBalanceSource reads native balances over a Solana RPC node.
type RPCBalanceSource struct {
	client *rpc.Client
}

func NewRPCBalanceSource(client *rpc.Client) *RPCBalanceSource {
	return &RPCBalanceSource{client: client}
}

// Balance returns the wallet's SOL balance in whole units at finalized
// commitment.
func (s *RPCBalanceSource) Balance(ctx context.Context, wallet string) (float64, error) {
	pubkey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return 0, fmt.Errorf("invalid wallet %s: %w", wallet, err)
	}
	resp, err := s.client.GetBalance(ctx, pubkey, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", wallet, err)
	}
	return float64(resp.Value) / lamportsPerSol, nil
}
