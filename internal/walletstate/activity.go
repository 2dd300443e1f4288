// Package walletstate answers best-effort questions about a wallet's on-chain
// activity: whether it went dead and whether it is a comeback trader.
package walletstate

import (
	"context"
	"fmt"

	"alpha-finder/internal/solana"
)

// Activity is one signed on-chain action of a wallet.
type Activity struct {
	Signature string
	Timestamp int64 // unix seconds
}

// ActivityProvider returns up to limit activities for a wallet, most recent first.
type ActivityProvider interface {
	Activity(ctx context.Context, wallet string, limit int) ([]Activity, error)
}

// RPCActivityProvider reads wallet activity from getSignaturesForAddress.
type RPCActivityProvider struct {
	client solana.RPCClient
}

// NewRPCActivityProvider creates a provider over a Solana RPC client.
func NewRPCActivityProvider(client solana.RPCClient) *RPCActivityProvider {
	return &RPCActivityProvider{client: client}
}

// Activity implements ActivityProvider. Signatures without a block time are skipped.
func (p *RPCActivityProvider) Activity(ctx context.Context, wallet string, limit int) ([]Activity, error) {
	sigs, err := p.client.GetSignaturesForAddress(ctx, wallet, &solana.SignaturesOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", wallet, err)
	}

	out := make([]Activity, 0, len(sigs))
	for _, s := range sigs {
		if s.BlockTime == nil {
			continue
		}
		out = append(out, Activity{Signature: s.Signature, Timestamp: *s.BlockTime})
	}
	return out, nil
}

var _ ActivityProvider = (*RPCActivityProvider)(nil)
