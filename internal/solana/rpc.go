// Package solana is a minimal JSON-RPC client for the Solana calls the scorer needs.
package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface.
type RPCClient interface {
	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves account data. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenSupply retrieves the supply of an SPL token mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)
}

// SupplyProvider returns the supply of a token mint.
// RPCClient satisfies it through GetTokenSupply.
type SupplyProvider interface {
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)
}
