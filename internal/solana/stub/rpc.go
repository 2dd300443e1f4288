package stub

import (
	"context"
	"fmt"
	"sync"

	"alpha-finder/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu         sync.Mutex
	Signatures map[string][]solana.SignatureInfo
	Accounts   map[string]*solana.AccountInfo
	Supplies   map[string]*solana.TokenSupply
	Errors     map[string]error // keyed by address, returned by every call
	Calls      int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Signatures: make(map[string][]solana.SignatureInfo),
		Accounts:   make(map[string]*solana.AccountInfo),
		Supplies:   make(map[string]*solana.TokenSupply),
		Errors:     make(map[string]error),
	}
}

// GetSignaturesForAddress returns the stored signatures, applying Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++

	if err := c.Errors[address]; err != nil {
		return nil, err
	}
	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++

	if err := c.Errors[pubkey]; err != nil {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// GetTokenSupply returns the stored supply.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenSupply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++

	if err := c.Errors[mint]; err != nil {
		return nil, err
	}
	s, ok := c.Supplies[mint]
	if !ok {
		return nil, fmt.Errorf("token supply for %s: not found", mint)
	}
	return s, nil
}

// AddSignatures adds signatures for an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

var _ solana.RPCClient = (*RPCClient)(nil)
