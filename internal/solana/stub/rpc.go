package stub

import (
	"context"
	"sort"
	"sync"

	"solana-signal-engine/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Signatures per address are kept newest first, like the real RPC.
type RPCClient struct {
	mu           sync.RWMutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo
	BlockTimes   map[int64]int64
	Slot         int64

	// Errors forces a method ("getTransaction", "getSignaturesForAddress",
	// "getAccountInfo", "getSlot", "getBlockTime") to fail.
	Errors map[string]error

	calls map[string]int
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		BlockTimes:   make(map[int64]int64),
		Errors:       make(map[string]error),
		calls:        make(map[string]int),
	}
}

func (c *RPCClient) record(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.Errors[method]
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[method]
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if err := c.record("getTransaction"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, solana.ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress pages through signatures honoring Before, Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := c.record("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	sigs := c.Signatures[address]
	start := 0
	if opts != nil && opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts != nil && opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts != nil && opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetAccountInfo retrieves account info from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.record("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, solana.ErrNotFound
	}
	return info, nil
}

// AddTransaction stores tx and indexes its signature under every account key.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx
	bt := tx.BlockTime
	info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot, BlockTime: &bt}
	if tx.Meta != nil {
		info.Err = tx.Meta.Err
	}
	seen := make(map[string]bool)
	for _, key := range tx.AccountKeys() {
		if seen[key] {
			continue
		}
		seen[key] = true
		c.Signatures[key] = append(c.Signatures[key], info)
		sortNewestFirst(c.Signatures[key])
	}
}

// GetSlot returns the configured Slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	if err := c.record("getSlot"); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// GetBlockTime returns the time stored in BlockTimes for slot.
func (c *RPCClient) GetBlockTime(_ context.Context, slot int64) (int64, error) {
	if err := c.record("getBlockTime"); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	bt, ok := c.BlockTimes[slot]
	if !ok {
		return 0, solana.ErrNotFound
	}
	return bt, nil
}

// AddSignatures sets signatures for an address.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// AddAccount sets account info for pubkey.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

func sortNewestFirst(sigs []solana.SignatureInfo) {
	sort.SliceStable(sigs, func(i, j int) bool {
		return sigs[i].Slot > sigs[j].Slot
	})
}
