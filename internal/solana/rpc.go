package solana

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the ledger has no record of a transaction or account.
var ErrNotFound = errors.New("not found")

// RPCClient defines the Solana RPC HTTP interface used by the engine.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns ErrNotFound if unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves account data. Returns ErrNotFound if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetSlot retrieves the current slot at the client's commitment.
	GetSlot(ctx context.Context) (int64, error)

	// GetBlockTime retrieves a block's production time in unix seconds.
	// Returns ErrNotFound if the node has no time for the block.
	GetBlockTime(ctx context.Context, slot int64) (int64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	LogMessages       []string
	PreBalances       []uint64 // lamports, indexed like AccountKeys
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LoadedWritable    []string // address lookup table keys (v0 transactions)
	LoadedReadonly    []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// Failed reports whether the transaction was executed with an error.
func (tx *Transaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}

// FeePayer returns the first account key, which pays fees and signs.
func (tx *Transaction) FeePayer() string {
	if tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return ""
	}
	return tx.Message.AccountKeys[0]
}

// AccountKeys returns static keys followed by keys loaded from lookup tables,
// matching the index space of balances.
func (tx *Transaction) AccountKeys() []string {
	var keys []string
	if tx.Message != nil {
		keys = append(keys, tx.Message.AccountKeys...)
	}
	if tx.Meta != nil {
		keys = append(keys, tx.Meta.LoadedWritable...)
		keys = append(keys, tx.Meta.LoadedReadonly...)
	}
	return keys
}

// LamportDelta returns post minus pre balance of account, and whether it was found.
func (tx *Transaction) LamportDelta(account string) (int64, bool) {
	if tx.Meta == nil {
		return 0, false
	}
	for i, key := range tx.AccountKeys() {
		if key != account {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			return 0, false
		}
		return int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i]), true
	}
	return 0, false
}

// TokenDelta returns the change in UI amount of mint held by owner.
func (tx *Transaction) TokenDelta(owner, mint string) float64 {
	if tx.Meta == nil {
		return 0
	}
	return sumTokens(tx.Meta.PostTokenBalances, owner, mint) - sumTokens(tx.Meta.PreTokenBalances, owner, mint)
}

func sumTokens(balances []TokenBalance, owner, mint string) float64 {
	var total float64
	for _, b := range balances {
		if b.Owner == owner && b.Mint == mint {
			total += b.UIAmount
		}
	}
	return total
}
