// Package ledger defines the interface required for the connection to the game's blockchain. It has been designed to
// be as much standard as possible; the only implementation today is package ledger/ethereum but other networks with
// accounts, receipts and a log subscription could satisfy it.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marketgame/bridge/lib/ledger/types"
)

// Gateway is the connection to the ledger. It is fallible and latent: confirmation of a sent transaction is obtained
// by polling Receipt, never assumed from a successful Send.
type Gateway interface {
	// Signer returns the backend writer address transactions are signed with.
	Signer() common.Address
	// Balance returns the native balance of the account.
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	// TransactionCount returns the ledger's authoritative transaction count (next nonce) for the account.
	TransactionCount(ctx context.Context, account common.Address) (uint64, error)
	// Send signs and submits one transaction built from the given spec and returns its hash.
	Send(ctx context.Context, tx types.TxSpec) (common.Hash, error)
	// SendRaw submits a client-signed transaction verbatim.
	SendRaw(ctx context.Context, raw []byte) (common.Hash, error)
	// Receipt returns the receipt for the hash, or types.ErrNoReceipt while the transaction is unmined.
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// RevertReason recovers the failure cause of a reverted transaction, or "" when none can be determined.
	// Receipts do not carry the cause; implementations replay the transaction to obtain it.
	RevertReason(ctx context.Context, hash common.Hash, block uint64) (string, error)
	// SubscribeLogs streams the contract's logs into ch. Delivery is ordered but at-least-once.
	SubscribeLogs(ctx context.Context, contract common.Address, ch chan<- types.RawLog) (Subscription, error)
	// SubscribeBlocks streams mined block headers into ch.
	SubscribeBlocks(ctx context.Context, ch chan<- types.BlockHead) (Subscription, error)
	// Close ends the connection.
	Close()
}

// Subscription controls one log or block stream.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}
