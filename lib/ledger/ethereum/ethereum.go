// Implements the gateway interface for ethereum networks
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/marketgame/bridge/lib/ledger"
	"github.com/marketgame/bridge/lib/ledger/types"
)

// Ethereum implements a gateway to an ethereum-type chain over a websocket JSON-RPC endpoint, signing backend
// transactions locally with the configured key.
type Ethereum struct {
	c       *ethclient.Client
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
}

// Dial connects to an ethereum node and derives the backend writer address from the given hex private key. A
// websocket node is required: the log and block subscriptions do not work over plain HTTP.
func Dial(ctx context.Context, node, privKey string) (*Ethereum, error) {
	c, err := ethclient.DialContext(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to ethereum chain in %s: %w", node, err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("cannot decode backend signing key: %w", err)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read chain id: %w", err)
	}
	return &Ethereum{
		c:       c,
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// Signer returns the backend writer address.
func (e *Ethereum) Signer() common.Address {
	return e.addr
}

// Close ends the connection.
func (e *Ethereum) Close() {
	e.c.Close()
}

// Balance returns the account's native balance at the latest block.
func (e *Ethereum) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return e.c.BalanceAt(ctx, account, nil)
}

// TransactionCount returns the chain's transaction count for the account at the latest block. This is the
// authoritative value the nonce resync adopts.
func (e *Ethereum) TransactionCount(ctx context.Context, account common.Address) (uint64, error) {
	return e.c.NonceAt(ctx, account, nil)
}

// Send builds a legacy transaction from the spec, signs it with the backend key and submits it.
func (e *Ethereum) Send(ctx context.Context, spec types.TxSpec) (common.Hash, error) {
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    spec.Nonce,
		GasPrice: spec.GasPrice,
		Gas:      spec.GasLimit,
		To:       spec.To,
		Value:    spec.Value,
		Data:     spec.Data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot sign transaction: %w", err)
	}
	if err = e.c.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// SendRaw submits a client-signed RLP transaction verbatim.
func (e *Ethereum) SendRaw(ctx context.Context, raw []byte) (common.Hash, error) {
	tx := new(gethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("cannot decode raw transaction: %w", err)
	}
	if err := e.c.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// Receipt returns the receipt for the hash or types.ErrNoReceipt while the transaction is pending.
func (e *Ethereum) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := e.c.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, types.ErrNoReceipt
	}
	if err != nil {
		return nil, err
	}
	return &types.Receipt{Status: r.Status, Block: r.BlockNumber.Uint64()}, nil
}

// RevertReason replays a reverted transaction as a read-only call at its block. The node's error text for the
// replay carries the contract's revert string. An empty reason with nil error means the replay no longer fails,
// so the cause cannot be recovered.
func (e *Ethereum) RevertReason(ctx context.Context, hash common.Hash, block uint64) (string, error) {
	tx, _, err := e.c.TransactionByHash(ctx, hash)
	if err != nil {
		return "", err
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(e.chainID), tx)
	if err != nil {
		return "", err
	}
	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	if _, err = e.c.CallContract(ctx, msg, new(big.Int).SetUint64(block)); err != nil {
		return err.Error(), nil
	}
	return "", nil
}

// SubscribeLogs subscribes to the contract's logs and converts them to the gateway log type. The conversion routine
// ends when the underlying subscription does.
func (e *Ethereum) SubscribeLogs(ctx context.Context, contract common.Address, ch chan<- types.RawLog) (ledger.Subscription, error) {
	inner := make(chan gethtypes.Log, cap(ch))
	sub, err := e.c.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Addresses: []common.Address{contract}}, inner)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to contract logs: %w", err)
	}
	go func() {
		for {
			select {
			case lg := <-inner:
				if lg.Removed {
					log.Printf("Dropping removed log %s/%d from reorg", lg.TxHash.Hex(), lg.Index)
					continue
				}
				ch <- types.RawLog{
					TxHash: lg.TxHash,
					Index:  lg.Index,
					Topics: lg.Topics,
					Data:   lg.Data,
					Block:  lg.BlockNumber,
				}
			case <-sub.Err():
				return
			}
		}
	}()
	return sub, nil
}

// SubscribeBlocks subscribes to new block headers and converts them to the gateway block type.
func (e *Ethereum) SubscribeBlocks(ctx context.Context, ch chan<- types.BlockHead) (ledger.Subscription, error) {
	inner := make(chan *gethtypes.Header, cap(ch))
	sub, err := e.c.SubscribeNewHead(ctx, inner)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to blocks: %w", err)
	}
	go func() {
		for {
			select {
			case h := <-inner:
				ch <- types.BlockHead{Number: h.Number.Uint64(), Time: h.Time}
			case <-sub.Err():
				return
			}
		}
	}()
	return sub, nil
}
