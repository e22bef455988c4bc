package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ltypes "github.com/marketgame/bridge/lib/ledger/types"
)

// Outcome classifies one submit-and-confirm cycle.
type Outcome int

const (
	// Confirmed: a receipt arrived with success status.
	Confirmed Outcome = iota
	// Reverted: a receipt arrived with failure status.
	Reverted
	// SubmitFailed: the send itself was rejected by the node.
	SubmitFailed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Reverted:
		return "reverted"
	case SubmitFailed:
		return "submitFailed"
	}
	return "unknown"
}

// submit builds one backend write with a freshly reserved nonce and the command's fixed gas parameters, sends it and
// polls for its receipt. The nonce is consumed whatever the outcome; recovery from a failed cycle belongs to the
// resync, never to a resend here.
func (d *Dispatcher) submit(ctx context.Context, kind CommandKind, to *common.Address, value *big.Int, data []byte, gasLimit uint64) (Outcome, common.Hash, string) {
	spec := ltypes.TxSpec{
		To:       to,
		Value:    value,
		Data:     data,
		Nonce:    d.state.ReserveNonce(),
		GasLimit: gasLimit,
		GasPrice: writerGasPrice,
	}

	hash, err := d.gw.Send(ctx, spec)
	if err != nil {
		txSubmissions.WithLabelValues(kind.String(), SubmitFailed.String()).Inc()
		return SubmitFailed, hash, err.Error()
	}
	log.Printf("Sent %s tx %s (nonce %d)", kind, hash.Hex(), spec.Nonce)

	outcome, block, reason := d.awaitReceipt(ctx, hash)
	txSubmissions.WithLabelValues(kind.String(), outcome.String()).Inc()
	if outcome == Confirmed {
		log.Printf("Tx %s confirmed in block %d", hash.Hex(), block)
	}
	return outcome, hash, reason
}

// revertReason recovers the cause of a reverted transaction from the ledger. The classification of a failed tick
// depends on the contract's revert string, so a synthesized placeholder is only the fallback.
func (d *Dispatcher) revertReason(ctx context.Context, hash common.Hash, block uint64) string {
	cause, err := d.gw.RevertReason(ctx, hash, block)
	if err != nil {
		log.Printf("Cannot recover revert reason for %s: %v", hash.Hex(), err)
	}
	if cause == "" {
		return fmt.Sprintf("transaction %s reverted in block %d", hash.Hex(), block)
	}
	return cause
}

// awaitReceipt polls the ledger at a fixed interval until a receipt appears or the context ends. The wait is
// unbounded: the poll interval is the only pacing, matching the ledger's own latency.
func (d *Dispatcher) awaitReceipt(ctx context.Context, hash common.Hash) (Outcome, uint64, string) {
	for {
		r, err := d.gw.Receipt(ctx, hash)
		switch {
		case err == nil:
			if r.Status == ltypes.ReceiptSuccess {
				return Confirmed, r.Block, ""
			}
			return Reverted, r.Block, d.revertReason(ctx, hash, r.Block)
		case errors.Is(err, ltypes.ErrNoReceipt):
			// still pending
		case ctx.Err() != nil:
			return SubmitFailed, 0, "confirmation wait cancelled: " + ctx.Err().Error()
		default:
			log.Printf("Receipt query for %s failed: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return SubmitFailed, 0, "confirmation wait cancelled: " + ctx.Err().Error()
		case <-time.After(d.poll):
		}
	}
}
