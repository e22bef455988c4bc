package bridge

import (
	"context"
	"log"
	"strings"
)

// nonceSkip is how far the nonce jumps forward to abandon a sequence position occupied by a stuck or superseded
// pending transaction.
const nonceSkip uint64 = 20

// resyncAction is the corrective action taken after a failed tick.
type resyncAction int

const (
	// resyncBenign: the tick lost a harmless race (someone else advanced the block first). No state change.
	resyncBenign resyncAction = iota
	// resyncSkipped: the nonce jumped forward past a stuck pending transaction.
	resyncSkipped
	// resyncChecked: the chain's authoritative count was consulted; the nonce was adopted when ahead, kept when not.
	resyncChecked
	// resyncAbandoned: the chain count could not be read; nothing changed this cycle.
	resyncAbandoned
)

// resync classifies a tick failure by its reason text and corrects the backend nonce accordingly. The chain read
// happens outside the state lock; the nonce comparison and adoption are atomic inside it.
func (d *Dispatcher) resync(ctx context.Context, reason string) resyncAction {
	r := strings.ToLower(reason)

	switch {
	case strings.Contains(r, "already ticked") || strings.Contains(r, "already processed"):
		return resyncBenign

	case strings.Contains(r, "higher priority") || strings.Contains(r, "superseded"):
		n := d.state.BumpNonce(nonceSkip)
		nonceResyncs.Inc()
		log.Printf("Tick superseded by pending tx, skipping nonce forward to %d", n)
		return resyncSkipped

	default:
		count, err := d.gw.TransactionCount(ctx, d.gw.Signer())
		if err != nil {
			log.Printf("Cannot read backend transaction count for resync: %v", err)
			return resyncAbandoned
		}
		n, adopted := d.state.AdoptNonce(count)
		if adopted {
			nonceResyncs.Inc()
			log.Printf("Nonce desync detected, adopted chain count %d", n)
		} else if count < n {
			log.Printf("WARN: chain count %d behind local nonce %d, keeping local (txs in flight)", count, n)
		}
		return resyncChecked
	}
}
