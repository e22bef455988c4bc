package bridge

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ltypes "github.com/marketgame/bridge/lib/ledger/types"
)

// FundFailure records one player whose top-up failed during a restart. The restart keeps going past these; they are
// reported at the end instead of aborting the round for everyone.
type FundFailure struct {
	Addr   common.Address
	Reason string
}

func (f FundFailure) String() string {
	return fmt.Sprintf("%s: %s", f.Addr.Hex(), f.Reason)
}

// restartGame runs the three-phase restart: top every known player back up to the fund target, reset the contract,
// start a new round of gameBlocks blocks. A funding failure skips that player only; a reset or start failure aborts
// so a half-restarted round is never announced. Runs on the dispatcher goroutine so its writes share the same nonce
// sequence as every other backend write.
func (d *Dispatcher) restartGame(ctx context.Context) error {
	players := d.state.Players()
	log.Printf("Restarting game: funding %d players, then reset and start (%d blocks)", len(players), d.gameBlocks)

	failures := d.refundPlayers(ctx, players)

	outcome, hash, reason := d.submit(ctx, CmdRestart, &d.contract, nil, ltypes.ResetCall(), resetGasLimit)
	if outcome != Confirmed {
		return fmt.Errorf("reset tx %s failed, round not restarted: %s", hash.Hex(), reason)
	}
	log.Printf("Reset tx %s confirmed", hash.Hex())

	outcome, hash, reason = d.submit(ctx, CmdRestart, &d.contract, nil, ltypes.StartCall(d.gameBlocks), startGasLimit)
	if outcome != Confirmed {
		return fmt.Errorf("start tx %s failed after reset, round not restarted: %s", hash.Hex(), reason)
	}
	log.Printf("Start tx %s confirmed, new round of %d blocks", hash.Hex(), d.gameBlocks)

	for _, f := range failures {
		log.Printf("WARN: restart funding failed for %s", f)
	}
	return nil
}

// refundPlayers tops each player up to the fund target ahead of a new round. Already-funded players are skipped and
// shortfalls are topped up to exactly the target, so a restart spends the minimum.
func (d *Dispatcher) refundPlayers(ctx context.Context, players []common.Address) []FundFailure {
	var failures []FundFailure
	for _, addr := range players {
		bal, err := d.gw.Balance(ctx, addr)
		if err != nil {
			failures = append(failures, FundFailure{Addr: addr, Reason: "cannot read balance: " + err.Error()})
			continue
		}
		if bal.Cmp(fundedThreshold) >= 0 {
			continue
		}
		shortfall := new(big.Int).Sub(fundTarget, bal)
		if shortfall.Sign() <= 0 {
			continue
		}
		outcome, hash, reason := d.submit(ctx, CmdFund, &addr, shortfall, nil, fundGasLimit)
		if outcome != Confirmed {
			log.Printf("Restart funding tx %s for %s failed: %s", hash.Hex(), addr.Hex(), reason)
			failures = append(failures, FundFailure{Addr: addr, Reason: reason})
			continue
		}
		d.hub.Broadcast(NewFunded(addr, shortfall.Uint64()))
	}
	return failures
}
