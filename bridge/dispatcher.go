package bridge

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marketgame/bridge/bridge/gamestate"
	"github.com/marketgame/bridge/lib/ledger"
	ltypes "github.com/marketgame/bridge/lib/ledger/types"
)

// Gas parameters per backend command kind, empirically fixed. No estimation: the writer's transactions are always
// the same calls against the same contract.
const (
	fundGasLimit  uint64 = 25000
	tickGasLimit  uint64 = 120000
	resetGasLimit uint64 = 200000
	startGasLimit uint64 = 90000
)

// Client-side gas costs of the contract's user operations, reported in ConnectionInfo.
const (
	registerGasCost uint64 = 115000
	buyGasCost      uint64 = 35529
	sellGasCost     uint64 = 35529
)

var (
	// writerGasPrice is shared by all backend writes.
	writerGasPrice = big.NewInt(0x21d664903c)
	// fundTarget is the top-up amount for an unfunded player, 0.5 native.
	fundTarget = big.NewInt(500_000_000_000_000_000)
	// fundedThreshold is the balance above which a player counts as funded. Half the target tolerates accounts
	// that already spent part of an earlier top-up.
	fundedThreshold = new(big.Int).Rsh(fundTarget, 1)
)

const (
	commandQueueSize    = 100
	replyBuffer         = 100
	receiptPollInterval = 200 * time.Millisecond
)

// CommandKind discriminates the write-intent commands accepted by the dispatcher.
type CommandKind int

const (
	CmdFund CommandKind = iota
	CmdTick
	CmdGameOver
	CmdRestart
)

func (k CommandKind) String() string {
	switch k {
	case CmdFund:
		return "fund"
	case CmdTick:
		return "tick"
	case CmdGameOver:
		return "gameOver"
	case CmdRestart:
		return "restart"
	}
	return "unknown"
}

// Command is one queued write intent. Reply, when set, receives the session-private outcome notifications.
type Command struct {
	Kind  CommandKind
	Addr  common.Address
	Reply chan<- ServerMessage
}

// Dispatcher serializes every backend write through one queue and one consumer, so the nonce sequence and command
// order coincide exactly. A stuck confirmation delays later commands; that head-of-line blocking is the accepted
// price for never submitting nonces out of order.
type Dispatcher struct {
	gw         ledger.Gateway
	state      *gamestate.State
	hub        *Hub
	contract   common.Address
	gameBlocks uint64
	poll       time.Duration
	cmds       chan Command
}

// NewDispatcher returns a dispatcher writing to the given contract. gameBlocks is the duration passed to the start
// call of the restart flow.
func NewDispatcher(gw ledger.Gateway, state *gamestate.State, hub *Hub, contract common.Address, gameBlocks uint64) *Dispatcher {
	return &Dispatcher{
		gw:         gw,
		state:      state,
		hub:        hub,
		contract:   contract,
		gameBlocks: gameBlocks,
		poll:       receiptPollInterval,
		cmds:       make(chan Command, commandQueueSize),
	}
}

// Enqueue queues a command for the single consumer. Returns false when the queue is full; the caller decides whether
// that matters (a dropped tick is made up for by the next block, a dropped fund is reported to the session).
func (d *Dispatcher) Enqueue(c Command) bool {
	select {
	case d.cmds <- c:
		return true
	default:
		return false
	}
}

// Run consumes commands until the context is cancelled. One full reserve-submit-confirm-classify cycle completes
// before the next command is pulled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-d.cmds:
			d.handle(ctx, c)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, c Command) {
	switch c.Kind {
	case CmdFund:
		d.fund(ctx, c.Addr, c.Reply)
	case CmdTick:
		d.tick(ctx)
	case CmdGameOver:
		log.Printf("Game over, notifying all sessions")
		d.hub.Broadcast(NewGameEnded())
	case CmdRestart:
		if err := d.restartGame(ctx); err != nil {
			log.Printf("Game restart failed: %v", err)
		}
	}
}

// fund tops a player account up to the fund target. An account already above the funded threshold gets its position
// and a funded notification without any transaction.
func (d *Dispatcher) fund(ctx context.Context, addr common.Address, reply chan<- ServerMessage) {
	bal, err := d.gw.Balance(ctx, addr)
	if err != nil {
		log.Printf("Cannot read balance for %s: %v", addr.Hex(), err)
		sendReply(reply, NewFundError(addr, "cannot read balance: "+err.Error()))
		return
	}

	if bal.Cmp(fundedThreshold) >= 0 {
		log.Printf("Address %s already funded (%s wei)", addr.Hex(), bal)
		if balance, holdings, ok := d.state.Position(addr); ok {
			name, _ := d.state.Name(addr)
			sendReply(reply, NewPosition(addr, name, balance, holdings, d.state.Height()))
		}
		sendReply(reply, NewFunded(addr, bal.Uint64()))
		txSubmissions.WithLabelValues(CmdFund.String(), "skipped").Inc()
		return
	}

	log.Printf("Funding %s with %s wei", addr.Hex(), fundTarget)
	outcome, hash, reason := d.submit(ctx, CmdFund, &addr, fundTarget, nil, fundGasLimit)
	if outcome == Confirmed {
		sendReply(reply, NewFunded(addr, fundTarget.Uint64()))
		return
	}
	log.Printf("Funding tx %s for %s failed: %s", hash.Hex(), addr.Hex(), reason)
	sendReply(reply, NewFundError(addr, reason))
}

// tick advances the game state machine. Failures run through the nonce resync; only non-benign failures are
// surfaced to clients.
func (d *Dispatcher) tick(ctx context.Context) {
	outcome, hash, reason := d.submit(ctx, CmdTick, &d.contract, nil, ltypes.TickCall(), tickGasLimit)
	if outcome == Confirmed {
		log.Printf("Tick tx %s confirmed", hash.Hex())
		return
	}
	if d.resync(ctx, reason) == resyncBenign {
		log.Printf("DEBUG: tick lost benign race: %s", reason)
		return
	}
	log.Printf("Tick tx failed: %s", reason)
	d.hub.Broadcast(NewTxError("tick failed: " + reason))
}

// sendReply delivers a session-private message best-effort: a full or absent reply channel never blocks the
// dispatcher.
func sendReply(reply chan<- ServerMessage, m ServerMessage) {
	if reply == nil {
		return
	}
	select {
	case reply <- m:
	default:
		droppedBroadcasts.Inc()
	}
}
