package bridge

import (
	"context"
	"errors"
	"log"

	"github.com/marketgame/bridge/bridge/gamestate"
	"github.com/marketgame/bridge/lib/ledger/types"
	"github.com/marketgame/bridge/lib/msg"
	"github.com/marketgame/bridge/lib/store"
)

// Projector consumes the contract's log stream and projects each decoded event onto the shared state, the broadcast
// hub, the message broker and the checkpoint store. It is the only writer of price, positions and the game window.
type Projector struct {
	state *gamestate.State
	hub   *Hub
	mb    msg.MsgBroker
	db    store.DB
}

// NewProjector returns a projector. mb and db may be nil when the bridge runs without a broker or store.
func NewProjector(state *gamestate.State, hub *Hub, mb msg.MsgBroker, db store.DB) *Projector {
	return &Projector{state: state, hub: hub, mb: mb, db: db}
}

// Run consumes raw logs until the channel closes or the context ends. The subscription delivers at-least-once, so
// every log passes the seen-set before it is decoded.
func (p *Projector) Run(ctx context.Context, logs <-chan types.RawLog) {
	for {
		select {
		case <-ctx.Done():
			return
		case lg, ok := <-logs:
			if !ok {
				return
			}
			p.project(lg)
		}
	}
}

func (p *Projector) project(lg types.RawLog) {
	if !p.state.MarkSeen(gamestate.LogKey{TxHash: lg.TxHash, Index: lg.Index}) {
		return
	}

	ev, err := types.DecodeLog(lg)
	if err != nil {
		if errors.Is(err, types.ErrUnknownEvent) {
			log.Printf("DEBUG: dropping log %s/%d with unknown topic", lg.TxHash.Hex(), lg.Index)
		} else {
			log.Printf("Cannot decode log %s/%d: %v", lg.TxHash.Hex(), lg.Index, err)
		}
		return
	}
	chainEvents.WithLabelValues(ev.Kind()).Inc()

	switch e := ev.(type) {
	case types.PriceUpdate:
		p.state.SetPrice(e.NewPrice)
		p.hub.Broadcast(NewPriceUpdate(e.NewPrice, e.Block))

	case types.Bought:
		p.state.SetPosition(e.User, e.Balance, e.Holdings, e.Block)
		name, _ := p.state.Name(e.User)
		p.hub.Broadcast(NewTrade("bought", e.User, name, e.Amount, e.Price, e.Block, e.Balance, e.Holdings))
		p.hub.Broadcast(NewPosition(e.User, name, e.Balance, e.Holdings, e.Block))

	case types.Sold:
		p.state.SetPosition(e.User, e.Balance, e.Holdings, e.Block)
		name, _ := p.state.Name(e.User)
		p.hub.Broadcast(NewTrade("sold", e.User, name, e.Amount, e.Price, e.Block, e.Balance, e.Holdings))
		p.hub.Broadcast(NewPosition(e.User, name, e.Balance, e.Holdings, e.Block))

	case types.NewUser:
		// no state write: absence from the balances map already is the zero position, and a registration
		// must not advance the last-position watermark
		name, _ := p.state.Name(e.User)
		log.Printf("New user %s registered", e.User.Hex())
		p.hub.Broadcast(NewPosition(e.User, name, 0, 0, lg.Block))

	case types.GameStarted:
		p.state.SetGameWindow(e.StartBlock, e.EndBlock)
		log.Printf("Game started: blocks %d to %d", e.StartBlock, e.EndBlock)
		p.hub.Broadcast(NewGameStarted(e.StartBlock, e.EndBlock))
		p.checkpoint()
	}

	p.mirror(lg, ev)
}

// mirror publishes the decoded event to the message broker, best-effort.
func (p *Projector) mirror(lg types.RawLog, ev types.Event) {
	if p.mb == nil {
		return
	}
	ge := msg.GameEvent{Kind: ev.Kind(), TxHash: lg.TxHash.Hex(), LogIndex: lg.Index}
	switch e := ev.(type) {
	case types.PriceUpdate:
		ge.Price = e.NewPrice
		ge.Block = e.Block
	case types.Bought:
		ge.Address = e.User.Hex()
		ge.Amount = e.Amount
		ge.Price = e.Price
		ge.Balance = e.Balance
		ge.Holdings = e.Holdings
		ge.Block = e.Block
	case types.Sold:
		ge.Address = e.User.Hex()
		ge.Amount = e.Amount
		ge.Price = e.Price
		ge.Balance = e.Balance
		ge.Holdings = e.Holdings
		ge.Block = e.Block
	case types.NewUser:
		ge.Address = e.User.Hex()
		ge.Block = lg.Block
	case types.GameStarted:
		ge.StartBlock = e.StartBlock
		ge.EndBlock = e.EndBlock
	}
	if err := p.mb.SendEvent(ge); err != nil {
		log.Printf("Cannot publish %s event to broker: %v", ev.Kind(), err)
	}
}

// checkpoint saves the current game window and price so a restarted bridge resumes with the last known round.
func (p *Projector) checkpoint() {
	if p.db == nil {
		return
	}
	snap := p.state.Snapshot()
	g := store.Game{Price: snap.Price, StartBlock: snap.StartBlock, EndBlock: snap.EndBlock, Height: snap.Height}
	if err := p.db.SaveGame(g); err != nil {
		log.Printf("Cannot save game checkpoint: %v", err)
	}
}
