package bridge

import (
	"context"
	"log"

	"github.com/marketgame/bridge/bridge/gamestate"
	"github.com/marketgame/bridge/lib/ledger/types"
)

// watchBlocks consumes the mined-head stream. Every head updates the mirrored height and is broadcast; while a game
// window is open each head also queues a tick, and the first head at or past the window's end queues game over. Ticks
// go through the dispatcher so they share the writer's nonce sequence; a full queue drops the tick and the next block
// retries.
func watchBlocks(ctx context.Context, heads <-chan types.BlockHead, state *gamestate.State, hub *Hub, disp *Dispatcher, proj *Projector) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-heads:
			if !ok {
				return
			}
			tick, over := state.ObserveBlock(h.Number)
			hub.Broadcast(NewCurrentBlockHeight(h.Number))
			if over {
				log.Printf("Block %d ends the game window", h.Number)
				proj.checkpoint()
				if !disp.Enqueue(Command{Kind: CmdGameOver}) {
					log.Printf("WARN: command queue full, game over notification dropped")
				}
				continue
			}
			if tick {
				if !disp.Enqueue(Command{Kind: CmdTick}) {
					log.Printf("DEBUG: command queue full, tick for block %d skipped", h.Number)
				}
			}
		}
	}
}
