// Package bridge implements the bridge microservice.
//
// The bridge sits between the game contract on the ledger and the browser clients: it mirrors the contract's event
// stream into an in-process state aggregate, fans updates out to every connected websocket session, and serializes
// all backend writes (funding, ticks, restarts) through a single dispatcher so the writer account's nonce sequence
// never forks.
package bridge

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marketgame/bridge/bridge/gamestate"
	"github.com/marketgame/bridge/lib/ledger"
	"github.com/marketgame/bridge/lib/ledger/types"
	"github.com/marketgame/bridge/lib/msg"
	"github.com/marketgame/bridge/lib/store"
	"github.com/marketgame/bridge/lib/store/db"
)

const logBuffer = 256

// Service contains the data necessary to deliver the bridge service.
type Service struct {
	dbtype     string
	db         store.DB       // db connection
	mb         msg.MsgBroker  // message broker
	gw         ledger.Gateway // ledger connection
	state      *gamestate.State
	hub        *Hub
	disp       *Dispatcher
	proj       *Projector
	contract   common.Address
	gas        GasInfo
	gameBlocks uint64
	cancel     context.CancelFunc
	streamMu   sync.Mutex
	streamErr  error // set when a ledger subscription dies
	s          *http.Server  // http server
	sc         chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new bridge Service. dbConn and mb may be nil for a bridge without persistence or
// event mirroring.
func New(dbtype string, dbConn store.DB, mb msg.MsgBroker, gw ledger.Gateway, contract common.Address, gameBlocks uint64) *Service {
	return &Service{
		dbtype:     dbtype,
		db:         dbConn,
		mb:         mb,
		gw:         gw,
		contract:   contract,
		gameBlocks: gameBlocks,
		gas:        GasInfo{Register: registerGasCost, Buy: buyGasCost, Sell: sellGasCost},
	}
}

// Run seeds the state from the ledger and the store, opens the log and head subscriptions and starts the pipeline
// goroutines. A failure here is fatal: a bridge that cannot see the chain has nothing to serve.
func (b *Service) Run(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	// the writer's nonce sequence starts from the chain's authoritative count
	nonce, err := b.gw.TransactionCount(ctx, b.gw.Signer())
	if err != nil {
		return err
	}
	b.state = gamestate.New(nonce)
	log.Printf("Backend writer %s starting at nonce %d", b.gw.Signer().Hex(), nonce)

	b.hub = NewHub()
	b.disp = NewDispatcher(b.gw, b.state, b.hub, b.contract, b.gameBlocks)
	b.proj = NewProjector(b.state, b.hub, b.mb, b.db)

	b.restore()

	logs := make(chan types.RawLog, logBuffer)
	logSub, err := b.gw.SubscribeLogs(ctx, b.contract, logs)
	if err != nil {
		return err
	}
	heads := make(chan types.BlockHead, logBuffer)
	headSub, err := b.gw.SubscribeBlocks(ctx, heads)
	if err != nil {
		logSub.Unsubscribe()
		return err
	}

	go b.disp.Run(ctx)
	go b.proj.Run(ctx, logs)
	go watchBlocks(ctx, heads, b.state, b.hub, b.disp, b.proj)
	go b.watchSubscriptions(ctx, logSub, headSub, logs, heads)

	return nil
}

// restore seeds names and the last game checkpoint from the store so a restarted bridge greets reconnecting clients
// with what it knew before. Both loads are best-effort; the chain refreshes everything but the names.
func (b *Service) restore() {
	if b.db == nil {
		return
	}
	names, err := b.db.Names()
	if err != nil {
		log.Printf("Cannot load name registry: %v", err)
	} else if len(names) > 0 {
		m := make(map[common.Address]string, len(names))
		for addr, name := range names {
			m[common.HexToAddress(addr)] = name
		}
		b.state.LoadNames(m)
		log.Printf("Restored %d display names", len(m))
	}
	g, err := b.db.LoadGame()
	switch {
	case err == store.ErrDataNotFound:
	case err != nil:
		log.Printf("Cannot load game checkpoint: %v", err)
	default:
		b.state.SetPrice(g.Price)
		b.state.SetGameWindow(g.StartBlock, g.EndBlock)
		log.Printf("Restored game checkpoint: price %d, window %d-%d", g.Price, g.StartBlock, g.EndBlock)
	}
}

// watchSubscriptions waits for either ledger stream to die, then winds the whole pipeline down: both subscriptions
// are dropped and both consumer channels closed, so the projector and block watcher exit instead of serving an
// ever-staler mirror. The failure stays visible through Healthy and the home endpoint for the supervisor to act on.
func (b *Service) watchSubscriptions(ctx context.Context, logSub, headSub ledger.Subscription, logs chan types.RawLog, heads chan types.BlockHead) {
	var err error
	select {
	case <-ctx.Done():
	case err = <-logSub.Err():
	case err = <-headSub.Err():
	}
	logSub.Unsubscribe()
	headSub.Unsubscribe()
	if err != nil {
		log.Printf("Ledger stream lost: %v", err)
		b.streamMu.Lock()
		b.streamErr = err
		b.streamMu.Unlock()
	}
	close(logs)
	close(heads)
}

// Healthy returns nil while the ledger streams are delivering. A bridge with a lost stream keeps its sessions up
// but serves frozen state, which only this signal distinguishes from a quiet chain.
func (b *Service) Healthy() error {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	return b.streamErr
}

// Stop shuts down the http server and closes gracefully the connections to the message broker, the database and the
// ledger.
func (b *Service) Stop() {
	var err error
	if b.cancel != nil {
		b.cancel()
	}
	// shutdown http server
	if b.s != nil {
		if err = b.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if b.sc != nil {
		close(b.sc) // close server channel to indicate shutdown has finished
	}
	// close message broker
	if b.mb != nil {
		if err = b.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%e", err)
		}
	}
	// close database
	if b.db != nil {
		err = db.Close(b.db)
		log.Printf("Disconnecting %v database, err:%e\n", b.dbtype, err)
	}
	// close ledger connection
	b.gw.Close()
}
