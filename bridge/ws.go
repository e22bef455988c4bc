package bridge

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/marketgame/bridge/bridge/gamestate"
)

const ledgerCallTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the game client is served from a different origin than the bridge
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades the request and runs one client session: a writer goroutine owning the connection's send side,
// and the reader loop below handling inbound messages until the peer goes away.
func (b *Service) wsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("Cannot upgrade websocket request from %v: %v", r.RemoteAddr, err)
		return
	}
	log.Printf("Session open from %v", r.RemoteAddr)
	sessionCount.Inc()
	defer sessionCount.Dec()

	// Subscribe before snapshotting so no broadcast falls between the two. Events replayed on top of the snapshot
	// are absolute-state messages, so the duplication is harmless.
	sub := b.hub.Subscribe()
	defer sub.Close()
	snapshot := snapshotMessages(b.contract, b.gas, b.state.Snapshot())

	reply := make(chan ServerMessage, replyBuffer)
	done := make(chan struct{})
	defer close(done)

	go sessionWriter(conn, snapshot, sub, reply, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Session from %v closed: %v", r.RemoteAddr, err)
			return
		}
		b.handleClientMessage(data, reply)
	}
}

// sessionWriter is the single writer of the connection. It flushes the snapshot first, then interleaves hub
// broadcasts with session-private replies until either side closes.
func sessionWriter(conn *websocket.Conn, snapshot []ServerMessage, sub *Subscriber, reply <-chan ServerMessage, done <-chan struct{}) {
	defer conn.Close()
	for _, m := range snapshot {
		if err := conn.WriteJSON(m); err != nil {
			return
		}
	}
	for {
		select {
		case m, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case m := <-reply:
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// snapshotMessages builds the greeting sequence for a new session from one consistent state snapshot.
func snapshotMessages(contract common.Address, gas GasInfo, snap gamestate.Snapshot) []ServerMessage {
	msgs := []ServerMessage{
		NewConnectionInfo(contract, gas),
		NewCurrentPrice(snap.Price),
		NewCurrentBlockHeight(snap.Height),
	}
	if snap.HasGame {
		if snap.Height >= snap.EndBlock {
			msgs = append(msgs, NewGameEnded())
		} else {
			msgs = append(msgs, NewGameStarted(snap.StartBlock, snap.EndBlock))
		}
	}
	for addr, name := range snap.Names {
		msgs = append(msgs, NewNameSet(addr, name))
	}
	for _, p := range snap.Positions {
		msgs = append(msgs, NewPosition(p.Addr, p.Name, p.Balance, p.Holdings, snap.Height))
	}
	return msgs
}

// handleClientMessage dispatches one inbound message. Malformed or unknown messages get an error reply; the session
// stays up.
func (b *Service) handleClientMessage(data []byte, reply chan<- ServerMessage) {
	m, err := DecodeClientMessage(data)
	if err != nil {
		sendReply(reply, NewTxError(err.Error()))
		return
	}

	switch m.Type {
	case MsgSetName:
		b.setName(m, reply)
	case MsgRawTx:
		b.forwardRawTx(m, reply)
	case MsgGetNonce:
		b.nonceAndFund(m, reply)
	case MsgRestartGame:
		if !b.disp.Enqueue(Command{Kind: CmdRestart}) {
			sendReply(reply, NewTxError("backend busy, restart not queued"))
		}
	}
}

// setName records a display name in state and store and announces it to every session.
func (b *Service) setName(m ClientMessage, reply chan<- ServerMessage) {
	if !common.IsHexAddress(m.Address) {
		sendReply(reply, NewTxError("set_name: invalid address"))
		return
	}
	if m.Name == "" {
		sendReply(reply, NewTxError("set_name: empty name"))
		return
	}
	addr := common.HexToAddress(m.Address)
	b.state.SetName(addr, m.Name)
	if b.db != nil {
		if err := b.db.SetName(addr.Hex(), m.Name); err != nil {
			log.Printf("Cannot persist name for %s: %v", addr.Hex(), err)
		}
	}
	log.Printf("Name set: %s -> %q", addr.Hex(), m.Name)
	b.hub.Broadcast(NewNameSet(addr, m.Name))
}

// forwardRawTx submits a client-signed transaction verbatim and replies with its hash. The bridge never inspects or
// re-signs client transactions.
func (b *Service) forwardRawTx(m ClientMessage, reply chan<- ServerMessage) {
	raw, err := hexutil.Decode(m.RawTx)
	if err != nil {
		sendReply(reply, NewTxError("raw_tx: "+err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ledgerCallTimeout)
	defer cancel()
	hash, err := b.gw.SendRaw(ctx, raw)
	if err != nil {
		log.Printf("Raw tx rejected: %v", err)
		sendReply(reply, NewTxError(err.Error()))
		return
	}
	log.Printf("Forwarded raw tx %s", hash.Hex())
	sendReply(reply, NewTxSubmitted(hash.Hex()))
}

// nonceAndFund replies with the account's next nonce and queues a funding check so a fresh player can register
// right away.
func (b *Service) nonceAndFund(m ClientMessage, reply chan<- ServerMessage) {
	if !common.IsHexAddress(m.Address) {
		sendReply(reply, NewTxError("get_nonce: invalid address"))
		return
	}
	addr := common.HexToAddress(m.Address)
	ctx, cancel := context.WithTimeout(context.Background(), ledgerCallTimeout)
	defer cancel()
	nonce, err := b.gw.TransactionCount(ctx, addr)
	if err != nil {
		log.Printf("Cannot read nonce for %s: %v", addr.Hex(), err)
		sendReply(reply, NewTxError("get_nonce: "+err.Error()))
		return
	}
	sendReply(reply, NewNonceResponse(addr, nonce))
	if !b.disp.Enqueue(Command{Kind: CmdFund, Addr: addr, Reply: reply}) {
		sendReply(reply, NewFundError(addr, "backend busy, funding not queued"))
	}
}
