package bridge

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marketgame/bridge/bridge/gamestate"
	"github.com/marketgame/bridge/lib/ledger"
	ltypes "github.com/marketgame/bridge/lib/ledger/types"
)

// fakeGateway implements ledger.Gateway against in-memory state so dispatcher flows can be tested without a node.
type fakeGateway struct {
	mu        sync.Mutex
	signer    common.Address
	balances  map[common.Address]*big.Int
	count     uint64 // TransactionCount result
	countErr  error
	sendErr   error // consumed by the next Send
	sent      []ltypes.TxSpec
	revert    bool   // confirmed receipts report failure status
	revertWhy string // reason recovered for reverted transactions
	raw       [][]byte
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		signer:   common.HexToAddress("0xbac49d"),
		balances: make(map[common.Address]*big.Int),
	}
}

func (g *fakeGateway) Signer() common.Address { return g.signer }
func (g *fakeGateway) Close()                 {}

func (g *fakeGateway) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (g *fakeGateway) TransactionCount(ctx context.Context, account common.Address) (uint64, error) {
	return g.count, g.countErr
}

func (g *fakeGateway) Send(ctx context.Context, spec ltypes.TxSpec) (common.Hash, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		err := g.sendErr
		g.sendErr = nil
		return common.Hash{}, err
	}
	if spec.To != nil {
		to := *spec.To // snapshot: the caller's pointer is only valid for the duration of Send
		spec.To = &to
	}
	g.sent = append(g.sent, spec)
	return common.BigToHash(big.NewInt(int64(len(g.sent)))), nil
}

func (g *fakeGateway) SendRaw(ctx context.Context, raw []byte) (common.Hash, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.raw = append(g.raw, raw)
	return common.BigToHash(big.NewInt(int64(len(g.raw)))), nil
}

func (g *fakeGateway) Receipt(ctx context.Context, hash common.Hash) (*ltypes.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := ltypes.ReceiptSuccess
	if g.revert {
		status = ltypes.ReceiptFailed
	}
	return &ltypes.Receipt{Status: status, Block: 1}, nil
}

func (g *fakeGateway) RevertReason(ctx context.Context, hash common.Hash, block uint64) (string, error) {
	return g.revertWhy, nil
}

func (g *fakeGateway) SubscribeLogs(ctx context.Context, contract common.Address, ch chan<- ltypes.RawLog) (ledger.Subscription, error) {
	return fakeSub{}, nil
}

func (g *fakeGateway) SubscribeBlocks(ctx context.Context, ch chan<- ltypes.BlockHead) (ledger.Subscription, error) {
	return fakeSub{}, nil
}

// sentSpecs returns a copy of the transactions the gateway accepted.
func (g *fakeGateway) sentSpecs() []ltypes.TxSpec {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ltypes.TxSpec{}, g.sent...)
}

type fakeSub struct{}

func (fakeSub) Unsubscribe()      {}
func (fakeSub) Err() <-chan error { return make(chan error) }

var testContract = common.HexToAddress("0xc0ffee")

func newTestDispatcher(gw *fakeGateway, startNonce uint64) (*Dispatcher, *gamestate.State, *Hub) {
	state := gamestate.New(startNonce)
	hub := NewHub()
	return NewDispatcher(gw, state, hub, testContract, 300), state, hub
}

func TestFundAlreadyFunded(t *testing.T) {
	gw := newFakeGateway()
	d, state, _ := newTestDispatcher(gw, 0)
	addr := common.HexToAddress("0xaa")

	gw.balances[addr] = big.NewInt(400_000_000_000_000_000) // above half the target
	state.SetPosition(addr, 290, 5, 40)

	reply := make(chan ServerMessage, 10)
	d.fund(context.Background(), addr, reply)

	if got := len(gw.sentSpecs()); got != 0 {
		t.Fatalf("funded account still got %d transactions", got)
	}
	if m := <-reply; m.(PositionMsg).Balance != 290 {
		t.Errorf("expected the mirrored position first, got %+v", m)
	}
	if m := <-reply; m.(FundedMsg).Amount != 400_000_000_000_000_000 {
		t.Errorf("expected funded with the observed balance, got %+v", m)
	}
}

func TestFundSubmitsTarget(t *testing.T) {
	gw := newFakeGateway()
	d, state, _ := newTestDispatcher(gw, 3)
	addr := common.HexToAddress("0xaa")

	reply := make(chan ServerMessage, 10)
	d.fund(context.Background(), addr, reply)

	sent := gw.sentSpecs()
	if len(sent) != 1 {
		t.Fatalf("got %d transactions, want 1", len(sent))
	}
	tx := sent[0]
	if *tx.To != addr || tx.Value.Cmp(fundTarget) != 0 || tx.GasLimit != fundGasLimit || tx.Nonce != 3 {
		t.Errorf("funding tx wrong: %+v", tx)
	}
	if m := <-reply; m.(FundedMsg).Address != addr.Hex() {
		t.Errorf("expected funded reply, got %+v", m)
	}
	if state.Nonce() != 4 {
		t.Errorf("nonce after funding = %d, want 4", state.Nonce())
	}
}

func TestFundReverted(t *testing.T) {
	gw := newFakeGateway()
	gw.revert = true
	d, _, _ := newTestDispatcher(gw, 0)
	addr := common.HexToAddress("0xaa")

	reply := make(chan ServerMessage, 10)
	d.fund(context.Background(), addr, reply)

	if m := <-reply; m.(FundErrorMsg).Address != addr.Hex() {
		t.Errorf("expected fund_error reply, got %+v", m)
	}
}

// TestTickBenignRace checks a tick losing the per-block race consumes its nonce but neither resyncs nor alarms
// the clients.
func TestTickBenignRace(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErr = errors.New("execution reverted: Already ticked this block")
	d, state, hub := newTestDispatcher(gw, 5)
	sub := hub.Subscribe()

	d.tick(context.Background())

	if got := state.Nonce(); got != 6 {
		t.Errorf("nonce after benign tick failure = %d, want 6 (reservation consumed, no skip)", got)
	}
	select {
	case m := <-sub.C:
		t.Errorf("benign race broadcast %+v to clients", m)
	default:
	}
}

// TestTickRevertedBenign checks a tick reverted by the contract's per-block guard stays silent: the revert cause
// is recovered from the ledger and classified as a benign race, with no resync and no client broadcast.
func TestTickRevertedBenign(t *testing.T) {
	gw := newFakeGateway()
	gw.revert = true
	gw.revertWhy = "execution reverted: Already ticked this block"
	gw.count = 42 // must not be consulted
	d, state, hub := newTestDispatcher(gw, 5)
	sub := hub.Subscribe()

	d.tick(context.Background())

	if got := state.Nonce(); got != 6 {
		t.Errorf("nonce after benign revert = %d, want 6 (reservation consumed, no skip, no adoption)", got)
	}
	select {
	case m := <-sub.C:
		t.Errorf("benign revert broadcast %+v to clients", m)
	default:
	}
}

// TestTickRevertedUnknownReason checks a revert whose cause cannot be recovered still runs the full resync and
// alarms the clients.
func TestTickRevertedUnknownReason(t *testing.T) {
	gw := newFakeGateway()
	gw.revert = true // revertWhy empty: replay recovered nothing
	gw.count = 42
	d, state, hub := newTestDispatcher(gw, 5)
	sub := hub.Subscribe()

	d.tick(context.Background())

	if got := state.Nonce(); got != 42 {
		t.Errorf("nonce after unexplained revert = %d, want chain count 42", got)
	}
	select {
	case m := <-sub.C:
		if _, ok := m.(TxErrorMsg); !ok {
			t.Errorf("got %+v, want tx_error", m)
		}
	default:
		t.Error("unexplained revert produced no client broadcast")
	}
}

func TestTickSuperseded(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErr = errors.New("replaced by a pending transaction with higher priority")
	d, state, _ := newTestDispatcher(gw, 5)

	d.tick(context.Background())

	// 5 consumed by the reservation, then the skip
	if got := state.Nonce(); got != 6+nonceSkip {
		t.Errorf("nonce after superseded tick = %d, want %d", got, 6+nonceSkip)
	}
}

func TestTickUnknownFailureAdoptsChainCount(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErr = errors.New("nonce too low")
	gw.count = 42
	d, state, _ := newTestDispatcher(gw, 5)

	d.tick(context.Background())

	if got := state.Nonce(); got != 42 {
		t.Errorf("nonce after resync = %d, want chain count 42", got)
	}
}

func TestTickUnknownFailureKeepsHigherLocal(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErr = errors.New("nonce too low")
	gw.count = 3 // behind: txs in flight
	d, state, _ := newTestDispatcher(gw, 5)

	d.tick(context.Background())

	if got := state.Nonce(); got != 6 {
		t.Errorf("nonce after resync with stale chain count = %d, want 6", got)
	}
}

func TestResyncClassification(t *testing.T) {
	cases := []struct {
		reason string
		want   resyncAction
	}{
		{"execution reverted: Already ticked this block", resyncBenign},
		{"Already processed", resyncBenign},
		{"pending tx with higher priority", resyncSkipped},
		{"superseded by a newer transaction", resyncSkipped},
		{"nonce too low", resyncChecked},
		{"connection refused", resyncChecked},
	}
	for _, c := range cases {
		gw := newFakeGateway()
		gw.count = 0
		d, _, _ := newTestDispatcher(gw, 5)
		if got := d.resync(context.Background(), c.reason); got != c.want {
			t.Errorf("resync(%q) = %v, want %v", c.reason, got, c.want)
		}
	}

	// unreachable chain: nothing to adopt from
	gw := newFakeGateway()
	gw.countErr = errors.New("connection refused")
	d, state, _ := newTestDispatcher(gw, 5)
	if got := d.resync(context.Background(), "some failure"); got != resyncAbandoned {
		t.Errorf("resync without chain = %v, want %v", got, resyncAbandoned)
	}
	if state.Nonce() != 5 {
		t.Errorf("abandoned resync moved the nonce to %d", state.Nonce())
	}
}

func TestGameOverBroadcast(t *testing.T) {
	gw := newFakeGateway()
	d, _, hub := newTestDispatcher(gw, 0)
	sub := hub.Subscribe()

	d.handle(context.Background(), Command{Kind: CmdGameOver})

	select {
	case m := <-sub.C:
		if _, ok := m.(GameEndedMsg); !ok {
			t.Errorf("got %+v, want game_ended", m)
		}
	default:
		t.Error("game over produced no broadcast")
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	gw := newFakeGateway()
	d, _, _ := newTestDispatcher(gw, 0)

	for i := 0; i < commandQueueSize; i++ {
		if !d.Enqueue(Command{Kind: CmdTick}) {
			t.Fatalf("enqueue %d rejected before the queue was full", i)
		}
	}
	if d.Enqueue(Command{Kind: CmdTick}) {
		t.Error("enqueue accepted beyond the queue capacity")
	}
}
