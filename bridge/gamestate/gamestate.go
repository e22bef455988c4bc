// Package gamestate holds the shared derived state of the game as mirrored from the ledger, guarded by one
// reader/writer lock. Every accessor holds the lock only for the mutation or copy itself; callers never keep it
// across a ledger call or a socket send.
package gamestate

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultPrice is the share price before the first PriceUpdate event is observed.
const DefaultPrice uint64 = 50

// LogKey identifies one ledger log for deduplication.
type LogKey struct {
	TxHash common.Hash
	Index  uint
}

// PlayerPosition is one player's mirrored balance and holdings.
type PlayerPosition struct {
	Addr     common.Address
	Name     string
	Balance  uint64
	Holdings uint64
}

// Snapshot is a consistent copy of the state used to seed a freshly connected session.
type Snapshot struct {
	Price      uint64
	Height     uint64
	HasGame    bool
	StartBlock uint64
	EndBlock   uint64
	Names      map[common.Address]string
	Positions  []PlayerPosition
}

// State is the process-wide game state aggregate. It is created once at startup, seeded from the ledger, and mutated
// only through its methods.
type State struct {
	mu                sync.RWMutex
	names             map[common.Address]string
	balances          map[common.Address]uint64
	holdings          map[common.Address]uint64
	seen              map[LogKey]struct{}
	currentPrice      uint64
	backendNonce      uint64
	lastPositionBlock uint64
	gameStartBlock    uint64
	gameEndBlock      uint64 // 0 = no active window
	currentHeight     uint64
	lastEndedWindow   uint64 // watermark so a window fires GameOver once
}

// New returns a State with the default price and the given starting backend nonce.
func New(startNonce uint64) *State {
	return &State{
		names:        make(map[common.Address]string),
		balances:     make(map[common.Address]uint64),
		holdings:     make(map[common.Address]uint64),
		seen:         make(map[LogKey]struct{}),
		currentPrice: DefaultPrice,
		backendNonce: startNonce,
	}
}

// ReserveNonce atomically returns the next backend nonce and advances the counter. Concurrent callers never observe
// the same value.
func (s *State) ReserveNonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.backendNonce
	s.backendNonce++
	return n
}

// Nonce returns the next nonce without reserving it.
func (s *State) Nonce() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backendNonce
}

// BumpNonce jumps the backend nonce forward by skip to abandon a stuck sequence position, returning the new value.
func (s *State) BumpNonce(skip uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendNonce += skip
	return s.backendNonce
}

// AdoptNonce reconciles the local nonce with the chain-reported transaction count. The count is adopted only when it
// is ahead of the local value: a lower count means unconfirmed transactions are still in flight and adopting it would
// risk nonce reuse. Returns the resulting nonce and whether the chain value was adopted.
func (s *State) AdoptNonce(chainCount uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chainCount > s.backendNonce {
		s.backendNonce = chainCount
		return s.backendNonce, true
	}
	return s.backendNonce, false
}

// MarkSeen records the log key, returning false if it had been seen before. The seen set only grows.
func (s *State) MarkSeen(k LogKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

// SetPrice overwrites the current price.
func (s *State) SetPrice(p uint64) {
	s.mu.Lock()
	s.currentPrice = p
	s.mu.Unlock()
}

// Price returns the current price.
func (s *State) Price() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPrice
}

// SetPosition overwrites the player's balance and holdings (last write wins, the ledger delivers in order) and
// records the block of the latest observed position.
func (s *State) SetPosition(addr common.Address, balance, holdings, block uint64) {
	s.mu.Lock()
	s.balances[addr] = balance
	s.holdings[addr] = holdings
	if block > s.lastPositionBlock {
		s.lastPositionBlock = block
	}
	s.mu.Unlock()
}

// Position returns the player's mirrored balance and holdings. ok is false when no position event has been observed
// for the address; absence is the default zero position.
func (s *State) Position(addr common.Address) (balance, holdings uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok = s.balances[addr]
	holdings = s.holdings[addr]
	return
}

// LastPositionBlock returns the block number of the most recent observed player position.
func (s *State) LastPositionBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPositionBlock
}

// SetName records the display name for an address.
func (s *State) SetName(addr common.Address, name string) {
	s.mu.Lock()
	s.names[addr] = name
	s.mu.Unlock()
}

// Name returns the display name for an address, if one was set.
func (s *State) Name(addr common.Address) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[addr]
	return name, ok
}

// LoadNames seeds the name registry, typically from the store at startup.
func (s *State) LoadNames(names map[common.Address]string) {
	s.mu.Lock()
	for addr, name := range names {
		s.names[addr] = name
	}
	s.mu.Unlock()
}

// Players returns every address known to the game: anyone with a name or an observed position.
func (s *State) Players() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[common.Address]struct{}, len(s.names)+len(s.balances))
	for addr := range s.names {
		set[addr] = struct{}{}
	}
	for addr := range s.balances {
		set[addr] = struct{}{}
	}
	players := make([]common.Address, 0, len(set))
	for addr := range set {
		players = append(players, addr)
	}
	return players
}

// SetGameWindow records a new active game window.
func (s *State) SetGameWindow(start, end uint64) {
	s.mu.Lock()
	s.gameStartBlock = start
	s.gameEndBlock = end
	s.mu.Unlock()
}

// GameWindow returns the current game window. ok is false when no window has been observed.
func (s *State) GameWindow() (start, end uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameStartBlock, s.gameEndBlock, s.gameEndBlock != 0
}

// Height returns the latest observed block height.
func (s *State) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentHeight
}

// ObserveBlock records a new block height and decides what the new block triggers: a tick while the game window is
// open, or a one-shot game over when the height first reaches the window's end. A window that already fired game
// over never fires again.
func (s *State) ObserveBlock(height uint64) (tick, over bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentHeight = height
	if s.gameEndBlock == 0 {
		return false, false
	}
	if height >= s.gameEndBlock {
		if s.lastEndedWindow < s.gameEndBlock {
			s.lastEndedWindow = s.gameEndBlock
			return false, true
		}
		return false, false
	}
	return true, false
}

// Snapshot returns a deep copy of the client-visible state for seeding a new session.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Price:      s.currentPrice,
		Height:     s.currentHeight,
		HasGame:    s.gameEndBlock != 0,
		StartBlock: s.gameStartBlock,
		EndBlock:   s.gameEndBlock,
		Names:      make(map[common.Address]string, len(s.names)),
		Positions:  make([]PlayerPosition, 0, len(s.balances)),
	}
	for addr, name := range s.names {
		snap.Names[addr] = name
	}
	for addr, balance := range s.balances {
		snap.Positions = append(snap.Positions, PlayerPosition{
			Addr:     addr,
			Name:     s.names[addr],
			Balance:  balance,
			Holdings: s.holdings[addr],
		})
	}
	return snap
}
