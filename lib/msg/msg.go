// Package msg defines the interface for different message brokers.
//
// The bridge mirrors every decoded chain event to the broker so off-process consumers (leaderboards, analytics) can
// follow the game without a ledger subscription of their own.
package msg

// GameEvent is the broker representation of one decoded chain event. Kind carries the event discriminant; the other
// fields are populated per kind.
type GameEvent struct {
	Kind       string `json:"kind"`
	TxHash     string `json:"txHash"`
	LogIndex   uint   `json:"logIndex"`
	Address    string `json:"address,omitempty"`
	Price      uint64 `json:"price,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	Balance    uint64 `json:"balance,omitempty"`
	Holdings   uint64 `json:"holdings,omitempty"`
	Block      uint64 `json:"block,omitempty"`
	StartBlock uint64 `json:"startBlock,omitempty"`
	EndBlock   uint64 `json:"endBlock,omitempty"`
}

type MsgBroker interface {
	Setup() error
	Close() error

	// SendEvent publishes one game event. Publishing is best-effort: the event pipeline never blocks on the broker.
	SendEvent(ev GameEvent) error
}
