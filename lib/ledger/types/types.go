// Package types holds the common ledger types shared by the gateway implementations and the event pipeline.
package types

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Receipt status constants.
const (
	ReceiptFailed  uint64 = 0
	ReceiptSuccess uint64 = 1
)

// TxSpec contains the fields required to build one backend write. Gas parameters are always explicit: the submitter
// owns them per command kind and no estimation is performed.
type TxSpec struct {
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
}

// Receipt is the confirmed outcome of a submitted transaction.
type Receipt struct {
	Status uint64
	Block  uint64
}

// RawLog is one contract log as delivered by the ledger subscription. The stream is ordered but may redeliver, so
// (TxHash, Index) identifies a log uniquely for deduplication.
type RawLog struct {
	TxHash common.Hash
	Index  uint
	Topics []common.Hash
	Data   []byte
	Block  uint64
}

// BlockHead is a mined block header notification.
type BlockHead struct {
	Number uint64
	Time   uint64
}

// Error codes.
var (
	ErrNoReceipt      = errors.New("transaction receipt not available yet")
	ErrUnknownEvent   = errors.New("log topic does not match a known game event")
	ErrShortEventData = errors.New("malformed log, data too short for event")
	ErrNoTopics       = errors.New("malformed log, no topics")
)

// Topic hashes of the game contract events.
var (
	TopicPriceUpdate = crypto.Keccak256Hash([]byte("PriceUpdate(uint256,uint256,uint256)"))
	TopicBought      = crypto.Keccak256Hash([]byte("Bought(address,uint256,uint256,uint256,uint256,uint256)"))
	TopicSold        = crypto.Keccak256Hash([]byte("Sold(address,uint256,uint256,uint256,uint256,uint256)"))
	TopicNewUser     = crypto.Keccak256Hash([]byte("NewUser(address)"))
	TopicGameStarted = crypto.Keccak256Hash([]byte("GameStarted(uint256,uint256)"))
)

// Method selectors of the backend contract calls.
var (
	selectorTick  = crypto.Keccak256([]byte("tick()"))[:4]
	selectorReset = crypto.Keccak256([]byte("reset()"))[:4]
	selectorStart = crypto.Keccak256([]byte("start(uint256)"))[:4]
)

// Event is one decoded contract log. The set of implementations is closed: PriceUpdate, Bought, Sold, NewUser and
// GameStarted.
type Event interface {
	Kind() string
}

// PriceUpdate reports the new share price after a tick or trade.
type PriceUpdate struct {
	OldPrice uint64
	NewPrice uint64
	Block    uint64
}

// Bought reports a player purchase and the resulting position.
type Bought struct {
	User     common.Address
	Amount   uint64
	Price    uint64
	Block    uint64
	Balance  uint64
	Holdings uint64
}

// Sold reports a player sale and the resulting position.
type Sold struct {
	User     common.Address
	Amount   uint64
	Price    uint64
	Block    uint64
	Balance  uint64
	Holdings uint64
}

// NewUser reports a first-time registration on the contract.
type NewUser struct {
	User common.Address
}

// GameStarted reports the block window of a freshly started game round.
type GameStarted struct {
	StartBlock uint64
	EndBlock   uint64
}

func (PriceUpdate) Kind() string { return "priceUpdate" }
func (Bought) Kind() string      { return "bought" }
func (Sold) Kind() string        { return "sold" }
func (NewUser) Kind() string     { return "newUser" }
func (GameStarted) Kind() string { return "gameStarted" }

// TickCall returns the call data to advance the game state machine by one tick.
func TickCall() []byte {
	return append([]byte{}, selectorTick...)
}

// ResetCall returns the call data to reset the game.
func ResetCall() []byte {
	return append([]byte{}, selectorReset...)
}

// StartCall returns the call data to start a game lasting the given number of blocks.
func StartCall(blocks uint64) []byte {
	data := append([]byte{}, selectorStart...)
	var arg [32]byte
	new(big.Int).SetUint64(blocks).FillBytes(arg[:])
	return append(data, arg[:]...)
}

// DecodeLog dispatches on the log's first topic and decodes it into one of the Event implementations. Unrecognized
// topics yield ErrUnknownEvent so callers can drop them without failing the pipeline.
func DecodeLog(lg RawLog) (Event, error) {
	if len(lg.Topics) == 0 {
		return nil, ErrNoTopics
	}
	switch lg.Topics[0] {
	case TopicPriceUpdate:
		old, err := wordUint64(lg.Data, 0)
		if err != nil {
			return nil, err
		}
		newPrice, err := wordUint64(lg.Data, 1)
		if err != nil {
			return nil, err
		}
		block, err := wordUint64(lg.Data, 2)
		if err != nil {
			return nil, err
		}
		return PriceUpdate{OldPrice: old, NewPrice: newPrice, Block: block}, nil
	case TopicBought:
		user, words, err := tradeFields(lg)
		if err != nil {
			return nil, err
		}
		return Bought{User: user, Amount: words[0], Price: words[1], Block: words[2], Balance: words[3], Holdings: words[4]}, nil
	case TopicSold:
		user, words, err := tradeFields(lg)
		if err != nil {
			return nil, err
		}
		return Sold{User: user, Amount: words[0], Price: words[1], Block: words[2], Balance: words[3], Holdings: words[4]}, nil
	case TopicNewUser:
		user, err := topicAddress(lg)
		if err != nil {
			return nil, err
		}
		return NewUser{User: user}, nil
	case TopicGameStarted:
		start, err := wordUint64(lg.Data, 0)
		if err != nil {
			return nil, err
		}
		end, err := wordUint64(lg.Data, 1)
		if err != nil {
			return nil, err
		}
		return GameStarted{StartBlock: start, EndBlock: end}, nil
	}
	return nil, ErrUnknownEvent
}

// tradeFields decodes the indexed user plus the five uint words shared by Bought and Sold.
func tradeFields(lg RawLog) (common.Address, [5]uint64, error) {
	var words [5]uint64
	user, err := topicAddress(lg)
	if err != nil {
		return user, words, err
	}
	for i := range words {
		if words[i], err = wordUint64(lg.Data, i); err != nil {
			return user, words, err
		}
	}
	return user, words, nil
}

// topicAddress extracts the indexed address argument from the log's second topic.
func topicAddress(lg RawLog) (common.Address, error) {
	if len(lg.Topics) < 2 {
		return common.Address{}, ErrShortEventData
	}
	return common.BytesToAddress(lg.Topics[1].Bytes()), nil
}

// wordUint64 reads the i-th 32-byte ABI word of data as a uint64. Values on the game contract fit 64 bits.
func wordUint64(data []byte, i int) (uint64, error) {
	off := i * 32
	if len(data) < off+32 {
		return 0, ErrShortEventData
	}
	return new(big.Int).SetBytes(data[off : off+32]).Uint64(), nil
}
