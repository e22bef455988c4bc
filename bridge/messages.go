package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Client message types. The set is closed: anything else is a recoverable parse error, never a dropped connection.
const (
	MsgSetName     = "set_name"
	MsgRawTx       = "raw_tx"
	MsgGetNonce    = "get_nonce"
	MsgRestartGame = "restart_game"
)

// ErrUnknownMessage is returned for a client message whose type is not part of the protocol.
var ErrUnknownMessage = errors.New("unknown client message type")

// ClientMessage is one inbound request from a connected session.
type ClientMessage struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	RawTx   string `json:"raw_tx,omitempty"`
}

// DecodeClientMessage parses and validates one inbound message.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("cannot parse client message: %w", err)
	}
	switch m.Type {
	case MsgSetName, MsgRawTx, MsgGetNonce, MsgRestartGame:
		return m, nil
	}
	return m, ErrUnknownMessage
}

// ServerMessage is one outbound notification. The implementations below are the full closed set; construct them via
// the New* helpers so the wire type tag is always present.
type ServerMessage interface {
	serverMessage()
}

// GasInfo carries the client-side gas costs of the contract's user operations.
type GasInfo struct {
	Register uint64 `json:"register"`
	Buy      uint64 `json:"buy"`
	Sell     uint64 `json:"sell"`
}

type ConnectionInfoMsg struct {
	Type            string  `json:"type"`
	ContractAddress string  `json:"contract_address"`
	GasCosts        GasInfo `json:"gas_costs"`
}

type CurrentPriceMsg struct {
	Type  string `json:"type"`
	Price uint64 `json:"price"`
}

type CurrentBlockHeightMsg struct {
	Type   string `json:"type"`
	Height uint64 `json:"height"`
}

type GameStartedMsg struct {
	Type        string `json:"type"`
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
}

type GameEndedMsg struct {
	Type string `json:"type"`
}

type PriceUpdateMsg struct {
	Type        string `json:"type"`
	NewPrice    uint64 `json:"new_price"`
	BlockNumber uint64 `json:"block_number"`
}

type NameSetMsg struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

type PositionMsg struct {
	Type        string `json:"type"`
	Address     string `json:"address"`
	Name        string `json:"name,omitempty"`
	Balance     uint64 `json:"balance"`
	Holdings    uint64 `json:"holdings"`
	BlockNumber uint64 `json:"block_number"`
}

type TradeMsg struct {
	Type        string `json:"type"` // "bought" or "sold"
	User        string `json:"user"`
	Name        string `json:"name,omitempty"`
	Amount      uint64 `json:"amount"`
	Price       uint64 `json:"price"`
	BlockNumber uint64 `json:"block_number"`
	Balance     uint64 `json:"balance"`
	Holdings    uint64 `json:"holdings"`
}

type FundedMsg struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type FundErrorMsg struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Error   string `json:"error"`
}

type TxSubmittedMsg struct {
	Type   string `json:"type"`
	TxHash string `json:"tx_hash"`
}

type TxErrorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type NonceResponseMsg struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

func (ConnectionInfoMsg) serverMessage()     {}
func (CurrentPriceMsg) serverMessage()       {}
func (CurrentBlockHeightMsg) serverMessage() {}
func (GameStartedMsg) serverMessage()        {}
func (GameEndedMsg) serverMessage()          {}
func (PriceUpdateMsg) serverMessage()        {}
func (NameSetMsg) serverMessage()            {}
func (PositionMsg) serverMessage()           {}
func (TradeMsg) serverMessage()              {}
func (FundedMsg) serverMessage()             {}
func (FundErrorMsg) serverMessage()          {}
func (TxSubmittedMsg) serverMessage()        {}
func (TxErrorMsg) serverMessage()            {}
func (NonceResponseMsg) serverMessage()      {}

func NewConnectionInfo(contract common.Address, gas GasInfo) ConnectionInfoMsg {
	return ConnectionInfoMsg{Type: "connection_info", ContractAddress: contract.Hex(), GasCosts: gas}
}

func NewCurrentPrice(price uint64) CurrentPriceMsg {
	return CurrentPriceMsg{Type: "current_price", Price: price}
}

func NewCurrentBlockHeight(height uint64) CurrentBlockHeightMsg {
	return CurrentBlockHeightMsg{Type: "current_block_height", Height: height}
}

func NewGameStarted(start, end uint64) GameStartedMsg {
	return GameStartedMsg{Type: "game_started", StartHeight: start, EndHeight: end}
}

func NewGameEnded() GameEndedMsg {
	return GameEndedMsg{Type: "game_ended"}
}

func NewPriceUpdate(price, block uint64) PriceUpdateMsg {
	return PriceUpdateMsg{Type: "price_update", NewPrice: price, BlockNumber: block}
}

func NewNameSet(addr common.Address, name string) NameSetMsg {
	return NameSetMsg{Type: "name_set", Address: addr.Hex(), Name: name}
}

func NewPosition(addr common.Address, name string, balance, holdings, block uint64) PositionMsg {
	return PositionMsg{Type: "position", Address: addr.Hex(), Name: name, Balance: balance, Holdings: holdings, BlockNumber: block}
}

func NewTrade(kind string, user common.Address, name string, amount, price, block, balance, holdings uint64) TradeMsg {
	return TradeMsg{Type: kind, User: user.Hex(), Name: name, Amount: amount, Price: price, BlockNumber: block, Balance: balance, Holdings: holdings}
}

func NewFunded(addr common.Address, amount uint64) FundedMsg {
	return FundedMsg{Type: "funded", Address: addr.Hex(), Amount: amount}
}

func NewFundError(addr common.Address, reason string) FundErrorMsg {
	return FundErrorMsg{Type: "fund_error", Address: addr.Hex(), Error: reason}
}

func NewTxSubmitted(hash string) TxSubmittedMsg {
	return TxSubmittedMsg{Type: "tx_submitted", TxHash: hash}
}

func NewTxError(reason string) TxErrorMsg {
	return TxErrorMsg{Type: "tx_error", Error: reason}
}

func NewNonceResponse(addr common.Address, nonce uint64) NonceResponseMsg {
	return NonceResponseMsg{Type: "nonce_response", Address: addr.Hex(), Nonce: nonce}
}
