package types

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func word(v uint64) []byte {
	var w [32]byte
	new(big.Int).SetUint64(v).FillBytes(w[:])
	return w[:]
}

func words(vs ...uint64) []byte {
	var data []byte
	for _, v := range vs {
		data = append(data, word(v)...)
	}
	return data
}

func TestDecodeLog(t *testing.T) {
	user := common.HexToAddress("0x00112233445566778899aabbccddeeff00112233")

	cases := []struct {
		name string
		lg   RawLog
		want Event
		err  error
	}{
		{
			"priceUpdate",
			RawLog{Topics: []common.Hash{TopicPriceUpdate}, Data: words(50, 55, 12)},
			PriceUpdate{OldPrice: 50, NewPrice: 55, Block: 12},
			nil,
		},
		{
			"bought",
			RawLog{Topics: []common.Hash{TopicBought, user.Hash()}, Data: words(2, 55, 12, 290, 5)},
			Bought{User: user, Amount: 2, Price: 55, Block: 12, Balance: 290, Holdings: 5},
			nil,
		},
		{
			"sold",
			RawLog{Topics: []common.Hash{TopicSold, user.Hash()}, Data: words(1, 60, 14, 350, 4)},
			Sold{User: user, Amount: 1, Price: 60, Block: 14, Balance: 350, Holdings: 4},
			nil,
		},
		{
			"newUser",
			RawLog{Topics: []common.Hash{TopicNewUser, user.Hash()}},
			NewUser{User: user},
			nil,
		},
		{
			"gameStarted",
			RawLog{Topics: []common.Hash{TopicGameStarted}, Data: words(100, 400)},
			GameStarted{StartBlock: 100, EndBlock: 400},
			nil,
		},
		{
			"unknownTopic",
			RawLog{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))}},
			nil,
			ErrUnknownEvent,
		},
		{
			"noTopics",
			RawLog{},
			nil,
			ErrNoTopics,
		},
		{
			"shortData",
			RawLog{Topics: []common.Hash{TopicPriceUpdate}, Data: words(50, 55)},
			nil,
			ErrShortEventData,
		},
		{
			"tradeMissingUserTopic",
			RawLog{Topics: []common.Hash{TopicBought}, Data: words(2, 55, 12, 290, 5)},
			nil,
			ErrShortEventData,
		},
	}
	for _, c := range cases {
		got, err := DecodeLog(c.lg)
		if c.err != nil {
			if !errors.Is(err, c.err) {
				t.Errorf("%s: got error %v, want %v", c.name, err, c.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: got %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestCallData(t *testing.T) {
	if got := TickCall(); len(got) != 4 {
		t.Errorf("tick call data is %d bytes, want a bare selector", len(got))
	}
	if got := ResetCall(); len(got) != 4 {
		t.Errorf("reset call data is %d bytes, want a bare selector", len(got))
	}
	start := StartCall(300)
	if len(start) != 36 {
		t.Fatalf("start call data is %d bytes, want selector plus one word", len(start))
	}
	if got := new(big.Int).SetBytes(start[4:]).Uint64(); got != 300 {
		t.Errorf("start call argument = %d, want 300", got)
	}
	// each call returns a fresh slice
	tick := TickCall()
	tick[0] ^= 0xff
	if TickCall()[0] == tick[0] {
		t.Error("call data shares the selector backing array")
	}
}
