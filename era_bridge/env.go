package erabridge

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PackBlockInfo encodes (block number, timestamp) into the single word the
// SystemContext contract stores: number * 2^128 + timestamp.
func PackBlockInfo(number, timestamp uint64) common.Hash {
	word := new(uint256.Int).Mul(uint256.NewInt(number), twoPow128)
	word.Add(word, uint256.NewInt(timestamp))
	return common.Hash(word.Bytes32())
}

// UnpackBlockInfo decodes the SystemContext block-info word.
func UnpackBlockInfo(word common.Hash) (number, timestamp uint64) {
	var quo, rem uint256.Int
	quo.DivMod(uint256.NewInt(0).SetBytes(word.Bytes()), twoPow128, &rem)
	if !quo.IsUint64() || !rem.IsUint64() {
		panic("erabridge: malformed block-info word: " + word.Hex())
	}
	return quo.Uint64(), rem.Uint64()
}
