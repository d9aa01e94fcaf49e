package erabridge

import (
	"github.com/holiman/uint256"
)

// The zk VM tracks two counters per account: the transaction nonce and the
// deployment nonce ("how many contracts has this account deployed"). Both are
// packed into one storage word as txNonce + deployNonce * 2^128.

// twoPow128 is 2^128.
var twoPow128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// PackNonce encodes the (tx, deploy) nonce pair into the zk storage word.
func PackNonce(tx, deploy uint64) *uint256.Int {
	packed := new(uint256.Int).Mul(uint256.NewInt(deploy), twoPow128)
	return packed.Add(packed, uint256.NewInt(tx))
}

// DecomposeNonce splits the packed zk nonce word back into the (tx, deploy)
// pair. A tx-nonce component wider than 64 bits means the word was not
// produced by PackNonce; that is a bridging bug, not a runtime condition.
func DecomposeNonce(packed *uint256.Int) (tx, deploy uint64) {
	var quo, rem uint256.Int
	quo.DivMod(packed, twoPow128, &rem)
	if !rem.IsUint64() || !quo.IsUint64() {
		panic("erabridge: malformed packed nonce word: " + packed.Hex())
	}
	return rem.Uint64(), quo.Uint64()
}
