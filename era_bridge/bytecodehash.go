package erabridge

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// HashBytecode computes the zk content hash of a deployed bytecode:
// sha256 of the code with the first four bytes overwritten by the version
// marker (0x01, 0x00) and the big-endian length in 32-byte words.
//
// The zk VM only accepts bytecodes that are a whole, odd number of words;
// violations are reported as errors so that callers on the deployment path
// can surface them, while invariant-checking callers may panic.
func HashBytecode(code []byte) (common.Hash, error) {
	if len(code)%32 != 0 {
		return common.Hash{}, fmt.Errorf("bytecode length %d is not a multiple of 32", len(code))
	}
	words := len(code) / 32
	if words%2 == 0 {
		return common.Hash{}, fmt.Errorf("bytecode length %d words must be odd", words)
	}
	if words > 1<<16-1 {
		return common.Hash{}, fmt.Errorf("bytecode of %d words exceeds the representable length", words)
	}
	sum := sha256.Sum256(code)
	sum[0] = 1
	sum[1] = 0
	binary.BigEndian.PutUint16(sum[2:4], uint16(words))
	return common.Hash(sum), nil
}

// IsZkBytecodeHash reports whether h carries the version-1 marker of a zk
// content hash. EVM code hashes (keccak) fail this check with overwhelming
// probability, which is what the translator relies on when deciding whether
// a code slot has already been mirrored.
func IsZkBytecodeHash(h common.Hash) bool {
	return h[0] == 1 && h[1] == 0
}

// PadBytecode right-pads code with zeros to the nearest odd number of
// 32-byte words, the form the zk deployer requires.
func PadBytecode(code []byte) []byte {
	words := (len(code) + 31) / 32
	if words%2 == 0 {
		words++
	}
	if words*32 == len(code) {
		return code
	}
	padded := make([]byte, words*32)
	copy(padded, code)
	return padded
}
