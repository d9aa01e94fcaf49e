package dualcompile

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// zkCode builds a deterministic bytecode of the given odd word count.
func zkCode(seed byte, words int) []byte {
	code := make([]byte, words*32)
	for i := range code {
		code[i] = seed ^ byte(i)
	}
	return code
}

func zkHashOf(t *testing.T, code []byte) common.Hash {
	t.Helper()
	sum := crypto.Keccak256Hash(code)
	sum[0] = 0x01
	sum[1] = 0x00
	return sum
}

func newTestContract(t *testing.T, name string, zkWords int, seed byte) *DualCompiledContract {
	t.Helper()
	zk := zkCode(seed, zkWords)
	evmDeployed := append([]byte{0xfe}, zk[:16]...)
	return &DualCompiledContract{
		Info:                ContractInfo{Path: "src/" + name + ".sol", Name: name},
		ZkBytecodeHash:      zkHashOf(t, zk),
		ZkDeployedBytecode:  zk,
		ZkFactoryDeps:       [][]byte{zk},
		EvmBytecodeHash:     crypto.Keccak256Hash(evmDeployed),
		EvmDeployedBytecode: evmDeployed,
		EvmBytecode:         append(append([]byte(nil), 0x60, 0x80), evmDeployed...),
	}
}

func emptyRegistry() *Registry {
	return NewRegistry(nil, nil)
}

func TestRegistryPairing(t *testing.T) {
	zkA := zkCode(0xaa, 3)
	evmOut := map[ContractInfo]*EVMArtifact{
		{Path: "project/src/A.sol", Name: "A"}: {
			Bytecode:         []byte{1, 2, 3, 4},
			DeployedBytecode: []byte{1, 2, 3},
		},
		// EVM-only contract; must be skipped.
		{Path: "project/src/B.sol", Name: "B"}: {
			Bytecode:         []byte{9},
			DeployedBytecode: []byte{9},
		},
	}
	hashA := zkHashOf(t, zkA)
	zkOut := map[ContractInfo]*ZkArtifact{
		// Same source file under a different compiler root.
		{Path: "/tmp/build/src/A.sol", Name: "A"}: {
			Bytecode:     zkA,
			BytecodeHash: hashA,
		},
		// zk-only contract; must be skipped.
		{Path: "src/C.sol", Name: "C"}: {
			Bytecode:     zkCode(0xcc, 1),
			BytecodeHash: zkHashOf(t, zkCode(0xcc, 1)),
		},
	}

	r := NewRegistry(evmOut, zkOut)
	if r.Len() != 1 {
		t.Fatalf("expected 1 paired contract, got %d", r.Len())
	}
	c := r.FindByZkBytecodeHash(hashA)
	if c == nil {
		t.Fatalf("paired contract not found by zk hash")
	}
	if c.Info.Name != "A" || c.Info.Path != "src/A.sol" {
		t.Fatalf("unexpected pairing identity: %v", c.Info)
	}
	if c.EvmBytecodeHash != crypto.Keccak256Hash([]byte{1, 2, 3}) {
		t.Fatalf("EVM code hash not derived from deployed bytecode")
	}
	if len(c.ZkFactoryDeps) != 1 || !bytes.Equal(c.ZkFactoryDeps[0], zkA) {
		t.Fatalf("factory deps should start with the contract's own bytecode")
	}
}

// TestFindBytecodePrefersLongerZkMatch covers the both-sides-match case: the
// zk entry wins whenever its bytecode is at least as long as the EVM match.
func TestFindBytecodePrefersLongerZkMatch(t *testing.T) {
	zk := zkCode(0x11, 3) // 96 bytes
	c := &DualCompiledContract{
		Info:               ContractInfo{Path: "src/T.sol", Name: "T"},
		ZkBytecodeHash:     zkHashOf(t, zk),
		ZkDeployedBytecode: zk,
		// EVM creation code is a strict prefix of the zk bytecode, so any
		// input matching zk also matches the EVM side.
		EvmBytecode:         zk[:64],
		EvmDeployedBytecode: zk[:32],
		EvmBytecodeHash:     crypto.Keccak256Hash(zk[:32]),
	}
	r := emptyRegistry()
	r.Insert(c)

	args := []byte{0xde, 0xad, 0xbe, 0xef}
	res := r.FindBytecode(append(append([]byte(nil), zk...), args...))
	if res == nil {
		t.Fatalf("no match for init code")
	}
	if !res.Zk {
		t.Fatalf("expected the zk match to win the tie-break")
	}
	if res.MatchedLen != len(zk) {
		t.Fatalf("matched length %d, want %d", res.MatchedLen, len(zk))
	}
	if !bytes.Equal(res.ConstructorArgs(), args) {
		t.Fatalf("constructor args %x, want %x", res.ConstructorArgs(), args)
	}
}

func TestFindBytecodePrefersLongerEvmMatch(t *testing.T) {
	zk := zkCode(0x22, 1) // 32 bytes
	evmInit := append(append([]byte(nil), zk...), zkCode(0x33, 1)...) // 64 bytes, zk is a prefix
	c := &DualCompiledContract{
		Info:                ContractInfo{Path: "src/U.sol", Name: "U"},
		ZkBytecodeHash:      zkHashOf(t, zk),
		ZkDeployedBytecode:  zk,
		EvmBytecode:         evmInit,
		EvmDeployedBytecode: zk,
		EvmBytecodeHash:     crypto.Keccak256Hash(zk),
	}
	r := emptyRegistry()
	r.Insert(c)

	res := r.FindBytecode(append(append([]byte(nil), evmInit...), 0x01))
	if res == nil {
		t.Fatalf("no match for init code")
	}
	if res.Zk {
		t.Fatalf("expected the longer EVM match to win")
	}
	if res.MatchedLen != len(evmInit) {
		t.Fatalf("matched length %d, want %d", res.MatchedLen, len(evmInit))
	}
}

func TestFindBytecodeNoMatch(t *testing.T) {
	r := emptyRegistry()
	r.Insert(newTestContract(t, "X", 1, 0x44))
	if res := r.FindBytecode([]byte{0xff, 0xff, 0xff}); res != nil {
		t.Fatalf("expected nil for unknown init code, got %v", res.Contract.Info)
	}
}

// TestFetchAllFactoryDepsCycle drives the closure over a two-contract
// dependency cycle: traversal must terminate and each bytecode must appear
// exactly once.
func TestFetchAllFactoryDepsCycle(t *testing.T) {
	a := newTestContract(t, "A", 3, 0x0a)
	b := newTestContract(t, "B", 5, 0x0b)
	a.ZkFactoryDepHashes = []common.Hash{b.ZkBytecodeHash}
	b.ZkFactoryDepHashes = []common.Hash{a.ZkBytecodeHash}

	r := emptyRegistry()
	r.Insert(a)
	r.Insert(b)

	deps := r.FetchAllFactoryDeps(a)
	if len(deps) != 2 {
		t.Fatalf("expected 2 unique bytecodes, got %d", len(deps))
	}
	seen := make(map[string]int)
	for _, d := range deps {
		seen[string(d)]++
	}
	if seen[string(a.ZkDeployedBytecode)] != 1 || seen[string(b.ZkDeployedBytecode)] != 1 {
		t.Fatalf("each bytecode must appear exactly once: %v", seen)
	}
}

func TestFetchAllFactoryDepsTransitive(t *testing.T) {
	a := newTestContract(t, "A", 1, 0x1a)
	b := newTestContract(t, "B", 1, 0x1b)
	c := newTestContract(t, "C", 1, 0x1c)
	a.ZkFactoryDepHashes = []common.Hash{b.ZkBytecodeHash}
	b.ZkFactoryDepHashes = []common.Hash{c.ZkBytecodeHash}

	r := emptyRegistry()
	r.Extend([]*DualCompiledContract{a, b, c})

	deps := r.FetchAllFactoryDeps(a)
	if len(deps) != 3 {
		t.Fatalf("expected the transitive closure of 3 bytecodes, got %d", len(deps))
	}
}

func TestFetchAllFactoryDepsUnknownHashSkipped(t *testing.T) {
	a := newTestContract(t, "A", 1, 0x2a)
	a.ZkFactoryDepHashes = []common.Hash{common.HexToHash("0x0100dead")}

	r := emptyRegistry()
	r.Insert(a)

	deps := r.FetchAllFactoryDeps(a)
	if len(deps) != 1 {
		t.Fatalf("unresolvable hash must be skipped, got %d deps", len(deps))
	}
}

func TestFindRanking(t *testing.T) {
	counter := newTestContract(t, "Counter", 1, 0x31)
	other := newTestContract(t, "Other", 1, 0x32)
	other.Info = ContractInfo{Path: "src/Counter.sol", Name: "CounterV2"}
	sameName := newTestContract(t, "SameName", 1, 0x33)
	sameName.Info = ContractInfo{Path: "src/legacy/Old.sol", Name: "Counter"}

	r := emptyRegistry()
	r.Extend([]*DualCompiledContract{other, sameName, counter})

	matches := r.Find("Counter.sol", "Counter")
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].Type != FullMatch || matches[0].Contract != counter {
		t.Fatalf("full match must rank first, got %v", matches[0].Contract.Info)
	}
	if matches[1].Type != PathMatch || matches[1].Contract != other {
		t.Fatalf("path match must rank second, got %v", matches[1].Contract.Info)
	}
	if matches[2].Type != NameMatch || matches[2].Contract != sameName {
		t.Fatalf("name match must rank third, got %v", matches[2].Contract.Info)
	}
}

func TestFindPathSuffixIsSegmentAligned(t *testing.T) {
	c := newTestContract(t, "Token", 1, 0x41)
	c.Info = ContractInfo{Path: "src/MyToken.sol", Name: "Token"}

	r := emptyRegistry()
	r.Insert(c)

	// "Token.sol" is a string suffix of "MyToken.sol" but not a path suffix.
	if matches := r.Find("Token.sol", ""); len(matches) != 0 {
		t.Fatalf("non-segment suffix must not match, got %d matches", len(matches))
	}
	if matches := r.Find("MyToken.sol", ""); len(matches) != 1 {
		t.Fatalf("segment suffix must match, got %d matches", len(matches))
	}
}
