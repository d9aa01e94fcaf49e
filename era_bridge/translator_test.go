package erabridge

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/zkforge/zkvm-bridge/dualcompile"
	"github.com/zkforge/zkvm-bridge/tracing"
)

func dualContract(t *testing.T, name string, seed byte) *dualcompile.DualCompiledContract {
	t.Helper()
	zk := make([]byte, 3*32)
	for i := range zk {
		zk[i] = seed ^ byte(i)
	}
	zkHash, err := HashBytecode(zk)
	if err != nil {
		t.Fatalf("hashing zk bytecode: %v", err)
	}
	evmDeployed := append([]byte{0xfe, seed}, zk[:14]...)
	return &dualcompile.DualCompiledContract{
		Info:                dualcompile.ContractInfo{Path: "src/" + name + ".sol", Name: name},
		ZkBytecodeHash:      zkHash,
		ZkDeployedBytecode:  zk,
		ZkFactoryDeps:       [][]byte{zk},
		EvmBytecodeHash:     crypto.Keccak256Hash(evmDeployed),
		EvmDeployedBytecode: evmDeployed,
		EvmBytecode:         append([]byte{0x60, 0x80}, evmDeployed...),
	}
}

func newTranslator(contracts ...*dualcompile.DualCompiledContract) *StateTranslator {
	reg := dualcompile.NewRegistry(nil, nil)
	reg.Extend(contracts)
	return NewStateTranslator(reg)
}

// TestNonceRoundTrip pins the lossy-translation contract: the zk deployment
// nonce survives a full zk -> EVM -> zk round trip through the storage word
// left behind in NonceHolder, while the EVM side only ever sees the tx nonce.
func TestNonceRoundTrip(t *testing.T) {
	tr := newTranslator()
	j := NewMemoryJournal()
	addr := common.HexToAddress("0x1111")
	env := &Env{BlockNumber: 1, BlockTimestamp: 100}

	j.CreateAccount(addr)
	j.SetNonce(addr, 5, tracing.NonceChangeUnspecified)
	// Three deployments happened in an earlier zk session.
	j.SetState(NonceHolderAddress, NonceKey(addr), common.Hash(PackNonce(0, 3).Bytes32()))
	tr.MakePersistent(addr)

	tr.SelectZkVM(j, env)
	want := common.Hash(PackNonce(5, 3).Bytes32())
	if got := j.GetState(NonceHolderAddress, NonceKey(addr)); got != want {
		t.Fatalf("packed nonce %s, want %s", got.Hex(), want.Hex())
	}

	tr.SelectEVM(j, env)
	if n := j.GetNonce(addr); n != 5 {
		t.Fatalf("EVM nonce %d, want 5", n)
	}
	if got := j.GetState(NonceHolderAddress, NonceKey(addr)); got != want {
		t.Fatalf("packed word clobbered on zk->EVM switch: %s", got.Hex())
	}

	tr.SelectZkVM(j, env)
	if got := j.GetState(NonceHolderAddress, NonceKey(addr)); got != want {
		t.Fatalf("deployment nonce lost after round trip: %s", got.Hex())
	}
}

// TestSwitchIdempotent verifies that re-selecting the active backend is a
// no-op rather than a re-translation.
func TestSwitchIdempotent(t *testing.T) {
	tr := newTranslator()
	j := NewMemoryJournal()
	addr := common.HexToAddress("0x2222")
	env := &Env{}

	j.CreateAccount(addr)
	j.SetNonce(addr, 5, tracing.NonceChangeUnspecified)
	tr.MakePersistent(addr)
	tr.SelectZkVM(j, env)

	// A stray journal mutation must not leak into zk storage on a repeated
	// select.
	j.SetNonce(addr, 99, tracing.NonceChangeUnspecified)
	tr.SelectZkVM(j, env)

	want := common.Hash(PackNonce(5, 0).Bytes32())
	if got := j.GetState(NonceHolderAddress, NonceKey(addr)); got != want {
		t.Fatalf("repeated select re-translated state: %s", got.Hex())
	}
}

func TestBalanceTranslation(t *testing.T) {
	tr := newTranslator()
	j := NewMemoryJournal()
	addr := common.HexToAddress("0x3333")
	env := &Env{}

	j.CreateAccount(addr)
	j.SetBalance(addr, uint256.NewInt(1000), tracing.BalanceChangeUnspecified)
	tr.MakePersistent(addr)

	tr.SelectZkVM(j, env)
	got := j.GetState(BaseTokenAddress, BalanceKey(addr))
	if got != common.Hash(uint256.NewInt(1000).Bytes32()) {
		t.Fatalf("BaseToken balance slot %s, want 1000", got.Hex())
	}

	// The zk session moves funds; the EVM view must pick up the new value.
	j.SetState(BaseTokenAddress, BalanceKey(addr), common.Hash(uint256.NewInt(777).Bytes32()))
	tr.SelectEVM(j, env)
	if bal := j.GetBalance(addr); !bal.Eq(uint256.NewInt(777)) {
		t.Fatalf("EVM balance %s, want 777", bal)
	}
}

func TestCodeMirroring(t *testing.T) {
	c := dualContract(t, "Counter", 0x51)
	tr := newTranslator(c)
	j := NewMemoryJournal()
	addr := common.HexToAddress("0x4444")
	env := &Env{}

	j.CreateAccount(addr)
	j.SetCode(addr, c.EvmDeployedBytecode)
	tr.MakePersistent(addr)

	tr.SelectZkVM(j, env)
	if !bytes.Equal(j.GetCode(addr), c.ZkDeployedBytecode) {
		t.Fatalf("code not mirrored to the zk bytecode")
	}
	if got := j.GetState(AccountCodeStorageAddress, AccountCodeKey(addr)); got != c.ZkBytecodeHash {
		t.Fatalf("AccountCodeStorage slot %s, want %s", got.Hex(), c.ZkBytecodeHash.Hex())
	}

	tr.SelectEVM(j, env)
	if !bytes.Equal(j.GetCode(addr), c.EvmDeployedBytecode) {
		t.Fatalf("code not restored on zk->EVM switch")
	}

	tr.SelectZkVM(j, env)
	if !bytes.Equal(j.GetCode(addr), c.ZkDeployedBytecode) {
		t.Fatalf("code mirroring unstable across round trips")
	}
}

func TestUnknownCodeLeftUntranslated(t *testing.T) {
	tr := newTranslator()
	j := NewMemoryJournal()
	addr := common.HexToAddress("0x5555")
	env := &Env{}

	code := []byte{0xca, 0xfe, 0xba, 0xbe}
	j.CreateAccount(addr)
	j.SetCode(addr, code)
	tr.MakePersistent(addr)

	tr.SelectZkVM(j, env)
	if !bytes.Equal(j.GetCode(addr), code) {
		t.Fatalf("code without a dual-compiled counterpart was rewritten")
	}
	if got := j.GetState(AccountCodeStorageAddress, AccountCodeKey(addr)); got != (common.Hash{}) {
		t.Fatalf("AccountCodeStorage written for untranslatable code")
	}
}

func TestTestContractCodeExempt(t *testing.T) {
	c := dualContract(t, "Test", 0x61)
	tr := newTranslator(c)
	j := NewMemoryJournal()
	addr := common.HexToAddress("0x6666")
	env := &Env{}

	tr.SetTestContract(addr)
	j.CreateAccount(addr)
	j.SetCode(addr, c.EvmDeployedBytecode)
	j.SetBalance(addr, uint256.NewInt(42), tracing.BalanceChangeUnspecified)
	tr.MakePersistent(addr)

	tr.SelectZkVM(j, env)
	if !bytes.Equal(j.GetCode(addr), c.EvmDeployedBytecode) {
		t.Fatalf("test contract code must never be translated")
	}
	// Nonce and balance still translate normally.
	if got := j.GetState(BaseTokenAddress, BalanceKey(addr)); got != common.Hash(uint256.NewInt(42).Bytes32()) {
		t.Fatalf("test contract balance not translated: %s", got.Hex())
	}
}

func TestBlockInfoAcrossSwitches(t *testing.T) {
	tr := newTranslator()
	j := NewMemoryJournal()
	env := &Env{BlockNumber: 10, BlockTimestamp: 1000}

	tr.SelectZkVM(j, env)
	if got := j.GetState(SystemContextAddress, SystemContextBlockInfoSlot); got != PackBlockInfo(10, 1000) {
		t.Fatalf("block info not written on EVM->zk switch: %s", got.Hex())
	}

	// The zk session advanced the block; the harness view must follow.
	j.SetState(SystemContextAddress, SystemContextBlockInfoSlot, PackBlockInfo(42, 7777))
	tr.SelectEVM(j, env)
	if env.BlockNumber != 42 || env.BlockTimestamp != 7777 {
		t.Fatalf("env not updated from SystemContext: block=%d ts=%d", env.BlockNumber, env.BlockTimestamp)
	}
}
