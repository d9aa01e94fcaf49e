package erabridge

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/zkforge/zkvm-bridge/dualcompile"
	"github.com/zkforge/zkvm-bridge/tracing"
)

// VMMode identifies the currently selected execution backend.
type VMMode int

const (
	ModeEVM VMMode = iota
	ModeZkVM
)

func (m VMMode) String() string {
	if m == ModeZkVM {
		return "zkvm"
	}
	return "evm"
}

// Env carries the block/transaction metadata the translator needs at a switch
// boundary.
type Env struct {
	BlockNumber    uint64
	BlockTimestamp uint64
	// Caller is the active transaction's declared sender. It is translated
	// alongside the persistent set even when not explicitly pinned.
	Caller common.Address
}

// StateTranslator makes the inactive backend's storage encoding consistent
// with the active backend's view of a fixed set of persistent addresses. It
// is invoked exactly at VM-switch boundaries and nowhere else.
type StateTranslator struct {
	registry *dualcompile.Registry

	// persistent addresses survive VM and fork switches; the same set is
	// translated in both directions.
	persistent mapset.Set[common.Address]

	// testContract's code is deliberately never translated so the harness's
	// own bytecode cannot be corrupted by a round trip.
	testContract common.Address

	mode VMMode
}

// NewStateTranslator returns a translator starting in EVM mode.
func NewStateTranslator(registry *dualcompile.Registry) *StateTranslator {
	return &StateTranslator{
		registry:     registry,
		persistent:   mapset.NewThreadUnsafeSet[common.Address](),
		testContract: DefaultTestContractAddress,
	}
}

// Mode returns the currently selected backend.
func (t *StateTranslator) Mode() VMMode { return t.mode }

// SetTestContract overrides the harness test-contract address.
func (t *StateTranslator) SetTestContract(addr common.Address) { t.testContract = addr }

// MakePersistent pins addr so its state survives VM and fork switches.
func (t *StateTranslator) MakePersistent(addr common.Address) { t.persistent.Add(addr) }

// RevokePersistent unpins addr.
func (t *StateTranslator) RevokePersistent(addr common.Address) { t.persistent.Remove(addr) }

// IsPersistent reports whether addr is pinned.
func (t *StateTranslator) IsPersistent(addr common.Address) bool { return t.persistent.Contains(addr) }

// stagedWrite is one pending mutation. All writes for a switch are staged
// first and applied in a single pass, so a translation is atomic from the
// caller's perspective.
type stagedWrite struct {
	kind    writeKind
	addr    common.Address
	key     common.Hash
	word    common.Hash
	balance *uint256.Int
	nonce   uint64
	code    []byte
}

type writeKind int

const (
	writeStorage writeKind = iota
	writeBalance
	writeNonce
	writeCode
)

func (t *StateTranslator) apply(j Journal, writes []stagedWrite) {
	for _, w := range writes {
		switch w.kind {
		case writeStorage:
			j.SetState(w.addr, w.key, w.word)
		case writeBalance:
			j.SetBalance(w.addr, w.balance, tracing.BalanceChangeVMTranslation)
		case writeNonce:
			j.SetNonce(w.addr, w.nonce, tracing.NonceChangeVMTranslation)
		case writeCode:
			j.SetCode(w.addr, w.code)
		}
	}
}

func (t *StateTranslator) translationSet(env *Env) []common.Address {
	set := t.persistent.Clone()
	set.Add(env.Caller)
	return set.ToSlice()
}

// SelectZkVM rewrites the zk system-contract storage so the zk backend sees
// the same persistent accounts the EVM journal currently holds. Idempotent:
// a second call with no intervening state change is a no-op.
func (t *StateTranslator) SelectZkVM(j Journal, env *Env) {
	if t.mode == ModeZkVM {
		return
	}

	var writes []stagedWrite

	// Block metadata lives in one packed word inside SystemContext.
	writes = append(writes, stagedWrite{
		kind: writeStorage,
		addr: SystemContextAddress,
		key:  SystemContextBlockInfoSlot,
		word: PackBlockInfo(env.BlockNumber, env.BlockTimestamp),
	})

	for _, addr := range t.translationSet(env) {
		if !j.Exist(addr) {
			j.CreateAccount(addr)
		}

		// Re-read any existing deployment nonce so it is not reset: it has
		// no EVM-side equivalent and must survive round trips.
		existing := j.GetState(NonceHolderAddress, NonceKey(addr))
		_, deployNonce := DecomposeNonce(uint256.NewInt(0).SetBytes(existing.Bytes()))
		packed := PackNonce(j.GetNonce(addr), deployNonce)
		writes = append(writes, stagedWrite{
			kind: writeStorage,
			addr: NonceHolderAddress,
			key:  NonceKey(addr),
			word: common.Hash(packed.Bytes32()),
		})

		balance := j.GetBalance(addr)
		writes = append(writes, stagedWrite{
			kind: writeStorage,
			addr: BaseTokenAddress,
			key:  BalanceKey(addr),
			word: common.Hash(balance.Bytes32()),
		})

		if addr == t.testContract {
			continue
		}
		codeHash := j.GetCodeHash(addr)
		if codeHash == (common.Hash{}) {
			continue
		}
		contract := t.registry.FindByEvmCodeHash(codeHash)
		if contract == nil {
			log.Debug("No dual-compiled counterpart for code hash, leaving code untranslated", "addr", addr, "codeHash", codeHash)
			continue
		}
		writes = append(writes,
			stagedWrite{
				kind: writeStorage,
				addr: AccountCodeStorageAddress,
				key:  AccountCodeKey(addr),
				word: contract.ZkBytecodeHash,
			},
			stagedWrite{kind: writeCode, addr: addr, code: contract.ZkDeployedBytecode},
		)
	}

	t.apply(j, writes)
	t.mode = ModeZkVM
	log.Debug("Selected zk VM", "accounts", t.persistent.Cardinality()+1, "block", env.BlockNumber)
}

// SelectEVM is the inverse direction. The deployment-nonce component of the
// packed zk nonce has no EVM-side field and is discarded with a warning:
// this is a documented lossy translation, not a bug to be fixed. The packed
// word itself stays behind in NonceHolder storage, so a later SelectZkVM
// recovers the deployment count.
func (t *StateTranslator) SelectEVM(j Journal, env *Env) {
	if t.mode == ModeEVM {
		return
	}

	blockInfo := j.GetState(SystemContextAddress, SystemContextBlockInfoSlot)
	env.BlockNumber, env.BlockTimestamp = UnpackBlockInfo(blockInfo)

	var writes []stagedWrite
	for _, addr := range t.translationSet(env) {
		if !j.Exist(addr) {
			panic("erabridge: persistent account missing from journal: " + addr.Hex())
		}

		packed := j.GetState(NonceHolderAddress, NonceKey(addr))
		txNonce, deployNonce := DecomposeNonce(uint256.NewInt(0).SetBytes(packed.Bytes()))
		if deployNonce != 0 {
			log.Warn("Discarding deployment nonce on zk->EVM switch, repeated VM switching may cause nonce inconsistencies",
				"addr", addr, "deployNonce", deployNonce)
		}
		writes = append(writes, stagedWrite{kind: writeNonce, addr: addr, nonce: txNonce})

		balWord := j.GetState(BaseTokenAddress, BalanceKey(addr))
		writes = append(writes, stagedWrite{
			kind:    writeBalance,
			addr:    addr,
			balance: uint256.NewInt(0).SetBytes(balWord.Bytes()),
		})

		if addr == t.testContract {
			continue
		}
		zkHash := j.GetState(AccountCodeStorageAddress, AccountCodeKey(addr))
		if zkHash == (common.Hash{}) {
			continue
		}
		contract := t.registry.FindByZkBytecodeHash(zkHash)
		if contract == nil {
			log.Debug("No dual-compiled counterpart for zk bytecode hash, leaving code untranslated", "addr", addr, "hash", zkHash)
			continue
		}
		writes = append(writes, stagedWrite{kind: writeCode, addr: addr, code: contract.EvmDeployedBytecode})
	}

	t.apply(j, writes)
	t.mode = ModeEVM
	log.Debug("Selected EVM", "accounts", t.persistent.Cardinality()+1, "block", env.BlockNumber)
}
