package eravm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	erabridge "github.com/zkforge/zkvm-bridge/era_bridge"
)

// Selector derives the 4-byte ABI selector of a function signature.
func Selector(sig string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(sig))[:4])
	return out
}

// Selectors of the system-contract entry points the interception layer
// pattern-matches on.
var (
	SelExtendedAccountVersion = Selector("extendedAccountVersion(address)")
	SelExecuteTransaction     = Selector("executeTransaction(bytes32,bytes32,(uint256,uint256,uint256,uint256,uint256,uint256,uint256,uint256,uint256,uint256,uint256[4],bytes,bytes,bytes32[],bytes,bytes))")
	SelGetBlockNumber         = Selector("getBlockNumber()")
	SelGetBlockTimestamp      = Selector("getBlockTimestamp()")
	SelBaseFee                = Selector("baseFee()")
	SelGetBlockHashEVM        = Selector("getBlockHashEVM(uint256)")
	SelSetImmutables          = Selector("setImmutables(address,(uint256,bytes32)[])")
)

// actionKind tags what an interception does when its (address, selector) key
// matches the current far call.
type actionKind int

const (
	// actionReturnFixed short-circuits the call with fabricated data.
	actionReturnFixed actionKind = iota
	// actionOverrideSender stages a msg.sender override for the next frame.
	actionOverrideSender
	// actionOverrideThis stages an address(this) override for the next
	// frame, emulating delegate-call context.
	actionOverrideThis
	// actionRecordImmutables decodes and accumulates immutable writes.
	actionRecordImmutables
)

type dispatchKey struct {
	addr     common.Address
	selector [4]byte
}

// interception binds a dispatch key to its semantic action. For
// actionReturnFixed the produce closure fabricates the return payload; it may
// decline by returning nil, in which case the call executes normally.
type interception struct {
	kind    actionKind
	produce func(t *CheatcodeTracer, step *ExecutionStep) []byte
}

// dispatchTable is the static configuration of intercepted system calls,
// consulted once per far call. Keeping it a table rather than per-branch
// comparisons keeps the dispatcher flat as interceptions accumulate.
var dispatchTable = map[dispatchKey]interception{
	{erabridge.ContractDeployerAddress, SelExtendedAccountVersion}: {
		kind: actionReturnFixed,
		// Fabricate version 1 ("EOA-equivalent") for the transaction caller
		// so non-account-abstraction senders can originate creations; the
		// zk VM otherwise rejects creations from addresses that do not
		// self-report as valid deployer accounts. Probes for any other
		// address run normally.
		produce: func(t *CheatcodeTracer, step *ExecutionStep) []byte {
			if len(step.Frame.Input) < 36 {
				return nil
			}
			queried := common.BytesToAddress(step.Frame.Input[16:36])
			if queried != t.ctx.TxCaller {
				return nil
			}
			return common.BigToHash(big.NewInt(1)).Bytes()
		},
	},
	{erabridge.SystemContextAddress, SelGetBlockNumber}: {
		kind: actionReturnFixed,
		produce: func(t *CheatcodeTracer, _ *ExecutionStep) []byte {
			return common.BigToHash(new(big.Int).SetUint64(t.ctx.BlockNumber)).Bytes()
		},
	},
	{erabridge.SystemContextAddress, SelGetBlockTimestamp}: {
		kind: actionReturnFixed,
		produce: func(t *CheatcodeTracer, _ *ExecutionStep) []byte {
			return common.BigToHash(new(big.Int).SetUint64(t.ctx.BlockTimestamp)).Bytes()
		},
	},
	{erabridge.SystemContextAddress, SelBaseFee}: {
		kind: actionReturnFixed,
		produce: func(t *CheatcodeTracer, _ *ExecutionStep) []byte {
			return common.BigToHash(t.ctx.BlockBaseFee.ToBig()).Bytes()
		},
	},
	{erabridge.SystemContextAddress, SelGetBlockHashEVM}: {
		kind: actionReturnFixed,
		produce: func(t *CheatcodeTracer, step *ExecutionStep) []byte {
			if len(step.Frame.Input) < 36 {
				return nil
			}
			number := new(big.Int).SetBytes(step.Frame.Input[4:36])
			if !number.IsUint64() {
				return common.Hash{}.Bytes()
			}
			return t.ctx.BlockHashes[number.Uint64()].Bytes()
		},
	},
	{erabridge.BootloaderAddress, SelExecuteTransaction}: {
		kind: actionOverrideSender,
	},
	{erabridge.ImmutableSimulatorAddress, SelSetImmutables}: {
		kind: actionRecordImmutables,
	},
}

// immutableWrite mirrors the (uint256 index, bytes32 value) tuple of the
// ImmutableSimulator payload; field names line up with the ABI components.
type immutableWrite struct {
	Index *big.Int
	Value [32]byte
}

var setImmutablesArgs abi.Arguments

func init() {
	addrType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	tupleType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "index", Type: "uint256"},
		{Name: "value", Type: "bytes32"},
	})
	if err != nil {
		panic(err)
	}
	setImmutablesArgs = abi.Arguments{{Type: addrType}, {Type: tupleType}}
}

// decodeImmutableWrites parses a setImmutables payload. Failures degrade to
// a nil result with a warning; immutable capture is bookkeeping, never a
// hard failure of the underlying call.
func decodeImmutableWrites(input []byte) (common.Address, []immutableWrite) {
	if len(input) < 4 {
		return common.Address{}, nil
	}
	values, err := setImmutablesArgs.Unpack(input[4:])
	if err != nil || len(values) != 2 {
		log.Warn("Undecodable setImmutables payload, skipping immutable capture", "err", err)
		return common.Address{}, nil
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		log.Warn("Unexpected setImmutables address type, skipping immutable capture")
		return common.Address{}, nil
	}
	writes := *abi.ConvertType(values[1], new([]immutableWrite)).(*[]immutableWrite)
	return addr, writes
}
