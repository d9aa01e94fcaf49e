package erabridge

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// ZkExecutionStatus is the zk VM's three-way execution outcome.
type ZkExecutionStatus int

const (
	ZkSuccess ZkExecutionStatus = iota
	ZkRevert
	ZkHalt
)

// GasBreakdown is the zk VM's per-component gas accounting. Intrinsic and
// validation gas are accounted for separately by the protocol and must not be
// folded into the bridged gas_used.
type GasBreakdown struct {
	Intrinsic      uint64
	Validation     uint64
	Execution      uint64
	Pubdata        uint64
	OperatorRefund uint64
}

// ZkResult is the raw outcome of one zk VM invocation.
type ZkResult struct {
	Status     ZkExecutionStatus
	Output     []byte
	HaltReason string
	Logs       []*types.Log
	Gas        GasBreakdown
}

// ExecStatus is the EVM-shaped outcome upstream test-evaluation code
// consumes.
type ExecStatus int

const (
	ExecSuccess ExecStatus = iota
	ExecRevert
	ExecHalt
)

// BridgedResult is the uniform result type returned to the host executor
// regardless of which backend ran.
type BridgedResult struct {
	Status      ExecStatus
	Output      []byte
	GasUsed     uint64
	GasRefunded uint64
	HaltReason  string
	Logs        []*types.Log
	// DeployedAddress is resolved from the creation call's return payload.
	DeployedAddress common.Address
}

// BridgeResult converts a zk outcome into the EVM result shape. For creation
// calls, when the return payload is exactly the padded 32-byte address form,
// the output is swapped for the contract's deployed bytecode so downstream
// trace decoding sees bytecode instead of an address-shaped blob. Decode
// failures degrade to the raw output; they are bookkeeping conveniences, not
// correctness-critical.
func BridgeResult(res *ZkResult, isCreate bool, codeAt func(common.Address) []byte) *BridgedResult {
	out := &BridgedResult{
		Output:      res.Output,
		GasUsed:     res.Gas.Execution + res.Gas.Pubdata,
		GasRefunded: res.Gas.OperatorRefund,
		Logs:        res.Logs,
	}
	switch res.Status {
	case ZkSuccess:
		out.Status = ExecSuccess
	case ZkRevert:
		out.Status = ExecRevert
		return out
	case ZkHalt:
		out.Status = ExecHalt
		out.HaltReason = res.HaltReason
		return out
	}

	if !isCreate {
		return out
	}
	addr, ok := decodeReturnedAddress(res.Output)
	if !ok {
		log.Warn("Creation call returned undecodable payload, reporting it unchanged", "len", len(res.Output))
		return out
	}
	out.DeployedAddress = addr
	if codeAt != nil {
		if code := codeAt(addr); len(code) > 0 {
			out.Output = code
		}
	}
	return out
}

// decodeReturnedAddress accepts only the ABI form the deployer returns: one
// 32-byte word with 12 leading zero bytes.
func decodeReturnedAddress(output []byte) (common.Address, bool) {
	if len(output) != common.HashLength {
		return common.Address{}, false
	}
	if !bytes.Equal(output[:12], make([]byte, 12)) {
		return common.Address{}, false
	}
	return common.BytesToAddress(output[12:]), true
}
