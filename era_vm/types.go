// Package eravm holds the instrumentation surface of the zk VM's
// instruction-dispatch loop: the observer hooks the host VM invokes, and the
// cheatcode interception tracer that implements test-harness builtins on top
// of them.
package eravm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Opcode identifies the call-shaped instructions the interception layer
// pattern-matches on. Ordinary arithmetic/memory opcodes never reach the
// observers.
type Opcode int

const (
	OpFarCall Opcode = iota
	OpDelegateCall
	OpMimicCall
	OpNearCall
	OpRet
)

func (o Opcode) String() string {
	switch o {
	case OpFarCall:
		return "far_call"
	case OpDelegateCall:
		return "delegate_call"
	case OpMimicCall:
		return "mimic_call"
	case OpNearCall:
		return "near_call"
	case OpRet:
		return "ret"
	}
	return "unknown"
}

// isFarCall reports whether the opcode opens a new contract frame.
func (o Opcode) isFarCall() bool {
	return o == OpFarCall || o == OpDelegateCall || o == OpMimicCall
}

// CallFrame describes the call the VM is about to dispatch. Observers may
// mutate Caller and ContractAddress through staged overrides; the VM reads
// the frame back after FinishCycle.
type CallFrame struct {
	Caller common.Address
	// CodeAddress is the account whose code executes.
	CodeAddress common.Address
	// ContractAddress is the declared address(this) for the frame. For
	// delegate calls the zk VM reports the code address here, which is
	// exactly what the interception layer corrects.
	ContractAddress common.Address
	Input           []byte
	Value           *uint256.Int
	Static          bool
}

// ExecutionStep is the per-instruction snapshot passed to observers.
type ExecutionStep struct {
	Opcode Opcode
	Depth  int
	Frame  *CallFrame
}

// ForcedReturn short-circuits the VM with fabricated return data instead of
// executing the current call.
type ForcedReturn struct {
	Data   []byte
	Revert bool
}

// CycleState is handed to FinishCycle once per VM micro-step. Observers apply
// depth-scoped overrides to the current frame and may force early
// termination.
type CycleState struct {
	Depth  int
	Frame  *CallFrame
	forced *ForcedReturn
}

// ForceReturn stages fabricated return data; the VM terminates the current
// call with it instead of executing further.
func (c *CycleState) ForceReturn(data []byte, revert bool) {
	c.forced = &ForcedReturn{Data: data, Revert: revert}
}

// TakeForcedReturn returns and clears the staged forced return, if any.
func (c *CycleState) TakeForcedReturn() *ForcedReturn {
	f := c.forced
	c.forced = nil
	return f
}

// ExecutionObserver is the hook set the host VM invokes, in fixed order, for
// every tracer attached to an invocation. Implementations embed NoopObserver
// for the hooks they do not need.
type ExecutionObserver interface {
	BeforeExecution(step *ExecutionStep)
	AfterExecution(step *ExecutionStep, output []byte)
	FinishCycle(cycle *CycleState)
}

// NoopObserver provides no-op defaults for all hooks.
type NoopObserver struct{}

func (NoopObserver) BeforeExecution(*ExecutionStep)        {}
func (NoopObserver) AfterExecution(*ExecutionStep, []byte) {}
func (NoopObserver) FinishCycle(*CycleState)               {}
