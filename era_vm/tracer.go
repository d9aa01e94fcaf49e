package eravm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	erabridge "github.com/zkforge/zkvm-bridge/era_bridge"
)

// CallContext seeds a tracer with everything the current top-level invocation
// knows: the transaction caller, active overrides, and the block view the
// harness believes it set via roll/warp/fork selection. The zk VM's own
// environment is deliberately not consulted for these values.
type CallContext struct {
	TxCaller common.Address
	// MsgSender is the effective sender after any prank.
	MsgSender common.Address
	Target    common.Address
	// This overrides address(this) to emulate delegate-call context when
	// set.
	This *common.Address

	BlockNumber    uint64
	BlockTimestamp uint64
	BlockBaseFee   *uint256.Int
	BlockHashes    map[uint64]common.Hash

	IsCreate bool
	IsStatic bool
}

// stagedAction is a depth-scoped override applied in FinishCycle. Actions
// must not leak to unrelated call frames, so each carries the depth it was
// staged for.
type stagedAction struct {
	depth int
	kind  actionKind
	addr  common.Address
}

// CheatcodeTracer intercepts the zk VM's instruction dispatch to implement
// test-harness builtins: mocked calls, call expectations, sender/this
// overrides, block-view pinning, and immutable-write capture. One tracer is
// instantiated per top-level invocation and must not be reused.
type CheatcodeTracer struct {
	ctx   CallContext
	state *CheatcodeState

	// codeAt answers "does this target have code", for the forgot-to-mock
	// diagnostic. Nil disables the check.
	codeAt func(common.Address) []byte

	actions    []stagedAction
	pending    *ForcedReturn
	immutables map[common.Address]map[uint64]common.Hash
	counts     map[common.Address][]uint64
	trace      []CallTraceEntry
	cell       resultCell
}

// NewCheatcodeTracer builds a tracer seeded with the session cheatcode state
// and the current call context.
func NewCheatcodeTracer(ctx CallContext, state *CheatcodeState, codeAt func(common.Address) []byte) *CheatcodeTracer {
	t := &CheatcodeTracer{
		ctx:        ctx,
		state:      state,
		codeAt:     codeAt,
		immutables: make(map[common.Address]map[uint64]common.Hash),
		counts:     make(map[common.Address][]uint64),
	}
	if p := state.ActivePrank(); p != nil {
		t.ctx.MsgSender = p.Sender
	}
	return t
}

// BeforeExecution pattern-matches the instruction about to execute. Only
// call-shaped opcodes are inspected.
func (t *CheatcodeTracer) BeforeExecution(step *ExecutionStep) {
	if step.Frame == nil || !step.Opcode.isFarCall() {
		return
	}
	frame := step.Frame

	t.state.recordAccess(StorageAccess{Account: frame.CodeAddress})

	// Expected-call counting is pure observation and happens regardless of
	// how the call is resolved below.
	t.countExpected(frame)

	if t.intercept(step) {
		return
	}

	// Delegate calls into a contract that declares itself as the frame's
	// contract address run in the caller's context; the zk VM's native call
	// model does not provide that, so stage an address(this) override for
	// the frame being opened.
	if step.Opcode == OpDelegateCall && frame.CodeAddress == frame.ContractAddress {
		t.actions = append(t.actions, stagedAction{
			depth: step.Depth + 1,
			kind:  actionOverrideThis,
			addr:  frame.Caller,
		})
	}

	t.resolveMock(frame)
}

// intercept consults the dispatch table; returns true when the call was
// handled (short-circuited or staged).
func (t *CheatcodeTracer) intercept(step *ExecutionStep) bool {
	frame := step.Frame
	if len(frame.Input) < 4 {
		return false
	}
	var sel [4]byte
	copy(sel[:], frame.Input[:4])
	entry, ok := dispatchTable[dispatchKey{addr: frame.CodeAddress, selector: sel}]
	if !ok {
		return false
	}
	switch entry.kind {
	case actionReturnFixed:
		data := entry.produce(t, step)
		if data == nil {
			return false
		}
		t.pending = &ForcedReturn{Data: data}
		return true
	case actionOverrideSender:
		// Only the bootloader's own transaction-entry call is rewritten;
		// its internal call chain otherwise reports the bootloader itself
		// as sender.
		if frame.Caller != erabridge.BootloaderAddress {
			return false
		}
		t.actions = append(t.actions, stagedAction{
			depth: step.Depth + 1,
			kind:  actionOverrideSender,
			addr:  t.ctx.MsgSender,
		})
		return true
	case actionRecordImmutables:
		if !t.ctx.IsCreate {
			return false
		}
		addr, writes := decodeImmutableWrites(frame.Input)
		if writes == nil {
			return false
		}
		slots, ok := t.immutables[addr]
		if !ok {
			slots = make(map[uint64]common.Hash, len(writes))
			t.immutables[addr] = slots
		}
		for _, w := range writes {
			slots[w.Index.Uint64()] = common.Hash(w.Value)
		}
		return true
	}
	return false
}

// resolveMock short-circuits the call with a canned response when one is
// registered, and emits the forgot-to-mock diagnostic for calls into empty
// code.
func (t *CheatcodeTracer) resolveMock(frame *CallFrame) {
	mock, ok := t.state.matchMock(frame.CodeAddress, frame.Input, frame.Value)
	if ok {
		ret := mock.next()
		t.pending = &ForcedReturn{Data: ret.Data, Revert: ret.Revert}
		return
	}
	if t.codeAt == nil || isSystemAddress(frame.CodeAddress) {
		return
	}
	if len(t.codeAt(frame.CodeAddress)) == 0 {
		log.Warn("Call to an address with empty code; did you forget to mock this call?",
			"target", frame.CodeAddress, "calldata", len(frame.Input))
	}
}

func (t *CheatcodeTracer) countExpected(frame *CallFrame) {
	expectations := t.state.ExpectedCalls()[frame.CodeAddress]
	if len(expectations) == 0 {
		return
	}
	counts := t.counts[frame.CodeAddress]
	if counts == nil {
		counts = make([]uint64, len(expectations))
		t.counts[frame.CodeAddress] = counts
	}
	for i, e := range expectations {
		if i < len(counts) && e.matches(frame.Input, frame.Value) {
			counts[i]++
		}
	}
}

// CallTraceEntry is one completed far call, recorded for the harness's
// trace decoding.
type CallTraceEntry struct {
	Depth  int
	Caller common.Address
	Target common.Address
	Input  []byte
	Output []byte
	Value  *uint256.Int
}

// AfterExecution records the completed call for the bridged trace.
func (t *CheatcodeTracer) AfterExecution(step *ExecutionStep, output []byte) {
	if step.Frame == nil || !step.Opcode.isFarCall() {
		return
	}
	t.trace = append(t.trace, CallTraceEntry{
		Depth:  step.Depth,
		Caller: step.Frame.Caller,
		Target: step.Frame.CodeAddress,
		Input:  step.Frame.Input,
		Output: output,
		Value:  step.Frame.Value,
	})
}

// CallTrace returns the far calls observed so far, in completion order.
func (t *CheatcodeTracer) CallTrace() []CallTraceEntry { return t.trace }

// FinishCycle applies staged overrides for the current depth only, then
// forces the fabricated return if one is pending.
func (t *CheatcodeTracer) FinishCycle(cycle *CycleState) {
	remaining := t.actions[:0]
	for _, a := range t.actions {
		if a.depth != cycle.Depth {
			remaining = append(remaining, a)
			continue
		}
		switch a.kind {
		case actionOverrideSender:
			cycle.Frame.Caller = a.addr
		case actionOverrideThis:
			cycle.Frame.ContractAddress = a.addr
		}
	}
	t.actions = remaining

	if t.pending != nil {
		cycle.ForceReturn(t.pending.Data, t.pending.Revert)
		t.pending = nil
	}
}

// Finish publishes the accumulated outcome. The host executor calls it
// exactly once, after the VM loop has terminated; a second call reports the
// programming error instead of silently overwriting.
func (t *CheatcodeTracer) Finish() error {
	return t.cell.publish(&TracerOutcome{
		ExpectedCounts: t.counts,
		Immutables:     t.immutables,
	})
}

// TakeOutcome consumes the published outcome exactly once.
func (t *CheatcodeTracer) TakeOutcome() (*TracerOutcome, error) {
	return t.cell.take()
}

// isSystemAddress reports whether addr is in the zk kernel/precompile range
// (below 2^16) or is the cheatcode address; such targets are exempt from the
// empty-code diagnostic.
func isSystemAddress(addr common.Address) bool {
	if addr == erabridge.CheatcodeAddress {
		return true
	}
	for i := 0; i < 18; i++ {
		if addr[i] != 0 {
			return false
		}
	}
	return true
}
