package eravm

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// MockReturn is one canned response for a mocked call.
type MockReturn struct {
	Data   []byte
	Revert bool
}

// MockCall matches calls to a target by calldata prefix (exact calldata is
// just the longest possible prefix) and optional value, and yields canned
// responses in FIFO order. The last remaining response is peeked, not
// popped, so a mock keeps answering after its queue drains to one.
type MockCall struct {
	Calldata []byte
	Value    *uint256.Int
	queue    []MockReturn
}

func (m *MockCall) matches(input []byte, value *uint256.Int) bool {
	if !bytes.HasPrefix(input, m.Calldata) {
		return false
	}
	if m.Value != nil {
		if value == nil || !m.Value.Eq(value) {
			return false
		}
	}
	return true
}

// next pops the front of the queue unless it is the last remaining entry.
func (m *MockCall) next() MockReturn {
	ret := m.queue[0]
	if len(m.queue) > 1 {
		m.queue = m.queue[1:]
	}
	return ret
}

// ExpectedCall tracks how often a matching call was actually made. The
// discrepancy between Count and Actual is judged by the harness at teardown;
// the tracer only ever counts.
type ExpectedCall struct {
	Calldata []byte
	Value    *uint256.Int
	Count    uint64
	Actual   uint64
}

func (e *ExpectedCall) matches(input []byte, value *uint256.Int) bool {
	if !bytes.HasPrefix(input, e.Calldata) {
		return false
	}
	if e.Value != nil {
		if value == nil || !e.Value.Eq(value) {
			return false
		}
	}
	return true
}

// Prank overrides the effective message sender for subsequent calls, with an
// optional tx.origin override. A permanent prank survives state resets until
// explicitly stopped.
type Prank struct {
	Sender    common.Address
	Origin    *common.Address
	Permanent bool
}

// StorageAccess is one recorded account/slot touch, consumed by state-diff
// cheatcodes.
type StorageAccess struct {
	Account  common.Address
	Slot     common.Hash
	Write    bool
	Previous common.Hash
	Current  common.Hash
}

// CheatcodeState is the per-session mutable record behind the cheatcode
// surface. It is exclusively owned by the current test's backend; parallel
// tests each get their own instance.
type CheatcodeState struct {
	mockedCalls   map[common.Address][]*MockCall
	expectedCalls map[common.Address][]*ExpectedCall
	prank         *Prank

	accesses   []StorageAccess
	recording  bool
	immutables map[common.Address]map[uint64]common.Hash
}

// NewCheatcodeState returns an empty per-session state.
func NewCheatcodeState() *CheatcodeState {
	return &CheatcodeState{
		mockedCalls:   make(map[common.Address][]*MockCall),
		expectedCalls: make(map[common.Address][]*ExpectedCall),
		immutables:    make(map[common.Address]map[uint64]common.Hash),
	}
}

// Reset clears per-call state between independent calls. The permanent prank
// persists until explicitly cleared; everything else is dropped.
func (s *CheatcodeState) Reset() {
	s.mockedCalls = make(map[common.Address][]*MockCall)
	s.expectedCalls = make(map[common.Address][]*ExpectedCall)
	s.accesses = nil
	s.recording = false
	s.immutables = make(map[common.Address]map[uint64]common.Hash)
	if s.prank != nil && !s.prank.Permanent {
		s.prank = nil
	}
}

// MockCallReturn registers a canned success return for calls to target
// matching the calldata prefix (and value, if non-nil). Registering the same
// context twice appends to the existing queue.
func (s *CheatcodeState) MockCallReturn(target common.Address, calldata []byte, value *uint256.Int, ret []byte) {
	s.mock(target, calldata, value, MockReturn{Data: ret})
}

// MockCallRevert registers a canned revert for matching calls.
func (s *CheatcodeState) MockCallRevert(target common.Address, calldata []byte, value *uint256.Int, revertData []byte) {
	s.mock(target, calldata, value, MockReturn{Data: revertData, Revert: true})
}

func (s *CheatcodeState) mock(target common.Address, calldata []byte, value *uint256.Int, ret MockReturn) {
	for _, m := range s.mockedCalls[target] {
		if bytes.Equal(m.Calldata, calldata) && eqValue(m.Value, value) {
			m.queue = append(m.queue, ret)
			return
		}
	}
	s.mockedCalls[target] = append(s.mockedCalls[target], &MockCall{
		Calldata: append([]byte(nil), calldata...),
		Value:    value,
		queue:    []MockReturn{ret},
	})
}

func eqValue(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}

// matchMock resolves the best mock for a call: an exact-calldata entry beats
// any shorter prefix entry, longer prefixes beat shorter ones.
func (s *CheatcodeState) matchMock(target common.Address, input []byte, value *uint256.Int) (*MockCall, bool) {
	var best *MockCall
	for _, m := range s.mockedCalls[target] {
		if !m.matches(input, value) {
			continue
		}
		if best == nil || len(m.Calldata) > len(best.Calldata) {
			best = m
		}
	}
	return best, best != nil
}

// ExpectCall registers an expectation that target receives count calls
// matching the calldata prefix (and value, if non-nil).
func (s *CheatcodeState) ExpectCall(target common.Address, calldata []byte, value *uint256.Int, count uint64) {
	s.expectedCalls[target] = append(s.expectedCalls[target], &ExpectedCall{
		Calldata: append([]byte(nil), calldata...),
		Value:    value,
		Count:    count,
	})
}

// ExpectedCalls exposes the expectation table for teardown evaluation.
func (s *CheatcodeState) ExpectedCalls() map[common.Address][]*ExpectedCall {
	return s.expectedCalls
}

// StartPrank installs a sender override. origin may be nil; permanent pranks
// survive Reset.
func (s *CheatcodeState) StartPrank(sender common.Address, origin *common.Address, permanent bool) {
	if s.prank != nil && s.prank.Permanent && !permanent {
		log.Warn("Overriding an active permanent prank with a one-shot prank")
	}
	s.prank = &Prank{Sender: sender, Origin: origin, Permanent: permanent}
}

// StopPrank clears any active prank, permanent or not.
func (s *CheatcodeState) StopPrank() { s.prank = nil }

// ActivePrank returns the current sender override, if any.
func (s *CheatcodeState) ActivePrank() *Prank { return s.prank }

// StartRecording begins capturing storage accesses.
func (s *CheatcodeState) StartRecording() {
	s.recording = true
	s.accesses = nil
}

// RecordedAccesses stops recording and returns the captured accesses.
func (s *CheatcodeState) RecordedAccesses() []StorageAccess {
	s.recording = false
	return s.accesses
}

func (s *CheatcodeState) recordAccess(a StorageAccess) {
	if s.recording {
		s.accesses = append(s.accesses, a)
	}
}

// MergeImmutables folds immutable writes captured by a tracer into the
// session state, so the harness can replay them when mirroring deployed code
// back to the EVM journal.
func (s *CheatcodeState) MergeImmutables(im map[common.Address]map[uint64]common.Hash) {
	for addr, slots := range im {
		dst, ok := s.immutables[addr]
		if !ok {
			dst = make(map[uint64]common.Hash, len(slots))
			s.immutables[addr] = dst
		}
		for slot, val := range slots {
			dst[slot] = val
		}
	}
}

// Immutables returns the recorded immutable writes by address and slot index.
func (s *CheatcodeState) Immutables() map[common.Address]map[uint64]common.Hash {
	return s.immutables
}
