package eravm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// TracerOutcome is what the tracer publishes when the VM shuts down: the
// expected-call counts observed during execution and the immutable writes
// captured from the ImmutableSimulator.
type TracerOutcome struct {
	// ExpectedCounts maps (target, expectation index) to the number of
	// matching calls observed.
	ExpectedCounts map[common.Address][]uint64
	Immutables     map[common.Address]map[uint64]common.Hash
}

// resultCell is a single-assignment slot moving the outcome out of the
// tracer after the VM loop has unconditionally terminated. It is never read
// under contention; the checks below catch programming errors, not races.
type resultCell struct {
	outcome *TracerOutcome
	taken   bool
}

// publish stores the outcome. Publishing twice is a checked error rather
// than a double-write panic.
func (c *resultCell) publish(o *TracerOutcome) error {
	if c.outcome != nil {
		return errors.New("tracer outcome already published")
	}
	c.outcome = o
	return nil
}

// take consumes the outcome exactly once.
func (c *resultCell) take() (*TracerOutcome, error) {
	if c.outcome == nil {
		return nil, errors.New("tracer outcome not yet published; VM still running?")
	}
	if c.taken {
		return nil, errors.New("tracer outcome already consumed")
	}
	c.taken = true
	return c.outcome, nil
}
