package core

import (
	"github.com/holiman/uint256"

	"github.com/zkforge/zkvm-bridge/dualcompile"
)

// Config carries the session-level knobs of the dual-VM executor.
type Config struct {
	ChainID uint64
	// BatchCeiling bounds the factory-dependency payload of one zk
	// transaction. Zero selects the default.
	BatchCeiling int
	// StartInZkVM selects the zk backend at session start instead of the
	// default EVM backend.
	StartInZkVM bool
	// BaseFee is the block base fee the harness pins for both backends.
	BaseFee *uint256.Int
}

func (c Config) withDefaults() Config {
	if c.BatchCeiling == 0 {
		c.BatchCeiling = dualcompile.DefaultBatchCeiling
	}
	if c.BaseFee == nil {
		c.BaseFee = uint256.NewInt(0)
	}
	return c
}
