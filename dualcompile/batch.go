package dualcompile

import (
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/exp/slices"
)

// DefaultBatchCeiling is the per-transaction factory-dependency payload
// ceiling in bytes. The zk VM rejects transactions whose dependency payload
// exceeds its hard limit, so oversized sets are split into preparatory
// transactions ahead of the real call.
const DefaultBatchCeiling = 100_000

// BatchFactoryDeps splits deps into ordered size-bounded batches. Deps are
// sorted ascending by length first (greedy packing: small items fill gaps
// left by large ones). An individual dependency larger than the ceiling is
// placed alone in its own batch, never dropped, never split.
//
// All batches except the last are meant to be sent as empty-calldata,
// zero-value preparatory transactions; the last batch travels with the real
// deployment payload.
func BatchFactoryDeps(deps [][]byte, ceiling int) [][][]byte {
	if ceiling <= 0 {
		ceiling = DefaultBatchCeiling
	}
	if len(deps) == 0 {
		return nil
	}

	sorted := slices.Clone(deps)
	slices.SortStableFunc(sorted, func(a, b []byte) int {
		return len(a) - len(b)
	})

	var (
		batches [][][]byte
		current [][]byte
		size    int
	)
	for _, dep := range sorted {
		if size+len(dep) > ceiling && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		if len(dep) > ceiling {
			log.Warn("Factory dependency exceeds batch ceiling, sending alone", "size", len(dep), "ceiling", ceiling)
		}
		current = append(current, dep)
		size += len(dep)
	}
	batches = append(batches, current)

	if len(batches) > 1 {
		log.Debug("Factory dependencies split into batches", "deps", len(deps), "batches", len(batches))
	}
	return batches
}
