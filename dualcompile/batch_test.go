package dualcompile

import (
	"bytes"
	"testing"
)

func depOfSize(n int, fill byte) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = fill
	}
	return d
}

// TestBatchCompleteness verifies that batching is a pure partition: the
// concatenation of all batches equals the size-sorted input as a multiset,
// no batch exceeds the ceiling unless it holds a single oversized item, and
// no non-final batch is empty.
func TestBatchCompleteness(t *testing.T) {
	deps := [][]byte{
		depOfSize(10, 1),
		depOfSize(90, 2),
		depOfSize(40, 3),
		depOfSize(60, 4),
		depOfSize(5, 5),
	}
	const ceiling = 100

	batches := BatchFactoryDeps(deps, ceiling)

	sizes := make(map[int]int)
	for _, d := range deps {
		sizes[len(d)]++
	}
	total := 0
	for i, batch := range batches {
		if len(batch) == 0 {
			t.Fatalf("batch %d is empty", i)
		}
		size := 0
		for _, d := range batch {
			size += len(d)
			sizes[len(d)]--
			total++
		}
		if size > ceiling && len(batch) > 1 {
			t.Fatalf("batch %d exceeds ceiling with %d items (%d bytes)", i, len(batch), size)
		}
	}
	if total != len(deps) {
		t.Fatalf("expected %d deps across batches, got %d", len(deps), total)
	}
	for n, remaining := range sizes {
		if remaining != 0 {
			t.Fatalf("dep of size %d appears %d times too few/many", n, -remaining)
		}
	}
}

// TestBatchSortedAscending checks the greedy packing precondition: within
// the flattened batch order, dependency sizes never decrease.
func TestBatchSortedAscending(t *testing.T) {
	deps := [][]byte{depOfSize(50, 1), depOfSize(10, 2), depOfSize(30, 3)}
	batches := BatchFactoryDeps(deps, 1000)

	prev := -1
	for _, batch := range batches {
		for _, d := range batch {
			if len(d) < prev {
				t.Fatalf("dep of size %d follows dep of size %d", len(d), prev)
			}
			prev = len(d)
		}
	}
}

// TestBatchOversizedAlone ensures an item larger than the ceiling travels in
// its own batch rather than being dropped or split.
func TestBatchOversizedAlone(t *testing.T) {
	big := depOfSize(500, 9)
	deps := [][]byte{depOfSize(10, 1), big, depOfSize(20, 2)}

	batches := BatchFactoryDeps(deps, 100)

	found := false
	for _, batch := range batches {
		for _, d := range batch {
			if bytes.Equal(d, big) {
				found = true
				if len(batch) != 1 {
					t.Fatalf("oversized dep shares a batch with %d other items", len(batch)-1)
				}
			}
		}
	}
	if !found {
		t.Fatalf("oversized dep was dropped")
	}
}

func TestBatchEmptyInput(t *testing.T) {
	if batches := BatchFactoryDeps(nil, 100); batches != nil {
		t.Fatalf("expected nil for empty input, got %d batches", len(batches))
	}
}

func TestBatchSingleBatchWhenUnderCeiling(t *testing.T) {
	deps := [][]byte{depOfSize(10, 1), depOfSize(20, 2)}
	batches := BatchFactoryDeps(deps, DefaultBatchCeiling)
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(batches))
	}
}
