// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package utils

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var _ = fmt.Print

func TestAtomicBits(t *testing.T) {
	b := NewSignalBits()
	if b.Size() != 128 || b.Any() {
		t.Fatalf("Unexpected new bit set")
	}
	for _, n := range []int{65, 1, 127, 64, -1, 128} {
		b.Set(n)
	}
	var seen []int
	b.ForEach(func(n int) { seen = append(seen, n) })
	if diff := cmp.Diff([]int{1, 64, 65, 127}, seen); diff != "" {
		t.Fatalf("Unexpected bits:\n%s", diff)
	}
	b.Clear(64)
	if b.Has(64) || !b.Has(65) || b.Has(-1) {
		t.Fatalf("Clear did not work")
	}
	other := NewSignalBits()
	other.CopyFrom(b)
	seen = nil
	b.Drain(func(n int) { seen = append(seen, n) })
	if diff := cmp.Diff([]int{1, 65, 127}, seen); diff != "" {
		t.Fatalf("Unexpected drained bits:\n%s", diff)
	}
	if b.Any() || !other.Has(127) {
		t.Fatalf("Drain did not empty the set or CopyFrom did not copy")
	}
	other.ClearAll()
	if other.Any() {
		t.Fatalf("ClearAll left bits set")
	}
}

func TestAtomicBitsConcurrentDrain(t *testing.T) {
	b := NewFdBits()
	const num = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range num {
			b.Set(i % b.Size())
		}
	}()
	seen := make(map[int]bool)
	collect := func(n int) { seen[n] = true }
	for range 100 {
		b.Drain(collect)
	}
	wg.Wait()
	b.Drain(collect)
	for i := range min(num, b.Size()) {
		if !seen[i] {
			t.Fatalf("Bit %d was lost while draining", i)
		}
	}
}
