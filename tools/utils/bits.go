// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package utils

import (
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// AtomicBits is a fixed size bit set that is safe to write from one goroutine
// while another reads and drains it. Only the constructor allocates, so the
// methods can be used from signal handling code.
type AtomicBits struct {
	words []atomic.Uint64
}

func NewAtomicBits(size int) *AtomicBits {
	return &AtomicBits{words: make([]atomic.Uint64, (size+63)/64)}
}

// NewSignalBits covers every signal number on the supported platforms
func NewSignalBits() *AtomicBits { return NewAtomicBits(128) }

// NewFdBits covers every descriptor select(2) can wait on
func NewFdBits() *AtomicBits { return NewAtomicBits(unix.FD_SETSIZE) }

func (self *AtomicBits) Size() int { return len(self.words) * 64 }

func (self *AtomicBits) word(n int) *atomic.Uint64 {
	if n < 0 || n >= len(self.words)*64 {
		return nil
	}
	return &self.words[n/64]
}

func (self *AtomicBits) Set(n int) {
	if w := self.word(n); w != nil {
		w.Or(1 << uint(n%64))
	}
}

func (self *AtomicBits) Clear(n int) {
	if w := self.word(n); w != nil {
		w.And(^(uint64(1) << uint(n%64)))
	}
}

func (self *AtomicBits) Has(n int) bool {
	if w := self.word(n); w != nil {
		return w.Load()&(1<<uint(n%64)) != 0
	}
	return false
}

func (self *AtomicBits) Any() bool {
	for i := range len(self.words) {
		if self.words[i].Load() != 0 {
			return true
		}
	}
	return false
}

func (self *AtomicBits) ClearAll() {
	for i := range len(self.words) {
		self.words[i].Store(0)
	}
}

// Drain atomically takes every set bit, calling f for each in ascending order.
// Bits set concurrently with a drain are either reported now or stay set for
// the next one, they are never lost.
func (self *AtomicBits) Drain(f func(n int)) {
	for i := range len(self.words) {
		w := self.words[i].Swap(0)
		for w != 0 {
			b := bits.TrailingZeros64(w)
			w &^= 1 << uint(b)
			f(i*64 + b)
		}
	}
}

// ForEach reports set bits without clearing them
func (self *AtomicBits) ForEach(f func(n int)) {
	for i := range len(self.words) {
		w := self.words[i].Load()
		for w != 0 {
			b := bits.TrailingZeros64(w)
			w &^= 1 << uint(b)
			f(i*64 + b)
		}
	}
}

// CopyFrom replaces the contents with those of other, word by word
func (self *AtomicBits) CopyFrom(other *AtomicBits) {
	for i := range min(len(self.words), len(other.words)) {
		self.words[i].Store(other.words[i].Load())
	}
}
