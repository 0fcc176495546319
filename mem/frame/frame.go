// Package frame provides the physical frame allocator.
package frame

import (
	"log"
	"math/bits"
	"sync"
)

// An Allocator hands out physical frames. It is a pure ledger: it knows which
// frames are taken but nothing about their content or their owner.
type Allocator interface {
	// Allocate returns the lowest free frame and marks it allocated. The bool
	// is false when every frame is taken; the caller must evict.
	Allocate() (uint64, bool)

	// Free releases an allocated frame. Freeing a free frame panics.
	Free(frame uint64)

	IsAllocated(frame uint64) bool
	NumAllocated() int
	NumFree() int
	Capacity() int
}

// NewBitmapAllocator creates an allocator over numFrames frames, all free.
func NewBitmapAllocator(numFrames int) Allocator {
	if numFrames <= 0 {
		log.Panicf("number of frames must be positive, got %d", numFrames)
	}

	return &bitmapAllocator{
		words:     make([]uint64, (numFrames+63)/64),
		numFrames: numFrames,
	}
}

type bitmapAllocator struct {
	sync.Mutex
	words        []uint64
	numFrames    int
	numAllocated int
}

func (a *bitmapAllocator) Allocate() (uint64, bool) {
	a.Lock()
	defer a.Unlock()

	for i, w := range a.words {
		if w == ^uint64(0) {
			continue
		}

		bit := bits.TrailingZeros64(^w)
		frame := i*64 + bit
		if frame >= a.numFrames {
			return 0, false
		}

		a.words[i] |= 1 << uint(bit)
		a.numAllocated++

		return uint64(frame), true
	}

	return 0, false
}

func (a *bitmapAllocator) Free(frame uint64) {
	a.Lock()
	defer a.Unlock()

	a.frameMustBeInRange(frame)

	word, mask := frame/64, uint64(1)<<(frame%64)
	if a.words[word]&mask == 0 {
		log.Panicf("double free of frame %d", frame)
	}

	a.words[word] &^= mask
	a.numAllocated--
}

func (a *bitmapAllocator) IsAllocated(frame uint64) bool {
	a.Lock()
	defer a.Unlock()

	a.frameMustBeInRange(frame)

	return a.words[frame/64]&(uint64(1)<<(frame%64)) != 0
}

func (a *bitmapAllocator) NumAllocated() int {
	a.Lock()
	defer a.Unlock()

	return a.numAllocated
}

func (a *bitmapAllocator) NumFree() int {
	a.Lock()
	defer a.Unlock()

	return a.numFrames - a.numAllocated
}

func (a *bitmapAllocator) Capacity() int {
	return a.numFrames
}

func (a *bitmapAllocator) frameMustBeInRange(frame uint64) {
	if frame >= uint64(a.numFrames) {
		log.Panicf("frame %d out of range [0, %d)", frame, a.numFrames)
	}
}
