// Package mm provides the memory-manager collaborators the process layer
// consumes: a budgeted kernel heap and page-table bookkeeping.
package mm

import (
	"errors"
	"sync"
)

// Heap errors.
var (
	ErrNoMemory     = errors.New("out of kernel memory")
	ErrInvalidSize  = errors.New("invalid allocation size")
	ErrDoubleFree   = errors.New("block already freed")
	ErrForeignBlock = errors.New("block does not belong to this heap")
)

// heapBase is where simulated heap addresses start.
const heapBase uintptr = 0x8040_0000

// alignment of every block, matching the RISC-V stack ABI.
const alignment = 16

// Block is one kernel heap allocation.
type Block struct {
	// Addr is the simulated start address.
	Addr uintptr
	// Size is the requested size in bytes.
	Size int

	heap  *Heap
	freed bool
}

// Top returns the aligned address one past the end of the block, the
// initial stack pointer for a stack allocated from it.
func (b *Block) Top() uintptr {
	return (b.Addr + uintptr(b.Size)) &^ (alignment - 1)
}

// Heap is a kernel heap with a fixed byte budget. A zero capacity means
// unlimited.
type Heap struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	next     uintptr
	live     int
}

// NewHeap creates a heap that can hand out at most capacity bytes at once.
func NewHeap(capacity int) *Heap {
	return &Heap{
		capacity: capacity,
		next:     heapBase,
	}
}

// Alloc reserves size bytes.
func (h *Heap) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.capacity > 0 && h.inUse+size > h.capacity {
		return nil, ErrNoMemory
	}

	b := &Block{Addr: h.next, Size: size, heap: h}
	h.next += (uintptr(size) + alignment - 1) &^ (alignment - 1)
	h.inUse += size
	h.live++
	return b, nil
}

// Free returns a block to the heap. Freeing nil is a no-op.
func (h *Heap) Free(b *Block) error {
	if b == nil {
		return nil
	}
	if b.heap != h {
		return ErrForeignBlock
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if b.freed {
		return ErrDoubleFree
	}
	b.freed = true
	h.inUse -= b.Size
	h.live--
	return nil
}

// InUse returns the number of bytes currently allocated.
func (h *Heap) InUse() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Live returns the number of outstanding blocks.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// SetCapacity changes the budget. Lowering it below the bytes in use makes
// every later allocation fail until enough is freed.
func (h *Heap) SetCapacity(capacity int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capacity = capacity
}
