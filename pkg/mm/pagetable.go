package mm

import (
	"errors"
	"fmt"
	"sync"
)

// PageSize is the Sv39 base page size.
const PageSize = 4096

// ErrFreeKernelTable is returned when the shared kernel page table is handed
// to Free. Callers treat it as a fatal invariant violation.
var ErrFreeKernelTable = errors.New("attempt to free the kernel page table")

// PageTable is the root of one address space.
type PageTable struct {
	root   *Block
	kernel bool
}

// Root returns the physical address of the root page.
func (pt *PageTable) Root() uintptr {
	return pt.root.Addr
}

// IsKernel reports whether this is the shared kernel table.
func (pt *PageTable) IsKernel() bool {
	return pt.kernel
}

// PageTables hands out address-space roots from a kernel heap.
type PageTables struct {
	mu     sync.Mutex
	heap   *Heap
	kernel *PageTable
	user   int
}

// NewPageTables allocates the kernel page table from heap.
func NewPageTables(heap *Heap) (*PageTables, error) {
	root, err := heap.Alloc(PageSize)
	if err != nil {
		return nil, err
	}
	return &PageTables{
		heap:   heap,
		kernel: &PageTable{root: root, kernel: true},
	}, nil
}

// Kernel returns the page table shared by all kernel processes.
func (t *PageTables) Kernel() *PageTable {
	return t.kernel
}

// CreateUser allocates a fresh user address space.
func (t *PageTables) CreateUser() (*PageTable, error) {
	root, err := t.heap.Alloc(PageSize)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.user++
	t.mu.Unlock()
	return &PageTable{root: root}, nil
}

// Free releases a user page table. The kernel table is never released;
// handing it over returns ErrFreeKernelTable and leaves it intact.
func (t *PageTables) Free(pt *PageTable) error {
	if pt == nil {
		return nil
	}
	if pt.kernel {
		return ErrFreeKernelTable
	}
	if err := t.heap.Free(pt.root); err != nil {
		return fmt.Errorf("page table root: %w", err)
	}
	t.mu.Lock()
	t.user--
	t.mu.Unlock()
	return nil
}

// UserTables returns the number of live user page tables.
func (t *PageTables) UserTables() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.user
}
