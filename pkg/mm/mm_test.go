package mm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapBudget(t *testing.T) {
	h := NewHeap(100)

	a, err := h.Alloc(60)
	require.NoError(t, err)
	assert.Equal(t, 60, h.InUse())

	_, err = h.Alloc(41)
	assert.ErrorIs(t, err, ErrNoMemory)

	b, err := h.Alloc(40)
	require.NoError(t, err)
	assert.NotEqual(t, a.Addr, b.Addr)
	assert.Equal(t, 2, h.Live())

	require.NoError(t, h.Free(a))
	assert.ErrorIs(t, h.Free(a), ErrDoubleFree)
	assert.Equal(t, 40, h.InUse())
	assert.Equal(t, 1, h.Live())
}

func TestHeapInvalid(t *testing.T) {
	h := NewHeap(0)
	_, err := h.Alloc(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	other := NewHeap(0)
	b, err := other.Alloc(8)
	require.NoError(t, err)
	assert.ErrorIs(t, h.Free(b), ErrForeignBlock)
	assert.NoError(t, h.Free(nil))
}

func TestBlockTopAligned(t *testing.T) {
	h := NewHeap(0)
	b, err := h.Alloc(16*1024 + 3)
	require.NoError(t, err)
	assert.Zero(t, b.Top()%alignment)
	assert.LessOrEqual(t, b.Top(), b.Addr+uintptr(b.Size))
}

func TestPageTables(t *testing.T) {
	h := NewHeap(0)
	pts, err := NewPageTables(h)
	require.NoError(t, err)
	assert.True(t, pts.Kernel().IsKernel())

	user, err := pts.CreateUser()
	require.NoError(t, err)
	assert.False(t, user.IsKernel())
	assert.NotEqual(t, pts.Kernel().Root(), user.Root())
	assert.Equal(t, 1, pts.UserTables())

	require.NoError(t, pts.Free(user))
	assert.Equal(t, 0, pts.UserTables())
	assert.Equal(t, PageSize, h.InUse())

	err = pts.Free(user)
	assert.ErrorIs(t, err, ErrDoubleFree)
	assert.Equal(t, 0, pts.UserTables())

	assert.ErrorIs(t, pts.Free(pts.Kernel()), ErrFreeKernelTable)
	assert.Equal(t, PageSize, h.InUse())
	assert.NoError(t, pts.Free(nil))
}

func TestPageTablesOutOfMemory(t *testing.T) {
	h := NewHeap(PageSize)
	pts, err := NewPageTables(h)
	require.NoError(t, err)

	_, err = pts.CreateUser()
	assert.ErrorIs(t, err, ErrNoMemory)
}
