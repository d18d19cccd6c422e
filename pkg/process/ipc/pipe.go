package ipc

import (
	"errors"
	"io"

	"rvkernel/pkg/mm"
	"rvkernel/pkg/process"
	"rvkernel/pkg/process/ksync"
)

// PipeBufSize is the capacity of a pipe: one page.
const PipeBufSize = mm.PageSize

// Pipe errors.
var (
	ErrPipeClosed = errors.New("pipe is closed")
	ErrWouldBlock = errors.New("operation would block")
	ErrBrokenPipe = errors.New("pipe is broken")
)

// Pipe is a unidirectional byte stream over a circular buffer allocated from
// the kernel heap. Each end is reference counted; the buffer is released when
// both counts reach zero.
type Pipe struct {
	m     *process.Manager
	block *mm.Block
	buf   []byte

	readPos  int
	writePos int
	size     int

	readers int
	writers int

	mu       ksync.Mutex
	notEmpty ksync.Cond
	notFull  ksync.Cond
}

// NewPipe creates a pipe with one read end and one write end open.
func NewPipe(m *process.Manager) (*Pipe, error) {
	block, err := m.Heap().Alloc(PipeBufSize)
	if err != nil {
		return nil, err
	}
	p := &Pipe{
		m:       m,
		block:   block,
		buf:     make([]byte, PipeBufSize),
		readers: 1,
		writers: 1,
	}
	p.mu.Init(m)
	p.notEmpty.Init(m)
	p.notFull.Init(m)
	return p, nil
}

// Read copies up to len(b) bytes out of the pipe, sleeping while it is empty
// and a writer remains. It returns io.EOF once the pipe is drained and every
// write end is closed.
func (p *Pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.readers == 0 {
		p.mu.Unlock()
		return 0, ErrPipeClosed
	}
	for p.size == 0 && p.writers > 0 {
		p.notEmpty.Wait(&p.mu)
	}
	if p.size == 0 {
		p.mu.Unlock()
		return 0, io.EOF
	}
	n := p.take(b)
	p.notFull.Broadcast()
	p.mu.Unlock()
	return n, nil
}

// TryRead is Read without sleeping.
func (p *Pipe) TryRead(b []byte) (int, error) {
	p.mu.Lock()
	n, err := p.tryReadLocked(b)
	p.mu.Unlock()
	return n, err
}

func (p *Pipe) tryReadLocked(b []byte) (int, error) {
	if p.readers == 0 {
		return 0, ErrPipeClosed
	}
	if p.size == 0 {
		if p.writers == 0 {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := p.take(b)
	p.notFull.Broadcast()
	return n, nil
}

// Write copies all of b into the pipe, sleeping whenever it is full. It
// fails with ErrBrokenPipe once no read end is open, returning the bytes
// written so far.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.writers == 0 {
		p.mu.Unlock()
		return 0, ErrPipeClosed
	}
	written := 0
	for written < len(b) {
		for p.size == len(p.buf) && p.readers > 0 {
			p.notFull.Wait(&p.mu)
		}
		if p.readers == 0 {
			p.mu.Unlock()
			return written, ErrBrokenPipe
		}
		written += p.put(b[written:])
		p.notEmpty.Broadcast()
	}
	p.mu.Unlock()
	return written, nil
}

// TryWrite copies as much of b as fits without sleeping.
func (p *Pipe) TryWrite(b []byte) (int, error) {
	p.mu.Lock()
	n, err := p.tryWriteLocked(b)
	p.mu.Unlock()
	return n, err
}

func (p *Pipe) tryWriteLocked(b []byte) (int, error) {
	if p.writers == 0 {
		return 0, ErrPipeClosed
	}
	if p.readers == 0 {
		return 0, ErrBrokenPipe
	}
	if p.size == len(p.buf) && len(b) > 0 {
		return 0, ErrWouldBlock
	}
	n := p.put(b)
	p.notEmpty.Broadcast()
	return n, nil
}

func (p *Pipe) take(b []byte) int {
	n := 0
	for n < len(b) && p.size > 0 {
		chunk := min(len(b)-n, p.size, len(p.buf)-p.readPos)
		copy(b[n:n+chunk], p.buf[p.readPos:p.readPos+chunk])
		p.readPos = (p.readPos + chunk) % len(p.buf)
		p.size -= chunk
		n += chunk
	}
	return n
}

func (p *Pipe) put(b []byte) int {
	n := 0
	for n < len(b) && p.size < len(p.buf) {
		chunk := min(len(b)-n, len(p.buf)-p.size, len(p.buf)-p.writePos)
		copy(p.buf[p.writePos:p.writePos+chunk], b[n:n+chunk])
		p.writePos = (p.writePos + chunk) % len(p.buf)
		p.size += chunk
		n += chunk
	}
	return n
}

// DupRead opens another read end.
func (p *Pipe) DupRead() {
	p.mu.Lock()
	p.readers++
	p.mu.Unlock()
}

// DupWrite opens another write end.
func (p *Pipe) DupWrite() {
	p.mu.Lock()
	p.writers++
	p.mu.Unlock()
}

// CloseRead closes one read end. Blocked writers fail once none is left.
func (p *Pipe) CloseRead() error {
	p.mu.Lock()
	if p.readers == 0 {
		p.mu.Unlock()
		return ErrPipeClosed
	}
	p.readers--
	p.notFull.Broadcast()
	p.releaseLocked()
	p.mu.Unlock()
	return nil
}

// CloseWrite closes one write end. Readers see EOF once the buffer drains.
func (p *Pipe) CloseWrite() error {
	p.mu.Lock()
	if p.writers == 0 {
		p.mu.Unlock()
		return ErrPipeClosed
	}
	p.writers--
	p.notEmpty.Broadcast()
	p.releaseLocked()
	p.mu.Unlock()
	return nil
}

func (p *Pipe) releaseLocked() {
	if p.readers > 0 || p.writers > 0 || p.block == nil {
		return
	}
	if err := p.m.Heap().Free(p.block); err != nil {
		p.m.Logger().Error("pipe buffer free failed", "error", err)
	}
	p.block = nil
}

// Len returns the number of buffered bytes.
func (p *Pipe) Len() int {
	p.mu.Lock()
	n := p.size
	p.mu.Unlock()
	return n
}

// Closed reports whether both ends are fully closed.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	closed := p.readers == 0 && p.writers == 0
	p.mu.Unlock()
	return closed
}
