package ipc

import (
	"errors"
	"sort"

	"rvkernel/pkg/process"
	"rvkernel/pkg/process/ksync"
)

// Named pipe errors.
var (
	ErrPipeNotFound = errors.New("named pipe not found")
	ErrPipeExists   = errors.New("named pipe already exists")
	ErrInvalidName  = errors.New("invalid pipe name")
)

// Registry maps names to pipes (FIFOs). Lookups take the lock shared;
// Create and Remove take it exclusive.
type Registry struct {
	m     *process.Manager
	lock  ksync.RWLock
	pipes map[string]*Pipe
}

// NewRegistry creates an empty registry.
func NewRegistry(m *process.Manager) *Registry {
	r := &Registry{m: m, pipes: make(map[string]*Pipe)}
	r.lock.Init(m)
	return r
}

// Create makes a new named pipe.
func (r *Registry) Create(name string) (*Pipe, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	r.lock.WriteLock()
	if _, exists := r.pipes[name]; exists {
		r.lock.WriteUnlock()
		return nil, ErrPipeExists
	}
	p, err := NewPipe(r.m)
	if err != nil {
		r.lock.WriteUnlock()
		return nil, err
	}
	r.pipes[name] = p
	r.lock.WriteUnlock()
	return p, nil
}

// Open looks up a named pipe.
func (r *Registry) Open(name string) (*Pipe, error) {
	r.lock.ReadLock()
	p, exists := r.pipes[name]
	r.lock.ReadUnlock()
	if !exists {
		return nil, ErrPipeNotFound
	}
	return p, nil
}

// Remove unlinks a name. Processes that already opened the pipe keep using
// it.
func (r *Registry) Remove(name string) error {
	r.lock.WriteLock()
	_, exists := r.pipes[name]
	delete(r.pipes, name)
	r.lock.WriteUnlock()
	if !exists {
		return ErrPipeNotFound
	}
	return nil
}

// Exists checks if a named pipe exists.
func (r *Registry) Exists(name string) bool {
	r.lock.ReadLock()
	_, exists := r.pipes[name]
	r.lock.ReadUnlock()
	return exists
}

// List returns all names, sorted.
func (r *Registry) List() []string {
	r.lock.ReadLock()
	names := make([]string, 0, len(r.pipes))
	for name := range r.pipes {
		names = append(names, name)
	}
	r.lock.ReadUnlock()
	sort.Strings(names)
	return names
}
