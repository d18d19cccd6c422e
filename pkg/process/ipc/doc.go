// Package ipc provides kernel IPC objects built on the ksync primitives:
// byte pipes, bounded message queues and a registry of named pipes.
//
// All operations must be called by the process holding the hart. Blocking
// calls sleep on kernel wait queues and let other processes run.
package ipc
