package ipc

import (
	"errors"

	"rvkernel/pkg/process"
	"rvkernel/pkg/process/ksync"
)

// Message queue errors.
var (
	ErrQueueFull       = errors.New("message queue is full")
	ErrQueueEmpty      = errors.New("message queue is empty")
	ErrInvalidCapacity = errors.New("invalid message queue capacity")
)

// MessageType represents the type of a message.
type MessageType uint8

const (
	// MessageTypeData is a regular data message.
	MessageTypeData MessageType = iota
	// MessageTypeControl is a control message.
	MessageTypeControl
	// MessageTypeDisconnect tells the receiver no more messages follow.
	MessageTypeDisconnect
)

// Message is one queued message. Sender is filled in by Send.
type Message struct {
	Type    MessageType
	Sender  int
	Payload []byte
}

// MessageQueue is a bounded FIFO mailbox. Free slots and queued messages are
// counted by two semaphores, so senders block while it is full and receivers
// while it is empty.
type MessageQueue struct {
	slots ksync.Semaphore
	items ksync.Semaphore
	mu    ksync.Mutex

	m     *process.Manager
	ring  []Message
	head  int
	count int
}

// NewMessageQueue creates a mailbox holding up to capacity messages.
func NewMessageQueue(m *process.Manager, capacity int) (*MessageQueue, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	q := &MessageQueue{m: m, ring: make([]Message, capacity)}
	q.slots.Init(m, capacity)
	q.items.Init(m, 0)
	q.mu.Init(m)
	return q, nil
}

// Send queues msg, sleeping while the mailbox is full.
func (q *MessageQueue) Send(msg Message) {
	q.slots.Wait()
	q.push(msg)
	q.items.Signal()
}

// TrySend queues msg without sleeping.
func (q *MessageQueue) TrySend(msg Message) error {
	if err := q.slots.TryWait(); err != nil {
		return ErrQueueFull
	}
	q.push(msg)
	q.items.Signal()
	return nil
}

// Receive dequeues the oldest message, sleeping while the mailbox is empty.
func (q *MessageQueue) Receive() Message {
	q.items.Wait()
	msg := q.pop()
	q.slots.Signal()
	return msg
}

// TryReceive dequeues the oldest message without sleeping.
func (q *MessageQueue) TryReceive() (Message, error) {
	if err := q.items.TryWait(); err != nil {
		return Message{}, ErrQueueEmpty
	}
	msg := q.pop()
	q.slots.Signal()
	return msg, nil
}

func (q *MessageQueue) push(msg Message) {
	if cur := q.m.Current(); cur != nil {
		msg.Sender = cur.PID()
	}
	q.mu.Lock()
	q.ring[(q.head+q.count)%len(q.ring)] = msg
	q.count++
	q.mu.Unlock()
}

func (q *MessageQueue) pop() Message {
	q.mu.Lock()
	msg := q.ring[q.head]
	q.ring[q.head] = Message{}
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.mu.Unlock()
	return msg
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	return q.items.Count()
}

// Capacity returns the maximum number of queued messages.
func (q *MessageQueue) Capacity() int {
	return len(q.ring)
}
