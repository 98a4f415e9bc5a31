package channel

import (
	"errors"
	"sync"
)

var ErrSinkSealed = errors.New("the sink is sealed")

// Message is an envelope for whatever a producer posts to a shared consumer.
// The consumer can tell producers apart by `Sender`.
type Message[SenderType comparable, MessageType any] struct {
	Sender  SenderType
	Content MessageType
}

// SinkWithSender binds a producer to a shared message channel. The sender is fixed when the
// sink is created, so a producer can't post messages on behalf of anybody else.
type SinkWithSender[SenderType comparable, MessageType any] struct {
	sender      SenderType
	messageSink chan<- Message[SenderType, MessageType]
	// Closed once the sink is sealed. The underlying channel is shared between
	// many producers, so it is never closed by a single sink.
	sealed   chan struct{}
	sealOnce sync.Once
}

// Creates a new sink. The sink does not own `messageSink` and never closes it.
func NewSink[S comparable, M any](sender S, messageSink chan<- Message[S, M]) *SinkWithSender[S, M] {
	return &SinkWithSender[S, M]{
		sender:      sender,
		messageSink: messageSink,
		sealed:      make(chan struct{}),
	}
}

// Sender returns the identity attached to every message sent via this sink.
func (s *SinkWithSender[S, M]) Sender() S {
	return s.sender
}

// Sends a message to the consumer. Blocks while the channel is full unless the sink gets sealed.
func (s *SinkWithSender[S, M]) Send(message M) error {
	select {
	case <-s.sealed:
		return ErrSinkSealed
	default:
	}

	select {
	case <-s.sealed:
		return ErrSinkSealed
	case s.messageSink <- Message[S, M]{Sender: s.sender, Content: message}:
		return nil
	}
}

// Seal the sink. Every `Send` that starts after `Seal` returns fails with `ErrSinkSealed`,
// blocked senders either fail or deliver, whichever happens first.
func (s *SinkWithSender[S, M]) Seal() {
	s.sealOnce.Do(func() { close(s.sealed) })
}

// Sealed reports whether `Seal` has been called.
func (s *SinkWithSender[S, M]) Sealed() bool {
	select {
	case <-s.sealed:
		return true
	default:
		return false
	}
}
