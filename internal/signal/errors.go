package signal

import "errors"

// Dispatch error taxonomy. Errors returned by this package wrap one of these;
// match with errors.Is.
var (
	ErrTypeMismatch              = errors.New("handler argument type does not match signal")
	ErrQueueFull                 = errors.New("queue full")
	ErrNullIdentity              = errors.New("null identity")
	ErrOutOfMemory               = errors.New("out of memory")
	ErrAlreadyConnected          = errors.New("already connected")
	ErrObjectDestroyed           = errors.New("object destroyed")
	ErrEmitTimeout               = errors.New("emit timed out waiting for blocking receivers")
	ErrReceiverNotFound          = errors.New("no receivers connected")
	ErrReceiverHasNoQueue        = errors.New("receiver has no queue")
	ErrReceiverHasNoOwningThread = errors.New("receiver has no owning thread")
	ErrOwningThreadHasNoQueue    = errors.New("owning thread has no queue")
	ErrReentrantMutation         = errors.New("registry mutation from inside a synchronous handler")
)
