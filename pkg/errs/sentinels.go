package errs

import "errors"

// Validation failures. Events failing these checks are dropped with a debug
// log; the offending relay is charged against its quarantine budget.
var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrBadID          = errors.New("event id does not match serialization")
	ErrBadSignature   = errors.New("bad signature")
	ErrFutureDated    = errors.New("event is future-dated")
	ErrDuplicate      = errors.New("event already stored")
)

// Store failures.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrWriteConflict    = errors.New("write conflict")
	ErrCorruptIndex     = errors.New("corrupt index")
	ErrNotFound         = errors.New("not found")
)

// Policy failures, returned to the originating mailbox command.
var (
	ErrPublishRejected   = errors.New("publish rejected by all relays")
	ErrPublishPartial    = errors.New("publish accepted by a subset of relays")
	ErrWorkerStopped     = errors.New("worker stopped")
	ErrSignerUnavailable = errors.New("signer unavailable")
	ErrDeadlineExceeded  = errors.New("command deadline exceeded")
)

// Queue conditions.
var (
	ErrQueueFull   = errors.New("ingest queue full")
	ErrQueueClosed = errors.New("ingest queue closed")
)
