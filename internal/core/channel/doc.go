// Package channel implements the LIME session channel engine.
//
// A Channel owns one transport and enforces the session state machine:
//
//	New -> Negotiating -> Authenticating -> Established -> Finishing -> Finished
//
// with Failed reachable from every non-terminal state. ServerChannel and
// ClientChannel expose the session operations of each side. Operations
// called in the wrong state fail with *domain.InvalidStateError and leave
// the state untouched.
//
// Incoming envelopes are read by a single consumer goroutine and
// demultiplexed by kind. At most one receive per kind may be pending; a
// second concurrent receive of the same kind fails with
// domain.ErrConcurrentReceive.
//
// Correlator pairs command requests with their responses under a
// semaphore owned by the channel (or a process-wide one when
// Config.GlobalCommandLock is set).
package channel
