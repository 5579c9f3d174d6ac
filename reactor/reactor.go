// Package reactor implements a single-threaded readiness multiplexer: the
// event loop an LSP server's main goroutine drives to turn "stdin is
// readable" and "nothing happened for a while" into callbacks, without
// spawning a goroutine per connection.
package reactor

import (
	"errors"
	"sort"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRegistered is returned by OnReadable when fd is already
// registered.
var ErrAlreadyRegistered = errors.New("reactor: fd already registered")

// ReadableFunc handles a readable fd. Returning false deregisters it.
type ReadableFunc func(fd int) bool

// IdleFunc runs when a cycle's wait timed out with nothing ready.
// Returning false removes it.
type IdleFunc func() bool

// Stats is a snapshot of the reactor's bookkeeping counters.
type Stats struct {
	RegisteredFDs int
	IdleCallbacks int
	IdlePanics    int64
}

// Reactor is single-threaded: no callback it invokes ever runs concurrently
// with another, so it carries no internal locking. Callers must only drive
// it from one goroutine.
type Reactor struct {
	readable map[int]ReadableFunc
	idle     []IdleFunc

	idlePanics int64
}

// New returns an empty Reactor.
func New() *Reactor {
	return &Reactor{readable: make(map[int]ReadableFunc)}
}

// OnReadable registers cb to run whenever fd becomes readable. It fails
// with ErrAlreadyRegistered if fd is already registered.
func (r *Reactor) OnReadable(fd int, cb ReadableFunc) error {
	if _, ok := r.readable[fd]; ok {
		return ErrAlreadyRegistered
	}
	r.readable[fd] = cb
	return nil
}

// OnIdle appends cb to the list run whenever a cycle's wait times out with
// nothing ready.
func (r *Reactor) OnIdle(cb IdleFunc) {
	r.idle = append(r.idle, cb)
}

// RemoveReadable deregisters fd if present. Unlike returning false from a
// ReadableFunc, this lets an idle callback (or any other code holding the
// Reactor) force a fd out of the watch set, e.g. to honor a shutdown
// request that arrived while the stream was otherwise quiescent.
func (r *Reactor) RemoveReadable(fd int) {
	delete(r.readable, fd)
}

// Stats returns the reactor's current bookkeeping counters.
func (r *Reactor) Stats() Stats {
	return Stats{
		RegisteredFDs: len(r.readable),
		IdleCallbacks: len(r.idle),
		IdlePanics:    r.idlePanics,
	}
}

// Run drives SingleCycle, using timeoutMs as the wait timeout for every
// cycle, until no fds remain registered or a cycle reports termination.
func (r *Reactor) Run(timeoutMs int) {
	for {
		if len(r.readable) == 0 {
			return
		}
		if r.SingleCycle(timeoutMs) {
			return
		}
	}
}

// SingleCycle waits up to timeoutMs for a registered fd to become
// readable. It returns true only when the underlying wait failed; a clean
// timeout with no fd ready runs the idle callbacks and returns false.
func (r *Reactor) SingleCycle(timeoutMs int) bool {
	fds := r.sortedFDs()
	if len(fds) == 0 {
		r.runIdle()
		return false
	}

	pollFds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pollFds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	n, err := unix.Poll(pollFds, timeoutMs)
	if err != nil {
		return true
	}
	if n == 0 {
		r.runIdle()
		return false
	}

	for i, pfd := range pollFds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}
		fd := fds[i]
		cb, ok := r.readable[fd]
		if !ok {
			continue // deregistered by an earlier callback this cycle
		}
		if !cb(fd) {
			delete(r.readable, fd)
		}
	}
	return false
}

func (r *Reactor) sortedFDs() []int {
	fds := make([]int, 0, len(r.readable))
	for fd := range r.readable {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	return fds
}

// runIdle invokes a snapshot of the idle callbacks in insertion order,
// dropping any that return false. Callbacks registered during the run take
// effect starting the next cycle, never the current one.
func (r *Reactor) runIdle() {
	snapshot := r.idle
	kept := make([]IdleFunc, 0, len(snapshot))
	for _, cb := range snapshot {
		if r.callIdle(cb) {
			kept = append(kept, cb)
		}
	}
	if len(r.idle) > len(snapshot) {
		kept = append(kept, r.idle[len(snapshot):]...)
	}
	r.idle = kept
}

// callIdle recovers a panicking idle callback, counting it rather than
// letting it take down the whole reactor loop. A panic is treated as if
// the callback had returned true: one broken idle consumer stays
// registered rather than silently disappearing, since the panic itself is
// already visible via Stats().IdlePanics.
func (r *Reactor) callIdle(cb IdleFunc) (keep bool) {
	defer func() {
		if p := recover(); p != nil {
			r.idlePanics++
			keep = true
		}
	}()
	return cb()
}
