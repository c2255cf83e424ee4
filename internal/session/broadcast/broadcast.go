// Package broadcast carries the process-wide "session invalidated" signal.
//
// Any detector (periodic revalidator, navigation observer, request
// interceptor) may fire it any number of times; the session manager is the
// single consumer. Signals coalesce: however many detectors fire before the
// consumer reacts, at most one reaction follows. A signal fired before the
// consumer attaches is buffered, so late subscription cannot miss a pending
// invalidation.
package broadcast

// Broadcaster is the single named invalidation channel.
// The zero value is not usable; construct with New.
type Broadcaster struct {
	ch chan struct{}
}

// New constructs a Broadcaster with room for one pending signal.
func New() *Broadcaster {
	return &Broadcaster{ch: make(chan struct{}, 1)}
}

// Signal marks the session invalid. It never blocks and is safe to call from
// any goroutine; concurrent and repeated signals coalesce into one.
func (b *Broadcaster) Signal() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// C is the receive side consumed by the session manager.
func (b *Broadcaster) C() <-chan struct{} {
	return b.ch
}
