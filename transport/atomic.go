package transport

import "sync/atomic"

// AtomicBool is a lock-free flag, used wherever a field is read from one
// goroutine (ingress, egress, tick) and written from another without
// justifying a full mutex.
type AtomicBool struct {
	v atomic.Bool
}

func (a *AtomicBool) Get() bool {
	return a.v.Load()
}

func (a *AtomicBool) Set(val bool) {
	a.v.Store(val)
}

// Swap stores val and reports the flag's previous value.
func (a *AtomicBool) Swap(val bool) bool {
	return a.v.Swap(val)
}
