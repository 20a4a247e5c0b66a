/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's ratelimiter/ratelimiter.go: same per-source
 * table and garbage collector shape, but each entry is a
 * golang.org/x/time/rate token bucket instead of a hand-rolled nanosecond
 * counter.
 */

package ratelimiter

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	loginsPerSecond    = 5
	loginsBurstable    = 10
	garbageCollectTime = 10 * time.Second
)

// Limiter throttles Login attempts per source IP, so a host does not spend
// a Peer allocation (and a NewPeer id/key generation) on every packet from
// a flooding or misbehaving source.
type Limiter struct {
	mu    sync.Mutex
	table map[string]*entry
	stop  chan struct{}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter and starts its garbage-collection goroutine. Call
// Close to stop it.
func New() *Limiter {
	l := &Limiter{
		table: make(map[string]*entry),
		stop:  make(chan struct{}),
	}
	go l.collectGarbage()
	return l
}

func (l *Limiter) collectGarbage() {
	ticker := time.NewTicker(garbageCollectTime)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, e := range l.table {
				if time.Since(e.lastSeen) > garbageCollectTime {
					delete(l.table, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Allow reports whether a Login attempt from ip should be admitted.
func (l *Limiter) Allow(ip net.IP) bool {
	key := ip.String()

	l.mu.Lock()
	e, ok := l.table[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(loginsPerSecond), loginsBurstable)}
		l.table[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Close stops the garbage-collection goroutine.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}
