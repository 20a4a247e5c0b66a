/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's device/stats.go: per-peer counters, widened
 * from byte totals to the reliability-layer counters this transport
 * tracks (packets, retries, last-acked sequence).
 */

package transport

import "sync/atomic"

// Stats is a snapshot of a peer's reliability-layer counters, safe to read
// after the peer that produced it has moved on.
type Stats struct {
	TxPackets     uint64
	RxPackets     uint64
	Retries       uint64
	LastAckedSeen bool
	LastAcked     uint32

	txPackets atomic.Uint64
	rxPackets atomic.Uint64
	retries   atomic.Uint64
	lastAcked atomic.Uint32
	acked     atomic.Bool
}

func (s *Stats) snapshot() Stats {
	return Stats{
		TxPackets:     s.txPackets.Load(),
		RxPackets:     s.rxPackets.Load(),
		Retries:       s.retries.Load(),
		LastAckedSeen: s.acked.Load(),
		LastAcked:     s.lastAcked.Load(),
	}
}

// recordAck records a newly acknowledged sequence.
func (s *Stats) recordAck(seq uint32) {
	s.lastAcked.Store(seq)
	s.acked.Store(true)
}

// LossRate estimates how lossy this peer's link currently is, as the
// number of resends divided by the number of packets enqueued for sending
// (reliable and unreliable alike), capped at 1. There is no direct loss
// signal for unreliable media frames themselves, so audiofec tier
// selection uses this resend ratio as a proxy for the same path's
// conditions.
func (s Stats) LossRate() float64 {
	tx := s.TxPackets
	if tx == 0 {
		return 0
	}
	rate := float64(s.Retries) / float64(tx)
	if rate > 1 {
		rate = 1
	}
	return rate
}
