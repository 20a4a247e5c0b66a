/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2020 WireGuard LLC. All Rights Reserved.
 */

package transport

import "time"

/* Specification constants */

const (
	// ResendTime is the initial retransmission delay for a reliable packet.
	ResendTime = 200 * time.Millisecond

	// RetryResendTime is the delay between retries after the first.
	RetryResendTime = 500 * time.Millisecond

	// MaxSendRetries is the number of retries before a peer is considered
	// unreachable.
	MaxSendRetries = 20

	// MaxRecvBufferSize bounds the per-peer reorder buffer.
	MaxRecvBufferSize = 30
)

/* Implementation constants */

const (
	// NoID is the sentinel meaning "no id assigned".
	NoID int64 = -1 << 63

	// NoKey is the sentinel meaning "no key assigned".
	NoKey int16 = -1 << 15

	// MaxPeers bounds the number of peers a single host will track.
	MaxPeers = 1 << 16

	// DefaultTickInterval is the cadence the reference host drives
	// tick_resends and liveness eviction at.
	DefaultTickInterval = 10 * time.Millisecond

	// DefaultLivenessWindow is how long a peer may go without an accepted
	// inbound packet before the host evicts it.
	DefaultLivenessWindow = 15 * time.Second
)
