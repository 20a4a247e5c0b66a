package transport

import (
	"time"

	"github.com/pvct/transport/audiofec"
)

// Kind distinguishes handshake packets the Peer's listener translates into
// lifecycle calls from ordinary application packets, which this layer never
// interprets.
type Kind uint8

const (
	// KindData is an ordinary application packet: reliable or unreliable,
	// opaque payload.
	KindData Kind = iota

	// KindLogin is sent by a would-be peer to an unknown endpoint to begin
	// the handshake.
	KindLogin

	// KindAccept is sent by a peer once it transitions to connected,
	// carrying its id and key.
	KindAccept

	// KindDeny is sent (or synthesized by the host) to refuse a handshake.
	KindDeny

	// KindAck acknowledges a single reliable sequence number.
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "Login"
	case KindAccept:
		return "Accept"
	case KindDeny:
		return "Deny"
	case KindAck:
		return "Ack"
	default:
		return "Data"
	}
}

// Packet is opaque to this layer except for the fields below. Encoding,
// payload interpretation, and everything else belongs to the caller's codec.
type Packet struct {
	Kind Kind

	// Sequence is assigned by the sender at enqueue time, only for
	// reliable packets.
	Sequence uint32

	// Reliable marks a packet that must be acknowledged and, until it is,
	// retransmitted on a schedule.
	Reliable bool

	// Retries counts resends; incremented by tick_resends.
	Retries uint32

	// ResendDeadline is the monotonic instant after which a reliable
	// packet becomes eligible for retransmission again.
	ResendDeadline time.Time

	// PeerID and PeerKey are populated by Accept/Ack/Login packets that
	// need to carry a peer's identity; AckSequence is the sequence an Ack
	// packet refers to. These are the only fields this layer reads out of
	// an otherwise opaque Payload.
	PeerID      int64
	PeerKey     int16
	AckSequence uint32

	// Payload is never interpreted here, except that a non-nil FEC marks
	// it as one shard of a forward-error-corrected group (see
	// Peer.EnqueueMediaGroup): FEC reconstruction consumes the shard
	// before anything reaches Ingest's caller, so Payload is still opaque
	// by the time application code sees it.
	Payload []byte
	FEC     *FECMeta
}

// FECMeta identifies a packet's place in a forward-error-corrected group
// of unreliable media shards. Only present on packets audiofec produced.
type FECMeta struct {
	GroupID     uint32
	ShardIndex  uint16
	DataShards  uint16
	TotalShards uint16
	Algo        audiofec.FECAlgorithmType

	// SymbolSize is the per-symbol size RaptorQ was built with; unused by
	// XOR and Reed-Solomon, which size shards from the payload itself.
	SymbolSize uint16
}

// Clone returns a shallow copy suitable for re-enqueuing: TickResends
// pushes a clone of each resent packet onto the send queue, so a later
// retry's updates to the reliability-queue entry never touch a copy the
// egress loop may still be encoding.
func (p *Packet) Clone() *Packet {
	c := *p
	return &c
}
