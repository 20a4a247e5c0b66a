/* SPDX-License-Identifier: MIT
 *
 * Packets need a concrete wire frame for their reliability/ordering
 * metadata (kind, sequence, peer id/key) to cross the Bind. encoding/binary
 * is used directly rather than reaching for a general-purpose serializer
 * like protobuf, which would add a schema/codegen step for a header this
 * small and fixed.
 */

package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/pvct/transport/audiofec"
)

// wire layout, big-endian:
//
//	byte 0       kind
//	byte 1       flags (bit 0 = reliable, bit 1 = fec shard)
//	bytes 2-5    sequence
//	bytes 6-9    ack_sequence
//	bytes 10-17  peer_id
//	bytes 18-19  peer_key
//	bytes 20-23  retries
//	bytes 24..36 fec metadata, present only when the fec flag is set:
//	               group_id(4) shard_index(2) data_shards(2) total_shards(2)
//	               algo(1) symbol_size(2)
//	bytes 24.. or 37..  payload
const headerSize = 24
const fecMetaSize = 13

const (
	flagReliable = 1 << 0
	flagFEC      = 1 << 1
)

// BinaryCodec implements Codec with a fixed-size header in front of the
// opaque payload.
type BinaryCodec struct{}

var _ Codec = BinaryCodec{}

func (BinaryCodec) Encode(pkt *Packet) ([]byte, error) {
	extra := 0
	if pkt.FEC != nil {
		extra = fecMetaSize
	}
	out := make([]byte, headerSize+extra+len(pkt.Payload))
	out[0] = byte(pkt.Kind)
	if pkt.Reliable {
		out[1] |= flagReliable
	}
	binary.BigEndian.PutUint32(out[2:6], pkt.Sequence)
	binary.BigEndian.PutUint32(out[6:10], pkt.AckSequence)
	binary.BigEndian.PutUint64(out[10:18], uint64(pkt.PeerID))
	binary.BigEndian.PutUint16(out[18:20], uint16(pkt.PeerKey))
	binary.BigEndian.PutUint32(out[20:24], pkt.Retries)

	payloadStart := headerSize
	if pkt.FEC != nil {
		out[1] |= flagFEC
		meta := out[headerSize : headerSize+fecMetaSize]
		binary.BigEndian.PutUint32(meta[0:4], pkt.FEC.GroupID)
		binary.BigEndian.PutUint16(meta[4:6], pkt.FEC.ShardIndex)
		binary.BigEndian.PutUint16(meta[6:8], pkt.FEC.DataShards)
		binary.BigEndian.PutUint16(meta[8:10], pkt.FEC.TotalShards)
		meta[10] = byte(pkt.FEC.Algo)
		binary.BigEndian.PutUint16(meta[11:13], pkt.FEC.SymbolSize)
		payloadStart = headerSize + fecMetaSize
	}
	copy(out[payloadStart:], pkt.Payload)
	return out, nil
}

func (BinaryCodec) Decode(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("transport: datagram too short (%d bytes, want at least %d)", len(data), headerSize)
	}
	pkt := &Packet{
		Kind:        Kind(data[0]),
		Reliable:    data[1]&flagReliable != 0,
		Sequence:    binary.BigEndian.Uint32(data[2:6]),
		AckSequence: binary.BigEndian.Uint32(data[6:10]),
		PeerID:      int64(binary.BigEndian.Uint64(data[10:18])),
		PeerKey:     int16(binary.BigEndian.Uint16(data[18:20])),
		Retries:     binary.BigEndian.Uint32(data[20:24]),
	}

	payloadStart := headerSize
	if data[1]&flagFEC != 0 {
		if len(data) < headerSize+fecMetaSize {
			return nil, fmt.Errorf("transport: fec datagram too short (%d bytes, want at least %d)", len(data), headerSize+fecMetaSize)
		}
		meta := data[headerSize : headerSize+fecMetaSize]
		pkt.FEC = &FECMeta{
			GroupID:     binary.BigEndian.Uint32(meta[0:4]),
			ShardIndex:  binary.BigEndian.Uint16(meta[4:6]),
			DataShards:  binary.BigEndian.Uint16(meta[6:8]),
			TotalShards: binary.BigEndian.Uint16(meta[8:10]),
			Algo:        audiofec.FECAlgorithmType(meta[10]),
			SymbolSize:  binary.BigEndian.Uint16(meta[11:13]),
		}
		payloadStart = headerSize + fecMetaSize
	}
	if len(data) > payloadStart {
		pkt.Payload = append([]byte(nil), data[payloadStart:]...)
	}
	return pkt, nil
}
