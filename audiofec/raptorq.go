/* SPDX-License-Identifier: MIT
 *
 * Adapted from this fork's fec/raptorq.go, against audiofec's own Protector
 * interface (fec.go). RaptorQ is a fountain code: Decode here assumes the
 * caller hands back shards indexed by encoding symbol ID (received[i] is
 * the symbol with ESI i, nil where unreceived), which is what Encode
 * produces positionally. A real deployment that reorders or drops symbols
 * out of band needs the sender to carry each symbol's ESI explicitly;
 * that's future work, not something this group-of-Packets interface can
 * express today.
 */

package audiofec

import (
	"errors"
	"fmt"

	"github.com/xssnick/raptorq"
)

type rqProtector struct {
	rq               raptorq.RaptorQ
	numSourceSymbols uint
	symbolSize       uint16
}

// NewRaptorQProtector protects numSourcePackets source packets, each
// padded/chunked to symbolSize bytes.
func NewRaptorQProtector(numSourcePackets int, symbolSize uint16) (Protector, error) {
	if numSourcePackets <= 0 {
		return nil, errors.New("audiofec: RaptorQ numSourcePackets must be positive")
	}
	if symbolSize == 0 {
		return nil, errors.New("audiofec: RaptorQ symbolSize must be positive")
	}
	return &rqProtector{
		rq:               raptorq.NewRaptorQ(symbolSize),
		numSourceSymbols: uint(numSourcePackets),
		symbolSize:       symbolSize,
	}, nil
}

func (r *rqProtector) Algorithm() FECAlgorithmType { return RaptorQ }
func (r *rqProtector) NumDataShards() int          { return int(r.numSourceSymbols) }
func (r *rqProtector) NumParityShards() int        { return 0 } // variable for a fountain code
func (r *rqProtector) TotalShards() int            { return 2 * int(r.numSourceSymbols) } // Encode emits K source + K repair symbols

// Encode returns K source symbols followed by K repair symbols.
func (r *rqProtector) Encode(sourcePackets []Packet) ([]Packet, error) {
	if len(sourcePackets) != int(r.numSourceSymbols) {
		return nil, fmt.Errorf("audiofec: RaptorQ encode wants %d source packets, got %d", r.numSourceSymbols, len(sourcePackets))
	}

	payload := make([]byte, 0, int(r.numSourceSymbols)*int(r.symbolSize))
	for i, p := range sourcePackets {
		if p == nil {
			return nil, fmt.Errorf("audiofec: RaptorQ encode got a nil source packet at %d", i)
		}
		if len(p) > int(r.symbolSize) {
			return nil, fmt.Errorf("audiofec: RaptorQ source packet %d length %d exceeds symbol size %d", i, len(p), r.symbolSize)
		}
		padded := make([]byte, r.symbolSize)
		copy(padded, p)
		payload = append(payload, padded...)
	}

	enc, err := r.rq.CreateEncoder(payload)
	if err != nil {
		return nil, fmt.Errorf("audiofec: building RaptorQ encoder: %w", err)
	}

	repairSymbols := r.numSourceSymbols
	out := make([]Packet, 0, int(r.numSourceSymbols)+int(repairSymbols))
	for i := uint32(0); i < uint32(r.numSourceSymbols); i++ {
		out = append(out, Packet(enc.GenSymbol(i)))
	}
	for i := uint32(0); i < uint32(repairSymbols); i++ {
		out = append(out, Packet(enc.GenSymbol(uint32(r.numSourceSymbols)+i)))
	}
	return out, nil
}

// Decode takes received, indexed by encoding symbol ID with nil for any
// unreceived symbol, and tries to recover the K source packets.
func (r *rqProtector) Decode(received []Packet) ([]Packet, error) {
	payloadLen := uint64(r.numSourceSymbols) * uint64(r.symbolSize)
	dec, err := r.rq.CreateDecoder(payloadLen)
	if err != nil {
		return nil, fmt.Errorf("audiofec: building RaptorQ decoder: %w", err)
	}

	added := 0
	for esi, symbol := range received {
		if symbol == nil {
			continue
		}
		canTry, err := dec.AddSymbol(uint32(esi), symbol)
		if err != nil {
			continue
		}
		added++
		if !canTry {
			continue
		}
		success, result, err := dec.Decode()
		if err != nil {
			return nil, fmt.Errorf("audiofec: RaptorQ decode attempt failed: %w", err)
		}
		if !success {
			continue
		}
		out := make([]Packet, r.numSourceSymbols)
		for j := 0; j < int(r.numSourceSymbols); j++ {
			start := j * int(r.symbolSize)
			end := start + int(r.symbolSize)
			if end > len(result) {
				return nil, fmt.Errorf("audiofec: RaptorQ reconstructed payload too short for source packet %d", j)
			}
			out[j] = Packet(result[start:end])
		}
		return out, nil
	}
	return nil, fmt.Errorf("audiofec: RaptorQ failed to decode with %d provided symbols (%d accepted)", len(received), added)
}
