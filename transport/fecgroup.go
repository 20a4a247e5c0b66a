/* SPDX-License-Identifier: MIT
 *
 * Shard reassembly has no analogue in the teacher, so this follows
 * reorder.go's shape (a small mutex-guarded map) rather than inventing a
 * new concurrency pattern.
 */

package transport

import (
	"fmt"
	"sync"

	"github.com/pvct/transport/audiofec"
)

// fecAssembly collects shards for one in-flight group until enough have
// arrived to attempt reconstruction.
type fecAssembly struct {
	algo       audiofec.FECAlgorithmType
	dataShards int
	symbolSize uint16
	shards     []audiofec.Packet
	received   int
}

// fecReassembler holds at most a handful of in-flight groups per peer. A
// steady media stream produces a new group every few frames; nothing here
// needs to outlive the next one or two.
type fecReassembler struct {
	mu   sync.Mutex
	byID map[uint32]*fecAssembly
}

const maxInFlightFECGroups = 4

func newFECReassembler() *fecReassembler {
	return &fecReassembler{byID: make(map[uint32]*fecAssembly)}
}

// Accept buffers pkt's shard and, once its group holds at least
// DataShards shards, attempts reconstruction. It returns the recovered
// source frames on success, (nil, nil) while still waiting on more
// shards, and an error if reconstruction was attempted and failed (too
// many shards missing for the group's algorithm).
func (r *fecReassembler) Accept(pkt *Packet) ([][]byte, error) {
	meta := pkt.FEC
	if meta == nil {
		return nil, fmt.Errorf("transport: fec reassembly called on a packet with no FECMeta")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[meta.GroupID]
	if !ok {
		a = &fecAssembly{
			algo:       meta.Algo,
			dataShards: int(meta.DataShards),
			symbolSize: meta.SymbolSize,
			shards:     make([]audiofec.Packet, meta.TotalShards),
		}
		r.byID[meta.GroupID] = a
		if len(r.byID) > maxInFlightFECGroups {
			for id := range r.byID {
				if id != meta.GroupID {
					delete(r.byID, id)
					break
				}
			}
		}
	}

	if int(meta.ShardIndex) < len(a.shards) && a.shards[meta.ShardIndex] == nil {
		a.shards[meta.ShardIndex] = audiofec.Packet(pkt.Payload)
		a.received++
	}

	if a.received < a.dataShards {
		return nil, nil
	}
	delete(r.byID, meta.GroupID)

	protector, err := audiofec.New(a.algo, a.dataShards, a.symbolSize)
	if err != nil {
		return nil, err
	}
	decoded, err := protector.Decode(a.shards)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(decoded))
	for i, p := range decoded {
		out[i] = []byte(p)
	}
	return out, nil
}
