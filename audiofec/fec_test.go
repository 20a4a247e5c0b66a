package audiofec

import (
	"bytes"
	"testing"
)

func samplePackets(n, size int) []Packet {
	out := make([]Packet, n)
	for i := range out {
		p := make(Packet, size)
		for j := range p {
			p[j] = byte((i*7 + j*3) % 256)
		}
		out[i] = p
	}
	return out
}

func TestXORRecoversSingleLoss(t *testing.T) {
	prot, err := NewXORProtector(4)
	if err != nil {
		t.Fatal(err)
	}
	src := samplePackets(4, 32)
	encoded, err := prot.Encode(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(encoded) != 5 {
		t.Fatalf("expected 5 shards, got %d", len(encoded))
	}

	received := append([]Packet(nil), encoded...)
	received[2] = nil

	decoded, err := prot.Decode(received)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if !bytes.Equal(decoded[i], src[i]) {
			t.Fatalf("shard %d mismatch: got %x want %x", i, decoded[i], src[i])
		}
	}
}

func TestXORCannotRecoverTwoLosses(t *testing.T) {
	prot, _ := NewXORProtector(4)
	src := samplePackets(4, 16)
	encoded, _ := prot.Encode(src)
	encoded[0] = nil
	encoded[1] = nil
	if _, err := prot.Decode(encoded); err == nil {
		t.Fatal("expected an error recovering two losses from one parity shard")
	}
}

func TestReedSolomonRecoversWithinParityBudget(t *testing.T) {
	prot, err := NewReedSolomonProtector(6, 3)
	if err != nil {
		t.Fatal(err)
	}
	src := samplePackets(6, 64)
	encoded, err := prot.Encode(src)
	if err != nil {
		t.Fatal(err)
	}

	received := append([]Packet(nil), encoded...)
	received[0] = nil
	received[2] = nil
	received[5] = nil

	decoded, err := prot.Decode(received)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if !bytes.Equal(decoded[i], src[i]) {
			t.Fatalf("shard %d mismatch", i)
		}
	}
}

func TestReedSolomonFailsBeyondParityBudget(t *testing.T) {
	prot, _ := NewReedSolomonProtector(4, 2)
	src := samplePackets(4, 16)
	encoded, _ := prot.Encode(src)
	encoded[0] = nil
	encoded[1] = nil
	encoded[2] = nil
	if _, err := prot.Decode(encoded); err == nil {
		t.Fatal("expected an error exceeding the parity budget")
	}
}

func TestRaptorQRecoversFromRepairSymbols(t *testing.T) {
	prot, err := NewRaptorQProtector(4, 32)
	if err != nil {
		t.Fatal(err)
	}
	src := samplePackets(4, 32)
	encoded, err := prot.Encode(src)
	if err != nil {
		t.Fatal(err)
	}

	received := append([]Packet(nil), encoded...)
	received[0] = nil
	received[1] = nil

	decoded, err := prot.Decode(received)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if !bytes.Equal(decoded[i], src[i]) {
			t.Fatalf("shard %d mismatch", i)
		}
	}
}

func TestProtectorAccessorsMatchEncodeOutput(t *testing.T) {
	cases := []struct {
		name string
		prot Protector
		algo FECAlgorithmType
	}{
		{"xor", mustProtector(t)(NewXORProtector(4)), XOR},
		{"reed-solomon", mustProtector(t)(NewReedSolomonProtector(6, 3)), ReedSolomon},
		{"raptorq", mustProtector(t)(NewRaptorQProtector(4, 32)), RaptorQ},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.prot.Algorithm() != c.algo {
				t.Fatalf("Algorithm() = %v, want %v", c.prot.Algorithm(), c.algo)
			}
			src := samplePackets(c.prot.NumDataShards(), 32)
			encoded, err := c.prot.Encode(src)
			if err != nil {
				t.Fatal(err)
			}
			if len(encoded) != c.prot.TotalShards() {
				t.Fatalf("Encode produced %d shards, TotalShards() claims %d", len(encoded), c.prot.TotalShards())
			}
			if c.prot.NumDataShards()+c.prot.NumParityShards() > c.prot.TotalShards() && c.prot.NumParityShards() > 0 {
				t.Fatalf("NumDataShards()+NumParityShards() = %d exceeds TotalShards() = %d",
					c.prot.NumDataShards()+c.prot.NumParityShards(), c.prot.TotalShards())
			}
		})
	}
}

func mustProtector(t *testing.T) func(Protector, error) Protector {
	return func(prot Protector, err error) Protector {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return prot
	}
}

func TestSelectAlgorithmTiers(t *testing.T) {
	cases := []struct {
		lossRate float64
		want     FECAlgorithmType
	}{
		{0, None},
		{0.005, None},
		{0.02, XOR},
		{0.10, ReedSolomon},
		{0.5, RaptorQ},
	}
	for _, c := range cases {
		if got := SelectAlgorithm(c.lossRate); got != c.want {
			t.Errorf("SelectAlgorithm(%v) = %v, want %v", c.lossRate, got, c.want)
		}
	}
}
