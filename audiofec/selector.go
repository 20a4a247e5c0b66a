package audiofec

// Loss-rate thresholds that pick a protection tier for a peer's unreliable
// media stream, carried over from this fork's device/constants.go, which
// held loss-rate thresholds for the same purpose.
const (
	NoFECMaxLossRate     = 0.01
	XORFECMaxLossRate    = 0.05
	RSFECMinLossRate     = 0.05
	RSFECMaxLossRate     = 0.20
	RaptorFECMinLossRate = 0.20
)

// SelectAlgorithm picks a protection tier for a measured loss rate in
// [0,1]: below NoFECMaxLossRate, skip FEC entirely; a single lost packet in
// a group is cheap to recover with XOR; heavier loss needs Reed-Solomon's
// configurable redundancy; sustained heavy loss is cheaper to cover with
// RaptorQ's unbounded repair-symbol stream than an ever-larger RS parity
// count.
func SelectAlgorithm(lossRate float64) FECAlgorithmType {
	switch {
	case lossRate <= NoFECMaxLossRate:
		return None
	case lossRate <= XORFECMaxLossRate:
		return XOR
	case lossRate <= RSFECMaxLossRate:
		return ReedSolomon
	default:
		return RaptorQ
	}
}
