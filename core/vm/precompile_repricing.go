package vm

// Glamsterdam precompile repricing (EIP-7904). The fork re-anchors
// precompile prices to measured execution cost; the four contracts below
// get repriced variants, registered by the Glamsterdam precompile map in
// place of the base versions. Run semantics are unchanged; the constants
// live with the other Glamsterdam gas prices in gas.go.

import "encoding/binary"

// bn256AddGlamsterdan is bn256Add with Glamsterdam pricing.
type bn256AddGlamsterdan struct{ bn256Add }

func (c *bn256AddGlamsterdan) RequiredGas(input []byte) uint64 {
	return GasECADDGlamsterdan
}

// bn256PairingGlamsterdan is bn256Pairing with Glamsterdam pricing.
type bn256PairingGlamsterdan struct{ bn256Pairing }

func (c *bn256PairingGlamsterdan) RequiredGas(input []byte) uint64 {
	k := uint64(len(input)) / 192
	return GasECPairingConstGlamsterdan + GasECPairingPerPairGlamsterdan*k
}

// blake2FGlamsterdan is blake2F with a flat base cost plus a per-round
// charge.
type blake2FGlamsterdan struct{ blake2F }

func (c *blake2FGlamsterdan) RequiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return GasBlake2fConstGlamsterdan
	}
	rounds := uint64(binary.BigEndian.Uint32(input[:4]))
	return GasBlake2fConstGlamsterdan + GasBlake2fPerRoundGlamsterdan*rounds
}

// kzgPointEvaluationGlamsterdan is kzgPointEvaluation with Glamsterdam
// pricing.
type kzgPointEvaluationGlamsterdan struct{ kzgPointEvaluation }

func (c *kzgPointEvaluationGlamsterdan) RequiredGas(input []byte) uint64 {
	return GasPointEvalGlamsterdan
}
