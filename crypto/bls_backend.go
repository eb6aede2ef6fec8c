package crypto

// BLS signature backend selection.
//
// Consensus-layer-adjacent code (deposit and withdrawal request validation)
// verifies BLS signatures under the Ethereum MinPk scheme: public keys in G1
// (48-byte compressed), signatures in G2 (96-byte compressed). The default
// backend runs on gnark-crypto's pairing; builds with -tags blst swap in the
// supranational/blst adapter via SetBLSBackend.

import (
	"encoding/hex"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
)

// BLSSignatureDST is the domain separation tag for Ethereum BLS signatures
// under the proof-of-possession scheme.
var BLSSignatureDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// BLSSubgroupOrder is the order r of the BLS12-381 G1/G2 subgroups, also
// known as BLS_MODULUS in KZG contexts.
var BLSSubgroupOrder = new(big.Int).Set(blsR)

// BLSG1GeneratorCompressed is the 48-byte compressed encoding of the
// BLS12-381 G1 generator.
var BLSG1GeneratorCompressed = mustDecodeHex48(
	"97f1d3a73197d7942695638c4fa9ac0fc3688c4f9774b905a14e3a3f171bac586c55e83ff97a1aeffb3af00adb22c6bb")

// BLSG2GeneratorCompressed is the 96-byte compressed encoding of the
// BLS12-381 G2 generator.
var BLSG2GeneratorCompressed = mustDecodeHex96(
	"93e02b6052719f607dacd3a088274f65596bd0d09920b61ab5da61bbdc7f5049334cf11213945d57e5ac7d055d042b7e" +
		"024aa2b2f08f0a91260805272dc51051c6e47ad4fa403b02b4510b647ae3d1770bac0326a805bbefd48056c8c121bdb8")

// BLSPointAtInfinityG1 is the compressed G1 point at infinity.
var BLSPointAtInfinityG1 = func() [48]byte {
	var b [48]byte
	b[0] = 0xc0
	return b
}()

// BLSPointAtInfinityG2 is the compressed G2 point at infinity.
var BLSPointAtInfinityG2 = func() [96]byte {
	var b [96]byte
	b[0] = 0xc0
	return b
}()

// BLSBackend verifies BLS12-381 signatures under the MinPk scheme.
type BLSBackend interface {
	// Verify checks a single signature: 48-byte compressed G1 pubkey,
	// arbitrary message, 96-byte compressed G2 signature.
	Verify(pubkey, msg, sig []byte) bool

	// AggregateVerify checks an aggregate signature where pubkeys[i]
	// signed msgs[i].
	AggregateVerify(pubkeys, msgs [][]byte, sig []byte) bool

	// FastAggregateVerify checks an aggregate signature where every
	// signer signed the same message.
	FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool

	// Name identifies the backend.
	Name() string
}

var (
	activeBLSMu      sync.RWMutex
	activeBLSBackend BLSBackend = &GnarkBLSBackend{}
)

// DefaultBLSBackend returns the currently active BLS backend.
func DefaultBLSBackend() BLSBackend {
	activeBLSMu.RLock()
	defer activeBLSMu.RUnlock()
	return activeBLSBackend
}

// SetBLSBackend swaps the active backend. Passing nil resets to the
// gnark-crypto default.
func SetBLSBackend(b BLSBackend) {
	activeBLSMu.Lock()
	defer activeBLSMu.Unlock()
	if b == nil {
		b = &GnarkBLSBackend{}
	}
	activeBLSBackend = b
}

// BLSVerifyWithBackend verifies a single signature through the given
// backend, falling back to the active one when backend is nil.
func BLSVerifyWithBackend(backend BLSBackend, pubkey, msg, sig []byte) bool {
	if backend == nil {
		backend = DefaultBLSBackend()
	}
	return backend.Verify(pubkey, msg, sig)
}

// GnarkBLSBackend verifies signatures with gnark-crypto's pairing. It is
// pure Go and needs no external parameter material, which makes it the
// default; the blst adapter (build tag "blst") is the CGO alternative.
type GnarkBLSBackend struct{}

func (b *GnarkBLSBackend) Name() string { return "gnark" }

func (b *GnarkBLSBackend) Verify(pubkey, msg, sig []byte) bool {
	pk, ok := blsDecodePubkey(pubkey)
	if !ok {
		return false
	}
	s, ok := blsDecodeSignature(sig)
	if !ok {
		return false
	}
	h, err := bls12381.HashToG2(msg, BLSSignatureDST)
	if err != nil {
		return false
	}

	// e(pk, H(msg)) * e(-G1, sig) == 1
	_, _, g1, _ := bls12381.Generators()
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1)
	res, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{pk, negG1},
		[]bls12381.G2Affine{h, s},
	)
	return err == nil && res
}

func (b *GnarkBLSBackend) AggregateVerify(pubkeys, msgs [][]byte, sig []byte) bool {
	if len(pubkeys) == 0 || len(pubkeys) != len(msgs) {
		return false
	}
	s, ok := blsDecodeSignature(sig)
	if !ok {
		return false
	}

	ps := make([]bls12381.G1Affine, 0, len(pubkeys)+1)
	qs := make([]bls12381.G2Affine, 0, len(pubkeys)+1)
	for i, pkBytes := range pubkeys {
		pk, ok := blsDecodePubkey(pkBytes)
		if !ok {
			return false
		}
		h, err := bls12381.HashToG2(msgs[i], BLSSignatureDST)
		if err != nil {
			return false
		}
		ps = append(ps, pk)
		qs = append(qs, h)
	}

	_, _, g1, _ := bls12381.Generators()
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1)
	ps = append(ps, negG1)
	qs = append(qs, s)

	res, err := bls12381.PairingCheck(ps, qs)
	return err == nil && res
}

func (b *GnarkBLSBackend) FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool {
	if len(pubkeys) == 0 {
		return false
	}
	var agg bls12381.G1Affine
	for i, pkBytes := range pubkeys {
		pk, ok := blsDecodePubkey(pkBytes)
		if !ok {
			return false
		}
		if i == 0 {
			agg = pk
		} else {
			agg.Add(&agg, &pk)
		}
	}
	aggBytes := agg.Bytes()
	return b.Verify(aggBytes[:], msg, sig)
}

// blsDecodePubkey parses a 48-byte compressed G1 pubkey, rejecting the
// point at infinity per the consensus spec.
func blsDecodePubkey(pubkey []byte) (bls12381.G1Affine, bool) {
	var pk bls12381.G1Affine
	if len(pubkey) != 48 {
		return pk, false
	}
	if _, err := pk.SetBytes(pubkey); err != nil {
		return pk, false
	}
	if pk.IsInfinity() {
		return pk, false
	}
	return pk, true
}

// blsDecodeSignature parses a 96-byte compressed G2 signature.
func blsDecodeSignature(sig []byte) (bls12381.G2Affine, bool) {
	var s bls12381.G2Affine
	if len(sig) != 96 {
		return s, false
	}
	if _, err := s.SetBytes(sig); err != nil {
		return s, false
	}
	return s, true
}

func mustDecodeHex48(s string) [48]byte {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 48 {
		panic("bls: bad 48-byte hex constant")
	}
	var out [48]byte
	copy(out[:], b)
	return out
}

func mustDecodeHex96(s string) [96]byte {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 96 {
		panic("bls: bad 96-byte hex constant")
	}
	var out [96]byte
	copy(out[:], b)
	return out
}
