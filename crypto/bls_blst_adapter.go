//go:build blst

// The CGO alternative to the default gnark BLS backend: supranational's
// blst, the library production consensus clients verify with. Same MinPk
// shape (48-byte G1 pubkeys, 96-byte G2 signatures, the POP DST); swap it
// in with SetBLSBackend(&BlstRealBackend{}) under -tags blst.
// Test with:  go test -tags blst ./crypto/ -run Blst
package crypto

import (
	"errors"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

// blstDST mirrors BLSSignatureDST; blst wants its own []byte.
var blstDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// MinPk wire sizes.
const (
	blstPubkeySize = 48
	blstSigSize    = 96
	blstSecretSize = 32
)

var (
	ErrBlstInvalidIKM       = errors.New("blst: IKM must be at least 32 bytes")
	ErrBlstKeyGenFailed     = errors.New("blst: key generation failed")
	ErrBlstInvalidSecretKey = errors.New("blst: invalid secret key bytes")
	ErrBlstSignFailed       = errors.New("blst: signing failed")
	ErrBlstNoSignatures     = errors.New("blst: no signatures to aggregate")
	ErrBlstInvalidSignature = errors.New("blst: invalid signature bytes")
	ErrBlstAggregateFailed  = errors.New("blst: signature aggregation failed")
)

// BlstRealBackend is the blst-backed BLSBackend.
type BlstRealBackend struct{}

func (b *BlstRealBackend) Name() string {
	return "blst-real"
}

// blstPubkeys uncompresses a batch of 48-byte public keys, nil on any
// malformed entry.
func blstPubkeys(pubkeys [][]byte) []*blst.P1Affine {
	pks := make([]*blst.P1Affine, len(pubkeys))
	for i, pkBytes := range pubkeys {
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return nil
		}
	}
	return pks
}

// Verify checks one signature; blst performs the subgroup checks on both
// operands.
func (b *BlstRealBackend) Verify(pubkey, msg, sig []byte) bool {
	if len(pubkey) == 0 || len(sig) == 0 {
		return false
	}
	pk := new(blst.P1Affine).Uncompress(pubkey)
	if pk == nil {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	return s.Verify(true, pk, true, msg, blstDST)
}

// AggregateVerify checks one aggregate where pubkeys[i] signed msgs[i].
func (b *BlstRealBackend) AggregateVerify(pubkeys, msgs [][]byte, sig []byte) bool {
	if len(pubkeys) == 0 || len(pubkeys) != len(msgs) || len(sig) == 0 {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	pks := blstPubkeys(pubkeys)
	if pks == nil {
		return false
	}

	blstMsgs := make([]blst.Message, len(msgs))
	for i, m := range msgs {
		blstMsgs[i] = m
	}
	return s.AggregateVerify(true, pks, true, blstMsgs, blstDST)
}

// FastAggregateVerify checks an aggregate where every signer signed the
// same message (the attestation shape).
func (b *BlstRealBackend) FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool {
	if len(pubkeys) == 0 || len(sig) == 0 {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	pks := blstPubkeys(pubkeys)
	if pks == nil {
		return false
	}
	return s.FastAggregateVerify(true, pks, msg, blstDST)
}

// BlstKeyGen derives a key pair from at least 32 bytes of IKM, returning
// the compressed pubkey and serialized secret key.
func BlstKeyGen(ikm []byte) (pubkey, secretKey []byte, err error) {
	if len(ikm) < 32 {
		return nil, nil, ErrBlstInvalidIKM
	}

	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, nil, ErrBlstKeyGenFailed
	}

	pk := new(blst.P1Affine).From(sk)
	pubkey = pk.Compress()
	secretKey = sk.Serialize()
	return pubkey, secretKey, nil
}

// BlstSign signs msg with a serialized secret key, returning the
// compressed signature.
func BlstSign(secretKey, msg []byte) ([]byte, error) {
	if len(secretKey) != blstSecretSize {
		return nil, ErrBlstInvalidSecretKey
	}

	sk := new(blst.SecretKey).Deserialize(secretKey)
	if sk == nil {
		return nil, ErrBlstInvalidSecretKey
	}

	sig := new(blst.P2Affine).Sign(sk, msg, blstDST)
	if sig == nil {
		return nil, ErrBlstSignFailed
	}

	return sig.Compress(), nil
}

// BlstAggregateSigs folds compressed signatures into one aggregate.
func BlstAggregateSigs(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, ErrBlstNoSignatures
	}

	agg := new(blst.P2Aggregate)
	if !agg.AggregateCompressed(sigs, true) {
		return nil, ErrBlstAggregateFailed
	}

	return agg.ToAffine().Compress(), nil
}

// blstGenKeyPair is the panicking test shorthand for BlstKeyGen.
func blstGenKeyPair(ikm []byte) (pk, sk []byte) {
	pubkey, secretKey, err := BlstKeyGen(ikm)
	if err != nil {
		panic(fmt.Sprintf("blstGenKeyPair: %v", err))
	}
	return pubkey, secretKey
}
