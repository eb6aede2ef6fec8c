package types

import (
	"errors"
	"math/big"

	"github.com/ethstate/execution-core/rlp"
	"golang.org/x/crypto/sha3"
)

var (
	errInvalidSig         = errors.New("invalid transaction signature")
	errInvalidChainID     = errors.New("invalid chain ID for signer")
	errTxTypeNotSupported = errors.New("transaction type not supported by signer")
	errNoRecovery         = errors.New("public key recovery failed")
)

// secp256k1NCopy is the curve order, used to bound-check signature values.
var secp256k1NCopy, _ = new(big.Int).SetString(
	"fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16,
)

// secp256k1 curve parameters, carried locally so recovery here does not
// import the crypto package (which itself depends on core/types).
var (
	secp256k1P, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)
	secp256k1Gx, _ = new(big.Int).SetString("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", 16)
	secp256k1Gy, _ = new(big.Int).SetString("483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8", 16)
	secp256k1B     = big.NewInt(7)
)

// Signer hashes transactions for signing and recovers their sender.
type Signer interface {
	ChainID() uint64
	Hash(tx *Transaction) Hash
	SignatureValues(sig []byte) (r, s *big.Int, v byte, err error)
	Sender(tx *Transaction) (Address, error)
}

// EIP155Signer signs/recovers legacy, EIP-155 replay-protected transactions
// only; any other transaction type is rejected by Sender.
type EIP155Signer struct {
	chainID    uint64
	chainIDBig *big.Int
}

func NewEIP155Signer(chainID uint64) EIP155Signer {
	return EIP155Signer{chainID: chainID, chainIDBig: new(big.Int).SetUint64(chainID)}
}

func (s EIP155Signer) ChainID() uint64 { return s.chainID }

func (s EIP155Signer) Hash(tx *Transaction) Hash {
	if tx.Type() != LegacyTxType {
		return Hash{}
	}
	return tx.SigningHash()
}

func (s EIP155Signer) SignatureValues(sig []byte) (r, s2 *big.Int, v byte, err error) {
	return decodeRSV(sig)
}

func (s EIP155Signer) Sender(tx *Transaction) (Address, error) {
	if tx.Type() != LegacyTxType {
		return Address{}, errTxTypeNotSupported
	}
	v, r, rs := tx.RawSignatureValues()
	if v == nil || r == nil || rs == nil {
		return Address{}, errInvalidSig
	}

	recovery, err := legacyRecoveryID(v.Uint64(), s.chainID)
	if err != nil {
		return Address{}, err
	}
	return RecoverPlain(tx.SigningHash(), r, rs, recovery)
}

// legacyRecoveryID maps a legacy V value (27/28, or the EIP-155
// chainID*2+35+parity form) to a 0/1 recovery parity.
func legacyRecoveryID(v, chainID uint64) (byte, error) {
	var recovery byte
	switch {
	case v == 27 || v == 28:
		recovery = byte(v - 27)
	default:
		recovery = byte(v - 35 - 2*chainID)
	}
	if recovery > 1 {
		return 0, errInvalidSig
	}
	return recovery, nil
}

// LondonSigner signs/recovers every transaction type this module supports:
// legacy, access-list, dynamic-fee, blob, and set-code.
type LondonSigner struct {
	chainID    uint64
	chainIDBig *big.Int
}

func NewLondonSigner(chainID uint64) LondonSigner {
	return LondonSigner{chainID: chainID, chainIDBig: new(big.Int).SetUint64(chainID)}
}

func (s LondonSigner) ChainID() uint64 { return s.chainID }

func (s LondonSigner) Hash(tx *Transaction) Hash {
	return tx.SigningHash()
}

func (s LondonSigner) SignatureValues(sig []byte) (r, s2 *big.Int, v byte, err error) {
	return decodeRSV(sig)
}

func (s LondonSigner) Sender(tx *Transaction) (Address, error) {
	v, r, rs := tx.RawSignatureValues()
	if r == nil || rs == nil {
		return Address{}, errInvalidSig
	}

	var recovery byte
	switch tx.Type() {
	case LegacyTxType:
		if v == nil {
			return Address{}, errInvalidSig
		}
		rec, err := legacyRecoveryID(v.Uint64(), s.chainID)
		if err != nil {
			return Address{}, err
		}
		recovery = rec

	case AccessListTxType, DynamicFeeTxType, BlobTxType, SetCodeTxType:
		if v != nil {
			recovery = byte(v.Uint64())
		}
		if txChainID := tx.ChainId(); txChainID != nil && txChainID.Uint64() != s.chainID {
			return Address{}, errInvalidChainID
		}

	default:
		return Address{}, errTxTypeNotSupported
	}

	if recovery > 1 {
		return Address{}, errInvalidSig
	}
	return RecoverPlain(tx.SigningHash(), r, rs, recovery)
}

// LatestSigner returns the most feature-complete signer for chainID.
func LatestSigner(chainID uint64) Signer {
	return NewLondonSigner(chainID)
}

// MakeSigner returns the signer appropriate for txType on chainID.
func MakeSigner(chainID uint64, txType uint8) Signer {
	if txType == LegacyTxType {
		return NewEIP155Signer(chainID)
	}
	return NewLondonSigner(chainID)
}

// SigningHash computes the EIP-155 legacy signing hash directly from a
// transaction's fields: keccak256(rlp([nonce, gasPrice, gas, to, value,
// data, chainID, 0, 0])), with the chainID/0/0 suffix omitted pre-EIP-155
// (chainID == 0).
func SigningHash(chainID uint64, nonce uint64, gasPrice *big.Int, to *Address, value *big.Int, gas uint64, data []byte) Hash {
	toBytes := []byte{}
	if to != nil {
		toBytes = to[:]
	}

	var fields [][]byte
	put := func(v interface{}) {
		b, _ := rlp.EncodeToBytes(v)
		fields = append(fields, b)
	}

	put(nonce)
	put(valueOrZero(gasPrice))
	put(gas)
	put(toBytes)
	put(valueOrZero(value))
	put(data)

	if chainBig := new(big.Int).SetUint64(chainID); chainBig.Sign() > 0 {
		put(chainBig)
		put(uint(0))
		put(uint(0))
	}

	var payload []byte
	for _, f := range fields {
		payload = append(payload, f...)
	}

	d := sha3.NewLegacyKeccak256()
	d.Write(rlp.WrapList(payload))
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// RecoverPlain recovers the sender address that produced signature (r, s, v)
// over sighash. v is a 0/1 recovery parity, not a legacy 27/28 V value.
func RecoverPlain(sighash Hash, r, s *big.Int, v byte) (Address, error) {
	if v > 1 || r.Sign() <= 0 || s.Sign() <= 0 {
		return Address{}, errInvalidSig
	}
	if r.Cmp(secp256k1NCopy) >= 0 || s.Cmp(secp256k1NCopy) >= 0 {
		return Address{}, errInvalidSig
	}

	pub, err := recoverPubkey(sighash[:], r, s, v)
	if err != nil {
		return Address{}, err
	}

	// Ethereum address = low 20 bytes of keccak256 of the uncompressed
	// public key with its 0x04 prefix stripped.
	d := sha3.NewLegacyKeccak256()
	d.Write(pub[1:])
	hash := d.Sum(nil)
	return BytesToAddress(hash[12:]), nil
}

// decodeRSV splits a 65-byte [R || S || V] signature into its components,
// rejecting any signature whose r/s are out of the curve's valid range.
func decodeRSV(sig []byte) (*big.Int, *big.Int, byte, error) {
	if len(sig) != 65 {
		return nil, nil, 0, errInvalidSig
	}
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]
	if v > 1 || r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, 0, errInvalidSig
	}
	if r.Cmp(secp256k1NCopy) >= 0 || s.Cmp(secp256k1NCopy) >= 0 {
		return nil, nil, 0, errInvalidSig
	}
	return r, s, v, nil
}

// ecPoint is an affine point on secp256k1, used only by the recovery math
// below so this package does not need to import the crypto package's own
// curve implementation (which in turn depends on core/types).
type ecPoint struct {
	x, y *big.Int
}

func (p ecPoint) isZero() bool {
	return p.x.Sign() == 0 && p.y.Sign() == 0
}

// add returns p+q via the standard affine chord-and-tangent formulas,
// dispatching to double when p == q and returning the identity (0,0) when
// p == -q.
func (p ecPoint) add(q ecPoint) ecPoint {
	if p.isZero() {
		return q
	}
	if q.isZero() {
		return p
	}
	if p.x.Cmp(q.x) == 0 {
		if p.y.Cmp(q.y) == 0 {
			return p.double()
		}
		return ecPoint{new(big.Int), new(big.Int)}
	}

	dy := mod(new(big.Int).Sub(q.y, p.y), secp256k1P)
	dx := mod(new(big.Int).Sub(q.x, p.x), secp256k1P)
	dxInv := new(big.Int).ModInverse(dx, secp256k1P)
	if dxInv == nil {
		return ecPoint{new(big.Int), new(big.Int)}
	}
	slope := mod(new(big.Int).Mul(dy, dxInv), secp256k1P)

	rx := mod(new(big.Int).Sub(new(big.Int).Sub(new(big.Int).Mul(slope, slope), p.x), q.x), secp256k1P)
	ry := mod(new(big.Int).Sub(new(big.Int).Mul(slope, new(big.Int).Sub(p.x, rx)), p.y), secp256k1P)
	return ecPoint{rx, ry}
}

func (p ecPoint) double() ecPoint {
	if p.y.Sign() == 0 {
		return ecPoint{new(big.Int), new(big.Int)}
	}
	num := mod(new(big.Int).Mul(big.NewInt(3), new(big.Int).Mul(p.x, p.x)), secp256k1P)
	den := mod(new(big.Int).Mul(big.NewInt(2), p.y), secp256k1P)
	denInv := new(big.Int).ModInverse(den, secp256k1P)
	if denInv == nil {
		return ecPoint{new(big.Int), new(big.Int)}
	}
	slope := mod(new(big.Int).Mul(num, denInv), secp256k1P)

	rx := mod(new(big.Int).Sub(new(big.Int).Mul(slope, slope), new(big.Int).Mul(big.NewInt(2), p.x)), secp256k1P)
	ry := mod(new(big.Int).Sub(new(big.Int).Mul(slope, new(big.Int).Sub(p.x, rx)), p.y), secp256k1P)
	return ecPoint{rx, ry}
}

// mul computes k*p by double-and-add, reducing k mod the curve order first.
func (p ecPoint) mul(k *big.Int) ecPoint {
	scalar := mod(new(big.Int).Set(k), secp256k1NCopy)
	if scalar.Sign() == 0 {
		return ecPoint{new(big.Int), new(big.Int)}
	}
	acc := ecPoint{new(big.Int), new(big.Int)}
	for i := scalar.BitLen() - 1; i >= 0; i-- {
		acc = acc.double()
		if scalar.Bit(i) == 1 {
			acc = acc.add(p)
		}
	}
	return acc
}

func mod(v, m *big.Int) *big.Int {
	v.Mod(v, m)
	return v
}

var secp256k1Base = ecPoint{secp256k1Gx, secp256k1Gy}

// recoverPubkey recovers the uncompressed public key (0x04 || X(32) || Y(32))
// that produced signature (r, s) over hash, given recovery parity v, via the
// ECDSA recovery equation Q = r^-1 * (s*R - e*G).
func recoverPubkey(hash []byte, r, s *big.Int, v byte) ([]byte, error) {
	rx := new(big.Int).Set(r)
	if rx.Cmp(secp256k1P) >= 0 {
		return nil, errNoRecovery
	}
	ry := curveY(rx)
	if ry == nil {
		return nil, errNoRecovery
	}
	if ry.Bit(0) != uint(v&1) {
		ry = mod(new(big.Int).Sub(secp256k1P, ry), secp256k1P)
	}
	R := ecPoint{rx, ry}

	rInv := new(big.Int).ModInverse(r, secp256k1NCopy)
	if rInv == nil {
		return nil, errNoRecovery
	}
	e := new(big.Int).SetBytes(hash)

	sR := R.mul(s)
	eG := secp256k1Base.mul(e)
	negEG := ecPoint{eG.x, mod(new(big.Int).Sub(secp256k1P, eG.y), secp256k1P)}
	Q := sR.add(negEG).mul(rInv)

	if Q.isZero() {
		return nil, errNoRecovery
	}
	if !verifySignature(hash, r, s, Q) {
		return nil, errNoRecovery
	}

	pub := make([]byte, 65)
	pub[0] = 0x04
	xBytes, yBytes := Q.x.Bytes(), Q.y.Bytes()
	copy(pub[1+32-len(xBytes):33], xBytes)
	copy(pub[33+32-len(yBytes):65], yBytes)
	return pub, nil
}

// curveY solves y^2 = x^3 + 7 (mod p) for secp256k1, returning nil if x is
// not on the curve. p ≡ 3 (mod 4) so the square root is x3^((p+1)/4).
func curveY(x *big.Int) *big.Int {
	x3 := mod(new(big.Int).Mul(mod(new(big.Int).Mul(x, x), secp256k1P), x), secp256k1P)
	x3 = mod(new(big.Int).Add(x3, secp256k1B), secp256k1P)

	exp := new(big.Int).Rsh(new(big.Int).Add(secp256k1P, big.NewInt(1)), 2)
	y := new(big.Int).Exp(x3, exp, secp256k1P)

	if mod(new(big.Int).Mul(y, y), secp256k1P).Cmp(x3) != 0 {
		return nil
	}
	return y
}

// verifySignature checks (r, s) against hash and the recovered point Q via
// the standard ECDSA verification equation, confirming recoverPubkey found
// the point that actually produced the signature rather than its mirror.
func verifySignature(hash []byte, r, s *big.Int, Q ecPoint) bool {
	n := secp256k1NCopy
	if r.Sign() <= 0 || r.Cmp(n) >= 0 || s.Sign() <= 0 || s.Cmp(n) >= 0 {
		return false
	}
	sInv := new(big.Int).ModInverse(s, n)
	if sInv == nil {
		return false
	}
	e := new(big.Int).SetBytes(hash)
	u1 := mod(new(big.Int).Mul(e, sInv), n)
	u2 := mod(new(big.Int).Mul(r, sInv), n)

	sum := secp256k1Base.mul(u1).add(Q.mul(u2))
	return mod(sum.x, n).Cmp(r) == 0
}

var (
	_ Signer = EIP155Signer{}
	_ Signer = LondonSigner{}
)
