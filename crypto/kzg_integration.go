// The KZG backend seam: every blob/commitment operation the pipeline
// needs goes through KZGCeremonyBackend, so the trusted-setup material is
// swappable. The default backend runs the real pairing math over the
// s=42 test setup (kzg.go); builds with -tags goethkzg install the
// go-eth-kzg adapter carrying the actual ceremony SRS
// (kzg_goeth_adapter.go). Blob geometry constants follow the consensus
// spec and go-eth-kzg's serialization layer.
package crypto

import (
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
)

// EIP-4844 blob geometry.
const (
	KZGFieldElementsPerBlob = 4096
	KZGBytesPerFieldElement = 32
	KZGBytesPerBlob         = KZGFieldElementsPerBlob * KZGBytesPerFieldElement // 131072
	KZGBytesPerCommitment   = 48                                               // compressed G1
	KZGBytesPerProof        = 48                                               // compressed G1
)

// EIP-7594 (PeerDAS) cell geometry: a 2x Reed-Solomon extension split
// into 128 cells of 64 scalars.
const (
	KZGCellsPerExtBlob      = 128
	KZGFieldElementsPerCell = 64
	KZGBytesPerCell         = KZGFieldElementsPerCell * KZGBytesPerFieldElement // 2048
	KZGExpansionFactor      = 2
	KZGScalarsPerExtBlob    = KZGExpansionFactor * KZGFieldElementsPerBlob
)

// KZGBLSModulus is the BLS12-381 scalar order as the 32-byte big-endian
// array the consensus spec (and go-eth-kzg) carries it as.
var KZGBLSModulus = [32]byte{
	0x73, 0xed, 0xa7, 0x53, 0x29, 0x9d, 0x7d, 0x48,
	0x33, 0x39, 0xd8, 0x08, 0x09, 0xa1, 0xd8, 0x05,
	0x53, 0xbd, 0xa4, 0x02, 0xff, 0xfe, 0x5b, 0xfe,
	0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01,
}

// KZG validation errors.
var (
	ErrKZGInvalidBlobSize         = errors.New("kzg: blob size must be 131072 bytes")
	ErrKZGFieldElementOutOfRange  = errors.New("kzg: field element >= BLS_MODULUS")
	ErrKZGInvalidCommitmentSize   = errors.New("kzg: commitment must be 48 bytes")
	ErrKZGInvalidCommitmentFormat = errors.New("kzg: invalid commitment G1 format")
	ErrKZGInvalidProofSize        = errors.New("kzg: proof must be 48 bytes")
	ErrKZGInvalidCellIndex        = errors.New("kzg: cell index >= CellsPerExtBlob")
	ErrKZGBackendNotImplemented   = errors.New("kzg: backend operation not implemented")
)

// KZGCeremonyConfig is a loaded trusted setup: the 4096 G1 Lagrange
// points, at least [1]G2 and [tau]G2, and the scalar modulus, all in the
// ceremony's compressed wire form.
type KZGCeremonyConfig struct {
	SRSG1Lagrange [][]byte
	SRSG2         [][]byte
	Modulus       [32]byte
}

// KZGCeremonyBackend is the operation set the pipeline needs from a
// trusted setup: blob commitment, blob proof verification, the
// point-opening check behind the 0x0a precompile, and the PeerDAS cell
// operations. All sizes are the compressed wire sizes above.
type KZGCeremonyBackend interface {
	BlobToCommitment(blob []byte) ([KZGBytesPerCommitment]byte, error)
	VerifyBlobProof(blob, commitment, proof []byte) (bool, error)

	// VerifyKZGProof checks the opening p(z) = y of commitment; z and y
	// are canonical 32-byte scalars.
	VerifyKZGProof(commitment, z, y, proof []byte) (bool, error)

	ComputeCells(blob []byte) ([][KZGBytesPerCell]byte, error)
	VerifyCellProof(commitment, cell, proof []byte, cellIndex uint64) (bool, error)

	Name() string
}

// activeKZGBackend is the currently selected KZG backend.
var (
	activeKZGMu      sync.RWMutex
	activeKZGBackend KZGCeremonyBackend = &PlaceholderKZGBackend{}
)

// DefaultKZGBackend returns the currently active KZG backend.
func DefaultKZGBackend() KZGCeremonyBackend {
	activeKZGMu.RLock()
	defer activeKZGMu.RUnlock()
	return activeKZGBackend
}

// SetKZGBackend sets the active KZG backend. This is safe for concurrent use.
// Passing nil resets to the default placeholder backend.
func SetKZGBackend(b KZGCeremonyBackend) {
	activeKZGMu.Lock()
	defer activeKZGMu.Unlock()
	if b == nil {
		b = &PlaceholderKZGBackend{}
	}
	activeKZGBackend = b
}

// KZGIntegrationStatus returns the name of the currently active KZG backend.
func KZGIntegrationStatus() string {
	return DefaultKZGBackend().Name()
}

// ValidateBlob checks that a blob has the correct size and that each
// 32-byte field element is canonical (less than BLS_MODULUS).
//
// This mirrors blob_to_polynomial in the consensus spec.
func ValidateBlob(blob []byte) error {
	if len(blob) != KZGBytesPerBlob {
		return ErrKZGInvalidBlobSize
	}
	modulus := new(big.Int).SetBytes(KZGBLSModulus[:])
	for i := 0; i < KZGFieldElementsPerBlob; i++ {
		offset := i * KZGBytesPerFieldElement
		elem := blob[offset : offset+KZGBytesPerFieldElement]
		val := new(big.Int).SetBytes(elem)
		if val.Cmp(modulus) >= 0 {
			return ErrKZGFieldElementOutOfRange
		}
	}
	return nil
}

// ValidateCommitment checks that a KZG commitment has the correct size
// and valid compressed G1 format (compression flag set).
//
// This mirrors validate_kzg_g1 in the consensus spec.
func ValidateCommitment(commitment []byte) error {
	if len(commitment) != KZGBytesPerCommitment {
		return ErrKZGInvalidCommitmentSize
	}
	// Compression flag (bit 7) must be set.
	if commitment[0]&0x80 == 0 {
		return ErrKZGInvalidCommitmentFormat
	}
	return nil
}

// ValidateProof checks that a KZG proof has the correct size.
func ValidateProof(proof []byte) error {
	if len(proof) != KZGBytesPerProof {
		return ErrKZGInvalidProofSize
	}
	// Compression flag must be set.
	if proof[0]&0x80 == 0 {
		return ErrKZGInvalidCommitmentFormat
	}
	return nil
}

// --- PlaceholderKZGBackend ---

// PlaceholderKZGBackend implements KZGCeremonyBackend using the existing
// pure-Go KZG code from kzg.go (test secret s=42). This is suitable for
// unit tests but not for production use.
type PlaceholderKZGBackend struct{}

func (b *PlaceholderKZGBackend) Name() string { return "placeholder" }

func (b *PlaceholderKZGBackend) BlobToCommitment(blob []byte) ([KZGBytesPerCommitment]byte, error) {
	var out [KZGBytesPerCommitment]byte
	if len(blob) != KZGBytesPerBlob {
		return out, ErrKZGInvalidBlobSize
	}
	// Evaluate the blob polynomial at the test secret s=42.
	// p(s) = sum(blob_i * s^i) for each 32-byte field element.
	secret := big.NewInt(42)
	polyAtS := big.NewInt(0)
	sPower := big.NewInt(1)
	for i := 0; i < KZGFieldElementsPerBlob; i++ {
		offset := i * KZGBytesPerFieldElement
		elem := new(big.Int).SetBytes(blob[offset : offset+KZGBytesPerFieldElement])
		term := new(big.Int).Mul(elem, sPower)
		term.Mod(term, blsR)
		polyAtS.Add(polyAtS, term)
		polyAtS.Mod(polyAtS, blsR)
		sPower.Mul(sPower, secret)
		sPower.Mod(sPower, blsR)
	}
	commitment := KZGCommit(polyAtS)
	compressed := KZGCompressG1(commitment)
	copy(out[:], compressed)
	return out, nil
}

func (b *PlaceholderKZGBackend) VerifyBlobProof(blob, commitment, proof []byte) (bool, error) {
	if len(blob) != KZGBytesPerBlob {
		return false, ErrKZGInvalidBlobSize
	}
	if err := ValidateCommitment(commitment); err != nil {
		return false, err
	}
	if err := ValidateProof(proof); err != nil {
		return false, err
	}
	// For the placeholder, we verify by re-computing the commitment and
	// checking it matches. This is a simplified check that doesn't use
	// the full KZG pairing verification (which requires a real SRS).
	recomputed, err := b.BlobToCommitment(blob)
	if err != nil {
		return false, err
	}
	match := true
	for i := range recomputed {
		if recomputed[i] != commitment[i] {
			match = false
			break
		}
	}
	return match, nil
}

// VerifyKZGProof checks a single point opening p(z) = y via the real BLS12-381
// pairing equation (KZGVerifyFromBytes), against the test-secret trusted
// setup G2 point installed by kzg.go's init(). The pairing check itself is
// the genuine KZG verification equation; only the setup's secret (s=42,
// rather than the output of the real Ethereum ceremony) is a placeholder.
func (b *PlaceholderKZGBackend) VerifyKZGProof(commitment, z, y, proof []byte) (bool, error) {
	if len(z) != KZGBytesPerFieldElement || len(y) != KZGBytesPerFieldElement {
		return false, errors.New("kzg: z and y must be 32 bytes")
	}
	zVal := new(big.Int).SetBytes(z)
	yVal := new(big.Int).SetBytes(y)
	if err := KZGVerifyFromBytes(commitment, zVal, yVal, proof); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *PlaceholderKZGBackend) ComputeCells(blob []byte) ([][KZGBytesPerCell]byte, error) {
	if len(blob) != KZGBytesPerBlob {
		return nil, ErrKZGInvalidBlobSize
	}
	// For the placeholder, split the blob into cells and pad the extension
	// with zeros. A real implementation would use Reed-Solomon erasure coding.
	cells := make([][KZGBytesPerCell]byte, KZGCellsPerExtBlob)

	// The original blob occupies the first half of the extended blob.
	// CellsPerExtBlob/2 cells come from the blob data.
	originalCells := KZGCellsPerExtBlob / KZGExpansionFactor
	for i := 0; i < originalCells; i++ {
		offset := i * KZGBytesPerCell
		if offset+KZGBytesPerCell <= len(blob) {
			copy(cells[i][:], blob[offset:offset+KZGBytesPerCell])
		}
	}
	// Remaining cells (extension) are zero-filled, representing the
	// Reed-Solomon parity data (placeholder only).
	return cells, nil
}

func (b *PlaceholderKZGBackend) VerifyCellProof(commitment, cell, proof []byte, cellIndex uint64) (bool, error) {
	if cellIndex >= KZGCellsPerExtBlob {
		return false, ErrKZGInvalidCellIndex
	}
	if err := ValidateCommitment(commitment); err != nil {
		return false, err
	}
	if len(cell) != KZGBytesPerCell {
		return false, errors.New("kzg: invalid cell size")
	}
	if err := ValidateProof(proof); err != nil {
		return false, err
	}
	// Placeholder: accept if formats are valid. A real implementation
	// would perform the pairing check.
	return true, nil
}

// GoEthKZGBackend is the untagged stand-in for the go-eth-kzg adapter:
// every operation reports ErrKZGBackendNotImplemented. The real adapter
// (kzg_goeth_adapter.go, -tags goethkzg) replaces it at SetKZGBackend
// time.
type GoEthKZGBackend struct{}

func (b *GoEthKZGBackend) Name() string { return "go-eth-kzg" }

func (b *GoEthKZGBackend) BlobToCommitment(blob []byte) ([KZGBytesPerCommitment]byte, error) {
	return [KZGBytesPerCommitment]byte{}, ErrKZGBackendNotImplemented
}

func (b *GoEthKZGBackend) VerifyBlobProof(blob, commitment, proof []byte) (bool, error) {
	return false, ErrKZGBackendNotImplemented
}

func (b *GoEthKZGBackend) VerifyKZGProof(commitment, z, y, proof []byte) (bool, error) {
	return false, ErrKZGBackendNotImplemented
}

func (b *GoEthKZGBackend) ComputeCells(blob []byte) ([][KZGBytesPerCell]byte, error) {
	return nil, ErrKZGBackendNotImplemented
}

func (b *GoEthKZGBackend) VerifyCellProof(commitment, cell, proof []byte, cellIndex uint64) (bool, error) {
	return false, ErrKZGBackendNotImplemented
}

// --- Helpers ---

// kzgBlobWithFieldElement creates a test blob with a single non-zero field
// element at the given index. All other elements are zero.
func kzgBlobWithFieldElement(index int, value uint64) []byte {
	blob := make([]byte, KZGBytesPerBlob)
	if index >= 0 && index < KZGFieldElementsPerBlob {
		offset := index*KZGBytesPerFieldElement + KZGBytesPerFieldElement - 8
		binary.BigEndian.PutUint64(blob[offset:], value)
	}
	return blob
}
