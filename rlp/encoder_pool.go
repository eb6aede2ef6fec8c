// Package rlp's encoder pool gives high-throughput callers (batch
// transaction/receipt serialization) a way to reuse scratch buffers across
// encode calls instead of allocating one per call.
package rlp

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

const (
	// pooledBufStartCap is the initial capacity handed out for a freshly
	// allocated pooled buffer.
	pooledBufStartCap = 4096

	// pooledBufCapCeiling is the largest buffer the pool will retain;
	// anything bigger is left for the GC instead of pinned in the pool.
	pooledBufCapCeiling = 1 << 20
)

// PoolStats counts encoder-pool activity for monitoring.
type PoolStats struct {
	Hits    atomic.Int64
	Misses  atomic.Int64
	Encodes atomic.Int64
	Bytes   atomic.Int64
}

// Snapshot takes a point-in-time copy of the counters.
func (m *PoolStats) Snapshot() PoolStatsSnapshot {
	return PoolStatsSnapshot{
		Hits:    m.Hits.Load(),
		Misses:  m.Misses.Load(),
		Encodes: m.Encodes.Load(),
		Bytes:   m.Bytes.Load(),
	}
}

// PoolStatsSnapshot is an immutable copy of PoolStats' counters.
type PoolStatsSnapshot struct {
	Hits    int64
	Misses  int64
	Encodes int64
	Bytes   int64
}

// EncoderMetrics is kept as an alias of PoolStats for call sites written
// against the older name.
type EncoderMetrics = PoolStats

// EncoderMetricsSnapshot is kept as an alias of PoolStatsSnapshot.
type EncoderMetricsSnapshot = PoolStatsSnapshot

// EncoderPool hands out reusable byte buffers for batch RLP encoding.
type EncoderPool struct {
	sp    sync.Pool
	stats PoolStats
}

// NewEncoderPool builds an empty pool; buffers are allocated lazily on
// first use.
func NewEncoderPool() *EncoderPool {
	p := &EncoderPool{}
	p.sp.New = func() interface{} {
		p.stats.Misses.Add(1)
		return &scratch{bytes: make([]byte, 0, pooledBufStartCap)}
	}
	return p
}

// Metrics exposes the pool's running counters.
func (p *EncoderPool) Metrics() *PoolStats {
	return &p.stats
}

// scratch is the buffer wrapper stored in the sync.Pool.
type scratch struct {
	bytes []byte
}

func (p *EncoderPool) acquire() *scratch {
	p.stats.Hits.Add(1)
	buf := p.sp.Get().(*scratch)
	buf.bytes = buf.bytes[:0]
	return buf
}

func (p *EncoderPool) release(buf *scratch) {
	if cap(buf.bytes) <= pooledBufCapCeiling {
		p.sp.Put(buf)
	}
}

// EncodeBytes is the pooled equivalent of EncodeToBytes; the pool only
// tracks metrics here since EncodeToBytes does not itself need a reusable
// buffer.
func (p *EncoderPool) EncodeBytes(val interface{}) ([]byte, error) {
	enc, err := EncodeToBytes(val)
	if err != nil {
		return nil, err
	}
	p.stats.Encodes.Add(1)
	p.stats.Bytes.Add(int64(len(enc)))
	return enc, nil
}

// EncodeBatch encodes each item in items and wraps the concatenation in a
// single RLP list header, using a pooled scratch buffer for the
// concatenation step.
func (p *EncoderPool) EncodeBatch(items []interface{}) ([]byte, error) {
	buf := p.acquire()
	defer p.release(buf)

	for _, item := range items {
		enc, err := EncodeToBytes(item)
		if err != nil {
			return nil, err
		}
		buf.bytes = append(buf.bytes, enc...)
	}

	wrapped := WrapList(buf.bytes)
	p.stats.Encodes.Add(int64(len(items)))
	p.stats.Bytes.Add(int64(len(wrapped)))

	out := make([]byte, len(wrapped))
	copy(out, wrapped)
	return out, nil
}

// EncodeUint64 encodes v without going through reflection.
func EncodeUint64(v uint64) []byte {
	switch {
	case v == 0:
		return []byte{0x80}
	case v < 0x80:
		return []byte{byte(v)}
	default:
		b := beTrim(v)
		buf := make([]byte, 1+len(b))
		buf[0] = 0x80 + byte(len(b))
		copy(buf[1:], b)
		return buf
	}
}

// EncodeBytes32 encodes a fixed 32-byte value without reflection.
func EncodeBytes32(data [32]byte) []byte {
	buf := make([]byte, 33)
	buf[0] = 0x80 + 32
	copy(buf[1:], data[:])
	return buf
}

// EncodeBytes20 encodes a fixed 20-byte value without reflection.
func EncodeBytes20(data [20]byte) []byte {
	buf := make([]byte, 21)
	buf[0] = 0x80 + 20
	copy(buf[1:], data[:])
	return buf
}

// EncodeBool encodes a boolean without reflection.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{0x01}
	}
	return []byte{0x80}
}

// EstimateListSize bounds the encoded size of a list whose item payloads
// sum to payloadSize, without building the list.
func EstimateListSize(payloadSize int) int {
	if payloadSize <= 55 {
		return 1 + payloadSize
	}
	return 1 + beLen(uint64(payloadSize)) + payloadSize
}

// EstimateStringSize bounds the encoded size of a byte string of length
// dataLen.
func EstimateStringSize(dataLen int) int {
	if dataLen == 1 {
		return 1
	}
	if dataLen <= 55 {
		return 1 + dataLen
	}
	return 1 + beLen(uint64(dataLen)) + dataLen
}

// AppendUint64 appends the RLP encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	switch {
	case v == 0:
		return append(dst, 0x80)
	case v < 0x80:
		return append(dst, byte(v))
	default:
		b := beTrim(v)
		dst = append(dst, 0x80+byte(len(b)))
		return append(dst, b...)
	}
}

// AppendBytes appends the RLP string encoding of data to dst.
func AppendBytes(dst, data []byte) []byte {
	n := len(data)
	if n == 1 && data[0] <= 0x7f {
		return append(dst, data[0])
	}
	if n <= 55 {
		dst = append(dst, 0x80+byte(n))
		return append(dst, data...)
	}
	lb := beTrim(uint64(n))
	dst = append(dst, 0xb7+byte(len(lb)))
	dst = append(dst, lb...)
	return append(dst, data...)
}

// AppendListHeader appends a list header for a payload of payloadSize bytes.
// The caller must append exactly that many encoded bytes afterward.
func AppendListHeader(dst []byte, payloadSize int) []byte {
	if payloadSize <= 55 {
		return append(dst, 0xc0+byte(payloadSize))
	}
	lb := beTrim(uint64(payloadSize))
	dst = append(dst, 0xf7+byte(len(lb)))
	return append(dst, lb...)
}

// beTrim renders u as minimal-length big-endian bytes.
func beTrim(u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	for i := 0; i < 7; i++ {
		if buf[i] != 0 {
			return buf[i:]
		}
	}
	return buf[7:]
}

// beLen returns how many bytes beTrim(u) would produce.
func beLen(u uint64) int {
	n := 1
	for u >= 0x100 {
		u >>= 8
		n++
	}
	return n
}
