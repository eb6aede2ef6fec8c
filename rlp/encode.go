package rlp

import (
	"io"
	"math/big"
	"reflect"
)

// bigIntType caches the reflect.Type for math/big.Int so encodeAny doesn't
// re-derive it through reflect.TypeOf on every call.
var bigIntType = reflect.TypeOf(big.Int{})

// Encode writes the canonical RLP encoding of val to w. val must be one of:
// bool, an unsigned or signed integer kind, *big.Int, []byte, string, a
// slice or array (encoded as a list, []byte/[N]byte as a string), or a
// struct whose exported fields are encoded positionally as a list.
func Encode(w io.Writer, val interface{}) error {
	enc, err := EncodeToBytes(val)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// EncodeToBytes returns the canonical RLP encoding of val.
func EncodeToBytes(val interface{}) ([]byte, error) {
	return encodeAny(reflect.ValueOf(val))
}

// encodeAny dispatches on the reflected kind of v, unwrapping interfaces and
// pointers first so callers never have to special-case indirection.
func encodeAny(v reflect.Value) ([]byte, error) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return emptyString, nil
		}
		v = v.Elem()
	}
	if v.Type() == bigIntType {
		return encodeBigInt(v.Addr().Interface().(*big.Int)), nil
	}

	switch v.Kind() {
	case reflect.Invalid:
		return emptyString, nil
	case reflect.Bool:
		return encodeBool(v.Bool()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encodeUint(v.Uint()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encodeUint(uint64(v.Int())), nil
	case reflect.String:
		return encodeBytes([]byte(v.String())), nil
	case reflect.Slice:
		if isByteElem(v.Type()) {
			return encodeBytes(v.Bytes()), nil
		}
		return encodeSeq(v)
	case reflect.Array:
		if isByteElem(v.Type()) {
			return encodeBytes(flattenByteArray(v)), nil
		}
		return encodeSeq(v)
	case reflect.Struct:
		return encodeSeq(v)
	default:
		return nil, ErrUnsupportedKind
	}
}

func isByteElem(t reflect.Type) bool {
	return t.Elem().Kind() == reflect.Uint8
}

func flattenByteArray(v reflect.Value) []byte {
	out := make([]byte, v.Len())
	for i := range out {
		out[i] = byte(v.Index(i).Uint())
	}
	return out
}

func encodeBool(b bool) []byte {
	if b {
		return []byte{0x01}
	}
	return emptyString
}

func encodeUint(u uint64) []byte {
	switch {
	case u == 0:
		return emptyString
	case u < 0x80:
		return []byte{byte(u)}
	default:
		return encodeBytes(trimmedBigEndian(u))
	}
}

func encodeBigInt(i *big.Int) []byte {
	if i.Sign() == 0 {
		return emptyString
	}
	return encodeBytes(i.Bytes())
}

var emptyString = []byte{0x80}

// encodeBytes wraps data in an RLP string header. A single byte below 0x80
// is its own encoding; payloads up to 55 bytes get a one-byte length prefix;
// longer payloads get a length-of-length prefix.
func encodeBytes(data []byte) []byte {
	if len(data) == 1 && data[0] < 0x80 {
		return data
	}
	return prefixed(0x80, 0xb7, data)
}

// encodeSeq encodes each element of an indexable reflect.Value (slice,
// array, or struct's exported fields) and wraps the concatenated payload in
// a list header.
func encodeSeq(v reflect.Value) ([]byte, error) {
	var payload []byte
	walk := func(elem reflect.Value) error {
		enc, err := encodeAny(elem)
		if err != nil {
			return err
		}
		payload = append(payload, enc...)
		return nil
	}

	if v.Kind() == reflect.Struct {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := walk(v.Field(i)); err != nil {
				return nil, err
			}
		}
	} else {
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i)); err != nil {
				return nil, err
			}
		}
	}
	return packList(payload), nil
}

// WrapList wraps an already RLP-encoded payload (a concatenation of
// complete items) in a list header. Exported for callers that assemble a
// list's payload manually rather than through reflection.
func WrapList(payload []byte) []byte {
	return packList(payload)
}

func packList(payload []byte) []byte {
	return prefixed(0xc0, 0xf7, payload)
}

// prefixed builds a length-prefixed header for payload: shortBase+len when
// the payload fits in 55 bytes, otherwise longBase+lenOfLen followed by the
// big-endian length.
func prefixed(shortBase, longBase byte, payload []byte) []byte {
	n := len(payload)
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = shortBase + byte(n)
		copy(buf[1:], payload)
		return buf
	}
	lenBytes := trimmedBigEndian(uint64(n))
	buf := make([]byte, 1+len(lenBytes)+n)
	buf[0] = longBase + byte(len(lenBytes))
	copy(buf[1:], lenBytes)
	copy(buf[1+len(lenBytes):], payload)
	return buf
}

// trimmedBigEndian renders u as a minimal-length big-endian byte slice,
// with no leading zero byte (the canonical form RLP requires for integers).
func trimmedBigEndian(u uint64) []byte {
	var tmp [8]byte
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(u)
		u >>= 8
	}
	i := 0
	for i < 7 && tmp[i] == 0 {
		i++
	}
	out := make([]byte, 8-i)
	copy(out, tmp[i:])
	return out
}
