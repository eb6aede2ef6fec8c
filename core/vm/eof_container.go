package vm

// eof_container.go implements structural validation of the EOF container
// format (EIP-3540): magic bytes, version, section header layout, and the
// cross-check between the declared type section and the code sections it
// describes. This is the format-validation layer that EIP-3540 requires a
// conforming client to run over both init code and already-deployed code
// once a fork enables EOF; it does not implement EOF's control-flow opcode
// family (RJUMP/RJUMPV/CALLF/RETF) or the deeper stack-height analysis from
// EIP-5450 — see DESIGN.md for why that layer is out of scope here.

import (
	"encoding/binary"
	"errors"
)

const (
	eofMagicByte0 byte = 0xEF
	eofMagicByte1 byte = 0x00
	eofVersion1   byte = 0x01
)

const (
	eofKindType      byte = 0x01
	eofKindCode      byte = 0x02
	eofKindContainer byte = 0x03
	eofKindData      byte = 0xFF
	eofKindStop      byte = 0x00
)

const (
	eofTypeEntryWidth  = 4
	eofMaxCodeSections = 1024
	eofNonReturning    = 0x80
)

var (
	ErrEOFMalformedHeader   = errors.New("eof: malformed container header")
	ErrEOFBadMagic          = errors.New("eof: not an EOF container")
	ErrEOFUnsupportedVer    = errors.New("eof: unsupported EOF version")
	ErrEOFSectionOutOfOrder = errors.New("eof: sections out of order")
	ErrEOFNoCodeSections    = errors.New("eof: container declares no code sections")
	ErrEOFTooManyCode       = errors.New("eof: too many code sections")
	ErrEOFTypeCountMismatch = errors.New("eof: type section entry count does not match code section count")
	ErrEOFTruncatedBody     = errors.New("eof: body shorter than header declares")
	ErrEOFTrailingData      = errors.New("eof: bytes remain after the declared sections")
	ErrEOFBadFirstType      = errors.New("eof: first code section must take no inputs and never return")
	ErrEOFEmptySection      = errors.New("eof: a declared section has zero length")
)

// eofSectionType describes one entry of the type section: the argument and
// return stack depth a code section expects, plus its declared maximum
// operand-stack depth.
type eofSectionType struct {
	inputs, outputs uint8
	stackCeil        uint16
}

// EOFContainer is the parsed, format-validated representation of an EOF v1
// container, split into its header-declared sections.
type EOFContainer struct {
	Version    byte
	Types      []eofSectionType
	Code       [][]byte
	Containers [][]byte
	Data       []byte
}

// HasEOFPrefix reports whether code opens with the EOF magic bytes, the
// signal an interpreter uses to route creation/call targets to EOF
// validation instead of legacy bytecode handling.
func HasEOFPrefix(code []byte) bool {
	return len(code) >= 2 && code[0] == eofMagicByte0 && code[1] == eofMagicByte1
}

// eofHeader is the intermediate result of walking the section-kind markers,
// before the section bodies are sliced out of the remaining bytes.
type eofHeader struct {
	typeSize       uint16
	codeSizes      []uint16
	containerSizes []uint32
	dataSize       uint16
	hasContainer   bool
}

// ParseEOFContainer validates and decodes code as an EOF v1 container. It
// performs only the EIP-3540 structural checks (ordering, sizes, the
// type/code cross-check); it does not walk code section bytes for
// control-flow validity.
func ParseEOFContainer(code []byte) (*EOFContainer, error) {
	if len(code) < 3 || code[0] != eofMagicByte0 || code[1] != eofMagicByte1 {
		return nil, ErrEOFBadMagic
	}
	if code[2] != eofVersion1 {
		return nil, ErrEOFUnsupportedVer
	}

	hdr, bodyStart, err := readEOFHeader(code[3:])
	if err != nil {
		return nil, err
	}
	bodyStart += 3

	return sliceEOFBody(code, bodyStart, hdr)
}

// readEOFHeader walks the section-kind/size markers following the magic and
// version bytes, returning the declared section sizes and the offset (from
// the start of buf) where the stop marker ends.
func readEOFHeader(buf []byte) (eofHeader, int, error) {
	var hdr eofHeader
	pos := 0
	seenType, seenCode, seenData := false, false, false

	for {
		if pos >= len(buf) {
			return hdr, 0, ErrEOFMalformedHeader
		}
		kind := buf[pos]
		pos++

		if kind == eofKindStop {
			if !seenType || !seenCode || !seenData {
				return hdr, 0, ErrEOFMalformedHeader
			}
			return hdr, pos, nil
		}

		switch kind {
		case eofKindType:
			if seenType || seenCode || seenData {
				return hdr, 0, ErrEOFSectionOutOfOrder
			}
			size, n, err := readSectionSize16(buf, pos)
			if err != nil {
				return hdr, 0, err
			}
			hdr.typeSize, pos, seenType = size, pos+n, true

		case eofKindCode:
			if !seenType || seenCode || seenData {
				return hdr, 0, ErrEOFSectionOutOfOrder
			}
			count, n, err := readSectionSize16(buf, pos)
			if err != nil {
				return hdr, 0, err
			}
			pos += n
			if count == 0 {
				return hdr, 0, ErrEOFNoCodeSections
			}
			if count > eofMaxCodeSections {
				return hdr, 0, ErrEOFTooManyCode
			}
			sizes := make([]uint16, count)
			for i := range sizes {
				sz, n, err := readSectionSize16(buf, pos)
				if err != nil {
					return hdr, 0, err
				}
				sizes[i], pos = sz, pos+n
			}
			hdr.codeSizes, seenCode = sizes, true

		case eofKindContainer:
			if !seenCode || seenData || hdr.hasContainer {
				return hdr, 0, ErrEOFSectionOutOfOrder
			}
			count, n, err := readSectionSize16(buf, pos)
			if err != nil {
				return hdr, 0, err
			}
			pos += n
			sizes := make([]uint32, count)
			for i := range sizes {
				sz, n, err := readSectionSize16(buf, pos)
				if err != nil {
					return hdr, 0, err
				}
				sizes[i], pos = uint32(sz), pos+n
			}
			hdr.containerSizes, hdr.hasContainer = sizes, true

		case eofKindData:
			if !seenCode || seenData {
				return hdr, 0, ErrEOFSectionOutOfOrder
			}
			size, n, err := readSectionSize16(buf, pos)
			if err != nil {
				return hdr, 0, err
			}
			hdr.dataSize, pos, seenData = size, pos+n, true

		default:
			return hdr, 0, ErrEOFMalformedHeader
		}
	}
}

func readSectionSize16(buf []byte, pos int) (uint16, int, error) {
	if pos+2 > len(buf) {
		return 0, 0, ErrEOFMalformedHeader
	}
	return binary.BigEndian.Uint16(buf[pos:pos+2]), 2, nil
}

// sliceEOFBody cuts the section bodies out of code starting at bodyStart,
// using the sizes recorded in hdr, and cross-validates the type section
// against the code sections it describes.
func sliceEOFBody(code []byte, bodyStart int, hdr eofHeader) (*EOFContainer, error) {
	if hdr.typeSize == 0 || hdr.typeSize%eofTypeEntryWidth != 0 {
		return nil, ErrEOFMalformedHeader
	}
	if int(hdr.typeSize)/eofTypeEntryWidth != len(hdr.codeSizes) {
		return nil, ErrEOFTypeCountMismatch
	}

	pos := bodyStart
	types, n, err := readTypeSection(code, pos, int(hdr.typeSize))
	if err != nil {
		return nil, err
	}
	pos += n

	codeSecs, n, err := sliceFixedSections(code, pos, hdr.codeSizes16())
	if err != nil {
		return nil, err
	}
	pos += n

	var containerSecs [][]byte
	if hdr.hasContainer {
		containerSecs, n, err = sliceFixedSections(code, pos, hdr.containerSizes)
		if err != nil {
			return nil, err
		}
		pos += n
	}

	if pos+int(hdr.dataSize) > len(code) {
		return nil, ErrEOFTruncatedBody
	}
	data := code[pos : pos+int(hdr.dataSize)]
	pos += int(hdr.dataSize)
	if pos != len(code) {
		return nil, ErrEOFTrailingData
	}

	if types[0].inputs != 0 || types[0].outputs != eofNonReturning {
		return nil, ErrEOFBadFirstType
	}

	return &EOFContainer{
		Version:    eofVersion1,
		Types:      types,
		Code:       codeSecs,
		Containers: containerSecs,
		Data:       data,
	}, nil
}

func (h eofHeader) codeSizes16() []uint32 {
	out := make([]uint32, len(h.codeSizes))
	for i, s := range h.codeSizes {
		out[i] = uint32(s)
	}
	return out
}

func readTypeSection(code []byte, pos, size int) ([]eofSectionType, int, error) {
	if pos+size > len(code) {
		return nil, 0, ErrEOFTruncatedBody
	}
	out := make([]eofSectionType, size/eofTypeEntryWidth)
	for i := range out {
		off := pos + i*eofTypeEntryWidth
		out[i] = eofSectionType{
			inputs:   code[off],
			outputs:  code[off+1],
			stackCeil: binary.BigEndian.Uint16(code[off+2 : off+4]),
		}
	}
	return out, size, nil
}

func sliceFixedSections(code []byte, pos int, sizes []uint32) ([][]byte, int, error) {
	out := make([][]byte, len(sizes))
	start := pos
	for i, sz := range sizes {
		if sz == 0 {
			return nil, 0, ErrEOFEmptySection
		}
		end := pos + int(sz)
		if end > len(code) {
			return nil, 0, ErrEOFTruncatedBody
		}
		out[i] = code[pos:end]
		pos = end
	}
	return out, pos - start, nil
}
