// Package container implements the on-disk LiME/AVML block container
// format: the 32-byte block header, its little-endian encode/decode, and
// the page-aligned, zero-eliding block copy logic the snapshot engine and
// format converter both build on.
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/volatileacq/avml/internal/acqerr"
)

// MaxBlockSize bounds a single v2 (compressed) block's physical range, per
// the specification's stated constant. See DESIGN.md for why this value
// (4 GiB) is used instead of the smaller literal found in the reference
// Rust implementation.
const MaxBlockSize uint64 = 0x100000 * 0x1000

// PageSize is the granularity of page-aligned reads from physical memory
// devices.
const PageSize = 0x1000

const (
	limeMagic uint32 = 0x4c694d45 // "EMiL" little-endian
	avmlMagic uint32 = 0x4c4d5641 // "AVML" little-endian
)

// HeaderSize is the fixed on-disk size of a BlockHeader.
const HeaderSize = 32

// Header is the 32-byte block header preceding every block's payload.
type Header struct {
	Start   uint64 // inclusive start physical address
	End     uint64 // exclusive end physical address
	Version uint32
}

// Encode lays out the header as 32 little-endian bytes. Version must be 1
// or 2; any other value reports acqerr.ErrUnimplementedVersion.
func (h Header) Encode() ([HeaderSize]byte, error) {
	var magic uint32
	switch h.Version {
	case 1:
		magic = limeMagic
	case 2:
		magic = avmlMagic
	default:
		return [HeaderSize]byte{}, fmt.Errorf("encoding header version %d: %w", h.Version, acqerr.ErrUnimplementedVersion)
	}

	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Start)
	binary.LittleEndian.PutUint64(buf[16:24], h.End-1)
	binary.LittleEndian.PutUint64(buf[24:32], 0)
	return buf, nil
}

// DecodeHeader parses a 32-byte on-disk header. It rejects non-zero
// padding, unrecognised (magic, version) pairs, and an end_inclusive of
// math.MaxUint64 (which would overflow back to 0 when converted to the
// half-open form).
func DecodeHeader(buf [HeaderSize]byte) (Header, error) {
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint32(buf[4:8])
	start := binary.LittleEndian.Uint64(buf[8:16])
	endInclusive := binary.LittleEndian.Uint64(buf[16:24])
	padding := binary.LittleEndian.Uint64(buf[24:32])

	if padding != 0 {
		return Header{}, fmt.Errorf("padding %#x: %w", padding, acqerr.ErrInvalidPadding)
	}
	validV1 := magic == limeMagic && version == 1
	validV2 := magic == avmlMagic && version == 2
	if !validV1 && !validV2 {
		return Header{}, fmt.Errorf("magic %#x version %d: %w", magic, version, acqerr.ErrFormatUnsupported)
	}
	if endInclusive == math.MaxUint64 {
		return Header{}, fmt.Errorf("end_inclusive overflow: %w", acqerr.ErrTooLarge)
	}

	return Header{Start: start, End: endInclusive + 1, Version: version}, nil
}

// ReadHeader reads and decodes the next 32-byte header from r, the format
// converter's entry point into a block boundary without knowing its
// version ahead of time.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("reading block header: %w", err)
	}
	return DecodeHeader(buf)
}
