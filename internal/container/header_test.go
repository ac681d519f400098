package container

import (
	"bytes"
	"errors"
	"testing"

	"github.com/volatileacq/avml/internal/acqerr"
)

func TestEncodeHeaderV1(t *testing.T) {
	h := Header{Start: 0x1000, End: 0x20001, Version: 1}
	got, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	want := []byte{
		0x45, 0x4d, 0x69, 0x4c, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(got[:], want) {
		t.Errorf("v1 header = % x, want % x", got, want)
	}
}

func TestEncodeHeaderV2(t *testing.T) {
	h := Header{Start: 0x1000, End: 0x20001, Version: 2}
	got, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	want := []byte{
		0x41, 0x56, 0x4d, 0x4c, 0x02, 0x00, 0x00, 0x00,
		0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(got[:], want) {
		t.Errorf("v2 header = % x, want % x", got, want)
	}
}

func TestEncodeHeaderUnimplementedVersion(t *testing.T) {
	_, err := Header{Start: 0, End: 1, Version: 3}.Encode()
	if !errors.Is(err, acqerr.ErrUnimplementedVersion) {
		t.Fatalf("expected ErrUnimplementedVersion, got %v", err)
	}
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		h := Header{Start: 0x1000, End: 0x20001, Version: version}
		buf, err := h.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := DecodeHeader(buf)
		if err != nil {
			t.Fatalf("DecodeHeader: %v", err)
		}
		if got != h {
			t.Errorf("round trip = %+v, want %+v", got, h)
		}
	}
}

func TestDecodeHeaderInvalidPadding(t *testing.T) {
	buf, _ := Header{Start: 0, End: 1, Version: 1}.Encode()
	buf[31] = 1
	_, err := DecodeHeader(buf)
	if !errors.Is(err, acqerr.ErrInvalidPadding) {
		t.Fatalf("expected ErrInvalidPadding, got %v", err)
	}
}

func TestDecodeHeaderUnsupportedFormat(t *testing.T) {
	buf, _ := Header{Start: 0, End: 1, Version: 1}.Encode()
	buf[4] = 9 // corrupt the version field, magic still says LiME
	_, err := DecodeHeader(buf)
	if !errors.Is(err, acqerr.ErrFormatUnsupported) {
		t.Fatalf("expected ErrFormatUnsupported, got %v", err)
	}
}

func TestDecodeHeaderEndOverflow(t *testing.T) {
	var buf [HeaderSize]byte
	buf[0], buf[1], buf[2], buf[3] = 0x45, 0x4d, 0x69, 0x4c
	buf[4] = 1
	for i := 16; i < 24; i++ {
		buf[i] = 0xff
	}
	if _, err := DecodeHeader(buf); !errors.Is(err, acqerr.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for end_inclusive = MaxUint64, got %v", err)
	}
}
