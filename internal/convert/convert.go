// Package convert implements bidirectional conversion among the raw,
// LiME v1, and LiME v2 container formats, as one-pass streams over the
// container codec.
package convert

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	"github.com/volatileacq/avml/internal/acqerr"
	"github.com/volatileacq/avml/internal/container"
	"github.com/volatileacq/avml/internal/iomem"
	"github.com/volatileacq/avml/internal/snapshot"
	"github.com/volatileacq/avml/internal/source"
)

// Format names one of the three container encodings a file on disk can be
// in; Raw carries no header/version of its own.
type Format int

const (
	Raw Format = iota
	LimeV1
	LimeV2
)

func (f Format) String() string {
	switch f {
	case LimeV1:
		return "lime"
	case LimeV2:
		return "lime_compressed"
	default:
		return "raw"
	}
}

func (f Format) version() uint32 {
	switch f {
	case LimeV1:
		return 1
	case LimeV2:
		return 2
	default:
		return 0
	}
}

const oneMB = 1024 * 1024

// ParseFormat parses the --format flag value used by avml-convert.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "raw":
		return Raw, nil
	case "lime":
		return LimeV1, nil
	case "lime_compressed":
		return LimeV2, nil
	default:
		return 0, fmt.Errorf("unsupported format %q", s)
	}
}

// Convert dispatches to the right one-pass conversion based on src and dst
// format. The identity pair (same format on both sides, including raw→raw)
// is rejected with acqerr.ErrNoConversionRequired.
func Convert(src, dst Format, srcPath, dstPath string) error {
	if src == dst {
		return fmt.Errorf("source and destination are both %v: %w", src, acqerr.ErrNoConversionRequired)
	}

	switch {
	case dst == Raw:
		return LimeToRaw(srcPath, dstPath)
	case src == Raw:
		return RawToLime(srcPath, dstPath, dst.version())
	default:
		return ConvertVersion(srcPath, dstPath, dst.version())
	}
}

// ConvertVersion re-encodes a LiME container into dstPath, block by block,
// switching between v1 (uncompressed) and v2 (Snappy-framed) payloads
// without altering any range.
func ConvertVersion(srcPath, dstPath string, toVersion uint32) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening conversion source %s: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("statting %s: %w", srcPath, err)
	}
	srcLen := info.Size()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating conversion destination %s: %w", dstPath, err)
	}
	defer dst.Close()

	for {
		pos, err := src.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("getting source position: %w", err)
		}
		if pos >= srcLen {
			return nil
		}

		header, err := container.ReadHeader(src)
		if err != nil {
			return err
		}
		newHeader := container.Header{Start: header.Start, End: header.End, Version: toVersion}

		switch header.Version {
		case 1:
			if err := container.CopyBlock(newHeader, src, dst, false); err != nil {
				return fmt.Errorf("converting block [%#x,%#x): %w", header.Start, header.End, err)
			}
		case 2:
			reader := snappy.NewReader(src)
			if err := container.CopyBlock(newHeader, reader, dst, false); err != nil {
				return fmt.Errorf("converting block [%#x,%#x): %w", header.Start, header.End, err)
			}
			if _, err := src.Seek(8, io.SeekCurrent); err != nil {
				return fmt.Errorf("skipping compressed-length trailer: %w", err)
			}
		default:
			return fmt.Errorf("unsupported source header version %d: %w", header.Version, acqerr.ErrUnimplementedVersion)
		}
	}
}

// LimeToRaw strips the container framing, filling the gaps zero-block
// elision left behind with explicit zero padding so the output is a flat
// physical-address-addressed raw image.
func LimeToRaw(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening conversion source %s: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("statting %s: %w", srcPath, err)
	}
	srcLen := info.Size()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating conversion destination %s: %w", dstPath, err)
	}
	defer dst.Close()

	for {
		pos, err := src.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("getting source position: %w", err)
		}
		if pos >= srcLen {
			return nil
		}

		dstPos, err := dst.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("getting destination position: %w", err)
		}

		header, err := container.ReadHeader(src)
		if err != nil {
			return err
		}

		if err := padZeros(dst, header.Start-uint64(dstPos)); err != nil {
			return err
		}

		size := header.End - header.Start
		switch header.Version {
		case 1:
			if err := container.PageAlignedCopy(size, src, dst); err != nil {
				return fmt.Errorf("copying raw-converted block: %w", err)
			}
		case 2:
			reader := snappy.NewReader(src)
			if err := container.PageAlignedCopy(size, reader, dst); err != nil {
				return fmt.Errorf("copying raw-converted block: %w", err)
			}
			if _, err := src.Seek(8, io.SeekCurrent); err != nil {
				return fmt.Errorf("skipping compressed-length trailer: %w", err)
			}
		default:
			return fmt.Errorf("unsupported source header version %d: %w", header.Version, acqerr.ErrUnimplementedVersion)
		}
	}
}

// padZeros writes n zero bytes to dst in 1 MiB chunks, filling the gap a
// zero-elided block leaves behind in the raw output.
func padZeros(dst io.Writer, n uint64) error {
	zeros := make([]byte, oneMB)
	for n > oneMB {
		if _, err := dst.Write(zeros); err != nil {
			return fmt.Errorf("writing zero padding: %w", err)
		}
		n -= oneMB
	}
	if n > 0 {
		if _, err := dst.Write(zeros[:n]); err != nil {
			return fmt.Errorf("writing zero padding tail: %w", err)
		}
	}
	return nil
}

// RawToLime treats srcPath as one contiguous physical range starting at
// address 0, split by the container's maximum block size, and runs it
// through the snapshot engine as a raw source.
func RawToLime(srcPath, dstPath string, version uint32) error {
	size, err := source.RawFileSize(srcPath)
	if err != nil {
		return err
	}

	rawSource := source.Raw(srcPath)
	return snapshot.Create(snapshot.Request{
		Destination: dstPath,
		Ranges:      []iomem.Range{{Start: 0, End: size}},
		Version:     version,
		Source:      &rawSource,
	})
}
