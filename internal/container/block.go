package container

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Block is a unit of snapshot work: Offset is where to seek the memory
// source before reading, Range is the physical interval it represents in
// the output container.
type Block struct {
	Offset uint64
	Range  struct {
		Start uint64
		End   uint64
	}
}

// PageAlignedCopy copies size bytes from src to dst using a sequence of
// PageSize-sized io.ReadFull calls, with a final shorter read for any tail.
// This is required for /dev/crash, /dev/mem, and /proc/kcore, which do not
// tolerate arbitrary-sized reads.
func PageAlignedCopy(size uint64, src io.Reader, dst io.Writer) error {
	buf := make([]byte, PageSize)
	for size >= PageSize {
		if _, err := io.ReadFull(src, buf); err != nil {
			return fmt.Errorf("reading page-aligned block: %w", err)
		}
		if _, err := dst.Write(buf); err != nil {
			return fmt.Errorf("writing block payload: %w", err)
		}
		size -= PageSize
	}
	if size > 0 {
		tail := buf[:size]
		if _, err := io.ReadFull(src, tail); err != nil {
			return fmt.Errorf("reading block tail: %w", err)
		}
		if _, err := dst.Write(tail); err != nil {
			return fmt.Errorf("writing block tail: %w", err)
		}
	}
	return nil
}

// CopyBlock writes header and the physical range it describes to dst,
// reading from src. For version 2 the range is first subdivided into
// pieces no larger than MaxBlockSize; each piece is independently eligible
// for zero-block elision. For version 1, a single piece larger than
// MaxBlockSize streams straight through without being buffered in memory.
// pageAligned selects PageSize-chunked reads, required by /dev/crash,
// /dev/mem, and /proc/kcore but not by ordinary raw files; see
// source.RequiresPageAlignedReads.
func CopyBlock(header Header, src io.Reader, dst io.Writer, pageAligned bool) error {
	if header.Version == 2 {
		for header.End-header.Start > MaxBlockSize {
			piece := Header{Start: header.Start, End: header.Start + MaxBlockSize, Version: header.Version}
			if err := copyBlockImpl(piece, src, dst, pageAligned); err != nil {
				return err
			}
			header.Start += MaxBlockSize
		}
	}
	if header.End > header.Start {
		return copyBlockImpl(header, src, dst, pageAligned)
	}
	return nil
}

func copyBlockImpl(header Header, src io.Reader, dst io.Writer, pageAligned bool) error {
	if header.End-header.Start > MaxBlockSize {
		return copyLargeBlock(header, src, dst, pageAligned)
	}
	return copyIfNonzero(header, src, dst, pageAligned)
}

// readBlock copies size bytes from src to dst, page-aligning the reads when
// required by the underlying device and reading straight through otherwise.
func readBlock(size uint64, src io.Reader, dst io.Writer, pageAligned bool) error {
	if pageAligned {
		return PageAlignedCopy(size, src, dst)
	}
	if _, err := io.CopyN(dst, src, int64(size)); err != nil {
		return fmt.Errorf("reading block: %w", err)
	}
	return nil
}

// copyIfNonzero reads an entire block into memory and writes
// header+payload[+trailer] only if the block is not entirely zero. This is
// the zero-page elision that keeps compressed snapshots compact: a block of
// all-zero bytes produces zero output bytes.
func copyIfNonzero(header Header, src io.Reader, dst io.Writer, pageAligned bool) error {
	size := header.End - header.Start
	buf := make([]byte, size)
	w := &sliceWriter{buf: buf}
	if err := readBlock(size, src, w, pageAligned); err != nil {
		return err
	}

	if isAllZero(buf) {
		return nil
	}

	if err := writeHeader(header, dst); err != nil {
		return err
	}
	return writePayload(header, buf, dst)
}

// copyLargeBlock streams a block whose size exceeds MaxBlockSize straight
// through without buffering it whole (only reachable for version 1, since
// version 2 ranges are pre-subdivided by CopyBlock).
func copyLargeBlock(header Header, src io.Reader, dst io.Writer, pageAligned bool) error {
	if err := writeHeader(header, dst); err != nil {
		return err
	}
	size := header.End - header.Start
	if header.Version == 1 {
		return readBlock(size, src, dst, pageAligned)
	}

	framer := NewSnappyFramer(dst)
	if err := readBlock(size, src, framer, pageAligned); err != nil {
		return err
	}
	return finalizeSnappy(framer, dst)
}

func writeHeader(header Header, dst io.Writer) error {
	buf, err := header.Encode()
	if err != nil {
		return err
	}
	if _, err := dst.Write(buf[:]); err != nil {
		return fmt.Errorf("writing block header: %w", err)
	}
	return nil
}

func writePayload(header Header, buf []byte, dst io.Writer) error {
	if header.Version == 1 {
		if _, err := dst.Write(buf); err != nil {
			return fmt.Errorf("writing block payload: %w", err)
		}
		return nil
	}

	framer := NewSnappyFramer(dst)
	if _, err := framer.Write(buf); err != nil {
		return fmt.Errorf("writing compressed payload: %w", err)
	}
	return finalizeSnappy(framer, dst)
}

func finalizeSnappy(framer *SnappyFramer, dst io.Writer) error {
	count, _, err := framer.Finalize()
	if err != nil {
		return fmt.Errorf("finalizing compressed payload: %w", err)
	}
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], count)
	if _, err := dst.Write(trailer[:]); err != nil {
		return fmt.Errorf("writing compressed-length trailer: %w", err)
	}
	return nil
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// sliceWriter is an io.Writer that fills a fixed, pre-allocated buffer in
// order; used to let PageAlignedCopy write page-by-page into a whole-block
// buffer for zero-scanning.
type sliceWriter struct {
	buf []byte
	off int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.off:], p)
	w.off += n
	return n, nil
}
