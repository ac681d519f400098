package container

import (
	"io"

	"github.com/golang/snappy"
)

// CountingWriter forwards writes to an underlying io.Writer while tracking
// the number of bytes successfully written, with saturating addition so a
// pathological writer can never wrap the counter around to zero.
type CountingWriter struct {
	inner io.Writer
	count uint64
}

// NewCountingWriter wraps inner.
func NewCountingWriter(inner io.Writer) *CountingWriter {
	return &CountingWriter{inner: inner}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.inner.Write(p)
	c.count = saturatingAddU64(c.count, uint64(n))
	return n, err
}

// Count returns the number of bytes written so far.
func (c *CountingWriter) Count() uint64 { return c.count }

// Into returns the wrapped writer, consuming this CountingWriter.
func (c *CountingWriter) Into() io.Writer { return c.inner }

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// SnappyFramer layers a Snappy frame-format encoder over a CountingWriter
// so the compressed byte count needed for the v2 block trailer can be
// recovered without relying on the frame encoder exposing one itself.
type SnappyFramer struct {
	counter *CountingWriter
	frame   *snappy.Writer
}

// NewSnappyFramer wraps dst: writes go through the frame encoder, into the
// counting writer, into dst.
func NewSnappyFramer(dst io.Writer) *SnappyFramer {
	counter := NewCountingWriter(dst)
	return &SnappyFramer{
		counter: counter,
		frame:   snappy.NewBufferedWriter(counter),
	}
}

func (s *SnappyFramer) Write(p []byte) (int, error) {
	return s.frame.Write(p)
}

// Finalize flushes the frame encoder and returns the number of compressed
// bytes written along with the recovered underlying writer. The caller is
// responsible for appending the 8-byte little-endian trailer built from
// the returned count.
func (s *SnappyFramer) Finalize() (uint64, io.Writer, error) {
	if err := s.frame.Flush(); err != nil {
		return 0, nil, err
	}
	return s.counter.Count(), s.counter.Into(), nil
}
