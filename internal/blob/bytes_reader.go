package blob

import "bytes"

// bytesReader is a tiny wrapper around bytes.Reader, named distinctly so
// readSeekCloser's embedding reads clearly at the call site.
type bytesReader struct {
	*bytes.Reader
}

func newBytesReader(data []byte) *bytesReader {
	return &bytesReader{Reader: bytes.NewReader(data)}
}
