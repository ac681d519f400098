// Package blob implements the block-blob concurrent uploader: SAS-token URL
// parsing, block-size/concurrency selection, a bounded producer/consumer
// upload pipeline with per-block MD5 and retry, and a plain HTTP PUT
// fallback for destinations without a blob-service SAS URL.
package blob

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/volatileacq/avml/internal/acqerr"
)

const oneMB = 1024 * 1024

// Azure Blob Storage service limits and the throughput tiers this package
// picks between. See https://docs.microsoft.com/azure/storage/blobs/scalability-targets.
const (
	blobMaxBlocks       = 50_000
	blobMaxBlockSize    = 4000 * oneMB
	blobMaxFileSize     = blobMaxBlocks * blobMaxBlockSize
	blobMinBlockSize    = 5 * oneMB   // minimum to trigger high-throughput block blobs
	reasonableBlockSize = 100 * oneMB // used for very large files
	maxConcurrency      = 10          // keeps 1000 concurrent hosts under a 20k req/s account quota
)

// CalcConcurrency picks a (blockSize, concurrency) pair for uploading a file
// of fileSize bytes. blockSizeHint and concurrencyHint are the user-supplied
// overrides; 0 means "let the engine choose".
func CalcConcurrency(fileSize uint64, blockSizeHint uint64, concurrencyHint uint64) (blockSize uint64, concurrency int, err error) {
	if fileSize > blobMaxFileSize {
		return 0, 0, fmt.Errorf("file size %d exceeds maximum blob size %d: %w", fileSize, blobMaxFileSize, acqerr.ErrTooLarge)
	}

	switch {
	case blockSizeHint == 0:
		blockSize = defaultBlockSize(fileSize)
	case blockSizeHint <= blobMinBlockSize:
		blockSize = blobMinBlockSize
	default:
		blockSize = blockSizeHint
	}
	if blockSize > blobMaxBlockSize {
		blockSize = blobMaxBlockSize
	}

	switch {
	case concurrencyHint == 0:
		concurrency = defaultConcurrency(blockSize)
	default:
		concurrency = int(concurrencyHint)
	}

	return blockSize, concurrency, nil
}

func defaultBlockSize(fileSize uint64) uint64 {
	switch {
	case fileSize < blobMinBlockSize*blobMaxBlocks:
		return blobMinBlockSize
	case fileSize < reasonableBlockSize*blobMaxBlocks:
		return reasonableBlockSize
	default:
		return (fileSize + blobMaxBlocks - 1) / blobMaxBlocks
	}
}

// defaultConcurrency picks min(10, 500 MiB / blockSize), minimum 1.
func defaultConcurrency(blockSize uint64) int {
	budget := uint64(500 * oneMB)
	n := budget / blockSize
	if n == 0 {
		return 1
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return int(n)
}

// SasToken is the account, container, blob path, and query-string token
// parsed out of a fully-qualified SAS URL, e.g.
// https://account.blob.core.windows.net/container/blob/path?sv=...&sig=...
type SasToken struct {
	Account   string
	Container string
	Path      string
	Token     string
}

// ParseSasToken extracts a SasToken from a SAS URL. The host's first
// dot-separated label is the account name, the first path segment is the
// container, and the remainder of the path is the blob key (which must be
// non-empty).
func ParseSasToken(raw string) (SasToken, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SasToken{}, fmt.Errorf("parsing SAS URL: %w", err)
	}

	host := u.Hostname()
	if host == "" {
		return SasToken{}, fmt.Errorf("invalid SAS token: missing host")
	}
	account := strings.SplitN(host, ".", 2)[0]

	if u.RawQuery == "" {
		return SasToken{}, fmt.Errorf("invalid SAS token: missing query string")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" {
		return SasToken{}, fmt.Errorf("invalid SAS token: missing container")
	}
	container := segments[0]
	path := strings.Join(segments[1:], "/")
	if path == "" {
		return SasToken{}, fmt.Errorf("invalid SAS token: missing blob name")
	}

	return SasToken{Account: account, Container: container, Path: path, Token: u.RawQuery}, nil
}

// BlockID renders the ordinal index i as the 32-lowercase-hex-digit block
// identifier used consistently between StageBlock and CommitBlockList.
func BlockID(i int) string {
	return fmt.Sprintf("%032x", i)
}
