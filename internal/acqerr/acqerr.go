// Package acqerr defines the error taxonomy shared by the snapshot engine,
// the container codec, the blob uploader, and the format converter, along
// with the indented cause-chain renderer used at process exit.
package acqerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes error categories without relying on Go's type-switch
// machinery at every call site; callers that need to branch on kind use
// errors.Is against the sentinel values below, those that only need to
// report the error use the wrapped chain directly.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindFormatUnsupported
	KindInvalidPadding
	KindUnimplementedVersion
	KindTooLarge
	KindIntConversion
	KindPermissionDenied
	KindLockedDownKcore
	KindElfParse
	KindUnableToCreateSnapshot
	KindDiskUsageEstimateExceeded
	KindNoConversionRequired
)

// Sentinel errors for use with errors.Is. Each is wrapped with static
// context via fmt.Errorf("...: %w", Err*) rather than being returned bare,
// so the cause chain always carries a human-readable top frame.
var (
	ErrFormatUnsupported         = errors.New("unsupported container format")
	ErrInvalidPadding            = errors.New("block header padding must be zero")
	ErrUnimplementedVersion      = errors.New("unimplemented container version")
	ErrTooLarge                  = errors.New("value too large")
	ErrIntConversion             = errors.New("integer conversion failed")
	ErrPermissionDenied          = errors.New("permission denied reading physical memory map")
	ErrLockedDownKcore           = errors.New("/proc/kcore is present but not usable")
	ErrElfParse                  = errors.New("malformed ELF core image")
	ErrNoConversionRequired      = errors.New("source and destination formats are identical")
	ErrDiskUsageEstimateExceeded = errors.New("estimated disk usage exceeds configured budget")
)

// KindOf reports which taxonomy bucket err falls into by walking the wrap
// chain looking for a known sentinel. Unrecognised errors (including plain
// *os.PathError from an unwrapped os.Open) are reported as KindIO, which is
// the correct default for this codebase: almost every unclassified failure
// here originates from a file or device operation.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrFormatUnsupported):
		return KindFormatUnsupported
	case errors.Is(err, ErrInvalidPadding):
		return KindInvalidPadding
	case errors.Is(err, ErrUnimplementedVersion):
		return KindUnimplementedVersion
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrIntConversion):
		return KindIntConversion
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrLockedDownKcore):
		return KindLockedDownKcore
	case errors.Is(err, ErrElfParse):
		return KindElfParse
	case errors.Is(err, ErrDiskUsageEstimateExceeded):
		return KindDiskUsageEstimateExceeded
	case errors.Is(err, ErrNoConversionRequired):
		return KindNoConversionRequired
	default:
		return KindIO
	}
}

// SnapshotSourceError wraps a per-source failure encountered during the
// snapshot engine's fallback loop (internal/snapshot). Cause is the
// underlying error returned by the memory-source adapter.
type SnapshotSourceError struct {
	Source string
	Cause  error
}

func (e *SnapshotSourceError) Error() string {
	return fmt.Sprintf("source %s failed", e.Source)
}

func (e *SnapshotSourceError) Unwrap() error { return e.Cause }

// DiskUsageExceededError carries the estimated and allowed byte counts so
// the CLI can report them without re-deriving the estimate.
type DiskUsageExceededError struct {
	Estimated uint64
	Allowed   uint64
}

func (e *DiskUsageExceededError) Error() string {
	return fmt.Sprintf("estimated disk usage %d bytes exceeds allowed %d bytes", e.Estimated, e.Allowed)
}

func (e *DiskUsageExceededError) Unwrap() error { return ErrDiskUsageEstimateExceeded }

// FormatChain renders err the way the CLI prints a fatal error to stderr:
// "error: <top>\ncaused by:\n    0: <next>\n    1: ...". Each subsequent
// line is produced by repeatedly calling errors.Unwrap; multi-cause errors
// produced by hashicorp/go-multierror are flattened one-line-per-child in
// encounter order, matching the original's single linear chain instead of
// multierror's own nested bullet format.
func FormatChain(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "error: %s", err)

	causes := causesOf(err)
	if len(causes) > 0 {
		b.WriteString("\ncaused by:\n")
		for i, c := range causes {
			fmt.Fprintf(&b, "%5d: %s\n", i, c)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func causesOf(err error) []error {
	var out []error
	cur := errors.Unwrap(err)
	for cur != nil {
		out = append(out, cur)
		cur = errors.Unwrap(cur)
	}
	return out
}
