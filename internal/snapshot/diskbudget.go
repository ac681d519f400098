package snapshot

import (
	"fmt"
	"math"

	"golang.org/x/sys/unix"

	"github.com/volatileacq/avml/internal/acqerr"
	"github.com/volatileacq/avml/internal/iomem"
)

// extraPadding covers the LiME block header plus a safety margin for
// Snappy's worst case (compression is not guaranteed to shrink a block).
const extraPadding uint64 = 1024 * 100

// excessiveValue caps the float64 conversion used by the percentage check;
// values beyond this (more than 4 exabytes) have no business appearing in
// a disk-usage computation and are rejected rather than silently rounded.
const excessiveValue uint64 = 4_000_000_000_000_000_000

// EstimateDiskUsage sums chunkSize+extraPadding across ranges with
// saturating addition, giving a conservative upper bound on the bytes a
// snapshot of these ranges will occupy on disk.
func EstimateDiskUsage(ranges []iomem.Range) uint64 {
	var total uint64
	for _, r := range ranges {
		chunkSize := r.End - r.Start
		total = saturatingAdd(total, chunkSize)
		total = saturatingAdd(total, extraPadding)
	}
	return total
}

// CheckMaxUsage fails if estimated exceeds maxDiskUsageMB (expressed in
// MiB, as the CLI flag is).
func CheckMaxUsage(estimated uint64, maxDiskUsageMB uint64) error {
	if maxDiskUsageMB == 0 {
		return nil
	}
	allowed := maxDiskUsageMB * 1024 * 1024
	if estimated > allowed {
		return fmt.Errorf("%w", &acqerr.DiskUsageExceededError{Estimated: estimated, Allowed: allowed})
	}
	return nil
}

// DiskUsage reports the total and used byte counts of the filesystem
// containing path, via statfs.
type DiskUsage struct {
	Total uint64
	Used  uint64
}

// StatDiskUsage statfs(2)s the filesystem containing path.
func StatDiskUsage(path string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(stat.Bsize)
	total := stat.Blocks * bsize
	free := stat.Bavail * bsize
	var used uint64
	if total > free {
		used = total - free
	}
	return DiskUsage{Total: total, Used: used}, nil
}

// CheckMaxUsagePercentage fails if the estimated additional usage would
// push the filesystem's used fraction above maxPercentage, computed in
// float64 the way the original estimator does (with the excessiveValue
// safety cap applied before any cast).
func CheckMaxUsagePercentage(estimated uint64, usage DiskUsage, maxPercentage float64) error {
	if maxPercentage <= 0 {
		return nil
	}
	estimatedUsed := saturatingAdd(usage.Used, estimated)

	totalF, err := u64ToF64(usage.Total)
	if err != nil {
		return err
	}
	maxAllowedF := totalF * (maxPercentage / 100.0)
	maxAllowed, err := f64ToU64(maxAllowedF)
	if err != nil {
		return err
	}

	if estimatedUsed > maxAllowed {
		var allowed uint64
		if maxAllowed > usage.Used {
			allowed = maxAllowed - usage.Used
		}
		return fmt.Errorf("%w", &acqerr.DiskUsageExceededError{Estimated: estimated, Allowed: allowed})
	}
	return nil
}

// u64ToF64 converts value to float64, rejecting anything beyond
// excessiveValue so a cast-induced precision loss never silently
// corrupts a budget comparison.
func u64ToF64(value uint64) (float64, error) {
	if value > excessiveValue {
		return 0, fmt.Errorf("value %d too large to convert to float64: %w", value, acqerr.ErrIntConversion)
	}
	return float64(value), nil
}

// f64ToU64 truncates a non-negative float64 back to uint64.
func f64ToU64(value float64) (uint64, error) {
	if math.Signbit(value) {
		return 0, fmt.Errorf("value %v is not a positive float64: %w", value, acqerr.ErrIntConversion)
	}
	if value >= math.MaxUint64 {
		return math.MaxUint64, nil
	}
	return uint64(math.Trunc(value)), nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}

// CheckDiskBudget runs both the absolute and percentage checks named by
// the caller's non-zero fields, in the order the engine expects: absolute
// cap first, percentage cap second.
func CheckDiskBudget(imagePath string, ranges []iomem.Range, maxDiskUsageMB uint64, maxDiskUsagePercentage float64) error {
	estimate := EstimateDiskUsage(ranges)

	if maxDiskUsageMB > 0 {
		if err := CheckMaxUsage(estimate, maxDiskUsageMB); err != nil {
			return err
		}
	}

	if maxDiskUsagePercentage > 0 {
		usage, err := StatDiskUsage(imagePath)
		if err != nil {
			return err
		}
		if err := CheckMaxUsagePercentage(estimate, usage, maxDiskUsagePercentage); err != nil {
			return err
		}
	}

	return nil
}
