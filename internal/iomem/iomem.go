// Package iomem parses the kernel's /proc/iomem physical-memory map into
// sorted, merged, and optionally chunked address ranges.
package iomem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/volatileacq/avml/internal/acqerr"
)

const iomemPath = "/proc/iomem"

const systemRAMSuffix = " : System RAM"

// Range is a half-open interval [Start, End) of physical byte addresses.
type Range struct {
	Start uint64
	End   uint64
}

// Len reports the number of bytes the range spans.
func (r Range) Len() uint64 { return r.End - r.Start }

// Parse reads /proc/iomem and returns every System RAM range it lists.
func Parse() ([]Range, error) {
	f, err := os.Open(iomemPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", iomemPath, err)
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader parses the /proc/iomem text table from r. Only top-level
// (non-indented) lines ending in " : System RAM" are kept; indented child
// lines are skipped entirely, matching the kernel's convention of nesting
// finer-grained device regions under a coarser System RAM parent.
//
// The two hex fields on each line are read as an inclusive [lo, hi] pair,
// as printed by the kernel, and converted to the half-open [lo, hi+1) form
// used throughout this package. A parsed [0, 0] pair means the reader lacks
// CAP_SYS_ADMIN and the kernel anonymised the entry; that is reported as
// acqerr.ErrPermissionDenied rather than as a zero-length range.
func ParseReader(r io.Reader) ([]Range, error) {
	var ranges []Range
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, " ") {
			continue
		}
		if !strings.HasSuffix(line, systemRAMSuffix) {
			continue
		}
		field := strings.SplitN(line, " ", 2)[0]
		bounds := strings.SplitN(field, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("parsing iomem line %q: %w", line, acqerr.ErrIntConversion)
		}
		lo, err := strconv.ParseUint(bounds[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing iomem range start %q: %w", bounds[0], err)
		}
		hi, err := strconv.ParseUint(bounds[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing iomem range end %q: %w", bounds[1], err)
		}
		if lo == 0 && hi == 0 {
			return nil, fmt.Errorf("reading %s: %w", iomemPath, acqerr.ErrPermissionDenied)
		}
		ranges = append(ranges, Range{Start: lo, End: hi + 1})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", iomemPath, err)
	}
	return ranges, nil
}

// Merge sorts ranges by Start and coalesces any that are adjacent or
// overlapping (prev.End >= next.Start). The input slice is not mutated.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	result := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if cur.End >= next.Start {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		result = append(result, cur)
		cur = next
	}
	result = append(result, cur)
	return result
}

// Split subdivides ranges into pieces no larger than maxSize bytes, used
// when converting an unstructured raw image into a chunked container.
func Split(ranges []Range, maxSize uint64) []Range {
	var result []Range
	for _, rg := range ranges {
		for rg.End-rg.Start > maxSize {
			result = append(result, Range{Start: rg.Start, End: rg.Start + maxSize})
			rg.Start += maxSize
		}
		if rg.Start != rg.End {
			result = append(result, rg)
		}
	}
	return result
}
