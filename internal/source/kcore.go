package source

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"

	"github.com/volatileacq/avml/internal/acqerr"
	"github.com/volatileacq/avml/internal/iomem"
)

// ELF parsing is done with the standard library's debug/elf reader: kcore
// translation is a narrow, self-contained concern (enumerate PT_LOAD
// segments of a pseudo-file) with no corresponding third-party package in
// the retrieval pack, so this is one of the few places this repo reaches
// into the standard library rather than an ecosystem dependency — see
// DESIGN.md.

// Segment is a PT_LOAD program header translated into the same
// (offset, physical range) shape as Block, representing a contiguous
// piece of kernel virtual memory backed by physical memory.
type Segment struct {
	Offset uint64
	Range  iomem.Range
}

// OpenKcore opens /proc/kcore, parses its ELF PT_LOAD segments, and
// derives the constant virtual-to-physical translation offset using the
// first physical range supplied by the caller (the iomem enumerator's
// first entry, by convention the lowest RAM range on the system).
func OpenKcore(memoryRanges []iomem.Range) (*os.File, []Segment, error) {
	if len(memoryRanges) == 0 {
		return nil, nil, fmt.Errorf("no physical memory ranges to translate kcore against")
	}

	f, err := os.Open(kcorePath)
	if err != nil {
		return nil, nil, permissionOrIOError(kcorePath, err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("parsing /proc/kcore ELF structures: %w: %w", err, acqerr.ErrElfParse)
	}

	var loads []*elf.Prog
	for _, p := range ef.Progs {
		if p.Type == elf.PT_LOAD {
			loads = append(loads, p)
		}
	}
	if len(loads) == 0 {
		f.Close()
		return nil, nil, fmt.Errorf("no PT_LOAD segments in /proc/kcore: %w", acqerr.ErrElfParse)
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].Vaddr < loads[j].Vaddr })

	translation := loads[0].Vaddr - memoryRanges[0].Start

	segments := make([]Segment, 0, len(loads))
	for _, p := range loads {
		physStart := p.Vaddr - translation
		segments = append(segments, Segment{
			Offset: p.Off,
			Range:  iomem.Range{Start: physStart, End: physStart + p.Memsz},
		})
	}

	return f, segments, nil
}

// FindKcoreBlocks intersects the requested physical ranges with the
// kcore segment list, producing the block list the engine copies.
//
// For each requested range r, walk segments in order. For each segment
// whose range contains r.Start: if it also contains r.End-1, emit one
// block covering all of r and stop; otherwise emit a block covering only
// up to the segment's end, advance r.Start past it, and keep searching.
// A range that runs entirely through a gap between segments is silently
// dropped (treated as unmapped), matching the kernel's own behavior of
// not describing memory holes in kcore's segment table.
func FindKcoreBlocks(requested []iomem.Range, segments []Segment) []Block {
	var blocks []Block
	for _, r := range requested {
		for r.Start < r.End {
			seg, ok := findContaining(segments, r.Start)
			if !ok {
				// Entire remainder of this range falls in a gap.
				break
			}
			segOffset := seg.Offset + (r.Start - seg.Range.Start)
			if seg.Range.End >= r.End {
				blocks = append(blocks, Block{Offset: segOffset, Range: r})
				break
			}
			blocks = append(blocks, Block{
				Offset: segOffset,
				Range:  iomem.Range{Start: r.Start, End: seg.Range.End},
			})
			r.Start = seg.Range.End
		}
	}
	return blocks
}

func findContaining(segments []Segment, addr uint64) (Segment, bool) {
	for _, seg := range segments {
		if addr >= seg.Range.Start && addr < seg.Range.End {
			return seg, true
		}
	}
	return Segment{}, false
}
