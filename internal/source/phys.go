package source

import (
	"fmt"
	"os"

	"github.com/volatileacq/avml/internal/iomem"
)

// PhysBlocks builds the block list for a direct physical-memory source
// (/dev/crash or /dev/mem): each requested range maps
// one-to-one onto a block whose Offset equals its Start. /dev/crash
// additionally truncates each range's end down to the nearest 4 KiB
// boundary, since it refuses reads that cross a page it doesn't back.
func PhysBlocks(ranges []iomem.Range, isCrash bool) []Block {
	blocks := make([]Block, 0, len(ranges))
	for _, r := range ranges {
		end := r.End
		if isCrash {
			end = (r.End >> 12) << 12
		}
		blocks = append(blocks, Block{
			Offset: r.Start,
			Range:  iomem.Range{Start: r.Start, End: end},
		})
	}
	return blocks
}

// OpenPhys opens a device or raw file for reading, translating a
// permission error into acqerr.ErrPermissionDenied so the engine's
// fallback loop can report it consistently with the iomem parser.
func OpenPhys(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, permissionOrIOError(path, err)
	}
	return f, nil
}

// RawBlocks splits a raw file's single implicit range [0, size) into
// pieces no larger than maxSize, each block's Offset equal to its Range's
// Start (the file has no separate physical addressing of its own).
func RawBlocks(size uint64, maxSize uint64) []Block {
	ranges := iomem.Split([]iomem.Range{{Start: 0, End: size}}, maxSize)
	blocks := make([]Block, 0, len(ranges))
	for _, r := range ranges {
		blocks = append(blocks, Block{Offset: r.Start, Range: r})
	}
	return blocks
}

// RawFileSize stats path and returns its size, wrapped with enough context
// to be useful in a fallback-chain error message.
func RawFileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("statting raw source %s: %w", path, err)
	}
	if info.Size() < 0 {
		return 0, fmt.Errorf("raw source %s reports negative size", path)
	}
	return uint64(info.Size()), nil
}
