// Package snapshot implements the source-selection fallback policy, the
// disk-budget pre-flight check, and the per-block write orchestration that
// turns a list of physical memory ranges into a finished container file.
package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/volatileacq/avml/internal/acqerr"
	"github.com/volatileacq/avml/internal/container"
	"github.com/volatileacq/avml/internal/iomem"
	"github.com/volatileacq/avml/internal/source"
)

// Request describes one invocation of the engine: where to write, which
// ranges to capture, which version container to produce, and the optional
// caller-named source and disk-budget caps.
type Request struct {
	Destination            string
	IsStdout               bool
	Ranges                 []iomem.Range
	Version                uint32
	Source                 *source.Source // nil selects the fallback policy
	MaxDiskUsageMB         uint64
	MaxDiskUsagePercentage float64
}

// stdoutProbeOrder is the Open Question resolution documented in
// DESIGN.md: kcore first, then crash, then mem.
var stdoutProbeOrder = []source.Source{source.ProcKcore(), source.DevCrash(), source.DevMem()}

// fileFallbackOrder is the order tried when writing to a regular file and
// no source was named explicitly.
var fileFallbackOrder = []source.Source{source.DevCrash(), source.ProcKcore(), source.DevMem()}

// Create runs the source-selection policy and writes the resulting
// container to req.Destination.
func Create(req Request) error {
	if req.Source != nil {
		if err := attempt(req, *req.Source, req.Destination); err != nil {
			return fmt.Errorf("creating snapshot from source %s: %w", req.Source, &acqerr.SnapshotSourceError{Source: req.Source.String(), Cause: err})
		}
		return nil
	}

	if req.IsStdout {
		for _, s := range stdoutProbeOrder {
			if !probeOK(s) {
				logrus.Debugf("stdout probe: %s not usable, skipping", s)
				continue
			}
			logrus.Debugf("stdout probe: using %s", s)
			return attempt(req, s, req.Destination)
		}
		return fmt.Errorf("no usable memory source for stdout: %w", acqerr.ErrLockedDownKcore)
	}

	var merr *multierror.Error
	for _, s := range fileFallbackOrder {
		logrus.Debugf("attempting snapshot source %s", s)
		err := attempt(req, s, req.Destination)
		if err == nil {
			return nil
		}
		if acqerr.KindOf(err) == acqerr.KindDiskUsageEstimateExceeded {
			logrus.Warnf("source %s aborted: disk usage budget exceeded, not trying further sources", s)
			return err
		}
		logrus.Warnf("source %s failed: %v", s, err)
		merr = multierror.Append(merr, &acqerr.SnapshotSourceError{Source: s.String(), Cause: err})
	}
	if merr == nil {
		return fmt.Errorf("no memory sources attempted")
	}
	return fmt.Errorf("unable to create snapshot, all sources failed: %w", merr.ErrorOrNil())
}

// probeOK runs the cheap, non-destructive size/openable checks used for the
// stdout probe: no write attempt, no fallback retry (stdout cannot be
// rewound on failure).
func probeOK(s source.Source) bool {
	switch s.Kind {
	case source.KindProcKcore:
		return source.IsKcoreOK()
	case source.KindDevCrash:
		return source.CanOpen("/dev/crash")
	case source.KindDevMem:
		return source.CanOpen("/dev/mem")
	default:
		return false
	}
}

// attempt opens dst fresh, runs the disk-budget check, opens s, and writes
// every requested range as a block.
func attempt(req Request, s source.Source, dst string) error {
	if s.Kind == source.KindProcKcore {
		if !source.IsKcoreOK() {
			return fmt.Errorf("/proc/kcore present but unusable: %w", acqerr.ErrLockedDownKcore)
		}
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating destination %s: %w", dst, err)
	}
	defer out.Close()

	if err := CheckDiskBudget(dst, req.Ranges, req.MaxDiskUsageMB, req.MaxDiskUsagePercentage); err != nil {
		return err
	}

	switch s.Kind {
	case source.KindDevCrash:
		return writePhys(req, "/dev/crash", true, out)
	case source.KindDevMem:
		return writePhys(req, "/dev/mem", false, out)
	case source.KindProcKcore:
		return writeKcore(req, out)
	case source.KindRaw:
		return writeRaw(req, s.Path, out)
	default:
		return fmt.Errorf("unspecified memory source")
	}
}

func writePhys(req Request, path string, isCrash bool, out *os.File) error {
	f, err := source.OpenPhys(path)
	if err != nil {
		return err
	}
	defer f.Close()

	blocks := source.PhysBlocks(req.Ranges, isCrash)
	return writeBlocks(req.Version, blocks, f, out, source.RequiresPageAlignedReads(path))
}

func writeKcore(req Request, out *os.File) error {
	f, segments, err := source.OpenKcore(req.Ranges)
	if err != nil {
		return err
	}
	defer f.Close()

	blocks := source.FindKcoreBlocks(req.Ranges, segments)
	return writeBlocks(req.Version, blocks, f, out, source.RequiresPageAlignedReads("/proc/kcore"))
}

func writeRaw(req Request, path string, out *os.File) error {
	f, err := source.OpenPhys(path)
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := source.RawFileSize(path)
	if err != nil {
		return err
	}
	blocks := source.RawBlocks(size, container.MaxBlockSize)
	return writeBlocks(req.Version, blocks, f, out, source.RequiresPageAlignedReads(path))
}

// writeBlocks seeks src to each block's offset (only when non-zero) and
// delegates to container.CopyBlock. pageAligned is true for /dev/crash,
// /dev/mem, and /proc/kcore, which refuse arbitrary-sized reads; an
// ordinary raw file is read straight through.
func writeBlocks(version uint32, blocks []source.Block, src io.ReadSeeker, dst io.Writer, pageAligned bool) error {
	for _, b := range blocks {
		if b.Offset > 0 {
			if _, err := src.Seek(int64(b.Offset), io.SeekStart); err != nil {
				return fmt.Errorf("seeking to block offset %#x: %w", b.Offset, err)
			}
		}
		header := container.Header{Start: b.Range.Start, End: b.Range.End, Version: version}
		if err := container.CopyBlock(header, src, dst, pageAligned); err != nil {
			return fmt.Errorf("copying block [%#x,%#x): %w", b.Range.Start, b.Range.End, err)
		}
	}
	return nil
}
