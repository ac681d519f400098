package snapshot

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/volatileacq/avml/internal/container"
	"github.com/volatileacq/avml/internal/iomem"
	"github.com/volatileacq/avml/internal/source"
)

func TestCreateFromRawSourceProducesValidContainer(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "input.raw")
	payload := make([]byte, 8192)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if err := os.WriteFile(rawPath, payload, 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	dst := filepath.Join(dir, "out.lime")
	src := source.Raw(rawPath)
	req := Request{
		Destination: dst,
		Version:     1,
		Source:      &src,
	}

	if err := Create(req); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out, err := os.Open(dst)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer out.Close()

	var headerBuf [container.HeaderSize]byte
	if _, err := io.ReadFull(out, headerBuf[:]); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	header, err := container.DecodeHeader(headerBuf)
	if err != nil {
		t.Fatalf("decoding header: %v", err)
	}
	if header.Start != 0 || header.End != uint64(len(payload)) {
		t.Errorf("header range = [%d,%d), want [0,%d)", header.Start, header.End, len(payload))
	}
	if header.Version != 1 {
		t.Errorf("header version = %d, want 1", header.Version)
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(out, got); err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("payload mismatch at byte %d: got %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestCreateDiskBudgetExceededShortCircuits(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "input.raw")
	if err := os.WriteFile(rawPath, make([]byte, 2_000_000), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	dst := filepath.Join(dir, "out.lime")
	src := source.Raw(rawPath)
	req := Request{
		Destination:    dst,
		Ranges:         []iomem.Range{{Start: 0, End: 2_000_000}},
		Version:        1,
		Source:         &src,
		MaxDiskUsageMB: 1, // budget is 1MiB, well below a ~2MB estimate
	}

	err := Create(req)
	if err == nil {
		t.Fatal("expected disk budget error")
	}
}

func TestProbeOKRejectsUnspecifiedKind(t *testing.T) {
	if probeOK(source.Source{}) {
		t.Error("probeOK should reject an unspecified source kind")
	}
}
