package convert

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/volatileacq/avml/internal/container"
)

func writeLimeFile(t *testing.T, path string, blocks []container.Header, payloads [][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer f.Close()
	for i, h := range blocks {
		if err := container.CopyBlock(h, bytes.NewReader(payloads[i]), f, false); err != nil {
			t.Fatalf("writing fixture block: %v", err)
		}
	}
}

func TestConvertVersionV1ToV2RoundTrips(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.lime")
	dstPath := filepath.Join(dir, "out.lime")

	payload := bytes.Repeat([]byte{0x42}, 9000)
	writeLimeFile(t, srcPath,
		[]container.Header{{Start: 0, End: uint64(len(payload)), Version: 1}},
		[][]byte{payload})

	if err := ConvertVersion(srcPath, dstPath, 2); err != nil {
		t.Fatalf("ConvertVersion: %v", err)
	}

	out, err := os.Open(dstPath)
	if err != nil {
		t.Fatalf("opening converted file: %v", err)
	}
	defer out.Close()

	header, err := container.ReadHeader(out)
	if err != nil {
		t.Fatalf("reading converted header: %v", err)
	}
	if header.Version != 2 {
		t.Errorf("converted header version = %d, want 2", header.Version)
	}
	if header.Start != 0 || header.End != uint64(len(payload)) {
		t.Errorf("converted header range = [%d,%d)", header.Start, header.End)
	}
}

func TestLimeToRawFillsGapsWithZeros(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.lime")
	dstPath := filepath.Join(dir, "out.raw")

	payload := bytes.Repeat([]byte{0x7f}, 4096)
	writeLimeFile(t, srcPath,
		[]container.Header{{Start: 4096, End: 4096 + uint64(len(payload)), Version: 1}},
		[][]byte{payload})

	if err := LimeToRaw(srcPath, dstPath); err != nil {
		t.Fatalf("LimeToRaw: %v", err)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("reading raw output: %v", err)
	}
	if len(got) != 4096+len(payload) {
		t.Fatalf("raw output length = %d, want %d", len(got), 4096+len(payload))
	}
	for i := 0; i < 4096; i++ {
		if got[i] != 0 {
			t.Fatalf("expected zero padding at byte %d, got %d", i, got[i])
		}
	}
	if !bytes.Equal(got[4096:], payload) {
		t.Error("payload region mismatch after LimeToRaw")
	}
}

func TestConvertIdentityPairRejected(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "a.raw")
	dstPath := filepath.Join(dir, "b.raw")
	if err := os.WriteFile(srcPath, []byte("x"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if err := Convert(Raw, Raw, srcPath, dstPath); err == nil {
		t.Error("expected error converting raw to raw")
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"raw": Raw, "lime": LimeV1, "lime_compressed": LimeV2}
	for s, want := range cases {
		got, err := ParseFormat(s)
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := ParseFormat("bogus"); err == nil {
		t.Error("expected error for an unrecognised format")
	}
}
