package blob

import (
	"strings"
	"testing"
)

func TestCalcConcurrency(t *testing.T) {
	const oneGB = 1024 * oneMB
	const oneTB = 1024 * oneGB

	cases := []struct {
		name            string
		fileSize        uint64
		blockSizeHint   uint64
		concurrencyHint uint64
		wantBlockSize   uint64
		wantConcurrency int
	}{
		{
			name:            "specified blocksize would overflow block count, use minimum",
			fileSize:        300 * oneMB,
			blockSizeHint:   1,
			concurrencyHint: 1,
			wantBlockSize:   blobMinBlockSize,
			wantConcurrency: 1,
		},
		{
			name:            "specifying block size of 1MB",
			fileSize:        30 * oneGB,
			blockSizeHint:   oneMB,
			concurrencyHint: 0,
			wantBlockSize:   blobMinBlockSize,
			wantConcurrency: 10,
		},
		{
			name:            "specifying block size of 100MB but no concurrency",
			fileSize:        30 * oneGB,
			blockSizeHint:   100 * oneMB,
			concurrencyHint: 0,
			wantBlockSize:   100 * oneMB,
			wantConcurrency: 5,
		},
		{
			name:            "uploading 400MB file, 5MB chunks, 10 uploaders",
			fileSize:        400 * oneMB,
			wantBlockSize:   5 * oneMB,
			wantConcurrency: 10,
		},
		{
			name:            "uploading 16GB file",
			fileSize:        16 * oneGB,
			wantBlockSize:   5 * oneMB,
			wantConcurrency: 10,
		},
		{
			name:            "uploading 32GB file",
			fileSize:        32 * oneGB,
			wantBlockSize:   5 * oneMB,
			wantConcurrency: 10,
		},
		{
			name:            "uploading 1TB file",
			fileSize:        oneTB,
			wantBlockSize:   100 * oneMB,
			wantConcurrency: 5,
		},
		{
			name:            "uploading 4TB file, 100MB chunks, 5 uploaders",
			fileSize:        4 * oneTB,
			wantBlockSize:   100 * oneMB,
			wantConcurrency: 5,
		},
		{
			name:            "uploading 4TB file with zero blocksize",
			fileSize:        4 * oneTB,
			blockSizeHint:   0,
			wantBlockSize:   100 * oneMB,
			wantConcurrency: 5,
		},
		{
			name:            "uploading 4TB file with zero concurrency",
			fileSize:        4 * oneTB,
			concurrencyHint: 0,
			wantBlockSize:   100 * oneMB,
			wantConcurrency: 5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blockSize, concurrency, err := CalcConcurrency(tc.fileSize, tc.blockSizeHint, tc.concurrencyHint)
			if err != nil {
				t.Fatalf("CalcConcurrency: %v", err)
			}
			if blockSize != tc.wantBlockSize {
				t.Errorf("blockSize = %d, want %d", blockSize, tc.wantBlockSize)
			}
			if concurrency != tc.wantConcurrency {
				t.Errorf("concurrency = %d, want %d", concurrency, tc.wantConcurrency)
			}
		})
	}
}

func TestCalcConcurrencyTooLarge(t *testing.T) {
	_, _, err := CalcConcurrency(blobMaxBlocks*blobMaxBlockSize+1, 0, 0)
	if err == nil {
		t.Error("expected error for file beyond maximum blob size")
	}
}

func TestBlockID(t *testing.T) {
	if got, want := BlockID(0), strings.Repeat("0", 32); got != want {
		t.Errorf("BlockID(0) = %q, want %q", got, want)
	}
	if got := BlockID(255); len(got) != 32 {
		t.Errorf("BlockID(255) length = %d, want 32", len(got))
	}
	if got, want := BlockID(255), strings.Repeat("0", 30)+"ff"; got != want {
		t.Errorf("BlockID(255) = %q, want %q", got, want)
	}
}

func TestParseSasToken(t *testing.T) {
	tok, err := ParseSasToken("https://myaccount.blob.core.windows.net/mycontainer/myblob?sas=data&here=1")
	if err != nil {
		t.Fatalf("ParseSasToken: %v", err)
	}
	if tok.Account != "myaccount" || tok.Container != "mycontainer" || tok.Path != "myblob" || tok.Token == "" {
		t.Errorf("ParseSasToken() = %+v", tok)
	}

	if _, err := ParseSasToken("https://myaccount.blob.core.windows.net/mycontainer?sas=data&here=1"); err == nil {
		t.Error("expected error for a SAS URL with no blob name")
	}
}
