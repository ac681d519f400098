package blob

import (
	"context"
	"fmt"
	"net/http"
	"os"
)

// UnexpectedStatusCodeError reports an HTTP PUT upload that completed but
// did not return a 2xx status.
type UnexpectedStatusCodeError struct {
	Status int
}

func (e *UnexpectedStatusCodeError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Status)
}

// progressReader wraps an *os.File, calling progress with each chunk's size
// as it streams out through the request body.
type progressReader struct {
	f        *os.File
	progress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 && r.progress != nil {
		r.progress(int64(n))
	}
	return n, err
}

// PutFile uploads path to url via a single streaming HTTP PUT, setting the
// x-ms-blob-type header Azure Blob Storage's plain PUT endpoint expects.
// Any non-2xx response is reported as UnexpectedStatusCodeError.
func PutFile(ctx context.Context, url string, path string, progress ProgressFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("statting %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &progressReader{f: f, progress: progress})
	if err != nil {
		return fmt.Errorf("building PUT request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("x-ms-blob-type", "BlockBlob")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UnexpectedStatusCodeError{Status: resp.StatusCode}
	}
	return nil
}
