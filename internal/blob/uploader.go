package blob

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProgressFunc is called with the byte count of each chunk as it finishes
// uploading (or streaming, for the plain HTTP PUT path).
type ProgressFunc func(delta int64)

// chunk is one block read by the producer and handed to a consumer.
type chunk struct {
	index int
	data  []byte
}

// Uploader drives the bounded producer/consumer pipeline against a single
// Azure block blob addressed by a SAS URL.
type Uploader struct {
	SasURL             string
	BlockSizeHintMB    uint64
	ConcurrencyHint    uint64
	Progress           ProgressFunc
}

// UploadFile streams path's contents to the configured blob destination.
func (u *Uploader) UploadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("statting %s: %w", path, err)
	}

	blockSize, concurrency, err := CalcConcurrency(uint64(info.Size()), u.BlockSizeHintMB*oneMB, u.ConcurrencyHint)
	if err != nil {
		return err
	}

	client, err := blockblob.NewClientWithNoCredential(u.SasURL, nil)
	if err != nil {
		return fmt.Errorf("creating blob client: %w", err)
	}

	uploadID := uuid.New().String()
	logrus.WithField("upload_id", uploadID).Debugf("starting upload of %s (%d bytes, %d blocks concurrency)", path, info.Size(), concurrency)

	return uploadStream(ctx, client, f, blockSize, concurrency, u.Progress)
}

// uploadStream runs the producer/consumer pipeline: a single producer reads
// fixed-size blocks from r and feeds them on a channel of capacity 1 (tight
// back-pressure), while a fixed pool of consumers stages each block and
// accumulates the committed block-id list. Any permanent consumer failure
// cancels the shared context, unblocking and cancelling the producer.
func uploadStream(ctx context.Context, client *blockblob.Client, r io.Reader, blockSize uint64, concurrency int, progress ProgressFunc) error {
	if concurrency < 1 {
		concurrency = 1
	}

	work := make(chan chunk, 1)
	blockIDs := make([]string, 0, 64)
	var mu sync.Mutex

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				if err := stageBlock(ctx, client, c); err != nil {
					errs <- err
					cancel()
					continue
				}
				mu.Lock()
				blockIDs = growBlockIDs(blockIDs, c.index, encodeBlockID(c.index))
				mu.Unlock()
				if progress != nil {
					progress(int64(len(c.data)))
				}
			}
		}()
	}

	produceErr := produce(ctx, r, blockSize, work)
	close(work)
	wg.Wait()
	close(errs)

	if produceErr != nil {
		return produceErr
	}
	for err := range errs {
		if err != nil {
			return err
		}
	}

	return commitBlockList(ctx, client, blockIDs)
}

// growBlockIDs assigns id at position index, growing the slice as needed.
// Indices arrive in file order from a single producer, but consumers may
// finish out of order, so the slice is pre-sized by index rather than
// appended to directly.
func growBlockIDs(ids []string, index int, id string) []string {
	for len(ids) <= index {
		ids = append(ids, "")
	}
	ids[index] = id
	return ids
}

func produce(ctx context.Context, r io.Reader, blockSize uint64, work chan<- chunk) error {
	buf := make([]byte, blockSize)
	for i := 0; ; i++ {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case work <- chunk{index: i, data: data}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading block %d: %w", i, err)
		}
	}
}

func stageBlock(ctx context.Context, client *blockblob.Client, c chunk) error {
	sum := md5.Sum(c.data)
	id := encodeBlockID(c.index)

	return backoff.Retry(func() error {
		_, err := client.StageBlock(ctx, id, newReadSeekCloser(c.data), &blockblob.StageBlockOptions{
			TransactionalContentMD5: sum[:],
		})
		return classifyRetry(err)
	}, backoff.NewExponentialBackOff())
}

func commitBlockList(ctx context.Context, client *blockblob.Client, blockIDs []string) error {
	return backoff.Retry(func() error {
		_, err := client.CommitBlockList(ctx, blockIDs, nil)
		return classifyRetry(err)
	}, backoff.NewExponentialBackOff())
}

// classifyRetry wraps transient failures (redirects, 5xx, 429, connection
// errors) so backoff.Retry retries them, and wraps everything else as
// backoff.Permanent so a 4xx (besides 429) fails fast.
func classifyRetry(err error) error {
	if err == nil {
		return nil
	}
	if isTransientAzureError(err) {
		logrus.Warnf("transient upload error, retrying: %v", err)
		return err
	}
	return backoff.Permanent(fmt.Errorf("uploading block: %w", err))
}

func encodeBlockID(i int) string {
	return base64.StdEncoding.EncodeToString([]byte(BlockID(i)))
}

// readSeekCloser adapts an in-memory block for the Azure SDK's streaming
// body requirement (io.ReadSeekCloser).
type readSeekCloser struct {
	*bytesReader
}

func newReadSeekCloser(data []byte) *readSeekCloser {
	return &readSeekCloser{bytesReader: newBytesReader(data)}
}

func (r *readSeekCloser) Close() error { return nil }
