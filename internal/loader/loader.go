// Package loader streams packed record files in bounded memory.
//
// A file is read in loads of whole batches: one refill reads up to the
// buffer budget, decodes it into records and hands the records to the
// consumer batch by batch. The file itself is never held in memory.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/jw1912/bulletformat/internal/format"
)

// ErrTrailingBytes is returned when the input ends inside a record. Every
// complete record before the fragment has already been delivered.
var ErrTrailingBytes = errors.New("input ends with a partial record")

// DefaultBufferSize is the refill budget used when none is given.
const DefaultBufferSize = 512 << 20

// loadsInFlight is the depth of the hand-off channel in MapBatchesThreaded.
const loadsInFlight = 2

// Loader reads records of type T from a single file. It holds only the path
// and sizes, so the Map methods may be called any number of times.
type Loader[T any, P format.Decodable[T]] struct {
	path       string
	bufferSize int
	headerSize int
	records    int64
}

// Open prepares a loader for path with a refill budget of bufferSize bytes.
// Compressed inputs are accepted; for those the record count is unknown.
func Open[T any, P format.Decodable[T]](path string, bufferSize int) (*Loader[T, P], error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if bufferSize < format.RecordSize {
		return nil, fmt.Errorf("buffer of %d bytes cannot hold a record", bufferSize)
	}

	var zero T
	l := &Loader[T, P]{
		path:       path,
		bufferSize: bufferSize,
		headerSize: P(&zero).HeaderSize(),
		records:    -1,
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if IsCompressed(path) {
		return l, nil
	}

	body := info.Size() - int64(l.headerSize)
	if body < 0 {
		return nil, fmt.Errorf("%s: %w: shorter than its %d byte header", path, ErrTrailingBytes, l.headerSize)
	}
	if rem := body % format.RecordSize; rem != 0 {
		return nil, fmt.Errorf("%s: %w: %d bytes", path, ErrTrailingBytes, rem)
	}
	l.records = body / format.RecordSize
	return l, nil
}

// Path returns the file the loader reads.
func (l *Loader[T, P]) Path() string { return l.path }

// Len returns the number of records in the file, or -1 when the input is
// compressed and the count is not known without reading it.
func (l *Loader[T, P]) Len() int64 { return l.records }

// MaxBatchSize is the largest batch a single refill can produce.
func (l *Loader[T, P]) MaxBatchSize() int {
	return l.bufferSize / format.RecordSize
}

// recordsPerLoad rounds the budget down to whole batches, at least one.
func (l *Loader[T, P]) recordsPerLoad(batchSize int) int {
	return batchSize * max(1, l.bufferSize/format.RecordSize/batchSize)
}

// open returns a reader positioned at the first record.
func (l *Loader[T, P]) open() (io.ReadCloser, error) {
	r, err := OpenFile(l.path)
	if err != nil {
		return nil, err
	}
	if l.headerSize > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(l.headerSize)); err != nil {
			r.Close()
			return nil, fmt.Errorf("skip header: %w", err)
		}
	}
	return r, nil
}

// readLoad fills buf from r and decodes the complete records into dst. It
// returns io.EOF once nothing is left. A partial trailing record yields the
// decoded records together with ErrTrailingBytes.
func readLoad[T any, P format.Decodable[T]](r io.Reader, buf []byte, dst []T) ([]T, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == io.EOF:
		return dst[:0], io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
	case err != nil:
		return dst[:0], err
	}

	whole := n - n%format.RecordSize
	dst, err = format.ReadRecords[T, P](dst[:0], buf[:whole])
	if err != nil {
		return dst, err
	}
	if whole != n {
		return dst, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, n-whole)
	}
	return dst, nil
}

func forEachBatch[T any](records []T, batchSize int, f func([]T) error) error {
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := f(records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// MapBatches calls f with consecutive batches of up to batchSize records, in
// file order. The batch slice is reused between calls, so f must not retain
// it. A non-nil error from f stops the scan and is returned.
func (l *Loader[T, P]) MapBatches(ctx context.Context, batchSize int, f func([]T) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size %d", batchSize)
	}
	r, err := l.open()
	if err != nil {
		return err
	}
	defer r.Close()

	perLoad := l.recordsPerLoad(batchSize)
	buf := make([]byte, perLoad*format.RecordSize)
	records := make([]T, 0, perLoad)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var readErr error
		records, readErr = readLoad[T, P](r, buf, records)
		if readErr == io.EOF {
			return nil
		}
		if err := forEachBatch(records, batchSize, f); err != nil {
			return err
		}
		if readErr != nil {
			return readErr
		}
		if len(records) < perLoad {
			return nil
		}
	}
}

// MapPositions calls f once per record, in file order.
func (l *Loader[T, P]) MapPositions(ctx context.Context, f func(*T) error) error {
	return l.MapBatches(ctx, l.MaxBatchSize(), func(batch []T) error {
		for i := range batch {
			if err := f(&batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

type load[T any] struct {
	records []T
	err     error
}

// MapBatchesThreaded is MapBatches with reading and decoding moved to a
// background goroutine, so the next load is prepared while f runs. f is
// still called on the caller's goroutine, in file order. At most
// loadsInFlight decoded loads wait between the reader and f.
func (l *Loader[T, P]) MapBatchesThreaded(ctx context.Context, batchSize int, f func([]T) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size %d", batchSize)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	perLoad := l.recordsPerLoad(batchSize)
	loads := make(chan load[T], loadsInFlight)

	// Recycled record slices: one being filled, loadsInFlight queued and
	// one held by the consumer. Allocated on first use.
	free := make(chan []T, loadsInFlight+2)
	allocated := 0

	// The reader owns the file: opening, skipping the header and every
	// refill happen on its goroutine.
	g.Go(func() error {
		defer close(loads)
		r, err := l.open()
		if err != nil {
			return err
		}
		defer r.Close()

		buf := make([]byte, perLoad*format.RecordSize)
		for {
			var records []T
			select {
			case records = <-free:
			default:
				if allocated < cap(free) {
					allocated++
					records = make([]T, 0, perLoad)
					break
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case records = <-free:
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			records, err := readLoad[T, P](r, buf, records)
			if err == io.EOF {
				return nil
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case loads <- load[T]{records: records, err: err}:
			}
			if err != nil || len(records) < perLoad {
				return nil
			}
		}
	})

	var consumeErr error
	for ld := range loads {
		if consumeErr == nil {
			consumeErr = forEachBatch(ld.records, batchSize, f)
			if consumeErr == nil {
				consumeErr = ld.err
			}
			if consumeErr != nil {
				cancel()
			}
		}
		free <- ld.records
	}

	waitErr := g.Wait()
	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		return waitErr
	}
	return ctx.Err()
}
