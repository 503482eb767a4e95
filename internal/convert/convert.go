// Package convert turns record files into the canonical packed layouts:
// text records through a parser, and binary records of one layout into
// another across several goroutines.
package convert

import (
	"context"
	"encoding"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jw1912/bulletformat/internal/format"
	"github.com/jw1912/bulletformat/internal/loader"
)

// Config configures a conversion run.
type Config struct {
	Input       string         // Source file, .zst and .gz are decompressed
	Output      string         // Destination file, .zst output is compressed
	Threads     int            // Conversion goroutines per batch (default GOMAXPROCS)
	BufferSize  int            // Loader refill budget in bytes (default 512MB)
	LogInterval time.Duration  // Progress log period (default 10s)
	Logger      zerolog.Logger // Logger
}

func (c *Config) setDefaults() {
	if c.Threads <= 0 {
		c.Threads = runtime.GOMAXPROCS(0)
	}
	if c.BufferSize <= 0 {
		c.BufferSize = loader.DefaultBufferSize
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 10 * time.Second
	}
}

// Summary reports what a binary conversion wrote.
type Summary struct {
	Records int64
	Batches int
	Elapsed time.Duration
}

// FromBinary reads records of type T from cfg.Input, converts each with conv
// and writes the results to cfg.Output in input order. Every batch is split
// into cfg.Threads contiguous chunks converted concurrently; the batch is
// written only once all chunks are done, so the output is identical for any
// thread count. The first conversion error aborts the run, leaving the
// output cut at the last complete batch.
func FromBinary[T any, P format.Decodable[T], U encoding.BinaryAppender](ctx context.Context, cfg Config, conv func(*T) (U, error)) (Summary, error) {
	cfg.setDefaults()
	log := cfg.Logger

	l, err := loader.Open[T, P](cfg.Input, cfg.BufferSize)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	out, err := loader.CreateFile(cfg.Output)
	if err != nil {
		return Summary{}, fmt.Errorf("create output: %w", err)
	}

	total := l.Len()
	batchSize := l.MaxBatchSize()
	log.Info().
		Str("input", cfg.Input).
		Str("output", cfg.Output).
		Int64("records", total).
		Int("threads", cfg.Threads).
		Int("batch_size", batchSize).
		Msg("starting binary conversion")

	var (
		sum       Summary
		converted = make([]U, 0, batchSize)
		buf       = make([]byte, 0, batchSize*format.RecordSize)
		start     = time.Now()
		lastLog   = start
	)

	err = l.MapBatchesThreaded(ctx, batchSize, func(batch []T) error {
		if cap(converted) < len(batch) {
			converted = make([]U, len(batch))
		}
		converted = converted[:len(batch)]

		if err := convertBatch(ctx, batch, converted, cfg.Threads, sum.Records, conv); err != nil {
			return err
		}

		var err error
		if buf, err = flushRecords(out, buf, converted); err != nil {
			return err
		}

		sum.Records += int64(len(batch))
		sum.Batches++
		if time.Since(lastLog) > cfg.LogInterval {
			logProgress(log, sum.Records, total, start)
			lastLog = time.Now()
		}
		return nil
	})

	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	sum.Elapsed = time.Since(start)
	if err != nil {
		log.Error().Err(err).Int64("records", sum.Records).Msg("binary conversion aborted")
		return sum, err
	}

	log.Info().
		Int64("records", sum.Records).
		Int("batches", sum.Batches).
		Dur("elapsed", sum.Elapsed).
		Msg("binary conversion complete")
	return sum, nil
}

// convertBatch fills dst[i] = conv(&src[i]) using up to threads goroutines,
// each owning one contiguous chunk. base is the index of src[0] in the file.
func convertBatch[T, U any](ctx context.Context, src []T, dst []U, threads int, base int64, conv func(*T) (U, error)) error {
	chunk := (len(src) + threads - 1) / threads
	if chunk == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	for lo := 0; lo < len(src); lo += chunk {
		hi := min(lo+chunk, len(src))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				u, err := conv(&src[i])
				if err != nil {
					return fmt.Errorf("record %d: %w", base+int64(i), err)
				}
				dst[i] = u
			}
			return nil
		})
	}
	return g.Wait()
}

func logProgress(log zerolog.Logger, done, total int64, start time.Time) {
	ev := log.Info().
		Int64("records", done).
		Float64("records_per_sec", float64(done)/time.Since(start).Seconds())
	if total > 0 {
		ev = ev.Int64("total", total).Float64("percent", 100*float64(done)/float64(total))
	}
	ev.Msg("conversion progress")
}

// flushRecords appends records to buf and writes them out, returning buf for
// reuse.
func flushRecords[T encoding.BinaryAppender](w io.Writer, buf []byte, records []T) ([]byte, error) {
	buf, err := format.AppendRecords(buf[:0], records)
	if err != nil {
		return buf, err
	}
	if _, err := w.Write(buf); err != nil {
		return buf, fmt.Errorf("write output: %w", err)
	}
	return buf, nil
}
