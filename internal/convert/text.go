package convert

import (
	"bufio"
	"context"
	"encoding"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jw1912/bulletformat/internal/format"
	"github.com/jw1912/bulletformat/internal/loader"
)

// textFlushEvery is the number of parsed records buffered between writes.
const textFlushEvery = 16384

// maxReportedErrors caps the parse errors collected in TextSummary.Err.
const maxReportedErrors = 100

// maxLineLength bounds a single text record.
const maxLineLength = 1 << 20

// TextSummary reports the outcome of a text conversion. Lines that fail to
// parse are skipped; the first maxReportedErrors of them are kept in Err.
type TextSummary struct {
	Lines   int64
	Records int64
	Skipped int64
	Err     error
	Elapsed time.Duration
}

// FromText parses cfg.Input line by line with parse and writes the records
// to cfg.Output in input order. Blank lines are ignored. Malformed lines are
// logged and skipped; only I/O failures and cancellation abort the run.
func FromText[T encoding.BinaryAppender](ctx context.Context, cfg Config, parse func(string) (T, error)) (TextSummary, error) {
	cfg.setDefaults()
	log := cfg.Logger

	in, err := loader.OpenFile(cfg.Input)
	if err != nil {
		return TextSummary{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := loader.CreateFile(cfg.Output)
	if err != nil {
		return TextSummary{}, fmt.Errorf("create output: %w", err)
	}

	log.Info().
		Str("input", cfg.Input).
		Str("output", cfg.Output).
		Msg("starting text conversion")

	var (
		sum     TextSummary
		errs    *multierror.Error
		records = make([]T, 0, textFlushEvery)
		buf     = make([]byte, 0, textFlushEvery*format.RecordSize)
		start   = time.Now()
		lastLog = start
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	err = func() error {
		for scanner.Scan() {
			sum.Lines++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			rec, err := parse(line)
			if err != nil {
				var pe *format.ParseError
				if errors.As(err, &pe) {
					pe.Line = int(sum.Lines)
				} else {
					err = &format.ParseError{Line: int(sum.Lines), Text: line, Err: err}
				}
				sum.Skipped++
				log.Warn().Err(err).Int64("line", sum.Lines).Msg("skipping unparsable line")
				if sum.Skipped <= maxReportedErrors {
					errs = multierror.Append(errs, err)
				}
				continue
			}
			records = append(records, rec)

			if len(records) == textFlushEvery {
				if err := ctx.Err(); err != nil {
					return err
				}
				if buf, err = flushRecords(out, buf, records); err != nil {
					return err
				}
				sum.Records += int64(len(records))
				records = records[:0]

				if time.Since(lastLog) > cfg.LogInterval {
					logProgress(log, sum.Records, -1, start)
					lastLog = time.Now()
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		var err error
		if buf, err = flushRecords(out, buf, records); err != nil {
			return err
		}
		sum.Records += int64(len(records))
		return nil
	}()

	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	sum.Elapsed = time.Since(start)
	sum.Err = errs.ErrorOrNil()
	if err != nil {
		log.Error().Err(err).Int64("line", sum.Lines).Msg("text conversion aborted")
		return sum, err
	}

	log.Info().
		Int64("lines", sum.Lines).
		Int64("records", sum.Records).
		Int64("skipped", sum.Skipped).
		Dur("elapsed", sum.Elapsed).
		Msg("text conversion complete")
	return sum, nil
}
