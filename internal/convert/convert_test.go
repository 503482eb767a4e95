package convert_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/jw1912/bulletformat/internal/convert"
	"github.com/jw1912/bulletformat/internal/format"
	"github.com/jw1912/bulletformat/internal/loader"
)

func marlinRecord(t *testing.T, i int) format.MarlinFormat {
	t.Helper()
	fs := []format.Feature{
		{Piece: format.King, Square: uint8(i % 32)},
		{Piece: format.King | format.ColourBit, Square: uint8(32 + (i/32)%32)},
	}
	if i%5 == 0 {
		fs = append(fs, format.Feature{Piece: 6, Square: uint8(32 + (i/32+1)%32)})
	}
	m, err := format.NewMarlinFormat(fs, i%2 == 1, 0, 0, 1, int16(i), uint8(i%3))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func writeMarlin(t *testing.T, path string, records []format.MarlinFormat) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := format.WriteRecords(f, records); err != nil {
		t.Fatal(err)
	}
}

func toChess(m *format.MarlinFormat) (format.ChessBoard, error) { return m.ToChessBoard() }

func TestFromBinaryThreadCountIndependent(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "marlin.bin")

	records := make([]format.MarlinFormat, 3001)
	for i := range records {
		records[i] = marlinRecord(t, i)
	}
	writeMarlin(t, input, records)

	var want bytes.Buffer
	for i := range records {
		b, err := records[i].ToChessBoard()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		data, _ := b.MarshalBinary()
		want.Write(data)
	}

	for _, threads := range []int{1, 2, 7, 8} {
		output := filepath.Join(dir, fmt.Sprintf("out-%d.bin", threads))
		sum, err := convert.FromBinary(context.Background(), convert.Config{
			Input:      input,
			Output:     output,
			Threads:    threads,
			BufferSize: 256 * format.RecordSize,
			Logger:     zerolog.Nop(),
		}, toChess)
		if err != nil {
			t.Fatalf("threads=%d: %v", threads, err)
		}
		if sum.Records != int64(len(records)) || sum.Batches != 12 {
			t.Errorf("threads=%d: records=%d batches=%d", threads, sum.Records, sum.Batches)
		}

		got, err := os.ReadFile(output)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want.Bytes()) {
			t.Errorf("threads=%d: output differs from sequential conversion", threads)
		}
	}
}

func TestFromBinaryAbortsOnCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "marlin.bin")
	output := filepath.Join(dir, "out.bin")

	records := make([]format.MarlinFormat, 500)
	for i := range records {
		records[i] = marlinRecord(t, i)
	}
	bad, err := format.NewMarlinFormat([]format.Feature{{Piece: 7, Square: 0}}, false, 0, 0, 1, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	records[250] = bad
	writeMarlin(t, input, records)

	sum, err := convert.FromBinary(context.Background(), convert.Config{
		Input:      input,
		Output:     output,
		Threads:    4,
		BufferSize: 100 * format.RecordSize,
		Logger:     zerolog.Nop(),
	}, toChess)
	if !errors.Is(err, format.ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
	if !strings.Contains(err.Error(), "record 250") {
		t.Errorf("error %q does not name the record", err)
	}
	if sum.Records != 200 {
		t.Errorf("Records = %d, want 200", sum.Records)
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 200*format.RecordSize {
		t.Errorf("output holds %d bytes, want the first two batches", info.Size())
	}
}

func TestFromBinaryCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "marlin.bin")
	output := filepath.Join(dir, "out.bin.zst")

	records := make([]format.MarlinFormat, 1000)
	for i := range records {
		records[i] = marlinRecord(t, i)
	}
	writeMarlin(t, input, records)

	if _, err := convert.FromBinary(context.Background(), convert.Config{
		Input:      input,
		Output:     output,
		BufferSize: 64 * format.RecordSize,
		Logger:     zerolog.Nop(),
	}, toChess); err != nil {
		t.Fatal(err)
	}

	l, err := loader.Open[format.ChessBoard](output, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	err = l.MapPositions(context.Background(), func(b *format.ChessBoard) error {
		want, _ := records[n].ToChessBoard()
		if *b != want {
			t.Errorf("record %d differs", n)
		}
		n++
		return nil
	})
	if err != nil || n != len(records) {
		t.Fatalf("read %d records, err = %v", n, err)
	}
}

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"

func TestFromTextSkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.txt")
	output := filepath.Join(dir, "data.bin")

	lines := []string{
		startFEN + " w KQkq - 0 1 | 20 | 0.5",
		"",
		startFEN + " w KQkq - 0 1 | twenty | 0.5",
		"8/5k2/8/3Q4/8/8/2K5/8 b - - 0 60 | 1200 | 1.0",
		"not a record",
		startFEN + " b KQkq - 0 1 | -5 | [0.0]",
	}
	if err := os.WriteFile(input, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sum, err := convert.FromText(context.Background(), convert.Config{
		Input:  input,
		Output: output,
		Logger: zerolog.Nop(),
	}, format.ParseChess)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Records != 3 || sum.Skipped != 2 || sum.Lines != 6 {
		t.Errorf("records/skipped/lines = %d/%d/%d", sum.Records, sum.Skipped, sum.Lines)
	}

	var merr *multierror.Error
	if !errors.As(sum.Err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("Err = %v", sum.Err)
	}
	var pe *format.ParseError
	if !errors.As(merr.Errors[0], &pe) || pe.Line != 3 || !errors.Is(pe, format.ErrBadScore) {
		t.Errorf("first error = %v, want bad score on line 3", merr.Errors[0])
	}
	if !errors.As(merr.Errors[1], &pe) || pe.Line != 5 || !errors.Is(pe, format.ErrMalformed) {
		t.Errorf("second error = %v, want malformed line 5", merr.Errors[1])
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	got, err := format.ReadRecords[format.ChessBoard](nil, data)
	if err != nil {
		t.Fatal(err)
	}
	for i, line := range []string{lines[0], lines[3], lines[5]} {
		want, _ := format.ParseChess(line)
		if i >= len(got) || got[i] != want {
			t.Errorf("record %d does not match %q", i, line)
		}
	}
}

func TestFromTextErrorCap(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.txt")

	var sb strings.Builder
	for i := 0; i < 150; i++ {
		sb.WriteString("garbage\n")
	}
	for i := 0; i < 20000; i++ {
		fmt.Fprintf(&sb, "7/7/7/7/7/7/x5o x 0 %d | %d | 0.5\n", i+1, i%1000)
	}
	if err := os.WriteFile(input, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	sum, err := convert.FromText(context.Background(), convert.Config{
		Input:  input,
		Output: filepath.Join(dir, "data.bin"),
		Logger: zerolog.New(&logs),
	}, format.ParseAtaxx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 150 || sum.Records != 20000 {
		t.Errorf("skipped/records = %d/%d", sum.Skipped, sum.Records)
	}
	var merr *multierror.Error
	if !errors.As(sum.Err, &merr) || len(merr.Errors) != 100 {
		t.Errorf("collected errors = %v", sum.Err)
	}

	// Only the collected errors are capped; every skipped line is logged.
	if n := strings.Count(logs.String(), "skipping unparsable line"); n != 150 {
		t.Errorf("logged %d skipped lines, want 150", n)
	}
	for _, want := range []string{`"line":150`, `line 150: `, `garbage`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("last bad line not reported, log missing %q", want)
		}
	}

	l, err := loader.Open[format.AtaxxBoard](filepath.Join(dir, "data.bin"), 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 20000 {
		t.Errorf("Len = %d", l.Len())
	}
	n := 0
	err = l.MapPositions(context.Background(), func(b *format.AtaxxBoard) error {
		if int(b.Fullm()) != n+1 {
			t.Fatalf("record %d has fullm %d", n, b.Fullm())
		}
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFromTextCancelled(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.txt")

	var sb strings.Builder
	for i := 0; i < 40000; i++ {
		sb.WriteString("7/7/7/7/7/7/7 x 0 1 | 0 | 0.5\n")
	}
	if err := os.WriteFile(input, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := convert.FromText(ctx, convert.Config{
		Input:  input,
		Output: filepath.Join(dir, "data.bin"),
		Logger: zerolog.Nop(),
	}, format.ParseAtaxx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
