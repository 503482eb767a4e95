package stats

import (
	"context"
	"encoding"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/jw1912/bulletformat/internal/format"
)

func TestMomentsMatchSinglePass(t *testing.T) {
	data := []float64{3, -7, 12, 0, 5, 5, 19, -2, 8}
	wantMean, wantVar := stat.MeanVariance(data, nil)

	for _, split := range [][]int{{9}, {1, 8}, {4, 5}, {2, 2, 2, 3}, {1, 1, 1, 1, 1, 1, 1, 1, 1}} {
		var m moments
		off := 0
		for _, n := range split {
			part := data[off : off+n]
			mean, variance := stat.MeanVariance(part, nil)
			if n < 2 {
				variance = 0
			}
			m.merge(n, mean, variance)
			off += n
		}
		if math.Abs(m.mean-wantMean) > 1e-9 {
			t.Errorf("split %v: mean %v, want %v", split, m.mean, wantMean)
		}
		if math.Abs(m.stdDev()-math.Sqrt(wantVar)) > 1e-9 {
			t.Errorf("split %v: stddev %v, want %v", split, m.stdDev(), math.Sqrt(wantVar))
		}
	}
}

func TestSummarize(t *testing.T) {
	kings := func() []format.Feature {
		return []format.Feature{
			{Piece: format.King, Square: 4},
			{Piece: format.King | format.ColourBit, Square: 60},
		}
	}
	var records []format.ChessBoard
	for i, outcome := range []uint8{format.OutcomeWin, format.OutcomeDraw, format.OutcomeDraw, format.OutcomeLoss} {
		fs := kings()
		if i == 0 {
			fs = append(fs, format.Feature{Piece: format.Queen, Square: 27})
		}
		b, err := format.EncodeChessBoard(fs, int16(10*(i+1)), outcome)
		if err != nil {
			t.Fatal(err)
		}
		records = append(records, b)
	}

	path := filepath.Join(t.TempDir(), "data.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := format.WriteRecords(f, records); err != nil {
		t.Fatal(err)
	}
	f.Close()

	sum, err := Summarize[format.ChessBoard](context.Background(), path, Options{
		BufferSize: 3 * format.RecordSize,
		Blend:      1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if sum.Records != 4 {
		t.Errorf("Records = %d", sum.Records)
	}
	if sum.ScoreMean != 25 {
		t.Errorf("ScoreMean = %v", sum.ScoreMean)
	}
	if want := math.Sqrt(500.0 / 3); math.Abs(sum.ScoreStdDev-want) > 1e-9 {
		t.Errorf("ScoreStdDev = %v, want %v", sum.ScoreStdDev, want)
	}
	if sum.ScoreMin != 10 || sum.ScoreMax != 40 {
		t.Errorf("score range = [%d, %d]", sum.ScoreMin, sum.ScoreMax)
	}
	if sum.Outcomes != [3]int64{1, 2, 1} {
		t.Errorf("Outcomes = %v", sum.Outcomes)
	}
	if sum.MeanFeatures != 2.25 {
		t.Errorf("MeanFeatures = %v", sum.MeanFeatures)
	}
	if sum.MeanTarget != 0.5 {
		t.Errorf("MeanTarget = %v", sum.MeanTarget)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	sum, err := Summarize[format.AtaxxBoard](context.Background(), path, Options{BufferSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Records != 0 || sum.ScoreMin != 0 || sum.ScoreMax != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestSummarizeCorruptOutcomes(t *testing.T) {
	kings := []format.Feature{
		{Piece: format.King, Square: 4},
		{Piece: format.King | format.ColourBit, Square: 60},
	}
	dir := t.TempDir()

	var marlin []format.MarlinFormat
	for _, r := range []struct {
		black  bool
		score  int16
		result uint8
	}{
		{false, 100, format.OutcomeWin},
		{true, 7, 3},
		{false, -50, format.OutcomeLoss},
	} {
		m, err := format.NewMarlinFormat(kings, r.black, 0, 0, 1, r.score, r.result)
		if err != nil {
			t.Fatal(err)
		}
		marlin = append(marlin, m)
	}

	var cudad []format.CudADFormat
	for _, wdl := range []int8{1, 5, -1} {
		c, err := format.NewCudADFormat(kings, false, 1, 0, 0, 20, wdl)
		if err != nil {
			t.Fatal(err)
		}
		cudad = append(cudad, c)
	}

	marlinPath := filepath.Join(dir, "marlin.bin")
	cudadPath := filepath.Join(dir, "cudad.bin")
	writeFile(t, marlinPath, marlin)
	writeFile(t, cudadPath, cudad)

	opts := Options{BufferSize: 1024}
	sum, err := Summarize[format.MarlinFormat](context.Background(), marlinPath, opts)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Records != 3 || sum.Corrupt != 1 {
		t.Errorf("marlin records/corrupt = %d/%d", sum.Records, sum.Corrupt)
	}
	if sum.Outcomes != [3]int64{1, 0, 1} {
		t.Errorf("marlin Outcomes = %v", sum.Outcomes)
	}
	if sum.ScoreMean != 25 || sum.MeanFeatures != 2 {
		t.Errorf("marlin mean score %v, features %v", sum.ScoreMean, sum.MeanFeatures)
	}

	sum, err = Summarize[format.CudADFormat](context.Background(), cudadPath, opts)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Records != 3 || sum.Corrupt != 1 {
		t.Errorf("cudad records/corrupt = %d/%d", sum.Records, sum.Corrupt)
	}
	if sum.Outcomes != [3]int64{1, 0, 1} {
		t.Errorf("cudad Outcomes = %v, corrupt record counted as a draw", sum.Outcomes)
	}
}

func writeFile[T encoding.BinaryAppender](t *testing.T, path string, records []T) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := format.WriteRecords(f, records); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}
