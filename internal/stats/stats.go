// Package stats summarises record files: score distribution, outcome
// balance and board density.
package stats

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jw1912/bulletformat/internal/format"
	"github.com/jw1912/bulletformat/internal/loader"
)

// Record is the constraint for types Summarize can read.
type Record[T any] interface {
	format.Decodable[T]
	format.BulletFormat
	FeatureCount() int
	CheckResult() error
}

// Options configures Summarize.
type Options struct {
	BufferSize int     // Loader refill budget in bytes
	Blend      float32 // Weight of the game result in the blended target
	Scale      float32 // Sigmoid scale applied to scores (default 1/400)
}

// Summary describes a record file. Records with a corrupt outcome byte are
// counted in Corrupt and left out of every other figure.
type Summary struct {
	Records      int64
	Corrupt      int64
	ScoreMean    float64
	ScoreStdDev  float64
	ScoreMin     int16
	ScoreMax     int16
	Outcomes     [3]int64 // loss, draw, win from the side to move
	MeanFeatures float64
	MeanTarget   float64 // mean blended training target
}

// moments merges per-batch mean and variance into a running total.
type moments struct {
	n    float64
	mean float64
	m2   float64
}

func (m *moments) merge(n int, mean, variance float64) {
	if n == 0 {
		return
	}
	bn := float64(n)
	bm2 := 0.0
	if n > 1 {
		bm2 = variance * (bn - 1)
	}
	total := m.n + bn
	delta := mean - m.mean
	m.mean += delta * bn / total
	m.m2 += bm2 + delta*delta*m.n*bn/total
	m.n = total
}

func (m *moments) stdDev() float64 {
	if m.n < 2 {
		return 0
	}
	return math.Sqrt(m.m2 / (m.n - 1))
}

// Summarize streams the file at path once and reports its statistics.
func Summarize[T any, P Record[T]](ctx context.Context, path string, opts Options) (Summary, error) {
	if opts.Scale == 0 {
		opts.Scale = 1.0 / 400
	}

	l, err := loader.Open[T, P](path, opts.BufferSize)
	if err != nil {
		return Summary{}, err
	}

	var (
		sum                      Summary
		scores, features, target []float64
		scoreMoments             moments
		featureTotal, targetSum  float64
	)
	sum.ScoreMin = math.MaxInt16
	sum.ScoreMax = math.MinInt16

	err = l.MapBatches(ctx, l.MaxBatchSize(), func(batch []T) error {
		scores = scores[:0]
		features = features[:0]
		target = target[:0]
		for i := range batch {
			rec := P(&batch[i])
			if rec.CheckResult() != nil {
				sum.Corrupt++
				continue
			}
			score := rec.Score()
			scores = append(scores, float64(score))
			features = append(features, float64(rec.FeatureCount()))
			target = append(target, float64(format.BlendedResult(rec, opts.Blend, opts.Scale)))
			sum.ScoreMin = min(sum.ScoreMin, score)
			sum.ScoreMax = max(sum.ScoreMax, score)
			sum.Outcomes[rec.ResultIdx()]++
		}

		mean, variance := stat.MeanVariance(scores, nil)
		if len(scores) < 2 {
			variance = 0
		}
		scoreMoments.merge(len(scores), mean, variance)
		featureTotal += floats.Sum(features)
		targetSum += floats.Sum(target)
		sum.Records += int64(len(batch))
		return nil
	})
	if err != nil {
		return sum, err
	}

	valid := sum.Records - sum.Corrupt
	if valid == 0 {
		sum.ScoreMin, sum.ScoreMax = 0, 0
		return sum, nil
	}
	sum.ScoreMean = scoreMoments.mean
	sum.ScoreStdDev = scoreMoments.stdDev()
	sum.MeanFeatures = featureTotal / float64(valid)
	sum.MeanTarget = targetSum / float64(valid)
	return sum, nil
}
