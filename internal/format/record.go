// Package format defines the packed 32-byte training record layouts for chess
// and Ataxx, their text notation, and conversion from legacy chess layouts.
//
// Every record is stored from the perspective of the side to move: when the
// second player is to move, colours, squares, score and outcome are flipped
// before the record is written. Consumers never branch on colour.
//
// Files are unframed arrays of records, so record i starts at byte
// HeaderSize() + i*RecordSize.
package format

import (
	"encoding"
	"errors"
	"fmt"
	"io"
	"math"
)

// RecordSize is the on-disk size of every supported record type.
const RecordSize = 32

var (
	// ErrRecordSize is returned when a buffer does not hold exactly one record.
	ErrRecordSize = errors.New("buffer is not a whole record")

	// ErrCorruptRecord is returned when a binary record cannot be decoded
	// without guessing (unknown piece code, too many pieces, bad outcome).
	ErrCorruptRecord = errors.New("corrupt record")
)

// Outcome codes, from the side to move.
const (
	OutcomeLoss uint8 = 0
	OutcomeDraw uint8 = 1
	OutcomeWin  uint8 = 2
)

// BulletFormat is the capability set shared by all record types.
type BulletFormat interface {
	Score() int16
	Result() float32
	ResultIdx() int

	// Inputs is the size of the feature space, MaxFeatures the largest number
	// of features a single record can yield.
	Inputs() int
	MaxFeatures() int

	// HeaderSize is the number of bytes preceding the first record in a file.
	HeaderSize() int
}

// Decodable is satisfied by pointers to record types that can be read from
// their packed form.
type Decodable[T any] interface {
	*T
	encoding.BinaryUnmarshaler
	HeaderSize() int
}

// Feature is a (piece, square) pair. For Ataxx the piece is the plane index.
type Feature struct {
	Piece  uint8
	Square uint8
}

// OutcomeCode converts a win probability in [0,1] to an outcome code.
func OutcomeCode(p float32) uint8 {
	if p <= 0 {
		return OutcomeLoss
	}
	if p >= 1 {
		return OutcomeWin
	}
	return uint8(math.Round(2 * float64(p)))
}

// OutcomeProbability converts an outcome code back to 0.0, 0.5 or 1.0.
func OutcomeProbability(code uint8) float32 {
	return float32(code) / 2
}

func checkOutcome(code uint8) error {
	if code > OutcomeWin {
		return fmt.Errorf("%w: outcome code %d", ErrCorruptRecord, code)
	}
	return nil
}

// flipScore negates a score for the other player. -32768 has no positive
// counterpart and saturates to 32767.
func flipScore(s int16) int16 {
	if s == math.MinInt16 {
		return math.MaxInt16
	}
	return -s
}

// Sigmoid is the logistic function with scale k.
func Sigmoid(x, k float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x)*float64(k))))
}

// BlendedResult mixes the game outcome with the squashed search score.
func BlendedResult(r BulletFormat, blend, scale float32) float32 {
	return blend*r.Result() + (1-blend)*Sigmoid(float32(r.Score()), scale)
}

// ReadRecords decodes buf, which must hold a whole number of records, into
// dst and returns the extended slice.
func ReadRecords[T any, P Decodable[T]](dst []T, buf []byte) ([]T, error) {
	if len(buf)%RecordSize != 0 {
		return dst, fmt.Errorf("%w: %d bytes", ErrRecordSize, len(buf))
	}
	for off := 0; off < len(buf); off += RecordSize {
		var rec T
		if err := P(&rec).UnmarshalBinary(buf[off : off+RecordSize]); err != nil {
			return dst, fmt.Errorf("record %d: %w", off/RecordSize, err)
		}
		dst = append(dst, rec)
	}
	return dst, nil
}

// AppendRecords appends the packed form of every record to b.
func AppendRecords[T encoding.BinaryAppender](b []byte, records []T) ([]byte, error) {
	var err error
	for i := range records {
		b, err = records[i].AppendBinary(b)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// WriteRecords writes records back to back, with no framing.
func WriteRecords[T encoding.BinaryAppender](w io.Writer, records []T) error {
	buf, err := AppendRecords(make([]byte, 0, len(records)*RecordSize), records)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
