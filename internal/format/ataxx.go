package format

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"
)

// Ataxx planes, in the order AtaxxBoard.Features yields them.
const (
	PlaneOurs uint8 = iota
	PlaneTheirs
	PlaneGaps
)

// AtaxxSquares is the number of cells on the 7x7 board; square = 7*rank+file.
const AtaxxSquares = 49

const ataxxBoardMask = uint64(1)<<AtaxxSquares - 1

// AtaxxBoard is the canonical packed Ataxx record.
//
// Layout (little-endian):
//
//	[0,24)  side to move stones, opponent stones, gaps
//	[24,26) score, side to move relative
//	26      outcome code
//	27      1 when the second player (o) is to move
//	[28,30) full-move number
//	30      half-move clock
//	31      reserved
type AtaxxBoard struct {
	bbs    [3]uint64
	score  int16
	result uint8
	stm    bool
	fullm  uint16
	halfm  uint8
	extra  uint8
}

const (
	ataxxScoreOff  = 24
	ataxxResultOff = 26
	ataxxStmOff    = 27
	ataxxFullmOff  = 28
	ataxxHalfmOff  = 30
	ataxxExtraOff  = 31
	ataxxEnd       = 32
)

const (
	_ = uint(RecordSize - ataxxEnd)
	_ = uint(ataxxEnd - RecordSize)
	_ = unsafe.Sizeof(AtaxxBoard{}) - RecordSize
	_ = RecordSize - unsafe.Sizeof(AtaxxBoard{})
)

const (
	ataxxInputs      = 147
	ataxxMaxFeatures = 49
)

var _ BulletFormat = AtaxxBoard{}

func (b AtaxxBoard) Score() int16     { return b.score }
func (b AtaxxBoard) Result() float32  { return OutcomeProbability(b.result) }
func (b AtaxxBoard) ResultIdx() int   { return int(b.result) }
func (b AtaxxBoard) Inputs() int      { return ataxxInputs }
func (b AtaxxBoard) MaxFeatures() int { return ataxxMaxFeatures }
func (b AtaxxBoard) HeaderSize() int  { return 0 }

// Stm is 0 when the first player (x) is to move and 1 otherwise.
func (b AtaxxBoard) Stm() int {
	if b.stm {
		return 1
	}
	return 0
}

func (b AtaxxBoard) Halfm() uint8  { return b.halfm }
func (b AtaxxBoard) Fullm() uint16 { return b.fullm }

// Bitboards returns the side to move, opponent and gap bitboards.
func (b AtaxxBoard) Bitboards() [3]uint64 { return b.bbs }

func (b AtaxxBoard) FeatureCount() int {
	return bits.OnesCount64(b.bbs[0]) + bits.OnesCount64(b.bbs[1]) + bits.OnesCount64(b.bbs[2])
}

// NewAtaxxBoard builds a record from red-relative raw data.
//
// Bitboards are ordered red (x), blue (o), gaps. stm is false for red. score
// is red relative and result is 1.0 for a red win, 0.0 for a blue win.
func NewAtaxxBoard(bbs [3]uint64, score int16, result float32, stm bool, fullm uint16, halfm uint8) (AtaxxBoard, error) {
	if err := checkAtaxxPlanes(bbs); err != nil {
		return AtaxxBoard{}, err
	}

	code := OutcomeCode(result)
	if stm {
		bbs[0], bbs[1] = bbs[1], bbs[0]
		score = flipScore(score)
		code = OutcomeWin - code
	}

	return AtaxxBoard{
		bbs:    bbs,
		score:  score,
		result: code,
		stm:    stm,
		fullm:  fullm,
		halfm:  halfm,
	}, nil
}

func checkAtaxxPlanes(bbs [3]uint64) error {
	if (bbs[0]|bbs[1]|bbs[2])&^ataxxBoardMask != 0 {
		return fmt.Errorf("%w: stone outside the 7x7 board", ErrCorruptRecord)
	}
	if bbs[0]&bbs[1] != 0 || bbs[0]&bbs[2] != 0 || bbs[1]&bbs[2] != 0 {
		return fmt.Errorf("%w: overlapping planes", ErrCorruptRecord)
	}
	return nil
}

// CheckResult reports an outcome byte outside the three legal codes.
func (b AtaxxBoard) CheckResult() error { return checkOutcome(b.result) }

// Mirror returns the same position with the other player to move.
func (b AtaxxBoard) Mirror() AtaxxBoard {
	m := b
	m.bbs[0], m.bbs[1] = b.bbs[1], b.bbs[0]
	m.score = flipScore(b.score)
	m.result = OutcomeWin - b.result
	m.stm = !b.stm
	return m
}

// AtaxxIter yields (plane, square) features plane by plane. Single use.
type AtaxxIter struct {
	bbs   [3]uint64
	stage int
}

// Features returns a single-use iterator over the occupied cells.
func (b AtaxxBoard) Features() *AtaxxIter {
	return &AtaxxIter{bbs: b.bbs}
}

// Next returns the next (plane, square) pair.
func (it *AtaxxIter) Next() (Feature, bool) {
	for it.stage < len(it.bbs) && it.bbs[it.stage] == 0 {
		it.stage++
	}
	if it.stage >= len(it.bbs) {
		return Feature{}, false
	}

	sq := uint8(bits.TrailingZeros64(it.bbs[it.stage]))
	it.bbs[it.stage] &= it.bbs[it.stage] - 1
	return Feature{Piece: uint8(it.stage), Square: sq}, true
}

// AppendBinary implements encoding.BinaryAppender.
func (b AtaxxBoard) AppendBinary(dst []byte) ([]byte, error) {
	for _, bb := range b.bbs {
		dst = binary.LittleEndian.AppendUint64(dst, bb)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(b.score))
	stm := uint8(0)
	if b.stm {
		stm = 1
	}
	dst = append(dst, b.result, stm)
	dst = binary.LittleEndian.AppendUint16(dst, b.fullm)
	dst = append(dst, b.halfm, b.extra)
	return dst, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b AtaxxBoard) MarshalBinary() ([]byte, error) {
	return b.AppendBinary(make([]byte, 0, RecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *AtaxxBoard) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("ataxx record: %w: got %d bytes", ErrRecordSize, len(data))
	}
	for i := range b.bbs {
		b.bbs[i] = binary.LittleEndian.Uint64(data[8*i : 8*i+8])
	}
	b.score = int16(binary.LittleEndian.Uint16(data[ataxxScoreOff:ataxxResultOff]))
	b.result = data[ataxxResultOff]
	b.stm = data[ataxxStmOff] != 0
	b.fullm = binary.LittleEndian.Uint16(data[ataxxFullmOff:ataxxHalfmOff])
	b.halfm = data[ataxxHalfmOff]
	b.extra = data[ataxxExtraOff]
	return nil
}
