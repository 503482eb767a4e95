package format

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"
)

// CudADFormat is the legacy CudAD chess record.
//
// Layout (little-endian):
//
//	[0,16)  piece nibbles
//	[16,24) occupancy
//	24      move count
//	25      fifty-move rule counter
//	26      bit 7: black to move
//	27      en-passant square
//	[28,30) score, white relative
//	30      signed outcome (-1 black win, 0 draw, 1 white win)
//	31      zero
type CudADFormat struct {
	pcs   [16]byte
	occ   uint64
	mvcnt uint8
	fmr   uint8
	stmr  uint8
	enp   uint8
	score int16
	wdl   int8
}

const (
	cudadOccOff   = 16
	cudadMvcntOff = 24
	cudadFmrOff   = 25
	cudadStmOff   = 26
	cudadEnpOff   = 27
	cudadScoreOff = 28
	cudadWdlOff   = 30
	cudadEnd      = 31
)

const (
	_ = uint(RecordSize - cudadEnd)
	_ = unsafe.Sizeof(CudADFormat{}) - RecordSize
	_ = RecordSize - unsafe.Sizeof(CudADFormat{})
)

var _ BulletFormat = CudADFormat{}

// NewCudADFormat assembles a legacy record from white-relative data.
func NewCudADFormat(features []Feature, blackToMove bool, mvcnt, fmr, enp uint8, score int16, wdl int8) (CudADFormat, error) {
	occ, pcs, err := packPieces(features)
	if err != nil {
		return CudADFormat{}, err
	}
	var stmr uint8
	if blackToMove {
		stmr = stmBit
	}
	return CudADFormat{
		pcs:   pcs,
		occ:   occ,
		mvcnt: mvcnt,
		fmr:   fmr,
		stmr:  stmr,
		enp:   enp,
		score: score,
		wdl:   wdl,
	}, nil
}

func (c CudADFormat) blackToMove() bool { return c.stmr&stmBit != 0 }

// unsignedResult maps the signed outcome onto the white-relative code scale.
func (c CudADFormat) unsignedResult() (uint8, error) {
	if c.wdl < -1 || c.wdl > 1 {
		return 0, fmt.Errorf("%w: signed outcome %d", ErrCorruptRecord, c.wdl)
	}
	return uint8(c.wdl + 1), nil
}

func (c CudADFormat) resultStm() uint8 {
	code, err := c.unsignedResult()
	if err != nil {
		return OutcomeDraw
	}
	if c.blackToMove() {
		return OutcomeWin - code
	}
	return code
}

// Score is side to move relative.
func (c CudADFormat) Score() int16 {
	if c.blackToMove() {
		return flipScore(c.score)
	}
	return c.score
}

func (c CudADFormat) Result() float32  { return OutcomeProbability(c.resultStm()) }
func (c CudADFormat) ResultIdx() int   { return int(c.resultStm()) }
func (c CudADFormat) Inputs() int      { return chessInputs }
func (c CudADFormat) MaxFeatures() int { return chessMaxFeatures }
func (c CudADFormat) HeaderSize() int  { return 0 }

// CheckResult reports a signed outcome other than -1, 0 or 1. Result and
// ResultIdx read such records as draws.
func (c CudADFormat) CheckResult() error {
	_, err := c.unsignedResult()
	return err
}

// Occ returns the occupancy bitmask.
func (c CudADFormat) Occ() uint64 { return c.occ }

func (c CudADFormat) FeatureCount() int { return min(bits.OnesCount64(c.occ), maxPieces) }

// Features iterates the raw, white-relative piece codes.
func (c CudADFormat) Features() *PieceIter {
	return newPieceIter(c.occ, c.pcs)
}

// SetResult stores a white-relative win probability.
func (c *CudADFormat) SetResult(p float32) {
	c.wdl = int8(OutcomeCode(p)) - 1
}

// ToChessBoard converts to the canonical record.
func (c CudADFormat) ToChessBoard() (ChessBoard, error) {
	code, err := c.unsignedResult()
	if err != nil {
		return ChessBoard{}, err
	}
	return legacyPosition{
		occ:         c.occ,
		pcs:         c.pcs,
		blackToMove: c.blackToMove(),
		score:       c.score,
		result:      code,
	}.toChessBoard(standardPiece)
}

// AppendBinary implements encoding.BinaryAppender.
func (c CudADFormat) AppendBinary(dst []byte) ([]byte, error) {
	dst = append(dst, c.pcs[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, c.occ)
	dst = append(dst, c.mvcnt, c.fmr, c.stmr, c.enp)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(c.score))
	dst = append(dst, uint8(c.wdl), 0)
	return dst, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c CudADFormat) MarshalBinary() ([]byte, error) {
	return c.AppendBinary(make([]byte, 0, RecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *CudADFormat) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("cudad record: %w: got %d bytes", ErrRecordSize, len(data))
	}
	copy(c.pcs[:], data[0:cudadOccOff])
	c.occ = binary.LittleEndian.Uint64(data[cudadOccOff:cudadMvcntOff])
	c.mvcnt = data[cudadMvcntOff]
	c.fmr = data[cudadFmrOff]
	c.stmr = data[cudadStmOff]
	c.enp = data[cudadEnpOff]
	c.score = int16(binary.LittleEndian.Uint16(data[cudadScoreOff:cudadWdlOff]))
	c.wdl = int8(data[cudadWdlOff])
	return nil
}
