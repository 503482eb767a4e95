package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"unsafe"
)

// ChessBoard is the canonical packed chess record.
//
// Layout (little-endian):
//
//	[0,8)   occupancy, bit i set when square i (a1=0, h8=63) is occupied
//	[8,24)  piece nibbles, one per occupied square in ascending square order
//	[24,26) score in centipawns, side to move relative
//	26      outcome code (0 loss, 1 draw, 2 win)
//	27      side to move king square
//	28      opponent king square, stored from the opponent's point of view
//	[29,32) zero
type ChessBoard struct {
	occ    uint64
	pcs    [16]byte
	score  int16
	result uint8
	ksq    uint8
	oppKsq uint8
}

const (
	chessPcsOff    = 8
	chessScoreOff  = 24
	chessResultOff = 26
	chessKsqOff    = 27
	chessOppKsqOff = 28
	chessEnd       = 29
)

// Layout checks, evaluated by the compiler: a negative difference overflows.
const (
	_ = uint(RecordSize - chessEnd)
	_ = unsafe.Sizeof(ChessBoard{}) - RecordSize
	_ = RecordSize - unsafe.Sizeof(ChessBoard{})
)

const (
	chessInputs      = 768
	chessMaxFeatures = 32
)

var _ BulletFormat = ChessBoard{}

func (b ChessBoard) Score() int16     { return b.score }
func (b ChessBoard) Result() float32  { return OutcomeProbability(b.result) }
func (b ChessBoard) ResultIdx() int   { return int(b.result) }
func (b ChessBoard) Inputs() int      { return chessInputs }
func (b ChessBoard) MaxFeatures() int { return chessMaxFeatures }
func (b ChessBoard) HeaderSize() int  { return 0 }

// Occ returns the occupancy bitmask.
func (b ChessBoard) Occ() uint64 { return b.occ }

// FeatureCount is the number of features Features yields.
func (b ChessBoard) FeatureCount() int { return min(bits.OnesCount64(b.occ), maxPieces) }

// OurKsq returns the side to move's king square.
func (b ChessBoard) OurKsq() uint8 { return b.ksq }

// OppKsq returns the opponent's king square from the opponent's side.
func (b ChessBoard) OppKsq() uint8 { return b.oppKsq }

// Features returns a single-use iterator over (piece, square) pairs in
// ascending square order.
func (b ChessBoard) Features() *PieceIter {
	return newPieceIter(b.occ, b.pcs)
}

// EncodeChessBoard packs side-to-move relative features into a record. The
// features may be in any order; they are sorted in place.
func EncodeChessBoard(features []Feature, score int16, result uint8) (ChessBoard, error) {
	if result > OutcomeWin {
		return ChessBoard{}, fmt.Errorf("outcome code %d out of range", result)
	}

	b := ChessBoard{score: score, result: result}
	for _, f := range features {
		switch f.Piece {
		case King:
			b.ksq = f.Square
		case King | ColourBit:
			b.oppKsq = f.Square ^ flipRanks
		}
	}

	occ, pcs, err := packPieces(features)
	if err != nil {
		return ChessBoard{}, err
	}
	b.occ = occ
	b.pcs = pcs
	return b, nil
}

// NewChessBoard builds a record from white-relative raw data.
//
// Bitboards are ordered white, black, pawn, knight, bishop, rook, queen, king.
// stm is 0 for white and 1 for black. score is white relative and result is
// 1.0 for a white win, 0.5 for a draw and 0.0 for a black win.
func NewChessBoard(bbs [8]uint64, stm int, score int16, result float32) (ChessBoard, error) {
	if stm == 1 {
		for i := range bbs {
			bbs[i] = bits.ReverseBytes64(bbs[i])
		}
		bbs[0], bbs[1] = bbs[1], bbs[0]
		score = flipScore(score)
		result = 1 - result
	}

	occ := bbs[0] | bbs[1]
	if err := checkOccupancy(occ); err != nil {
		return ChessBoard{}, err
	}

	features := make([]Feature, 0, bits.OnesCount64(occ))
	for rest := occ; rest != 0; rest &= rest - 1 {
		sq := bits.TrailingZeros64(rest)
		bit := uint64(1) << sq

		piece := -1
		for i, bb := range bbs[2:] {
			if bb&bit != 0 {
				piece = i
				break
			}
		}
		if piece < 0 {
			return ChessBoard{}, fmt.Errorf("%w: no piece on occupied square %d", ErrCorruptRecord, sq)
		}

		pc := uint8(piece)
		if bbs[1]&bit != 0 {
			pc |= ColourBit
		}
		features = append(features, Feature{Piece: pc, Square: uint8(sq)})
	}

	return EncodeChessBoard(features, score, OutcomeCode(result))
}

// Mirror returns the same position seen from the other player.
func (b ChessBoard) Mirror() ChessBoard {
	features := make([]Feature, 0, chessMaxFeatures)
	it := b.Features()
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		features = append(features, Feature{Piece: f.Piece ^ ColourBit, Square: f.Square ^ flipRanks})
	}

	// Squares come from a bitmask, so packing cannot fail.
	occ, pcs, _ := packPieces(features)
	return ChessBoard{
		occ:    occ,
		pcs:    pcs,
		score:  flipScore(b.score),
		result: OutcomeWin - b.result,
		ksq:    b.oppKsq,
		oppKsq: b.ksq,
	}
}

// AppendBinary implements encoding.BinaryAppender.
func (b ChessBoard) AppendBinary(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint64(dst, b.occ)
	dst = append(dst, b.pcs[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(b.score))
	dst = append(dst, b.result, b.ksq, b.oppKsq, 0, 0, 0)
	return dst, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b ChessBoard) MarshalBinary() ([]byte, error) {
	return b.AppendBinary(make([]byte, 0, RecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *ChessBoard) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("chess record: %w: got %d bytes", ErrRecordSize, len(data))
	}
	b.occ = binary.LittleEndian.Uint64(data[0:chessPcsOff])
	copy(b.pcs[:], data[chessPcsOff:chessScoreOff])
	b.score = int16(binary.LittleEndian.Uint16(data[chessScoreOff:chessResultOff]))
	b.result = data[chessResultOff]
	b.ksq = data[chessKsqOff]
	b.oppKsq = data[chessOppKsqOff]
	return nil
}

// CheckResult reports an outcome byte outside the three legal codes.
func (b ChessBoard) CheckResult() error { return checkOutcome(b.result) }

// Validate checks structural well-formedness: nibble count, known piece
// codes, outcome range and one king per side.
func (b ChessBoard) Validate() error {
	if err := checkOccupancy(b.occ); err != nil {
		return err
	}
	if err := checkOutcome(b.result); err != nil {
		return err
	}

	var kings [2]int
	it := b.Features()
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		if f.Piece&pieceMask > King {
			return fmt.Errorf("%w: piece code %d on square %d", ErrCorruptRecord, f.Piece, f.Square)
		}
		if f.Piece&pieceMask == King {
			kings[f.Piece>>3]++
		}
	}
	if kings[0] != 1 || kings[1] != 1 {
		return errKingCount
	}
	return nil
}

var errKingCount = errors.New("expected exactly one king per side")
