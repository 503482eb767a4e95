package format

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"
)

// MarlinFormat is the legacy Marlinformat chess record. Everything in it is
// white relative.
//
// Layout (little-endian):
//
//	[0,8)   occupancy
//	[8,24)  piece nibbles, white pieces have the colour bit clear
//	24      bit 7: black to move; low bits: en-passant file
//	25      half-move clock
//	[26,28) full-move number
//	[28,30) score
//	30      outcome code (0 black win, 1 draw, 2 white win)
//	31      reserved
type MarlinFormat struct {
	occ    uint64
	pcs    [16]byte
	stmEnp uint8
	hfm    uint8
	fmc    uint16
	score  int16
	result uint8
	extra  uint8
}

const (
	marlinPcsOff    = 8
	marlinStmOff    = 24
	marlinHfmOff    = 25
	marlinFmcOff    = 26
	marlinScoreOff  = 28
	marlinResultOff = 30
	marlinExtraOff  = 31
	marlinEnd       = 32
)

const (
	_ = uint(RecordSize - marlinEnd)
	_ = uint(marlinEnd - RecordSize)
	_ = unsafe.Sizeof(MarlinFormat{}) - RecordSize
	_ = RecordSize - unsafe.Sizeof(MarlinFormat{})
)

// marlinUnmovedRook is the piece type Marlinformat uses for a rook that
// still carries castling rights.
const marlinUnmovedRook uint8 = 6

const stmBit = 0x80

var _ BulletFormat = MarlinFormat{}

// NewMarlinFormat assembles a legacy record; used to produce test data and
// by tools that still emit the old layout.
func NewMarlinFormat(features []Feature, blackToMove bool, enpFile uint8, hfm uint8, fmc uint16, score int16, result uint8) (MarlinFormat, error) {
	occ, pcs, err := packPieces(features)
	if err != nil {
		return MarlinFormat{}, err
	}
	stmEnp := enpFile &^ stmBit
	if blackToMove {
		stmEnp |= stmBit
	}
	return MarlinFormat{
		occ:    occ,
		pcs:    pcs,
		stmEnp: stmEnp,
		hfm:    hfm,
		fmc:    fmc,
		score:  score,
		result: result,
	}, nil
}

func (m MarlinFormat) blackToMove() bool { return m.stmEnp&stmBit != 0 }

func (m MarlinFormat) resultStm() uint8 {
	if m.blackToMove() {
		return OutcomeWin - m.result
	}
	return m.result
}

// Score is side to move relative.
func (m MarlinFormat) Score() int16 {
	if m.blackToMove() {
		return flipScore(m.score)
	}
	return m.score
}

func (m MarlinFormat) Result() float32  { return OutcomeProbability(m.resultStm()) }
func (m MarlinFormat) ResultIdx() int   { return int(m.resultStm()) }
func (m MarlinFormat) Inputs() int      { return chessInputs }
func (m MarlinFormat) MaxFeatures() int { return chessMaxFeatures }
func (m MarlinFormat) HeaderSize() int  { return 0 }

// CheckResult reports an outcome byte outside the three legal codes. Result
// and ResultIdx are meaningless for such records.
func (m MarlinFormat) CheckResult() error { return checkOutcome(m.result) }

// Occ returns the occupancy bitmask.
func (m MarlinFormat) Occ() uint64 { return m.occ }

func (m MarlinFormat) FeatureCount() int { return min(bits.OnesCount64(m.occ), maxPieces) }

// Features iterates the raw, white-relative piece codes.
func (m MarlinFormat) Features() *PieceIter {
	return newPieceIter(m.occ, m.pcs)
}

// SetResult stores a white-relative win probability.
func (m *MarlinFormat) SetResult(p float32) {
	m.result = OutcomeCode(p)
}

// ToChessBoard converts to the canonical record. Unmoved rooks become rooks;
// any other unknown piece code is reported as corruption.
func (m MarlinFormat) ToChessBoard() (ChessBoard, error) {
	return legacyPosition{
		occ:         m.occ,
		pcs:         m.pcs,
		blackToMove: m.blackToMove(),
		score:       m.score,
		result:      m.result,
	}.toChessBoard(normaliseMarlinPiece)
}

func normaliseMarlinPiece(pc uint8) (uint8, error) {
	if pc&pieceMask == marlinUnmovedRook {
		return pc&ColourBit | Rook, nil
	}
	return standardPiece(pc)
}

// AppendBinary implements encoding.BinaryAppender.
func (m MarlinFormat) AppendBinary(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint64(dst, m.occ)
	dst = append(dst, m.pcs[:]...)
	dst = append(dst, m.stmEnp, m.hfm)
	dst = binary.LittleEndian.AppendUint16(dst, m.fmc)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(m.score))
	dst = append(dst, m.result, m.extra)
	return dst, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m MarlinFormat) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(make([]byte, 0, RecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *MarlinFormat) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("marlinformat record: %w: got %d bytes", ErrRecordSize, len(data))
	}
	m.occ = binary.LittleEndian.Uint64(data[0:marlinPcsOff])
	copy(m.pcs[:], data[marlinPcsOff:marlinStmOff])
	m.stmEnp = data[marlinStmOff]
	m.hfm = data[marlinHfmOff]
	m.fmc = binary.LittleEndian.Uint16(data[marlinFmcOff:marlinScoreOff])
	m.score = int16(binary.LittleEndian.Uint16(data[marlinScoreOff:marlinResultOff]))
	m.result = data[marlinResultOff]
	m.extra = data[marlinExtraOff]
	return nil
}
