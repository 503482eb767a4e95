package format

import "fmt"

// legacyPosition is what both legacy layouts reduce to before re-encoding.
type legacyPosition struct {
	occ         uint64
	pcs         [16]byte
	blackToMove bool
	score       int16 // white relative
	result      uint8 // white relative outcome code
}

// toChessBoard re-derives the canonical record: normalise piece codes, flip
// to the side to move, track kings, sort and repack.
func (p legacyPosition) toChessBoard(normalise func(uint8) (uint8, error)) (ChessBoard, error) {
	if err := checkOccupancy(p.occ); err != nil {
		return ChessBoard{}, err
	}
	if p.result > OutcomeWin {
		return ChessBoard{}, fmt.Errorf("%w: outcome code %d", ErrCorruptRecord, p.result)
	}

	score, result := p.score, p.result
	if p.blackToMove {
		score = flipScore(score)
		result = OutcomeWin - result
	}

	var features [maxPieces]Feature
	n := 0
	it := newPieceIter(p.occ, p.pcs)
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		pc, err := normalise(f.Piece)
		if err != nil {
			return ChessBoard{}, fmt.Errorf("square %d: %w", f.Square, err)
		}
		sq := f.Square
		if p.blackToMove {
			pc ^= ColourBit
			sq ^= flipRanks
		}
		features[n] = Feature{Piece: pc, Square: sq}
		n++
	}

	return EncodeChessBoard(features[:n], score, result)
}

// standardPiece accepts only the six base piece types of either colour.
func standardPiece(pc uint8) (uint8, error) {
	if pc&pieceMask > King {
		return 0, fmt.Errorf("%w: unknown piece code %d", ErrCorruptRecord, pc)
	}
	return pc, nil
}
