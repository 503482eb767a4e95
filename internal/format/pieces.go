package format

import (
	"fmt"
	"math/bits"
	"sort"
)

// Chess piece codes. The low three bits select the piece type, ColourBit
// marks the opponent (canonical records) or black (legacy records).
const (
	Pawn uint8 = iota
	Knight
	Bishop
	Rook
	Queen
	King

	ColourBit uint8 = 8
	pieceMask uint8 = 7
)

// Square flips between the two players' points of view.
const flipRanks = 56

// maxPieces is the capacity of a 16-byte nibble array.
const maxPieces = 32

// PieceIter walks an occupancy bitmask and its nibble array in lockstep.
// It owns a copy of both, so it is single use: decoding again needs a fresh
// iterator.
type PieceIter struct {
	occ uint64
	pcs [16]byte
	idx int
}

func newPieceIter(occ uint64, pcs [16]byte) *PieceIter {
	return &PieceIter{occ: occ, pcs: pcs}
}

// Next returns the feature on the lowest remaining occupied square.
func (it *PieceIter) Next() (Feature, bool) {
	if it.occ == 0 || it.idx >= maxPieces {
		return Feature{}, false
	}

	sq := uint8(bits.TrailingZeros64(it.occ))
	pc := (it.pcs[it.idx/2] >> (4 * (it.idx & 1))) & 0xF

	it.occ &= it.occ - 1
	it.idx++

	return Feature{Piece: pc, Square: sq}, true
}

// Remaining reports how many features Next will still return.
func (it *PieceIter) Remaining() int {
	n := bits.OnesCount64(it.occ)
	if left := maxPieces - it.idx; n > left {
		return left
	}
	return n
}

// packPieces sorts features by square and packs them into an occupancy mask
// and nibble array. Decoding relies on the ascending order.
func packPieces(features []Feature) (occ uint64, pcs [16]byte, err error) {
	if len(features) > maxPieces {
		return 0, pcs, fmt.Errorf("%d pieces, at most %d fit", len(features), maxPieces)
	}

	sort.Slice(features, func(i, j int) bool {
		return features[i].Square < features[j].Square
	})

	for i, f := range features {
		if f.Square > 63 {
			return 0, pcs, fmt.Errorf("square %d out of range", f.Square)
		}
		bit := uint64(1) << f.Square
		if occ&bit != 0 {
			return 0, pcs, fmt.Errorf("square %d occupied twice", f.Square)
		}
		occ |= bit
		pcs[i/2] |= (f.Piece & 0xF) << (4 * (i & 1))
	}
	return occ, pcs, nil
}

// checkOccupancy rejects occupancy masks with more squares than nibbles.
func checkOccupancy(occ uint64) error {
	if n := bits.OnesCount64(occ); n > maxPieces {
		return fmt.Errorf("%w: %d occupied squares", ErrCorruptRecord, n)
	}
	return nil
}
