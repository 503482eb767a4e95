package format

import (
	"strconv"
	"strings"
)

// String renders the record in the text grammar. The record carries no side
// to move, so the board is written from the mover's side with "w"; parsing
// the result gives back an identical record.
func (b ChessBoard) String() string {
	var board [64]int8
	for i := range board {
		board[i] = -1
	}
	it := b.Features()
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		board[f.Square] = int8(f.Piece)
	}

	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := board[8*rank+file]
			if pc < 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(pieceChar(uint8(pc)))
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	sb.WriteString(" w 0 1 | ")
	sb.WriteString(strconv.Itoa(int(b.score)))
	sb.WriteString(" | ")
	sb.WriteString(formatOutcome(b.result))
	return sb.String()
}

func pieceChar(pc uint8) byte {
	typ := pc & pieceMask
	if typ > King {
		return '?'
	}
	if pc&ColourBit != 0 {
		return chessPieceChars[6+typ]
	}
	return chessPieceChars[typ]
}

// String renders the record back in the orientation it was parsed in, with
// score and outcome relative to x.
func (b AtaxxBoard) String() string {
	bbs, score, result := b.bbs, b.score, b.result
	if b.stm {
		bbs[0], bbs[1] = bbs[1], bbs[0]
		score = flipScore(score)
		result = OutcomeWin - result
	}

	var sb strings.Builder
	for rank := 6; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 7; file++ {
			bit := uint64(1) << (7*rank + file)
			var ch byte
			switch {
			case bbs[0]&bit != 0:
				ch = 'x'
			case bbs[1]&bit != 0:
				ch = 'o'
			case bbs[2]&bit != 0:
				ch = '-'
			default:
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(ch)
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	stm := " x "
	if b.stm {
		stm = " o "
	}
	sb.WriteString(stm)
	sb.WriteString(strconv.Itoa(int(b.halfm)))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(int(b.fullm)))
	sb.WriteString(" | ")
	sb.WriteString(strconv.Itoa(int(score)))
	sb.WriteString(" | ")
	sb.WriteString(formatOutcome(result))
	return sb.String()
}

func formatOutcome(code uint8) string {
	return strconv.FormatFloat(float64(OutcomeProbability(code)), 'f', 1, 32)
}
