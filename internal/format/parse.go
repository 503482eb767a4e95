package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Text record grammar, one position per line:
//
//	<board> <stm> [<halfmove> <fullmove> ...] | <score> | <outcome>
//
// Score and outcome are written from the first player's point of view
// (white, or x in Ataxx) and flipped on parse when the second player moves.

var (
	ErrMalformed    = errors.New("malformed record")
	ErrBadCharacter = errors.New("unrecognised board character")
	ErrBadScore     = errors.New("bad score")
	ErrBadResult    = errors.New("bad game result")
)

// ParseError reports a text record that could not be parsed.
type ParseError struct {
	Line int // 1-based, 0 when parsed outside a file
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

type textFields struct {
	fen    []string
	score  int16
	result uint8
}

func splitRecord(s string) (textFields, error) {
	var tf textFields

	parts := strings.Split(s, "|")
	if len(parts) < 3 {
		return tf, fmt.Errorf("%w: expected 3 '|' separated fields, got %d", ErrMalformed, len(parts))
	}

	tf.fen = strings.Fields(parts[0])
	if len(tf.fen) < 2 {
		return tf, fmt.Errorf("%w: missing board or side to move", ErrMalformed)
	}

	score, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return tf, ErrBadScore
	}
	tf.score = int16(score)

	tf.result, err = parseOutcome(strings.TrimSpace(parts[2]))
	if err != nil {
		return tf, err
	}
	return tf, nil
}

func parseOutcome(s string) (uint8, error) {
	switch s {
	case "1.0", "[1.0]", "1":
		return OutcomeWin, nil
	case "0.5", "[0.5]", "1/2":
		return OutcomeDraw, nil
	case "0.0", "[0.0]", "0":
		return OutcomeLoss, nil
	}
	return 0, ErrBadResult
}

// chessPieceChars is indexed by colour*6 + piece type.
const chessPieceChars = "PNBRQKpnbrqk"

// ParseChess parses a chess text record.
func ParseChess(s string) (ChessBoard, error) {
	b, err := parseChess(s)
	if err != nil {
		return ChessBoard{}, &ParseError{Text: s, Err: err}
	}
	return b, nil
}

func parseChess(s string) (ChessBoard, error) {
	tf, err := splitRecord(s)
	if err != nil {
		return ChessBoard{}, err
	}

	var black bool
	switch tf.fen[1] {
	case "w":
	case "b":
		black = true
	default:
		return ChessBoard{}, fmt.Errorf("%w: side to move %q", ErrMalformed, tf.fen[1])
	}

	ranks := strings.Split(tf.fen[0], "/")
	if len(ranks) != 8 {
		return ChessBoard{}, fmt.Errorf("%w: %d ranks", ErrMalformed, len(ranks))
	}

	features := make([]Feature, 0, maxPieces)
	for i, row := range ranks {
		rank := 7 - i
		col := 0
		for _, ch := range row {
			if ch >= '1' && ch <= '8' {
				col += int(ch - '0')
				continue
			}
			idx := strings.IndexRune(chessPieceChars, ch)
			if idx < 0 {
				return ChessBoard{}, fmt.Errorf("%w %q", ErrBadCharacter, ch)
			}
			if col > 7 {
				return ChessBoard{}, fmt.Errorf("%w: rank %d overflows", ErrMalformed, rank+1)
			}

			pc := uint8(idx/6)<<3 | uint8(idx%6)
			sq := uint8(8*rank + col)
			if black {
				pc ^= ColourBit
				sq ^= flipRanks
			}
			if len(features) == maxPieces {
				return ChessBoard{}, fmt.Errorf("%w: more than %d pieces", ErrMalformed, maxPieces)
			}
			features = append(features, Feature{Piece: pc, Square: sq})
			col++
		}
		if col > 8 {
			return ChessBoard{}, fmt.Errorf("%w: rank %d overflows", ErrMalformed, rank+1)
		}
	}

	score, result := tf.score, tf.result
	if black {
		score = flipScore(score)
		result = OutcomeWin - result
	}
	return EncodeChessBoard(features, score, result)
}

// ParseAtaxx parses an Ataxx text record. Both x/o and r/b spellings are
// accepted for the two players.
func ParseAtaxx(s string) (AtaxxBoard, error) {
	b, err := parseAtaxx(s)
	if err != nil {
		return AtaxxBoard{}, &ParseError{Text: s, Err: err}
	}
	return b, nil
}

func parseAtaxx(s string) (AtaxxBoard, error) {
	tf, err := splitRecord(s)
	if err != nil {
		return AtaxxBoard{}, err
	}

	var stm bool
	switch tf.fen[1] {
	case "x", "r":
	case "o", "b":
		stm = true
	default:
		return AtaxxBoard{}, fmt.Errorf("%w: side to move %q", ErrMalformed, tf.fen[1])
	}

	halfm := uint8(0)
	if len(tf.fen) > 2 {
		if v, err := strconv.ParseUint(tf.fen[2], 10, 8); err == nil {
			halfm = uint8(v)
		}
	}
	fullm := uint16(1)
	if len(tf.fen) > 3 {
		if v, err := strconv.ParseUint(tf.fen[3], 10, 16); err == nil {
			fullm = uint16(v)
		}
	}

	ranks := strings.Split(tf.fen[0], "/")
	if len(ranks) != 7 {
		return AtaxxBoard{}, fmt.Errorf("%w: %d ranks", ErrMalformed, len(ranks))
	}

	var bbs [3]uint64
	for i, row := range ranks {
		rank := 6 - i
		col := 0
		for _, ch := range row {
			var plane uint8
			switch {
			case ch >= '1' && ch <= '7':
				col += int(ch - '0')
				continue
			case ch == 'x' || ch == 'r':
				plane = PlaneOurs
			case ch == 'o' || ch == 'b':
				plane = PlaneTheirs
			case ch == '-':
				plane = PlaneGaps
			default:
				return AtaxxBoard{}, fmt.Errorf("%w %q", ErrBadCharacter, ch)
			}
			if col > 6 {
				return AtaxxBoard{}, fmt.Errorf("%w: rank %d overflows", ErrMalformed, rank+1)
			}
			bbs[plane] |= uint64(1) << (7*rank + col)
			col++
		}
		if col > 7 {
			return AtaxxBoard{}, fmt.Errorf("%w: rank %d overflows", ErrMalformed, rank+1)
		}
	}

	return NewAtaxxBoard(bbs, tf.score, OutcomeProbability(tf.result), stm, fullm, halfm)
}
