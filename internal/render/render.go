// Package render draws packed records as SVG diagrams. Boards are drawn
// from the side to move, which always sits at the bottom.
package render

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/jw1912/bulletformat/internal/format"
)

const (
	cell    = 48
	margin  = 24
	caption = 32
)

const (
	lightSquare = "fill:#eeeed2"
	darkSquare  = "fill:#769656"
	gapSquare   = "fill:#333333"
	ourStone    = "fill:#d83b3b;stroke:#000;stroke-width:2"
	theirStone  = "fill:#3b6ed8;stroke:#000;stroke-width:2"
	ourPiece    = "font-family:sans-serif;font-size:32px;font-weight:bold;fill:#ffffff;stroke:#000;stroke-width:1;text-anchor:middle"
	theirPiece  = "font-family:sans-serif;font-size:32px;font-weight:bold;fill:#000000;text-anchor:middle"
	labelStyle  = "font-family:monospace;font-size:14px;fill:#000;text-anchor:middle"
)

// errWriter keeps the first write error; svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, nil
}

// board starts the canvas and draws an n x n grid with coordinates.
func board(canvas *svg.SVG, n int, gaps uint64) {
	size := n*cell + 2*margin
	canvas.Start(size, size+caption)
	canvas.Rect(0, 0, size, size+caption, "fill:#ffffff")

	for rank := 0; rank < n; rank++ {
		for file := 0; file < n; file++ {
			x, y := cellOrigin(n, rank, file)
			style := lightSquare
			if (rank+file)%2 == 0 {
				style = darkSquare
			}
			if gaps&(uint64(1)<<(n*rank+file)) != 0 {
				style = gapSquare
			}
			canvas.Rect(x, y, cell, cell, style)
		}
	}

	for i := 0; i < n; i++ {
		x, _ := cellOrigin(n, 0, i)
		canvas.Text(x+cell/2, n*cell+margin+16, string(rune('a'+i)), labelStyle)
		_, y := cellOrigin(n, i, 0)
		canvas.Text(margin/2, y+cell/2+5, fmt.Sprint(i+1), labelStyle)
	}
}

func cellOrigin(n, rank, file int) (int, int) {
	return margin + file*cell, margin + (n-1-rank)*cell
}

func footer(canvas *svg.SVG, n int, r format.BulletFormat) {
	size := n*cell + 2*margin
	text := fmt.Sprintf("score %d  result %.1f", r.Score(), r.Result())
	canvas.Text(size/2, size+caption/2, text, labelStyle)
}

// Chess writes an SVG diagram of b. Side to move pieces are drawn white.
func Chess(w io.Writer, b format.ChessBoard) error {
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	board(canvas, 8, 0)

	it := b.Features()
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		typ := f.Piece &^ format.ColourBit
		if typ > format.King {
			return fmt.Errorf("%w: piece code %d", format.ErrCorruptRecord, f.Piece)
		}
		x, y := cellOrigin(8, int(f.Square/8), int(f.Square%8))
		style := ourPiece
		if f.Piece&format.ColourBit != 0 {
			style = theirPiece
		}
		canvas.Text(x+cell/2, y+cell/2+11, string("PNBRQK"[typ]), style)
	}

	footer(canvas, 8, b)
	canvas.End()
	return ew.err
}

// Ataxx writes an SVG diagram of b. Side to move stones are drawn red.
func Ataxx(w io.Writer, b format.AtaxxBoard) error {
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	bbs := b.Bitboards()
	board(canvas, 7, bbs[format.PlaneGaps])

	it := b.Features()
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		if f.Piece == format.PlaneGaps {
			continue
		}
		x, y := cellOrigin(7, int(f.Square)/7, int(f.Square)%7)
		style := ourStone
		if f.Piece == format.PlaneTheirs {
			style = theirStone
		}
		canvas.Circle(x+cell/2, y+cell/2, cell/2-6, style)
	}

	footer(canvas, 7, b)
	canvas.End()
	return ew.err
}
