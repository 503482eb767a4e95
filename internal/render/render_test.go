package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jw1912/bulletformat/internal/format"
)

func TestChess(t *testing.T) {
	b, err := format.ParseChess("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1 | 35 | 0.5")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Chess(&buf, b); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(out), "<?xml") || !strings.Contains(out, "</svg>") {
		t.Fatalf("not an svg document:\n%s", out)
	}
	if n := strings.Count(out, ourPiece); n != 16 {
		t.Errorf("%d side to move pieces drawn, want 16", n)
	}
	if n := strings.Count(out, theirPiece); n != 16 {
		t.Errorf("%d opponent pieces drawn, want 16", n)
	}
	if !strings.Contains(out, "score 35  result 0.5") {
		t.Error("missing caption")
	}
}

func TestAtaxx(t *testing.T) {
	b, err := format.ParseAtaxx("x5o/7/2-1-2/7/2-1-2/7/o5x o 0 1 | 10 | 1.0")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Ataxx(&buf, b); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if n := strings.Count(out, ourStone); n != 2 {
		t.Errorf("%d side to move stones, want 2", n)
	}
	if n := strings.Count(out, theirStone); n != 2 {
		t.Errorf("%d opponent stones, want 2", n)
	}
	if n := strings.Count(out, gapSquare); n != 4 {
		t.Errorf("%d gaps, want 4", n)
	}
	// o is to move, so the stored score is negated.
	if !strings.Contains(out, "score -10  result 0.0") {
		t.Error("missing caption")
	}
}

type failingWriter struct{}

var errDiskFull = errors.New("disk full")

func (failingWriter) Write([]byte) (int, error) { return 0, errDiskFull }

func TestWriteError(t *testing.T) {
	b, _ := format.ParseChess("4k3/8/8/8/8/8/8/4K3 w - - 0 1 | 0 | 0.5")
	if err := Chess(failingWriter{}, b); !errors.Is(err, errDiskFull) {
		t.Errorf("err = %v", err)
	}
}
