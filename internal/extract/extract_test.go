package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jw1912/bulletformat/internal/format"
)

const testPGN = `[Event "Rated"]
[White "a"]
[Black "b"]
[Result "1-0"]
[WhiteElo "2100"]
[BlackElo "2050"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0

[Event "Unfinished"]
[White "a"]
[Black "b"]
[Result "*"]
[WhiteElo "2100"]
[BlackElo "2100"]

1. d4 d5 *

[Event "Low rated"]
[White "c"]
[Black "d"]
[Result "0-1"]
[WhiteElo "1200"]
[BlackElo "1300"]

1. f3 e5 2. g4 Qh4# 0-1

`

const startBoard = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"

func writePGN(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.pgn")
	if err := os.WriteFile(path, []byte(testPGN), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunText(t *testing.T) {
	input := writePGN(t)
	output := filepath.Join(t.TempDir(), "positions.txt")

	stats, err := Run(context.Background(), Config{
		Input:     input,
		Output:    output,
		RatingMin: 2000,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Games != 1 || stats.Skipped != 2 || stats.Positions != 7 {
		t.Errorf("games/skipped/positions = %d/%d/%d", stats.Games, stats.Skipped, stats.Positions)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 7 {
		t.Fatalf("wrote %d lines, want 7", len(lines))
	}
	if !strings.HasPrefix(lines[0], startBoard+" w ") || !strings.HasSuffix(lines[0], " | 0 | 1.0") {
		t.Errorf("first line = %q", lines[0])
	}
	for i, line := range lines {
		b, err := format.ParseChess(line)
		if err != nil {
			t.Fatalf("line %d: %v", i+1, err)
		}
		// White won: a win for white to move, a loss for black to move.
		want := 2 * ((i + 1) % 2)
		if b.ResultIdx() != want {
			t.Errorf("line %d: ResultIdx = %d, want %d", i+1, b.ResultIdx(), want)
		}
	}
}

func TestRunBinary(t *testing.T) {
	input := writePGN(t)
	output := filepath.Join(t.TempDir(), "positions.bin")

	stats, err := Run(context.Background(), Config{
		Input:     input,
		Output:    output,
		Binary:    true,
		SkipPlies: 2,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	// No rating filter: the 7 ply and 4 ply games both count, minus two
	// skipped plies each.
	if stats.Games != 2 || stats.Skipped != 1 || stats.Positions != 5+2 {
		t.Errorf("games/skipped/positions = %d/%d/%d", stats.Games, stats.Skipped, stats.Positions)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	records, err := format.ReadRecords[format.ChessBoard](nil, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 7 {
		t.Fatalf("wrote %d records", len(records))
	}
	for i, b := range records {
		if err := b.Validate(); err != nil {
			t.Errorf("record %d: %v", i, err)
		}
	}
}

func TestRunMaxGames(t *testing.T) {
	input := writePGN(t)
	stats, err := Run(context.Background(), Config{
		Input:    input,
		Output:   filepath.Join(t.TempDir(), "positions.txt.zst"),
		MaxGames: 1,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Games != 1 {
		t.Errorf("games = %d, want 1", stats.Games)
	}
}

func TestResultToken(t *testing.T) {
	for tag, want := range map[string]string{"1-0": "1.0", "0-1": "0.0", "1/2-1/2": "0.5"} {
		got, ok := resultToken(tag)
		if !ok || got != want {
			t.Errorf("resultToken(%q) = %q, %v", tag, got, ok)
		}
	}
	if _, ok := resultToken("*"); ok {
		t.Error("unfinished game accepted")
	}
}
