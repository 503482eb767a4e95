// Package extract replays PGN games and writes every position as a training
// record, labelled with the game result.
package extract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/jw1912/bulletformat/internal/format"
	"github.com/jw1912/bulletformat/internal/loader"
)

// Config configures an extraction run.
type Config struct {
	Input       string         // PGN file (supports .zst)
	Output      string         // Destination, .zst output is compressed
	Binary      bool           // Write packed chess records instead of text lines
	RatingMin   int            // Both players must be rated at least this (0 = no filter)
	MaxGames    int            // Stop after this many accepted games (0 = unlimited)
	SkipPlies   int            // Opening plies not written
	LogInterval time.Duration  // Progress log period (default 10s)
	Logger      zerolog.Logger // Logger
}

// Stats reports what an extraction wrote.
type Stats struct {
	Games     int64
	Skipped   int64
	Positions int64
	Elapsed   time.Duration
}

// sink receives one text record per position.
type sink interface {
	add(line string) error
	close() error
}

type textSink struct {
	w  io.WriteCloser
	bw *bufio.Writer
}

func (s *textSink) add(line string) error {
	if _, err := s.bw.WriteString(line); err != nil {
		return err
	}
	return s.bw.WriteByte('\n')
}

func (s *textSink) close() error {
	if err := s.bw.Flush(); err != nil {
		s.w.Close()
		return err
	}
	return s.w.Close()
}

// binarySink packs records through the text parser, so both outputs carry
// exactly the same positions.
type binarySink struct {
	w       io.WriteCloser
	records []format.ChessBoard
}

func (s *binarySink) add(line string) error {
	b, err := format.ParseChess(line)
	if err != nil {
		return err
	}
	s.records = append(s.records, b)
	if len(s.records) == cap(s.records) {
		return s.flush()
	}
	return nil
}

func (s *binarySink) flush() error {
	err := format.WriteRecords(s.w, s.records)
	s.records = s.records[:0]
	return err
}

func (s *binarySink) close() error {
	if err := s.flush(); err != nil {
		s.w.Close()
		return err
	}
	return s.w.Close()
}

// Run extracts positions from cfg.Input into cfg.Output.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 10 * time.Second
	}
	log := cfg.Logger
	log.Info().
		Str("pgn", cfg.Input).
		Str("output", cfg.Output).
		Bool("binary", cfg.Binary).
		Int("rating_min", cfg.RatingMin).
		Msg("starting extract")

	w, err := loader.CreateFile(cfg.Output)
	if err != nil {
		return Stats{}, fmt.Errorf("create output: %w", err)
	}
	var out sink
	if cfg.Binary {
		out = &binarySink{w: w, records: make([]format.ChessBoard, 0, 16384)}
	} else {
		out = &textSink{w: w, bw: bufio.NewWriterSize(w, 1<<20)}
	}

	var stats Stats
	startTime := time.Now()
	lastLog := startTime

	parser := pgn.Games(cfg.Input)
	stopped := false
	stop := func() {
		if !stopped {
			parser.Stop()
			stopped = true
		}
	}

	runErr := func() error {
		for game := range parser.Games {
			select {
			case <-ctx.Done():
				stop()
				return ctx.Err()
			default:
			}

			if cfg.MaxGames > 0 && stats.Games >= int64(cfg.MaxGames) {
				log.Info().Int64("games", stats.Games).Msg("reached max games limit")
				stop()
				return nil
			}

			if cfg.RatingMin > 0 {
				whiteRating := parseRating(game.Tags["WhiteElo"])
				blackRating := parseRating(game.Tags["BlackElo"])
				if whiteRating < cfg.RatingMin || blackRating < cfg.RatingMin {
					stats.Skipped++
					continue
				}
			}

			result, ok := resultToken(game.Tags["Result"])
			if !ok {
				stats.Skipped++
				continue
			}

			n, err := writeGame(out, game, result, cfg.SkipPlies)
			if err != nil {
				stop()
				return err
			}
			stats.Games++
			stats.Positions += n

			if time.Since(lastLog) > cfg.LogInterval {
				elapsed := time.Since(startTime)
				log.Info().
					Str("file", filepath.Base(cfg.Input)).
					Int64("games", stats.Games).
					Int64("skipped", stats.Skipped).
					Int64("positions", stats.Positions).
					Float64("games_per_sec", float64(stats.Games)/elapsed.Seconds()).
					Msg("extract progress")
				lastLog = time.Now()
			}
		}
		return parser.Err()
	}()

	if cerr := out.close(); runErr == nil && cerr != nil {
		runErr = fmt.Errorf("close output: %w", cerr)
	}
	stats.Elapsed = time.Since(startTime)
	if runErr != nil {
		return stats, runErr
	}

	log.Info().
		Int64("games", stats.Games).
		Int64("skipped", stats.Skipped).
		Int64("positions", stats.Positions).
		Dur("elapsed", stats.Elapsed).
		Msg("extract complete")
	return stats, nil
}

// writeGame replays game and writes the position before every move from ply
// skip onwards. Replay stops at the first move that does not apply.
func writeGame(out sink, game *pgn.Game, result string, skip int) (int64, error) {
	pos := pgn.NewStartingPosition()
	var written int64
	var sb strings.Builder

	for ply, mv := range game.Moves {
		if ply >= skip {
			sb.Reset()
			sb.WriteString(pos.ToFEN())
			sb.WriteString(" | 0 | ")
			sb.WriteString(result)
			if err := out.add(sb.String()); err != nil {
				return written, fmt.Errorf("ply %d: %w", ply, err)
			}
			written++
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
	}
	return written, nil
}

// resultToken maps a PGN result tag to the white-relative outcome token.
func resultToken(tag string) (string, bool) {
	switch tag {
	case "1-0":
		return "1.0", true
	case "0-1":
		return "0.0", true
	case "1/2-1/2":
		return "0.5", true
	}
	return "", false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
