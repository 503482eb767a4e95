package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/jw1912/bulletformat/internal/convert"
	"github.com/jw1912/bulletformat/internal/extract"
	"github.com/jw1912/bulletformat/internal/format"
	"github.com/jw1912/bulletformat/internal/loader"
	"github.com/jw1912/bulletformat/internal/render"
	"github.com/jw1912/bulletformat/internal/stats"
)

func runConvertText(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("convert-text", flag.ContinueOnError)
	var (
		game   = fs.String("game", "chess", "record type: chess or ataxx")
		input  = fs.String("in", "", "text records, one per line (supports .zst, .gz)")
		output = fs.String("out", "", "packed output file (.zst to compress)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "in", "out"); err != nil {
		return err
	}

	cfg := convert.Config{Input: *input, Output: *output, Logger: log}

	var (
		sum convert.TextSummary
		err error
	)
	switch *game {
	case "chess":
		sum, err = convert.FromText(ctx, cfg, format.ParseChess)
	case "ataxx":
		sum, err = convert.FromText(ctx, cfg, format.ParseAtaxx)
	default:
		return fmt.Errorf("unknown game %q", *game)
	}
	if err != nil {
		return err
	}
	if sum.Skipped > 0 {
		log.Warn().Int64("skipped", sum.Skipped).Err(sum.Err).Msg("some lines were not converted")
	}
	return nil
}

func runConvertBin(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("convert-bin", flag.ContinueOnError)
	var (
		from   = fs.String("from", "marlin", "source layout: marlin or cudad")
		input  = fs.String("in", "", "legacy record file (supports .zst, .gz)")
		output = fs.String("out", "", "packed chess output file (.zst to compress)")
	)
	pf := addPipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "in", "out"); err != nil {
		return err
	}
	buffer, err := pf.bufferSize()
	if err != nil {
		return err
	}

	cfg := convert.Config{
		Input:      *input,
		Output:     *output,
		Threads:    *pf.threads,
		BufferSize: buffer,
		Logger:     log,
	}
	switch *from {
	case "marlin":
		_, err = convert.FromBinary(ctx, cfg, (*format.MarlinFormat).ToChessBoard)
	case "cudad":
		_, err = convert.FromBinary(ctx, cfg, (*format.CudADFormat).ToChessBoard)
	default:
		return fmt.Errorf("unknown source layout %q", *from)
	}
	return err
}

func runExtract(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	var (
		input     = fs.String("pgn", "", "PGN file (supports .zst)")
		output    = fs.String("out", "", "output file (.zst to compress)")
		binary    = fs.Bool("binary", false, "write packed chess records instead of text")
		ratingMin = fs.Int("rating-min", envInt("BULLETFORMAT_RATING_MIN", 0), "rating floor for games (0 = no filter)")
		maxGames  = fs.Int("max-games", 0, "maximum games to process (0 = unlimited)")
		skipPlies = fs.Int("skip-plies", 0, "opening plies not written")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "pgn", "out"); err != nil {
		return err
	}

	_, err := extract.Run(ctx, extract.Config{
		Input:     *input,
		Output:    *output,
		Binary:    *binary,
		RatingMin: *ratingMin,
		MaxGames:  *maxGames,
		SkipPlies: *skipPlies,
		Logger:    log,
	})
	return err
}

func runInspect(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var (
		game  = fs.String("game", "chess", "record type: chess, ataxx, marlin or cudad")
		input = fs.String("in", "", "record file (supports .zst, .gz)")
		blend = fs.Float64("blend", 0.5, "weight of the game result in the training target")
		scale = fs.Float64("scale", 1.0/400, "sigmoid scale applied to scores")
	)
	pf := addPipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "in"); err != nil {
		return err
	}
	buffer, err := pf.bufferSize()
	if err != nil {
		return err
	}

	opts := stats.Options{BufferSize: buffer, Blend: float32(*blend), Scale: float32(*scale)}
	var sum stats.Summary
	switch *game {
	case "chess":
		sum, err = stats.Summarize[format.ChessBoard](ctx, *input, opts)
	case "ataxx":
		sum, err = stats.Summarize[format.AtaxxBoard](ctx, *input, opts)
	case "marlin":
		sum, err = stats.Summarize[format.MarlinFormat](ctx, *input, opts)
	case "cudad":
		sum, err = stats.Summarize[format.CudADFormat](ctx, *input, opts)
	default:
		return fmt.Errorf("unknown game %q", *game)
	}
	if err != nil {
		return err
	}

	log.Debug().Str("file", *input).Int64("records", sum.Records).Msg("inspected")
	if sum.Corrupt > 0 {
		log.Warn().Int64("corrupt", sum.Corrupt).Msg("records with an invalid outcome")
	}
	printSummary(os.Stdout, *input, sum)
	return nil
}

func printSummary(w io.Writer, path string, sum stats.Summary) {
	fmt.Fprintf(w, "file:           %s\n", path)
	fmt.Fprintf(w, "records:        %d\n", sum.Records)
	if sum.Corrupt > 0 {
		fmt.Fprintf(w, "corrupt:        %d (bad outcome byte, excluded below)\n", sum.Corrupt)
	}
	fmt.Fprintf(w, "score:          mean %.2f, stddev %.2f, range [%d, %d]\n",
		sum.ScoreMean, sum.ScoreStdDev, sum.ScoreMin, sum.ScoreMax)
	fmt.Fprintf(w, "outcomes:       %d loss, %d draw, %d win\n",
		sum.Outcomes[0], sum.Outcomes[1], sum.Outcomes[2])
	fmt.Fprintf(w, "features:       %.2f per record\n", sum.MeanFeatures)
	fmt.Fprintf(w, "blended target: %.4f\n", sum.MeanTarget)
}

// errFound stops a scan once the wanted record has been copied out.
var errFound = errors.New("found")

// recordAt returns record index of the file at path.
func recordAt[T any, P format.Decodable[T]](ctx context.Context, path string, index int64) (T, error) {
	var rec T
	l, err := loader.Open[T, P](path, 1<<20)
	if err != nil {
		return rec, err
	}
	if n := l.Len(); n >= 0 && index >= n {
		return rec, fmt.Errorf("record %d out of range, file holds %d", index, n)
	}

	var i int64
	err = l.MapPositions(ctx, func(r *T) error {
		if i == index {
			rec = *r
			return errFound
		}
		i++
		return nil
	})
	if errors.Is(err, errFound) {
		return rec, nil
	}
	if err == nil {
		err = fmt.Errorf("record %d out of range, file holds %d", index, i)
	}
	return rec, err
}

func runShow(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var (
		game   = fs.String("game", "chess", "record type: chess or ataxx")
		input  = fs.String("in", "", "record file (supports .zst, .gz)")
		index  = fs.Int64("index", 0, "record index")
		svgOut = fs.String("svg", "", "write an SVG diagram to this file instead of printing text")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "in"); err != nil {
		return err
	}

	var (
		text string
		draw func(io.Writer) error
	)
	switch *game {
	case "chess":
		b, err := recordAt[format.ChessBoard](ctx, *input, *index)
		if err != nil {
			return err
		}
		text = b.String()
		draw = func(w io.Writer) error { return render.Chess(w, b) }
	case "ataxx":
		b, err := recordAt[format.AtaxxBoard](ctx, *input, *index)
		if err != nil {
			return err
		}
		text = b.String()
		draw = func(w io.Writer) error { return render.Ataxx(w, b) }
	default:
		return fmt.Errorf("unknown game %q", *game)
	}

	if *svgOut == "" {
		fmt.Println(text)
		return nil
	}

	f, err := os.Create(*svgOut)
	if err != nil {
		return err
	}
	if err := draw(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("svg", *svgOut).Int64("index", *index).Msg("wrote diagram")
	return nil
}
