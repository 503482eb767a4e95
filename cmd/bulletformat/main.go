package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jw1912/bulletformat/internal/logx"
)

// command is one bulletformat subcommand.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, log zerolog.Logger, args []string) error
}

var commands = []command{
	{"convert-text", "parse text records into packed records", runConvertText},
	{"convert-bin", "convert legacy chess records to the packed chess layout", runConvertBin},
	{"extract", "write every position of a PGN file as a training record", runExtract},
	{"inspect", "print statistics for a record file", runInspect},
	{"show", "print or draw a single record", runShow},
}

// errUsage is returned by a subcommand whose flags are incomplete.
var errUsage = errors.New("usage")

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: bulletformat <command> [options]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run 'bulletformat <command> -h' for command options.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == os.Args[1] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	logger, err := logx.NewLogger(envString("BULLETFORMAT_LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, logger, os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			stop()
			os.Exit(2)
		}
		logger.Fatal().Err(err).Str("command", cmd.name).Msg("command failed")
	}
}

// pipelineFlags are shared by the commands that stream record files.
type pipelineFlags struct {
	threads *int
	buffer  *string
}

func addPipelineFlags(fs *flag.FlagSet) pipelineFlags {
	return pipelineFlags{
		threads: fs.Int("threads", envInt("BULLETFORMAT_THREADS", runtime.NumCPU()), "conversion goroutines per batch"),
		buffer:  fs.String("buffer", envString("BULLETFORMAT_BUFFER", "512m"), "loader refill budget (e.g. 64m, 1g)"),
	}
}

func (p pipelineFlags) bufferSize() (int, error) {
	n := parseSize(*p.buffer)
	if n <= 0 {
		return 0, fmt.Errorf("invalid buffer size %q", *p.buffer)
	}
	return int(n), nil
}

// requireFlags reports the first empty required string flag.
func requireFlags(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if fs.Lookup(name).Value.String() == "" {
			fmt.Fprintf(os.Stderr, "missing -%s\n", name)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}
