package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type commandOptions struct {
	Target      string `short:"a" long:"address"      default:"127.0.0.1:8000" description:"Node to send gossip frames to"       `
	Prefix      string `short:"p" long:"prefix"       default:"loadtest"       description:"Payload prefix"                      `
	Rate        uint   `short:"r" long:"rate"         default:"1000"           description:"Target frames per second"            `
	Count       uint64 `short:"c" long:"count"        default:"10000"          description:"Number of frames to send"            `
	PayloadSize uint   `          long:"payload-size" default:"128"            description:"Pad payloads to this many bytes"     `
	Workers     uint   `short:"w" long:"workers"      default:"1"              description:"Number of parallel workers to use"   `
}

func parseArgs(args []string) commandOptions {
	var opts commandOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.LongDescription = "" + // because gofmt
		"Every payload carries a timestamp and sequence number, so the receiving node\n" +
		"treats each frame as new gossip and floods it to every peer it is linked to.\n" +
		"The target rate and count are split across workers."

	positional, err := parser.ParseArgs(args)
	if err != nil {
		if !isHelp(err) {
			parser.WriteHelp(os.Stderr)
			_, _ = fmt.Fprintf(os.Stderr, "\n\nerror parsing command line: %v\n", err)
			os.Exit(1)
		}
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if len(positional) != 0 {
		// go-flags has no way to declare that positional arguments are not accepted.
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\nno positional arguments allowed\n")
		os.Exit(1)
	}

	if opts.Count == 0 {
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\ncount must be non-zero\n")
		os.Exit(1)
	}

	if opts.Workers == 0 || opts.Rate < opts.Workers {
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\nrate must be at least the number of workers, and workers must be non-zero\n")
		os.Exit(1)
	}

	return opts
}

// isHelp reports whether the error from ParseArgs() means the help message
// was requested. Safe to call on a nil error.
func isHelp(err error) bool {
	flagError, ok := err.(*flags.Error)
	return ok && flagError.Type == flags.ErrHelp
}
