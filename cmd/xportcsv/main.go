// Command xportcsv decodes a SAS XPORT transport file to CSV.
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/jvdlinde/xportcsv/internal/xport"
)

func main() {
	var (
		verbose              = pflag.BoolP("verbose", "v", false, "Log encoding fallbacks and precision-loss warnings to stderr.")
		obfuscationHeuristic = pflag.BoolP("obfuscation-heuristic", "", false, "With --verbose, log when a numeric payload matches the obfuscated-datetime leading-byte pattern.")
		help                 = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "xportcsv - decode a SAS XPORT transport file to CSV.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: xportcsv [options] [input] [output]\n")
		fmt.Fprintf(os.Stderr, "  input and output default to stdin and stdout.\n\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "", 0)
	}

	in := os.Stdin
	if pflag.NArg() > 0 && pflag.Arg(0) != "-" {
		f, err := os.Open(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "xportcsv: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	out := os.Stdout
	if pflag.NArg() > 1 {
		f, err := os.Create(pflag.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "xportcsv: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	sink := xport.NewCSVSink(out)
	dec := xport.NewDecoder(in, sink, xport.Options{ObfuscationHeuristic: *obfuscationHeuristic}, logger)

	if err := dec.Run(); err != nil {
		if de, ok := err.(*xport.DecodeError); ok && de.Record != nil {
			fmt.Fprintf(os.Stderr, "xportcsv: %s: %s\nrecord: %s\n", de.Kind, de.Message, hex.EncodeToString(de.Record[:]))
		} else {
			fmt.Fprintf(os.Stderr, "xportcsv: %v\n", err)
		}
		os.Exit(1)
	}

	if err := sink.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "xportcsv: %v\n", err)
		os.Exit(1)
	}
}
