// Command hdlsim-mir is a minimal flag-based MIR-text runner, the
// scripting-and-waveform-free counterpart to cmd/hdlsim intended for
// quick smoke tests and CI harnesses.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/minz/hdlsim/pkg/ir/mirtext"
	"github.com/minz/hdlsim/pkg/kernel"
)

func main() {
	var (
		input      = flag.String("i", "", "input MIR-text file")
		untilFS    = flag.Uint64("until", 0, "stop after this many femtoseconds (0 = run to completion)")
		deltaLimit = flag.Uint("delta-limit", 10000, "max delta cycles per settle")
		verbose    = flag.Bool("v", false, "print every settled event's time")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hdlsim-mir: run a MIR-text design to completion\n")
		fmt.Fprintf(os.Stderr, "usage: %s -i design.mir [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *input == "" {
		if flag.NArg() > 0 {
			*input = flag.Arg(0)
		} else {
			fmt.Fprintln(os.Stderr, "Error: input MIR file required")
			flag.Usage()
			os.Exit(1)
		}
	}

	src, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *input, err)
		os.Exit(1)
	}

	design, interner, err := mirtext.Parse(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", *input, err)
		os.Exit(1)
	}

	cfg := kernel.DefaultConfig()
	cfg.DeltaCycleLimit = uint32(*deltaLimit)
	k, err := kernel.NewKernel(design, interner, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error elaborating %s: %v\n", *input, err)
		os.Exit(1)
	}

	if err := k.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
	drain(k, *verbose)

	steps := 0
	for !k.IsFinished() {
		if *untilFS > 0 {
			nextFS, ok := k.NextEventTimeFS()
			if !ok || nextFS > *untilFS {
				break
			}
		}
		ran, err := k.StepDelta()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
			os.Exit(1)
		}
		if !ran {
			break
		}
		steps++
		drain(k, *verbose)
	}

	if d := k.Diagnostics().FatalError(); d != nil {
		fmt.Fprintf(os.Stderr, "%v\n", d)
		os.Exit(1)
	}
	for _, diag := range k.Diagnostics().Take() {
		fmt.Fprintf(os.Stderr, "%s: %s\n", diag.Severity, diag.Message)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "\n%d delta-cycle steps, finished at %d fs\n", steps, k.NowFS())
	}
}

func drain(k *kernel.Kernel, verbose bool) {
	for _, d := range k.TakeDisplayOutput() {
		fmt.Println(d.Text)
	}
	for _, a := range k.TakeAssertionFailures() {
		fmt.Fprintf(os.Stderr, "assertion failed at %d fs (process %d): %s\n", k.NowFS(), a.ProcessIndex, a.Message)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "t = %d fs\n", k.NowFS())
	}
}
