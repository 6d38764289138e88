// Command hdlsim runs an elaborated design against the kernel: it loads a
// MIR-text file, drives the simulation to completion (or a time limit),
// and optionally records a waveform and/or an interactive debug session.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minz/hdlsim/internal/diag"
	"github.com/minz/hdlsim/internal/waveform"
	"github.com/minz/hdlsim/pkg/debugger"
	"github.com/minz/hdlsim/pkg/ir/mirtext"
	"github.com/minz/hdlsim/pkg/kernel"
	"github.com/minz/hdlsim/pkg/scripting"
	"github.com/minz/hdlsim/pkg/version"
)

var (
	waveOut     string
	waveBinary  bool
	scriptFile  string
	runUntilFS  uint64
	interactive bool
	showVersion bool
	deltaLimit  uint32
)

var rootCmd = &cobra.Command{
	Use:   "hdlsim <design.mir>",
	Short: "hdlsim " + version.GetVersion() + " — event-driven digital logic simulator",
	Long: `hdlsim runs an elaborated hardware design's MIR-text description
through a four-state, delta-cycle-accurate simulation kernel.

EXAMPLES:
  hdlsim counter.mir                    # run to completion
  hdlsim counter.mir --until 1000000    # stop at 1,000,000 fs
  hdlsim counter.mir --wave out.vcd     # record a VCD-shaped waveform
  hdlsim counter.mir --script tb.lua    # drive stimulus from Lua
  hdlsim counter.mir --interactive      # step under the debugger`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetFullVersion())
			return nil
		}
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().StringVar(&waveOut, "wave", "", "write a waveform recording to this file")
	rootCmd.Flags().BoolVar(&waveBinary, "wave-binary", false, "write the waveform in the FST-shaped binary format instead of VCD text")
	rootCmd.Flags().StringVar(&scriptFile, "script", "", "Lua testbench script to drive stimulus and probes")
	rootCmd.Flags().Uint64Var(&runUntilFS, "until", 0, "stop after this many femtoseconds (0 = run to completion)")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "step the simulation under the interactive debugger")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show version")
	rootCmd.Flags().Uint32Var(&deltaLimit, "delta-limit", 10000, "max delta cycles per settle before reporting a fatal diagnostic")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	design, interner, err := mirtext.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg := kernel.DefaultConfig()
	cfg.DeltaCycleLimit = deltaLimit
	k, err := kernel.NewKernel(design, interner, cfg)
	if err != nil {
		return fmt.Errorf("elaborating %s: %w", path, err)
	}

	var hook *scripting.Hook
	if scriptFile != "" {
		scriptSrc, err := os.ReadFile(scriptFile)
		if err != nil {
			return fmt.Errorf("reading script %s: %w", scriptFile, err)
		}
		hook, err = scripting.New(k, string(scriptSrc))
		if err != nil {
			return fmt.Errorf("loading script %s: %w", scriptFile, err)
		}
		defer hook.Close()
		k.SetTickHook(hook.AsTickHook())
	}

	var wave *waveRecorder
	if waveOut != "" {
		wave, err = newWaveRecorder(waveOut, waveBinary, k)
		if err != nil {
			return err
		}
		defer wave.Close()
	}

	if err := k.Initialize(); err != nil {
		return err
	}
	if wave != nil {
		if err := wave.WriteInitial(); err != nil {
			return err
		}
	}
	drainOutput(k)

	if interactive {
		dbg := debugger.New(k, nil)
		return dbg.Run()
	}

	for !k.IsFinished() {
		if runUntilFS > 0 {
			nextFS, ok := k.NextEventTimeFS()
			if !ok || nextFS > runUntilFS {
				break
			}
		}
		ran, err := k.StepDelta()
		if err != nil {
			return err
		}
		if !ran {
			break
		}
		drainOutput(k)
		if wave != nil {
			if err := wave.WriteStep(); err != nil {
				return err
			}
		}
	}

	return reportDiagnostics(k)
}

func drainOutput(k *kernel.Kernel) {
	for _, d := range k.TakeDisplayOutput() {
		fmt.Println(d.Text)
	}
	for _, a := range k.TakeAssertionFailures() {
		fmt.Fprintf(os.Stderr, "assertion failed at %d fs (process %d): %s\n", k.NowFS(), a.ProcessIndex, a.Message)
	}
}

func reportDiagnostics(k *kernel.Kernel) error {
	fatal := false
	for _, d := range k.Diagnostics().Take() {
		fmt.Fprintf(os.Stderr, "%s: %s\n", d.Severity, d.Message)
		if d.Severity == diag.Fatal {
			fatal = true
		}
	}
	if fatal {
		os.Exit(1)
	}
	return nil
}
