// Command fer runs a Fer script file or, with no arguments, an interactive
// REPL: each line is compiled and run as its own top-level script against a
// persistent VM, so earlier permanent variables and function declarations
// stay visible to later lines.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xirelogy/go-fer/internal/disasm"
	"github.com/xirelogy/go-fer/internal/natives"
	"github.com/xirelogy/go-fer/internal/vm"
)

const (
	exitOK           = 0
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var trace, stressGC, dumpDisasm bool
	exitCode := exitOK

	cmd := &cobra.Command{
		Use:           "fer [script]",
		Short:         "Run a Fer script, or start a REPL if no script is given",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			var opts []vm.Option
			if stressGC {
				opts = append(opts, vm.WithStressGC())
			}
			if trace {
				opts = append(opts, vm.WithTraceHook(func(info vm.TraceInfo) {
					fmt.Fprintf(os.Stderr, "%04d %-20s %s\n", info.IP, info.Op, info.Function)
				}))
			}
			v := vm.New(opts...)
			natives.Register(v)

			if len(cmdArgs) == 1 {
				exitCode = runFile(v, cmdArgs[0], dumpDisasm)
				return nil
			}
			exitCode = runREPL(v)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&trace, "trace", false, "log each dispatched instruction to stderr")
	flags.BoolVar(&stressGC, "stress-gc", false, "collect garbage on every allocation")
	flags.BoolVar(&dumpDisasm, "disasm", false, "dump the compiled bytecode before running")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	return exitCode
}

func runFile(v *vm.VM, path string, dumpDisasm bool) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOError
	}

	fn, err := v.Compile(string(data), path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCompileError
	}

	if dumpDisasm {
		if err := disasm.New(os.Stdout).DisassembleFunction(path, fn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	if _, err := v.Run(fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntimeError
	}
	return exitOK
}

// runREPL reads lines from stdin and interprets each as its own top-level
// script against v, stopping cleanly on EOF or SIGINT. An errgroup
// supervises the read loop against a context canceled by the interrupt
// signal, so a line mid-read doesn't block process shutdown.
func runREPL(v *vm.VM) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return scanner.Err()
	})

	fmt.Print("> ")
loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if strings.TrimSpace(line) != "" {
				if _, err := v.Interpret(line, "repl"); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			}
			fmt.Print("> ")
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		return exitIOError
	}
	fmt.Println()
	return exitOK
}
