package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/akhildatla/pm0/pkg/repl"
)

const historyFile = ".pm0_history"

func replCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("repl", stderr)
	configPath := fs.String("config", "", "config file (default: search for pm0.toml)")
	stackCap := fs.Int("stack", 0, "stack capacity in words")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) > 1 {
		return fmt.Errorf("usage: pm0 repl [file]")
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return err
	}
	if *stackCap > 0 {
		cfg.VM.StackCap = *stackCap
	}

	r := repl.New()
	r.SetStackCap(cfg.VM.StackCap)
	if cfg.VM.MaxSteps > 0 {
		r.SetRunLimit(cfg.VM.MaxSteps)
	}
	if len(positional) == 1 {
		r.Eval("load "+positional[0], stdout)
	}

	if !liner.TerminalSupported() {
		r.Start(os.Stdin, stdout)
		return nil
	}
	return lineLoop(r, stdout)
}

// lineLoop drives r with line editing and a persistent history.
func lineLoop(r *repl.REPL, stdout io.Writer) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintln(stdout, "PM/0 debugger")
	fmt.Fprintln(stdout, "Type 'help' for available commands, 'quit' to exit")

	for !r.Done() {
		line, err := ln.Prompt(r.Prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		evalInterruptible(r, line, stdout)
	}
	return nil
}

// evalInterruptible evaluates line with Ctrl-C cancelling a long run
// instead of killing the debugger.
func evalInterruptible(r *repl.REPL, line string, stdout io.Writer) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	r.SetContext(ctx)
	r.Eval(line, stdout)
}
