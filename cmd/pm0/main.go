// Package main provides the CLI entry point for the PM/0 virtual machine.
//
// Usage:
//
//	pm0 run program.txt              # Execute a program
//	pm0 run -trace text program.txt  # Execute with the classic trace
//	pm0 asm program.asm              # Assemble to bytecode (.pm0b)
//	pm0 exec program.pm0b            # Execute bytecode
//	pm0 disasm program.pm0b          # List a program
//	pm0 export -format csv prog.txt  # Convert a program to a table
//	pm0 runs trace.db                # Inspect recorded runs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/akhildatla/pm0/internal/config"
	"github.com/akhildatla/pm0/pkg/asm"
	"github.com/akhildatla/pm0/pkg/loader"
	"github.com/akhildatla/pm0/pkg/trace"
	"github.com/akhildatla/pm0/pkg/vm"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes
const (
	exitOK    = 0
	exitUsage = 1
	exitFault = 2
)

var log = commonlog.GetLogger("pm0.cmd")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	var err error

	switch cmd {
	case "run":
		return runCommand("run", rest, "", stdin, stdout, stderr)
	case "exec":
		return runCommand("exec", rest, loader.FormatBytecode, stdin, stdout, stderr)
	case "asm":
		err = asmCommand(rest, stdout, stderr)
	case "disasm":
		err = disasmCommand(rest, stdout, stderr)
	case "export":
		err = exportCommand(rest, stdout, stderr)
	case "runs":
		err = runsCommand(rest, stdout, stderr)
	case "repl":
		err = replCommand(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "pm0 version %s\n", version)
		if commit != "none" {
			fmt.Fprintf(stdout, "  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(stdout, "  built:  %s\n", date)
		}
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return exitUsage
	}
	return exitOK
}

// parseArgs parses flags that may appear before or after positional
// arguments and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// loadConfig reads the file at path, or searches upward from the working
// directory when path is empty, then configures logging.
func loadConfig(path string, verbose bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}

	verbosity := cfg.Log.Verbosity
	if verbose && verbosity < 1 {
		verbosity = 1
	}
	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logPath)

	if cfg.Path != "" {
		log.Debugf("using config %s", cfg.Path)
	}
	return cfg, nil
}

func runCommand(name string, args []string, format loader.Format, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	configPath := fs.String("config", "", "config file (default: search for pm0.toml)")
	verbose := fs.Bool("v", false, "verbose output")
	formatFlag := fs.String("format", "", "program format (text, csv, json, parquet, bytecode, asm)")
	traceFmt := fs.String("trace", "", "trace format: none, text, table, json, cbor")
	traceOut := fs.String("trace-out", "", "trace output file (default: stdout)")
	window := fs.Int("window", 0, "stack cells shown in the initial text trace")
	dbPath := fs.String("db", "", "record the run in a SQLite database")
	record := fs.String("record", "", "export executed steps to a .csv or .parquet file")
	inputFlag := fs.String("input", "", "whitespace-separated console input (default: stdin)")
	stackCap := fs.Int("stack", 0, "stack capacity in words")
	maxSteps := fs.Int64("max-steps", -1, "instruction limit (0 for none)")
	timeout := fs.Duration("timeout", -1, "execution timeout (0 for none)")
	stats := fs.Bool("stats", false, "print per-opcode counts and machine stats to stderr")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(positional) != 1 {
		fmt.Fprintf(stderr, "usage: pm0 %s [options] <file>\n", name)
		return exitUsage
	}
	path := positional[0]

	cfg, err := loadConfig(*configPath, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	applyRunFlags(cfg, *traceFmt, *traceOut, *dbPath, *window, *stackCap)

	if *formatFlag != "" {
		format = loader.Format(*formatFlag)
	}
	if format == "" {
		format = loader.DetectFormat(path)
	}
	if *verbose {
		fmt.Fprintf(stderr, "Executing: %s (%s)\n", path, format)
	}

	program, err := loader.LoadAs(path, format)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	machine := vm.NewVM()
	machine.SetStackCap(cfg.VM.StackCap)
	if *inputFlag != "" {
		machine.SetInput(vm.NewReaderInput(strings.NewReader(*inputFlag)))
	} else {
		machine.SetInput(vm.NewReaderInput(stdin))
	}

	steps := cfg.VM.MaxSteps
	if *maxSteps >= 0 {
		steps = *maxSteps
	}
	machine.SetMaxSteps(steps)

	limit := cfg.VM.TimeoutDuration()
	if *timeout >= 0 {
		limit = *timeout
	}
	ctx := context.Background()
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	machine.SetContext(ctx)

	s, err := newSession(cfg, stdout, path)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	defer s.close()

	machine.SetOutput(s.output)
	tracers := []vm.Tracer{s.tracer}
	var counter *trace.Counter
	if *stats {
		counter = trace.Count()
		tracers = append(tracers, counter)
		machine.EnableStats()
	}
	var recorder *trace.Recorder
	if *record != "" {
		recorder = trace.NewRecorder()
		tracers = append(tracers, recorder)
	}
	if s.store != nil {
		tracers = append(tracers, s.store)
	}
	tracer := trace.Multi(tracers...)
	machine.SetTracer(tracer)

	if err := machine.Load(program); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	start := time.Now()
	runErr := machine.Run()
	log.Infof("%s: %d steps in %s", path, machine.Steps(), time.Since(start))

	// Step-limit and timeout stops leave the machine resumable, so the
	// machine does not end the trace itself. This run is over.
	var fault *vm.Fault
	if runErr != nil && !errors.As(runErr, &fault) && tracer != nil {
		tracer.End(machine, runErr)
	}

	if err := s.finish(); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
	if recorder != nil {
		if err := exportRecording(recorder, *record); err != nil {
			fmt.Fprintf(stderr, "warning: %v\n", err)
		}
	}
	if counter != nil {
		printCounts(stderr, counter)
		if st := machine.Stats(); st != nil {
			fmt.Fprintf(stderr, "calls=%d max_depth=%d min_sp=%d time=%s\n",
				st.Calls, st.MaxDepth, st.MinSP, time.Duration(st.ExecutionTimeNs))
		}
	}

	if runErr != nil {
		// The text trace already ends with the fault.
		if cfg.Trace.Format != "text" || s.file != nil {
			fmt.Fprintf(stderr, "error: %v\n", runErr)
		}
		return exitFault
	}
	return exitOK
}

func applyRunFlags(cfg *config.Config, traceFmt, traceOut, db string, window, stackCap int) {
	if traceFmt != "" {
		cfg.Trace.Format = strings.ToLower(traceFmt)
	}
	if traceOut != "" {
		cfg.Trace.Output = traceOut
	}
	if db != "" {
		cfg.Trace.DB = db
	}
	if window > 0 {
		cfg.Trace.StackWindow = window
	}
	if stackCap > 0 {
		cfg.VM.StackCap = stackCap
	}
}

// session owns the trace destination, tracer and store of one run.
type session struct {
	output vm.Output
	tracer vm.Tracer
	file   *os.File
	store  *trace.StoreTracer
	db     *trace.Store

	text *trace.TextTracer
	json *trace.JSONTracer
	cbor *trace.CBORTracer
}

func newSession(cfg *config.Config, stdout io.Writer, name string) (*session, error) {
	s := &session{}

	w := stdout
	if cfg.Trace.Output != "" && cfg.Trace.Format != "none" {
		f, err := os.Create(cfg.Trace.Output)
		if err != nil {
			return nil, fmt.Errorf("creating trace output: %w", err)
		}
		s.file = f
		w = f
	}

	s.output = vm.OutputFunc(func(reg int, v int64) error {
		_, err := fmt.Fprintf(stdout, "%d\n", v)
		return err
	})

	switch cfg.Trace.Format {
	case "none":
	case "text":
		s.text = trace.Text(w, trace.TextOptions{Window: cfg.Trace.StackWindow})
		s.tracer = s.text
		if s.file == nil {
			s.output = trace.ConsoleOutput{W: stdout}
		}
	case "table":
		s.tracer = trace.Table(w)
	case "json":
		s.json = trace.JSONLines(w)
		s.tracer = s.json
	case "cbor":
		s.cbor = trace.CBOR(w)
		s.tracer = s.cbor
	default:
		s.close()
		return nil, fmt.Errorf("unknown trace format %q", cfg.Trace.Format)
	}

	if cfg.Trace.DB != "" {
		db, err := trace.OpenStore(cfg.Trace.DB)
		if err != nil {
			s.close()
			return nil, err
		}
		s.db = db
		s.store = db.Tracer(filepath.Base(name))
	}
	return s, nil
}

// finish reports the first tracer error of the run.
func (s *session) finish() error {
	switch {
	case s.text != nil && s.text.Err() != nil:
		return fmt.Errorf("writing trace: %w", s.text.Err())
	case s.json != nil && s.json.Err() != nil:
		return fmt.Errorf("writing trace: %w", s.json.Err())
	case s.cbor != nil && s.cbor.Err() != nil:
		return fmt.Errorf("writing trace: %w", s.cbor.Err())
	case s.store != nil && s.store.Err() != nil:
		return fmt.Errorf("recording run: %w", s.store.Err())
	}
	if s.store != nil {
		log.Infof("recorded run %d", s.store.RunID())
	}
	return nil
}

func (s *session) close() {
	if s.file != nil {
		s.file.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func exportRecording(r *trace.Recorder, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return r.ExportParquet(path)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := r.ExportCSV(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("record file must end in .csv or .parquet: %s", path)
	}
}

func printCounts(w io.Writer, c *trace.Counter) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Opcode", "Count"})
	for _, oc := range c.Summary() {
		table.Append([]string{oc.Op.String(), strconv.Itoa(oc.Count)})
	}
	table.SetFooter([]string{"Total", strconv.Itoa(c.Total())})
	table.Render()
}

func asmCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("asm", stderr)
	output := fs.String("o", "", "output file (default: input with .pm0b extension)")
	verbose := fs.Bool("v", false, "verbose output")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: pm0 asm <file> [-o output.pm0b]")
	}

	inputPath := positional[0]
	outputPath := *output
	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".pm0b"
	}

	if *verbose {
		fmt.Fprintf(stdout, "Assembling: %s -> %s\n", inputPath, outputPath)
	}

	program, err := loader.Load(inputPath)
	if err != nil {
		return err
	}

	bytecode, err := vm.SerializeProgram(program)
	if err != nil {
		return fmt.Errorf("serializing: %w", err)
	}
	if err := os.WriteFile(outputPath, bytecode, 0644); err != nil {
		return fmt.Errorf("writing bytecode: %w", err)
	}

	if *verbose {
		fmt.Fprintf(stdout, "Assembled %d instructions\n", len(program.Code))
		fmt.Fprintf(stdout, "Output: %s (%d bytes)\n", outputPath, len(bytecode))
	} else {
		fmt.Fprintf(stdout, "Assembled: %s\n", outputPath)
	}
	return nil
}

func disasmCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("disasm", stderr)
	output := fs.String("o", "", "output file (default: stdout)")
	source := fs.Bool("asm", false, "emit assembler source instead of a listing")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: pm0 disasm <file> [-asm] [-o output]")
	}

	program, err := loader.Load(positional[0])
	if err != nil {
		return err
	}

	var listing string
	if *source {
		if listing, err = asm.Format(program); err != nil {
			return err
		}
	} else {
		listing = vm.Disassemble(program)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(listing), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Fprintf(stdout, "Disassembled to: %s\n", *output)
		return nil
	}
	fmt.Fprint(stdout, listing)
	return nil
}

func exportCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export", stderr)
	format := fs.String("format", "csv", "table format: csv or parquet")
	output := fs.String("o", "", "output file (required for parquet, default stdout for csv)")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: pm0 export <file> [-format csv|parquet] [-o output]")
	}

	program, err := loader.Load(positional[0])
	if err != nil {
		return err
	}

	switch *format {
	case "csv":
		if *output == "" {
			return loader.ExportCSV(stdout, program)
		}
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		if err := loader.ExportCSV(f, program); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	case "parquet":
		if *output == "" {
			return fmt.Errorf("parquet export needs -o")
		}
		if err := loader.ExportParquet(*output, program); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}

	fmt.Fprintf(stdout, "Exported: %s\n", *output)
	return nil
}

func runsCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("runs", stderr)
	id := fs.Int64("id", 0, "show the steps of one run")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: pm0 runs <trace.db> [-id N]")
	}
	if _, err := os.Stat(positional[0]); err != nil {
		return err
	}

	store, err := trace.OpenStore(positional[0])
	if err != nil {
		return err
	}
	defer store.Close()

	if *id != 0 {
		steps, err := store.Steps(*id)
		if err != nil {
			return fmt.Errorf("run %d: %w", *id, err)
		}
		trace.RenderSteps(stdout, steps)
		return nil
	}

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(stdout)
	table.SetHeader([]string{"ID", "Name", "Started", "Steps", "Halted", "Error"})
	for _, r := range runs {
		table.Append([]string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			r.StartedAt.Local().Format(time.DateTime),
			strconv.FormatInt(r.Steps, 10),
			strconv.FormatBool(r.Halted),
			r.Error,
		})
	}
	table.Render()
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `PM/0 - a register-and-stack P-machine

Usage:
  pm0 <command> [arguments]

Commands:
  run <file>            Execute a program (text, csv, json, parquet, pm0b, asm)
  exec <file.pm0b>      Execute bytecode
  asm <file>            Assemble a program to bytecode (.pm0b)
  disasm <file>         List a program
  export <file>         Convert a program to a CSV or Parquet table
  runs <trace.db>       List runs recorded with -db
  repl [file]           Start the interactive debugger
  version               Print version information
  help                  Show this help message

Run/Exec Options:
  -config <file>        Config file (default: search for pm0.toml)
  -trace <format>       none, text, table, json or cbor
  -trace-out <file>     Write the trace to a file
  -window <n>           Stack cells shown in the initial text trace
  -db <file>            Record the run in a SQLite database
  -record <file>        Export executed steps to .csv or .parquet
  -input <ints>         Console input (default: stdin)
  -stack <n>            Stack capacity in words
  -max-steps <n>        Instruction limit
  -timeout <duration>   Execution timeout
  -stats                Print per-opcode counts and machine stats
  -format <format>      Override format detection
  -v                    Verbose output

Asm Options:
  -o <file>             Output file (default: input with .pm0b extension)
  -v                    Verbose output

Disasm Options:
  -asm                  Emit assembler source
  -o <file>             Output file (default: stdout)

Export Options:
  -format csv|parquet   Table format (default: csv)
  -o <file>             Output file

Runs Options:
  -id <n>               Show the steps of one run

Exit status is 0 when the program halts, 1 for usage or load errors and
2 when the machine faults.

Examples:
  pm0 run -trace text examples/nested.txt
  pm0 run -input "4 6" examples/echo.asm
  pm0 asm examples/nested.asm -o nested.pm0b
  pm0 exec nested.pm0b
  pm0 run -db runs.db nested.pm0b && pm0 runs runs.db -id 1
  pm0 repl examples/nested.asm`)
}
