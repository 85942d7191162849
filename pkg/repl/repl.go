// Package repl implements an interactive PM/0 debugger.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/akhildatla/pm0/pkg/asm"
	"github.com/akhildatla/pm0/pkg/loader"
	"github.com/akhildatla/pm0/pkg/trace"
	"github.com/akhildatla/pm0/pkg/vm"
)

const (
	promptCmd = "pm0> "
	promptASM = "asm> "
)

// DefaultRunLimit bounds the instructions one run command executes.
const DefaultRunLimit = 100000

// REPL provides an interactive debugger over one VM.
type REPL struct {
	vm          *vm.VM
	program     *vm.Program
	source      string
	input       *vm.SliceInput
	output      *vm.CollectOutput
	breakpoints map[int]bool
	history     []string
	multiline   strings.Builder
	inMultiline bool
	quit        bool
	runLimit    int64
	ctx         context.Context

	out io.Writer
}

// New creates a new REPL instance.
func New() *REPL {
	r := &REPL{
		vm:          vm.NewVM(),
		input:       vm.NewSliceInput(),
		output:      &vm.CollectOutput{},
		breakpoints: make(map[int]bool),
		runLimit:    DefaultRunLimit,
		out:         io.Discard,
	}
	r.vm.SetInput(r.input)
	r.vm.SetOutput(vm.OutputFunc(func(reg int, v int64) error {
		r.output.WriteInt(reg, v)
		return trace.ConsoleOutput{W: r.out}.WriteInt(reg, v)
	}))
	return r
}

// SetStackCap sets the stack capacity used from the next load or reset.
func (r *REPL) SetStackCap(n int) {
	r.vm.SetStackCap(n)
	if r.program != nil {
		r.vm.Reset()
	}
}

// SetRunLimit sets how many instructions one run command may execute
// before it stops. Zero means unlimited.
func (r *REPL) SetRunLimit(n int64) {
	if n < 0 {
		n = 0
	}
	r.runLimit = n
}

// SetContext sets a context whose cancellation interrupts run.
func (r *REPL) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// LoadProgram makes p the program under debug.
func (r *REPL) LoadProgram(p *vm.Program, source string) error {
	if err := r.vm.Load(p); err != nil {
		return err
	}
	r.program = p
	r.source = source
	r.output.Emitted = nil
	r.breakpoints = make(map[int]bool)
	return nil
}

// Prompt returns the prompt for the next line.
func (r *REPL) Prompt() string {
	if r.inMultiline {
		return promptASM
	}
	return promptCmd
}

// Done reports whether quit has been entered.
func (r *REPL) Done() bool { return r.quit }

// Start starts the REPL loop.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "PM/0 debugger")
	fmt.Fprintln(out, "Type 'help' for available commands, 'quit' to exit")
	fmt.Fprintln(out)

	for !r.quit {
		fmt.Fprint(out, r.Prompt())
		if !scanner.Scan() {
			break
		}
		r.Eval(scanner.Text(), out)
	}
}

// Eval handles one line of input.
func (r *REPL) Eval(line string, out io.Writer) {
	r.out = out

	if r.inMultiline {
		if strings.TrimSpace(line) == "" {
			r.inMultiline = false
			src := r.multiline.String()
			r.multiline.Reset()
			r.assemble(src, out)
			return
		}
		r.multiline.WriteString(line)
		r.multiline.WriteString("\n")
		return
	}

	if strings.TrimSpace(line) != "" {
		r.history = append(r.history, line)
	}
	r.handleCommand(line, out)
}

func (r *REPL) handleCommand(line string, out io.Writer) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	args := parts[1:]

	switch parts[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Goodbye!")
		r.quit = true

	case "help", "h", "?":
		r.printHelp(out)

	case "load":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: load <file>")
			return true
		}
		r.load(args[0], out)

	case "asm":
		r.inMultiline = true
		fmt.Fprintln(out, "Enter assembly, blank line to finish")

	case "step", "s":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				fmt.Fprintf(out, "Invalid step count: %s\n", args[0])
				return true
			}
			n = v
		}
		r.step(n, out)

	case "run", "continue", "c":
		r.run(out)

	case "regs", "r":
		trace.RenderRegisters(out, r.vm.Registers())

	case "stack":
		if r.requireProgram(out) {
			trace.RenderStack(out, r.vm.State())
		}

	case "frames":
		if r.requireProgram(out) {
			r.listFrames(out)
		}

	case "list", "l":
		if r.requireProgram(out) {
			r.list(out)
		}

	case "break", "b":
		if len(args) == 0 {
			r.listBreakpoints(out)
			return true
		}
		r.setBreakpoint(args[0], out)

	case "clear":
		r.clearBreakpoints(args, out)

	case "reset":
		if r.requireProgram(out) {
			r.vm.Reset()
			r.output.Emitted = nil
			fmt.Fprintln(out, "Machine reset")
		}

	case "input":
		r.pushInput(args, out)

	case "output":
		fmt.Fprintf(out, "%v\n", r.output.Values())

	case "history":
		for i, cmd := range r.history {
			fmt.Fprintf(out, "%3d: %s\n", i+1, cmd)
		}

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help')\n", parts[0])
		return false
	}
	return true
}

func (r *REPL) requireProgram(out io.Writer) bool {
	if r.program == nil {
		fmt.Fprintln(out, "No program loaded")
		return false
	}
	return true
}

func (r *REPL) load(path string, out io.Writer) {
	p, err := loader.Load(path)
	if err != nil {
		fmt.Fprintf(out, "Error loading %s: %v\n", path, err)
		return
	}
	r.LoadProgram(p, path)
	fmt.Fprintf(out, "Loaded %s (%d instructions)\n", path, len(p.Code))
}

func (r *REPL) assemble(src string, out io.Writer) {
	p, err := asm.AssembleString(src)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if len(p.Code) == 0 {
		fmt.Fprintln(out, "Error: program has no instructions")
		return
	}
	r.LoadProgram(p, "<asm>")
	fmt.Fprintf(out, "Assembled %d instructions\n", len(p.Code))
}

// step executes up to n instructions, printing each one.
func (r *REPL) step(n int, out io.Writer) {
	if !r.requireProgram(out) {
		return
	}
	for i := 0; i < n; i++ {
		if !r.stepOnce(out) {
			return
		}
		if i+1 < n && r.breakpoints[r.vm.PC()] {
			fmt.Fprintf(out, "Breakpoint at %d\n", r.vm.PC())
			return
		}
	}
}

// run executes until the machine halts, faults, reaches a breakpoint,
// exhausts the run limit or is interrupted. A breakpoint on the current
// instruction does not stop the first step.
func (r *REPL) run(out io.Writer) {
	if !r.requireProgram(out) {
		return
	}
	for n := int64(0); ; n++ {
		if n > 0 && r.breakpoints[r.vm.PC()] {
			fmt.Fprintf(out, "Breakpoint at %d\n", r.vm.PC())
			return
		}
		if r.ctx != nil && r.ctx.Err() != nil {
			fmt.Fprintf(out, "Interrupted at %d\n", r.vm.PC())
			return
		}
		if r.runLimit > 0 && n >= r.runLimit {
			fmt.Fprintf(out, "Stopped at %d after %d steps (run limit, 'run' continues)\n", r.vm.PC(), n)
			return
		}
		if !r.stepOnce(out) {
			return
		}
	}
}

// stepOnce executes one instruction and reports whether execution can
// continue.
func (r *REPL) stepOnce(out io.Writer) bool {
	pc := r.vm.PC()
	err := r.vm.Step()
	switch {
	case errors.Is(err, vm.ErrHalted):
		fmt.Fprintln(out, "Machine halted (use 'reset' to restart)")
		return false
	case err != nil:
		fmt.Fprintf(out, "Fault: %v\n", err)
		return false
	}

	inst := r.vm.IR()
	fmt.Fprintf(out, "%3d  %-16s pc=%d bp=%d sp=%d\n", pc, inst, r.vm.PC(), r.vm.BP(), r.vm.SP())
	if r.vm.Halted() {
		fmt.Fprintf(out, "Halted after %d steps\n", r.vm.Steps())
		return false
	}
	return true
}

func (r *REPL) listFrames(out io.Writer) {
	s := r.vm.State()
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Depth", "Base", "Static Link", "Dynamic Link", "Return"})
	for depth, b := range s.Frames {
		row := []string{strconv.Itoa(depth), strconv.Itoa(b)}
		for off := 0; off < vm.ARControlWords; off++ {
			v, err := r.vm.Memory(b - off)
			if err != nil {
				row = append(row, "-")
				continue
			}
			row = append(row, strconv.FormatInt(v, 10))
		}
		table.Append(row)
	}
	table.Render()
}

func (r *REPL) list(out io.Writer) {
	for i, inst := range r.program.Code {
		marker := "  "
		if i == r.vm.PC() && !r.vm.Halted() {
			marker = "=>"
		}
		bp := " "
		if r.breakpoints[i] {
			bp = "*"
		}
		fmt.Fprintf(out, "%s%s%3d  %s\n", marker, bp, i, inst)
	}
}

func (r *REPL) setBreakpoint(arg string, out io.Writer) {
	pc, err := strconv.Atoi(arg)
	if err != nil || pc < 0 || (r.program != nil && pc >= len(r.program.Code)) {
		fmt.Fprintf(out, "Invalid breakpoint: %s\n", arg)
		return
	}
	r.breakpoints[pc] = true
	fmt.Fprintf(out, "Breakpoint set at %d\n", pc)
}

func (r *REPL) listBreakpoints(out io.Writer) {
	if len(r.breakpoints) == 0 {
		fmt.Fprintln(out, "No breakpoints")
		return
	}
	pcs := make([]int, 0, len(r.breakpoints))
	for pc := range r.breakpoints {
		pcs = append(pcs, pc)
	}
	sort.Ints(pcs)
	fmt.Fprintln(out, "Breakpoints:")
	for _, pc := range pcs {
		fmt.Fprintf(out, "  %d\n", pc)
	}
}

func (r *REPL) clearBreakpoints(args []string, out io.Writer) {
	if len(args) == 0 {
		r.breakpoints = make(map[int]bool)
		fmt.Fprintln(out, "Breakpoints cleared")
		return
	}
	for _, a := range args {
		pc, err := strconv.Atoi(a)
		if err != nil || !r.breakpoints[pc] {
			fmt.Fprintf(out, "No breakpoint at %s\n", a)
			continue
		}
		delete(r.breakpoints, pc)
		fmt.Fprintf(out, "Breakpoint at %d cleared\n", pc)
	}
}

func (r *REPL) pushInput(args []string, out io.Writer) {
	if len(args) == 0 {
		fmt.Fprintln(out, "Usage: input <int> [int...]")
		return
	}
	vals := make([]int64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			fmt.Fprintf(out, "Invalid integer: %s\n", a)
			return
		}
		vals[i] = v
	}
	r.input.Push(vals...)
	fmt.Fprintf(out, "Queued %d input values\n", len(vals))
}

func (r *REPL) printHelp(out io.Writer) {
	help := `
PM/0 Debugger Commands:
  help, h, ?          Show this help message
  quit, exit, q       Exit the debugger
  load <file>         Load a program (text, csv, json, parquet, pm0b, asm)
  asm                 Enter assembly, blank line to finish
  step, s [n]         Execute n instructions (default 1)
  run, continue, c    Run until halt, fault, breakpoint or run limit
  regs, r             Show registers R0-R6
  stack               Show live stack cells
  frames              Show activation records
  list, l             List the program (=> marks PC, * breakpoints)
  break, b [pc]       Set a breakpoint, or list breakpoints
  clear [pc...]       Clear breakpoints
  reset               Restart the loaded program
  input <ints>        Queue values for SYS reads
  output              Show values written so far
  history             Show command history

Example:
  asm
  LIT 0, 0, 5
  SYS 0, 0, 1
  SYS 0, 0, 3

  run
`
	fmt.Fprint(out, help)
}
