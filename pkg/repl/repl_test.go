package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/akhildatla/pm0/internal/testutil"
	"github.com/akhildatla/pm0/pkg/vm"
)

func newLoaded(t *testing.T, p *vm.Program) *REPL {
	t.Helper()
	r := New()
	if err := r.LoadProgram(p, "test"); err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}
	return r
}

func eval(r *REPL, line string) string {
	var out bytes.Buffer
	r.Eval(line, &out)
	return out.String()
}

func TestREPL_New(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("New returned nil")
	}
	if r.Prompt() != promptCmd {
		t.Errorf("expected prompt %q, got %q", promptCmd, r.Prompt())
	}
	if r.Done() {
		t.Error("new REPL should not be done")
	}
}

func TestREPL_HandleCommand_Help(t *testing.T) {
	r := New()
	var out bytes.Buffer

	tests := []string{"help", "h", "?"}
	for _, cmd := range tests {
		out.Reset()
		handled := r.handleCommand(cmd, &out)
		if !handled {
			t.Errorf("expected help command '%s' to be handled", cmd)
		}
		if !strings.Contains(out.String(), "PM/0 Debugger Commands") {
			t.Errorf("expected help text, got: %s", out.String())
		}
	}
}

func TestREPL_HandleCommand_Quit(t *testing.T) {
	tests := []string{"quit", "exit", "q"}
	for _, cmd := range tests {
		r := New()
		var out bytes.Buffer
		handled := r.handleCommand(cmd, &out)
		if !handled {
			t.Errorf("expected quit command '%s' to be handled", cmd)
		}
		if !strings.Contains(out.String(), "Goodbye") {
			t.Errorf("expected goodbye message, got: %s", out.String())
		}
		if !r.Done() {
			t.Errorf("expected '%s' to end the session", cmd)
		}
	}
}

func TestREPL_HandleCommand_Unknown(t *testing.T) {
	r := New()
	var out bytes.Buffer
	if r.handleCommand("frobnicate", &out) {
		t.Error("expected unknown command to be unhandled")
	}
	if !strings.Contains(out.String(), "Unknown command: frobnicate") {
		t.Errorf("expected unknown command message, got: %s", out.String())
	}
}

func TestREPL_NoProgram(t *testing.T) {
	r := New()
	for _, cmd := range []string{"step", "run", "stack", "frames", "list", "reset"} {
		if out := eval(r, cmd); !strings.Contains(out, "No program loaded") {
			t.Errorf("%s: expected no program message, got: %s", cmd, out)
		}
	}
}

func TestREPL_Load(t *testing.T) {
	r := New()
	path := testutil.TempFile(t, testutil.AddText(), ".txt")

	out := eval(r, "load "+path)
	if !strings.Contains(out, "Loaded") || !strings.Contains(out, "5 instructions") {
		t.Errorf("expected load confirmation, got: %s", out)
	}

	out = eval(r, "load /nonexistent/prog.txt")
	if !strings.Contains(out, "Error loading") {
		t.Errorf("expected load error, got: %s", out)
	}

	out = eval(r, "load")
	if !strings.Contains(out, "Usage: load") {
		t.Errorf("expected usage, got: %s", out)
	}
}

func TestREPL_Step(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())

	out := eval(r, "step")
	if !strings.Contains(out, "LIT 0 0 5") || !strings.Contains(out, "pc=1 bp=999 sp=1000") {
		t.Errorf("unexpected step output: %s", out)
	}

	eval(r, "step 2")
	if r.vm.PC() != 3 {
		t.Errorf("expected PC 3, got %d", r.vm.PC())
	}

	out = eval(r, "step x")
	if !strings.Contains(out, "Invalid step count") {
		t.Errorf("expected invalid count message, got: %s", out)
	}
}

func TestREPL_RunToHalt(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())

	out := eval(r, "run")
	if !strings.Contains(out, "Register at 2 = 8") {
		t.Errorf("expected console write, got: %s", out)
	}
	if !strings.Contains(out, "Halted after 5 steps") {
		t.Errorf("expected halt message, got: %s", out)
	}

	out = eval(r, "step")
	if !strings.Contains(out, "Machine halted") {
		t.Errorf("expected halted message, got: %s", out)
	}

	if out := eval(r, "output"); strings.TrimSpace(out) != "[8]" {
		t.Errorf("expected output [8], got: %s", out)
	}
}

func loopProgram() *vm.Program {
	return &vm.Program{Code: []vm.Instruction{
		vm.NewInstruction(vm.OpJmp, 0, 0, 0),
	}}
}

func TestREPL_RunLimit(t *testing.T) {
	r := newLoaded(t, loopProgram())
	if r.runLimit != DefaultRunLimit {
		t.Errorf("expected default run limit %d, got %d", DefaultRunLimit, r.runLimit)
	}
	r.SetRunLimit(5)

	out := eval(r, "run")
	if !strings.Contains(out, "Stopped at 0 after 5 steps") {
		t.Errorf("expected run limit stop, got:\n%s", out)
	}
	if r.vm.Steps() != 5 {
		t.Errorf("expected 5 steps, got %d", r.vm.Steps())
	}

	eval(r, "run")
	if r.vm.Steps() != 10 {
		t.Errorf("expected run to continue to 10 steps, got %d", r.vm.Steps())
	}
}

func TestREPL_RunInterrupted(t *testing.T) {
	r := newLoaded(t, loopProgram())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.SetContext(ctx)

	out := eval(r, "run")
	if !strings.Contains(out, "Interrupted at 0") {
		t.Errorf("expected interruption, got:\n%s", out)
	}
	if r.vm.Steps() != 0 {
		t.Errorf("expected no steps, got %d", r.vm.Steps())
	}
}

func TestREPL_Breakpoints(t *testing.T) {
	r := newLoaded(t, testutil.NestedProgram())

	if out := eval(r, "break 7"); !strings.Contains(out, "Breakpoint set at 7") {
		t.Errorf("unexpected break output: %s", out)
	}
	out := eval(r, "run")
	if !strings.Contains(out, "Breakpoint at 7") {
		t.Fatalf("expected breakpoint stop, got: %s", out)
	}
	if r.vm.PC() != 7 || r.vm.Steps() != 10 {
		t.Errorf("expected PC 7 after 10 steps, got PC %d after %d", r.vm.PC(), r.vm.Steps())
	}

	out = eval(r, "frames")
	for _, want := range []string{"990", "994", "999"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected frame %s in: %s", want, out)
		}
	}

	out = eval(r, "run")
	if !strings.Contains(out, "Register at 4 = 42") {
		t.Errorf("expected to resume past breakpoint, got: %s", out)
	}
}

func TestREPL_StepStopsAtBreakpoint(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())
	eval(r, "break 2")

	out := eval(r, "step 4")
	if !strings.Contains(out, "Breakpoint at 2") || r.vm.PC() != 2 {
		t.Errorf("expected stop at 2, got PC %d: %s", r.vm.PC(), out)
	}
}

func TestREPL_BreakpointManagement(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())

	if out := eval(r, "break"); !strings.Contains(out, "No breakpoints") {
		t.Errorf("expected no breakpoints, got: %s", out)
	}
	if out := eval(r, "break 9"); !strings.Contains(out, "Invalid breakpoint") {
		t.Errorf("expected invalid breakpoint, got: %s", out)
	}

	eval(r, "break 3")
	eval(r, "break 1")
	out := eval(r, "break")
	if !strings.Contains(out, "  1\n  3\n") {
		t.Errorf("expected sorted breakpoints, got: %s", out)
	}

	if out := eval(r, "clear 1"); !strings.Contains(out, "Breakpoint at 1 cleared") {
		t.Errorf("unexpected clear output: %s", out)
	}
	if out := eval(r, "clear 1"); !strings.Contains(out, "No breakpoint at 1") {
		t.Errorf("unexpected clear output: %s", out)
	}
	eval(r, "clear")
	if len(r.breakpoints) != 0 {
		t.Errorf("expected breakpoints cleared, got %v", r.breakpoints)
	}
}

func TestREPL_List(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())
	eval(r, "break 1")

	out := eval(r, "list")
	if !strings.Contains(out, "=>   0  LIT 0 0 5") {
		t.Errorf("expected PC marker, got: %s", out)
	}
	if !strings.Contains(out, "  *  1  LIT 1 0 3") {
		t.Errorf("expected breakpoint marker, got: %s", out)
	}
}

func TestREPL_Input(t *testing.T) {
	r := newLoaded(t, testutil.EchoProgram())

	if out := eval(r, "input 4 x"); !strings.Contains(out, "Invalid integer: x") {
		t.Errorf("expected invalid integer, got: %s", out)
	}
	if out := eval(r, "input 4 6"); !strings.Contains(out, "Queued 2 input values") {
		t.Errorf("unexpected input output: %s", out)
	}

	out := eval(r, "run")
	if !strings.Contains(out, "Register at 2 = 10") {
		t.Errorf("expected echo of sum, got: %s", out)
	}
}

func TestREPL_FaultWithoutInput(t *testing.T) {
	r := newLoaded(t, testutil.EchoProgram())

	out := eval(r, "run")
	if !strings.Contains(out, "Fault:") {
		t.Errorf("expected fault, got: %s", out)
	}
}

func TestREPL_RegsAndStack(t *testing.T) {
	r := newLoaded(t, testutil.NestedProgram())
	eval(r, "step 6")

	out := eval(r, "regs")
	if !strings.Contains(out, "R0") || !strings.Contains(out, "35") {
		t.Errorf("unexpected registers: %s", out)
	}

	out = eval(r, "stack")
	if !strings.Contains(out, "static link") || !strings.Contains(out, "991") {
		t.Errorf("unexpected stack: %s", out)
	}
}

func TestREPL_Reset(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())
	eval(r, "run")

	if out := eval(r, "reset"); !strings.Contains(out, "Machine reset") {
		t.Errorf("unexpected reset output: %s", out)
	}
	if r.vm.PC() != 0 || r.vm.Halted() {
		t.Error("expected fresh machine after reset")
	}

	out := eval(r, "run")
	if !strings.Contains(out, "Register at 2 = 8") {
		t.Errorf("expected rerun, got: %s", out)
	}
}

func TestREPL_SetStackCap(t *testing.T) {
	r := newLoaded(t, testutil.AddProgram())
	r.SetStackCap(10)
	if r.vm.SP() != 10 || r.vm.BP() != 9 {
		t.Errorf("expected SP 10 BP 9, got SP %d BP %d", r.vm.SP(), r.vm.BP())
	}
}

func TestREPL_History(t *testing.T) {
	r := New()
	eval(r, "help")
	eval(r, "")
	eval(r, "regs")

	out := eval(r, "history")
	if !strings.Contains(out, "  1: help") || !strings.Contains(out, "  2: regs") {
		t.Errorf("unexpected history: %s", out)
	}
}

func TestREPL_Start_AssemblyEntry(t *testing.T) {
	r := New()
	in := strings.NewReader("asm\nLIT 0, 0, 5\nSYS 0, 0, 1\nSYS 0, 0, 3\n\nrun\nquit\nstep\n")
	var out bytes.Buffer

	r.Start(in, &out)

	got := out.String()
	for _, want := range []string{"PM/0 debugger", "Assembled 3 instructions", "Register at 0 = 5", "Goodbye"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output: %s", want, got)
		}
	}
	if strings.Contains(got, "Machine halted") {
		t.Error("expected input after quit to be ignored")
	}
}

func TestREPL_Start_AssemblyError(t *testing.T) {
	r := New()
	var out bytes.Buffer
	r.Start(strings.NewReader("asm\nFROB 1\n\n"), &out)

	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("expected assembly error, got: %s", out.String())
	}
	if r.program != nil {
		t.Error("expected no program after failed assembly")
	}
}
