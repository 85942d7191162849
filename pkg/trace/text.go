package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/akhildatla/pm0/pkg/vm"
)

// DefaultWindow is the number of stack cells shown for the initial state.
const DefaultWindow = 40

// TextOptions configures the text tracer.
type TextOptions struct {
	// Window is the number of cells, counted down from the top of stack
	// memory, printed with the initial values. Zero means DefaultWindow.
	Window int
}

// TextTracer prints the classic PM/0 execution trace:
//
//				pc	bp	sp
//	Initial values		0	999	1000
//	Registers: 0 0 0 0 0 0 0
//	Stack: 0 0 0 ...
//
//	0 lit 0 0 5		1	999	1000
//	Registers: 5 0 0 0 0 0 0
//	Stack:
//
// Live stack cells are listed from the top down and "| " is inserted
// before the first cell that holds the static link of the latest call.
type TextTracer struct {
	w    *bufio.Writer
	opts TextOptions
	err  error
}

// Text returns a tracer writing the classic trace to w.
func Text(w io.Writer, opts TextOptions) *TextTracer {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &TextTracer{w: bufio.NewWriter(w), opts: opts}
}

// Err returns the first write error, if any.
func (t *TextTracer) Err() error { return t.err }

func (t *TextTracer) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *TextTracer) Begin(m *vm.VM) {
	t.printf("\t\t\tpc\tbp\tsp\n")
	t.printf("Initial values\t\t%d\t%d\t%d\n", m.PC(), m.BP(), m.SP())
	t.registers(m.Registers())

	t.printf("Stack: ")
	top := m.StackCap() - 1
	for i := 0; i < t.opts.Window && top-i >= 0; i++ {
		v, _ := m.Memory(top - i)
		t.printf("%d ", v)
	}
	t.printf("\n")
	t.flush()
}

func (t *TextTracer) Before(*vm.VM, int, vm.Instruction) {}

func (t *TextTracer) After(m *vm.VM, pc int, inst vm.Instruction) {
	s := m.State()
	t.printf("\n%d %s %d %d %d\t\t%d\t%d\t%d\n", pc, inst.Op.Mnemonic(), inst.R, inst.L, inst.M, s.PC, s.BP, s.SP)
	t.registers(s.Registers)

	t.printf("Stack: ")
	boundary := s.Boundary()
	for i, v := range s.Stack {
		if i == boundary {
			t.printf("| ")
		}
		t.printf("%d ", v)
	}
	t.printf("\n")
	t.flush()
}

func (t *TextTracer) End(m *vm.VM, err error) {
	if err != nil {
		t.printf("\n%v\n", err)
	}
	t.flush()
}

func (t *TextTracer) registers(regs [vm.NumRegisters]int64) {
	t.printf("Registers: ")
	for _, v := range regs {
		t.printf("%d ", v)
	}
	t.printf("\n")
}

func (t *TextTracer) flush() {
	if err := t.w.Flush(); err != nil && t.err == nil {
		t.err = err
	}
}

// ConsoleOutput prints console writes the way the classic trace does.
type ConsoleOutput struct {
	W io.Writer
}

func (c ConsoleOutput) WriteInt(reg int, v int64) error {
	_, err := fmt.Fprintf(c.W, "Register at %d = %d\n", reg, v)
	return err
}
