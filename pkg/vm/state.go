package vm

// State is a copy of the observable machine state, taken after an
// instruction completes.
type State struct {
	PC        int
	BP        int
	SP        int
	IR        Instruction
	Registers [NumRegisters]int64

	// Stack holds the live cells from the top of memory down to SP;
	// Stack[0] is address StackCap-1.
	Stack    []int64
	StackCap int

	// StaticLink is the static link written by the most recent CAL, or -1.
	// Tracers mark an activation-record boundary at the first live cell
	// holding this value.
	StaticLink int

	// Frames lists frame bases from the current frame outward along the
	// dynamic links.
	Frames []int

	Halted bool
	Steps  int64
}

// State returns a snapshot of the machine.
func (vm *VM) State() State {
	return State{
		PC:         vm.pc,
		BP:         vm.bp,
		SP:         vm.sp,
		IR:         vm.ir,
		Registers:  vm.registers.R,
		Stack:      vm.stack.Live(vm.sp),
		StackCap:   vm.stack.Cap(),
		StaticLink: vm.staticLink,
		Frames:     vm.frames(),
		Halted:     vm.halted,
		Steps:      vm.stepCount,
	}
}

// Addr converts an index into State.Stack back to a stack address.
func (s State) Addr(i int) int {
	return s.StackCap - 1 - i
}

// Boundary returns the index into Stack where the classic trace draws
// its activation-record separator, or -1 when no cell matches.
func (s State) Boundary() int {
	if s.StaticLink < 0 {
		return -1
	}
	for i, v := range s.Stack {
		if v == int64(s.StaticLink) {
			return i
		}
	}
	return -1
}

// maxFrames bounds the dynamic-link walk when the stack holds a chain that
// does not terminate at the outermost frame.
const maxFrames = 4096

// frames walks dynamic links from BP up to the outermost frame. The walk
// stops at the first link that does not point strictly higher in memory.
func (vm *VM) frames() []int {
	top := vm.stack.Cap() - 1
	b := vm.bp
	out := []int{b}
	for b < top && len(out) < maxFrames {
		dl, err := vm.stack.Load(b - arDynamicLink)
		if err != nil || int(dl) <= b || int(dl) > top {
			break
		}
		b = int(dl)
		out = append(out, b)
	}
	return out
}
