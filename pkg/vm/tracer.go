package vm

// Tracer is the interface taken by (*VM).SetTracer to observe machine
// execution. Implementations read post-execution values through
// (*VM).State.
type Tracer interface {
	// Begin is called before the first instruction executes.
	Begin(vm *VM)
	// Before is called with the decoded-ok instruction at pc, before it
	// executes.
	Before(vm *VM, pc int, inst Instruction)
	// After is called once the instruction at pc has completed.
	After(vm *VM, pc int, inst Instruction)
	// End is called when the machine halts (err == nil) or faults.
	End(vm *VM, err error)
}

// TracerFuncs adapts optional callbacks to the Tracer interface.
type TracerFuncs struct {
	BeginFunc  func(vm *VM)
	BeforeFunc func(vm *VM, pc int, inst Instruction)
	AfterFunc  func(vm *VM, pc int, inst Instruction)
	EndFunc    func(vm *VM, err error)
}

func (t TracerFuncs) Begin(vm *VM) {
	if t.BeginFunc != nil {
		t.BeginFunc(vm)
	}
}

func (t TracerFuncs) Before(vm *VM, pc int, inst Instruction) {
	if t.BeforeFunc != nil {
		t.BeforeFunc(vm, pc, inst)
	}
}

func (t TracerFuncs) After(vm *VM, pc int, inst Instruction) {
	if t.AfterFunc != nil {
		t.AfterFunc(vm, pc, inst)
	}
}

func (t TracerFuncs) End(vm *VM, err error) {
	if t.EndFunc != nil {
		t.EndFunc(vm, err)
	}
}
