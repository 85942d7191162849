// Package vm implements the PM/0 virtual machine.
//
// The VM executes PM/0 quadruples over:
//   - 7 integer registers (R0-R6) used as scratch operands
//   - one stack memory that grows from the high end downward and holds
//     every activation record (static link, dynamic link, return address,
//     locals)
//   - the PC, BP and SP registers
//
// Basic usage:
//
//	v := vm.NewVM()
//	v.SetInput(vm.NewReaderInput(os.Stdin))
//	v.Load(program)
//	err := v.Run()
//
// With resource limits:
//
//	v := vm.NewVM()
//	v.SetMaxSteps(10000)
//	v.SetContext(ctx)
//	v.Load(program)
//	err := v.Run()
package vm

import (
	"context"
	"time"
)

// Program is an already-assembled PM/0 instruction sequence.
type Program struct {
	Code []Instruction
}

// ExecutionStats contains metrics about VM execution for observability.
type ExecutionStats struct {
	StepsExecuted   int64          // Total instructions executed
	ExecutionTimeNs int64          // Execution time in nanoseconds
	Calls           int64          // CAL instructions executed
	MaxDepth        int            // Deepest dynamic call chain observed
	MinSP           int            // Lowest stack pointer observed
	OpCounts        map[string]int // Count of each opcode executed
}

// VM represents the PM/0 machine. A VM is not safe for concurrent use.
type VM struct {
	registers RegisterFile
	stack     *Stack
	code      []Instruction

	pc, bp, sp int
	ir         Instruction // instruction register: last fetched
	next       int         // PC after the current instruction
	halted     bool
	fault      *Fault
	staticLink int // static link written by the most recent CAL, -1 before any

	stackCap int
	input    Input
	output   Output
	tracer   Tracer
	began    bool

	// Resource limits
	maxSteps  int64
	stepCount int64

	// Context for cancellation
	ctx context.Context

	stats        ExecutionStats
	statsEnabled bool
}

// NewVM creates a new VM instance with the default stack capacity.
func NewVM() *VM {
	return &VM{
		stackCap:   DefaultStackCap,
		stack:      NewStack(DefaultStackCap),
		staticLink: -1,
	}
}

// Load loads a program into the VM and resets all machine state:
// registers and stack are zeroed, PC = 0, SP = stack capacity and
// BP = SP - 1.
func (vm *VM) Load(program *Program) error {
	if program == nil {
		return ErrNoProgram
	}
	vm.code = program.Code
	vm.reset()
	return nil
}

// Reset restores the state Load produced, keeping the loaded program and
// attached collaborators.
func (vm *VM) Reset() {
	vm.reset()
}

func (vm *VM) reset() {
	if vm.stack == nil || vm.stack.Cap() != vm.stackCap {
		vm.stack = NewStack(vm.stackCap)
	} else {
		vm.stack.Reset()
	}
	vm.registers.Reset()
	vm.pc = 0
	vm.sp = vm.stackCap
	vm.bp = vm.sp - 1
	vm.ir = Instruction{}
	vm.next = 0
	vm.halted = false
	vm.fault = nil
	vm.staticLink = -1
	vm.began = false
	vm.stepCount = 0
	if vm.statsEnabled {
		vm.stats = ExecutionStats{OpCounts: make(map[string]int), MinSP: vm.sp}
	}
}

// SetStackCap sets the stack memory capacity used by the next Load or
// Reset.
func (vm *VM) SetStackCap(n int) {
	if n < 0 {
		n = 0
	}
	vm.stackCap = n
}

// SetInput attaches the console input collaborator.
func (vm *VM) SetInput(in Input) {
	vm.input = in
}

// SetOutput attaches the console output collaborator.
func (vm *VM) SetOutput(out Output) {
	vm.output = out
}

// SetTracer attaches a tracer notified around every executed instruction.
func (vm *VM) SetTracer(t Tracer) {
	vm.tracer = t
}

// SetMaxSteps sets the maximum number of execution steps. Zero means
// unlimited.
func (vm *VM) SetMaxSteps(n int64) {
	vm.maxSteps = n
}

// SetContext sets the context for cancellation/timeout.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// EnableStats enables execution statistics collection.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = ExecutionStats{OpCounts: make(map[string]int), MinSP: vm.sp}
}

// Stats returns the execution statistics since the last Load or Reset.
// Returns nil if stats were not enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// PC returns the program counter.
func (vm *VM) PC() int { return vm.pc }

// BP returns the base pointer.
func (vm *VM) BP() int { return vm.bp }

// SP returns the stack pointer.
func (vm *VM) SP() int { return vm.sp }

// IR returns the most recently fetched instruction.
func (vm *VM) IR() Instruction { return vm.ir }

// Halted reports whether SYS 0 0 3 has executed.
func (vm *VM) Halted() bool { return vm.halted }

// Err returns the fault that stopped the machine, if any.
func (vm *VM) Err() error {
	if vm.fault == nil {
		return nil
	}
	return vm.fault
}

// Registers returns a copy of the register file.
func (vm *VM) Registers() [NumRegisters]int64 { return vm.registers.R }

// Program returns the loaded instructions.
func (vm *VM) Program() []Instruction { return vm.code }

// Memory returns the stack cell at addr, whether or not it is live.
func (vm *VM) Memory(addr int) (int64, error) { return vm.stack.Load(addr) }

// StackCap returns the capacity of stack memory.
func (vm *VM) StackCap() int { return vm.stack.Cap() }

// Steps returns the number of instructions executed since Load.
func (vm *VM) Steps() int64 { return vm.stepCount }

// Step fetches, decodes and executes one instruction. It returns
// ErrHalted once the machine has halted and the same *Fault for every
// call after a fault.
func (vm *VM) Step() error {
	if vm.fault != nil {
		return vm.fault
	}
	if vm.halted {
		return ErrHalted
	}
	if vm.code == nil {
		return ErrNoProgram
	}
	if !vm.began {
		vm.began = true
		if vm.tracer != nil {
			vm.tracer.Begin(vm)
		}
	}

	pc := vm.pc
	if pc < 0 || pc >= len(vm.code) {
		return vm.fail(pc, Instruction{}, ErrProgramCounter)
	}
	vm.ir = vm.code[pc]
	op, err := Decode(vm.ir)
	if err != nil {
		return vm.fail(pc, vm.ir, err)
	}
	if vm.tracer != nil {
		vm.tracer.Before(vm, pc, vm.ir)
	}

	vm.next = pc + 1
	if err := op.exec(vm); err != nil {
		return vm.fail(pc, vm.ir, err)
	}
	vm.pc = vm.next
	vm.stepCount++
	if vm.statsEnabled {
		vm.record(op)
	}

	if vm.tracer != nil {
		vm.tracer.After(vm, pc, vm.ir)
		if vm.halted {
			vm.tracer.End(vm, nil)
		}
	}
	return nil
}

func (vm *VM) fail(pc int, inst Instruction, err error) error {
	vm.fault = &Fault{Kind: kindOf(err), PC: pc, Inst: inst, Err: err}
	if vm.tracer != nil {
		vm.tracer.End(vm, vm.fault)
	}
	return vm.fault
}

func (vm *VM) record(op Op) {
	vm.stats.StepsExecuted++
	vm.stats.OpCounts[op.Opcode().String()]++
	if op.Opcode() == OpCal {
		vm.stats.Calls++
		if d := len(vm.frames()); d > vm.stats.MaxDepth {
			vm.stats.MaxDepth = d
		}
	}
	if vm.sp < vm.stats.MinSP {
		vm.stats.MinSP = vm.sp
	}
}

// Run executes until the machine halts, returning nil, or until an
// instruction faults, returning the *Fault. When configured it also stops
// with ErrStepLimitExceeded or the context's error; such a stop leaves the
// machine resumable.
func (vm *VM) Run() error {
	var startTime time.Time
	if vm.statsEnabled {
		startTime = time.Now()
		defer func() {
			vm.stats.ExecutionTimeNs += time.Since(startTime).Nanoseconds()
		}()
	}

	for !vm.halted {
		// Context cancellation check
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return vm.ctx.Err()
			default:
			}
		}

		// Resource limit check
		if vm.maxSteps > 0 && vm.stepCount >= vm.maxSteps {
			return ErrStepLimitExceeded
		}

		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}
