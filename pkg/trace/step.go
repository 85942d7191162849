// Package trace provides vm.Tracer implementations that render, encode,
// record and persist PM/0 execution.
package trace

import (
	"github.com/akhildatla/pm0/pkg/vm"
)

// Step is one executed instruction together with the machine state it
// left behind.
type Step struct {
	Seq       int64                  `json:"step" cbor:"1,keyasint"`
	PC        int                    `json:"pc" cbor:"2,keyasint"`
	Op        uint8                  `json:"op" cbor:"3,keyasint"`
	R         int                    `json:"r" cbor:"4,keyasint"`
	L         int                    `json:"l" cbor:"5,keyasint"`
	M         int                    `json:"m" cbor:"6,keyasint"`
	NextPC    int                    `json:"next_pc" cbor:"7,keyasint"`
	BP        int                    `json:"bp" cbor:"8,keyasint"`
	SP        int                    `json:"sp" cbor:"9,keyasint"`
	Registers [vm.NumRegisters]int64 `json:"registers" cbor:"10,keyasint"`
	Stack     []int64                `json:"stack" cbor:"11,keyasint"`
	Boundary  int                    `json:"boundary" cbor:"12,keyasint"`
	Depth     int                    `json:"depth" cbor:"13,keyasint"`
}

// NewStep captures the instruction at pc after it has executed on m.
func NewStep(m *vm.VM, pc int, inst vm.Instruction) Step {
	s := m.State()
	return Step{
		Seq:       s.Steps,
		PC:        pc,
		Op:        uint8(inst.Op),
		R:         inst.R,
		L:         inst.L,
		M:         inst.M,
		NextPC:    s.PC,
		BP:        s.BP,
		SP:        s.SP,
		Registers: s.Registers,
		Stack:     s.Stack,
		Boundary:  s.Boundary(),
		Depth:     len(s.Frames),
	}
}

// Instruction returns the executed instruction.
func (s Step) Instruction() vm.Instruction {
	return vm.NewInstruction(vm.Opcode(s.Op), s.R, s.L, s.M)
}

// collector is embedded by tracers that only act after each instruction.
type collector struct{}

func (collector) Begin(*vm.VM)                       {}
func (collector) Before(*vm.VM, int, vm.Instruction) {}
