package vm

import "fmt"

// Instruction is a raw PM/0 quadruple as loaded from a program.
//
// The meaning of L and M depends on the opcode family:
//
//	LIT, LOD, STO, JPC, SYS, NEG, ODD  R is a register
//	LOD, STO, CAL                       L is a lexical level
//	LIT                                 M is an immediate value
//	LOD, STO                            M is a frame offset
//	CAL, JMP, JPC                       M is an instruction index
//	INC                                 M is a word count
//	SYS                                 M is the system call number
//	ADD..GEQ (except ODD)               L and M are operand registers
type Instruction struct {
	Op Opcode
	R  int
	L  int
	M  int
}

// NewInstruction builds an instruction from its four fields.
func NewInstruction(op Opcode, r, l, m int) Instruction {
	return Instruction{Op: op, R: r, L: l, M: m}
}

// String returns a human-readable representation of the instruction.
func (i Instruction) String() string {
	if !i.Op.Valid() {
		return fmt.Sprintf("OP(%d) %d %d %d", uint8(i.Op), i.R, i.L, i.M)
	}
	return fmt.Sprintf("%s %d %d %d", i.Op, i.R, i.L, i.M)
}

// Op is a decoded instruction. Each concrete type carries only the fields
// its opcode reads, with register fields already range-checked.
type Op interface {
	Opcode() Opcode
	exec(vm *VM) error
}

// Lit loads an immediate into a register.
type Lit struct {
	R     int
	Value int64
}

// Rtn tears down the current activation record.
type Rtn struct{}

// Lod loads a variable into a register.
type Lod struct {
	R      int
	Level  int
	Offset int
}

// Sto stores a register into a variable.
type Sto struct {
	R      int
	Level  int
	Offset int
}

// Cal creates an activation record and transfers to Target.
type Cal struct {
	Level  int
	Target int
}

// Inc reserves N words on the stack.
type Inc struct {
	N int
}

// Jmp transfers unconditionally to Target.
type Jmp struct {
	Target int
}

// Jpc transfers to Target when register R is zero.
type Jpc struct {
	R      int
	Target int
}

// Sys performs console output, console input or halt.
type Sys struct {
	R    int
	Call int
}

// Neg negates register R.
type Neg struct {
	R int
}

// Odd replaces register R with its remainder modulo 2.
type Odd struct {
	R int
}

// Binary is the register-to-register family: R = A <op> B.
type Binary struct {
	Code Opcode
	R    int
	A    int
	B    int
}

func (Lit) Opcode() Opcode      { return OpLit }
func (Rtn) Opcode() Opcode      { return OpRtn }
func (Lod) Opcode() Opcode      { return OpLod }
func (Sto) Opcode() Opcode      { return OpSto }
func (Cal) Opcode() Opcode      { return OpCal }
func (Inc) Opcode() Opcode      { return OpInc }
func (Jmp) Opcode() Opcode      { return OpJmp }
func (Jpc) Opcode() Opcode      { return OpJpc }
func (Sys) Opcode() Opcode      { return OpSys }
func (Neg) Opcode() Opcode      { return OpNeg }
func (Odd) Opcode() Opcode      { return OpOdd }
func (b Binary) Opcode() Opcode { return b.Code }

// Decode converts a raw quadruple into its typed form. It fails with
// ErrUnknownOpcode or ErrInvalidSysCall for instructions outside the ISA
// and with ErrInvalidRegister when a field used as a register is not in
// [0,6]. Fields an opcode does not use are ignored.
func Decode(inst Instruction) (Op, error) {
	switch inst.Op {
	case OpLit:
		if err := checkRegs(inst.R); err != nil {
			return nil, err
		}
		return Lit{R: inst.R, Value: int64(inst.M)}, nil
	case OpRtn:
		return Rtn{}, nil
	case OpLod:
		if err := checkRegs(inst.R); err != nil {
			return nil, err
		}
		return Lod{R: inst.R, Level: inst.L, Offset: inst.M}, nil
	case OpSto:
		if err := checkRegs(inst.R); err != nil {
			return nil, err
		}
		return Sto{R: inst.R, Level: inst.L, Offset: inst.M}, nil
	case OpCal:
		return Cal{Level: inst.L, Target: inst.M}, nil
	case OpInc:
		return Inc{N: inst.M}, nil
	case OpJmp:
		return Jmp{Target: inst.M}, nil
	case OpJpc:
		if err := checkRegs(inst.R); err != nil {
			return nil, err
		}
		return Jpc{R: inst.R, Target: inst.M}, nil
	case OpSys:
		switch inst.M {
		case SysWrite, SysRead:
			if err := checkRegs(inst.R); err != nil {
				return nil, err
			}
		case SysHalt:
		default:
			return nil, fmt.Errorf("%w: SYS %d", ErrInvalidSysCall, inst.M)
		}
		return Sys{R: inst.R, Call: inst.M}, nil
	case OpNeg:
		if err := checkRegs(inst.R); err != nil {
			return nil, err
		}
		return Neg{R: inst.R}, nil
	case OpOdd:
		if err := checkRegs(inst.R); err != nil {
			return nil, err
		}
		return Odd{R: inst.R}, nil
	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpEql, OpNeq, OpLss, OpLeq, OpGtr, OpGeq:
		if err := checkRegs(inst.R, inst.L, inst.M); err != nil {
			return nil, err
		}
		return Binary{Code: inst.Op, R: inst.R, A: inst.L, B: inst.M}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, uint8(inst.Op))
	}
}

func checkRegs(regs ...int) error {
	for _, r := range regs {
		if r < 0 || r >= NumRegisters {
			return fmt.Errorf("%w: R%d", ErrInvalidRegister, r)
		}
	}
	return nil
}

// Validate decodes every instruction of a program and returns the first
// failure as a Fault located at its index.
func Validate(p *Program) error {
	if p == nil {
		return ErrNoProgram
	}
	for i, inst := range p.Code {
		if _, err := Decode(inst); err != nil {
			return &Fault{Kind: kindOf(err), PC: i, Inst: inst, Err: err}
		}
	}
	return nil
}
