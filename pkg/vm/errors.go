package vm

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrInvalidSysCall    = errors.New("invalid system call")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrInvalidRegister   = errors.New("invalid register")
	ErrStackBounds       = errors.New("stack address out of range")
	ErrProgramCounter    = errors.New("program counter out of range")
	ErrInputUnavailable  = errors.New("input unavailable")
	ErrOutputFailed      = errors.New("output failed")
	ErrHalted            = errors.New("machine halted")
	ErrNoProgram         = errors.New("no program loaded")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// Kind classifies an engine fault.
type Kind uint8

const (
	// DecodeError: the opcode (or SYS call number) is outside the
	// instruction set.
	DecodeError Kind = iota + 1
	// ArithmeticError: division or modulo by zero.
	ArithmeticError
	// AddressingError: a register index, stack address or program counter
	// outside its valid range.
	AddressingError
	// IOError: a console collaborator could not supply or accept a value.
	IOError
)

func (k Kind) String() string {
	switch k {
	case DecodeError:
		return "decode error"
	case ArithmeticError:
		return "arithmetic error"
	case AddressingError:
		return "addressing error"
	case IOError:
		return "i/o error"
	default:
		return "fault"
	}
}

// Fault is the fatal error reported when an instruction cannot complete.
// No instruction-level recovery exists in PM/0, so a fault ends the run.
//
// A RETURN executed with no matching CALL frame is not detected: LIFO call
// discipline is a precondition on the program, not an engine check.
type Fault struct {
	Kind Kind
	PC   int         // index of the failing instruction
	Inst Instruction // the raw instruction as fetched
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %d (%s): %v", f.Kind, f.PC, f.Inst, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// kindOf maps a sentinel-wrapped error onto its fault kind.
func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrUnknownOpcode), errors.Is(err, ErrInvalidSysCall):
		return DecodeError
	case errors.Is(err, ErrDivisionByZero):
		return ArithmeticError
	case errors.Is(err, ErrInputUnavailable), errors.Is(err, ErrOutputFailed):
		return IOError
	default:
		return AddressingError
	}
}
