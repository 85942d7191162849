package vm

import "fmt"

func (op Neg) exec(vm *VM) error {
	v, err := vm.registers.Get(op.R)
	if err != nil {
		return err
	}
	return vm.registers.Set(op.R, -v)
}

// exec keeps the remainder, not a strict boolean: a negative odd value
// yields -1.
func (op Odd) exec(vm *VM) error {
	v, err := vm.registers.Get(op.R)
	if err != nil {
		return err
	}
	return vm.registers.Set(op.R, v%2)
}

func (op Binary) exec(vm *VM) error {
	a, err := vm.registers.Get(op.A)
	if err != nil {
		return err
	}
	b, err := vm.registers.Get(op.B)
	if err != nil {
		return err
	}
	v, err := compute(op.Code, a, b)
	if err != nil {
		return err
	}
	return vm.registers.Set(op.R, v)
}

// compute applies a register-to-register opcode. Division truncates toward
// zero and the remainder takes the sign of the dividend.
func compute(code Opcode, a, b int64) (int64, error) {
	switch code {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, fmt.Errorf("%w: %d %% 0", ErrDivisionByZero, a)
		}
		return a % b, nil
	case OpEql:
		return boolWord(a == b), nil
	case OpNeq:
		return boolWord(a != b), nil
	case OpLss:
		return boolWord(a < b), nil
	case OpLeq:
		return boolWord(a <= b), nil
	case OpGtr:
		return boolWord(a > b), nil
	case OpGeq:
		return boolWord(a >= b), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownOpcode, uint8(code))
	}
}

func boolWord(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
