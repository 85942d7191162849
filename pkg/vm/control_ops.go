package vm

import "fmt"

// Activation record layout, relative to the frame base.
const (
	arStaticLink  = 0
	arDynamicLink = 1
	arReturnAddr  = 2

	// ARControlWords is the number of control words CAL writes.
	ARControlWords = 3
)

// exec writes the three control words below SP, then makes the new frame
// current. SP itself is left for the callee's INC to move.
func (op Cal) exec(vm *VM) error {
	link, err := Base(op.Level, vm.bp, vm.stack)
	if err != nil {
		return err
	}
	base := vm.sp - 1
	if base >= vm.stack.Cap() || base-arReturnAddr < 0 {
		return fmt.Errorf("%w: no room for activation record at SP=%d", ErrStackBounds, vm.sp)
	}
	if err := vm.checkTarget(op.Target); err != nil {
		return err
	}
	ret := vm.next
	_ = vm.stack.Store(base-arStaticLink, int64(link))
	_ = vm.stack.Store(base-arDynamicLink, int64(vm.bp))
	_ = vm.stack.Store(base-arReturnAddr, int64(ret))
	vm.bp = base
	vm.staticLink = link
	vm.next = op.Target
	return nil
}

// exec restores SP, BP and PC from the control words of the frame being
// vacated.
func (op Rtn) exec(vm *VM) error {
	sp := vm.bp + 1
	if sp > vm.stack.Cap() {
		return fmt.Errorf("%w: frame base %d above stack top", ErrStackBounds, vm.bp)
	}
	dl, err := vm.stack.Load(vm.bp - arDynamicLink)
	if err != nil {
		return err
	}
	ret, err := vm.stack.Load(vm.bp - arReturnAddr)
	if err != nil {
		return err
	}
	if err := vm.checkTarget(int(ret)); err != nil {
		return err
	}
	vm.sp = sp
	vm.bp = int(dl)
	vm.next = int(ret)
	return nil
}

func (op Inc) exec(vm *VM) error {
	sp := vm.sp - op.N
	if sp < 0 {
		return fmt.Errorf("%w: stack overflow allocating %d words at SP=%d", ErrStackBounds, op.N, vm.sp)
	}
	if sp > vm.bp+1 {
		return fmt.Errorf("%w: SP=%d would rise above frame base %d", ErrStackBounds, sp, vm.bp)
	}
	vm.sp = sp
	return nil
}

func (op Jmp) exec(vm *VM) error {
	if err := vm.checkTarget(op.Target); err != nil {
		return err
	}
	vm.next = op.Target
	return nil
}

func (op Jpc) exec(vm *VM) error {
	v, err := vm.registers.Get(op.R)
	if err != nil {
		return err
	}
	if v != 0 {
		return nil
	}
	if err := vm.checkTarget(op.Target); err != nil {
		return err
	}
	vm.next = op.Target
	return nil
}

func (op Sys) exec(vm *VM) error {
	switch op.Call {
	case SysWrite:
		v, err := vm.registers.Get(op.R)
		if err != nil {
			return err
		}
		if vm.output == nil {
			return nil
		}
		if err := vm.output.WriteInt(op.R, v); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailed, err)
		}
		return nil
	case SysRead:
		if vm.input == nil {
			return fmt.Errorf("%w: no input attached", ErrInputUnavailable)
		}
		v, err := vm.input.ReadInt()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInputUnavailable, err)
		}
		return vm.registers.Set(op.R, v)
	case SysHalt:
		vm.halted = true
		return nil
	default:
		return fmt.Errorf("%w: SYS %d", ErrInvalidSysCall, op.Call)
	}
}

// checkTarget rejects control transfers outside the loaded program.
func (vm *VM) checkTarget(pc int) error {
	if pc < 0 || pc >= len(vm.code) {
		return fmt.Errorf("%w: transfer to %d, program has %d instructions", ErrProgramCounter, pc, len(vm.code))
	}
	return nil
}
