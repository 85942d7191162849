package vm

func (op Lit) exec(vm *VM) error {
	return vm.registers.Set(op.R, op.Value)
}

func (op Lod) exec(vm *VM) error {
	addr, err := vm.varAddr(op.Level, op.Offset)
	if err != nil {
		return err
	}
	v, err := vm.stack.Load(addr)
	if err != nil {
		return err
	}
	return vm.registers.Set(op.R, v)
}

func (op Sto) exec(vm *VM) error {
	addr, err := vm.varAddr(op.Level, op.Offset)
	if err != nil {
		return err
	}
	v, err := vm.registers.Get(op.R)
	if err != nil {
		return err
	}
	return vm.stack.Store(addr, v)
}

// varAddr translates a lexical level and frame offset into a stack address.
func (vm *VM) varAddr(level, offset int) (int, error) {
	b, err := Base(level, vm.bp, vm.stack)
	if err != nil {
		return 0, err
	}
	return b - offset, nil
}
