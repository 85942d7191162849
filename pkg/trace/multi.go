package trace

import "github.com/akhildatla/pm0/pkg/vm"

// Multi returns a tracer that calls each of the given tracers in sequence.
// End is propagated in reverse order. Nil tracers are skipped.
func Multi(ts ...vm.Tracer) vm.Tracer {
	var live tracers
	for _, t := range ts {
		if t != nil {
			live = append(live, t)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return live
	}
}

type tracers []vm.Tracer

func (ts tracers) Begin(m *vm.VM) {
	for i := range ts {
		ts[i].Begin(m)
	}
}

func (ts tracers) Before(m *vm.VM, pc int, inst vm.Instruction) {
	for i := range ts {
		ts[i].Before(m, pc, inst)
	}
}

func (ts tracers) After(m *vm.VM, pc int, inst vm.Instruction) {
	for i := range ts {
		ts[i].After(m, pc, inst)
	}
}

func (ts tracers) End(m *vm.VM, err error) {
	for i := len(ts) - 1; i >= 0; i-- {
		ts[i].End(m, err)
	}
}
