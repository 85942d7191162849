package trace

import (
	"sort"

	"github.com/akhildatla/pm0/pkg/vm"
)

// Counter counts executed instructions per opcode.
type Counter struct {
	collector
	counts map[vm.Opcode]int
	total  int
}

// Count creates a Counter.
func Count() *Counter {
	return &Counter{counts: make(map[vm.Opcode]int)}
}

func (c *Counter) After(m *vm.VM, pc int, inst vm.Instruction) {
	c.counts[inst.Op]++
	c.total++
}

func (c *Counter) End(*vm.VM, error) {}

// Total returns the number of executed instructions.
func (c *Counter) Total() int { return c.total }

// Of returns how many times op executed.
func (c *Counter) Of(op vm.Opcode) int { return c.counts[op] }

// OpCount is one row of a Counter summary.
type OpCount struct {
	Op    vm.Opcode
	Count int
}

// Summary returns the executed opcodes, most frequent first.
func (c *Counter) Summary() []OpCount {
	out := make([]OpCount, 0, len(c.counts))
	for op, n := range c.counts {
		out = append(out, OpCount{Op: op, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Op < out[j].Op
	})
	return out
}
