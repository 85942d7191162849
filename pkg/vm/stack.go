package vm

import "fmt"

// DefaultStackCap is the default capacity of stack memory in words.
const DefaultStackCap = 1000

// Stack is the PM/0 stack memory: a fixed-capacity array of integer cells
// shared by every activation record. Frames are carved from the high end
// downward.
type Stack struct {
	cells []int64
}

// NewStack allocates zeroed stack memory of the given capacity.
func NewStack(capacity int) *Stack {
	if capacity < 0 {
		capacity = 0
	}
	return &Stack{cells: make([]int64, capacity)}
}

// Cap returns the number of cells in stack memory.
func (s *Stack) Cap() int {
	return len(s.cells)
}

// Load returns the word at addr.
func (s *Stack) Load(addr int) (int64, error) {
	if err := s.check(addr); err != nil {
		return 0, err
	}
	return s.cells[addr], nil
}

// Store writes v at addr.
func (s *Stack) Store(addr int, v int64) error {
	if err := s.check(addr); err != nil {
		return err
	}
	s.cells[addr] = v
	return nil
}

func (s *Stack) check(addr int) error {
	if addr < 0 || addr >= len(s.cells) {
		return fmt.Errorf("%w: address %d outside [0,%d)", ErrStackBounds, addr, len(s.cells))
	}
	return nil
}

// Reset zeroes every cell.
func (s *Stack) Reset() {
	for i := range s.cells {
		s.cells[i] = 0
	}
}

// Live copies the cells from the top of memory down to, but excluding,
// sp. Element 0 is the highest address.
func (s *Stack) Live(sp int) []int64 {
	if sp < 0 {
		sp = 0
	}
	n := len(s.cells) - sp
	if n <= 0 {
		return nil
	}
	out := make([]int64, 0, n)
	for addr := len(s.cells) - 1; addr >= sp; addr-- {
		out = append(out, s.cells[addr])
	}
	return out
}

// Base walks the static-link chain level times starting from base and
// returns the base address of the lexical ancestor frame. Level 0 returns
// base unchanged; each hop reads the static link stored at the current
// candidate address.
func Base(level, base int, s *Stack) (int, error) {
	if level < 0 {
		return 0, fmt.Errorf("%w: negative lexical level %d", ErrStackBounds, level)
	}
	b := base
	for ; level > 0; level-- {
		v, err := s.Load(b)
		if err != nil {
			return 0, fmt.Errorf("static link walk: %w", err)
		}
		b = int(v)
	}
	return b, nil
}
