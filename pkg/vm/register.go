package vm

import "fmt"

// NumRegisters is the size of the PM/0 register file (R0-R6).
const NumRegisters = 7

// RegisterFile holds the scratch integer registers used as operands for
// arithmetic, comparisons and console I/O.
type RegisterFile struct {
	R [NumRegisters]int64
}

// NewRegisterFile creates a new register file with all registers zeroed.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

// Get returns the value of register i.
func (rf *RegisterFile) Get(i int) (int64, error) {
	if i < 0 || i >= NumRegisters {
		return 0, fmt.Errorf("%w: R%d", ErrInvalidRegister, i)
	}
	return rf.R[i], nil
}

// Set stores v into register i.
func (rf *RegisterFile) Set(i int, v int64) error {
	if i < 0 || i >= NumRegisters {
		return fmt.Errorf("%w: R%d", ErrInvalidRegister, i)
	}
	rf.R[i] = v
	return nil
}

// Reset clears all registers.
func (rf *RegisterFile) Reset() {
	for i := range rf.R {
		rf.R[i] = 0
	}
}
