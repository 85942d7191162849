package loader

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/akhildatla/pm0/pkg/vm"
)

// ParseText reads whitespace-separated integer quadruples, four integers
// per instruction. Line breaks carry no meaning.
func ParseText(r io.Reader) (*vm.Program, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var (
		code   []vm.Instruction
		fields [4]int64
		n      int
	)
	for sc.Scan() {
		tok := sc.Text()
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w: %q", len(code), ErrInvalidField, tok)
		}
		fields[n] = v
		n++
		if n < len(fields) {
			continue
		}
		n = 0

		if len(code) == MaxCodeLength {
			return nil, fmt.Errorf("%w: limit %d", ErrProgramTooLong, MaxCodeLength)
		}
		inst, err := makeInstruction(fields)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", len(code), err)
		}
		code = append(code, inst)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n != 0 {
		return nil, fmt.Errorf("instruction %d: %w: %d of 4 fields", len(code), ErrPartialInstruction, n)
	}
	if len(code) == 0 {
		return nil, ErrEmptyProgram
	}
	return &vm.Program{Code: code}, nil
}

// LoadText reads a quadruple text file.
func LoadText(path string) (*vm.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParseText(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// makeInstruction range-checks raw fields. The opcode must fit a byte so
// that an unknown value still reaches the engine as itself; r, l and m
// must fit the bytecode's 32-bit fields.
func makeInstruction(f [4]int64) (vm.Instruction, error) {
	if f[0] < 0 || f[0] > math.MaxUint8 {
		return vm.Instruction{}, fmt.Errorf("%w: opcode %d", ErrInvalidField, f[0])
	}
	for _, v := range f[1:] {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return vm.Instruction{}, fmt.Errorf("%w: %d out of range", ErrInvalidField, v)
		}
	}
	return vm.NewInstruction(vm.Opcode(f[0]), int(f[1]), int(f[2]), int(f[3])), nil
}
