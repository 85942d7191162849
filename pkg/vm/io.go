package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Input supplies one integer per console read (SYS r 0 2). ReadInt may
// block; it is the only place the engine waits.
type Input interface {
	ReadInt() (int64, error)
}

// Output receives the value of a register on console write (SYS r 0 1).
type Output interface {
	WriteInt(reg int, v int64) error
}

// ReaderInput reads whitespace-separated integers from an io.Reader.
type ReaderInput struct {
	sc *bufio.Scanner
}

// NewReaderInput creates an Input that scans integers from r.
func NewReaderInput(r io.Reader) *ReaderInput {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &ReaderInput{sc: sc}
}

// ReadInt returns the next integer token, io.EOF when the reader is
// exhausted.
func (in *ReaderInput) ReadInt() (int64, error) {
	if !in.sc.Scan() {
		if err := in.sc.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	tok := in.sc.Text()
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", tok)
	}
	return v, nil
}

// SliceInput serves a fixed sequence of integers, then io.EOF.
type SliceInput struct {
	Values []int64
	pos    int
}

// NewSliceInput creates an Input over vals.
func NewSliceInput(vals ...int64) *SliceInput {
	return &SliceInput{Values: vals}
}

func (in *SliceInput) ReadInt() (int64, error) {
	if in.pos >= len(in.Values) {
		return 0, io.EOF
	}
	v := in.Values[in.pos]
	in.pos++
	return v, nil
}

// Push appends values to be served by later reads.
func (in *SliceInput) Push(vals ...int64) {
	in.Values = append(in.Values, vals...)
}

// OutputFunc adapts a function to the Output interface.
type OutputFunc func(reg int, v int64) error

func (f OutputFunc) WriteInt(reg int, v int64) error { return f(reg, v) }

// Emission is one console write observed by a CollectOutput.
type Emission struct {
	Reg   int
	Value int64
}

// CollectOutput records every console write in order.
type CollectOutput struct {
	Emitted []Emission
}

func (c *CollectOutput) WriteInt(reg int, v int64) error {
	c.Emitted = append(c.Emitted, Emission{Reg: reg, Value: v})
	return nil
}

// Values returns the written values without their registers.
func (c *CollectOutput) Values() []int64 {
	out := make([]int64, len(c.Emitted))
	for i, e := range c.Emitted {
		out[i] = e.Value
	}
	return out
}
