package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Bytecode file format:
// - Magic: "PM0B" (4 bytes)
// - Version: uint16
// - NumInstructions: uint32
// - Instructions: per instruction uint8 op, int32 r, int32 l, int32 m
//
// All integers are little-endian.

const (
	BytecodeMagic   = "PM0B"
	BytecodeVersion = 1
)

var (
	ErrInvalidMagic   = errors.New("invalid bytecode magic")
	ErrInvalidVersion = errors.New("unsupported bytecode version")
)

type encodedInstruction struct {
	Op      uint8
	R, L, M int32
}

// SerializeProgram serializes a Program to bytecode format.
func SerializeProgram(p *Program) ([]byte, error) {
	buf := new(bytes.Buffer)

	// Write magic
	buf.WriteString(BytecodeMagic)

	// Write version
	if err := binary.Write(buf, binary.LittleEndian, uint16(BytecodeVersion)); err != nil {
		return nil, fmt.Errorf("writing version: %w", err)
	}

	// Write instructions
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(p.Code))); err != nil {
		return nil, fmt.Errorf("writing instruction count: %w", err)
	}
	for i, inst := range p.Code {
		enc, err := encode(inst)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if err := binary.Write(buf, binary.LittleEndian, enc); err != nil {
			return nil, fmt.Errorf("writing instruction: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func encode(inst Instruction) (encodedInstruction, error) {
	for _, f := range [...]int{inst.R, inst.L, inst.M} {
		if int(int32(f)) != f {
			return encodedInstruction{}, fmt.Errorf("field %d does not fit in 32 bits", f)
		}
	}
	return encodedInstruction{
		Op: uint8(inst.Op),
		R:  int32(inst.R),
		L:  int32(inst.L),
		M:  int32(inst.M),
	}, nil
}

// DeserializeProgram deserializes bytecode to a Program.
func DeserializeProgram(data []byte) (*Program, error) {
	buf := bytes.NewReader(data)

	// Read and verify magic
	magic := make([]byte, 4)
	if _, err := io.ReadFull(buf, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != BytecodeMagic {
		return nil, ErrInvalidMagic
	}

	// Read and verify version
	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != BytecodeVersion {
		return nil, ErrInvalidVersion
	}

	// Read instructions
	var numInst uint32
	if err := binary.Read(buf, binary.LittleEndian, &numInst); err != nil {
		return nil, fmt.Errorf("reading instruction count: %w", err)
	}
	// 13 bytes per encoded instruction
	if int64(numInst)*13 > int64(buf.Len()) {
		return nil, fmt.Errorf("reading instructions: %w", io.ErrUnexpectedEOF)
	}
	code := make([]Instruction, numInst)
	for i := range code {
		var enc encodedInstruction
		if err := binary.Read(buf, binary.LittleEndian, &enc); err != nil {
			return nil, fmt.Errorf("reading instruction %d: %w", i, err)
		}
		code[i] = Instruction{Op: Opcode(enc.Op), R: int(enc.R), L: int(enc.L), M: int(enc.M)}
	}

	return &Program{Code: code}, nil
}

// Disassemble renders the program listing printed before execution:
// one row per instruction with its index and lower-case mnemonic.
func Disassemble(p *Program) string {
	var buf bytes.Buffer

	buf.WriteString("Line\tOP\tR\tL\tM\n")
	for i, inst := range p.Code {
		fmt.Fprintf(&buf, "%d\t%s\t%d\t%d\t%d\n", i, inst.Op.Mnemonic(), inst.R, inst.L, inst.M)
	}

	return buf.String()
}
