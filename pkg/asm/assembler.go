// Package asm assembles PM/0 mnemonic source into programs.
//
// Source holds one instruction per line:
//
//	start:  INC 0, 0, 4      ; comments run to end of line
//	        LIT R0, 0, 7
//	        JPC 0, 0, done   ; labels resolve in the M field of JMP, JPC, CAL
//	done:   SYS 0, 0, 3
//
// Commas are optional and missing trailing operands default to 0.
package asm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/akhildatla/pm0/pkg/vm"
)

// AssembleString assembles PM/0 source text.
func AssembleString(source string) (*vm.Program, error) {
	parser := NewParser(source)
	asmProgram, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	return assemble(asmProgram)
}

// Assemble reads and assembles source from r.
func Assemble(r io.Reader) (*vm.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return AssembleString(string(data))
}

// AssembleFile assembles the source file at path.
func AssembleFile(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := AssembleString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func assemble(program *AsmProgram) (*vm.Program, error) {
	code := make([]vm.Instruction, 0, len(program.Instructions))
	for _, inst := range program.Instructions {
		ins, err := assembleInstruction(inst, program.Labels)
		if err != nil {
			return nil, err
		}
		code = append(code, ins)
	}
	return &vm.Program{Code: code}, nil
}

func assembleInstruction(inst AsmInstruction, labels map[string]int) (vm.Instruction, error) {
	op, ok := vm.OpcodeFromString(inst.Mnemonic)
	if !ok {
		return vm.Instruction{}, errorf(inst.Line, ErrUnknownMnemonic, "%s", inst.Mnemonic)
	}
	if len(inst.Operands) > 3 {
		return vm.Instruction{}, errorf(inst.Line, ErrTooManyOperands, "%s takes r, l, m", op)
	}

	var fields [3]int
	for i, operand := range inst.Operands {
		switch operand.Type {
		case OperandInt:
			fields[i] = int(operand.IntVal)
		case OperandReg:
			fields[i] = int(operand.IntVal)
		case OperandLabel:
			if i != 2 || !takesTarget(op) {
				return vm.Instruction{}, errorf(inst.Line, ErrMisplacedLabel, "%s in %s", operand.Label, op)
			}
			target, ok := labels[operand.Label]
			if !ok {
				return vm.Instruction{}, errorf(inst.Line, ErrUnknownLabel, "%s", operand.Label)
			}
			fields[i] = target
		}
	}
	return vm.NewInstruction(op, fields[0], fields[1], fields[2]), nil
}

func takesTarget(op vm.Opcode) bool {
	return op == vm.OpJmp || op == vm.OpJpc || op == vm.OpCal
}

// Format renders a program as assembly source that AssembleString reads
// back to the same instructions. An opcode with no mnemonic has no
// source form, so Format fails with vm.ErrUnknownOpcode.
func Format(p *vm.Program) (string, error) {
	var sb strings.Builder
	for i, inst := range p.Code {
		if !inst.Op.Valid() {
			return "", fmt.Errorf("instruction %d: %w: %d", i, vm.ErrUnknownOpcode, inst.Op)
		}
		fmt.Fprintf(&sb, "%-4s %d, %d, %d\t; %d\n", inst.Op, inst.R, inst.L, inst.M, i)
	}
	return sb.String(), nil
}
