// Package testutil provides testing utilities for PM/0 tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/pm0/pkg/vm"
)

// TempCSV creates a temporary CSV file and returns its path.
// The file is automatically cleaned up when the test finishes.
func TempCSV(t *testing.T, content string) string {
	t.Helper()
	return TempFile(t, content, ".csv")
}

// TempFile creates a temporary file with the given content and extension.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// AddText returns quadruple text for a program that computes 5 + 3 into
// R2, writes it and halts.
func AddText() string {
	return `1 0 0 5
1 1 0 3
11 2 0 1
9 2 0 1
9 0 0 3
`
}

// AddCSV returns AddText as a program table.
func AddCSV() string {
	return `op,r,l,m
1,0,0,5
1,1,0,3
11,2,0,1
9,2,0,1
9,0,0,3`
}

// AddAsm returns AddText as mnemonic assembly.
func AddAsm() string {
	return `; 5 + 3
	LIT 0, 0, 5
	LIT 1, 0, 3
	ADD 2, 0, 1
	SYS 2, 0, 1
	SYS 0, 0, 3
`
}

// AddProgram returns AddText decoded.
func AddProgram() *vm.Program {
	return &vm.Program{Code: []vm.Instruction{
		vm.NewInstruction(vm.OpLit, 0, 0, 5),
		vm.NewInstruction(vm.OpLit, 1, 0, 3),
		vm.NewInstruction(vm.OpAdd, 2, 0, 1),
		vm.NewInstruction(vm.OpSys, 2, 0, vm.SysWrite),
		vm.NewInstruction(vm.OpSys, 0, 0, vm.SysHalt),
	}}
}

// EchoProgram reads two values, writes their sum and halts.
func EchoProgram() *vm.Program {
	return &vm.Program{Code: []vm.Instruction{
		vm.NewInstruction(vm.OpSys, 0, 0, vm.SysRead),
		vm.NewInstruction(vm.OpSys, 1, 0, vm.SysRead),
		vm.NewInstruction(vm.OpAdd, 2, 0, 1),
		vm.NewInstruction(vm.OpSys, 2, 0, vm.SysWrite),
		vm.NewInstruction(vm.OpSys, 0, 0, vm.SysHalt),
	}}
}

// NestedProgram runs a procedure nested two levels deep that reads
// variables through the static-link chain and writes 42. It executes 19
// instructions and halts with SP 995 and BP 999.
func NestedProgram() *vm.Program {
	return &vm.Program{Code: []vm.Instruction{
		vm.NewInstruction(vm.OpJmp, 0, 0, 12),
		vm.NewInstruction(vm.OpInc, 0, 0, 4),
		vm.NewInstruction(vm.OpLit, 0, 0, 7),
		vm.NewInstruction(vm.OpSto, 0, 0, 3),
		vm.NewInstruction(vm.OpCal, 0, 0, 6),
		vm.NewInstruction(vm.OpRtn, 0, 0, 0),
		vm.NewInstruction(vm.OpInc, 0, 0, 3),
		vm.NewInstruction(vm.OpLod, 1, 2, 3),
		vm.NewInstruction(vm.OpLod, 2, 1, 3),
		vm.NewInstruction(vm.OpAdd, 3, 1, 2),
		vm.NewInstruction(vm.OpSto, 3, 2, 4),
		vm.NewInstruction(vm.OpRtn, 0, 0, 0),
		vm.NewInstruction(vm.OpInc, 0, 0, 5),
		vm.NewInstruction(vm.OpLit, 0, 0, 35),
		vm.NewInstruction(vm.OpSto, 0, 0, 3),
		vm.NewInstruction(vm.OpCal, 0, 0, 1),
		vm.NewInstruction(vm.OpLod, 4, 0, 4),
		vm.NewInstruction(vm.OpSys, 4, 0, vm.SysWrite),
		vm.NewInstruction(vm.OpSys, 0, 0, vm.SysHalt),
	}}
}

// DivZeroProgram faults with a division by zero at instruction 2.
func DivZeroProgram() *vm.Program {
	return &vm.Program{Code: []vm.Instruction{
		vm.NewInstruction(vm.OpLit, 0, 0, 1),
		vm.NewInstruction(vm.OpLit, 1, 0, 0),
		vm.NewInstruction(vm.OpDiv, 2, 0, 1),
		vm.NewInstruction(vm.OpSys, 0, 0, vm.SysHalt),
	}}
}

// MakeProgramFrame creates AddProgram as an op/r/l/m frame.
func MakeProgramFrame() *dataframe.DataFrame {
	return dataframe.NewDataFrame(
		dataframe.NewSeriesInt64("op", nil, 1, 1, 11, 9, 9),
		dataframe.NewSeriesInt64("r", nil, 0, 1, 2, 2, 0),
		dataframe.NewSeriesInt64("l", nil, 0, 0, 0, 0, 0),
		dataframe.NewSeriesInt64("m", nil, 5, 3, 1, 1, 3),
	)
}

// AssertInt64Equal checks if two int64 values are equal.
func AssertInt64Equal(t *testing.T, expected, actual int64) {
	t.Helper()
	if expected != actual {
		t.Errorf("expected %d, got %d", expected, actual)
	}
}

// AssertOutput checks a sequence of console writes.
func AssertOutput(t *testing.T, expected, actual []int64) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("expected output %v, got %v", expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("expected output %v, got %v", expected, actual)
			return
		}
	}
}
