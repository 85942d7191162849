package vm

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestSerializeDeserialize_Simple(t *testing.T) {
	program := &Program{
		Code: []Instruction{
			NewInstruction(OpLit, 0, 0, -5),
			NewInstruction(OpCal, 0, 2, 3),
			NewInstruction(OpSys, 0, 0, SysHalt),
			{Op: 99, R: 1, L: 2, M: 3},
		},
	}

	data, err := SerializeProgram(program)
	if err != nil {
		t.Fatalf("SerializeProgram failed: %v", err)
	}

	// Verify magic header
	if string(data[:4]) != BytecodeMagic {
		t.Errorf("expected magic %q, got %q", BytecodeMagic, string(data[:4]))
	}
	if len(data) != 4+2+4+13*len(program.Code) {
		t.Errorf("unexpected encoded size %d", len(data))
	}

	restored, err := DeserializeProgram(data)
	if err != nil {
		t.Fatalf("DeserializeProgram failed: %v", err)
	}
	if !reflect.DeepEqual(restored.Code, program.Code) {
		t.Errorf("expected %v, got %v", program.Code, restored.Code)
	}
}

func TestSerialize_FieldTooWide(t *testing.T) {
	program := &Program{Code: []Instruction{NewInstruction(OpLit, 0, 0, 1<<40)}}
	if _, err := SerializeProgram(program); err == nil {
		t.Error("expected error for a field wider than 32 bits")
	}
}

func TestDeserialize_InvalidMagic(t *testing.T) {
	_, err := DeserializeProgram([]byte("PM0X\x01\x00\x00\x00\x00\x00"))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestDeserialize_InvalidVersion(t *testing.T) {
	_, err := DeserializeProgram([]byte("PM0B\x09\x00\x00\x00\x00\x00"))
	if !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestDeserialize_Truncated(t *testing.T) {
	data, err := SerializeProgram(&Program{Code: []Instruction{
		NewInstruction(OpLit, 0, 0, 1),
		NewInstruction(OpSys, 0, 0, SysHalt),
	}})
	if err != nil {
		t.Fatalf("SerializeProgram failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"magic only", data[:4]},
		{"no count", data[:6]},
		{"half instruction", data[:len(data)-7]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeserializeProgram(tt.data); err == nil {
				t.Error("expected error for truncated bytecode")
			}
		})
	}

	if _, err := DeserializeProgram(data[:len(data)-7]); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDisassemble(t *testing.T) {
	listing := Disassemble(&Program{Code: []Instruction{
		NewInstruction(OpJmp, 0, 0, 2),
		NewInstruction(OpLit, 3, 0, 10),
		NewInstruction(OpSys, 0, 0, SysHalt),
	}})

	lines := strings.Split(strings.TrimSuffix(listing, "\n"), "\n")
	want := []string{
		"Line\tOP\tR\tL\tM",
		"0\tjmp\t0\t0\t2",
		"1\tlit\t3\t0\t10",
		"2\tsys\t0\t0\t3",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected listing %q, got %q", want, lines)
	}
}
