// Package loader reads PM/0 programs from disk.
//
// Programs arrive as integer quadruple text (one "op r l m" per
// instruction), as tables with op, r, l and m columns (CSV, JSON lines,
// Parquet), as PM0B bytecode or as mnemonic assembly.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akhildatla/pm0/pkg/asm"
	"github.com/akhildatla/pm0/pkg/vm"
)

// MaxCodeLength is the largest program the loader accepts.
const MaxCodeLength = 500

// Error definitions
var (
	ErrEmptyProgram       = errors.New("program has no instructions")
	ErrProgramTooLong     = errors.New("program exceeds maximum code length")
	ErrPartialInstruction = errors.New("incomplete instruction")
	ErrInvalidField       = errors.New("invalid instruction field")
)

// Format names a program encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatParquet  Format = "parquet"
	FormatBytecode Format = "bytecode"
	FormatAsm      Format = "asm"
)

// DetectFormat picks a format from the file extension. Unrecognised
// extensions are read as quadruple text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json", ".jsonl":
		return FormatJSON
	case ".parquet":
		return FormatParquet
	case ".pm0b":
		return FormatBytecode
	case ".asm", ".pm0":
		return FormatAsm
	default:
		return FormatText
	}
}

// Load reads the program at path in the format its extension names.
func Load(path string) (*vm.Program, error) {
	return LoadAs(path, DetectFormat(path))
}

// LoadAs reads the program at path in an explicit format.
func LoadAs(path string, format Format) (*vm.Program, error) {
	var (
		p   *vm.Program
		err error
	)
	switch format {
	case FormatText:
		p, err = LoadText(path)
	case FormatCSV:
		p, err = LoadCSV(path)
	case FormatJSON:
		p, err = LoadJSON(path)
	case FormatParquet:
		p, err = LoadParquet(path)
	case FormatBytecode:
		p, err = LoadBytecode(path)
	case FormatAsm:
		p, err = asm.AssembleFile(path)
	default:
		return nil, fmt.Errorf("unknown program format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := checkLength(p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadBytecode reads a program serialized with vm.SerializeProgram.
func LoadBytecode(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vm.DeserializeProgram(data)
}

func checkLength(p *vm.Program) error {
	if len(p.Code) == 0 {
		return ErrEmptyProgram
	}
	if len(p.Code) > MaxCodeLength {
		return fmt.Errorf("%w: %d instructions, limit %d", ErrProgramTooLong, len(p.Code), MaxCodeLength)
	}
	return nil
}
