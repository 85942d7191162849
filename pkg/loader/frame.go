package loader

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/pm0/pkg/vm"
)

// ErrMissingColumn is returned when a program table lacks one of Columns.
var ErrMissingColumn = errors.New("missing program column")

// Columns are the series a program table must carry, matched without
// regard to case.
var Columns = [4]string{"op", "r", "l", "m"}

// FromFrame converts a table with op, r, l and m columns into a program,
// one instruction per row. Other columns are ignored.
func FromFrame(df *dataframe.DataFrame) (*vm.Program, error) {
	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyProgram
	}

	var cols [4]dataframe.Series
	for i, name := range Columns {
		for _, s := range df.Series {
			if strings.EqualFold(strings.TrimSpace(s.Name()), name) {
				cols[i] = s
				break
			}
		}
		if cols[i] == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}

	rows := df.NRows()
	if rows == 0 {
		return nil, ErrEmptyProgram
	}
	if rows > MaxCodeLength {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrProgramTooLong, rows, MaxCodeLength)
	}

	code := make([]vm.Instruction, rows)
	for row := 0; row < rows; row++ {
		var f [4]int64
		for i, s := range cols {
			v, err := cellInt(s.Value(row))
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", row, Columns[i], err)
			}
			f[i] = v
		}
		inst, err := makeInstruction(f)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		code[row] = inst
	}
	return &vm.Program{Code: code}, nil
}

// ToFrame is the inverse of FromFrame.
func ToFrame(p *vm.Program) *dataframe.DataFrame {
	op := dataframe.NewSeriesInt64("op", &dataframe.SeriesInit{Capacity: len(p.Code)})
	r := dataframe.NewSeriesInt64("r", &dataframe.SeriesInit{Capacity: len(p.Code)})
	l := dataframe.NewSeriesInt64("l", &dataframe.SeriesInit{Capacity: len(p.Code)})
	m := dataframe.NewSeriesInt64("m", &dataframe.SeriesInit{Capacity: len(p.Code)})
	for _, inst := range p.Code {
		op.Append(int64(inst.Op))
		r.Append(int64(inst.R))
		l.Append(int64(inst.L))
		m.Append(int64(inst.M))
	}
	return dataframe.NewDataFrame(op, r, l, m)
}

// cellInt accepts the value types dataframe-go imports produce: int64
// from inferred CSV, strings from JSON lines, and integral floats.
func cellInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: empty cell", ErrInvalidField)
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidField, x)
		}
		return int64(x), nil
	case float32:
		return cellInt(float64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidField, x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported cell type %T", ErrInvalidField, v)
	}
}
