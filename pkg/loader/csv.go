package loader

import (
	"context"
	"errors"
	"fmt"
	"os"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"

	"github.com/akhildatla/pm0/pkg/vm"
)

// ErrEmptyFile is returned for a CSV file with no columns.
var ErrEmptyFile = errors.New("empty CSV file")

// ReadCSV reads a CSV file into a DataFrame using dataframe-go.
// - First row is header (column names)
// - Auto-detects column types, so integer columns arrive as int64
// - Empty values become nil
func ReadCSV(path string) (*dataframe.DataFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ctx := context.Background()
	df, err := imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes:   true,
		TrimLeadingSpace: true,
	})
	if err != nil {
		return nil, err
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyFile
	}

	return df, nil
}

// LoadCSV reads a program table from a CSV file with an op,r,l,m header.
func LoadCSV(path string) (*vm.Program, error) {
	df, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	p, err := FromFrame(df)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
