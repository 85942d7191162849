package loader

import (
	"context"
	"errors"
	"fmt"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"

	"github.com/akhildatla/pm0/pkg/vm"
)

// ErrEmptyParquet is returned for a Parquet file with no columns.
var ErrEmptyParquet = errors.New("empty Parquet file")

// ReadParquet reads a Parquet file and returns a DataFrame.
// Uses the dataframe-go imports package with parquet-go backend.
func ReadParquet(path string) (*dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	ctx := context.Background()

	df, err := imports.LoadFromParquet(ctx, fr)
	if err != nil {
		return nil, err
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyParquet
	}

	return df, nil
}

// LoadParquet reads a program table from a Parquet file, such as one
// written by ExportParquet.
func LoadParquet(path string) (*vm.Program, error) {
	df, err := ReadParquet(path)
	if err != nil {
		return nil, err
	}
	p, err := FromFrame(df)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
