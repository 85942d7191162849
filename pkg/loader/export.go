package loader

import (
	"context"
	"io"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/xitongsys/parquet-go-source/local"

	"github.com/akhildatla/pm0/pkg/vm"
)

// ExportCSV writes the program as an op,r,l,m table.
func ExportCSV(w io.Writer, p *vm.Program) error {
	return WriteFrameCSV(w, ToFrame(p))
}

// ExportParquet writes the program as an op,r,l,m Parquet file at path.
func ExportParquet(path string, p *vm.Program) error {
	return WriteFrameParquet(path, ToFrame(p))
}

// WriteFrameCSV exports any DataFrame as CSV.
func WriteFrameCSV(w io.Writer, df *dataframe.DataFrame) error {
	return exports.ExportToCSV(context.Background(), w, df)
}

// WriteFrameParquet exports any DataFrame to a Parquet file at path.
func WriteFrameParquet(path string, df *dataframe.DataFrame) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := exports.ExportToParquet(context.Background(), fw, df); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}
