package trace

import (
	"io"
	"strconv"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/tliron/commonlog"

	"github.com/akhildatla/pm0/pkg/loader"
	"github.com/akhildatla/pm0/pkg/vm"
)

var log = commonlog.GetLogger("pm0.trace")

// RecorderColumns names the series of a Recorder frame, in order.
var RecorderColumns = func() []string {
	cols := []string{"step", "pc", "op", "r", "l", "m", "next_pc", "bp", "sp"}
	for i := 0; i < vm.NumRegisters; i++ {
		cols = append(cols, "r"+strconv.Itoa(i))
	}
	return append(cols, "depth")
}()

// Recorder collects every executed instruction into a DataFrame, one row
// per step. Stack contents are not recorded; use a Store or CBOR trace
// for full snapshots.
type Recorder struct {
	collector
	df *dataframe.DataFrame
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	series := make([]dataframe.Series, len(RecorderColumns))
	for i, name := range RecorderColumns {
		series[i] = dataframe.NewSeriesInt64(name, nil)
	}
	return &Recorder{df: dataframe.NewDataFrame(series...)}
}

// FrameOf builds a Recorder frame from already captured steps.
func FrameOf(steps []Step) *dataframe.DataFrame {
	r := NewRecorder()
	for _, s := range steps {
		r.add(s)
	}
	return r.df
}

func (r *Recorder) After(m *vm.VM, pc int, inst vm.Instruction) {
	r.add(NewStep(m, pc, inst))
}

func (r *Recorder) End(m *vm.VM, err error) {
	log.Debugf("recorded %d steps", r.df.NRows())
}

func (r *Recorder) add(s Step) {
	row := []interface{}{s.Seq, s.PC, int64(s.Op), s.R, s.L, s.M, s.NextPC, s.BP, s.SP}
	for _, v := range s.Registers {
		row = append(row, v)
	}
	row = append(row, s.Depth)
	r.df.Append(nil, row...)
}

// Frame returns the recorded steps.
func (r *Recorder) Frame() *dataframe.DataFrame { return r.df }

// Len returns the number of recorded steps.
func (r *Recorder) Len() int { return r.df.NRows() }

// ExportCSV writes the recorded steps as CSV.
func (r *Recorder) ExportCSV(w io.Writer) error {
	return loader.WriteFrameCSV(w, r.df)
}

// ExportParquet writes the recorded steps to a Parquet file at path.
func (r *Recorder) ExportParquet(path string) error {
	if err := loader.WriteFrameParquet(path, r.df); err != nil {
		return err
	}
	log.Infof("wrote %d steps to %s", r.df.NRows(), path)
	return nil
}
