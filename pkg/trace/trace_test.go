package trace

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhildatla/pm0/internal/testutil"
	"github.com/akhildatla/pm0/pkg/loader"
	"github.com/akhildatla/pm0/pkg/vm"
)

// run executes p with tracer t attached and returns the machine and the
// result of Run.
func run(t *testing.T, p *vm.Program, tr vm.Tracer, opts ...func(*vm.VM)) (*vm.VM, error) {
	t.Helper()
	m := vm.NewVM()
	for _, o := range opts {
		o(m)
	}
	m.SetTracer(tr)
	m.SetOutput(&vm.CollectOutput{})
	require.NoError(t, m.Load(p))
	return m, m.Run()
}

func stackCap(n int) func(*vm.VM) {
	return func(m *vm.VM) { m.SetStackCap(n) }
}

// normalize treats an empty stack snapshot as absent so that decoders
// differing on nil versus empty slices compare equal.
func normalize(steps []Step) []Step {
	for i := range steps {
		if len(steps[i].Stack) == 0 {
			steps[i].Stack = nil
		}
	}
	return steps
}

func TestText_InitialBlock(t *testing.T) {
	var buf bytes.Buffer
	tr := Text(&buf, TextOptions{})
	_, err := run(t, testutil.AddProgram(), tr, stackCap(4))
	require.NoError(t, err)
	require.NoError(t, tr.Err())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out,
		"\t\t\tpc\tbp\tsp\n"+
			"Initial values\t\t0\t3\t4\n"+
			"Registers: 0 0 0 0 0 0 0 \n"+
			"Stack: 0 0 0 0 \n"), out)
	assert.Contains(t, out, "\n0 lit 0 0 5\t\t1\t3\t4\nRegisters: 5 0 0 0 0 0 0 \nStack: \n")
	assert.Contains(t, out, "\n2 add 2 0 1\t\t3\t3\t4\nRegisters: 5 3 8 0 0 0 0 \n")
	assert.NotContains(t, out, "fault")
}

func TestText_WindowDefaultsToForty(t *testing.T) {
	var buf bytes.Buffer
	_, err := run(t, testutil.AddProgram(), Text(&buf, TextOptions{}))
	require.NoError(t, err)

	lines := strings.Split(buf.String(), "\n")
	require.Greater(t, len(lines), 3)
	assert.Equal(t, "Stack: "+strings.Repeat("0 ", DefaultWindow), lines[3])
}

func TestText_ActivationRecordBoundary(t *testing.T) {
	var buf bytes.Buffer
	_, err := run(t, testutil.NestedProgram(), Text(&buf, TextOptions{Window: 5}))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "\n1 inc 0 0 4\t\t2\t994\t991\n")
	assert.Contains(t, out, "Stack: 0 0 0 35 0 | 999 999 16 0 \n")
	assert.Contains(t, out, "Stack: 0 0 0 0 0 \n")
}

func TestText_FaultPrinted(t *testing.T) {
	var buf bytes.Buffer
	_, err := run(t, testutil.DivZeroProgram(), Text(&buf, TextOptions{}))
	require.Error(t, err)

	assert.True(t, strings.HasSuffix(buf.String(), "\n"+err.Error()+"\n"))
	assert.NotContains(t, buf.String(), "2 div")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	m := vm.NewVM()
	m.SetOutput(ConsoleOutput{W: &buf})
	require.NoError(t, m.Load(testutil.AddProgram()))
	require.NoError(t, m.Run())

	assert.Equal(t, "Register at 2 = 8\n", buf.String())
}

func TestTable_RendersSteps(t *testing.T) {
	var buf bytes.Buffer
	_, err := run(t, testutil.AddProgram(), Table(&buf))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "INSTRUCTION")
	assert.Contains(t, out, "lit 0 0 5")
	assert.Contains(t, out, "add 2 0 1")
	assert.Contains(t, out, "5 3 8 0 0 0 0")
}

func TestTable_FaultAfterTable(t *testing.T) {
	var buf bytes.Buffer
	_, err := run(t, testutil.DivZeroProgram(), Table(&buf))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "lit 0 0 1")
	assert.True(t, strings.HasSuffix(out, err.Error()+"\n"))
}

func TestRenderStack_Notes(t *testing.T) {
	m := vm.NewVM()
	require.NoError(t, m.Load(testutil.NestedProgram()))
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Step())
	}

	var buf bytes.Buffer
	RenderStack(&buf, m.State())
	out := buf.String()
	assert.Contains(t, out, "frame 0 base, static link")
	assert.Contains(t, out, "frame 1 base")
	assert.Contains(t, out, "frame 2 base")
	assert.Contains(t, out, "sp")
}

func TestRenderRegisters(t *testing.T) {
	var buf bytes.Buffer
	RenderRegisters(&buf, [vm.NumRegisters]int64{1, 2, 3, 4, 5, 6, 7})
	out := buf.String()
	assert.Contains(t, out, "R0")
	assert.Contains(t, out, "R6")
	assert.Contains(t, out, "7")
}

func TestJSONLines_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tr := JSONLines(&buf)
	_, err := run(t, testutil.NestedProgram(), tr)
	require.NoError(t, err)
	require.NoError(t, tr.Err())

	assert.Equal(t, 19, strings.Count(buf.String(), "\n"))

	steps, err := DecodeJSONLines(&buf)
	require.NoError(t, err)
	require.Len(t, steps, 19)

	s := steps[5]
	assert.Equal(t, int64(6), s.Seq)
	assert.Equal(t, 1, s.PC)
	assert.Equal(t, vm.NewInstruction(vm.OpInc, 0, 0, 4), s.Instruction())
	assert.Equal(t, 2, s.NextPC)
	assert.Equal(t, 994, s.BP)
	assert.Equal(t, 991, s.SP)
	assert.Equal(t, []int64{0, 0, 0, 35, 0, 999, 999, 16, 0}, s.Stack)
	assert.Equal(t, 5, s.Boundary)
	assert.Equal(t, 2, s.Depth)

	last := steps[len(steps)-1]
	assert.Equal(t, uint8(vm.OpSys), last.Op)
	assert.Equal(t, int64(42), last.Registers[4])
}

func TestDecodeJSONLines_Invalid(t *testing.T) {
	_, err := DecodeJSONLines(strings.NewReader("{\"step\":1}\nnot json\n"))
	assert.Error(t, err)
}

func TestCBOR_MatchesJSON(t *testing.T) {
	var jbuf, cbuf bytes.Buffer
	jt, ct := JSONLines(&jbuf), CBOR(&cbuf)
	_, err := run(t, testutil.NestedProgram(), Multi(jt, ct))
	require.NoError(t, err)
	require.NoError(t, ct.Err())

	fromJSON, err := DecodeJSONLines(&jbuf)
	require.NoError(t, err)
	fromCBOR, err := DecodeCBOR(&cbuf)
	require.NoError(t, err)

	assert.Equal(t, normalize(fromJSON), normalize(fromCBOR))
}

func TestCBOR_Deterministic(t *testing.T) {
	encode := func() []byte {
		var buf bytes.Buffer
		_, err := run(t, testutil.NestedProgram(), CBOR(&buf))
		require.NoError(t, err)
		return buf.Bytes()
	}
	assert.Equal(t, encode(), encode())
}

func TestMarshalStep(t *testing.T) {
	s := Step{Seq: 1, PC: 0, Op: uint8(vm.OpLit), M: 5, NextPC: 1, BP: 999, SP: 1000}
	data, err := MarshalStep(s)
	require.NoError(t, err)

	steps, err := DecodeCBOR(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, s, steps[0])
}

func TestRecorder_Frame(t *testing.T) {
	rec := NewRecorder()
	_, err := run(t, testutil.AddProgram(), rec)
	require.NoError(t, err)

	assert.Equal(t, 5, rec.Len())
	df := rec.Frame()
	require.Len(t, df.Series, len(RecorderColumns))

	r2, err := df.NameToColumn("r2")
	require.NoError(t, err)
	assert.Equal(t, int64(8), df.Series[r2].Value(2))

	op, err := df.NameToColumn("op")
	require.NoError(t, err)
	assert.Equal(t, int64(vm.OpSys), df.Series[op].Value(4))
}

func TestRecorder_ExportCSV(t *testing.T) {
	rec := NewRecorder()
	_, err := run(t, testutil.AddProgram(), rec)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rec.ExportCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, strings.Join(RecorderColumns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,0,1,0,0,5,1,"), lines[1])
}

func TestRecorder_ExportParquet(t *testing.T) {
	rec := NewRecorder()
	_, err := run(t, testutil.NestedProgram(), rec)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "steps.parquet")
	require.NoError(t, rec.ExportParquet(path))

	df, err := loader.ReadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, 19, df.NRows())
}

func TestFrameOf(t *testing.T) {
	steps := []Step{
		{Seq: 1, Op: uint8(vm.OpLit), M: 5, NextPC: 1},
		{Seq: 2, PC: 1, Op: uint8(vm.OpSys), M: 3, NextPC: 2},
	}
	df := FrameOf(steps)
	assert.Equal(t, 2, df.NRows())
}

func TestStore_RoundTrip(t *testing.T) {
	st, err := OpenStore(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer st.Close()

	tr := st.Tracer("nested")
	_, err = run(t, testutil.NestedProgram(), tr)
	require.NoError(t, err)
	require.NoError(t, tr.Err())
	require.NotZero(t, tr.RunID())

	runs, err := st.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "nested", runs[0].Name)
	assert.Equal(t, int64(19), runs[0].Steps)
	assert.True(t, runs[0].Halted)
	assert.Empty(t, runs[0].Error)

	steps, err := st.Steps(tr.RunID())
	require.NoError(t, err)
	require.Len(t, steps, 19)

	var buf bytes.Buffer
	_, err = run(t, testutil.NestedProgram(), JSONLines(&buf))
	require.NoError(t, err)
	want, err := DecodeJSONLines(&buf)
	require.NoError(t, err)
	assert.Equal(t, normalize(want), normalize(steps))
}

func TestStore_FaultedRun(t *testing.T) {
	st, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	tr := st.Tracer("divzero")
	_, runErr := run(t, testutil.DivZeroProgram(), tr)
	require.Error(t, runErr)

	r, err := st.Run(tr.RunID())
	require.NoError(t, err)
	assert.False(t, r.Halted)
	assert.Equal(t, int64(2), r.Steps)
	assert.Equal(t, runErr.Error(), r.Error)
}

func TestStore_RunNotFound(t *testing.T) {
	st, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Steps(42)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMulti_Order(t *testing.T) {
	var calls []string
	named := func(name string) vm.Tracer {
		return vm.TracerFuncs{
			BeginFunc: func(*vm.VM) { calls = append(calls, name+".begin") },
			EndFunc:   func(*vm.VM, error) { calls = append(calls, name+".end") },
		}
	}

	_, err := run(t, &vm.Program{Code: []vm.Instruction{
		vm.NewInstruction(vm.OpSys, 0, 0, vm.SysHalt),
	}}, Multi(named("a"), nil, named("b")))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.begin", "b.begin", "b.end", "a.end"}, calls)
}

func TestMulti_Collapses(t *testing.T) {
	assert.Nil(t, Multi())
	assert.Nil(t, Multi(nil, nil))

	c := Count()
	assert.Same(t, c, Multi(nil, c))
}

func TestCounter(t *testing.T) {
	c := Count()
	_, err := run(t, testutil.NestedProgram(), c)
	require.NoError(t, err)

	assert.Equal(t, 19, c.Total())
	assert.Equal(t, 3, c.Of(vm.OpLod))
	assert.Equal(t, 2, c.Of(vm.OpCal))
	assert.Equal(t, 0, c.Of(vm.OpDiv))

	sum := c.Summary()
	require.Len(t, sum, 9)
	assert.Equal(t, []OpCount{
		{Op: vm.OpLod, Count: 3},
		{Op: vm.OpSto, Count: 3},
		{Op: vm.OpInc, Count: 3},
	}, sum[:3])
	assert.Equal(t, OpCount{Op: vm.OpAdd, Count: 1}, sum[len(sum)-1])
}

func TestStep_FaultWrapsSentinel(t *testing.T) {
	_, err := run(t, testutil.DivZeroProgram(), Count())
	assert.True(t, errors.Is(err, vm.ErrDivisionByZero))
}
