package trace

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/akhildatla/pm0/pkg/vm"
)

// TableTracer collects steps and renders them as one table when the
// machine halts or faults.
type TableTracer struct {
	collector
	w     io.Writer
	steps []Step
}

// Table returns a tracer that renders a step table to w at End.
func Table(w io.Writer) *TableTracer {
	return &TableTracer{w: w}
}

func (t *TableTracer) After(m *vm.VM, pc int, inst vm.Instruction) {
	t.steps = append(t.steps, NewStep(m, pc, inst))
}

func (t *TableTracer) End(m *vm.VM, err error) {
	RenderSteps(t.w, t.steps)
	if err != nil {
		fmt.Fprintf(t.w, "%v\n", err)
	}
}

// RenderSteps writes steps as a table.
func RenderSteps(w io.Writer, steps []Step) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "PC", "Instruction", "Next", "BP", "SP", "Registers", "Stack"})
	table.SetAutoWrapText(false)
	for _, s := range steps {
		table.Append([]string{
			strconv.FormatInt(s.Seq, 10),
			strconv.Itoa(s.PC),
			fmt.Sprintf("%s %d %d %d", vm.Opcode(s.Op).Mnemonic(), s.R, s.L, s.M),
			strconv.Itoa(s.NextPC),
			strconv.Itoa(s.BP),
			strconv.Itoa(s.SP),
			joinInts(s.Registers[:], -1),
			joinInts(s.Stack, s.Boundary),
		})
	}
	table.Render()
}

// RenderRegisters writes the register file as a one-row table.
func RenderRegisters(w io.Writer, regs [vm.NumRegisters]int64) {
	table := tablewriter.NewWriter(w)
	header := make([]string, len(regs))
	row := make([]string, len(regs))
	for i, v := range regs {
		header[i] = "R" + strconv.Itoa(i)
		row[i] = strconv.FormatInt(v, 10)
	}
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.Append(row)
	table.Render()
}

// RenderStack writes the live stack of s, one row per address, tagging
// frame bases and the activation-record boundary.
func RenderStack(w io.Writer, s vm.State) {
	bases := make(map[int]int, len(s.Frames))
	for depth, b := range s.Frames {
		bases[b] = depth
	}
	boundary := s.Boundary()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Addr", "Value", "Note"})
	for i, v := range s.Stack {
		addr := s.Addr(i)
		var notes []string
		if addr == s.SP {
			notes = append(notes, "sp")
		}
		if d, ok := bases[addr]; ok {
			notes = append(notes, fmt.Sprintf("frame %d base", d))
		}
		if i == boundary {
			notes = append(notes, "static link")
		}
		table.Append([]string{strconv.Itoa(addr), strconv.FormatInt(v, 10), strings.Join(notes, ", ")})
	}
	table.Render()
}

func joinInts(vals []int64, mark int) string {
	var sb strings.Builder
	for i, v := range vals {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i == mark {
			sb.WriteString("| ")
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	return sb.String()
}
