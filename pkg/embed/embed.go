// Package embed provides the Go embedding API for PM/0.
//
// PM/0 is embeddable in Go applications. Pass a program, get a result.
//
// Basic usage:
//
//	result, err := embed.Execute(`
//	    LIT 0, 0, 5
//	    LIT 1, 0, 3
//	    ADD 2, 0, 1
//	    SYS 2, 0, 1
//	    SYS 0, 0, 3
//	`)
//	fmt.Println(result.Output) // [8]
//
// Source may also be integer quadruples ("1 0 0 5 ..."), the format the
// machine traditionally reads from input.txt.
//
// With console input and limits:
//
//	result, err := embed.ExecuteWithOptions(src,
//	    embed.WithInput(4, 6),
//	    embed.WithTimeout(time.Second),
//	    embed.WithMaxInstructions(10000),
//	)
package embed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/akhildatla/pm0/pkg/asm"
	"github.com/akhildatla/pm0/pkg/loader"
	"github.com/akhildatla/pm0/pkg/trace"
	"github.com/akhildatla/pm0/pkg/vm"
)

var log = commonlog.GetLogger("pm0.embed")

// Common errors
var (
	ErrTimeout          = errors.New("execution timeout exceeded")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
)

// Result is the outcome of one execution.
type Result struct {
	// Output holds the values written by SYS r 0 1, in order.
	Output []int64
	// Emitted pairs each written value with its source register.
	Emitted []vm.Emission
	// State is the machine state after the last executed instruction.
	State vm.State
	// Steps is the number of instructions executed.
	Steps int64
	// Halted is true when the program ended with SYS 0 0 3.
	Halted bool
}

// Compile turns source text into a program. Text made only of integers is
// read as quadruples; anything else is assembled as mnemonics.
func Compile(source string) (*vm.Program, error) {
	var (
		p   *vm.Program
		err error
	)
	if isQuadruples(source) {
		p, err = loader.ParseText(strings.NewReader(source))
	} else {
		p, err = asm.AssembleString(source)
	}
	if err != nil {
		return nil, err
	}
	if len(p.Code) == 0 {
		return nil, loader.ErrEmptyProgram
	}
	if len(p.Code) > loader.MaxCodeLength {
		return nil, fmt.Errorf("%w: %d instructions, limit %d", loader.ErrProgramTooLong, len(p.Code), loader.MaxCodeLength)
	}
	return p, nil
}

func isQuadruples(source string) bool {
	sc := bufio.NewScanner(strings.NewReader(source))
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		if _, err := strconv.ParseInt(sc.Text(), 10, 64); err != nil {
			return false
		}
	}
	return true
}

// Execute compiles and runs source, returns the result.
func Execute(source string) (*Result, error) {
	return ExecuteWithOptions(source)
}

// ExecuteFile loads a program in any format loader.Load accepts and
// executes it.
func ExecuteFile(path string, opts ...Option) (*Result, error) {
	p, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return ExecuteProgram(p, opts...)
}

// Options configures execution behavior for ExecuteWithOptions.
type Options struct {
	// Input supplies SYS r 0 2 reads. Nil means reads fail.
	Input vm.Input

	// Output additionally receives every console write.
	Output vm.Output

	// Tracer observes execution.
	Tracer vm.Tracer

	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxInstructions limits the number of instructions executed.
	// Zero means unlimited.
	MaxInstructions int64

	// StackCap sets the stack memory capacity. Zero means
	// vm.DefaultStackCap.
	StackCap int

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithInput serves vals to console reads, in order.
func WithInput(vals ...int64) Option {
	return func(o *Options) {
		o.Input = vm.NewSliceInput(vals...)
	}
}

// WithReader sets the console input source.
func WithReader(in vm.Input) Option {
	return func(o *Options) {
		o.Input = in
	}
}

// WithOutput mirrors console writes to out.
func WithOutput(out vm.Output) Option {
	return func(o *Options) {
		o.Output = out
	}
}

// WithTracer attaches a tracer.
func WithTracer(t vm.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxInstructions sets instruction limit.
func WithMaxInstructions(n int64) Option {
	return func(o *Options) {
		o.MaxInstructions = n
	}
}

// WithStackCap sets the stack capacity.
func WithStackCap(n int) Option {
	return func(o *Options) {
		o.StackCap = n
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// ExecuteWithOptions executes source with advanced configuration.
func ExecuteWithOptions(source string, opts ...Option) (*Result, error) {
	p, err := Compile(source)
	if err != nil {
		return nil, err
	}
	return ExecuteProgram(p, opts...)
}

// ExecuteProgram runs an already decoded program. When the machine faults
// or hits a limit the partial Result is returned together with the error.
func ExecuteProgram(p *vm.Program, opts ...Option) (*Result, error) {
	options := &Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}

	machine := vm.NewVM()
	if options.StackCap > 0 {
		machine.SetStackCap(options.StackCap)
	}
	if options.Input != nil {
		machine.SetInput(options.Input)
	}

	collected := &vm.CollectOutput{}
	machine.SetOutput(vm.OutputFunc(func(reg int, v int64) error {
		if err := collected.WriteInt(reg, v); err != nil {
			return err
		}
		if options.Output != nil {
			return options.Output.WriteInt(reg, v)
		}
		return nil
	}))

	counter := trace.Count()
	tracer := trace.Multi(options.Tracer, counter)
	machine.SetTracer(tracer)
	machine.SetMaxSteps(options.MaxInstructions)

	if err := machine.Load(p); err != nil {
		return nil, err
	}

	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}
	machine.SetContext(ctx)

	log.Debugf("executing %d instructions", len(p.Code))
	err := machine.Run()

	result := &Result{
		Output:  collected.Values(),
		Emitted: collected.Emitted,
		State:   machine.State(),
		Steps:   machine.Steps(),
		Halted:  machine.Halted(),
	}
	if err != nil {
		log.Debugf("stopped after %d steps: %v", result.Steps, err)
		// Limit and context stops leave the trace open; this execution is final.
		var fault *vm.Fault
		if !errors.As(err, &fault) {
			tracer.End(machine, err)
		}
		switch {
		case errors.Is(err, vm.ErrStepLimitExceeded):
			return result, ErrInstructionLimit
		case errors.Is(err, context.DeadlineExceeded):
			return result, ErrTimeout
		}
		return result, err
	}
	if summary := counter.Summary(); len(summary) > 0 {
		log.Debugf("halted after %d steps, most executed %s x%d", result.Steps, summary[0].Op, summary[0].Count)
	}
	return result, nil
}
