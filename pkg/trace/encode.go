package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"

	"github.com/akhildatla/pm0/pkg/vm"
)

// JSONTracer writes one JSON object per executed instruction.
type JSONTracer struct {
	collector
	enc *json.Encoder
	err error
}

// JSONLines returns a tracer writing JSON lines to w.
func JSONLines(w io.Writer) *JSONTracer {
	return &JSONTracer{enc: json.NewEncoder(w)}
}

// Err returns the first encoding error, if any.
func (t *JSONTracer) Err() error { return t.err }

func (t *JSONTracer) After(m *vm.VM, pc int, inst vm.Instruction) {
	if t.err != nil {
		return
	}
	t.err = t.enc.Encode(NewStep(m, pc, inst))
}

func (t *JSONTracer) End(*vm.VM, error) {}

// DecodeJSONLines reads steps written by a JSONTracer.
func DecodeJSONLines(r io.Reader) ([]Step, error) {
	dec := json.NewDecoder(r)
	var steps []Step
	for {
		var s Step
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return steps, nil
			}
			return steps, fmt.Errorf("trace: decode step %d: %w", len(steps), err)
		}
		steps = append(steps, s)
	}
}

// cborEncMode uses canonical mode for deterministic encoding, so equal
// runs produce identical byte streams.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CBORTracer writes a CBOR sequence, one item per executed instruction.
type CBORTracer struct {
	collector
	enc *cbor.Encoder
	err error
}

// CBOR returns a tracer writing a CBOR sequence to w.
func CBOR(w io.Writer) *CBORTracer {
	return &CBORTracer{enc: cborEncMode.NewEncoder(w)}
}

// Err returns the first encoding error, if any.
func (t *CBORTracer) Err() error { return t.err }

func (t *CBORTracer) After(m *vm.VM, pc int, inst vm.Instruction) {
	if t.err != nil {
		return
	}
	t.err = t.enc.Encode(NewStep(m, pc, inst))
}

func (t *CBORTracer) End(*vm.VM, error) {}

// MarshalStep serializes a Step to canonical CBOR bytes.
func MarshalStep(s Step) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// DecodeCBOR reads a CBOR sequence written by a CBORTracer.
func DecodeCBOR(r io.Reader) ([]Step, error) {
	dec := cbor.NewDecoder(r)
	var steps []Step
	for {
		var s Step
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return steps, nil
			}
			return steps, fmt.Errorf("trace: unmarshal step %d: %w", len(steps), err)
		}
		steps = append(steps, s)
	}
}
