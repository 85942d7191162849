package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error definitions
var (
	ErrUnexpectedToken = errors.New("unexpected token")
	ErrBadInteger      = errors.New("invalid integer")
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrUnknownLabel    = errors.New("unknown label")
	ErrTooManyOperands = errors.New("too many operands")
	ErrMisplacedLabel  = errors.New("label reference outside a jump target")
	ErrRegisterOperand = errors.New("invalid register operand")
)

// Error locates an assembly failure on a source line.
type Error struct {
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(line int, sentinel error, format string, args ...any) error {
	return &Error{Line: line, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

// OperandType represents the type of an operand.
type OperandType uint8

const (
	OperandInt OperandType = iota
	OperandReg
	OperandLabel
)

// Operand represents an instruction operand.
type Operand struct {
	Type   OperandType
	IntVal int64  // For integer literals and register numbers
	Label  string // For label references
}

// AsmInstruction represents a parsed assembly instruction.
type AsmInstruction struct {
	Mnemonic string
	Operands []Operand
	Line     int
}

// AsmProgram represents a parsed assembly program.
type AsmProgram struct {
	Instructions []AsmInstruction
	Labels       map[string]int // label -> instruction index
}

// Parser parses PM/0 assembly source code.
type Parser struct {
	tokens  []Token
	pos     int
	program *AsmProgram
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	lexer := NewLexer(input)
	tokens := lexer.Tokenize()
	return &Parser{
		tokens: tokens,
		program: &AsmProgram{
			Instructions: []AsmInstruction{},
			Labels:       make(map[string]int),
		},
	}
}

// Parse parses the entire input and returns the program.
func (p *Parser) Parse() (*AsmProgram, error) {
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]

		switch tok.Type {
		case TokenEOF:
			return p.program, nil

		case TokenNewline:
			p.pos++

		case TokenIdent:
			if p.peek(1).Type == TokenColon {
				if err := p.defineLabel(tok); err != nil {
					return nil, err
				}
				p.pos += 2
				continue
			}
			inst, err := p.parseInstruction()
			if err != nil {
				return nil, err
			}
			p.program.Instructions = append(p.program.Instructions, inst)

		default:
			return nil, errorf(tok.Line, ErrUnexpectedToken, "%s %q", tok.Type, tok.Value)
		}
	}

	return p.program, nil
}

func (p *Parser) peek(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return Token{Type: TokenEOF}
}

func (p *Parser) defineLabel(tok Token) error {
	if _, dup := p.program.Labels[tok.Value]; dup {
		return errorf(tok.Line, ErrDuplicateLabel, "%s", tok.Value)
	}
	p.program.Labels[tok.Value] = len(p.program.Instructions)
	return nil
}

func (p *Parser) parseInstruction() (AsmInstruction, error) {
	inst := AsmInstruction{
		Mnemonic: p.tokens[p.pos].Value,
		Line:     p.tokens[p.pos].Line,
		Operands: []Operand{},
	}
	p.pos++ // Consume mnemonic

	// Parse operands until newline or EOF
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]

		if tok.Type == TokenNewline || tok.Type == TokenEOF {
			break
		}

		if tok.Type == TokenComma {
			p.pos++
			continue
		}

		operand, err := p.parseOperand()
		if err != nil {
			return inst, err
		}
		inst.Operands = append(inst.Operands, operand)
	}

	return inst, nil
}

func (p *Parser) parseOperand() (Operand, error) {
	tok := p.tokens[p.pos]

	switch tok.Type {
	case TokenReg:
		n, err := strconv.ParseInt(tok.Value[1:], 10, 32)
		if err != nil {
			return Operand{}, errorf(tok.Line, ErrRegisterOperand, "%s", tok.Value)
		}
		p.pos++
		return Operand{Type: OperandReg, IntVal: n}, nil

	case TokenInt:
		n, err := strconv.ParseInt(strings.TrimPrefix(tok.Value, "+"), 10, 32)
		if err != nil {
			return Operand{}, errorf(tok.Line, ErrBadInteger, "%s", tok.Value)
		}
		p.pos++
		return Operand{Type: OperandInt, IntVal: n}, nil

	case TokenIdent:
		p.pos++
		return Operand{Type: OperandLabel, Label: tok.Value}, nil

	default:
		return Operand{}, errorf(tok.Line, ErrUnexpectedToken, "%s %q", tok.Type, tok.Value)
	}
}
