package asm

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a token.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIdent   // Mnemonics and label names
	TokenInt     // Integer literals
	TokenComma   // ,
	TokenColon   // : (for labels)
	TokenReg     // R0-R6
	TokenIllegal // Any other character
)

// String returns the string representation of a token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenComma:
		return "COMMA"
	case TokenColon:
		return "COLON"
	case TokenReg:
		return "REG"
	case TokenIllegal:
		return "ILLEGAL"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes PM/0 assembly source code.
type Lexer struct {
	input  string
	pos    int
	line   int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		line:   1,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns the tokens.
func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '\n':
			l.emit(TokenNewline, "\n")
			l.line++
			l.pos++

		case ch == ';' || ch == '#':
			// Comment - skip to end of line
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}

		case ch == ',':
			l.emit(TokenComma, ",")
			l.pos++

		case ch == ':':
			l.emit(TokenColon, ":")
			l.pos++

		case ch == '-' || ch == '+' || isDigit(ch):
			l.scanNumber()

		case unicode.IsLetter(rune(ch)) || ch == '_' || ch == '.':
			l.scanIdentOrRegister()

		default:
			l.emit(TokenIllegal, string(ch))
			l.pos++
		}
	}

	l.emit(TokenEOF, "")
	return l.tokens
}

func (l *Lexer) emit(t TokenType, v string) {
	l.tokens = append(l.tokens, Token{Type: t, Value: v, Line: l.line})
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

// scanNumber takes a sign, digits and any trailing identifier characters,
// so "12ab" reaches the parser as one malformed integer.
func (l *Lexer) scanNumber() {
	start := l.pos
	if l.input[l.pos] == '-' || l.input[l.pos] == '+' {
		l.pos++
	}
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	l.emit(TokenInt, l.input[start:l.pos])
}

func (l *Lexer) scanIdentOrRegister() {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}

	value := l.input[start:l.pos]
	if isRegister(value) {
		l.emit(TokenReg, value)
		return
	}
	l.emit(TokenIdent, value)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || isDigit(ch) || ch == '_' || ch == '.'
}

// isRegister matches R followed only by digits, in either case.
func isRegister(value string) bool {
	upper := strings.ToUpper(value)
	if len(upper) < 2 || upper[0] != 'R' {
		return false
	}
	for i := 1; i < len(upper); i++ {
		if !isDigit(upper[i]) {
			return false
		}
	}
	return true
}
