package asm

import (
	"testing"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := `loop: LIT R0, 0, -5 ; comment`

	lexer := NewLexer(input)
	tokens := lexer.Tokenize()

	expected := []TokenType{TokenIdent, TokenColon, TokenIdent, TokenReg, TokenComma, TokenInt, TokenComma, TokenInt, TokenEOF}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token %d: expected %v, got %v", i, expected[i], tok.Type)
		}
	}
}

func TestLexer_Registers(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"R0", TokenReg},
		{"r6", TokenReg},
		{"R12", TokenReg},
		{"R", TokenIdent},
		{"Rx", TokenIdent},
		{"RTN", TokenIdent},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := NewLexer(tt.input).Tokenize()
			if tokens[0].Type != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, tokens[0].Type)
			}
		})
	}
}

func TestLexer_LineNumbers(t *testing.T) {
	tokens := NewLexer("LIT 0 0 1\n\n; skipped\nSYS 0 0 3").Tokenize()

	last := tokens[len(tokens)-2]
	if last.Value != "3" || last.Line != 4 {
		t.Errorf("expected final operand on line 4, got %q on line %d", last.Value, last.Line)
	}
}

func TestLexer_Illegal(t *testing.T) {
	tokens := NewLexer("LIT 0 @ 1").Tokenize()
	if tokens[2].Type != TokenIllegal || tokens[2].Value != "@" {
		t.Errorf("expected ILLEGAL @, got %v %q", tokens[2].Type, tokens[2].Value)
	}
}

func TestLexer_MalformedNumberIsOneToken(t *testing.T) {
	tokens := NewLexer("12ab").Tokenize()
	if len(tokens) != 2 || tokens[0].Type != TokenInt || tokens[0].Value != "12ab" {
		t.Errorf("expected single INT token, got %v", tokens)
	}
}
