package vm

import "strings"

// Opcode represents a PM/0 instruction opcode.
type Opcode uint8

const (
	// ===== Memory & Control (1-9) =====
	OpLit Opcode = 1 // RF[r] = m
	OpRtn Opcode = 2 // return from procedure
	OpLod Opcode = 3 // RF[r] = ST[base(l) - m]
	OpSto Opcode = 4 // ST[base(l) - m] = RF[r]
	OpCal Opcode = 5 // call procedure at m, static link from level l
	OpInc Opcode = 6 // SP = SP - m
	OpJmp Opcode = 7 // PC = m
	OpJpc Opcode = 8 // if RF[r] == 0 then PC = m
	OpSys Opcode = 9 // m=1 write RF[r], m=2 read RF[r], m=3 halt

	// ===== Arithmetic (10-16) =====
	OpNeg Opcode = 10 // RF[r] = -RF[r]
	OpAdd Opcode = 11 // RF[r] = RF[l] + RF[m]
	OpSub Opcode = 12 // RF[r] = RF[l] - RF[m]
	OpMul Opcode = 13 // RF[r] = RF[l] * RF[m]
	OpDiv Opcode = 14 // RF[r] = RF[l] / RF[m]
	OpOdd Opcode = 15 // RF[r] = RF[r] % 2
	OpMod Opcode = 16 // RF[r] = RF[l] % RF[m]

	// ===== Relational (17-22) =====
	OpEql Opcode = 17 // RF[r] = RF[l] == RF[m]
	OpNeq Opcode = 18 // RF[r] = RF[l] != RF[m]
	OpLss Opcode = 19 // RF[r] = RF[l] < RF[m]
	OpLeq Opcode = 20 // RF[r] = RF[l] <= RF[m]
	OpGtr Opcode = 21 // RF[r] = RF[l] > RF[m]
	OpGeq Opcode = 22 // RF[r] = RF[l] >= RF[m]
)

// System call numbers carried in the M field of SYS.
const (
	SysWrite = 1
	SysRead  = 2
	SysHalt  = 3
)

var opNames = [...]string{
	OpLit: "LIT",
	OpRtn: "RTN",
	OpLod: "LOD",
	OpSto: "STO",
	OpCal: "CAL",
	OpInc: "INC",
	OpJmp: "JMP",
	OpJpc: "JPC",
	OpSys: "SYS",
	OpNeg: "NEG",
	OpAdd: "ADD",
	OpSub: "SUB",
	OpMul: "MUL",
	OpDiv: "DIV",
	OpOdd: "ODD",
	OpMod: "MOD",
	OpEql: "EQL",
	OpNeq: "NEQ",
	OpLss: "LSS",
	OpLeq: "LEQ",
	OpGtr: "GTR",
	OpGeq: "GEQ",
}

// Valid reports whether o is one of the 22 defined opcodes.
func (o Opcode) Valid() bool {
	return o >= OpLit && o <= OpGeq
}

// String returns the upper-case mnemonic of an opcode.
func (o Opcode) String() string {
	if !o.Valid() {
		return "UNKNOWN"
	}
	return opNames[o]
}

// Mnemonic returns the lower-case mnemonic used by the execution listing,
// or "???" for an opcode outside the instruction set.
func (o Opcode) Mnemonic() string {
	if !o.Valid() {
		return "???"
	}
	return strings.ToLower(opNames[o])
}

// IsArithmetic reports whether o belongs to the register-to-register
// arithmetic and relational family, where L and M name operand registers.
func (o Opcode) IsArithmetic() bool {
	return o >= OpNeg && o <= OpGeq
}

// OpcodeFromString returns the opcode for the given mnemonic (any case).
func OpcodeFromString(s string) (Opcode, bool) {
	s = strings.ToUpper(s)
	for i := OpLit; i <= OpGeq; i++ {
		if opNames[i] == s {
			return i, true
		}
	}
	return 0, false
}
