package hardware

import (
	"encoding/binary"
	"fmt"
)

// Registros de propósito general r0..r7 más el puntero de pila.
const (
	NumRegs = 8
	RegSP   = 8
)

// InstrSize es el tamaño fijo de cada instrucción codificada.
const InstrSize = 8

// Opcode de una instrucción. El cero es ilegal para que la memoria sin
// inicializar genere un trap.
type Opcode uint8

const (
	OpIllegal Opcode = iota
	OpNop
	OpSet    // ra = imm
	OpMov    // ra = rb
	OpAdd    // ra = rb + rc
	OpAddi   // ra = rb + imm
	OpSub    // ra = rb - rc
	OpMul    // ra = rb * rc
	OpDiv    // ra = rb / rc
	OpLoadB  // ra = mem8[rb+imm]
	OpStoreB // mem8[rb+imm] = ra
	OpLoadW  // ra = mem64[rb+imm]
	OpStoreW // mem64[rb+imm] = ra
	OpGoto   // pc = instrucción imm
	OpJz     // si ra == 0, pc = instrucción imm
	OpJnz    // si ra != 0, pc = instrucción imm
	OpJlt    // si ra < rb, pc = instrucción imm
	OpSyscall
	OpPause
	opCount
)

var opNames = [...]string{
	OpIllegal: "ILLEGAL",
	OpNop:     "NOP",
	OpSet:     "SET",
	OpMov:     "MOV",
	OpAdd:     "ADD",
	OpAddi:    "ADDI",
	OpSub:     "SUB",
	OpMul:     "MUL",
	OpDiv:     "DIV",
	OpLoadB:   "LOADB",
	OpStoreB:  "STOREB",
	OpLoadW:   "LOAD",
	OpStoreW:  "STORE",
	OpGoto:    "GOTO",
	OpJz:      "JZ",
	OpJnz:     "JNZ",
	OpJlt:     "JLT",
	OpSyscall: "SYSCALL",
	OpPause:   "PAUSE",
}

func (o Opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OP_%d", uint8(o))
}

// LookupOpcode busca un opcode por su mnemónico.
func LookupOpcode(name string) (Opcode, bool) {
	for op, n := range opNames {
		if n == name && Opcode(op) != OpIllegal {
			return Opcode(op), true
		}
	}
	return OpIllegal, false
}

// Instruction es una instrucción decodificada.
type Instruction struct {
	Op      Opcode
	A, B, C uint8
	Imm     int32
}

// Encode serializa la instrucción en su formato de 8 bytes.
func (in Instruction) Encode() [InstrSize]byte {
	var b [InstrSize]byte
	b[0] = byte(in.Op)
	b[1] = in.A
	b[2] = in.B
	b[3] = in.C
	binary.LittleEndian.PutUint32(b[4:], uint32(in.Imm))
	return b
}

// Decode interpreta 8 bytes de texto como instrucción.
func Decode(b []byte) Instruction {
	return Instruction{
		Op:  Opcode(b[0]),
		A:   b[1],
		B:   b[2],
		C:   b[3],
		Imm: int32(binary.LittleEndian.Uint32(b[4:])),
	}
}

// TargetAddr devuelve la dirección de la instrucción número n del texto.
func TargetAddr(n int32) uint64 {
	return VMem1Base + uint64(n)*InstrSize
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s %d %d %d %d", in.Op, in.A, in.B, in.C, in.Imm)
}

func validReg(r uint8) bool {
	return r <= RegSP
}
