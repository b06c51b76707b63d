package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// SyntaxError indica una línea que el ensamblador no pudo interpretar.
type SyntaxError struct {
	Program string
	Line    int
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Program, e.Line, e.Msg)
}

type statement struct {
	line     int
	mnemonic string
	args     []string
}

type assembler struct {
	name    string
	stmts   []statement
	labels  map[string]int
	data    []byte
	symbols map[string]int
}

// Assemble traduce el pseudocódigo de src a una imagen. Cada línea tiene
// una instrucción (por ejemplo "ADDI r1 r1 -1"), una etiqueta terminada en
// ":", o una directiva ".string" / ".space". "#" inicia un comentario.
func Assemble(name string, src io.Reader) (*Image, error) {
	a := &assembler{
		name:    name,
		labels:  make(map[string]int),
		symbols: make(map[string]int),
	}
	if err := a.scan(src); err != nil {
		return nil, err
	}
	return a.link()
}

// AssembleString es Assemble sobre un string.
func AssembleString(name, src string) (*Image, error) {
	return Assemble(name, strings.NewReader(src))
}

func (a *assembler) errorf(line int, format string, args ...any) error {
	return &SyntaxError{Program: a.name, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (a *assembler) scan(src io.Reader) error {
	scanner := bufio.NewScanner(src)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, ".string") {
			if err := a.directiveString(lineNo, line); err != nil {
				return err
			}
			continue
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
			label := strings.TrimSuffix(fields[0], ":")
			if label == "" {
				return a.errorf(lineNo, "etiqueta vacía")
			}
			if _, dup := a.labels[label]; dup {
				return a.errorf(lineNo, "etiqueta %q repetida", label)
			}
			a.labels[label] = len(a.stmts)
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}

		if fields[0] == ".space" {
			if err := a.directiveSpace(lineNo, fields[1:]); err != nil {
				return err
			}
			continue
		}
		a.stmts = append(a.stmts, statement{
			line:     lineNo,
			mnemonic: strings.ToUpper(fields[0]),
			args:     fields[1:],
		})
	}
	return scanner.Err()
}

func (a *assembler) defineSymbol(line int, name string, data []byte) error {
	if _, dup := a.symbols[name]; dup {
		return a.errorf(line, "símbolo %q repetido", name)
	}
	for len(a.data)%8 != 0 {
		a.data = append(a.data, 0)
	}
	a.symbols[name] = len(a.data)
	a.data = append(a.data, data...)
	return nil
}

func (a *assembler) directiveString(line int, text string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(text, ".string"))
	name, quoted, ok := strings.Cut(rest, " ")
	if !ok {
		return a.errorf(line, ".string necesita nombre y texto")
	}
	value, err := strconv.Unquote(strings.TrimSpace(quoted))
	if err != nil {
		return a.errorf(line, "texto inválido en .string: %v", err)
	}
	return a.defineSymbol(line, name, append([]byte(value), 0))
}

func (a *assembler) directiveSpace(line int, args []string) error {
	if len(args) != 2 {
		return a.errorf(line, ".space necesita nombre y tamaño")
	}
	size, err := strconv.Atoi(args[1])
	if err != nil || size <= 0 {
		return a.errorf(line, "tamaño inválido en .space: %q", args[1])
	}
	return a.defineSymbol(line, args[0], make([]byte, size))
}

// link resuelve etiquetas y símbolos ahora que se conoce el tamaño del texto.
func (a *assembler) link() (*Image, error) {
	if len(a.stmts) == 0 {
		return nil, a.errorf(0, "programa sin instrucciones")
	}
	img := &Image{
		Name:    a.name,
		Text:    make([]byte, 0, len(a.stmts)*hardware.InstrSize),
		Data:    a.data,
		Symbols: make(map[string]uint64),
	}
	textSize := uint64(len(a.stmts) * hardware.InstrSize)
	dataBase := hardware.VMem1Base + hardware.UpToPage(textSize)
	for name, off := range a.symbols {
		img.Symbols[name] = dataBase + uint64(off)
	}
	for name, idx := range a.labels {
		img.Symbols[name] = hardware.TargetAddr(int32(idx))
	}

	for _, st := range a.stmts {
		in, err := a.encode(st, img.Symbols)
		if err != nil {
			return nil, err
		}
		b := in.Encode()
		img.Text = append(img.Text, b[:]...)
	}

	img.Entry = hardware.VMem1Base
	if idx, ok := a.labels["start"]; ok {
		img.Entry = hardware.TargetAddr(int32(idx))
	}
	return img, nil
}

func (a *assembler) encode(st statement, symbols map[string]uint64) (hardware.Instruction, error) {
	var in hardware.Instruction
	want := func(n int) error {
		if len(st.args) != n {
			return a.errorf(st.line, "%s espera %d operandos, tiene %d", st.mnemonic, n, len(st.args))
		}
		return nil
	}

	if st.mnemonic == "LA" {
		if err := want(2); err != nil {
			return in, err
		}
		r, err := a.register(st.line, st.args[0])
		if err != nil {
			return in, err
		}
		addr, ok := symbols[st.args[1]]
		if !ok {
			return in, a.errorf(st.line, "símbolo %q no definido", st.args[1])
		}
		return hardware.Instruction{Op: hardware.OpSet, A: r, Imm: int32(addr)}, nil
	}

	op, ok := hardware.LookupOpcode(st.mnemonic)
	if !ok {
		return in, a.errorf(st.line, "instrucción desconocida %q", st.mnemonic)
	}
	in.Op = op

	var err error
	switch op {
	case hardware.OpNop, hardware.OpPause:
		err = want(0)
	case hardware.OpSet:
		if err = want(2); err == nil {
			in.A, err = a.register(st.line, st.args[0])
		}
		if err == nil {
			in.Imm, err = a.immediate(st.line, st.args[1])
		}
	case hardware.OpMov:
		if err = want(2); err == nil {
			in.A, in.B, err = a.twoRegisters(st.line, st.args)
		}
	case hardware.OpAdd, hardware.OpSub, hardware.OpMul, hardware.OpDiv:
		if err = want(3); err == nil {
			in.A, in.B, err = a.twoRegisters(st.line, st.args)
		}
		if err == nil {
			in.C, err = a.register(st.line, st.args[2])
		}
	case hardware.OpAddi:
		if err = want(3); err == nil {
			in.A, in.B, err = a.twoRegisters(st.line, st.args)
		}
		if err == nil {
			in.Imm, err = a.immediate(st.line, st.args[2])
		}
	case hardware.OpLoadB, hardware.OpStoreB, hardware.OpLoadW, hardware.OpStoreW:
		if len(st.args) != 2 && len(st.args) != 3 {
			return in, a.errorf(st.line, "%s espera 2 o 3 operandos", st.mnemonic)
		}
		in.A, in.B, err = a.twoRegisters(st.line, st.args)
		if err == nil && len(st.args) == 3 {
			in.Imm, err = a.immediate(st.line, st.args[2])
		}
	case hardware.OpGoto:
		if err = want(1); err == nil {
			in.Imm, err = a.target(st.line, st.args[0])
		}
	case hardware.OpJz, hardware.OpJnz:
		if err = want(2); err == nil {
			in.A, err = a.register(st.line, st.args[0])
		}
		if err == nil {
			in.Imm, err = a.target(st.line, st.args[1])
		}
	case hardware.OpJlt:
		if err = want(3); err == nil {
			in.A, in.B, err = a.twoRegisters(st.line, st.args)
		}
		if err == nil {
			in.Imm, err = a.target(st.line, st.args[2])
		}
	case hardware.OpSyscall:
		if err = want(1); err == nil {
			in.Imm, err = a.syscall(st.line, st.args[0])
		}
	}
	return in, err
}

func (a *assembler) register(line int, s string) (uint8, error) {
	s = strings.ToLower(s)
	if s == "sp" {
		return hardware.RegSP, nil
	}
	if len(s) == 2 && s[0] == 'r' && s[1] >= '0' && s[1] < '0'+hardware.NumRegs {
		return s[1] - '0', nil
	}
	return 0, a.errorf(line, "registro inválido %q", s)
}

func (a *assembler) twoRegisters(line int, args []string) (uint8, uint8, error) {
	ra, err := a.register(line, args[0])
	if err != nil {
		return 0, 0, err
	}
	rb, err := a.register(line, args[1])
	return ra, rb, err
}

func (a *assembler) immediate(line int, s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, a.errorf(line, "inmediato inválido %q", s)
	}
	return int32(v), nil
}

func (a *assembler) target(line int, s string) (int32, error) {
	if idx, ok := a.labels[s]; ok {
		return int32(idx), nil
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, a.errorf(line, "etiqueta %q no definida", s)
	}
	return int32(v), nil
}

func (a *assembler) syscall(line int, s string) (int32, error) {
	if code, ok := hardware.SyscallNames[strings.ToUpper(s)]; ok {
		return int32(code), nil
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, a.errorf(line, "syscall desconocida %q", s)
	}
	return int32(v), nil
}
