package hardware

import (
	"errors"
	"testing"
)

const (
	textPFN = 200
	dataPFN = 201
	dataVA  = VMem1Base + PageSize
)

// recorder guarda cada trap y detiene la máquina en los que stop acepta.
type recorder struct {
	m     *Machine
	traps []UserContext
	stop  func(uc *UserContext) bool
}

func (r *recorder) HandleTrap(uc *UserContext) {
	r.traps = append(r.traps, *uc)
	if r.stop != nil && r.stop(uc) {
		r.m.Halt(uc.Vector.String())
	}
}

func (r *recorder) last() UserContext {
	if len(r.traps) == 0 {
		return UserContext{}
	}
	return r.traps[len(r.traps)-1]
}

func stopOnAny(*UserContext) bool { return true }

func stopOn(kind TrapKind) func(uc *UserContext) bool {
	return func(uc *UserContext) bool { return uc.Vector == kind }
}

// newTestMachine carga prog en la primera página de la región 1 y deja
// una página de datos RW a continuación.
func newTestMachine(t *testing.T, prog []Instruction) (*Machine, *recorder, PageTable) {
	t.Helper()
	m, err := NewMachine(Config{PhysicalMemory: 2 * VMem0Size, TickInstructions: 100, TransmitDelay: 5})
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	pt := NewPageTable()
	pt[0] = PTE{Valid: true, Prot: ProtRW, PFN: textPFN}
	pt[1] = PTE{Valid: true, Prot: ProtRW, PFN: dataPFN}
	m.SetRegion0(NewPageTable())
	m.SetRegion1(pt)
	m.EnableVM()

	var text []byte
	for _, in := range prog {
		b := in.Encode()
		text = append(text, b[:]...)
	}
	if err := m.WriteVirt(VMem1Base, text, ModeKernel); err != nil {
		t.Fatalf("WriteVirt() error = %v", err)
	}
	pt[0].Prot = ProtRX
	m.FlushTLB(VMem1Base)
	m.Context().PC = VMem1Base

	rec := &recorder{m: m}
	m.SetTrapHandler(rec)
	return m, rec, pt
}

func set(r uint8, v int32) Instruction { return Instruction{Op: OpSet, A: r, Imm: v} }

var exitCall = Instruction{Op: OpSyscall, Imm: SysExit}

func TestNewMachineRejectsSmallMemory(t *testing.T) {
	_, err := NewMachine(Config{PhysicalMemory: VMem0Size / 2})
	if !errors.Is(err, ErrMemoryTooSmall) {
		t.Errorf("NewMachine() error = %v, want %v", err, ErrMemoryTooSmall)
	}
}

func TestNewMachineDefaults(t *testing.T) {
	m, err := NewMachine(Config{})
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	if got, want := m.NumFrames(), DefaultConfig().PhysicalMemory/PageSize; got != want {
		t.Errorf("NumFrames() = %d, want %d", got, want)
	}
}

func TestExecuteArithmetic(t *testing.T) {
	m, rec, _ := newTestMachine(t, []Instruction{
		set(0, 6),
		set(1, 7),
		{Op: OpMul, A: 2, B: 0, C: 1},
		{Op: OpAddi, A: 2, B: 2, Imm: -2},
		{Op: OpSub, A: 3, B: 2, C: 0},
		{Op: OpDiv, A: 4, B: 3, C: 1},
		{Op: OpMov, A: RegSP, B: 4},
		exitCall,
	})
	rec.stop = stopOn(TrapKernel)
	m.Run(0)

	uc := rec.last()
	if uc.Vector != TrapKernel || uc.Code != SysExit {
		t.Fatalf("último trap = %s/%d, want KERNEL/%d", uc.Vector, uc.Code, SysExit)
	}
	if uc.PC != VMem1Base+8*InstrSize {
		t.Errorf("PC = %#x, want %#x (instrucción siguiente al SYSCALL)", uc.PC, VMem1Base+8*InstrSize)
	}
	want := map[int]int64{2: 40, 3: 34, 4: 4}
	for r, v := range want {
		if uc.Regs[r] != v {
			t.Errorf("r%d = %d, want %d", r, uc.Regs[r], v)
		}
	}
	if uc.SP != 4 {
		t.Errorf("sp = %d, want 4", uc.SP)
	}
}

func TestLoadStore(t *testing.T) {
	m, rec, _ := newTestMachine(t, []Instruction{
		set(1, int32(dataVA)),
		set(0, -5),
		{Op: OpStoreW, A: 0, B: 1, Imm: 8},
		{Op: OpLoadW, A: 2, B: 1, Imm: 8},
		{Op: OpStoreB, A: 0, B: 1},
		{Op: OpLoadB, A: 3, B: 1},
		exitCall,
	})
	rec.stop = stopOn(TrapKernel)
	m.Run(0)

	uc := rec.last()
	if uc.Regs[2] != -5 {
		t.Errorf("LOAD = %d, want -5", uc.Regs[2])
	}
	if uc.Regs[3] != 0xfb {
		t.Errorf("LOADB = %#x, want 0xfb", uc.Regs[3])
	}
	if got := m.FrameBytes(dataPFN)[0]; got != 0xfb {
		t.Errorf("marco de datos[0] = %#x, want 0xfb", got)
	}
}

func TestBranches(t *testing.T) {
	// Suma 5+4+3+2+1 con un bucle.
	m, rec, _ := newTestMachine(t, []Instruction{
		set(0, 5),
		set(1, 0),
		{Op: OpJz, A: 0, Imm: 6},
		{Op: OpAdd, A: 1, B: 1, C: 0},
		{Op: OpAddi, A: 0, B: 0, Imm: -1},
		{Op: OpGoto, Imm: 2},
		set(2, 3),
		{Op: OpJlt, A: 2, B: 1, Imm: 9},
		set(3, 99),
		{Op: OpJnz, A: 3, Imm: 11},
		set(3, 1),
		exitCall,
	})
	rec.stop = stopOn(TrapKernel)
	m.Run(0)

	uc := rec.last()
	if uc.Regs[1] != 15 {
		t.Errorf("suma = %d, want 15", uc.Regs[1])
	}
	if uc.Regs[3] != 1 {
		t.Errorf("r3 = %d, want 1 (JLT tomado saltea el SET 99)", uc.Regs[3])
	}
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name     string
		prog     []Instruction
		wantKind TrapKind
		wantCode int
		wantAddr uint64
	}{
		{
			name:     "division por cero",
			prog:     []Instruction{set(0, 1), set(1, 0), {Op: OpDiv, A: 2, B: 0, C: 1}},
			wantKind: TrapMath,
			wantAddr: VMem1Base + 2*InstrSize,
		},
		{
			name:     "pagina sin mapear",
			prog:     []Instruction{set(1, int32(VMem1Base+5*PageSize)), {Op: OpLoadW, A: 0, B: 1}},
			wantKind: TrapMemory,
			wantCode: SegvMapErr,
			wantAddr: VMem1Base + 5*PageSize,
		},
		{
			name:     "escritura sobre el texto",
			prog:     []Instruction{set(1, int32(VMem1Base)), {Op: OpStoreW, A: 0, B: 1}},
			wantKind: TrapMemory,
			wantCode: SegvAccErr,
			wantAddr: VMem1Base,
		},
		{
			name:     "usuario en region 0",
			prog:     []Instruction{set(1, 0x1000), {Op: OpLoadB, A: 0, B: 1}},
			wantKind: TrapMemory,
			wantCode: SegvAccErr,
			wantAddr: 0x1000,
		},
		{
			name:     "opcode ilegal",
			prog:     []Instruction{{Op: OpIllegal}},
			wantKind: TrapIllegal,
			wantAddr: VMem1Base,
		},
		{
			name:     "registro inexistente",
			prog:     []Instruction{{Op: OpMov, A: 9, B: 0}},
			wantKind: TrapIllegal,
			wantCode: int(OpMov),
			wantAddr: VMem1Base,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec, _ := newTestMachine(t, tt.prog)
			rec.stop = stopOnAny
			m.Run(0)

			uc := rec.last()
			if uc.Vector != tt.wantKind || uc.Code != tt.wantCode || uc.Addr != tt.wantAddr {
				t.Errorf("trap = %s code=%d addr=%#x, want %s code=%d addr=%#x",
					uc.Vector, uc.Code, uc.Addr, tt.wantKind, tt.wantCode, tt.wantAddr)
			}
		})
	}
}

func TestFaultLeavesPCOnInstruction(t *testing.T) {
	m, rec, pt := newTestMachine(t, []Instruction{
		set(1, int32(VMem1Base+3*PageSize)),
		{Op: OpStoreW, A: 1, B: 1},
		exitCall,
	})
	faults := 0
	rec.stop = func(uc *UserContext) bool {
		if uc.Vector == TrapMemory {
			faults++
			// El manejador mapea la página y la instrucción se reintenta.
			pt[3] = PTE{Valid: true, Prot: ProtRW, PFN: 210}
			return false
		}
		return true
	}
	m.Run(0)

	if faults != 1 {
		t.Fatalf("fallos = %d, want 1", faults)
	}
	if got := rec.traps[0].PC; got != VMem1Base+InstrSize {
		t.Errorf("PC en el fallo = %#x, want %#x", got, VMem1Base+InstrSize)
	}
	if rec.last().Vector != TrapKernel {
		t.Errorf("último trap = %s, want KERNEL", rec.last().Vector)
	}
	if got := m.FrameBytes(210)[2]; got != 0x10 {
		t.Errorf("marco 210[2] = %#x, want 0x10", got)
	}
}

func TestRunStopsAtMaxTicks(t *testing.T) {
	m, rec, _ := newTestMachine(t, []Instruction{{Op: OpGoto, Imm: 0}})
	m.Run(3)

	if m.Ticks() != 3 {
		t.Errorf("Ticks() = %d, want 3", m.Ticks())
	}
	if m.Instructions() != 300 {
		t.Errorf("Instructions() = %d, want 300", m.Instructions())
	}
	for _, uc := range rec.traps {
		if uc.Vector != TrapClock {
			t.Errorf("trap inesperado %s", uc.Vector)
		}
	}
}

func TestPauseSkipsToNextTick(t *testing.T) {
	m, _, _ := newTestMachine(t, []Instruction{{Op: OpPause}, {Op: OpGoto, Imm: 0}})
	m.Run(2)

	if m.Instructions() != 200 {
		t.Errorf("Instructions() = %d, want 200", m.Instructions())
	}
}

func TestStepWithoutHandlerHalts(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	if m.Step() {
		t.Error("Step() = true sin manejador de traps")
	}
	if !m.Halted() || m.HaltReason() == "" {
		t.Errorf("Halted() = %v, motivo %q", m.Halted(), m.HaltReason())
	}
}

func TestTLBServesStaleEntriesUntilFlush(t *testing.T) {
	m, _, pt := newTestMachine(t, []Instruction{exitCall})

	if err := m.WriteVirt(dataVA, []byte{'a'}, ModeKernel); err != nil {
		t.Fatalf("WriteVirt() error = %v", err)
	}
	pt[1].PFN = 202

	buf := make([]byte, 1)
	if err := m.ReadVirt(dataVA, buf, ModeKernel); err != nil || buf[0] != 'a' {
		t.Errorf("lectura sin flush = %q, %v; want 'a' desde la TLB", buf, err)
	}
	m.FlushTLB(dataVA)
	if err := m.ReadVirt(dataVA, buf, ModeKernel); err != nil || buf[0] != 0 {
		t.Errorf("lectura con flush = %q, %v; want el marco nuevo en cero", buf, err)
	}

	pt[1] = PTE{}
	if err := m.ReadVirt(dataVA, buf, ModeKernel); err != nil {
		t.Errorf("lectura de entrada invalidada sin flush: error = %v, want nil", err)
	}
	m.FlushTLBRegion1()
	err := m.ReadVirt(dataVA, buf, ModeKernel)
	var fault *Fault
	if !errors.As(err, &fault) || fault.Code != SegvMapErr || fault.Addr != dataVA {
		t.Errorf("lectura después del flush: error = %v, want MAPERR en %#x", err, dataVA)
	}
}

func TestTLBMissesCounted(t *testing.T) {
	m, _, _ := newTestMachine(t, []Instruction{exitCall})
	m.FlushTLBAll()
	before := m.TLBMisses()

	buf := make([]byte, 16)
	for i := 0; i < 3; i++ {
		if err := m.ReadVirt(dataVA, buf, ModeKernel); err != nil {
			t.Fatalf("ReadVirt() error = %v", err)
		}
	}
	if got := m.TLBMisses() - before; got != 1 {
		t.Errorf("fallos de TLB = %d, want 1", got)
	}
}

func TestReadVirtCrossesPages(t *testing.T) {
	m, _, pt := newTestMachine(t, []Instruction{exitCall})
	pt[2] = PTE{Valid: true, Prot: ProtRW, PFN: 150}

	addr := uint64(VMem1Base + 2*PageSize - 4)
	data := []byte("cruza-pagina")
	if err := m.WriteVirt(addr, data, ModeKernel); err != nil {
		t.Fatalf("WriteVirt() error = %v", err)
	}
	got := make([]byte, len(data))
	if err := m.ReadVirt(addr, got, ModeKernel); err != nil {
		t.Fatalf("ReadVirt() error = %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("ReadVirt() = %q, want %q", got, data)
	}
	if got := string(m.FrameBytes(150)[:len(data)-4]); got != "a-pagina" {
		t.Errorf("segundo marco = %q, want %q", got, "a-pagina")
	}
}

func TestPhysicalAddressingBeforeVM(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	if m.VMEnabled() {
		t.Fatal("VMEnabled() = true antes de EnableVM")
	}
	if err := m.WriteVirt(3*PageSize+7, []byte{42}, ModeKernel); err != nil {
		t.Fatalf("WriteVirt() error = %v", err)
	}
	if got := m.FrameBytes(3)[7]; got != 42 {
		t.Errorf("FrameBytes(3)[7] = %d, want 42", got)
	}
	if m.FrameBytes(m.NumFrames()) != nil {
		t.Error("FrameBytes() fuera de rango != nil")
	}
}
