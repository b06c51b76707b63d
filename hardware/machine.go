package hardware

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Config describe la máquina simulada.
type Config struct {
	PhysicalMemory   int // bytes, múltiplo de PageSize
	TickInstructions int // instrucciones entre interrupciones de reloj
	TransmitDelay    int // instrucciones que tarda una transmisión de terminal
}

// DefaultConfig devuelve una máquina de 4 MiB con un tick cada 200 instrucciones.
func DefaultConfig() Config {
	return Config{
		PhysicalMemory:   4 << 20,
		TickInstructions: 200,
		TransmitDelay:    20,
	}
}

var ErrMemoryTooSmall = errors.New("la memoria física no alcanza para mapear la región 0")

// Machine es la CPU simulada con su memoria, MMU, reloj y terminales. No
// es segura para uso concurrente salvo Type, Output y DrainOutput.
type Machine struct {
	cfg       Config
	mem       []byte
	mmu       mmu
	uc        UserContext
	handler   TrapHandler
	terminals [NumTerminals]terminal

	instructions uint64
	nextTick     uint64
	clockPending bool
	ticks        int

	halted     bool
	haltReason string
}

// NewMachine crea una máquina con la configuración dada. Los valores en
// cero toman los de DefaultConfig.
func NewMachine(cfg Config) (*Machine, error) {
	def := DefaultConfig()
	if cfg.PhysicalMemory <= 0 {
		cfg.PhysicalMemory = def.PhysicalMemory
	}
	if cfg.TickInstructions <= 0 {
		cfg.TickInstructions = def.TickInstructions
	}
	if cfg.TransmitDelay <= 0 {
		cfg.TransmitDelay = def.TransmitDelay
	}
	cfg.PhysicalMemory = int(DownToPage(uint64(cfg.PhysicalMemory)))
	if cfg.PhysicalMemory < VMem0Size {
		return nil, fmt.Errorf("%w: %d bytes", ErrMemoryTooSmall, cfg.PhysicalMemory)
	}
	return &Machine{
		cfg:      cfg,
		mem:      make([]byte, cfg.PhysicalMemory),
		mmu:      newMMU(),
		nextTick: uint64(cfg.TickInstructions),
	}, nil
}

// NumFrames devuelve la cantidad de marcos físicos.
func (m *Machine) NumFrames() int {
	return len(m.mem) >> PageShift
}

func (m *Machine) SetTrapHandler(h TrapHandler) {
	m.handler = h
}

// Context devuelve el contexto de usuario con el que la CPU continuará.
func (m *Machine) Context() *UserContext {
	return &m.uc
}

// SetRegion0 instala la tabla del kernel.
func (m *Machine) SetRegion0(pt PageTable) {
	m.mmu.region0 = pt
}

// SetRegion1 instala la tabla del proceso en ejecución.
func (m *Machine) SetRegion1(pt PageTable) {
	m.mmu.region1 = pt
}

// EnableVM activa la traducción de direcciones.
func (m *Machine) EnableVM() {
	m.mmu.vmEnabled = true
	m.mmu.flushAll()
}

func (m *Machine) VMEnabled() bool {
	return m.mmu.vmEnabled
}

// FlushTLB invalida la traducción cacheada de la página de addr.
func (m *Machine) FlushTLB(addr uint64) {
	m.mmu.flush(addr)
}

func (m *Machine) FlushTLBAll() {
	m.mmu.flushAll()
}

func (m *Machine) FlushTLBRegion1() {
	m.mmu.flushRange(VMem1Base, VMem1Limit)
}

func (m *Machine) FlushTLBKernelStack() {
	m.mmu.flushRange(KernelStackBase, KernelStackLimit)
}

// TLBMisses devuelve la cantidad de recorridos de tabla realizados.
func (m *Machine) TLBMisses() int {
	return m.mmu.tlbMisses
}

// ReadVirt copia en buf los bytes desde la dirección virtual addr.
func (m *Machine) ReadVirt(addr uint64, buf []byte, mode Mode) error {
	for i := 0; i < len(buf); {
		phys, fault := m.mmu.translate(addr+uint64(i), AccessRead, mode, len(m.mem))
		if fault != nil {
			return fault
		}
		n := copy(buf[i:], m.mem[phys:phys+PageSize-(phys&PageMask)])
		i += n
	}
	return nil
}

// WriteVirt escribe data a partir de la dirección virtual addr.
func (m *Machine) WriteVirt(addr uint64, data []byte, mode Mode) error {
	for i := 0; i < len(data); {
		phys, fault := m.mmu.translate(addr+uint64(i), AccessWrite, mode, len(m.mem))
		if fault != nil {
			return fault
		}
		n := copy(m.mem[phys:phys+PageSize-(phys&PageMask)], data[i:])
		i += n
	}
	return nil
}

// FrameBytes devuelve una copia del contenido del marco pfn. Es para
// inspección: el kernel accede a la memoria sólo por direcciones virtuales.
func (m *Machine) FrameBytes(pfn int) []byte {
	if pfn < 0 || pfn >= m.NumFrames() {
		return nil
	}
	out := make([]byte, PageSize)
	copy(out, m.mem[pfn<<PageShift:])
	return out
}

// Halt detiene la máquina.
func (m *Machine) Halt(reason string) {
	if m.halted {
		return
	}
	m.halted = true
	m.haltReason = reason
}

func (m *Machine) Halted() bool {
	return m.halted
}

func (m *Machine) HaltReason() string {
	return m.haltReason
}

// Ticks devuelve la cantidad de interrupciones de reloj entregadas.
func (m *Machine) Ticks() int {
	return m.ticks
}

// Instructions devuelve la cantidad de instrucciones ejecutadas.
func (m *Machine) Instructions() uint64 {
	return m.instructions
}

// Run ejecuta hasta que la máquina se detiene o se entregan maxTicks
// interrupciones de reloj. Con maxTicks en cero no hay límite.
func (m *Machine) Run(maxTicks int) {
	for !m.halted && (maxTicks <= 0 || m.ticks < maxTicks) {
		m.Step()
	}
}

// Step entrega una interrupción pendiente o ejecuta una instrucción.
// Devuelve false si la máquina está detenida.
func (m *Machine) Step() bool {
	if m.halted {
		return false
	}
	if m.handler == nil {
		m.Halt("no hay manejador de traps instalado")
		return false
	}

	if m.clockPending {
		m.clockPending = false
		m.ticks++
		m.trap(TrapClock, 0, 0)
		return !m.halted
	}
	if kind, tty, ok := m.pendingTerminalTrap(); ok {
		m.trap(kind, tty, 0)
		return !m.halted
	}

	m.execute()
	m.instructions++
	if m.instructions >= m.nextTick {
		m.nextTick += uint64(m.cfg.TickInstructions)
		m.clockPending = true
	}
	return !m.halted
}

func (m *Machine) trap(kind TrapKind, code int, addr uint64) {
	m.uc.Vector = kind
	m.uc.Code = code
	m.uc.Addr = addr
	m.handler.HandleTrap(&m.uc)
}

func (m *Machine) reg(r uint8) int64 {
	if r == RegSP {
		return int64(m.uc.SP)
	}
	return m.uc.Regs[r]
}

func (m *Machine) setReg(r uint8, v int64) {
	if r == RegSP {
		m.uc.SP = uint64(v)
		return
	}
	m.uc.Regs[r] = v
}

// execute corre la instrucción en PC. Un fallo de memoria deja PC sin
// avanzar para que la instrucción se reintente al volver del trap.
func (m *Machine) execute() {
	pc := m.uc.PC
	var raw [InstrSize]byte
	if pc&(InstrSize-1) != 0 {
		m.trap(TrapIllegal, 0, pc)
		return
	}
	phys, fault := m.mmu.translate(pc, AccessExec, ModeUser, len(m.mem))
	if fault != nil {
		m.trap(TrapMemory, fault.Code, fault.Addr)
		return
	}
	copy(raw[:], m.mem[phys:phys+InstrSize])
	in := Decode(raw[:])
	if in.Op == OpIllegal || in.Op >= opCount || !validReg(in.A) || !validReg(in.B) || !validReg(in.C) {
		m.trap(TrapIllegal, int(in.Op), pc)
		return
	}

	next := pc + InstrSize
	switch in.Op {
	case OpNop:
	case OpSet:
		m.setReg(in.A, int64(in.Imm))
	case OpMov:
		m.setReg(in.A, m.reg(in.B))
	case OpAdd:
		m.setReg(in.A, m.reg(in.B)+m.reg(in.C))
	case OpAddi:
		m.setReg(in.A, m.reg(in.B)+int64(in.Imm))
	case OpSub:
		m.setReg(in.A, m.reg(in.B)-m.reg(in.C))
	case OpMul:
		m.setReg(in.A, m.reg(in.B)*m.reg(in.C))
	case OpDiv:
		d := m.reg(in.C)
		if d == 0 {
			m.trap(TrapMath, 0, pc)
			return
		}
		m.setReg(in.A, m.reg(in.B)/d)
	case OpLoadB, OpLoadW:
		size := 1
		if in.Op == OpLoadW {
			size = 8
		}
		var buf [8]byte
		addr := uint64(m.reg(in.B) + int64(in.Imm))
		if err := m.ReadVirt(addr, buf[:size], ModeUser); err != nil {
			m.memoryTrap(err)
			return
		}
		if size == 1 {
			m.setReg(in.A, int64(buf[0]))
		} else {
			m.setReg(in.A, int64(binary.LittleEndian.Uint64(buf[:])))
		}
	case OpStoreB, OpStoreW:
		var buf [8]byte
		size := 1
		v := m.reg(in.A)
		if in.Op == OpStoreW {
			size = 8
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
		} else {
			buf[0] = byte(v)
		}
		addr := uint64(m.reg(in.B) + int64(in.Imm))
		if err := m.WriteVirt(addr, buf[:size], ModeUser); err != nil {
			m.memoryTrap(err)
			return
		}
	case OpGoto:
		next = TargetAddr(in.Imm)
	case OpJz:
		if m.reg(in.A) == 0 {
			next = TargetAddr(in.Imm)
		}
	case OpJnz:
		if m.reg(in.A) != 0 {
			next = TargetAddr(in.Imm)
		}
	case OpJlt:
		if m.reg(in.A) < m.reg(in.B) {
			next = TargetAddr(in.Imm)
		}
	case OpSyscall:
		m.uc.PC = next
		m.trap(TrapKernel, int(in.Imm), 0)
		return
	case OpPause:
		m.uc.PC = next
		m.instructions = m.nextTick - 1
		return
	}
	m.uc.PC = next
}

func (m *Machine) memoryTrap(err error) {
	var fault *Fault
	if errors.As(err, &fault) {
		m.trap(TrapMemory, fault.Code, fault.Addr)
		return
	}
	m.Halt(err.Error())
}
