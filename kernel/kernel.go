package kernel

import (
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/loader"
)

// Páginas de la región 0 reservadas para copiar marcos entre procesos.
const (
	ScratchDst = hardware.KernelStackBase - hardware.PageSize
	ScratchSrc = hardware.KernelStackBase - 2*hardware.PageSize
)

const idleProgram = `
loop:
	PAUSE
	GOTO loop
`

// Kernel agrupa todo el estado del sistema. Se crea con Boot y vive lo
// mismo que la máquina sobre la que corre.
type Kernel struct {
	cfg      Config
	m        *hardware.Machine
	log      *slog.Logger
	programs loader.Source

	frames    *FrameTable
	region0   hardware.PageTable
	kernelBrk uint64

	procs   *ProcTable
	ready   *Queue
	blocked *Queue
	zombie  *Queue

	current  *PCB
	idle     *PCB
	initProc *PCB
	// pending es el contexto de kernel que el trampolín debe retomar
	// después de un cambio de contexto.
	pending *KernelContext

	locks []Lock
	cvars []Cvar
	pipes []Pipe
	ttys  [hardware.NumTerminals]ttyState

	ticks int
}

// Boot arma las estructuras del kernel sobre m, crea los procesos idle e
// init y deja a init listo para ejecutar. Un error acá es fatal: la
// máquina queda detenida.
func Boot(m *hardware.Machine, cfg Config, programs loader.Source, log *slog.Logger) (*Kernel, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	k := &Kernel{
		cfg:      cfg,
		m:        m,
		log:      log,
		programs: programs,
		frames:   NewFrameTable(m.NumFrames(), log),
		procs:    NewProcTable(cfg.MaxProcs),
		ready:    NewQueue("ready"),
		blocked:  NewQueue("blocked"),
		zombie:   NewQueue("zombie"),
	}
	k.locks = make([]Lock, k.cfg.NumLocks)
	k.cvars = make([]Cvar, k.cfg.NumCvars)
	k.pipes = make([]Pipe, k.cfg.NumPipes)
	for i := range k.ttys {
		k.ttys[i] = newTTYState(i)
	}

	if err := k.boot(); err != nil {
		k.halt(fmt.Sprintf("falla de booteo: %v", err))
		return nil, err
	}
	return k, nil
}

func (k *Kernel) boot() error {
	if err := k.buildRegion0(); err != nil {
		return err
	}
	k.m.SetRegion0(k.region0)
	k.m.SetTrapHandler(k)
	k.m.EnableVM()

	heapTarget := k.kernelBrk + uint64(k.cfg.KernelHeapPages)<<hardware.PageShift
	if err := k.SetKernelBrk(heapTarget); err != nil {
		return fmt.Errorf("reservando heap del kernel: %w", err)
	}

	if err := k.createIdle(); err != nil {
		return fmt.Errorf("creando idle: %w", err)
	}
	if err := k.createInit(); err != nil {
		return fmt.Errorf("creando init: %w", err)
	}

	k.log.Info("Kernel iniciado",
		"marcos", k.frames.Len(),
		"marcos_libres", k.frames.FreeCount(),
		"init", k.cfg.InitProgram)
	return nil
}

// buildRegion0 mapea la imagen del kernel con identidad y deja las
// páginas de la pila de kernel apuntando a sus marcos de booteo.
func (k *Kernel) buildRegion0() error {
	k.region0 = hardware.NewPageTable()
	imagePages := k.cfg.KernelTextPages + k.cfg.KernelDataPages
	if imagePages >= hardware.PageNumber(ScratchSrc) {
		return fmt.Errorf("la imagen del kernel (%d páginas) pisa la pila: %w", imagePages, ErrBadArgument)
	}
	for vpn := 0; vpn < imagePages; vpn++ {
		prot := hardware.ProtRW
		if vpn < k.cfg.KernelTextPages {
			prot = hardware.ProtRX
		}
		pfn, err := k.frames.AllocateSpecific(vpn, FrameKernel, -1)
		if err != nil {
			return err
		}
		mapPage(k.region0, vpn, pfn, prot)
	}
	k.kernelBrk = uint64(imagePages) << hardware.PageShift

	base := hardware.PageNumber(hardware.KernelStackBase)
	for i := 0; i < hardware.KernelStackPages; i++ {
		mapPage(k.region0, base+i, base+i, hardware.ProtRW)
	}
	return nil
}

// createIdle arma el proceso idle reutilizando los marcos de la pila de
// kernel de booteo.
func (k *Kernel) createIdle() error {
	idle, err := k.procs.allocate()
	if err != nil {
		return err
	}
	idle.Name = "idle"
	base := hardware.PageNumber(hardware.KernelStackBase)
	for i := range idle.KStack {
		pfn, err := k.frames.AllocateSpecific(base+i, FrameKernel, idle.PID)
		if err != nil {
			return err
		}
		idle.KStack[i] = hardware.PTE{Valid: true, Prot: hardware.ProtRW, PFN: pfn}
	}

	img, err := loader.AssembleString("idle", idleProgram)
	if err != nil {
		return err
	}
	pfn, err := k.frames.Allocate(FrameUser, idle.PID)
	if err != nil {
		return err
	}
	mapPage(idle.PT, 0, pfn, hardware.ProtRW)
	k.m.SetRegion1(idle.PT)
	k.m.FlushTLBRegion1()
	if err := k.m.WriteVirt(hardware.VMem1Base, img.Text, hardware.ModeKernel); err != nil {
		return err
	}
	idle.PT[0].Prot = hardware.ProtRX
	k.m.FlushTLB(hardware.VMem1Base)

	idle.HeapStart = hardware.VMem1Base + hardware.PageSize
	idle.Brk = idle.HeapStart
	idle.UC.PC = img.Entry
	idle.UC.SP = hardware.VMem1Limit
	idle.State = StateRunning
	k.idle = idle
	k.current = idle
	return nil
}

// createInit copia el contexto de kernel de idle en init, carga el
// programa inicial y cambia a init.
func (k *Kernel) createInit() error {
	proc, err := k.procs.allocate()
	if err != nil {
		return err
	}
	proc.Name = k.cfg.InitProgram
	k.initProc = proc

	kc, err := k.CopyForFork(&KernelContext{}, k.idle, proc)
	if err != nil {
		return err
	}
	args := append([]string{k.cfg.InitProgram}, k.cfg.InitArgs...)
	if err := k.loadProgram(proc, k.cfg.InitProgram, args); err != nil {
		return err
	}

	k.pending = k.Switch(kc, k.idle, proc)
	k.resume()
	*k.m.Context() = k.current.UC
	return nil
}

// halt detiene la máquina ante una condición fatal para el kernel.
func (k *Kernel) halt(reason string) {
	k.log.Error("Máquina detenida", "motivo", reason)
	k.m.Halt(reason)
}

// setState cambia el estado de p y registra la transición.
func (k *Kernel) setState(p *PCB, s State) {
	if p.State == s {
		return
	}
	k.log.Debug(fmt.Sprintf("(%d) - Pasa del estado %s al estado %s", p.PID, p.State, s))
	p.State = s
}

// Current devuelve el proceso en ejecución.
func (k *Kernel) Current() *PCB {
	return k.current
}

func (k *Kernel) Idle() *PCB {
	return k.idle
}

func (k *Kernel) Init() *PCB {
	return k.initProc
}

// Frames expone la tabla de marcos para inspección.
func (k *Kernel) Frames() *FrameTable {
	return k.frames
}

// Lookup busca un proceso por pid.
func (k *Kernel) Lookup(pid int) *PCB {
	return k.procs.Lookup(pid)
}

// Ticks devuelve la cantidad de ticks de reloj atendidos.
func (k *Kernel) Ticks() int {
	return k.ticks
}

// Region0 devuelve la tabla del kernel.
func (k *Kernel) Region0() hardware.PageTable {
	return k.region0
}
