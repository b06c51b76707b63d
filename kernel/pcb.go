package kernel

import (
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// State es el estado de un proceso en su ciclo de vida.
type State int

const (
	StateFree State = iota
	StateReady
	StateRunning
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateZombie:
		return "ZOMBIE"
	default:
		return fmt.Sprintf("STATE_%d", int(s))
	}
}

// PCB es el bloque de control de un proceso.
type PCB struct {
	PID   int
	PPID  int
	State State
	Name  string

	// Región 1 del proceso y límites de su imagen.
	PT        hardware.PageTable
	HeapStart uint64
	Brk       uint64
	StackBase uint64

	// Fragmento de tabla con los marcos privados de la pila de kernel.
	KStack [hardware.KernelStackPages]hardware.PTE

	UC   hardware.UserContext
	kctx KernelContext

	parent   *PCB
	children *Queue
	// sched es la cola de planificación que contiene al proceso, si hay una.
	sched *Queue

	ExitStatus   int
	DelayTicks   int
	WaitingChild bool

	slot int
}

func newPCB(slot, pid int) *PCB {
	return &PCB{
		PID:       pid,
		PPID:      -1,
		State:     StateFree,
		PT:        hardware.NewPageTable(),
		HeapStart: hardware.VMem1Base,
		Brk:       hardware.VMem1Base,
		StackBase: hardware.VMem1Limit,
		children:  NewQueue(fmt.Sprintf("hijos(%d)", pid)),
		slot:      slot,
	}
}

// Parent devuelve el padre actual, que puede ser init si fue adoptado.
func (p *PCB) Parent() *PCB {
	return p.parent
}

// Children devuelve los hijos vivos y zombies del proceso.
func (p *PCB) Children() []*PCB {
	return p.children.Items()
}

// Pages devuelve la cantidad de páginas válidas de la región 1.
func (p *PCB) Pages() int {
	return p.PT.ValidCount()
}

func (p *PCB) String() string {
	return fmt.Sprintf("pid=%d %s", p.PID, p.State)
}

// ProcTable es la tabla fija de procesos.
type ProcTable struct {
	slots   []*PCB
	nextPID int
}

func NewProcTable(size int) *ProcTable {
	return &ProcTable{slots: make([]*PCB, size)}
}

// allocate busca un lugar libre y crea un PCB con su región 1 vacía.
func (t *ProcTable) allocate() (*PCB, error) {
	for i, slot := range t.slots {
		if slot == nil {
			p := newPCB(i, t.nextPID)
			t.nextPID++
			t.slots[i] = p
			return p, nil
		}
	}
	return nil, ErrNoFreePCB
}

func (t *ProcTable) release(p *PCB) {
	if p.slot >= 0 && p.slot < len(t.slots) && t.slots[p.slot] == p {
		t.slots[p.slot] = nil
	}
	p.State = StateFree
}

// Lookup busca un proceso vivo o zombie por pid.
func (t *ProcTable) Lookup(pid int) *PCB {
	for _, p := range t.slots {
		if p != nil && p.PID == pid {
			return p
		}
	}
	return nil
}

// Live devuelve los procesos que ocupan un lugar de la tabla, en orden de lugar.
func (t *ProcTable) Live() []*PCB {
	var out []*PCB
	for _, p := range t.slots {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (t *ProcTable) Used() int {
	n := 0
	for _, p := range t.slots {
		if p != nil {
			n++
		}
	}
	return n
}
