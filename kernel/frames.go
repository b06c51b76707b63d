package kernel

import (
	"fmt"
	"log/slog"
)

// FrameUsage indica para qué se usa un marco físico.
type FrameUsage int

const (
	FrameFree FrameUsage = iota
	FrameKernel
	FrameUser
)

func (u FrameUsage) String() string {
	switch u {
	case FrameFree:
		return "LIBRE"
	case FrameKernel:
		return "KERNEL"
	case FrameUser:
		return "USUARIO"
	default:
		return fmt.Sprintf("USO_%d", int(u))
	}
}

// Frame describe un marco físico. Owner sólo tiene sentido si Usage es
// FrameUser; en los marcos de pila de kernel guarda el pid por trazabilidad.
type Frame struct {
	PFN   int
	Usage FrameUsage
	Owner int
	Refs  int
}

// FrameTable es la tabla de marcos físicos con asignación first-fit.
type FrameTable struct {
	frames []Frame
	free   int
	log    *slog.Logger
}

// NewFrameTable crea una tabla de n marcos libres.
func NewFrameTable(n int, log *slog.Logger) *FrameTable {
	ft := &FrameTable{frames: make([]Frame, n), free: n, log: log}
	for i := range ft.frames {
		ft.frames[i] = Frame{PFN: i, Owner: -1}
	}
	return ft
}

// Allocate toma el primer marco libre.
func (ft *FrameTable) Allocate(usage FrameUsage, owner int) (int, error) {
	for i := range ft.frames {
		if ft.frames[i].Usage == FrameFree {
			ft.take(i, usage, owner)
			return i, nil
		}
	}
	ft.log.Warn("No hay marcos libres", "owner", owner)
	return -1, ErrOutOfMemory
}

// AllocateSpecific toma el marco pfn si está libre.
func (ft *FrameTable) AllocateSpecific(pfn int, usage FrameUsage, owner int) (int, error) {
	if pfn < 0 || pfn >= len(ft.frames) {
		return -1, fmt.Errorf("%w: %d", ErrFrameOutOfRange, pfn)
	}
	if ft.frames[pfn].Usage != FrameFree {
		return -1, fmt.Errorf("%w: %d", ErrFrameBusy, pfn)
	}
	ft.take(pfn, usage, owner)
	return pfn, nil
}

func (ft *FrameTable) take(pfn int, usage FrameUsage, owner int) {
	ft.frames[pfn] = Frame{PFN: pfn, Usage: usage, Owner: owner, Refs: 1}
	ft.free--
}

// Free suelta una referencia al marco y lo libera al llegar a cero.
// Liberar un marco libre o fuera de rango sólo deja una advertencia.
func (ft *FrameTable) Free(pfn int) {
	if pfn < 0 || pfn >= len(ft.frames) {
		ft.log.Warn("Liberación de marco fuera de rango", "pfn", pfn)
		return
	}
	f := &ft.frames[pfn]
	if f.Usage == FrameFree {
		ft.log.Warn("Liberación de marco ya libre", "pfn", pfn)
		return
	}
	f.Refs--
	if f.Refs > 0 {
		return
	}
	*f = Frame{PFN: pfn, Owner: -1}
	ft.free++
}

// Get devuelve el descriptor del marco pfn.
func (ft *FrameTable) Get(pfn int) Frame {
	if pfn < 0 || pfn >= len(ft.frames) {
		return Frame{PFN: pfn, Owner: -1}
	}
	return ft.frames[pfn]
}

func (ft *FrameTable) Len() int {
	return len(ft.frames)
}

// FreeCount devuelve la cantidad de marcos libres.
func (ft *FrameTable) FreeCount() int {
	return ft.free
}

// Count devuelve cuántos marcos tienen el uso indicado.
func (ft *FrameTable) Count(usage FrameUsage) int {
	n := 0
	for _, f := range ft.frames {
		if f.Usage == usage {
			n++
		}
	}
	return n
}
