package kernel

import (
	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// ProcessInfo resume un proceso para el monitor.
type ProcessInfo struct {
	PID          int    `json:"pid"`
	PPID         int    `json:"ppid"`
	Name         string `json:"nombre"`
	State        string `json:"estado"`
	Pages        int    `json:"paginas"`
	HeapStart    uint64 `json:"heap_inicio"`
	Brk          uint64 `json:"brk"`
	StackBase    uint64 `json:"pila_base"`
	PC           uint64 `json:"pc"`
	DelayTicks   int    `json:"delay,omitempty"`
	WaitingChild bool   `json:"esperando_hijo,omitempty"`
	KernelWork   bool   `json:"trabajo_kernel_pendiente,omitempty"`
	ExitStatus   *int   `json:"status_salida,omitempty"`
}

// FrameInfo resume el uso de un marco.
type FrameInfo struct {
	PFN   int    `json:"pfn"`
	Usage string `json:"uso"`
	Owner int    `json:"dueño"`
}

// ResourceInfo resume un lock, cvar o pipe activo.
type ResourceInfo struct {
	ID       int    `json:"id"`
	Kind     string `json:"tipo"`
	Owner    int    `json:"dueño,omitempty"`
	Buffered int    `json:"bytes,omitempty"`
	Waiting  []int  `json:"esperando,omitempty"`
}

// Snapshot es la foto del estado del kernel que expone el monitor.
type Snapshot struct {
	Ticks       int            `json:"ticks"`
	Current     int            `json:"actual"`
	Processes   []ProcessInfo  `json:"procesos"`
	Ready       []int          `json:"ready"`
	Blocked     []int          `json:"blocked"`
	Zombie      []int          `json:"zombie"`
	FramesTotal int            `json:"marcos_totales"`
	FramesFree  int            `json:"marcos_libres"`
	Frames      []FrameInfo    `json:"marcos,omitempty"`
	KernelBrk   uint64         `json:"brk_kernel"`
	Resources   []ResourceInfo `json:"recursos"`
}

// Snapshot arma la foto actual. Con frames incluye el detalle de cada
// marco en uso.
func (k *Kernel) Snapshot(frames bool) Snapshot {
	s := Snapshot{
		Ticks:       k.ticks,
		Current:     k.current.PID,
		Ready:       k.ready.PIDs(),
		Blocked:     k.blocked.PIDs(),
		Zombie:      k.zombie.PIDs(),
		FramesTotal: k.frames.Len(),
		FramesFree:  k.frames.FreeCount(),
		KernelBrk:   k.kernelBrk,
	}
	for _, p := range k.procs.Live() {
		info := ProcessInfo{
			PID:          p.PID,
			PPID:         p.PPID,
			Name:         p.Name,
			State:        p.State.String(),
			Pages:        p.Pages(),
			HeapStart:    p.HeapStart,
			Brk:          p.Brk,
			StackBase:    p.StackBase,
			PC:           p.UC.PC,
			DelayTicks:   p.DelayTicks,
			WaitingChild: p.WaitingChild,
			KernelWork:   p.kctx.Pending(),
		}
		if p.State == StateZombie {
			status := p.ExitStatus
			info.ExitStatus = &status
		}
		s.Processes = append(s.Processes, info)
	}
	if frames {
		for pfn := 0; pfn < k.frames.Len(); pfn++ {
			f := k.frames.Get(pfn)
			if f.Usage != FrameFree {
				s.Frames = append(s.Frames, FrameInfo{PFN: pfn, Usage: f.Usage.String(), Owner: f.Owner})
			}
		}
	}

	for i, l := range k.locks {
		if l.active {
			s.Resources = append(s.Resources, ResourceInfo{
				ID: EncodeID(ResourceLock, i), Kind: ResourceLock.String(),
				Owner: l.Owner(), Waiting: l.waiters.PIDs(),
			})
		}
	}
	for i, c := range k.cvars {
		if c.active {
			s.Resources = append(s.Resources, ResourceInfo{
				ID: EncodeID(ResourceCvar, i), Kind: ResourceCvar.String(),
				Waiting: c.waiters.PIDs(),
			})
		}
	}
	for i, pp := range k.pipes {
		if pp.active {
			s.Resources = append(s.Resources, ResourceInfo{
				ID: EncodeID(ResourcePipe, i), Kind: ResourcePipe.String(),
				Buffered: pp.Len(),
				Waiting:  append(pp.readers.PIDs(), pp.writers.PIDs()...),
			})
		}
	}
	return s
}

// FrameUsageMap devuelve el uso de cada marco físico, indexado por pfn.
func (k *Kernel) FrameUsageMap() []Frame {
	out := make([]Frame, k.frames.Len())
	for pfn := range out {
		out[pfn] = k.frames.Get(pfn)
	}
	return out
}

// RegionPages devuelve las páginas válidas de la región 1 de p indexadas
// por dirección virtual.
func RegionPages(p *PCB) map[uint64]hardware.PTE {
	out := make(map[uint64]hardware.PTE)
	for i, pte := range p.PT {
		if pte.Valid {
			out[hardware.Region1Addr(i)] = pte
		}
	}
	return out
}
