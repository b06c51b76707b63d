package kernel

import (
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// Brk mueve el break del proceso actual. Entre el heap y la pila siempre
// queda al menos una página sin mapear.
func (k *Kernel) Brk(addr uint64) {
	p := k.current
	if err := k.setBrk(p, addr); err != nil {
		k.syscallFailed("Brk", err)
		return
	}
	p.UC.Regs[0] = 0
}

func (k *Kernel) setBrk(p *PCB, addr uint64) error {
	if addr < p.HeapStart {
		return fmt.Errorf("%w: break 0x%x debajo del heap 0x%x", ErrBadArgument, addr, p.HeapStart)
	}
	// Antes de redondear: cerca de 2^64 UpToPage da la vuelta a cero.
	if addr >= p.StackBase {
		return fmt.Errorf("break 0x%x: %w", addr, ErrBrkCollision)
	}
	target := hardware.UpToPage(addr)
	if target+hardware.PageSize > p.StackBase {
		return fmt.Errorf("break 0x%x: %w", addr, ErrBrkCollision)
	}

	mapped := hardware.UpToPage(p.Brk)
	for mapped < target {
		if err := k.mapUserPage(p, hardware.Region1Index(mapped), hardware.ProtRW); err != nil {
			p.Brk = mapped
			return fmt.Errorf("creciendo el heap: %w", err)
		}
		mapped += hardware.PageSize
	}
	for mapped > target {
		mapped -= hardware.PageSize
		index := hardware.Region1Index(mapped)
		k.frames.Free(p.PT[index].PFN)
		unmapPage(p.PT, index)
		k.m.FlushTLB(mapped)
	}
	k.log.Debug("Brk", "pid", p.PID, "anterior", p.Brk, "nuevo", addr)
	p.Brk = addr
	return nil
}

// growStack mapea las páginas de pila necesarias para cubrir addr. Sólo
// vale si addr queda por debajo de la pila y deja una página de guarda
// sobre el heap.
func (k *Kernel) growStack(p *PCB, addr uint64) error {
	page := hardware.DownToPage(addr)
	if addr < hardware.VMem1Base || page >= p.StackBase {
		return fmt.Errorf("%w: 0x%x fuera de la zona de pila", ErrBadAddress, addr)
	}
	if page < hardware.UpToPage(p.Brk)+hardware.PageSize {
		return fmt.Errorf("%w: 0x%x choca con el heap", ErrBadAddress, addr)
	}

	var added []int
	for base := p.StackBase - hardware.PageSize; base >= page; base -= hardware.PageSize {
		index := hardware.Region1Index(base)
		if err := k.mapUserPage(p, index, hardware.ProtRW); err != nil {
			for _, i := range added {
				k.frames.Free(p.PT[i].PFN)
				unmapPage(p.PT, i)
			}
			return fmt.Errorf("creciendo la pila: %w", err)
		}
		added = append(added, index)
	}
	k.log.Debug("Crece la pila", "pid", p.PID, "base_anterior", p.StackBase, "base_nueva", page)
	p.StackBase = page
	return nil
}
