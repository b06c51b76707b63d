package kernel

import (
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// mapPage instala una entrada válida. No toca la TLB.
func mapPage(pt hardware.PageTable, vpn, pfn int, prot hardware.Prot) {
	pt[vpn] = hardware.PTE{Valid: true, Prot: prot, PFN: pfn}
}

// unmapPage invalida la entrada sin liberar el marco.
func unmapPage(pt hardware.PageTable, vpn int) {
	pt[vpn] = hardware.PTE{}
}

// cloneContents copia el marco src en dst a través de las páginas scratch
// de la región 0.
func (k *Kernel) cloneContents(src, dst int) error {
	srcVPN := hardware.PageNumber(ScratchSrc)
	dstVPN := hardware.PageNumber(ScratchDst)

	mapPage(k.region0, srcVPN, src, hardware.ProtRead)
	mapPage(k.region0, dstVPN, dst, hardware.ProtRW)
	k.m.FlushTLB(ScratchSrc)
	k.m.FlushTLB(ScratchDst)

	buf := make([]byte, hardware.PageSize)
	err := k.m.ReadVirt(ScratchSrc, buf, hardware.ModeKernel)
	if err == nil {
		err = k.m.WriteVirt(ScratchDst, buf, hardware.ModeKernel)
	}

	unmapPage(k.region0, srcVPN)
	unmapPage(k.region0, dstVPN)
	k.m.FlushTLB(ScratchSrc)
	k.m.FlushTLB(ScratchDst)
	if err != nil {
		return fmt.Errorf("copiando marco %d en %d: %w", src, dst, err)
	}
	return nil
}

// cloneTable copia cada página válida de src en un marco nuevo de dst con
// la misma protección. Si falta memoria y CloneRollback está activo se
// liberan los marcos ya copiados; si no, quedan en dst para que los libere
// quien llama.
func (k *Kernel) cloneTable(src, dst *PCB) error {
	var copied []int
	for vpn, pte := range src.PT {
		if !pte.Valid {
			continue
		}
		pfn, err := k.frames.Allocate(FrameUser, dst.PID)
		if err == nil {
			err = k.cloneContents(pte.PFN, pfn)
			if err != nil {
				k.frames.Free(pfn)
			}
		}
		if err != nil {
			if *k.cfg.CloneRollback {
				for _, v := range copied {
					k.frames.Free(dst.PT[v].PFN)
					unmapPage(dst.PT, v)
				}
			}
			return fmt.Errorf("clonando la página %d de %d: %w", vpn, src.PID, err)
		}
		mapPage(dst.PT, vpn, pfn, pte.Prot)
		copied = append(copied, vpn)
	}
	return nil
}

// freeRegion1 libera todos los marcos de la región 1 de p. Si p es el
// proceso en ejecución también se vacía la TLB de la región.
func (k *Kernel) freeRegion1(p *PCB) {
	for vpn, pte := range p.PT {
		if pte.Valid {
			k.frames.Free(pte.PFN)
			unmapPage(p.PT, vpn)
		}
	}
	if p == k.current {
		k.m.FlushTLBRegion1()
	}
}

// freeKernelStack libera los marcos de la pila de kernel de p.
func (k *Kernel) freeKernelStack(p *PCB) {
	for i, pte := range p.KStack {
		if pte.Valid {
			k.frames.Free(pte.PFN)
			p.KStack[i] = hardware.PTE{}
		}
	}
}

// SetKernelBrk mueve el break del heap del kernel a addr. Al crecer mapea
// páginas nuevas de a una; si se acaban los marcos el break queda en la
// última página mapeada. Al achicar desmapea desde arriba.
func (k *Kernel) SetKernelBrk(addr uint64) error {
	target := hardware.UpToPage(addr)
	if target > ScratchSrc {
		return fmt.Errorf("break 0x%x: %w", addr, ErrBrkCollision)
	}
	imageEnd := uint64(k.cfg.KernelTextPages+k.cfg.KernelDataPages) << hardware.PageShift
	if target < imageEnd {
		return fmt.Errorf("break 0x%x debajo de la imagen del kernel: %w", addr, ErrBadArgument)
	}

	for k.kernelBrk < target {
		pfn, err := k.frames.Allocate(FrameKernel, -1)
		if err != nil {
			return fmt.Errorf("creciendo el heap del kernel: %w", err)
		}
		mapPage(k.region0, hardware.PageNumber(k.kernelBrk), pfn, hardware.ProtRW)
		k.kernelBrk += hardware.PageSize
	}
	for k.kernelBrk > target {
		k.kernelBrk -= hardware.PageSize
		vpn := hardware.PageNumber(k.kernelBrk)
		k.frames.Free(k.region0[vpn].PFN)
		unmapPage(k.region0, vpn)
		k.m.FlushTLB(k.kernelBrk)
	}
	return nil
}

// KernelBrk devuelve el break actual del heap del kernel.
func (k *Kernel) KernelBrk() uint64 {
	return k.kernelBrk
}
