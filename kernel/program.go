package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// loadProgram reemplaza la región 1 de p con el programa name y arma la
// pila inicial con args. Los errores previos a liberar la imagen anterior
// la dejan intacta; los posteriores vienen envueltos en errAddressSpaceLost.
func (k *Kernel) loadProgram(p *PCB, name string, args []string) error {
	if k.programs == nil {
		return fmt.Errorf("sin fuente de programas para %q: %w", name, ErrBadArgument)
	}
	img, err := k.programs.Open(name)
	if err != nil {
		return fmt.Errorf("abriendo %q: %w", name, err)
	}

	strSize := 0
	for _, a := range args {
		strSize += len(a) + 1
	}
	strBase := hardware.VMem1Limit - (uint64(strSize)+7)&^7
	argvBase := strBase - uint64(len(args)+1)*8
	stackBase := hardware.DownToPage(argvBase)
	stackPages := int((hardware.VMem1Limit - stackBase) >> hardware.PageShift)

	textPages := img.TextPages()
	dataPages := img.DataPages()
	heapStart := img.HeapStart()
	if heapStart+hardware.PageSize > stackBase {
		return fmt.Errorf("%q no entra en la región 1: %w", name, ErrBadArgument)
	}
	needed := textPages + dataPages + stackPages
	if k.frames.FreeCount()+p.Pages() < needed {
		return fmt.Errorf("cargando %q: %w", name, ErrOutOfMemory)
	}

	k.freeRegion1(p)
	err = k.withAddressSpace(p, func() error {
		for i := 0; i < textPages+dataPages; i++ {
			if err := k.mapUserPage(p, i, hardware.ProtRW); err != nil {
				return err
			}
		}
		for page := stackBase; page < hardware.VMem1Limit; page += hardware.PageSize {
			if err := k.mapUserPage(p, hardware.Region1Index(page), hardware.ProtRW); err != nil {
				return err
			}
		}

		if err := k.m.WriteVirt(hardware.VMem1Base, img.Text, hardware.ModeKernel); err != nil {
			return err
		}
		if err := k.m.WriteVirt(img.DataBase(), img.Data, hardware.ModeKernel); err != nil {
			return err
		}
		for i := 0; i < textPages; i++ {
			p.PT[i].Prot = hardware.ProtRX
		}
		k.m.FlushTLBRegion1()

		return k.writeArgs(args, strBase, argvBase)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errAddressSpaceLost, err)
	}

	p.HeapStart = heapStart
	p.Brk = heapStart
	p.StackBase = stackBase
	p.UC = hardware.UserContext{PC: img.Entry, SP: argvBase}
	p.UC.Regs[0] = int64(len(args))
	p.UC.Regs[1] = int64(argvBase)
	return nil
}

// writeArgs copia los strings de args a partir de strBase y el vector de
// punteros, terminado en cero, en argvBase.
func (k *Kernel) writeArgs(args []string, strBase, argvBase uint64) error {
	ptr := strBase
	argv := make([]byte, (len(args)+1)*8)
	for i, a := range args {
		data := append([]byte(a), 0)
		if err := k.m.WriteVirt(ptr, data, hardware.ModeKernel); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(argv[i*8:], ptr)
		ptr += uint64(len(data))
	}
	return k.m.WriteVirt(argvBase, argv, hardware.ModeKernel)
}

// mapUserPage asigna un marco de usuario a la página index de p.
func (k *Kernel) mapUserPage(p *PCB, index int, prot hardware.Prot) error {
	pfn, err := k.frames.Allocate(FrameUser, p.PID)
	if err != nil {
		return err
	}
	mapPage(p.PT, index, pfn, prot)
	return nil
}

// withAddressSpace ejecuta fn con la región 1 de p instalada y después
// restaura la del proceso actual.
func (k *Kernel) withAddressSpace(p *PCB, fn func() error) error {
	if p == k.current {
		err := fn()
		k.m.FlushTLBRegion1()
		return err
	}
	k.m.SetRegion1(p.PT)
	k.m.FlushTLBRegion1()
	err := fn()
	k.m.SetRegion1(k.current.PT)
	k.m.FlushTLBRegion1()
	return err
}
