package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// Límites para copiar argumentos desde el espacio de usuario.
const (
	MaxStringLen = hardware.PageSize
	MaxArgs      = 64
)

// checkBuffer verifica que [addr, addr+n) esté en la región 1 del proceso
// actual, mapeado y con permiso de lectura (y de escritura si write).
func (k *Kernel) checkBuffer(addr uint64, n int, write bool) error {
	if n < 0 {
		return fmt.Errorf("%w: longitud %d", ErrBadArgument, n)
	}
	if n == 0 {
		return nil
	}
	end := addr + uint64(n)
	if addr < hardware.VMem1Base || end > hardware.VMem1Limit || end < addr {
		return fmt.Errorf("%w: [0x%x, 0x%x)", ErrBadAddress, addr, end)
	}
	need := hardware.ProtRead
	if write {
		need |= hardware.ProtWrite
	}
	pt := k.current.PT
	for page := hardware.DownToPage(addr); page < end; page += hardware.PageSize {
		pte := pt[hardware.Region1Index(page)]
		if !pte.Valid || pte.Prot&need != need {
			return fmt.Errorf("%w: página 0x%x", ErrBadAddress, page)
		}
	}
	return nil
}

// copyIn lee n bytes del espacio del proceso actual.
func (k *Kernel) copyIn(addr uint64, n int) ([]byte, error) {
	if err := k.checkBuffer(addr, n, false); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := k.m.ReadVirt(addr, buf, hardware.ModeKernel); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	return buf, nil
}

// copyOut escribe data en el espacio del proceso actual.
func (k *Kernel) copyOut(addr uint64, data []byte) error {
	if err := k.checkBuffer(addr, len(data), true); err != nil {
		return err
	}
	if err := k.m.WriteVirt(addr, data, hardware.ModeKernel); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	return nil
}

// copyInString lee un string terminado en cero.
func (k *Kernel) copyInString(addr uint64) (string, error) {
	var out []byte
	var b [1]byte
	for len(out) < MaxStringLen {
		if err := k.checkBuffer(addr, 1, false); err != nil {
			return "", err
		}
		if err := k.m.ReadVirt(addr, b[:], hardware.ModeKernel); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadAddress, err)
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
		addr++
	}
	return "", fmt.Errorf("%w: string sin terminar", ErrBadArgument)
}

// copyInArgv lee un vector de punteros a string terminado en cero. Un
// puntero nulo equivale a un vector vacío.
func (k *Kernel) copyInArgv(addr uint64) ([]string, error) {
	if addr == 0 {
		return nil, nil
	}
	var args []string
	for len(args) <= MaxArgs {
		raw, err := k.copyIn(addr, 8)
		if err != nil {
			return nil, err
		}
		ptr := binary.LittleEndian.Uint64(raw)
		if ptr == 0 {
			return args, nil
		}
		s, err := k.copyInString(ptr)
		if err != nil {
			return nil, err
		}
		args = append(args, s)
		addr += 8
	}
	return nil, fmt.Errorf("%w: más de %d argumentos", ErrBadArgument, MaxArgs)
}

// putWord escribe un entero de 8 bytes en el espacio del proceso actual.
func (k *Kernel) putWord(addr uint64, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return k.copyOut(addr, buf[:])
}
