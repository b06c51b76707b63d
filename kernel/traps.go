package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// HandleTrap es el trampolín de entrada al kernel. Guarda el contexto de
// usuario del proceso interrumpido, atiende el trap, retoma las
// continuaciones que haya dejado un cambio de contexto y devuelve a la
// máquina el contexto del proceso que quedó en ejecución.
func (k *Kernel) HandleTrap(uc *hardware.UserContext) {
	if k.m.Halted() {
		return
	}
	cur := k.current
	cur.UC = *uc
	k.writeTrapFrame(uc.Vector)

	k.dispatch(uc.Vector, uc.Code, uc.Addr)
	k.resume()
	if k.m.Halted() {
		return
	}

	if k.cfg.CheckInvariants {
		if err := k.CheckInvariants(); err != nil {
			k.halt(fmt.Sprintf("invariante roto después de %s: %v", uc.Vector, err))
			return
		}
	}
	*uc = k.current.UC
}

func (k *Kernel) dispatch(kind hardware.TrapKind, code int, addr uint64) {
	switch kind {
	case hardware.TrapKernel:
		k.syscall(code)
	case hardware.TrapClock:
		k.clockTick()
	case hardware.TrapIllegal:
		k.fatalTrap(fmt.Sprintf("instrucción ilegal (op %d) en 0x%x", code, addr))
	case hardware.TrapMemory:
		k.memoryTrap(code, addr)
	case hardware.TrapMath:
		k.fatalTrap(fmt.Sprintf("excepción aritmética en 0x%x", addr))
	case hardware.TrapTtyReceive:
		k.ttyReceive(code)
	case hardware.TrapTtyTransmit:
		k.ttyTransmitDone(code)
	case hardware.TrapDisk:
		k.log.Warn("Trap de disco no implementado")
	default:
		k.log.Warn("Trap no implementado", "trap", kind)
	}
}

// fatalTrap mata al proceso que causó el trap. Idle no puede fallar: si
// lo hace, se detiene la máquina.
func (k *Kernel) fatalTrap(reason string) {
	if k.current == k.idle {
		k.halt("falla en idle: " + reason)
		return
	}
	k.kill(reason)
}

// memoryTrap distingue el crecimiento legítimo de la pila de un acceso
// inválido.
func (k *Kernel) memoryTrap(code int, addr uint64) {
	p := k.current
	if code == hardware.SegvMapErr {
		err := k.growStack(p, addr)
		if err == nil {
			return
		}
		k.log.Debug("Fallo de página no recuperable", "pid", p.PID, "addr", addr, "error", err)
	}
	fault := &hardware.Fault{Code: code, Addr: addr}
	k.fatalTrap(fault.Error())
}

// writeTrapFrame deja al pie de la pila de kernel instalada un registro
// del trap en curso: vector, pid y tick.
func (k *Kernel) writeTrapFrame(kind hardware.TrapKind) {
	var frame [24]byte
	binary.LittleEndian.PutUint64(frame[0:], uint64(kind))
	binary.LittleEndian.PutUint64(frame[8:], uint64(k.current.PID))
	binary.LittleEndian.PutUint64(frame[16:], uint64(k.ticks))
	if err := k.m.WriteVirt(hardware.KernelStackBase, frame[:], hardware.ModeKernel); err != nil {
		k.halt(fmt.Sprintf("pila de kernel inaccesible: %v", err))
	}
}

// TrapFrame lee el registro del último trap de la pila de kernel de p.
func (k *Kernel) TrapFrame(p *PCB) (kind hardware.TrapKind, pid int, tick int) {
	raw := k.m.FrameBytes(p.KStack[0].PFN)
	if raw == nil {
		return 0, -1, -1
	}
	return hardware.TrapKind(binary.LittleEndian.Uint64(raw[0:])),
		int(binary.LittleEndian.Uint64(raw[8:])),
		int(binary.LittleEndian.Uint64(raw[16:]))
}
