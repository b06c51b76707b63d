package kernel

import (
	"errors"
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// allocatePCB toma un lugar de la tabla de procesos.
func (k *Kernel) allocatePCB() (*PCB, error) {
	p, err := k.procs.allocate()
	if err != nil {
		return nil, err
	}
	k.log.Info(fmt.Sprintf("(%d) - Se crea el proceso", p.PID))
	return p, nil
}

// adopt hace que init adopte a los hijos de p. Si alguno ya es zombie e
// init está esperando en Wait, se lo despierta.
func (k *Kernel) adopt(p *PCB) {
	adopter := k.initProc
	for child := p.children.Dequeue(); child != nil; child = p.children.Dequeue() {
		if adopter == nil || adopter == p {
			child.parent = nil
			child.PPID = -1
			continue
		}
		child.parent = adopter
		child.PPID = adopter.PID
		adopter.children.Enqueue(child)
		k.log.Info("Proceso huérfano adoptado por init", "pid", child.PID, "padre_anterior", p.PID)
		if child.State == StateZombie && adopter.WaitingChild && adopter.State == StateBlocked {
			k.wake(adopter)
		}
	}
}

// destroy libera todo lo que queda de p: hijos, región 1, pila de kernel
// y su lugar en la tabla.
func (k *Kernel) destroy(p *PCB) {
	k.adopt(p)
	k.unschedule(p)
	if p.parent != nil {
		p.parent.children.Remove(p)
		p.parent = nil
	}
	k.freeRegion1(p)
	k.freeKernelStack(p)
	k.procs.release(p)
	k.log.Info(fmt.Sprintf("(%d) - Se destruye el proceso", p.PID))
}

// Fork duplica al proceso actual. El padre recibe el pid del hijo y el
// hijo recibe 0 cuando lo planifiquen.
func (k *Kernel) Fork() {
	parent := k.current
	child, err := k.allocatePCB()
	if err != nil {
		k.syscallFailed("Fork", err)
		return
	}
	child.Name = parent.Name
	child.PPID = parent.PID
	child.parent = parent
	parent.children.Enqueue(child)

	if err := k.cloneTable(parent, child); err != nil {
		k.destroy(child)
		k.syscallFailed("Fork", err)
		return
	}
	child.HeapStart = parent.HeapStart
	child.Brk = parent.Brk
	child.StackBase = parent.StackBase
	child.UC = parent.UC

	childPID := child.PID
	forkReturn := func(k *Kernel, r Resumption) {
		switch r {
		case ResumedAsParent:
			k.current.UC.Regs[0] = int64(childPID)
		case ResumedAsChild:
			k.current.UC.Regs[0] = 0
		}
	}

	kc, err := k.CopyForFork(&KernelContext{cont: forkReturn}, parent, child)
	if err != nil {
		k.destroy(child)
		k.syscallFailed("Fork", err)
		return
	}
	k.makeReady(child)
	k.log.Info("Fork", "padre", parent.PID, "hijo", childPID)
	kc.cont(k, ResumedAsParent)
}

// Exec reemplaza la imagen del proceso actual. Si la carga falla el
// proceso muere: no vuelve a modo usuario con una imagen a medio armar.
// Los errores al copiar path y argv los atiende el decodificador y sí
// son recuperables.
func (k *Kernel) Exec(path string, args []string) {
	p := k.current
	err := k.loadProgram(p, path, args)
	if err == nil {
		p.Name = path
		k.log.Info("Exec", "pid", p.PID, "programa", path, "argc", len(args))
		return
	}
	if errors.Is(err, errAddressSpaceLost) {
		k.log.Error("Exec falló sin imagen a la que volver", "pid", p.PID, "error", err)
	}
	k.kill(fmt.Sprintf("exec de %q: %v", path, err))
}

// exit termina al proceso actual con status y cambia al siguiente.
func (k *Kernel) exit(status int) {
	p := k.current
	if p == k.initProc {
		k.halt(fmt.Sprintf("init terminó con status %d", status))
		return
	}
	if p == k.idle {
		k.halt("idle intentó terminar")
		return
	}

	k.releaseLocksOf(p)
	k.adopt(p)
	k.freeRegion1(p)
	p.ExitStatus = status
	k.log.Info(fmt.Sprintf("(%d) - Finaliza el proceso", p.PID), "status", status)

	parent := p.parent
	if parent == nil {
		next := k.nextRunnable()
		k.switchTo(nil, next)
		k.destroy(p)
		return
	}
	k.makeZombie(p)
	if parent.WaitingChild && parent.State == StateBlocked {
		k.wake(parent)
	}
	k.switchTo(nil, k.nextRunnable())
}

// kill termina al proceso actual por una condición fatal. El registro de
// retorno queda en KILL y el status en ERROR.
func (k *Kernel) kill(reason string) {
	k.log.Warn("Proceso terminado por el kernel", "pid", k.current.PID, "motivo", reason)
	k.current.UC.Regs[0] = hardware.KILL
	k.exit(hardware.ERROR)
}

// Wait espera a que termine algún hijo. Devuelve su pid y, si statusAddr
// no es cero, escribe ahí su status.
func (k *Kernel) Wait(statusAddr uint64) {
	p := k.current
	if statusAddr != 0 {
		if err := k.checkBuffer(statusAddr, 8, true); err != nil {
			k.syscallFailed("Wait", err)
			return
		}
	}

	var zombie *PCB
	for _, child := range p.children.Items() {
		if child.State == StateZombie {
			zombie = child
			break
		}
	}
	if zombie == nil {
		if p.children.Len() == 0 {
			k.syscallFailed("Wait", ErrNoChildren)
			return
		}
		p.WaitingChild = true
		k.block(nil, func(k *Kernel, _ Resumption) {
			k.Wait(statusAddr)
		})
		return
	}

	if statusAddr != 0 {
		if err := k.putWord(statusAddr, int64(zombie.ExitStatus)); err != nil {
			k.syscallFailed("Wait", err)
			return
		}
	}
	pid := zombie.PID
	k.log.Info("Wait", "pid", p.PID, "hijo", pid, "status", zombie.ExitStatus)
	k.destroy(zombie)
	p.UC.Regs[0] = int64(pid)
}

// Delay bloquea al proceso actual durante ticks interrupciones de reloj.
func (k *Kernel) Delay(ticks int) {
	p := k.current
	switch {
	case ticks < 0:
		k.syscallFailed("Delay", fmt.Errorf("%w: delay negativo %d", ErrBadArgument, ticks))
		return
	case ticks == 0:
		p.UC.Regs[0] = 0
		return
	}
	p.UC.Regs[0] = 0
	p.DelayTicks = ticks
	k.log.Debug("Delay", "pid", p.PID, "ticks", ticks)
	k.block(nil, nil)
}

// syscallFailed registra el error y devuelve ERROR al proceso actual.
func (k *Kernel) syscallFailed(name string, err error) {
	k.log.Warn("Syscall fallida", "syscall", name, "pid", k.current.PID, "error", err)
	k.current.UC.Regs[0] = hardware.ERROR
}
