package kernel

import (
	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// Resumption indica por qué un contexto de kernel vuelve a ejecutarse.
type Resumption int

const (
	// ResumedAfterSwitch: el proceso se había bloqueado o había sido
	// desalojado y el planificador lo eligió de nuevo.
	ResumedAfterSwitch Resumption = iota
	// ResumedAsParent: el padre sigue dentro de Fork justo después de la copia.
	ResumedAsParent
	// ResumedAsChild: el hijo corre por primera vez desde la copia.
	ResumedAsChild
)

func (r Resumption) String() string {
	switch r {
	case ResumedAsParent:
		return "PADRE"
	case ResumedAsChild:
		return "HIJO"
	default:
		return "SWITCH"
	}
}

// Continuation es el resto de una syscall que quedó a medio hacer cuando
// el proceso cedió la CPU. Corre con el proceso ya instalado como actual.
type Continuation func(k *Kernel, r Resumption)

// KernelContext es la parte del estado de un proceso que sólo ve el
// kernel: qué le falta ejecutar antes de volver a modo usuario.
type KernelContext struct {
	cont   Continuation
	forked bool
}

// Pending informa si hay trabajo de kernel pendiente en el contexto.
func (kc *KernelContext) Pending() bool {
	return kc.cont != nil
}

// Switch guarda kc como contexto de out, instala la pila de kernel y la
// región 1 de in y devuelve el contexto que hay que retomar. out puede
// ser nil en el primer cambio.
func (k *Kernel) Switch(kc *KernelContext, out, in *PCB) *KernelContext {
	if out != nil && kc != nil {
		out.kctx = *kc
	}
	// idle nunca pasa por ready: queda listo fuera de las colas.
	if out == k.idle && in != k.idle {
		k.setState(out, StateReady)
	}

	base := hardware.PageNumber(hardware.KernelStackBase)
	for i, pte := range in.KStack {
		k.region0[base+i] = pte
	}

	k.unschedule(in)
	k.setState(in, StateRunning)
	k.current = in
	k.m.SetRegion1(in.PT)
	k.m.FlushTLBAll()

	if out != nil && out != in {
		k.log.Debug("Cambio de contexto", "sale", out.PID, "entra", in.PID)
	}
	return &in.kctx
}

// CopyForFork deja en child una copia de kc y de la pila de kernel de
// parent, de modo que child retome el mismo punto que el padre cuando lo
// planifiquen. Devuelve kc sin cambios: el que sigue ejecutando es el padre.
func (k *Kernel) CopyForFork(kc *KernelContext, parent, child *PCB) (*KernelContext, error) {
	child.kctx = KernelContext{cont: kc.cont, forked: true}

	for i := range child.KStack {
		if child.KStack[i].Valid {
			continue
		}
		pfn, err := k.frames.Allocate(FrameKernel, child.PID)
		if err != nil {
			return nil, err
		}
		child.KStack[i] = hardware.PTE{Valid: true, Prot: hardware.ProtRW, PFN: pfn}
	}
	for i := range child.KStack {
		if err := k.cloneContents(parent.KStack[i].PFN, child.KStack[i].PFN); err != nil {
			return nil, err
		}
	}
	k.m.FlushTLBKernelStack()
	return kc, nil
}

// resume ejecuta las continuaciones pendientes del proceso que quedó
// instalado. Una continuación puede volver a bloquear y dejar otra
// pendiente, por eso es un bucle.
func (k *Kernel) resume() {
	for k.pending != nil && !k.m.Halted() {
		kc := k.pending
		k.pending = nil

		r := ResumedAfterSwitch
		if kc.forked {
			r = ResumedAsChild
		}
		cont := kc.cont
		*kc = KernelContext{}
		if cont != nil {
			cont(k, r)
		}
	}
}
