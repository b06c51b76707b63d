package kernel

// schedule pone a p en la cola de planificación q. Un proceso está en a
// lo sumo una de ready, blocked y zombie.
func (k *Kernel) schedule(q *Queue, p *PCB) {
	k.unschedule(p)
	q.Enqueue(p)
	p.sched = q
}

// unschedule saca a p de su cola de planificación, si tiene.
func (k *Kernel) unschedule(p *PCB) {
	if p.sched == nil {
		return
	}
	if !p.sched.Remove(p) {
		k.log.Warn("El proceso no estaba en su cola", "pid", p.PID, "cola", p.sched.Name())
	}
	p.sched = nil
}

func (k *Kernel) makeReady(p *PCB) {
	if p == k.idle {
		return
	}
	k.setState(p, StateReady)
	k.schedule(k.ready, p)
}

func (k *Kernel) makeBlocked(p *PCB) {
	k.setState(p, StateBlocked)
	k.schedule(k.blocked, p)
}

func (k *Kernel) makeZombie(p *PCB) {
	k.setState(p, StateZombie)
	k.schedule(k.zombie, p)
}

// nextRunnable saca el primero de ready o devuelve idle.
func (k *Kernel) nextRunnable() *PCB {
	if p := k.ready.Peek(); p != nil {
		k.unschedule(p)
		return p
	}
	return k.idle
}

// switchTo cambia al proceso next guardando kc en el actual. La
// continuación de next la ejecuta el trampolín.
func (k *Kernel) switchTo(kc *KernelContext, next *PCB) {
	k.pending = k.Switch(kc, k.current, next)
}

// block bloquea al proceso actual, opcionalmente en la cola de espera de
// un recurso, y cambia al siguiente. cont es lo que el proceso ejecutará
// al ser despertado; con nil vuelve directo a modo usuario.
func (k *Kernel) block(waiters *Queue, cont Continuation) {
	p := k.current
	k.makeBlocked(p)
	if waiters != nil {
		waiters.Enqueue(p)
	}
	k.switchTo(&KernelContext{cont: cont}, k.nextRunnable())
}

// wake pasa a p de blocked a ready. Quien despierta ya lo sacó de la cola
// de espera de su recurso.
func (k *Kernel) wake(p *PCB) {
	if p.State != StateBlocked {
		k.log.Warn("Se intentó despertar un proceso no bloqueado", "pid", p.PID, "estado", p.State)
		return
	}
	p.DelayTicks = 0
	p.WaitingChild = false
	k.makeReady(p)
}

// wakeAll despierta a todos los procesos de una cola de espera.
func (k *Kernel) wakeAll(waiters *Queue) int {
	n := 0
	for p := waiters.Dequeue(); p != nil; p = waiters.Dequeue() {
		k.wake(p)
		n++
	}
	return n
}

// clockTick atiende la interrupción de reloj: descuenta los delays,
// despierta a los vencidos y hace una vuelta de round robin.
func (k *Kernel) clockTick() {
	k.ticks++
	for _, p := range k.blocked.Items() {
		if p.DelayTicks <= 0 {
			continue
		}
		p.DelayTicks--
		if p.DelayTicks == 0 {
			k.log.Debug("Fin de delay", "pid", p.PID, "tick", k.ticks)
			k.wake(p)
		}
	}

	cur := k.current
	if cur != k.idle {
		k.makeReady(cur)
	}
	next := k.nextRunnable()
	if next == cur {
		k.setState(cur, StateRunning)
		return
	}
	k.switchTo(&KernelContext{}, next)
}
