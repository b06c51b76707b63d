package kernel

import (
	"fmt"
)

// Lock es un mutex bloqueante. Release le pasa la propiedad directamente
// al primero de la cola, así que nadie compite al despertar.
type Lock struct {
	active bool
	// gen cambia cada vez que el lugar se reutiliza.
	gen     int
	held    bool
	owner   *PCB
	waiters *Queue
}

// Owner devuelve el pid del dueño o -1.
func (l *Lock) Owner() int {
	if !l.held || l.owner == nil {
		return -1
	}
	return l.owner.PID
}

func (k *Kernel) lock(id int) (*Lock, error) {
	i, err := lookupID(id, ResourceLock, len(k.locks))
	if err != nil {
		return nil, err
	}
	if !k.locks[i].active {
		return nil, fmt.Errorf("%w: lock %d inactivo", ErrBadResource, id)
	}
	return &k.locks[i], nil
}

// LockInit crea un lock y escribe su id en idAddr.
func (k *Kernel) LockInit(idAddr uint64) {
	k.initResource(ResourceLock, idAddr,
		func(i int) bool { return !k.locks[i].active },
		len(k.locks),
		func(i int) {
			k.locks[i] = Lock{active: true, gen: k.locks[i].gen + 1, waiters: NewQueue(fmt.Sprintf("lock(%d)", EncodeID(ResourceLock, i)))}
		})
}

// Acquire toma el lock id o bloquea hasta que Release se lo entregue.
func (k *Kernel) Acquire(id int) {
	l, err := k.lock(id)
	if err != nil {
		k.syscallFailed("Acquire", err)
		return
	}
	if l.held && l.owner == k.current {
		k.syscallFailed("Acquire", fmt.Errorf("%w: lock %d ya tomado por el mismo proceso", ErrResourceBusy, id))
		return
	}
	k.acquire(l)
}

// acquire toma l para el proceso actual. Devuelve 0 al usuario en ambos
// caminos: al despertar ya es dueño.
func (k *Kernel) acquire(l *Lock) {
	p := k.current
	p.UC.Regs[0] = 0
	if !l.held {
		l.held = true
		l.owner = p
		return
	}
	k.log.Debug("Proceso bloqueado por lock", "pid", p.PID, "dueño", l.owner.PID)
	k.block(l.waiters, nil)
}

// Release suelta el lock id. Falla si el proceso actual no es el dueño.
func (k *Kernel) Release(id int) {
	l, err := k.lock(id)
	if err != nil {
		k.syscallFailed("Release", err)
		return
	}
	if !l.held || l.owner != k.current {
		k.syscallFailed("Release", fmt.Errorf("%w: lock %d", ErrNotOwner, id))
		return
	}
	k.release(l)
	k.current.UC.Regs[0] = 0
}

// release entrega l al primero de la cola o lo deja libre.
func (k *Kernel) release(l *Lock) {
	next := l.waiters.Dequeue()
	if next == nil {
		l.held = false
		l.owner = nil
		return
	}
	l.owner = next
	k.wake(next)
}

// releaseLocksOf suelta los locks que tenía un proceso que termina.
func (k *Kernel) releaseLocksOf(p *PCB) {
	for i := range k.locks {
		l := &k.locks[i]
		if l.active && l.held && l.owner == p {
			k.log.Info("Se libera lock de proceso terminado", "pid", p.PID, "lock", EncodeID(ResourceLock, i))
			k.release(l)
		}
	}
}
