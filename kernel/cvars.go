package kernel

import (
	"fmt"
)

// Cvar es una variable de condición con semántica Mesa: quien despierta
// vuelve a tomar el lock y tiene que revisar la condición de nuevo.
type Cvar struct {
	active  bool
	waiters *Queue
}

// Waiting devuelve cuántos procesos esperan en la cvar.
func (c *Cvar) Waiting() int {
	if c.waiters == nil {
		return 0
	}
	return c.waiters.Len()
}

func (k *Kernel) cvar(id int) (*Cvar, error) {
	i, err := lookupID(id, ResourceCvar, len(k.cvars))
	if err != nil {
		return nil, err
	}
	if !k.cvars[i].active {
		return nil, fmt.Errorf("%w: cvar %d inactiva", ErrBadResource, id)
	}
	return &k.cvars[i], nil
}

// CvarInit crea una variable de condición y escribe su id en idAddr.
func (k *Kernel) CvarInit(idAddr uint64) {
	k.initResource(ResourceCvar, idAddr,
		func(i int) bool { return !k.cvars[i].active },
		len(k.cvars),
		func(i int) {
			k.cvars[i] = Cvar{active: true, waiters: NewQueue(fmt.Sprintf("cvar(%d)", EncodeID(ResourceCvar, i)))}
		})
}

// CvarWait suelta lockID, espera en cvarID y al despertar retoma el lock.
func (k *Kernel) CvarWait(cvarID, lockID int) {
	c, err := k.cvar(cvarID)
	if err != nil {
		k.syscallFailed("CvarWait", err)
		return
	}
	l, err := k.lock(lockID)
	if err != nil {
		k.syscallFailed("CvarWait", err)
		return
	}
	if !l.held || l.owner != k.current {
		k.syscallFailed("CvarWait", fmt.Errorf("%w: lock %d", ErrNotOwner, lockID))
		return
	}

	k.release(l)
	k.current.UC.Regs[0] = 0
	gen := l.gen
	k.block(c.waiters, func(k *Kernel, _ Resumption) {
		if !l.active || l.gen != gen {
			k.syscallFailed("CvarWait", ErrBadResource)
			return
		}
		k.acquire(l)
	})
}

// CvarSignal despierta al primero que espera en cvarID, si hay alguno.
func (k *Kernel) CvarSignal(cvarID int) {
	c, err := k.signalTarget("CvarSignal", cvarID)
	if err != nil {
		return
	}
	if p := c.waiters.Dequeue(); p != nil {
		k.wake(p)
	}
	k.current.UC.Regs[0] = 0
}

// CvarBroadcast despierta a todos los que esperan en cvarID.
func (k *Kernel) CvarBroadcast(cvarID int) {
	c, err := k.signalTarget("CvarBroadcast", cvarID)
	if err != nil {
		return
	}
	n := k.wakeAll(c.waiters)
	k.log.Debug("Broadcast", "cvar", cvarID, "despertados", n)
	k.current.UC.Regs[0] = 0
}

// signalTarget valida la cvar y, si está configurado, que el proceso
// tenga algún lock tomado.
func (k *Kernel) signalTarget(name string, cvarID int) (*Cvar, error) {
	c, err := k.cvar(cvarID)
	if err == nil && k.cfg.SignalRequiresLock && !k.holdsAnyLock(k.current) {
		err = fmt.Errorf("%w: %s sin lock tomado", ErrNotOwner, name)
	}
	if err != nil {
		k.syscallFailed(name, err)
		return nil, err
	}
	return c, nil
}

func (k *Kernel) holdsAnyLock(p *PCB) bool {
	for i := range k.locks {
		if k.locks[i].active && k.locks[i].held && k.locks[i].owner == p {
			return true
		}
	}
	return false
}
