package kernel

import (
	"fmt"
)

// ResourceKind es la etiqueta de tipo que va en los bits altos de un id.
type ResourceKind int

const (
	ResourceLock ResourceKind = 1
	ResourceCvar ResourceKind = 2
	ResourcePipe ResourceKind = 3
)

const resourceIndexBits = 16

func (r ResourceKind) String() string {
	switch r {
	case ResourceLock:
		return "LOCK"
	case ResourceCvar:
		return "CVAR"
	case ResourcePipe:
		return "PIPE"
	default:
		return fmt.Sprintf("RECURSO_%d", int(r))
	}
}

// EncodeID arma el id opaco de un recurso.
func EncodeID(kind ResourceKind, index int) int {
	return int(kind)<<resourceIndexBits | index
}

// DecodeID separa un id en tipo e índice.
func DecodeID(id int) (ResourceKind, int) {
	if id < 0 {
		return 0, -1
	}
	return ResourceKind(id >> resourceIndexBits), id & (1<<resourceIndexBits - 1)
}

// lookupID valida que id sea del tipo kind y entre en una tabla de size.
func lookupID(id int, kind ResourceKind, size int) (int, error) {
	k, index := DecodeID(id)
	if k != kind || index < 0 || index >= size {
		return -1, fmt.Errorf("%w: id %d no es un %s", ErrBadResource, id, kind)
	}
	return index, nil
}

// initResource ocupa el primer lugar libre de una tabla y escribe su id en
// idAddr. activate sólo se llama si la escritura salió bien.
func (k *Kernel) initResource(kind ResourceKind, idAddr uint64, free func(int) bool, size int, activate func(int)) {
	name := kind.String() + "_INIT"
	if err := k.checkBuffer(idAddr, 8, true); err != nil {
		k.syscallFailed(name, err)
		return
	}
	for i := 0; i < size; i++ {
		if !free(i) {
			continue
		}
		id := EncodeID(kind, i)
		if err := k.putWord(idAddr, int64(id)); err != nil {
			k.syscallFailed(name, err)
			return
		}
		activate(i)
		k.log.Debug("Recurso creado", "tipo", kind, "id", id, "pid", k.current.PID)
		k.current.UC.Regs[0] = 0
		return
	}
	k.syscallFailed(name, ErrNoFreeResource)
}

// Reclaim destruye el recurso id. Falla si todavía está en uso.
func (k *Kernel) Reclaim(id int) {
	if err := k.reclaim(id); err != nil {
		k.syscallFailed("Reclaim", err)
		return
	}
	k.log.Debug("Recurso liberado", "id", id, "pid", k.current.PID)
	k.current.UC.Regs[0] = 0
}

func (k *Kernel) reclaim(id int) error {
	kind, _ := DecodeID(id)
	switch kind {
	case ResourceLock:
		l, err := k.lock(id)
		if err != nil {
			return err
		}
		if l.held || l.waiters.Len() > 0 {
			return fmt.Errorf("lock %d: %w", id, ErrResourceBusy)
		}
		*l = Lock{gen: l.gen}
	case ResourceCvar:
		c, err := k.cvar(id)
		if err != nil {
			return err
		}
		if c.waiters.Len() > 0 {
			return fmt.Errorf("cvar %d: %w", id, ErrResourceBusy)
		}
		*c = Cvar{}
	case ResourcePipe:
		pp, err := k.pipe(id)
		if err != nil {
			return err
		}
		if len(pp.buf) > 0 || pp.readers.Len() > 0 || pp.writers.Len() > 0 {
			return fmt.Errorf("pipe %d: %w", id, ErrResourceBusy)
		}
		*pp = Pipe{gen: pp.gen}
	default:
		return fmt.Errorf("%w: id %d", ErrBadResource, id)
	}
	return nil
}
