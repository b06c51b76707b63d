package kernel

import (
	"fmt"
)

// Pipe es un buffer de capacidad fija. Los datos se mantienen compactados
// al principio de buf.
type Pipe struct {
	active   bool
	gen      int
	capacity int
	buf      []byte
	readers  *Queue
	writers  *Queue
}

// Len devuelve los bytes almacenados.
func (pp *Pipe) Len() int {
	return len(pp.buf)
}

func (k *Kernel) pipe(id int) (*Pipe, error) {
	i, err := lookupID(id, ResourcePipe, len(k.pipes))
	if err != nil {
		return nil, err
	}
	if !k.pipes[i].active {
		return nil, fmt.Errorf("%w: pipe %d inactivo", ErrBadResource, id)
	}
	return &k.pipes[i], nil
}

// PipeInit crea un pipe y escribe su id en idAddr.
func (k *Kernel) PipeInit(idAddr uint64) {
	k.initResource(ResourcePipe, idAddr,
		func(i int) bool { return !k.pipes[i].active },
		len(k.pipes),
		func(i int) {
			id := EncodeID(ResourcePipe, i)
			k.pipes[i] = Pipe{
				active:   true,
				gen:      k.pipes[i].gen + 1,
				capacity: k.cfg.PipeBufferLen,
				buf:      make([]byte, 0, k.cfg.PipeBufferLen),
				readers:  NewQueue(fmt.Sprintf("pipe(%d).lectores", id)),
				writers:  NewQueue(fmt.Sprintf("pipe(%d).escritores", id)),
			}
		})
}

// PipeRead lee hasta n bytes del pipe en addr. Bloquea mientras esté vacío.
func (k *Kernel) PipeRead(id int, addr uint64, n int) {
	pp, err := k.pipe(id)
	if err == nil && n <= 0 {
		err = fmt.Errorf("%w: longitud %d", ErrBadArgument, n)
	}
	if err == nil {
		err = k.checkBuffer(addr, n, true)
	}
	if err != nil {
		k.syscallFailed("PipeRead", err)
		return
	}
	k.pipeRead(pp, pp.gen, addr, n)
}

// pipeRead corre de nuevo al despertar. Si el pipe se reclamó y el lugar
// se volvió a usar, gen ya no coincide.
func (k *Kernel) pipeRead(pp *Pipe, gen int, addr uint64, n int) {
	if !pp.active || pp.gen != gen {
		k.syscallFailed("PipeRead", ErrBadResource)
		return
	}
	if len(pp.buf) == 0 {
		k.block(pp.readers, func(k *Kernel, _ Resumption) {
			k.pipeRead(pp, gen, addr, n)
		})
		return
	}

	take := min(n, len(pp.buf))
	if err := k.copyOut(addr, pp.buf[:take]); err != nil {
		k.syscallFailed("PipeRead", err)
		return
	}
	rest := copy(pp.buf, pp.buf[take:])
	pp.buf = pp.buf[:rest]
	k.wakeAll(pp.writers)
	k.current.UC.Regs[0] = int64(take)
}

// PipeWrite escribe n bytes desde addr. Bloquea cada vez que el pipe se llena.
func (k *Kernel) PipeWrite(id int, addr uint64, n int) {
	pp, err := k.pipe(id)
	if err == nil && n < 0 {
		err = fmt.Errorf("%w: longitud %d", ErrBadArgument, n)
	}
	var data []byte
	if err == nil {
		data, err = k.copyIn(addr, n)
	}
	if err != nil {
		k.syscallFailed("PipeWrite", err)
		return
	}
	k.pipeWrite(pp, pp.gen, data, n)
}

func (k *Kernel) pipeWrite(pp *Pipe, gen int, data []byte, total int) {
	if !pp.active || pp.gen != gen {
		k.syscallFailed("PipeWrite", ErrBadResource)
		return
	}
	for len(data) > 0 {
		space := pp.capacity - len(pp.buf)
		if space == 0 {
			k.block(pp.writers, func(k *Kernel, _ Resumption) {
				k.pipeWrite(pp, gen, data, total)
			})
			return
		}
		chunk := min(space, len(data))
		pp.buf = append(pp.buf, data[:chunk]...)
		data = data[chunk:]
		k.wakeAll(pp.readers)
	}
	k.current.UC.Regs[0] = int64(total)
}
