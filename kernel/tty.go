package kernel

import (
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// ttyState es el lado del kernel de una terminal: lo recibido que nadie
// leyó todavía y quién tiene el transmisor.
type ttyState struct {
	id      int
	input   []byte
	readers *Queue

	writer  *PCB
	out     []byte
	writers *Queue
}

func newTTYState(id int) ttyState {
	return ttyState{
		id:      id,
		readers: NewQueue(fmt.Sprintf("tty(%d).lectores", id)),
		writers: NewQueue(fmt.Sprintf("tty(%d).escritores", id)),
	}
}

func (k *Kernel) tty(id int) (*ttyState, error) {
	if id < 0 || id >= hardware.NumTerminals {
		return nil, fmt.Errorf("%w: terminal %d", ErrBadArgument, id)
	}
	return &k.ttys[id], nil
}

// TtyRead lee hasta n bytes de la terminal id. Si no hay nada recibido
// bloquea hasta que llegue una línea.
func (k *Kernel) TtyRead(id int, addr uint64, n int) {
	t, err := k.tty(id)
	if err == nil {
		err = k.checkBuffer(addr, n, true)
	}
	if err != nil {
		k.syscallFailed("TtyRead", err)
		return
	}
	if n == 0 {
		k.current.UC.Regs[0] = 0
		return
	}
	k.ttyRead(t, addr, n)
}

func (k *Kernel) ttyRead(t *ttyState, addr uint64, n int) {
	if len(t.input) == 0 {
		k.block(t.readers, func(k *Kernel, _ Resumption) {
			k.ttyRead(t, addr, n)
		})
		return
	}
	take := min(n, len(t.input))
	if err := k.copyOut(addr, t.input[:take]); err != nil {
		k.syscallFailed("TtyRead", err)
		return
	}
	t.input = t.input[take:]
	k.current.UC.Regs[0] = int64(take)
}

// TtyWrite transmite n bytes desde addr por la terminal id. Los datos se
// copian al kernel antes de bloquear y se mandan en tramos de a lo sumo
// TerminalMaxLine. Devuelve n cuando termina la última transmisión.
func (k *Kernel) TtyWrite(id int, addr uint64, n int) {
	t, err := k.tty(id)
	var data []byte
	if err == nil {
		data, err = k.copyIn(addr, n)
	}
	if err != nil {
		k.syscallFailed("TtyWrite", err)
		return
	}
	if n == 0 {
		k.current.UC.Regs[0] = 0
		return
	}
	k.ttyWrite(t, data)
}

func (k *Kernel) ttyWrite(t *ttyState, data []byte) {
	p := k.current
	// Quien despierta de la cola ya tiene la terminal reservada.
	if t.writer != nil && t.writer != p {
		k.block(t.writers, func(k *Kernel, _ Resumption) {
			k.ttyWrite(t, data)
		})
		return
	}

	t.writer = p
	t.out = data
	if err := k.transmitNext(t); err != nil {
		k.passWriter(t)
		k.syscallFailed("TtyWrite", err)
		return
	}
	p.UC.Regs[0] = int64(len(data))
	k.block(nil, nil)
}

// transmitNext manda el próximo tramo pendiente de t.
func (k *Kernel) transmitNext(t *ttyState) error {
	chunk := min(len(t.out), hardware.TerminalMaxLine)
	if err := k.m.TtyTransmit(t.id, t.out[:chunk]); err != nil {
		return err
	}
	t.out = t.out[chunk:]
	return nil
}

// ttyTransmitDone atiende el fin de una transmisión: manda el tramo
// siguiente o despierta al escritor y le pasa la terminal al próximo.
func (k *Kernel) ttyTransmitDone(id int) {
	t, err := k.tty(id)
	if err != nil || t.writer == nil {
		k.log.Warn("Transmisión terminada sin escritor", "tty", id)
		return
	}
	if len(t.out) > 0 {
		if err := k.transmitNext(t); err == nil {
			return
		}
		k.log.Error("No se pudo continuar la transmisión", "tty", id, "pid", t.writer.PID)
		t.writer.UC.Regs[0] = hardware.ERROR
	}

	k.wake(t.writer)
	k.passWriter(t)
}

// passWriter le entrega la terminal al primero de la cola de escritores,
// igual que release con los locks. Sin nadie esperando queda libre.
func (k *Kernel) passWriter(t *ttyState) {
	t.out = nil
	t.writer = t.writers.Dequeue()
	if t.writer != nil {
		k.wake(t.writer)
	}
}

// ttyReceive guarda la línea recibida y despierta a los lectores.
func (k *Kernel) ttyReceive(id int) {
	t, err := k.tty(id)
	if err != nil {
		k.log.Warn("Recepción en terminal inexistente", "tty", id)
		return
	}
	buf := make([]byte, hardware.TerminalMaxLine)
	n, err := k.m.TtyReceive(id, buf)
	if err != nil {
		k.log.Warn("Error recibiendo de la terminal", "tty", id, "error", err)
		return
	}
	t.input = append(t.input, buf[:n]...)
	k.log.Debug("Línea recibida", "tty", id, "bytes", n)
	k.wakeAll(t.readers)
}

// TTYBuffered devuelve cuántos bytes recibidos esperan ser leídos en id.
func (k *Kernel) TTYBuffered(id int) int {
	t, err := k.tty(id)
	if err != nil {
		return 0
	}
	return len(t.input)
}
