package hardware

import (
	"errors"
	"sync"
)

var (
	ErrBadTerminal     = errors.New("terminal inexistente")
	ErrTerminalBusy    = errors.New("terminal transmitiendo")
	ErrTransmitTooLong = errors.New("transmisión mayor a TerminalMaxLine")
)

// terminal modela una consola serie. La entrada llega por Type desde fuera
// de la máquina, por eso está protegida con un mutex.
type terminal struct {
	mu       sync.Mutex
	input    [][]byte
	received []byte
	output   []byte
	busy     bool
	doneAt   uint64
}

func (m *Machine) term(tty int) (*terminal, error) {
	if tty < 0 || tty >= NumTerminals {
		return nil, ErrBadTerminal
	}
	return &m.terminals[tty], nil
}

// Type simula que el usuario escribe una línea en la terminal tty. La
// línea se entrega al kernel con un trap TrapTtyReceive.
func (m *Machine) Type(tty int, line string) error {
	t, err := m.term(tty)
	if err != nil {
		return err
	}
	data := []byte(line)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(data) > 0 {
		n := min(len(data), TerminalMaxLine)
		t.input = append(t.input, data[:n])
		data = data[n:]
	}
	return nil
}

// TtyReceive copia en buf la última línea recibida por tty y devuelve la
// cantidad de bytes copiados.
func (m *Machine) TtyReceive(tty int, buf []byte) (int, error) {
	t, err := m.term(tty)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := copy(buf, t.received)
	t.received = nil
	return n, nil
}

// TtyTransmit comienza a transmitir data por tty. Al terminar la máquina
// genera un TrapTtyTransmit.
func (m *Machine) TtyTransmit(tty int, data []byte) error {
	t, err := m.term(tty)
	if err != nil {
		return err
	}
	if len(data) > TerminalMaxLine {
		return ErrTransmitTooLong
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy {
		return ErrTerminalBusy
	}
	t.busy = true
	t.output = append(t.output, data...)
	t.doneAt = m.instructions + uint64(m.cfg.TransmitDelay)
	return nil
}

// Output devuelve todo lo transmitido por tty hasta el momento.
func (m *Machine) Output(tty int) string {
	t, err := m.term(tty)
	if err != nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.output)
}

// DrainOutput devuelve lo transmitido por tty y vacía el buffer de salida.
func (m *Machine) DrainOutput(tty int) string {
	t, err := m.term(tty)
	if err != nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := string(t.output)
	t.output = nil
	return out
}

// pendingTerminalTrap busca la próxima interrupción de terminal para entregar.
func (m *Machine) pendingTerminalTrap() (TrapKind, int, bool) {
	for i := range m.terminals {
		t := &m.terminals[i]
		t.mu.Lock()
		if t.busy && m.instructions >= t.doneAt {
			t.busy = false
			t.mu.Unlock()
			return TrapTtyTransmit, i, true
		}
		t.mu.Unlock()
	}
	for i := range m.terminals {
		t := &m.terminals[i]
		t.mu.Lock()
		if t.received == nil && len(t.input) > 0 {
			t.received = t.input[0]
			t.input = t.input[1:]
			t.mu.Unlock()
			return TrapTtyReceive, i, true
		}
		t.mu.Unlock()
	}
	return 0, 0, false
}
