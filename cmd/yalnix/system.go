package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/kernel"
	"github.com/sisoputnfrba/tp-yalnix/utils"
)

const (
	stepBatch = 500
	idleSleep = time.Millisecond
)

// System es la máquina con su kernel. El semáforo serializa el ciclo de
// ejecución con los pedidos del monitor: la máquina no es concurrente.
type System struct {
	m   *hardware.Machine
	k   *kernel.Kernel
	sem *utils.Semaphore

	delayMs int
	echo    io.Writer
}

func NewSystem(m *hardware.Machine, k *kernel.Kernel, delayMs int) *System {
	return &System{
		m:       m,
		k:       k,
		sem:     utils.NewSemaphore(1),
		delayMs: delayMs,
	}
}

// locked ejecuta fn con la máquina detenida.
func (s *System) locked(fn func()) {
	s.sem.Wait()
	defer s.sem.Signal()
	fn()
}

// Run ejecuta la máquina hasta que se detiene, se alcanzan maxTicks o se
// cancela ctx. Devuelve el motivo de la finalización.
func (s *System) Run(ctx context.Context, maxTicks int) string {
	batch := stepBatch
	if s.delayMs > 0 {
		batch = 1
	}
	for {
		select {
		case <-ctx.Done():
			return "señal recibida"
		default:
		}

		var halted, idle bool
		var ticks int
		s.locked(func() {
			for i := 0; i < batch && s.m.Step(); i++ {
				if maxTicks > 0 && s.m.Ticks() >= maxTicks {
					break
				}
			}
			halted = s.m.Halted()
			ticks = s.m.Ticks()
			idle = s.k.Current() == s.k.Idle()
		})
		s.echoOutput()

		if halted {
			return s.m.HaltReason()
		}
		if maxTicks > 0 && ticks >= maxTicks {
			return fmt.Sprintf("se alcanzó MAX_TICKS (%d)", maxTicks)
		}
		if idle {
			time.Sleep(idleSleep)
		}
		utils.ApplyDelay("instrucción", s.delayMs)
	}
}

// echoOutput copia la salida pendiente de las terminales a echo, si hay.
func (s *System) echoOutput() {
	if s.echo == nil {
		return
	}
	for tty := 0; tty < hardware.NumTerminals; tty++ {
		if out := s.m.DrainOutput(tty); out != "" {
			fmt.Fprint(s.echo, out)
		}
	}
}
