package utils

// Semaphore es un semáforo contador implementado con un canal.
type Semaphore struct {
	c chan struct{}
}

// NewSemaphore crea un semáforo que admite capacity dueños simultáneos.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{
		c: make(chan struct{}, capacity),
	}
}

// Wait (P) bloquea hasta obtener un lugar.
func (s *Semaphore) Wait() {
	s.c <- struct{}{}
}

// Signal (V) libera un lugar. Sin lugares tomados no hace nada.
func (s *Semaphore) Signal() {
	select {
	case <-s.c:
	default:
	}
}
