package kernel

import (
	"slices"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue("prueba")
	a, b, c := newPCB(0, 1), newPCB(1, 2), newPCB(2, 3)

	if q.Dequeue() != nil || q.Peek() != nil {
		t.Fatal("una cola vacía devolvió un proceso")
	}
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)
	if !slices.Equal(q.PIDs(), []int{1, 2, 3}) {
		t.Errorf("PIDs() = %v", q.PIDs())
	}

	if !q.Remove(b) || q.Remove(b) {
		t.Error("Remove() no saca exactamente una vez")
	}
	if q.Contains(b) || !q.Contains(c) {
		t.Error("Contains() no refleja el Remove")
	}
	if q.Peek() != a || q.Dequeue() != a || q.Dequeue() != c || q.Len() != 0 {
		t.Error("el orden FIFO no se respetó")
	}
}

func TestQueueItemsIsACopy(t *testing.T) {
	q := NewQueue("prueba")
	a := newPCB(0, 1)
	q.Enqueue(a)

	items := q.Items()
	items[0] = nil
	if q.Peek() != a {
		t.Error("modificar Items() cambió la cola")
	}
}

func TestSchedulingQueuesAreExclusive(t *testing.T) {
	k := &Kernel{
		log:     testLogger(),
		ready:   NewQueue("ready"),
		blocked: NewQueue("blocked"),
		zombie:  NewQueue("zombie"),
	}
	p := newPCB(0, 5)
	waiters := NewQueue("lock")

	k.makeReady(p)
	k.makeBlocked(p)
	waiters.Enqueue(p)
	if k.ready.Contains(p) || !k.blocked.Contains(p) || p.sched != k.blocked {
		t.Errorf("p está en ready=%v blocked=%v", k.ready.Contains(p), k.blocked.Contains(p))
	}
	if !waiters.Contains(p) {
		t.Error("la cola de espera perdió al proceso")
	}

	k.makeZombie(p)
	if k.blocked.Len() != 0 || k.zombie.Len() != 1 || p.State != StateZombie {
		t.Errorf("blocked=%d zombie=%d estado=%s", k.blocked.Len(), k.zombie.Len(), p.State)
	}
	k.unschedule(p)
	if p.sched != nil || k.zombie.Len() != 0 {
		t.Error("unschedule() no sacó al proceso")
	}
}
