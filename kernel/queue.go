package kernel

// Queue es una cola FIFO de PCBs. Cada cola es dueña de su propio slice,
// así que un PCB puede estar a la vez en una cola de planificación y en la
// cola de espera de un recurso sin que una afecte a la otra.
type Queue struct {
	name  string
	items []*PCB
}

func NewQueue(name string) *Queue {
	return &Queue{name: name}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) Enqueue(p *PCB) {
	q.items = append(q.items, p)
}

// Dequeue saca el primero de la cola o devuelve nil si está vacía.
func (q *Queue) Dequeue() *PCB {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p
}

// Peek devuelve el primero sin sacarlo.
func (q *Queue) Peek() *PCB {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Remove saca p de cualquier posición. Devuelve false si no estaba.
func (q *Queue) Remove(p *PCB) bool {
	for i, item := range q.items {
		if item == p {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Contains(p *PCB) bool {
	for _, item := range q.items {
		if item == p {
			return true
		}
	}
	return false
}

// Items devuelve una copia del contenido en orden FIFO.
func (q *Queue) Items() []*PCB {
	return append([]*PCB(nil), q.items...)
}

// PIDs devuelve los pids en orden FIFO.
func (q *Queue) PIDs() []int {
	pids := make([]int, len(q.items))
	for i, p := range q.items {
		pids[i] = p.PID
	}
	return pids
}
