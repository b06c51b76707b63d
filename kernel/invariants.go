package kernel

import (
	"errors"
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// CheckInvariants verifica que el uso de cada marco coincida con las
// tablas que lo referencian y que cada proceso esté sólo en la cola que
// corresponde a su estado.
func (k *Kernel) CheckInvariants() error {
	return errors.Join(k.checkFrames(), k.checkQueues())
}

func (k *Kernel) checkFrames() error {
	var errs []error
	refs := make([]int, k.frames.Len())
	expect := make([]FrameUsage, k.frames.Len())
	note := func(pfn int, usage FrameUsage, where string) {
		if pfn < 0 || pfn >= len(refs) {
			errs = append(errs, fmt.Errorf("%s referencia el marco %d fuera de rango", where, pfn))
			return
		}
		refs[pfn]++
		expect[pfn] = usage
	}

	kstackBase := hardware.PageNumber(hardware.KernelStackBase)
	for vpn, pte := range k.region0 {
		if !pte.Valid || vpn >= kstackBase {
			continue
		}
		if vpn == hardware.PageNumber(ScratchSrc) || vpn == hardware.PageNumber(ScratchDst) {
			errs = append(errs, fmt.Errorf("página scratch %d quedó mapeada", vpn))
			continue
		}
		note(pte.PFN, FrameKernel, "región 0")
	}
	for i, pte := range k.current.KStack {
		if k.region0[kstackBase+i] != pte {
			errs = append(errs, fmt.Errorf("la pila de kernel instalada no es la de %d", k.current.PID))
			break
		}
	}

	for _, p := range k.procs.Live() {
		where := fmt.Sprintf("proceso %d", p.PID)
		for _, pte := range p.PT {
			if !pte.Valid {
				continue
			}
			note(pte.PFN, FrameUser, where)
			if f := k.frames.Get(pte.PFN); f.Usage == FrameUser && f.Owner != p.PID {
				errs = append(errs, fmt.Errorf("marco %d de %s pertenece a %d", pte.PFN, where, f.Owner))
			}
		}
		for _, pte := range p.KStack {
			if pte.Valid {
				note(pte.PFN, FrameKernel, where+" (pila de kernel)")
			}
		}
	}

	for pfn, n := range refs {
		f := k.frames.Get(pfn)
		switch {
		case n == 0 && f.Usage != FrameFree:
			errs = append(errs, fmt.Errorf("marco %d en uso (%s) sin referencias", pfn, f.Usage))
		case n > 0 && f.Usage == FrameFree:
			errs = append(errs, fmt.Errorf("marco %d libre pero referenciado %d veces", pfn, n))
		case n > 1:
			errs = append(errs, fmt.Errorf("marco %d referenciado %d veces", pfn, n))
		case n == 1 && f.Usage != expect[pfn]:
			errs = append(errs, fmt.Errorf("marco %d marcado %s pero usado como %s", pfn, f.Usage, expect[pfn]))
		}
	}
	return errors.Join(errs...)
}

func (k *Kernel) checkQueues() error {
	var errs []error
	queues := map[State]*Queue{
		StateReady:   k.ready,
		StateBlocked: k.blocked,
		StateZombie:  k.zombie,
	}

	live := make(map[*PCB]bool)
	for _, p := range k.procs.Live() {
		live[p] = true
		members := 0
		for _, q := range queues {
			if q.Contains(p) {
				members++
			}
		}
		want, scheduled := queues[p.State]
		switch {
		case p.State == StateRunning:
			if p != k.current {
				errs = append(errs, fmt.Errorf("proceso %d RUNNING pero no es el actual", p.PID))
			}
			if members != 0 || p.sched != nil {
				errs = append(errs, fmt.Errorf("proceso %d RUNNING encolado", p.PID))
			}
		case p == k.idle:
			if members != 0 {
				errs = append(errs, fmt.Errorf("idle encolado"))
			}
		case !scheduled:
			errs = append(errs, fmt.Errorf("proceso %d en estado inválido %s", p.PID, p.State))
		case members != 1 || !want.Contains(p) || p.sched != want:
			errs = append(errs, fmt.Errorf("proceso %d en %s no está sólo en la cola %s", p.PID, p.State, want.Name()))
		}
	}

	for state, q := range queues {
		for _, p := range q.Items() {
			if !live[p] {
				errs = append(errs, fmt.Errorf("la cola %s tiene al proceso destruido %d", q.Name(), p.PID))
			} else if p.State != state {
				errs = append(errs, fmt.Errorf("la cola %s tiene al proceso %d en %s", q.Name(), p.PID, p.State))
			}
		}
	}
	if k.current.State != StateRunning {
		errs = append(errs, fmt.Errorf("el proceso actual %d está en %s", k.current.PID, k.current.State))
	}
	return errors.Join(errs...)
}
