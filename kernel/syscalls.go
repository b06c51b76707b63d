package kernel

import (
	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// syscall decodifica la llamada según el ABI: argumentos en r0..r2 y
// resultado en r0.
func (k *Kernel) syscall(code int) {
	p := k.current
	r := p.UC.Regs
	k.log.Debug("Syscall", "pid", p.PID, "codigo", code)

	switch code {
	case hardware.SysFork:
		k.Fork()
	case hardware.SysExec:
		path, err := k.copyInString(uint64(r[0]))
		if err != nil {
			k.syscallFailed("Exec", err)
			return
		}
		args, err := k.copyInArgv(uint64(r[1]))
		if err != nil {
			k.syscallFailed("Exec", err)
			return
		}
		k.Exec(path, args)
	case hardware.SysExit:
		k.exit(int(r[0]))
	case hardware.SysWait:
		k.Wait(uint64(r[0]))
	case hardware.SysGetPid:
		p.UC.Regs[0] = int64(p.PID)
	case hardware.SysBrk:
		k.Brk(uint64(r[0]))
	case hardware.SysDelay:
		k.Delay(int(r[0]))
	case hardware.SysTtyRead:
		k.TtyRead(int(r[0]), uint64(r[1]), int(r[2]))
	case hardware.SysTtyWrite:
		k.TtyWrite(int(r[0]), uint64(r[1]), int(r[2]))
	case hardware.SysPipeInit:
		k.PipeInit(uint64(r[0]))
	case hardware.SysPipeRead:
		k.PipeRead(int(r[0]), uint64(r[1]), int(r[2]))
	case hardware.SysPipeWrite:
		k.PipeWrite(int(r[0]), uint64(r[1]), int(r[2]))
	case hardware.SysLockInit:
		k.LockInit(uint64(r[0]))
	case hardware.SysLockAcquire:
		k.Acquire(int(r[0]))
	case hardware.SysLockRelease:
		k.Release(int(r[0]))
	case hardware.SysCvarInit:
		k.CvarInit(uint64(r[0]))
	case hardware.SysCvarSignal:
		k.CvarSignal(int(r[0]))
	case hardware.SysCvarBroadcast:
		k.CvarBroadcast(int(r[0]))
	case hardware.SysCvarWait:
		k.CvarWait(int(r[0]), int(r[1]))
	case hardware.SysReclaim:
		k.Reclaim(int(r[0]))
	default:
		k.log.Warn("Syscall desconocida", "pid", p.PID, "codigo", code)
		p.UC.Regs[0] = hardware.ERROR
	}
}
