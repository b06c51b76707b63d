package hardware

import "fmt"

// TrapKind identifica la entrada del vector de traps.
type TrapKind int

const (
	TrapKernel TrapKind = iota
	TrapClock
	TrapIllegal
	TrapMemory
	TrapMath
	TrapTtyReceive
	TrapTtyTransmit
	TrapDisk

	TrapVectorSize = 16
)

func (t TrapKind) String() string {
	switch t {
	case TrapKernel:
		return "KERNEL"
	case TrapClock:
		return "CLOCK"
	case TrapIllegal:
		return "ILLEGAL"
	case TrapMemory:
		return "MEMORY"
	case TrapMath:
		return "MATH"
	case TrapTtyReceive:
		return "TTY_RECEIVE"
	case TrapTtyTransmit:
		return "TTY_TRANSMIT"
	case TrapDisk:
		return "DISK"
	default:
		return fmt.Sprintf("TRAP_%d", int(t))
	}
}

// Subcódigos de TrapMemory.
const (
	SegvMapErr = 1 // página no mapeada
	SegvAccErr = 2 // protección insuficiente
)

// Códigos de syscall que el programa deja en el inmediato de SYSCALL.
const (
	SysFork          = 0x01
	SysExec          = 0x02
	SysExit          = 0x03
	SysWait          = 0x04
	SysGetPid        = 0x05
	SysBrk           = 0x06
	SysDelay         = 0x07
	SysTtyRead       = 0x21
	SysTtyWrite      = 0x22
	SysPipeInit      = 0x30
	SysPipeRead      = 0x31
	SysPipeWrite     = 0x32
	SysLockInit      = 0x40
	SysLockAcquire   = 0x41
	SysLockRelease   = 0x42
	SysCvarInit      = 0x43
	SysCvarSignal    = 0x44
	SysCvarBroadcast = 0x45
	SysCvarWait      = 0x46
	SysReclaim       = 0x48
)

// SyscallNames asocia el nombre simbólico que usa el ensamblador con su código.
var SyscallNames = map[string]int{
	"FORK":           SysFork,
	"EXEC":           SysExec,
	"EXIT":           SysExit,
	"WAIT":           SysWait,
	"GETPID":         SysGetPid,
	"BRK":            SysBrk,
	"DELAY":          SysDelay,
	"TTY_READ":       SysTtyRead,
	"TTY_WRITE":      SysTtyWrite,
	"PIPE_INIT":      SysPipeInit,
	"PIPE_READ":      SysPipeRead,
	"PIPE_WRITE":     SysPipeWrite,
	"LOCK_INIT":      SysLockInit,
	"ACQUIRE":        SysLockAcquire,
	"RELEASE":        SysLockRelease,
	"CVAR_INIT":      SysCvarInit,
	"CVAR_SIGNAL":    SysCvarSignal,
	"CVAR_BROADCAST": SysCvarBroadcast,
	"CVAR_WAIT":      SysCvarWait,
	"RECLAIM":        SysReclaim,
}

// Fault describe un acceso a memoria rechazado por la MMU.
type Fault struct {
	Code int
	Addr uint64
}

func (f *Fault) Error() string {
	kind := "MAPERR"
	if f.Code == SegvAccErr {
		kind = "ACCERR"
	}
	return fmt.Sprintf("fallo de memoria %s en 0x%x", kind, f.Addr)
}

// UserContext es la foto de los registros visibles para el usuario que el
// hardware entrega al kernel en cada trap y restaura al volver.
type UserContext struct {
	Vector TrapKind
	Code   int
	Addr   uint64
	PC     uint64
	SP     uint64
	Regs   [NumRegs]int64
}

// TrapHandler recibe cada trap. Al volver, la máquina continúa con el
// contenido de uc.
type TrapHandler interface {
	HandleTrap(uc *UserContext)
}
