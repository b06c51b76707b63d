package kernel

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/loader"
)

func TestForkReturnsInBothProcesses(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	parent := k.Current()
	parent.UC.Regs[3] = 42

	k.Fork()
	if got := result(k); got != 2 {
		t.Fatalf("Fork() en el padre = %d, want 2", got)
	}
	child := k.Lookup(2)
	if child == nil || child.State != StateReady || child.PPID != parent.PID {
		t.Fatalf("hijo = %v", child)
	}
	if !child.kctx.Pending() {
		t.Error("el hijo no tiene la continuación de Fork pendiente")
	}
	if child.UC.Regs[3] != 42 || child.Brk != parent.Brk || child.StackBase != parent.StackBase {
		t.Errorf("el hijo no hereda el contexto del padre: %+v", child.UC)
	}
	for vpn, pte := range parent.PT {
		if !pte.Valid {
			continue
		}
		cpte := child.PT[vpn]
		if !cpte.Valid || cpte.PFN == pte.PFN || cpte.Prot != pte.Prot {
			t.Errorf("página %d: padre %+v, hijo %+v", vpn, pte, cpte)
			continue
		}
		if !bytes.Equal(k.m.FrameBytes(pte.PFN), k.m.FrameBytes(cpte.PFN)) {
			t.Errorf("página %d: el contenido no coincide", vpn)
		}
	}
	if err := k.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants() = %v", err)
	}

	k.makeReady(parent)
	k.switchTo(&KernelContext{}, k.nextRunnable())
	k.resume()
	if k.Current() != child {
		t.Fatalf("actual = %v, want el hijo", k.Current())
	}
	if got := result(k); got != 0 {
		t.Errorf("Fork() en el hijo = %d, want 0", got)
	}
	if parent.UC.Regs[0] != 2 {
		t.Errorf("el padre perdió su resultado: %d", parent.UC.Regs[0])
	}
	if err := k.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestForkAndWait(t *testing.T) {
	_, m := runInit(t, testConfig(), `
.space status 8
start:
	SYSCALL FORK
	JZ r0 child
	MOV r6 r0
	LA r0 status
	SYSCALL WAIT
	SUB r1 r0 r6
	JNZ r1 bad
	LA r2 status
	LOAD r0 r2 0
	SYSCALL EXIT
bad:
	SET r0 99
	SYSCALL EXIT
child:
	SET r0 7
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, 7)
}

func TestExecPassesArguments(t *testing.T) {
	_, m := runInit(t, testConfig(), `
.string prog "prog"
.string a1 "xy"
.space argv 24
.space status 8
start:
	SYSCALL FORK
	JZ r0 child
	LA r0 status
	SYSCALL WAIT
	LA r2 status
	LOAD r0 r2 0
	SYSCALL EXIT
child:
	LA r4 argv
	LA r5 prog
	STORE r5 r4 0
	LA r5 a1
	STORE r5 r4 8
	LA r0 prog
	MOV r1 r4
	SYSCALL EXEC
	SET r0 50
	SYSCALL EXIT
`, loader.Map{"prog": `
start:
	MOV r6 r0
	LOAD r1 r1 8
	SET r0 0
	SET r2 2
	SYSCALL TTY_WRITE
	MOV r0 r6
	SYSCALL EXIT
`})
	wantInitExit(t, m, 2)
	if got := m.Output(0); got != "xy" {
		t.Errorf("Output(0) = %q, want \"xy\"", got)
	}
}

func TestExecFailures(t *testing.T) {
	const parent = `
.string prog "nope"
.space status 8
start:
	SYSCALL FORK
	JZ r0 child
	LA r0 status
	SYSCALL WAIT
	LA r2 status
	LOAD r0 r2 0
	SYSCALL EXIT
child:
%s
	SET r1 0
	SYSCALL EXEC
	ADDI r0 r0 10
	SYSCALL EXIT
`
	tests := []struct {
		name string
		code string
		want int
	}{
		// El path no se puede leer: error recuperable.
		{"path inválido", "SET r0 0", 9},
		// La carga falla: el hijo muere con ERROR.
		{"programa inexistente", "LA r0 prog", hardware.ERROR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m := runInit(t, testConfig(), fmt.Sprintf(parent, tt.code), nil)
			wantInitExit(t, m, tt.want)
		})
	}
}

func TestExecOutOfMemoryKills(t *testing.T) {
	k, m := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	proc := k.Current()
	pages := proc.Pages()
	exhaustFrames(k, 0)

	// Un argumento largo pide una segunda página de pila que no hay.
	k.Exec("init", []string{"init", strings.Repeat("x", hardware.PageSize)})
	wantInitExit(t, m, hardware.ERROR)
	if proc.Pages() != pages {
		t.Errorf("Pages() = %d, want %d", proc.Pages(), pages)
	}
}

func TestKilledProcessKeepsKillInResult(t *testing.T) {
	k, m := runInit(t, testConfig(), `
start:
	SYSCALL FORK
	JZ r0 child
	SET r0 3
	SYSCALL DELAY
	SET r0 0
	SYSCALL EXIT
child:
	SET r1 0
	DIV r2 r1 r1
	SET r0 5
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, 0)
	child := k.Lookup(2)
	if child == nil || child.State != StateZombie {
		t.Fatalf("hijo = %v, want zombie", child)
	}
	if child.ExitStatus != hardware.ERROR || child.UC.Regs[0] != hardware.KILL {
		t.Errorf("status %d, r0 %d; want %d y %d", child.ExitStatus, child.UC.Regs[0], hardware.ERROR, hardware.KILL)
	}
}

func TestOrphansAreAdoptedByInit(t *testing.T) {
	k, m := runInit(t, testConfig(), `
.space status 8
start:
	SET r7 0
	SYSCALL FORK
	JZ r0 mid
loop:
	LA r0 status
	SYSCALL WAIT
	ADDI r3 r0 1
	JZ r3 done
	LA r2 status
	LOAD r2 r2 0
	ADD r7 r7 r2
	GOTO loop
done:
	MOV r0 r7
	SYSCALL EXIT
mid:
	SYSCALL FORK
	JZ r0 leaf
	SET r0 1
	SYSCALL EXIT
leaf:
	SET r0 3
	SYSCALL DELAY
	SET r0 6
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, 7)
	if k.Lookup(2) != nil || k.Lookup(3) != nil {
		t.Error("quedaron procesos sin recolectar")
	}
}

func TestDelay(t *testing.T) {
	k, m := runInit(t, testConfig(), `
start:
	SET r0 -1
	SYSCALL DELAY
	ADDI r1 r0 1
	JNZ r1 bad
	SET r0 0
	SYSCALL DELAY
	JNZ r0 bad
	SET r0 5
	SYSCALL DELAY
	JNZ r0 bad
	SET r0 0
	SYSCALL EXIT
bad:
	SET r0 1
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, 0)
	if k.Ticks() != 5 {
		t.Errorf("Ticks() = %d, want 5", k.Ticks())
	}
}

func TestGetPid(t *testing.T) {
	_, m := runInit(t, testConfig(), `
start:
	SYSCALL FORK
	JZ r0 child
	SYSCALL GETPID
	SYSCALL EXIT
child:
	PAUSE
	GOTO child
`, nil)
	wantInitExit(t, m, 1)
}

func TestFatalTrapsKillTheProcess(t *testing.T) {
	const parent = `
.space status 8
start:
	SYSCALL FORK
	JZ r0 child
	LA r0 status
	SYSCALL WAIT
	LA r2 status
	LOAD r0 r2 0
	SYSCALL EXIT
child:
%s
	SET r0 0
	SYSCALL EXIT
`
	tests := []struct {
		name string
		code string
	}{
		{"división por cero", "SET r1 0\n\tDIV r2 r1 r1"},
		{"acceso a la región 0", "SET r1 0x1000\n\tLOAD r2 r1 0"},
		{"escritura en texto", "SET r1 0x100000\n\tSTORE r1 r1 0"},
		{"heap sin mapear", "SET r1 0x104000\n\tSTORE r1 r1 0"},
		{"ejecución en datos", "GOTO 1024"},
		{"puntero nulo", "SET r1 0\n\tLOAD r2 r1 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, m := runInit(t, testConfig(), fmt.Sprintf(parent, tt.code), nil)
			wantInitExit(t, m, hardware.ERROR)
			if k.Lookup(2) != nil {
				t.Error("el hijo no fue recolectado")
			}
		})
	}
}

func TestForkOutOfMemory(t *testing.T) {
	tests := []struct {
		name     string
		free     int
		rollback bool
	}{
		{"sin marcos", 0, true},
		{"falla a mitad de la tabla", 2, true},
		{"falla a mitad sin rollback", 2, false},
		{"falla en la pila de kernel", 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CloneRollback = &tt.rollback
			k, _ := bootWith(t, cfg, loader.Map{"init": spinProgram})
			exhaustFrames(k, tt.free)

			k.Fork()
			if got := result(k); got != hardware.ERROR {
				t.Fatalf("Fork() = %d, want ERROR", got)
			}
			if k.Lookup(2) != nil || len(k.Init().Children()) != 0 {
				t.Error("quedó un hijo a medio crear")
			}
			if got := k.frames.FreeCount(); got != tt.free {
				t.Errorf("FreeCount() = %d, want %d", got, tt.free)
			}
		})
	}
}

func TestForkProcessTableFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxProcs = 3
	k, _ := bootWith(t, cfg, loader.Map{"init": spinProgram})

	k.Fork()
	if got := result(k); got != 2 {
		t.Fatalf("primer Fork() = %d, want 2", got)
	}
	free := k.frames.FreeCount()
	k.Fork()
	if got := result(k); got != hardware.ERROR {
		t.Errorf("segundo Fork() = %d, want ERROR", got)
	}
	if k.frames.FreeCount() != free {
		t.Errorf("FreeCount() = %d, want %d", k.frames.FreeCount(), free)
	}
}

func TestWaitWithoutChildren(t *testing.T) {
	_, m := runInit(t, testConfig(), `
start:
	SET r0 0
	SYSCALL WAIT
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, hardware.ERROR)
}
