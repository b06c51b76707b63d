package kernel

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/loader"
)

func TestBrk(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	p := k.Current()
	heap := p.HeapStart
	pages := p.Pages()

	k.Brk(heap + 4*hardware.PageSize)
	if result(k) != 0 || p.Pages() != pages+4 {
		t.Fatalf("Brk() = %d con %d páginas, want 0 y %d", result(k), p.Pages(), pages+4)
	}
	if err := k.copyOut(heap+4*hardware.PageSize-8, []byte("12345678")); err != nil {
		t.Errorf("el heap nuevo no es escribible: %v", err)
	}

	for _, addr := range []uint64{heap - 1, p.StackBase - hardware.PageSize + 1, hardware.VMem1Limit, ^uint64(0) - 4094} {
		k.Brk(addr)
		if result(k) != hardware.ERROR {
			t.Errorf("Brk(%#x) = %d, want ERROR", addr, result(k))
		}
	}
	if p.Pages() != pages+4 {
		t.Errorf("un Brk fallido cambió el heap: %d páginas", p.Pages())
	}

	k.Brk(heap + 1)
	if result(k) != 0 || p.Pages() != pages+1 || p.Brk != heap+1 {
		t.Errorf("Brk(heap+1) = %d con %d páginas y brk %#x", result(k), p.Pages(), p.Brk)
	}
	k.Brk(heap)
	if p.Pages() != pages {
		t.Errorf("Pages() = %d, want %d", p.Pages(), pages)
	}
	if _, err := k.copyIn(heap, 1); !errors.Is(err, ErrBadAddress) {
		t.Errorf("copyIn() sobre heap liberado = %v, want %v", err, ErrBadAddress)
	}
	if err := k.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestBrkOutOfMemory(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	exhaustFrames(k, 1)

	k.Brk(k.Current().HeapStart + 2*hardware.PageSize)
	if result(k) != hardware.ERROR {
		t.Errorf("Brk() sin memoria = %d, want ERROR", result(k))
	}
}

func TestBrkNegativeFromUser(t *testing.T) {
	k, m := runInit(t, testConfig(), `
start:
	SET r0 -4095
	SYSCALL BRK
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, hardware.ERROR)
	if p := k.Init(); p.Pages() != 2 || p.Brk != p.HeapStart {
		t.Errorf("init quedó con %d páginas y brk %#x", p.Pages(), p.Brk)
	}
}

func TestStackGrowsOnFault(t *testing.T) {
	k, m := runInit(t, testConfig(), `
start:
	ADDI r1 sp -16384
	SET r2 9
	STORE r2 r1 0
	LOAD r0 r1 0
	SYSCALL EXIT
`, nil)
	wantInitExit(t, m, 9)
	p := k.Init()
	if want := uint64(hardware.VMem1Limit - 3*hardware.PageSize); p.StackBase != want {
		t.Errorf("StackBase = %#x, want %#x", p.StackBase, want)
	}
	if p.Pages() != 4 {
		t.Errorf("Pages() = %d, want 4", p.Pages())
	}
}

func TestGrowStackKeepsGuardPage(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	p := k.Current()

	if err := k.growStack(p, p.Brk); !errors.Is(err, ErrBadAddress) {
		t.Errorf("growStack(brk) = %v, want %v", err, ErrBadAddress)
	}
	if err := k.growStack(p, hardware.UpToPage(p.Brk)+hardware.PageSize-1); err == nil {
		t.Error("growStack() invadió la página de guarda")
	}
	if err := k.growStack(p, p.StackBase); err == nil {
		t.Error("growStack() aceptó una dirección ya mapeada")
	}

	low := hardware.UpToPage(p.Brk) + hardware.PageSize
	exhaustFrames(k, 2)
	before := p.StackBase
	if err := k.growStack(p, low); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("growStack() sin memoria = %v, want %v", err, ErrOutOfMemory)
	}
	if p.StackBase != before || k.frames.FreeCount() != 2 {
		t.Errorf("el fallo dejó páginas: StackBase %#x, libres %d", p.StackBase, k.frames.FreeCount())
	}
}

func TestSetKernelBrk(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	brk := k.KernelBrk()
	kernelFrames := k.frames.Count(FrameKernel)

	if err := k.SetKernelBrk(brk + 3*hardware.PageSize - 10); err != nil {
		t.Fatalf("SetKernelBrk() crecer = %v", err)
	}
	if k.KernelBrk() != brk+3*hardware.PageSize || k.frames.Count(FrameKernel) != kernelFrames+3 {
		t.Errorf("brk %#x con %d marcos", k.KernelBrk(), k.frames.Count(FrameKernel))
	}
	if !k.Region0()[hardware.PageNumber(brk)].Valid {
		t.Error("la página nueva del heap no quedó mapeada")
	}
	if err := k.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}

	if err := k.SetKernelBrk(brk); err != nil {
		t.Fatalf("SetKernelBrk() achicar = %v", err)
	}
	if k.frames.Count(FrameKernel) != kernelFrames || k.Region0()[hardware.PageNumber(brk)].Valid {
		t.Error("achicar no liberó las páginas")
	}

	if err := k.SetKernelBrk(ScratchSrc + 1); !errors.Is(err, ErrBrkCollision) {
		t.Errorf("SetKernelBrk() sobre la pila = %v, want %v", err, ErrBrkCollision)
	}
	if err := k.SetKernelBrk(hardware.PageSize); !errors.Is(err, ErrBadArgument) {
		t.Errorf("SetKernelBrk() dentro de la imagen = %v, want %v", err, ErrBadArgument)
	}
	if k.KernelBrk() != brk {
		t.Errorf("un SetKernelBrk fallido movió el break a %#x", k.KernelBrk())
	}
}

func TestCloneTable(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	src := k.Current()
	dst, err := k.procs.allocate()
	if err != nil {
		t.Fatal(err)
	}

	if err := k.cloneTable(src, dst); err != nil {
		t.Fatalf("cloneTable() = %v", err)
	}
	for vpn, pte := range src.PT {
		if !pte.Valid {
			continue
		}
		got := dst.PT[vpn]
		if got.PFN == pte.PFN || got.Prot != pte.Prot {
			t.Errorf("página %d: %+v, origen %+v", vpn, got, pte)
		}
		if f := k.frames.Get(got.PFN); f.Usage != FrameUser || f.Owner != dst.PID {
			t.Errorf("marco %d = %+v, want de usuario de %d", got.PFN, f, dst.PID)
		}
		if !bytes.Equal(k.m.FrameBytes(got.PFN), k.m.FrameBytes(pte.PFN)) {
			t.Errorf("página %d: contenido distinto", vpn)
		}
	}
	for _, addr := range []uint64{ScratchSrc, ScratchDst} {
		if k.Region0()[hardware.PageNumber(addr)].Valid {
			t.Errorf("la página scratch %#x quedó mapeada", addr)
		}
	}

	k.freeRegion1(dst)
	k.procs.release(dst)
	if err := k.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestCloneTableRollback(t *testing.T) {
	for _, rollback := range []bool{true, false} {
		cfg := testConfig()
		cfg.CloneRollback = &rollback
		k, _ := bootWith(t, cfg, loader.Map{"init": spinProgram})
		dst, _ := k.procs.allocate()
		exhaustFrames(k, 2)

		err := k.cloneTable(k.Current(), dst)
		if !errors.Is(err, ErrOutOfMemory) {
			t.Fatalf("rollback=%v: cloneTable() = %v, want %v", rollback, err, ErrOutOfMemory)
		}
		want := 0
		if !rollback {
			want = 2
		}
		if dst.Pages() != want {
			t.Errorf("rollback=%v: quedaron %d páginas, want %d", rollback, dst.Pages(), want)
		}
		k.freeRegion1(dst)
		if k.frames.FreeCount() != 2 {
			t.Errorf("rollback=%v: FreeCount() = %d, want 2", rollback, k.frames.FreeCount())
		}
	}
}

func TestCopyForFork(t *testing.T) {
	k, _ := bootWith(t, testConfig(), loader.Map{"init": spinProgram})
	parent := k.Current()
	child, _ := k.procs.allocate()

	called := false
	kc := &KernelContext{cont: func(*Kernel, Resumption) { called = true }}
	got, err := k.CopyForFork(kc, parent, child)
	if err != nil {
		t.Fatalf("CopyForFork() = %v", err)
	}
	if got != kc || !child.kctx.forked || !child.kctx.Pending() {
		t.Errorf("contexto del hijo = %+v", child.kctx)
	}
	for i := range child.KStack {
		c, p := child.KStack[i], parent.KStack[i]
		if !c.Valid || c.PFN == p.PFN {
			t.Fatalf("pila de kernel[%d] hijo %+v, padre %+v", i, c, p)
		}
		if !bytes.Equal(k.m.FrameBytes(c.PFN), k.m.FrameBytes(p.PFN)) {
			t.Errorf("pila de kernel[%d]: contenido distinto", i)
		}
	}

	child.kctx.cont(k, ResumedAsChild)
	if !called {
		t.Error("el hijo no recibió la continuación")
	}
	k.freeKernelStack(child)
	k.procs.release(child)
	if err := k.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}
