package hardware

// Prot son los bits de protección de una entrada de tabla de páginas.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec

	ProtNone Prot = 0
	ProtRW        = ProtRead | ProtWrite
	ProtRX        = ProtRead | ProtExec
)

func (p Prot) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// PTE es una entrada de tabla de páginas.
type PTE struct {
	Valid bool
	Prot  Prot
	PFN   int
}

// PageTable es una tabla de región. La máquina lee la tabla instalada en
// cada fallo de TLB, de modo que las modificaciones del kernel se ven
// recién después de un flush.
type PageTable []PTE

// NewPageTable crea una tabla con todas las entradas inválidas.
func NewPageTable() PageTable {
	return make(PageTable, MaxPTLen)
}

// ValidCount cuenta las entradas válidas.
func (pt PageTable) ValidCount() int {
	n := 0
	for _, pte := range pt {
		if pte.Valid {
			n++
		}
	}
	return n
}

// Access es el tipo de acceso que se traduce.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessExec
)

func (a Access) prot() Prot {
	switch a {
	case AccessWrite:
		return ProtWrite
	case AccessExec:
		return ProtExec
	default:
		return ProtRead
	}
}

// Mode indica si el acceso lo hace el kernel o el usuario.
type Mode int

const (
	ModeUser Mode = iota
	ModeKernel
)

type mmu struct {
	region0   PageTable
	region1   PageTable
	vmEnabled bool
	tlb       map[int]PTE
	tlbMisses int
}

func newMMU() mmu {
	return mmu{tlb: make(map[int]PTE)}
}

// translate devuelve la dirección física de addr o el fallo correspondiente.
func (u *mmu) translate(addr uint64, access Access, mode Mode, memSize int) (int, *Fault) {
	if !u.vmEnabled {
		if addr >= uint64(memSize) {
			return 0, &Fault{Code: SegvMapErr, Addr: addr}
		}
		return int(addr), nil
	}

	var table PageTable
	var index int
	switch {
	case addr < VMem0Limit:
		if mode == ModeUser {
			return 0, &Fault{Code: SegvAccErr, Addr: addr}
		}
		table = u.region0
		index = PageNumber(addr)
	case addr < VMem1Limit:
		table = u.region1
		index = Region1Index(addr)
	default:
		return 0, &Fault{Code: SegvMapErr, Addr: addr}
	}

	vpn := PageNumber(addr)
	pte, cached := u.tlb[vpn]
	if !cached {
		u.tlbMisses++
		if index >= len(table) || !table[index].Valid {
			return 0, &Fault{Code: SegvMapErr, Addr: addr}
		}
		pte = table[index]
		u.tlb[vpn] = pte
	}

	if pte.Prot&access.prot() == 0 {
		return 0, &Fault{Code: SegvAccErr, Addr: addr}
	}
	phys := pte.PFN<<PageShift | int(addr&PageMask)
	if phys >= memSize {
		return 0, &Fault{Code: SegvMapErr, Addr: addr}
	}
	return phys, nil
}

func (u *mmu) flush(addr uint64) {
	delete(u.tlb, PageNumber(addr))
}

func (u *mmu) flushRange(from, to uint64) {
	for vpn := range u.tlb {
		addr := uint64(vpn) << PageShift
		if addr >= from && addr < to {
			delete(u.tlb, vpn)
		}
	}
}

func (u *mmu) flushAll() {
	clear(u.tlb)
}
