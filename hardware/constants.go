package hardware

// Geometría de la máquina: dos regiones de 1 MiB con páginas de 8 KiB.
const (
	PageShift = 13
	PageSize  = 1 << PageShift
	PageMask  = PageSize - 1

	VMem0Base  = 0x000000
	VMem0Size  = 0x100000
	VMem0Limit = VMem0Base + VMem0Size

	VMem1Base  = VMem0Limit
	VMem1Size  = 0x100000
	VMem1Limit = VMem1Base + VMem1Size

	// MaxPTLen es la cantidad de entradas de cada tabla de región.
	MaxPTLen = VMem0Size >> PageShift

	KernelStackMaxSize = 2 * PageSize
	KernelStackLimit   = VMem0Limit
	KernelStackBase    = KernelStackLimit - KernelStackMaxSize
	KernelStackPages   = KernelStackMaxSize >> PageShift

	NumTerminals    = 4
	TerminalMaxLine = 1024
)

// Valores de retorno reservados del ABI de syscalls.
const (
	ERROR = -1
	KILL  = -2
)

// UpToPage redondea addr hacia arriba al próximo límite de página.
func UpToPage(addr uint64) uint64 {
	return (addr + PageMask) &^ PageMask
}

// DownToPage redondea addr hacia abajo al límite de página.
func DownToPage(addr uint64) uint64 {
	return addr &^ PageMask
}

// PageNumber devuelve el número de página virtual global de addr.
func PageNumber(addr uint64) int {
	return int(addr >> PageShift)
}

// Region1Index traduce una dirección de región 1 al índice de su tabla.
func Region1Index(addr uint64) int {
	return int((addr - VMem1Base) >> PageShift)
}

// Region1Addr es la inversa de Region1Index.
func Region1Addr(index int) uint64 {
	return VMem1Base + uint64(index)<<PageShift
}
