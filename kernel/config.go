package kernel

// Config agrupa los parámetros del kernel. Los nombres JSON siguen la
// convención de los archivos de configuración del proyecto.
type Config struct {
	MaxProcs      int `json:"MAX_PROCS"`
	NumLocks      int `json:"NUM_LOCKS"`
	NumCvars      int `json:"NUM_CVARS"`
	NumPipes      int `json:"NUM_PIPES"`
	PipeBufferLen int `json:"PIPE_BUFFER_LEN"`

	// Páginas de texto y datos de la imagen del kernel en la región 0.
	KernelTextPages int `json:"KERNEL_TEXT_PAGES"`
	KernelDataPages int `json:"KERNEL_DATA_PAGES"`
	// Páginas de heap que se reservan con SetKernelBrk al bootear.
	KernelHeapPages int `json:"KERNEL_HEAP_PAGES"`

	InitProgram string   `json:"INIT_PROGRAM"`
	InitArgs    []string `json:"INIT_ARGS"`

	// SignalRequiresLock exige que CvarSignal y CvarBroadcast se llamen con
	// un lock tomado por el proceso.
	SignalRequiresLock bool `json:"SIGNAL_REQUIRES_LOCK"`
	// CloneRollback libera los marcos ya copiados si clonar una tabla falla
	// a mitad de camino. Si es false quedan para que los libere quien llama.
	CloneRollback *bool `json:"CLONE_ROLLBACK"`
	// CheckInvariants verifica los invariantes de marcos y colas al final
	// de cada trap y detiene la máquina si alguno no se cumple.
	CheckInvariants bool `json:"CHECK_INVARIANTS"`
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	rollback := true
	return Config{
		MaxProcs:        64,
		NumLocks:        16,
		NumCvars:        16,
		NumPipes:        16,
		PipeBufferLen:   256,
		KernelTextPages: 4,
		KernelDataPages: 4,
		KernelHeapPages: 2,
		InitProgram:     "init",
		CloneRollback:   &rollback,
	}
}

// withDefaults completa los campos en cero.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxProcs <= 0 {
		c.MaxProcs = def.MaxProcs
	}
	if c.NumLocks <= 0 {
		c.NumLocks = def.NumLocks
	}
	if c.NumCvars <= 0 {
		c.NumCvars = def.NumCvars
	}
	if c.NumPipes <= 0 {
		c.NumPipes = def.NumPipes
	}
	if c.PipeBufferLen <= 0 {
		c.PipeBufferLen = def.PipeBufferLen
	}
	if c.KernelTextPages <= 0 {
		c.KernelTextPages = def.KernelTextPages
	}
	if c.KernelDataPages <= 0 {
		c.KernelDataPages = def.KernelDataPages
	}
	if c.KernelHeapPages < 0 {
		c.KernelHeapPages = 0
	}
	if c.InitProgram == "" {
		c.InitProgram = def.InitProgram
	}
	if c.CloneRollback == nil {
		c.CloneRollback = def.CloneRollback
	}
	return c
}
