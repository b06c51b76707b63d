package hardware

import "testing"

func TestInstructionEncoding(t *testing.T) {
	in := Instruction{Op: OpAddi, A: 1, B: RegSP, Imm: -16}
	b := in.Encode()
	if b[0] != byte(OpAddi) || b[2] != RegSP {
		t.Errorf("Encode() = % x", b)
	}
	if got := Decode(b[:]); got != in {
		t.Errorf("Decode(Encode()) = %v, want %v", got, in)
	}
}

func TestLookupOpcode(t *testing.T) {
	tests := []struct {
		name   string
		want   Opcode
		wantOK bool
	}{
		{"LOAD", OpLoadW, true},
		{"STOREB", OpStoreB, true},
		{"PAUSE", OpPause, true},
		{"ILLEGAL", OpIllegal, false},
		{"JMP", OpIllegal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupOpcode(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("LookupOpcode(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPageArithmetic(t *testing.T) {
	tests := []struct {
		addr      uint64
		up, down  uint64
		pageIndex int
	}{
		{0, 0, 0, 0},
		{1, PageSize, 0, 0},
		{PageSize, PageSize, PageSize, 1},
		{VMem1Base + PageSize + 3, VMem1Base + 2*PageSize, VMem1Base + PageSize, MaxPTLen + 1},
	}
	for _, tt := range tests {
		if got := UpToPage(tt.addr); got != tt.up {
			t.Errorf("UpToPage(%#x) = %#x, want %#x", tt.addr, got, tt.up)
		}
		if got := DownToPage(tt.addr); got != tt.down {
			t.Errorf("DownToPage(%#x) = %#x, want %#x", tt.addr, got, tt.down)
		}
		if got := PageNumber(tt.addr); got != tt.pageIndex {
			t.Errorf("PageNumber(%#x) = %d, want %d", tt.addr, got, tt.pageIndex)
		}
	}
	if got := Region1Addr(Region1Index(VMem1Limit - 1)); got != VMem1Limit-PageSize {
		t.Errorf("Region1Addr(Region1Index(límite)) = %#x, want %#x", got, VMem1Limit-PageSize)
	}
	if KernelStackPages != 2 || KernelStackBase != VMem0Limit-2*PageSize {
		t.Errorf("pila de kernel = %d páginas desde %#x", KernelStackPages, KernelStackBase)
	}
}

func TestProtString(t *testing.T) {
	tests := map[Prot]string{
		ProtNone: "---",
		ProtRW:   "rw-",
		ProtRX:   "r-x",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Prot(%d).String() = %q, want %q", p, got, want)
		}
	}
}
