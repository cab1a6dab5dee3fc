package main

import "testing"

func TestEhdrRoundTrip(t *testing.T) {
	want := Ehdr{
		Type: ET_EXEC, Machine: EM_RISCV, Version: EV_CURRENT,
		Entry: 0x200078, PhOff: 64, ShOff: 0x5000, Flags: EF_RISCV_RVC,
		EhSize: EhdrSize, PhEntSize: PhdrSize, PhNum: 3,
		ShEntSize: ShdrSize, ShNum: 10, ShStrndx: 0,
	}
	want.Ident[EI_MAG0], want.Ident[EI_MAG1], want.Ident[EI_MAG2], want.Ident[EI_MAG3] =
		elfMagic[0], elfMagic[1], elfMagic[2], elfMagic[3]
	want.Ident[EI_CLASS] = ELFCLASS64
	want.Ident[EI_DATA] = ELFDATA2LSB

	got, err := DecodeEhdr(want.Encode())
	if err != nil {
		t.Fatalf("DecodeEhdr: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestDecodeEhdrRejectsBadMagic(t *testing.T) {
	b := make([]byte, EhdrSize)
	if _, err := DecodeEhdr(b); err == nil {
		t.Fatal("expected error for all-zero header")
	}
}

func TestShdrRoundTrip(t *testing.T) {
	want := Shdr{
		Name: 5, Type: SHT_PROGBITS, Flags: SHF_ALLOC | SHF_EXECINSTR,
		Addr: 0x200000, Offset: 0x1000, Size: 0x40,
		Link: 0, Info: 0, AddrAlign: 16, EntSize: 0,
	}
	got := DecodeShdr(want.Encode())
	if got != want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestPhdrEncodeLayout(t *testing.T) {
	p := Phdr{Type: PT_LOAD, Flags: PF_R | PF_X, Offset: 0, VAddr: 0x200000, PAddr: 0x200000, FileSize: 0x100, MemSize: 0x100, Align: PageSize}
	b := p.Encode()
	if len(b) != PhdrSize {
		t.Fatalf("Encode length = %d, want %d", len(b), PhdrSize)
	}
}

func TestSymRoundTrip(t *testing.T) {
	want := Sym{Name: 3, Info: StInfo(STB_GLOBAL, STT_FUNC), Other: 0, Shndx: 1, Val: 0x10, Size: 4}
	got := DecodeSym(want.Encode())
	if got != want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestRelaAccessors(t *testing.T) {
	r := Rela{Offset: 8, Info: (uint64(42) << 32) | uint64(R_RISCV_CALL), Addend: -4}
	if r.Sym() != 42 {
		t.Errorf("Sym() = %d, want 42", r.Sym())
	}
	if r.Type() != R_RISCV_CALL {
		t.Errorf("Type() = %d, want %d", r.Type(), R_RISCV_CALL)
	}
}

func TestAlignTo(t *testing.T) {
	cases := []struct{ off, align, want uint64 }{
		{0, 16, 0}, {1, 16, 16}, {16, 16, 16}, {17, 16, 32}, {5, 0, 5}, {5, 1, 5},
	}
	for _, c := range cases {
		if got := AlignTo(c.off, c.align); got != c.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", c.off, c.align, got, c.want)
		}
	}
}

func TestStBindStTypeStInfo(t *testing.T) {
	info := StInfo(STB_WEAK, STT_OBJECT)
	if StBind(info) != STB_WEAK {
		t.Errorf("StBind = %d, want %d", StBind(info), STB_WEAK)
	}
	if StType(info) != STT_OBJECT {
		t.Errorf("StType = %d, want %d", StType(info), STT_OBJECT)
	}
}
