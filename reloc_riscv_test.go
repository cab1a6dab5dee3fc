package main

import "testing"

func TestItypeImmShift(t *testing.T) {
	if got := itypeImm(1); got != 1<<20 {
		t.Errorf("itypeImm(1) = %#x, want %#x", got, uint32(1)<<20)
	}
	if got := itypeImm(0xFFF); got != 0xFFF<<20 {
		t.Errorf("itypeImm(0xFFF) = %#x, want %#x", got, uint32(0xFFF)<<20)
	}
}

func TestStypeImmSplit(t *testing.T) {
	// val = 0b0000_0000_0000_0000_0000_0111_1110_0001 -> imm[11:5]=0b0111111, imm[4:0]=0b00001
	val := uint32(0x7E1)
	got := stypeImm(val)
	wantHi := bitsRange(val, 11, 5) << 25
	wantLo := bitsRange(val, 4, 0) << 7
	if got != wantHi|wantLo {
		t.Errorf("stypeImm(%#x) = %#x, want %#x", val, got, wantHi|wantLo)
	}
}

func TestUtypeImmRounding(t *testing.T) {
	// utype must round the low-12 portion: (v + 0x800) & 0xFFFFF000
	got := utypeImm(0x7FF)
	if got != 0 {
		t.Errorf("utypeImm(0x7FF) = %#x, want 0", got)
	}
	got = utypeImm(0x800)
	if got != 0x1000 {
		t.Errorf("utypeImm(0x800) = %#x, want 0x1000", got)
	}
}

func TestWriteItypePreservesOpcodeRdFunct3Rs1(t *testing.T) {
	// A fictitious I-type instruction: opcode/rd/funct3/rs1 set, imm zero.
	buf := make([]byte, 4)
	writeWord(buf, 0, 0x000FFFFF) // all low-20 bits set, imm cleared
	writeItype(buf, 0, 0x1)
	got := readWord(buf, 0)
	if got&0x000FFFFF != 0x000FFFFF {
		t.Errorf("writeItype clobbered preserved bits: got %#x", got)
	}
	if got>>20 != 1 {
		t.Errorf("writeItype did not set imm: got %#x", got)
	}
}

func TestWriteStypePreservesOpcodeFunct3Rs1Rs2(t *testing.T) {
	buf := make([]byte, 4)
	const preserved = uint32(0x7F) | uint32(0x7)<<12 | uint32(0x1F)<<15 | uint32(0x1F)<<20
	writeWord(buf, 0, preserved)
	writeStype(buf, 0, 0x7FF)
	got := readWord(buf, 0)
	if got&preserved != preserved {
		t.Errorf("writeStype clobbered preserved bits: got %#x, want preserved %#x", got, preserved)
	}
	if got&(0x7F<<25) == 0 || got&(0x1F<<7) == 0 {
		t.Errorf("writeStype did not set immediate bits: got %#x", got)
	}
}

func TestWriteUtypePreservesOpcodeRd(t *testing.T) {
	buf := make([]byte, 4)
	const preserved = uint32(0xFFF) // opcode(7) + rd(5)
	writeWord(buf, 0, preserved)
	writeUtype(buf, 0, 0x12345000)
	got := readWord(buf, 0)
	if got&0xFFF != preserved {
		t.Errorf("writeUtype clobbered opcode/rd: got %#x", got)
	}
	if got&0xFFFFF000 == 0 {
		t.Errorf("writeUtype did not set the immediate field: got %#x", got)
	}
}

func TestSetRs1OnlyTouchesRs1Field(t *testing.T) {
	buf := make([]byte, 4)
	writeWord(buf, 0, 0xFFFFFFFF)
	setRs1(buf, 0, 0)
	got := readWord(buf, 0)
	if got&(0x1F<<15) != 0 {
		t.Errorf("setRs1(0) left rs1 bits set: got %#x", got)
	}
	if got|^uint32(0x1F<<15) != 0xFFFFFFFF {
		t.Errorf("setRs1 touched bits outside rs1: got %#x", got)
	}
}
