package main

import "encoding/binary"

func bit(v uint32, n uint) uint32 { return (v >> n) & 1 }

func bitsRange(v uint32, hi, lo uint) uint32 {
	return (v >> lo) & ((1 << (hi - lo + 1)) - 1)
}

// Immediate encoders (spec.md §4.8): each takes the raw value to encode and
// returns only the bits that land in its instruction format's immediate
// field; callers mask the destination word before OR-ing these in.
func itypeImm(v uint32) uint32 { return v << 20 }
func stypeImm(v uint32) uint32 {
	return (bitsRange(v, 11, 5) << 25) | (bitsRange(v, 4, 0) << 7)
}
func btypeImm(v uint32) uint32 {
	return (bit(v, 12) << 31) | (bitsRange(v, 10, 5) << 25) | (bitsRange(v, 4, 1) << 8) | (bit(v, 11) << 7)
}
func utypeImm(v uint32) uint32 { return (v + 0x800) & 0xFFFFF000 }
func jtypeImm(v uint32) uint32 {
	return (bit(v, 20) << 31) | (bitsRange(v, 10, 1) << 21) | (bit(v, 11) << 20) | (bitsRange(v, 19, 12) << 12)
}

func readWord(buf []byte, loc uint64) uint32  { return binary.LittleEndian.Uint32(buf[loc:]) }
func writeWord(buf []byte, loc uint64, w uint32) { binary.LittleEndian.PutUint32(buf[loc:], w) }

// writeItype patches an I-type instruction's imm[11:0] field, preserving
// opcode/rd/funct3/rs1 (bits 0-19). SPEC_FULL.md supplemented feature 6:
// this uses itype(v), correcting original_source/gotsection.rs's
// transcription bug of calling stype(v) here instead.
func writeItype(buf []byte, loc uint64, val uint32) {
	writeWord(buf, loc, (readWord(buf, loc)&0x000FFFFF)|itypeImm(val))
}

const stBtMask = ^uint32(0x7F<<25 | 0x1F<<7)

func writeStype(buf []byte, loc uint64, val uint32) {
	writeWord(buf, loc, (readWord(buf, loc)&stBtMask)|stypeImm(val))
}

func writeBtype(buf []byte, loc uint64, val uint32) {
	writeWord(buf, loc, (readWord(buf, loc)&stBtMask)|btypeImm(val))
}

func writeUtype(buf []byte, loc uint64, val uint32) {
	writeWord(buf, loc, (readWord(buf, loc)&0x00000FFF)|utypeImm(val))
}

func writeJtype(buf []byte, loc uint64, val uint32) {
	writeWord(buf, loc, (readWord(buf, loc)&0x00000FFF)|jtypeImm(val))
}

// setRs1 overwrites an I-/S-type instruction's rs1 field (bits 19:15) — used
// to drop the base register to x0/tp when the low-12 immediate alone
// reproduces the full relocated value (spec.md §4.8).
func setRs1(buf []byte, loc uint64, rs1 uint32) {
	writeWord(buf, loc, (readWord(buf, loc)&^(uint32(0x1F)<<15))|(rs1<<15))
}

// locOffset returns the byte offset into ctx.Buf of relocation r's target,
// within isec's already-assigned output-section slot.
func locOffset(isec *InputSection, r Rela) uint64 {
	return isec.OutputSection.Shdr.Offset + isec.Offset + r.Offset
}

// ScanRelocations registers every symbol targeted by an R_RISCV_TLS_GOT_HI20
// relocation for a GOT slot. It must run after symbol resolution (so
// sym.File is set) and before layout (so the GOT chunk is sized correctly
// before the address cursor runs) — spec.md §4.8, SPEC_FULL.md feature 5.
func ScanRelocations(ctx *Context) {
	for _, obj := range ctx.Objects {
		for _, isec := range obj.Sections {
			if isec == nil || !isec.IsAlive {
				continue
			}
			for _, r := range isec.Rels() {
				sym := symbolForRela(obj, r)
				if sym == nil || sym.File == nil {
					continue
				}
				if r.Type() == R_RISCV_TLS_GOT_HI20 {
					ctx.Got.AddGotTpSymbol(sym)
				}
			}
		}
	}
}

func symbolForRela(obj *Objectfile, r Rela) *Symbol {
	idx := int(r.Sym())
	if idx < 0 || idx >= len(obj.Symbols) {
		return nil
	}
	return obj.Symbols[idx]
}

// ApplyRelocations runs the three-pass relocation scheme of spec.md §4.8
// against isec's already-copied raw bytes. The three passes must not be
// collapsed (spec.md §9 design notes): PCREL_LO12 relocations in pass 2
// read a raw offset pass 1 stored at the matching PCREL_HI20 location, and
// pass 3 re-encodes that same location as a U-type instruction only once
// every PCREL_LO12 reader has consumed the raw form.
func ApplyRelocations(ctx *Context, isec *InputSection) {
	shdr := isec.shdr()
	if shdr.Flags&SHF_ALLOC == 0 || shdr.Type == SHT_NOBITS {
		return
	}
	rels := isec.Rels()
	if len(rels) == 0 {
		return
	}
	obj := isec.File
	buf := ctx.Buf

	for _, r := range rels {
		switch r.Type() {
		case R_RISCV_NONE, R_RISCV_RELAX, R_RISCV_PCREL_LO12_I, R_RISCV_PCREL_LO12_S:
			continue
		}
		sym := symbolForRela(obj, r)
		if sym == nil || sym.File == nil {
			continue
		}

		S := sym.GetAddr()
		A := uint64(r.Addend)
		P := isec.Addr() + r.Offset
		loc := locOffset(isec, r)

		switch r.Type() {
		case R_RISCV_32:
			writeWord(buf, loc, uint32(S+A))
		case R_RISCV_64:
			binary.LittleEndian.PutUint64(buf[loc:], S+A)
		case R_RISCV_BRANCH:
			writeBtype(buf, loc, uint32(S+A-P))
		case R_RISCV_JAL:
			writeJtype(buf, loc, uint32(S+A-P))
		case R_RISCV_CALL, R_RISCV_CALL_PLT:
			val := uint32(S + A - P)
			writeUtype(buf, loc, val)
			writeItype(buf, loc+4, val)
		case R_RISCV_TLS_GOT_HI20:
			writeWord(buf, loc, uint32(sym.GetGotTpAddr(ctx)+A-P))
		case R_RISCV_PCREL_HI20:
			writeWord(buf, loc, uint32(S+A-P))
		case R_RISCV_HI20:
			writeUtype(buf, loc, uint32(S+A))
		case R_RISCV_LO12_I, R_RISCV_LO12_S:
			val := S + A
			if r.Type() == R_RISCV_LO12_I {
				writeItype(buf, loc, uint32(val))
			} else {
				writeStype(buf, loc, uint32(val))
			}
			if signExtend(val, 11) == val {
				setRs1(buf, loc, 0)
			}
		case R_RISCV_TPREL_LO12_I, R_RISCV_TPREL_LO12_S:
			val := S + A - ctx.TpAddr
			if r.Type() == R_RISCV_TPREL_LO12_I {
				writeItype(buf, loc, uint32(val))
			} else {
				writeStype(buf, loc, uint32(val))
			}
			if signExtend(val, 11) == val {
				setRs1(buf, loc, 4)
			}
		}
	}

	for _, r := range rels {
		if r.Type() != R_RISCV_PCREL_LO12_I && r.Type() != R_RISCV_PCREL_LO12_S {
			continue
		}
		sym := symbolForRela(obj, r)
		if sym == nil || sym.File == nil {
			continue
		}
		hi20Loc := isec.OutputSection.Shdr.Offset + isec.Offset + sym.Value
		val := readWord(buf, hi20Loc)
		loc := locOffset(isec, r)
		if r.Type() == R_RISCV_PCREL_LO12_I {
			writeItype(buf, loc, val)
		} else {
			writeStype(buf, loc, val)
		}
	}

	for _, r := range rels {
		if r.Type() != R_RISCV_PCREL_HI20 && r.Type() != R_RISCV_TLS_GOT_HI20 {
			continue
		}
		loc := locOffset(isec, r)
		val := readWord(buf, loc)
		writeUtype(buf, loc, val)
	}
}

// GetEntryAddr returns the `.text` output section's address, or 0 if none
// (spec.md §4.9).
func GetEntryAddr(ctx *Context) uint64 {
	for _, osec := range ctx.OutputSections {
		if osec.Name == ".text" && len(osec.Members) > 0 {
			return osec.Shdr.Addr
		}
	}
	return 0
}

// GetFlags ORs every surviving object's Ehdr flags, forcing EF_RISCV_RVC if
// any object sets it (spec.md §4.9).
func GetFlags(ctx *Context) uint32 {
	var flags uint32
	var rvc bool
	for _, obj := range ctx.Objects {
		flags |= obj.inputFile.Ehdr.Flags
		if obj.inputFile.Ehdr.Flags&EF_RISCV_RVC != 0 {
			rvc = true
		}
	}
	if rvc {
		flags |= EF_RISCV_RVC
	}
	return flags
}
