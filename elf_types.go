package main

import "encoding/binary"

// ELF64 fixed-layout record sizes, in bytes.
const (
	EhdrSize = 64
	ShdrSize = 64
	PhdrSize = 56
	SymSize  = 24
	RelaSize = 24
)

// e_ident indices.
const (
	EI_MAG0       = 0
	EI_MAG1       = 1
	EI_MAG2       = 2
	EI_MAG3       = 3
	EI_CLASS      = 4
	EI_DATA       = 5
	EI_VERSION    = 6
	EI_OSABI      = 7
	EI_ABIVERSION = 8
)

var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// ELF classes and data encodings.
const (
	ELFCLASSNONE = 0
	ELFCLASS32   = 1
	ELFCLASS64   = 2

	ELFDATANONE = 0
	ELFDATA2LSB = 1
	ELFDATA2MSB = 2

	EV_CURRENT = 1
)

// e_type.
const (
	ET_NONE = 0
	ET_REL  = 1
	ET_EXEC = 2
	ET_DYN  = 3
	ET_CORE = 4
)

// e_machine.
const EM_RISCV = 243

// sh_type.
const (
	SHT_NULL          = 0
	SHT_PROGBITS      = 1
	SHT_SYMTAB        = 2
	SHT_STRTAB        = 3
	SHT_RELA          = 4
	SHT_HASH          = 5
	SHT_DYNAMIC       = 6
	SHT_NOTE          = 7
	SHT_NOBITS        = 8
	SHT_REL           = 9
	SHT_SHLIB         = 10
	SHT_DYNSYM        = 11
	SHT_INIT_ARRAY    = 14
	SHT_FINI_ARRAY    = 15
	SHT_PREINIT_ARRAY = 16
	SHT_GROUP         = 17
	SHT_SYMTAB_SHNDX  = 18
)

// sh_flags.
const (
	SHF_WRITE     = 1 << 0
	SHF_ALLOC     = 1 << 1
	SHF_EXECINSTR = 1 << 2
	SHF_MERGE     = 1 << 4
	SHF_STRINGS   = 1 << 5
	SHF_INFO_LINK = 1 << 6
	SHF_LINK_ORDER = 1 << 7
	SHF_GROUP     = 1 << 9
	SHF_TLS       = 1 << 10
	SHF_COMPRESSED = 1 << 11
)

// special section indexes.
const (
	SHN_UNDEF  = 0
	SHN_ABS    = 0xfff1
	SHN_COMMON = 0xfff2
	SHN_XINDEX = 0xffff
)

// symbol binding / type (st_info).
const (
	STB_LOCAL  = 0
	STB_GLOBAL = 1
	STB_WEAK   = 2

	STT_NOTYPE  = 0
	STT_OBJECT  = 1
	STT_FUNC    = 2
	STT_SECTION = 3
	STT_FILE    = 4
	STT_COMMON  = 5
	STT_TLS     = 6
)

func StBind(info uint8) uint8 { return info >> 4 }
func StType(info uint8) uint8 { return info & 0xf }
func StInfo(bind, typ uint8) uint8 { return (bind << 4) | (typ & 0xf) }

// program header types and flags.
const (
	PT_NULL = 0
	PT_LOAD = 1
	PT_NOTE = 4
	PT_PHDR = 6
	PT_TLS  = 7

	PF_X = 1 << 0
	PF_W = 1 << 1
	PF_R = 1 << 2
)

const PageSize = 0x1000
const ImageBase = 0x20_0000

// RISC-V relocation kinds (subset spec.md §4.8 requires).
const (
	R_RISCV_NONE          = 0
	R_RISCV_32            = 1
	R_RISCV_64            = 2
	R_RISCV_BRANCH        = 16
	R_RISCV_JAL           = 17
	R_RISCV_CALL          = 18
	R_RISCV_CALL_PLT      = 19
	R_RISCV_PCREL_HI20    = 23
	R_RISCV_PCREL_LO12_I  = 24
	R_RISCV_PCREL_LO12_S  = 25
	R_RISCV_HI20          = 26
	R_RISCV_LO12_I        = 27
	R_RISCV_LO12_S        = 28
	R_RISCV_TPREL_HI20    = 29
	R_RISCV_TPREL_LO12_I  = 30
	R_RISCV_TPREL_LO12_S  = 31
	R_RISCV_RELAX         = 51
	R_RISCV_TLS_GOT_HI20  = 21
)

// EF_RISCV_RVC: toolchain compressed-instruction-set flag carried in Ehdr.Flags.
const EF_RISCV_RVC = 1

// symbol feature flags, tracked outside the ELF wire format.
const (
	NeedsGotTp = 1 << 0
)

// Ehdr mirrors the 64-byte ELF64 file header.
type Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

func DecodeEhdr(b []byte) (Ehdr, error) {
	var e Ehdr
	if len(b) < EhdrSize {
		return e, fatalf("ELF header truncated: need %d bytes, got %d", EhdrSize, len(b))
	}
	copy(e.Ident[:], b[0:16])
	if e.Ident[EI_MAG0] != elfMagic[0] || e.Ident[EI_MAG1] != elfMagic[1] ||
		e.Ident[EI_MAG2] != elfMagic[2] || e.Ident[EI_MAG3] != elfMagic[3] {
		return e, fatalf("bad ELF magic")
	}
	if e.Ident[EI_CLASS] != ELFCLASS64 {
		return e, fatalf("unsupported ELF class %d (only ELFCLASS64 supported)", e.Ident[EI_CLASS])
	}
	if e.Ident[EI_DATA] != ELFDATA2LSB {
		return e, fatalf("unsupported ELF data encoding %d (only little-endian supported)", e.Ident[EI_DATA])
	}
	le := binary.LittleEndian
	e.Type = le.Uint16(b[16:18])
	e.Machine = le.Uint16(b[18:20])
	e.Version = le.Uint32(b[20:24])
	e.Entry = le.Uint64(b[24:32])
	e.PhOff = le.Uint64(b[32:40])
	e.ShOff = le.Uint64(b[40:48])
	e.Flags = le.Uint32(b[48:52])
	e.EhSize = le.Uint16(b[52:54])
	e.PhEntSize = le.Uint16(b[54:56])
	e.PhNum = le.Uint16(b[56:58])
	e.ShEntSize = le.Uint16(b[58:60])
	e.ShNum = le.Uint16(b[60:62])
	e.ShStrndx = le.Uint16(b[62:64])
	return e, nil
}

func (e Ehdr) Encode() []byte {
	b := make([]byte, EhdrSize)
	copy(b[0:16], e.Ident[:])
	le := binary.LittleEndian
	le.PutUint16(b[16:18], e.Type)
	le.PutUint16(b[18:20], e.Machine)
	le.PutUint32(b[20:24], e.Version)
	le.PutUint64(b[24:32], e.Entry)
	le.PutUint64(b[32:40], e.PhOff)
	le.PutUint64(b[40:48], e.ShOff)
	le.PutUint32(b[48:52], e.Flags)
	le.PutUint16(b[52:54], e.EhSize)
	le.PutUint16(b[54:56], e.PhEntSize)
	le.PutUint16(b[56:58], e.PhNum)
	le.PutUint16(b[58:60], e.ShEntSize)
	le.PutUint16(b[60:62], e.ShNum)
	le.PutUint16(b[62:64], e.ShStrndx)
	return b
}

// Shdr mirrors the 64-byte ELF64 section header.
type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

func DecodeShdr(b []byte) Shdr {
	le := binary.LittleEndian
	return Shdr{
		Name:      le.Uint32(b[0:4]),
		Type:      le.Uint32(b[4:8]),
		Flags:     le.Uint64(b[8:16]),
		Addr:      le.Uint64(b[16:24]),
		Offset:    le.Uint64(b[24:32]),
		Size:      le.Uint64(b[32:40]),
		Link:      le.Uint32(b[40:44]),
		Info:      le.Uint32(b[44:48]),
		AddrAlign: le.Uint64(b[48:56]),
		EntSize:   le.Uint64(b[56:64]),
	}
}

func (s Shdr) Encode() []byte {
	b := make([]byte, ShdrSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], s.Name)
	le.PutUint32(b[4:8], s.Type)
	le.PutUint64(b[8:16], s.Flags)
	le.PutUint64(b[16:24], s.Addr)
	le.PutUint64(b[24:32], s.Offset)
	le.PutUint64(b[32:40], s.Size)
	le.PutUint32(b[40:44], s.Link)
	le.PutUint32(b[44:48], s.Info)
	le.PutUint64(b[48:56], s.AddrAlign)
	le.PutUint64(b[56:64], s.EntSize)
	return b
}

// Phdr mirrors the 56-byte ELF64 program header.
type Phdr struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

func (p Phdr) Encode() []byte {
	b := make([]byte, PhdrSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], p.Type)
	le.PutUint32(b[4:8], p.Flags)
	le.PutUint64(b[8:16], p.Offset)
	le.PutUint64(b[16:24], p.VAddr)
	le.PutUint64(b[24:32], p.PAddr)
	le.PutUint64(b[32:40], p.FileSize)
	le.PutUint64(b[40:48], p.MemSize)
	le.PutUint64(b[48:56], p.Align)
	return b
}

// Sym mirrors the 24-byte ELF64 symbol table entry.
type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Val   uint64
	Size  uint64
}

func DecodeSym(b []byte) Sym {
	le := binary.LittleEndian
	return Sym{
		Name:  le.Uint32(b[0:4]),
		Info:  b[4],
		Other: b[5],
		Shndx: le.Uint16(b[6:8]),
		Val:   le.Uint64(b[8:16]),
		Size:  le.Uint64(b[16:24]),
	}
}

func (s Sym) Encode() []byte {
	b := make([]byte, SymSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], s.Name)
	b[4] = s.Info
	b[5] = s.Other
	le.PutUint16(b[6:8], s.Shndx)
	le.PutUint64(b[8:16], s.Val)
	le.PutUint64(b[16:24], s.Size)
	return b
}

// Rela mirrors the 24-byte ELF64 relocation-with-addend entry.
type Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func DecodeRela(b []byte) Rela {
	le := binary.LittleEndian
	return Rela{
		Offset: le.Uint64(b[0:8]),
		Info:   le.Uint64(b[8:16]),
		Addend: int64(le.Uint64(b[16:24])),
	}
}

func (r Rela) Sym() uint32  { return uint32(r.Info >> 32) }
func (r Rela) Type() uint32 { return uint32(r.Info) }

func RelaInfo(sym, typ uint32) uint64 { return uint64(sym)<<32 | uint64(typ) }

func (r Rela) Encode() []byte {
	b := make([]byte, RelaSize)
	le := binary.LittleEndian
	le.PutUint64(b[0:8], r.Offset)
	le.PutUint64(b[8:16], r.Info)
	le.PutUint64(b[16:24], uint64(r.Addend))
	return b
}

// AlignTo rounds off up to a multiple of align (align must be a power of two, or 0/1 for no-op).
func AlignTo(off, align uint64) uint64 {
	if align == 0 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}
