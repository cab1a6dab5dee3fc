package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testSection describes one input section for buildObject.
type testSection struct {
	name      string
	shType    uint32
	flags     uint64
	data      []byte // nil for SHT_NOBITS
	addrAlign uint64
	entSize   uint64
}

// testSym describes one symbol table entry for buildObject. section, when
// non-empty, resolves to that section's index once sections are laid out;
// shndx carries an explicit special value (SHN_UNDEF/SHN_ABS/SHN_COMMON)
// when section is empty.
type testSym struct {
	name    string
	bind    uint8
	typ     uint8
	section string
	shndx   uint16
	val     uint64
	size    uint64
}

// testRela describes one relocation entry, targeting a named section and a
// named symbol.
type testRela struct {
	target  string
	offset  uint64
	symName string
	rtype   uint32
	addend  int64
}

// buildObject assembles a minimal but complete ET_REL RISC-V object file
// byte-for-byte out of the spec's own codec (elf_types.go), so the
// integration tests below exercise ParseObjectfile exactly the way a real
// compiler-emitted .o would be read.
// buildObject lays out sections and the symbol table so that symtab index
// 1..numLocals are local symbols and the rest are global, matching
// ParseObjectfile's FirstGlobal convention.
func buildObject(t *testing.T, sections []testSection, syms []testSym, numLocals int, relas []testRela) []byte {
	t.Helper()

	// Names needed in the section-header string table: every user section,
	// plus the synthetic .symtab/.strtab/.shstrtab and one .rela.<name> per
	// section that has relocations.
	secIndex := map[string]int{} // name -> section header index
	relaSections := map[string][]testRela{}
	for _, r := range relas {
		relaSections[r.target] = append(relaSections[r.target], r)
	}

	var shstrtab []byte
	shstrtab = append(shstrtab, 0)
	shstrOff := map[string]uint32{}
	addShstr := func(name string) uint32 {
		if off, ok := shstrOff[name]; ok {
			return off
		}
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(name)...)
		shstrtab = append(shstrtab, 0)
		shstrOff[name] = off
		return off
	}

	var strtab []byte
	strtab = append(strtab, 0)
	strOff := map[string]uint32{}
	addStr := func(name string) uint32 {
		if name == "" {
			return 0
		}
		if off, ok := strOff[name]; ok {
			return off
		}
		off := uint32(len(strtab))
		strtab = append(strtab, []byte(name)...)
		strtab = append(strtab, 0)
		strOff[name] = off
		return off
	}

	// Section header index assignment: 0 = NULL, then user sections in
	// order, then one .rela.<name> per relocated section, then .symtab,
	// .strtab, .shstrtab.
	shdrs := []Shdr{{}} // index 0: NULL
	var dataBlocks [][]byte
	dataBlocks = append(dataBlocks, nil)

	for _, s := range sections {
		idx := len(shdrs)
		secIndex[s.name] = idx
		addShstr(s.name)
		shdrs = append(shdrs, Shdr{Type: s.shType, Flags: s.flags, AddrAlign: s.addrAlign, EntSize: s.entSize, Size: uint64(len(s.data))})
		dataBlocks = append(dataBlocks, s.data)
	}

	relaSecIndex := map[string]int{}
	for _, s := range sections {
		rs, ok := relaSections[s.name]
		if !ok {
			continue
		}
		relaName := ".rela" + s.name
		idx := len(shdrs)
		relaSecIndex[s.name] = idx
		addShstr(relaName)
		var buf []byte
		for _, r := range rs {
			symIdx := symIndexOf(syms, r.symName)
			rel := Rela{Offset: r.offset, Info: RelaInfo(uint32(symIdx), r.rtype), Addend: r.addend}
			buf = append(buf, rel.Encode()...)
		}
		shdrs = append(shdrs, Shdr{Type: SHT_RELA, Flags: 0, EntSize: RelaSize, Size: uint64(len(buf)), Info: uint32(secIndex[s.name])})
		dataBlocks = append(dataBlocks, buf)
	}

	// symtab + strtab
	symtabIdx := len(shdrs)
	addShstr(".symtab")
	var symBuf []byte
	symBuf = append(symBuf, Sym{}.Encode()...) // index 0 sentinel
	for _, sy := range syms {
		shndx := sy.shndx
		if sy.section != "" {
			shndx = uint16(secIndex[sy.section])
		}
		s := Sym{Name: addStr(sy.name), Info: StInfo(sy.bind, sy.typ), Shndx: shndx, Val: sy.val, Size: sy.size}
		symBuf = append(symBuf, s.Encode()...)
	}
	shdrs = append(shdrs, Shdr{}) // placeholder, filled after strtab idx known
	dataBlocks = append(dataBlocks, symBuf)

	strtabIdx := len(shdrs)
	addShstr(".strtab")
	shdrs = append(shdrs, Shdr{Type: SHT_STRTAB, Size: uint64(len(strtab))})
	dataBlocks = append(dataBlocks, strtab)

	shdrs[symtabIdx] = Shdr{Type: SHT_SYMTAB, Link: uint32(strtabIdx), Info: uint32(numLocals + 1), EntSize: SymSize, Size: uint64(len(symBuf))}

	for secName, relaIdx := range relaSecIndex {
		shdrs[relaIdx].Link = uint32(symtabIdx)
		_ = secName
	}

	shstrtabIdx := len(shdrs)
	addShstr(".shstrtab")
	shdrs = append(shdrs, Shdr{Type: SHT_STRTAB, Size: uint64(len(shstrtab))})
	dataBlocks = append(dataBlocks, shstrtab)

	// Now that every name is known, set each Shdr.Name.
	shdrs[0].Name = 0
	for _, s := range sections {
		shdrs[secIndex[s.name]].Name = shstrOff[s.name]
	}
	for secName, relaIdx := range relaSecIndex {
		shdrs[relaIdx].Name = shstrOff[".rela"+secName]
	}
	shdrs[symtabIdx].Name = shstrOff[".symtab"]
	shdrs[strtabIdx].Name = shstrOff[".strtab"]
	shdrs[shstrtabIdx].Name = shstrOff[".shstrtab"]

	// Lay out the file: Ehdr, then every section's raw bytes back to back
	// (8-byte aligned), then the section header table.
	buf := make([]byte, EhdrSize)
	for i := 1; i < len(shdrs); i++ {
		if shdrs[i].Type == SHT_NOBITS {
			shdrs[i].Offset = uint64(len(buf))
			continue
		}
		for uint64(len(buf))%8 != 0 {
			buf = append(buf, 0)
		}
		shdrs[i].Offset = uint64(len(buf))
		buf = append(buf, dataBlocks[i]...)
	}
	for uint64(len(buf))%8 != 0 {
		buf = append(buf, 0)
	}
	shOff := uint64(len(buf))
	for _, s := range shdrs {
		buf = append(buf, s.Encode()...)
	}

	ehdr := Ehdr{
		Type: ET_REL, Machine: EM_RISCV, Version: EV_CURRENT,
		ShOff: shOff, EhSize: EhdrSize, ShEntSize: ShdrSize,
		ShNum: uint16(len(shdrs)), ShStrndx: uint16(shstrtabIdx),
	}
	ehdr.Ident[EI_MAG0], ehdr.Ident[EI_MAG1], ehdr.Ident[EI_MAG2], ehdr.Ident[EI_MAG3] =
		elfMagic[0], elfMagic[1], elfMagic[2], elfMagic[3]
	ehdr.Ident[EI_CLASS] = ELFCLASS64
	ehdr.Ident[EI_DATA] = ELFDATA2LSB
	ehdr.Ident[EI_VERSION] = EV_CURRENT
	copy(buf[0:EhdrSize], ehdr.Encode())

	return buf
}

func symIndexOf(syms []testSym, name string) int {
	for i, s := range syms {
		if s.name == name {
			return i + 1 // +1 for the sentinel at index 0
		}
	}
	return 0
}

func linkObjects(t *testing.T, objBytes ...[]byte) (*Context, string) {
	t.Helper()
	dir := t.TempDir()
	var inputs []string
	for i, b := range objBytes {
		p := filepath.Join(dir, "obj"+string(rune('0'+i))+".o")
		require.NoError(t, os.WriteFile(p, b, 0644))
		inputs = append(inputs, p)
	}
	out := filepath.Join(dir, "a.out")
	cfg := LinkConfig{Output: out, Emulation: "elf64lriscv", Inputs: inputs}
	ctx := NewContext(cfg)
	require.NoError(t, loadInputs(ctx))
	ResolvePasses(ctx)
	ScanRelocations(ctx)
	BinSections(ctx)
	ComputeSectionSizes(ctx)
	ComputeMergedSectionSizes(ctx)
	CreateSyntheticSections(ctx)
	CollectOutputSections(ctx)
	SortOutputSections(ctx)
	fileSize := SetOutputSectionOffsets(ctx)
	require.NoError(t, WriteOutput(ctx, out, fileSize))
	return ctx, out
}

// S1: a single object whose _start contains a JAL to a local label 8 bytes
// ahead. The encoded J-immediate must decode back to 8.
func TestLinkSingleObjectLocalJAL(t *testing.T) {
	text := make([]byte, 12)
	obj := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: text, addrAlign: 4}},
		[]testSym{
			{name: "target", bind: STB_LOCAL, typ: STT_NOTYPE, section: ".text", val: 8},
			{name: "_start", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0},
		},
		1,
		[]testRela{{target: ".text", offset: 0, symName: "target", rtype: R_RISCV_JAL}},
	)

	ctx, out := linkObjects(t, obj)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, data[0:4])

	ehdr, err := DecodeEhdr(data)
	require.NoError(t, err)
	require.EqualValues(t, ET_EXEC, ehdr.Type)
	require.Equal(t, ImageBase, int(ehdr.Entry)&^0xFFF) // entry lands in the first page past ImageBase's section alignment

	textOsec := findOutputSection(ctx, ".text")
	require.NotNil(t, textOsec)
	word := binary.LittleEndian.Uint32(data[textOsec.Shdr.Offset:])
	imm := decodeJImm(word)
	require.Equal(t, uint32(8), imm)
}

// S2: two objects — a.o defines foo, b.o references foo via CALL. Both must
// stay alive and the U+I pair must decode to foo_addr - call_site_addr.
func TestLinkCrossObjectCallResolution(t *testing.T) {
	aText := make([]byte, 4)
	a := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: aText, addrAlign: 4}},
		[]testSym{{name: "foo", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0}},
		0, nil,
	)

	bText := make([]byte, 8)
	b := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: bText, addrAlign: 4}},
		[]testSym{
			{name: "foo", bind: STB_GLOBAL, typ: STT_NOTYPE, shndx: SHN_UNDEF},
			{name: "_start", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0},
		},
		0,
		[]testRela{{target: ".text", offset: 0, symName: "foo", rtype: R_RISCV_CALL}},
	)

	ctx, out := linkObjects(t, a, b)
	require.Len(t, ctx.Objects, 2)
	for _, obj := range ctx.Objects {
		require.True(t, obj.IsAlive)
	}

	fooSym := ctx.SymbolMap["foo"]
	require.NotNil(t, fooSym)
	require.NotNil(t, fooSym.File)
	fooAddr := fooSym.GetAddr()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	bTextIsec := findInputSection(ctx, "obj1.o", ".text")
	require.NotNil(t, bTextIsec)
	callSite := bTextIsec.Addr()
	loc := bTextIsec.OutputSection.Shdr.Offset + bTextIsec.Offset

	hi := binary.LittleEndian.Uint32(data[loc:])
	lo := binary.LittleEndian.Uint32(data[loc+4:])
	want := int32(fooAddr - callSite)
	got := int32(decodeUImm(hi)) + decodeIImm(lo)
	require.Equal(t, want, got)
}

// S3: a.o + archive libc.a containing c.o (defines puts, referenced by a.o)
// and d.o (unreferenced). c.o must survive, d.o must not.
func TestLinkArchiveLiveness(t *testing.T) {
	aText := make([]byte, 8)
	a := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: aText, addrAlign: 4}},
		[]testSym{
			{name: "puts", bind: STB_GLOBAL, typ: STT_NOTYPE, shndx: SHN_UNDEF},
			{name: "_start", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0},
		},
		0,
		[]testRela{{target: ".text", offset: 0, symName: "puts", rtype: R_RISCV_CALL}},
	)

	c := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: make([]byte, 4), addrAlign: 4}},
		[]testSym{{name: "puts", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0}},
		0, nil,
	)
	d := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: make([]byte, 4), addrAlign: 4}},
		[]testSym{{name: "unused_fn", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0}},
		0, nil,
	)

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "libc.a")
	require.NoError(t, os.WriteFile(archivePath, buildArchive(t, map[string][]byte{"c.o": c, "d.o": d}), 0644))

	aPath := filepath.Join(dir, "a.o")
	require.NoError(t, os.WriteFile(aPath, a, 0644))
	out := filepath.Join(dir, "a.out")

	cfg := LinkConfig{Output: out, Emulation: "elf64lriscv", Inputs: []string{aPath, archivePath}}
	ctx := NewContext(cfg)
	require.NoError(t, loadInputs(ctx))
	ResolvePasses(ctx)

	var names []string
	for _, obj := range ctx.Objects {
		names = append(names, filepath.Base(obj.Name()))
	}
	require.Contains(t, names, "a.o")
	require.Contains(t, names, "c.o")
	require.NotContains(t, names, "d.o")
}

// S4: two objects each containing an identical mergeable string fragment
// must collapse to one instance in the output.
func TestLinkMergedStringDedup(t *testing.T) {
	str := append([]byte("hello"), 0)
	mk := func() []byte {
		return buildObject(t,
			[]testSection{
				{name: ".rodata.str1.1", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_MERGE | SHF_STRINGS, data: str, addrAlign: 1, entSize: 1},
			},
			[]testSym{{name: "msg", bind: STB_GLOBAL, typ: STT_OBJECT, section: ".rodata.str1.1", val: 0}},
			0, nil,
		)
	}

	ctx, _ := linkObjects(t, mk(), mk())

	require.Len(t, ctx.MergedSections, 1)
	m := ctx.MergedSections[0]
	require.Equal(t, ".rodata.str", m.Name)
	require.Len(t, m.Map, 1, "two identical fragments must dedup to one")

	var msgCount int
	var addrs []uint64
	for name, sym := range ctx.SymbolMap {
		if name == "msg" {
			msgCount++
			addrs = append(addrs, sym.GetAddr())
		}
	}
	require.Equal(t, 1, msgCount, "global symbol map must have a unique 'msg' entry")
	_ = addrs
}

// S5: a tentative (common) definition of a 4-byte global must materialize
// into a .common NOBITS section the symbol's address falls inside of.
func TestLinkCommonSymbolMaterialization(t *testing.T) {
	obj := buildObject(t,
		[]testSection{{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: make([]byte, 4), addrAlign: 4}},
		[]testSym{{name: "x", bind: STB_GLOBAL, typ: STT_OBJECT, shndx: SHN_COMMON, val: 4, size: 4}},
		0, nil,
	)

	ctx, _ := linkObjects(t, obj)

	sym := ctx.SymbolMap["x"]
	require.NotNil(t, sym)
	require.NotNil(t, sym.InputSection)
	require.Equal(t, ".common", sym.InputSection.Name())

	osec := findOutputSection(ctx, ".common")
	require.NotNil(t, osec)
	require.GreaterOrEqual(t, osec.Shdr.Size, uint64(4))

	addr := sym.GetAddr()
	require.GreaterOrEqual(t, addr, osec.Shdr.Addr)
	require.Less(t, addr, osec.Shdr.Addr+osec.Shdr.Size)
}

// S6: a TLS reference via R_RISCV_TLS_GOT_HI20 must produce a PT_TLS
// segment, set ctx.TpAddr to that segment's VAddr, and fill the GOT slot
// with symbol_addr - TpAddr.
func TestLinkTLSGotHi20(t *testing.T) {
	obj := buildObject(t,
		[]testSection{
			{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: make([]byte, 4), addrAlign: 4},
			{name: ".tbss", shType: SHT_NOBITS, flags: SHF_ALLOC | SHF_WRITE | SHF_TLS, data: make([]byte, 4), addrAlign: 4},
		},
		[]testSym{
			{name: "tvar", bind: STB_GLOBAL, typ: STT_TLS, section: ".tbss", val: 0, size: 4},
			{name: "_start", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0},
		},
		0,
		[]testRela{{target: ".text", offset: 0, symName: "tvar", rtype: R_RISCV_TLS_GOT_HI20}},
	)

	ctx, out := linkObjects(t, obj)

	require.NotZero(t, ctx.TpAddr)

	var foundTLS bool
	for _, p := range ctx.Phdr.phdrs {
		if p.Type == PT_TLS {
			foundTLS = true
			require.Equal(t, ctx.TpAddr, p.VAddr)
		}
	}
	require.True(t, foundTLS, "expected a PT_TLS segment")

	sym := ctx.SymbolMap["tvar"]
	require.NotNil(t, sym)
	require.GreaterOrEqual(t, sym.GotTpIdx, 0, "tvar should have been assigned a GOT slot")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	gotOff := ctx.Got.Shdr.Offset + uint64(sym.GotTpIdx)*8
	gotVal := binary.LittleEndian.Uint64(data[gotOff:])
	want := sym.GetAddr() - ctx.TpAddr
	require.Equal(t, want, gotVal)
}

// Every chunk's file offset and (for alloc chunks) address must respect its
// own alignment (spec.md §8 invariant 3).
func TestLinkChunkAlignmentInvariant(t *testing.T) {
	obj := buildObject(t,
		[]testSection{
			{name: ".text", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR, data: make([]byte, 4), addrAlign: 4},
			{name: ".data", shType: SHT_PROGBITS, flags: SHF_ALLOC | SHF_WRITE, data: make([]byte, 8), addrAlign: 8},
		},
		[]testSym{{name: "_start", bind: STB_GLOBAL, typ: STT_FUNC, section: ".text", val: 0}},
		0, nil,
	)
	ctx, _ := linkObjects(t, obj)

	for _, c := range ctx.Chunks {
		if c.Shdr.AddrAlign > 0 {
			require.Zero(t, c.Shdr.Offset%c.Shdr.AddrAlign, "chunk %v offset not aligned", c.Kind)
			if c.Shdr.Flags&SHF_ALLOC != 0 {
				require.Zero(t, c.Shdr.Addr%c.Shdr.AddrAlign, "chunk %v addr not aligned", c.Kind)
			}
		}
	}
}

func findOutputSection(ctx *Context, name string) *OutputSection {
	for _, osec := range ctx.OutputSections {
		if osec.Name == name && len(osec.Members) > 0 {
			return osec
		}
	}
	return nil
}

func findInputSection(ctx *Context, objBaseName, sectionName string) *InputSection {
	for _, obj := range ctx.Objects {
		if filepath.Base(obj.Name()) != objBaseName {
			continue
		}
		for _, isec := range obj.Sections {
			if isec != nil && isec.Name() == sectionName {
				return isec
			}
		}
	}
	return nil
}

func decodeJImm(w uint32) uint32 {
	bit20 := (w >> 31) & 1
	bits10_1 := (w >> 21) & 0x3FF
	bit11 := (w >> 20) & 1
	bits19_12 := (w >> 12) & 0xFF
	v := (bit20 << 20) | (bits19_12 << 12) | (bit11 << 11) | (bits10_1 << 1)
	return v
}

func decodeUImm(w uint32) uint32 { return w & 0xFFFFF000 }

// decodeIImm extracts and sign-extends an I-type instruction's imm[11:0]
// field, inverting itypeImm for test verification.
func decodeIImm(w uint32) int32 { return int32(signExtend(uint64(w>>20), 11)) }

// buildArchive packs named members into a minimal !<arch>\n archive, in
// map-iteration order made deterministic by sorting the names.
func buildArchive(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var names []string
	for n := range members {
		names = append(names, n)
	}
	// deterministic order
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	buf := append([]byte{}, arMagic...)
	for _, name := range names {
		data := members[name]
		var hdr [60]byte
		copy(hdr[0:16], padRight(name+"/", 16))
		copy(hdr[16:28], padRight("0", 12))
		copy(hdr[28:34], padRight("0", 6))
		copy(hdr[34:40], padRight("0", 6))
		copy(hdr[40:48], padRight("644", 8))
		copy(hdr[48:58], padRight(itoa(len(data)), 10))
		hdr[58], hdr[59] = 0x60, 0x0A
		buf = append(buf, hdr[:]...)
		buf = append(buf, data...)
		if len(data)%2 == 1 {
			buf = append(buf, 0)
		}
	}
	return buf
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
