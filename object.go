package main

// Objectfile wraps a parsed InputFile with the link-time state built on top
// of it: the per-section InputSection wrappers, the per-symbol Symbol
// bindings, and the mergeable-section split view (spec.md §3 Data Model,
// §4.3 object parsing).
type Objectfile struct {
	inputFile *InputFile
	IsAlive   bool
	IsInArchive bool

	Sections []*InputSection

	// auxSections holds sections synthesized at link time (.common,
	// .tls_common — spec.md §4.5 pass 4), appended past the object's
	// originally-parsed section table.
	auxSections []*InputSection

	// Symbols holds one entry per symtab row (including the sentinel at
	// index 0); locals own their *Symbol, globals alias the shared
	// ctx.SymbolMap entry.
	Symbols []*Symbol

	Mergeable map[int]*MergeableSection
}

func (o *Objectfile) Name() string { return o.inputFile.File.Name }

// GetShndx resolves a symbol table entry's effective section index,
// reinterpreting SHN_XINDEX through the object's SHT_SYMTAB_SHNDX array
// (spec.md §4.3).
func GetShndx(esym Sym, symIdx int, inf *InputFile) uint32 {
	if esym.Shndx == SHN_XINDEX {
		if symIdx < len(inf.SymtabShndxSec) {
			return inf.SymtabShndxSec[symIdx]
		}
		return 0
	}
	return uint32(esym.Shndx)
}

// ParseObjectfile decodes f into an Objectfile: the section header table,
// the symbol table, and the mergeable-section split, per spec.md §4.3's
// fixed parsing order (sections before symbols, so symbol section
// references can resolve against already-built InputSections).
func ParseObjectfile(ctx *Context, f *File) (*Objectfile, error) {
	inf, err := ParseInputFile(f)
	if err != nil {
		return nil, err
	}

	symtabIdx := inf.findSection(SHT_SYMTAB)
	shndxIdx := inf.findSection(SHT_SYMTAB_SHNDX)
	if shndxIdx >= 0 {
		b, err := inf.bytesFromShdr(inf.Sections[shndxIdx])
		if err != nil {
			return nil, err
		}
		n := len(b) / 4
		inf.SymtabShndxSec = make([]uint32, n)
		for i := 0; i < n; i++ {
			inf.SymtabShndxSec[i] = leUint32(b[i*4:])
		}
	}

	if symtabIdx >= 0 {
		symtabShdr := inf.Sections[symtabIdx]
		b, err := inf.bytesFromShdr(symtabShdr)
		if err != nil {
			return nil, err
		}
		n := len(b) / SymSize
		inf.ElfSyms = make([]Sym, n)
		for i := 0; i < n; i++ {
			inf.ElfSyms[i] = DecodeSym(b[i*SymSize:])
		}
		inf.FirstGlobal = symtabShdr.Info
		strtab, err := inf.bytesFromShdr(inf.Sections[symtabShdr.Link])
		if err != nil {
			return nil, err
		}
		inf.SymStrtab = strtab
	}

	obj := &Objectfile{inputFile: inf, Mergeable: make(map[int]*MergeableSection)}

	// Section init (spec.md §4.3 step 2): skip section kinds that are never
	// themselves input sections bound into output sections; record each
	// SHT_RELA section's target (Info) so the target InputSection can find
	// its relocation list back.
	relSecFor := make(map[int]int)
	for i, s := range inf.Sections {
		if s.Type == SHT_RELA {
			relSecFor[int(s.Info)] = i
		}
	}

	obj.Sections = make([]*InputSection, len(inf.Sections))
	for i, s := range inf.Sections {
		switch s.Type {
		case SHT_NULL, SHT_GROUP, SHT_SYMTAB, SHT_STRTAB, SHT_REL, SHT_RELA, SHT_SYMTAB_SHNDX:
			continue
		}
		name := inf.sectionName(s)
		relIdx, hasRel := relSecFor[i]
		if !hasRel {
			relIdx = -1
		}
		isec := &InputSection{
			File:      obj,
			Shndx:     i,
			name:      name,
			IsAlive:   true,
			ShSize:    s.Size,
			P2Align:   p2AlignFromShdr(s),
			RelSecIdx: relIdx,
		}
		if s.Flags&SHF_MERGE == 0 {
			isec.OutputSection = GetOutputSection(ctx, name, s.Type, s.Flags)
		}
		obj.Sections[i] = isec
	}

	// Symbol init (spec.md §4.3 step 3). Index 0 is the ELF sentinel; per
	// spec.md §9 Open Questions it gets an explicit placeholder Symbol
	// rather than a nil hole, so Symbols[i] stays index-aligned with
	// ElfSyms[i] everywhere.
	obj.Symbols = make([]*Symbol, len(inf.ElfSyms))
	if len(obj.Symbols) > 0 {
		obj.Symbols[0] = newSymbol("")
	}
	for i := 1; i < int(inf.FirstGlobal) && i < len(inf.ElfSyms); i++ {
		esym := inf.ElfSyms[i]
		name := cstr(inf.SymStrtab, esym.Name)
		sym := newSymbol(name)
		sym.SymIdx = i
		sym.File = obj
		sym.Value = esym.Val

		shndx := GetShndx(esym, i, inf)
		switch shndx {
		case SHN_UNDEF:
			return nil, fatalf("%s: local symbol %q is undefined", obj.Name(), name)
		case SHN_ABS:
			sym.IsAbs = true
		case SHN_COMMON:
			return nil, fatalf("%s: local symbol %q cannot be common", obj.Name(), name)
		default:
			if int(shndx) < len(obj.Sections) && obj.Sections[shndx] != nil {
				sym.SetInputSection(obj.Sections[shndx])
			}
		}
		obj.Symbols[i] = sym
	}
	for i := int(inf.FirstGlobal); i < len(inf.ElfSyms); i++ {
		esym := inf.ElfSyms[i]
		name := cstr(inf.SymStrtab, esym.Name)
		sym := GetSymbolByName(ctx, name)
		sym.SymIdx = i
		obj.Symbols[i] = sym
	}

	// Mergeable-section split (spec.md §4.3 step 4): an alive SHF_MERGE
	// section is removed from normal output-section binning and replaced
	// by its per-fragment split view; binding happens later, once
	// liveness is known, in RegisterSectionPieces.
	for i, s := range inf.Sections {
		if s.Flags&SHF_MERGE == 0 || obj.Sections[i] == nil {
			continue
		}
		isec := obj.Sections[i]
		ms, err := SplitMergeableSection(ctx, isec)
		if err != nil {
			return nil, err
		}
		obj.Mergeable[i] = ms
	}

	return obj, nil
}

func p2AlignFromShdr(s Shdr) uint8 {
	align := s.AddrAlign
	if align == 0 {
		return 0
	}
	var p2 uint8
	for align > 1 {
		align >>= 1
		p2++
	}
	return p2
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
