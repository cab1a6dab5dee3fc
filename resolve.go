package main

// ResolveSymbols claims each object's global definitions against the
// shared symbol map: the first object to present a section-backed or
// absolute definition for a name wins (spec.md §4.5 pass 1).
func ResolveSymbols(ctx *Context) {
	for _, obj := range ctx.Objects {
		inf := obj.inputFile
		for i := int(inf.FirstGlobal); i < len(inf.ElfSyms); i++ {
			esym := inf.ElfSyms[i]
			shndx := GetShndx(esym, i, inf)
			if shndx == SHN_UNDEF || shndx == SHN_COMMON {
				continue
			}
			sym := obj.Symbols[i]
			if sym.IsDefined() {
				continue
			}
			sym.File = obj
			sym.Value = esym.Val
			sym.SymIdx = i
			if shndx == SHN_ABS {
				sym.IsAbs = true
				continue
			}
			if int(shndx) < len(obj.Sections) && obj.Sections[shndx] != nil {
				sym.SetInputSection(obj.Sections[shndx])
			}
		}
	}
}

// MarkLiveObjects worklist-propagates liveness from the initially-alive set
// (explicit command-line objects) through undefined-symbol→definer edges
// until a fixed point (spec.md §4.5 pass 2). Termination: #objects is
// finite and activation only ever turns a dead object alive, never back.
func MarkLiveObjects(ctx *Context) {
	var worklist []*Objectfile
	for _, obj := range ctx.Objects {
		if obj.IsAlive {
			worklist = append(worklist, obj)
		}
	}

	for len(worklist) > 0 {
		obj := worklist[0]
		worklist = worklist[1:]

		inf := obj.inputFile
		for i := int(inf.FirstGlobal); i < len(inf.ElfSyms); i++ {
			esym := inf.ElfSyms[i]
			shndx := GetShndx(esym, i, inf)
			if shndx != SHN_UNDEF {
				continue
			}
			sym := obj.Symbols[i]
			if sym.File == nil || sym.File.IsAlive {
				continue
			}
			sym.File.IsAlive = true
			worklist = append(worklist, sym.File)
		}
	}
}

// DropDeadObjects clears SymbolMap entries owned by non-alive files and
// retains only the alive objects (spec.md §4.5 pass 3).
func DropDeadObjects(ctx *Context) {
	for name, sym := range ctx.SymbolMap {
		if sym.File != nil && !sym.File.IsAlive {
			delete(ctx.SymbolMap, name)
		}
	}

	alive := ctx.Objects[:0]
	for _, obj := range ctx.Objects {
		if obj.IsAlive {
			alive = append(alive, obj)
		}
	}
	ctx.Objects = alive
}

// ConvertCommonSymbols synthesizes a `.common`/`.tls_common` NOBITS section
// for every global symbol whose definer resolved it as common, and rebinds
// the symbol to that section at value 0 (spec.md §4.5 pass 4).
func ConvertCommonSymbols(ctx *Context) {
	for _, obj := range ctx.Objects {
		inf := obj.inputFile
		for i := int(inf.FirstGlobal); i < len(inf.ElfSyms); i++ {
			esym := inf.ElfSyms[i]
			shndx := GetShndx(esym, i, inf)
			if shndx != SHN_COMMON {
				continue
			}
			sym := obj.Symbols[i]
			if sym.File != nil && sym.File != obj {
				// Another object already won this name; a later pass could
				// warn here (spec.md §7: first observed definer wins).
				continue
			}
			if sym.File == obj && sym.InputSection != nil {
				continue // already materialized by an earlier duplicate entry
			}

			isTLS := StType(esym.Info) == STT_TLS
			name := ".common"
			flags := uint64(SHF_ALLOC | SHF_WRITE)
			if isTLS {
				name = ".tls_common"
				flags |= SHF_TLS
			}
			align := esym.Val
			if align == 0 {
				align = 1
			}
			shdr := &Shdr{
				Type:      SHT_NOBITS,
				Flags:     flags,
				Size:      esym.Size,
				AddrAlign: align,
			}
			isec := &InputSection{
				File:      obj,
				Shndx:     len(inf.Sections) + len(commonSections(obj)),
				name:      name,
				IsAlive:   true,
				ShSize:    esym.Size,
				P2Align:   p2AlignFromShdr(*shdr),
				RelSecIdx: -1,
				synthShdr: shdr,
			}
			isec.OutputSection = GetOutputSection(ctx, name, SHT_NOBITS, flags)
			obj.auxSections = append(obj.auxSections, isec)

			sym.File = obj
			sym.Value = 0
			sym.SymIdx = i
			sym.SetInputSection(isec)
		}
	}
}

func commonSections(obj *Objectfile) []*InputSection { return obj.auxSections }

// RegisterSectionPieces rebinds every symbol that points into a mergeable
// section onto the fragment containing its value, rebasing the value to an
// offset within that fragment (spec.md §4.5 pass 5).
func RegisterSectionPieces(ctx *Context) {
	for _, obj := range ctx.Objects {
		inf := obj.inputFile
		for shndx, ms := range obj.Mergeable {
			_ = shndx
			for _, frag := range ms.Fragments {
				frag.IsAlive = true
			}
		}
		for i := 1; i < len(obj.Symbols); i++ {
			sym := obj.Symbols[i]
			if sym == nil || sym.File != obj {
				continue
			}
			var esym Sym
			if i < len(inf.ElfSyms) {
				esym = inf.ElfSyms[i]
			}
			shndx := GetShndx(esym, i, inf)
			ms, ok := obj.Mergeable[int(shndx)]
			if !ok {
				continue
			}
			frag, rebased, ok := ms.FragmentAt(uint32(sym.Value))
			if !ok {
				Fatal("%s: %s: symbol value %d is outside any mergeable fragment", obj.Name(), sym.Name, sym.Value)
			}
			sym.Value = uint64(rebased)
			sym.SetFragment(frag)
		}
	}
}

// ResolvePasses runs every symbol-resolution pass in spec.md §4.5's fixed
// order.
func ResolvePasses(ctx *Context) {
	ResolveSymbols(ctx)
	MarkLiveObjects(ctx)
	DropDeadObjects(ctx)
	ConvertCommonSymbols(ctx)
	RegisterSectionPieces(ctx)
}
