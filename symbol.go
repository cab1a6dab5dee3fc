package main

// Symbol is a process-wide unique entity keyed by name (spec.md §3 Data
// Model). At most one of InputSection / Fragment is set; both unset means
// undefined, absolute, or not-yet-resolved common.
type Symbol struct {
	Name string

	File          *Objectfile
	InputSection  *InputSection
	Fragment      *SectionFragment
	Value         uint64
	SymIdx        int
	IsAbs         bool
	CommonPending bool // not set by any pass; common symbols are found via their SHN_COMMON index

	Flags    uint32
	GotTpIdx int // -1 until assigned a TLS GOT slot
}

func newSymbol(name string) *Symbol {
	return &Symbol{Name: name, GotTpIdx: -1}
}

// SetInputSection binds the symbol to an input section, clearing any
// previous fragment binding (mutually exclusive per spec.md §3).
func (s *Symbol) SetInputSection(isec *InputSection) {
	s.InputSection = isec
	s.Fragment = nil
}

// SetFragment binds the symbol to a merged-section fragment.
func (s *Symbol) SetFragment(frag *SectionFragment) {
	s.Fragment = frag
	s.InputSection = nil
}

// GetAddr computes the symbol's final virtual address (spec.md §4.9).
func (s *Symbol) GetAddr() uint64 {
	if s.Fragment != nil {
		return s.Fragment.GetAddr() + s.Value
	}
	if s.InputSection != nil {
		return s.InputSection.Addr() + s.Value
	}
	return s.Value
}

// GetGotTpAddr returns the address of this symbol's slot in the TLS GOT.
func (s *Symbol) GetGotTpAddr(ctx *Context) uint64 {
	return ctx.Got.Shdr.Addr + uint64(s.GotTpIdx)*8
}

// IsDefined reports whether the symbol currently has a definer.
func (s *Symbol) IsDefined() bool { return s.File != nil }

// FileAlive reports whether the symbol's definer is a live object.
func (s *Symbol) FileAlive() bool { return s.File != nil && s.File.IsAlive }

// ElfSym returns the raw ELF symbol table entry for this symbol's
// definition, from the definer's own symbol table.
func (s *Symbol) ElfSym() Sym {
	return s.File.inputFile.ElfSyms[s.SymIdx]
}

// GetSymbolByName returns the shared global Symbol for name, creating it on
// first reference (spec.md §4.3 step 3).
func GetSymbolByName(ctx *Context, name string) *Symbol {
	if sym, ok := ctx.SymbolMap[name]; ok {
		return sym
	}
	sym := newSymbol(name)
	ctx.SymbolMap[name] = sym
	return sym
}
