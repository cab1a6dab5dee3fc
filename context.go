package main

// LinkConfig carries the parsed CLI surface of spec.md §6 into the core.
type LinkConfig struct {
	Output   string
	Emulation string
	LibDirs  []string
	Inputs   []string // object/archive paths and -l<name> tokens, in order
}

// Context is the link-wide state: parsed objects, the global symbol table,
// output/merged sections, the ordered chunk list, the output buffer, and
// the synthesized-chunk slot pointers (spec.md §3 Data Model). Its
// lifetime spans exactly one link invocation; nothing here survives past
// Link returning.
type Context struct {
	Cfg LinkConfig

	Objects   []*Objectfile
	SymbolMap map[string]*Symbol

	OutputSections []*OutputSection
	MergedSections []*MergedSection

	Chunks []*Chunk
	Buf    []byte

	Ehdr      *Chunk
	Phdr      *Chunk
	ShdrTable *Chunk
	Got       *GotSection

	TpAddr uint64
}

func NewContext(cfg LinkConfig) *Context {
	return &Context{
		Cfg:       cfg,
		SymbolMap: make(map[string]*Symbol),
		Got:       &GotSection{},
	}
}
