package main

// InputSection is a single, named section of a single input object
// (spec.md §3 Data Model). Bytes are a view over the owning object's
// Contents; no pointer-into-bytes escapes the object's lifetime.
type InputSection struct {
	File    *Objectfile
	Shndx   int
	name    string
	IsAlive bool

	ShSize  uint64
	P2Align uint8

	OutputSection *OutputSection
	Offset        uint64

	// RelSecIdx is the section-header index of this section's SHT_RELA
	// relocation section, or -1 if it has none.
	RelSecIdx int

	// synthShdr is set for sections synthesized at link time (.common,
	// .tls_common — spec.md §4.5 pass 4) which have no real entry in the
	// owning object's section header table.
	synthShdr *Shdr
}

func (isec *InputSection) shdr() Shdr {
	if isec.synthShdr != nil {
		return *isec.synthShdr
	}
	return isec.File.inputFile.Sections[isec.Shndx]
}

func (isec *InputSection) Name() string { return isec.name }

// Bytes returns the raw section contents as a view over the object's file.
func (isec *InputSection) Bytes() []byte {
	s := isec.shdr()
	if s.Type == SHT_NOBITS {
		return nil
	}
	end := s.Offset + s.Size
	return isec.File.inputFile.File.Contents[s.Offset:end]
}

// Addr returns the section's assigned virtual address, valid once layout
// has run (spec.md §4.9).
func (isec *InputSection) Addr() uint64 {
	return isec.OutputSection.Shdr.Addr + isec.Offset
}

// Rels decodes and returns this section's relocation list.
func (isec *InputSection) Rels() []Rela {
	if isec.RelSecIdx < 0 {
		return nil
	}
	relShdr := isec.File.inputFile.Sections[isec.RelSecIdx]
	bytes, err := isec.File.inputFile.bytesFromShdr(relShdr)
	if err != nil {
		Fatal("%v", err)
	}
	n := len(bytes) / RelaSize
	rels := make([]Rela, 0, n)
	for i := 0; i < n; i++ {
		rels = append(rels, DecodeRela(bytes[i*RelaSize:]))
	}
	return rels
}

// OutputSection is a bin into which input sections with matching
// (name, type, flags) are concatenated (spec.md §3, §4.6).
type OutputSection struct {
	Name  string
	Type  uint32
	Flags uint64

	Shdr Shdr
	Idx  int // assigned section-header index (Shndx), set during layout

	Members []*InputSection
}

// outputSectionKey masks out flags that don't distinguish output sections
// (spec.md §4.3 step 2: "Mask-out flags GROUP | COMPRESSED | LINK_ORDER
// when computing the key").
func outputSectionKey(name string, flags uint64) (string, uint64) {
	maskedFlags := flags &^ (SHF_GROUP | SHF_COMPRESSED | SHF_LINK_ORDER)
	return GetOutputName(name, flags), maskedFlags
}

// GetOutputSection finds or creates the OutputSection that (name, type,
// flags) bins into.
func GetOutputSection(ctx *Context, name string, shType uint32, flags uint64) *OutputSection {
	outName, maskedFlags := outputSectionKey(name, flags)
	for _, osec := range ctx.OutputSections {
		if osec.Name == outName && osec.Type == shType && osec.Flags == maskedFlags {
			return osec
		}
	}
	osec := &OutputSection{Name: outName, Type: shType, Flags: maskedFlags}
	ctx.OutputSections = append(ctx.OutputSections, osec)
	return osec
}
