package main

import "sort"

// BinSections walks every alive InputSection of every surviving object and
// appends it to its assigned OutputSection's member list, preserving
// discovery order (spec.md §4.6).
func BinSections(ctx *Context) {
	for _, obj := range ctx.Objects {
		for _, isec := range obj.Sections {
			if isec == nil || !isec.IsAlive || isec.OutputSection == nil {
				continue
			}
			isec.OutputSection.Members = append(isec.OutputSection.Members, isec)
		}
		for _, isec := range obj.auxSections {
			if !isec.IsAlive || isec.OutputSection == nil {
				continue
			}
			isec.OutputSection.Members = append(isec.OutputSection.Members, isec)
		}
	}
}

// ComputeSectionSizes assigns each member's intra-section Offset and sets
// the OutputSection's own Size/AddrAlign (spec.md §4.6).
func ComputeSectionSizes(ctx *Context) {
	for _, osec := range ctx.OutputSections {
		var offset uint64
		var maxAlign uint8
		for _, isec := range osec.Members {
			offset = AlignTo(offset, uint64(1)<<isec.P2Align)
			isec.Offset = offset
			offset += isec.ShSize
			if isec.P2Align > maxAlign {
				maxAlign = isec.P2Align
			}
		}
		osec.Shdr.Size = offset
		osec.Shdr.AddrAlign = uint64(1) << maxAlign
		if len(osec.Members) > 0 {
			osec.Shdr.Type = osec.Type
			osec.Shdr.Flags = osec.Flags
		}
	}
}

// ComputeMergedSectionSizes assigns fragment offsets for every merged
// section (spec.md §4.6).
func ComputeMergedSectionSizes(ctx *Context) {
	for _, m := range ctx.MergedSections {
		m.Shdr.Type = m.Type
		m.Shdr.Flags = m.Flags | SHF_MERGE
		m.AssignOffsets()
	}
}

// CreateSyntheticSections appends the fixed synthetic chunks in the order
// spec.md §4.6 requires: Ehdr, Phdr, Shdr.
func CreateSyntheticSections(ctx *Context) {
	ctx.Ehdr = NewEhdrChunk()
	ctx.Phdr = NewPhdrChunk()
	ctx.ShdrTable = NewShdrTableChunk()
	ctx.Chunks = append(ctx.Chunks, ctx.Ehdr, ctx.Phdr, ctx.ShdrTable)

	if len(ctx.Got.Symbols) > 0 {
		gotChunk := NewGotChunk(ctx.Got)
		ctx.Chunks = append(ctx.Chunks, gotChunk)
	}
}

// CollectOutputSections appends each non-empty OutputSection and
// MergedSection to the chunk list (spec.md §4.6).
func CollectOutputSections(ctx *Context) {
	for _, osec := range ctx.OutputSections {
		if len(osec.Members) == 0 {
			continue
		}
		ctx.Chunks = append(ctx.Chunks, NewOutputSectionChunk(osec))
	}
	for _, msec := range ctx.MergedSections {
		if len(msec.Map) == 0 {
			continue
		}
		ctx.Chunks = append(ctx.Chunks, NewMergedSectionChunk(msec))
	}
}

// chunkRank implements spec.md §4.6's SortOutputSections ranking.
func chunkRank(c *Chunk) uint32 {
	switch c.Kind {
	case ChunkEhdr:
		return 0
	case ChunkPhdr:
		return 1
	case ChunkShdrTable:
		return 0xFFFFFFFF
	}
	if c.Shdr.Type == SHT_NOTE {
		return 2
	}
	if c.Shdr.Flags&SHF_ALLOC == 0 {
		return 0xFFFFFFFE
	}
	writable := uint32(0)
	if c.Shdr.Flags&SHF_WRITE != 0 {
		writable = 1
	}
	notExec := uint32(1)
	if c.Shdr.Flags&SHF_EXECINSTR != 0 {
		notExec = 0
	}
	notTLS := uint32(1)
	if c.Shdr.Flags&SHF_TLS != 0 {
		notTLS = 0
	}
	bss := uint32(0)
	if c.Shdr.Type == SHT_NOBITS {
		bss = 1
	}
	return 3 + (writable<<7 | notExec<<6 | notTLS<<5 | bss<<4)
}

// SortOutputSections stably reorders ctx.Chunks by rank (spec.md §4.6).
func SortOutputSections(ctx *Context) {
	sort.SliceStable(ctx.Chunks, func(i, j int) bool {
		return chunkRank(ctx.Chunks[i]) < chunkRank(ctx.Chunks[j])
	})
}

// SetOutputSectionOffsets walks chunks in sort order, assigning virtual
// addresses (alloc chunks) and file offsets, and returns the final file
// size (spec.md §4.6).
func SetOutputSectionOffsets(ctx *Context) uint64 {
	addr := uint64(ImageBase)
	firstAddr := addr
	var fileOff uint64
	shndx := 0

	for _, c := range ctx.Chunks {
		if c.Kind == ChunkEhdr || c.Kind == ChunkPhdr {
			continue
		}
		shndx++
		c.Idx = shndx
	}
	// Ehdr/Phdr never occupy a section-header slot.
	if ctx.Ehdr != nil {
		ctx.Ehdr.Idx = 0
	}
	if ctx.Phdr != nil {
		ctx.Phdr.Idx = 0
	}

	// The Phdr chunk's own size must be known before the address cursor
	// runs (it affects where every later chunk lands), but building the
	// real Phdr entries needs every chunk's final address — a genuine
	// circular dependency spec.md §4.6/§4.7 resolve by fixing the *count*
	// of headers (a function of Type/Flags only) up front and deferring
	// the field values to a second createPhdr call once addressing is done.
	ctx.Phdr.Shdr.Size = uint64(phdrCount(ctx)) * PhdrSize
	ctx.ShdrTable.UpdateShdr(ctx)

	for _, c := range ctx.Chunks {
		isAlloc := c.Kind == ChunkEhdr || c.Kind == ChunkPhdr || c.Shdr.Flags&SHF_ALLOC != 0

		if isAlloc {
			align := c.Shdr.AddrAlign
			if align == 0 {
				align = 1
			}
			addr = AlignTo(addr, align)
			c.Shdr.Addr = addr
			c.Shdr.Offset = addr - firstAddr
			fileOff = c.Shdr.Offset
			isTBSS := c.Shdr.Type == SHT_NOBITS && c.Shdr.Flags&SHF_TLS != 0
			if !isTBSS {
				addr += c.Shdr.Size
			}
			if c.Shdr.Type != SHT_NOBITS {
				fileOff += c.Shdr.Size
			}
		} else {
			align := c.Shdr.AddrAlign
			if align == 0 {
				align = 1
			}
			fileOff = AlignTo(fileOff, align)
			c.Shdr.Offset = fileOff
			fileOff += c.Shdr.Size
		}
		c.syncToUnderlying()
	}

	ctx.Phdr.phdrs = createPhdr(ctx)

	return fileOff
}
