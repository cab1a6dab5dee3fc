package main

// accessFlags computes a chunk's PT_LOAD/PT_NOTE access bits from its
// section header flags (spec.md §4.7).
func accessFlags(c *Chunk) uint32 {
	f := uint32(PF_R)
	if c.Shdr.Flags&SHF_WRITE != 0 {
		f |= PF_W
	}
	if c.Shdr.Flags&SHF_EXECINSTR != 0 {
		f |= PF_X
	}
	return f
}

func isNote(c *Chunk) bool { return c.Shdr.Type == SHT_NOTE }
func isTLS(c *Chunk) bool  { return c.Shdr.Flags&SHF_TLS != 0 }
func isAllocChunk(c *Chunk) bool {
	return c.Kind != ChunkEhdr && c.Kind != ChunkPhdr && c.Kind != ChunkShdrTable && c.Shdr.Flags&SHF_ALLOC != 0
}

// noteRuns groups maximal consecutive runs of note chunks sharing the same
// access flags (spec.md §4.7 step 2).
func noteRuns(chunks []*Chunk) [][]*Chunk {
	var runs [][]*Chunk
	var cur []*Chunk
	var curFlags uint32
	for _, c := range chunks {
		if !isNote(c) {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
			continue
		}
		f := accessFlags(c)
		if len(cur) > 0 && f != curFlags {
			runs = append(runs, cur)
			cur = nil
		}
		curFlags = f
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// loadRuns partitions alloc, non-note chunks into maximal consecutive runs
// sharing the same access flags (spec.md §4.7 step 3).
func loadRuns(chunks []*Chunk) [][]*Chunk {
	var runs [][]*Chunk
	var cur []*Chunk
	var curFlags uint32
	for _, c := range chunks {
		if !isAllocChunk(c) || isNote(c) {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
			continue
		}
		f := accessFlags(c)
		if len(cur) > 0 && f != curFlags {
			runs = append(runs, cur)
			cur = nil
		}
		curFlags = f
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// tlsRuns groups maximal consecutive runs of TLS chunks (spec.md §4.7 step 4).
func tlsRuns(chunks []*Chunk) [][]*Chunk {
	var runs [][]*Chunk
	var cur []*Chunk
	for _, c := range chunks {
		if !isTLS(c) {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// buildSegment folds a run of chunks into one Phdr: VAddr/Offset from the
// first member, FileSize/MemSize extended by each non-BSS member (both) or
// BSS-like member (MemSize only) — spec.md §4.7's closing paragraph. The
// PAGESIZE floor on Align is scoped to PT_LOAD only (spec.md §4.7 bullet 3);
// PT_NOTE and PT_TLS (bullets 2 and 4) carry no such floor and start from
// the run's own alignment instead.
func buildSegment(typ, flags uint32, run []*Chunk) Phdr {
	p := Phdr{Type: typ, Flags: flags}
	if typ == PT_LOAD {
		p.Align = PageSize
	}
	p.VAddr = run[0].Shdr.Addr
	p.PAddr = p.VAddr
	p.Offset = run[0].Shdr.Offset
	for _, c := range run {
		if c.Shdr.AddrAlign > p.Align {
			p.Align = c.Shdr.AddrAlign
		}
		end := c.Shdr.Addr + c.Shdr.Size
		isBSS := c.Shdr.Type == SHT_NOBITS && c.Shdr.Flags&SHF_TLS == 0
		if !isBSS {
			p.FileSize = end - p.VAddr
		}
		p.MemSize = end - p.VAddr
	}
	return p
}

// phdrCount returns how many program headers createPhdr will produce,
// without requiring final addresses — every grouping decision depends only
// on each chunk's Type/Flags, which are fixed well before
// SetOutputSectionOffsets assigns addresses. Used to size the Phdr chunk
// before the address cursor can run.
func phdrCount(ctx *Context) int {
	n := 1 // PT_PHDR
	n += len(noteRuns(ctx.Chunks))
	n += len(loadRuns(ctx.Chunks))
	n += len(tlsRuns(ctx.Chunks))
	return n
}

// createPhdr produces the program-header list (spec.md §4.7). Must run
// after every chunk's Addr/Offset has been finalized.
func createPhdr(ctx *Context) []Phdr {
	var phdrs []Phdr

	phdrs = append(phdrs, Phdr{
		Type: PT_PHDR, Flags: PF_R,
		VAddr: ctx.Phdr.Shdr.Addr, PAddr: ctx.Phdr.Shdr.Addr,
		Offset: ctx.Phdr.Shdr.Offset, Align: 8,
	})

	for _, run := range noteRuns(ctx.Chunks) {
		phdrs = append(phdrs, buildSegment(PT_NOTE, accessFlags(run[0]), run))
	}
	for _, run := range loadRuns(ctx.Chunks) {
		phdrs = append(phdrs, buildSegment(PT_LOAD, accessFlags(run[0]), run))
	}

	tlsSegs := tlsRuns(ctx.Chunks)
	for _, run := range tlsSegs {
		phdrs = append(phdrs, buildSegment(PT_TLS, PF_R, run))
	}
	if len(tlsSegs) > 0 {
		last := phdrs[len(phdrs)-1]
		ctx.TpAddr = last.VAddr
	}

	// The Ehdr and Phdr chunks are not members of any PT_LOAD run
	// (isAllocChunk excludes them); PT_PHDR's own sizes equal the Phdr
	// chunk's total size.
	phdrs[0].FileSize = uint64(len(phdrs)) * PhdrSize
	phdrs[0].MemSize = phdrs[0].FileSize

	return phdrs
}
