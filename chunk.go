package main

import "encoding/binary"

// ChunkKind tags the closed set of writable units spec.md §3 calls Chunk.
// A tagged variant dispatched in one switch (spec.md §9 design notes,
// option b) is preferred here over a capability interface because the set
// of six kinds is closed and will not grow.
type ChunkKind int

const (
	ChunkEhdr ChunkKind = iota
	ChunkPhdr
	ChunkShdrTable
	ChunkOutputSection
	ChunkMergedSection
	ChunkGot
)

// Chunk is a writable unit: a section header plus an assigned section-header
// index (Shndx), implementing UpdateShdr/CopyBuf (spec.md §3). The section
// header and index are held directly on the Chunk and synced to/from the
// wrapped variant (outSec/mergedSec/got) at the points layout.go updates
// them, so code that addresses through OutputSection.Shdr/MergedSection.Shdr
// directly (Symbol.GetAddr, InputSection.Addr) sees the same final values.
type Chunk struct {
	Kind ChunkKind
	Name string

	Shdr Shdr
	Idx  int

	outSec    *OutputSection
	mergedSec *MergedSection
	got       *GotSection

	phdrs []Phdr
}

func NewEhdrChunk() *Chunk {
	return &Chunk{Kind: ChunkEhdr, Shdr: Shdr{Size: EhdrSize, AddrAlign: 8}}
}
func NewPhdrChunk() *Chunk      { return &Chunk{Kind: ChunkPhdr, Shdr: Shdr{AddrAlign: 8}} }
func NewShdrTableChunk() *Chunk { return &Chunk{Kind: ChunkShdrTable, Shdr: Shdr{AddrAlign: 8}} }

func NewOutputSectionChunk(osec *OutputSection) *Chunk {
	return &Chunk{Kind: ChunkOutputSection, Name: osec.Name, Shdr: osec.Shdr, outSec: osec}
}

func NewMergedSectionChunk(msec *MergedSection) *Chunk {
	return &Chunk{Kind: ChunkMergedSection, Name: msec.Name, Shdr: msec.Shdr, mergedSec: msec}
}

func NewGotChunk(got *GotSection) *Chunk {
	got.Shdr = Shdr{Type: SHT_PROGBITS, Flags: SHF_ALLOC | SHF_WRITE, AddrAlign: 8, Size: got.Size()}
	return &Chunk{Kind: ChunkGot, Name: ".got", Shdr: got.Shdr, got: got}
}

// syncToUnderlying pushes the chunk's final Shdr/Idx back onto the variant
// it wraps, once SetOutputSectionOffsets has assigned addresses — so later
// address computation through the variant's own fields observes them.
func (c *Chunk) syncToUnderlying() {
	switch c.Kind {
	case ChunkOutputSection:
		c.outSec.Shdr = c.Shdr
		c.outSec.Idx = c.Idx
	case ChunkMergedSection:
		c.mergedSec.Shdr = c.Shdr
		c.mergedSec.Idx = c.Idx
	case ChunkGot:
		c.got.Shdr = c.Shdr
		c.got.Idx = c.Idx
	}
}

// UpdateShdr recomputes a chunk's section header immediately before
// SetOutputSectionOffsets / CopyBuf (spec.md §4.6).
func (c *Chunk) UpdateShdr(ctx *Context) {
	switch c.Kind {
	case ChunkShdrTable:
		maxShndx := 0
		for _, ch := range ctx.Chunks {
			if ch.Idx > maxShndx {
				maxShndx = ch.Idx
			}
		}
		c.Shdr.Size = uint64(maxShndx+1) * ShdrSize
	case ChunkPhdr:
		c.phdrs = createPhdr(ctx)
		c.Shdr.Size = uint64(len(c.phdrs)) * PhdrSize
	}
}

// CopyBuf writes the chunk's final bytes into ctx.Buf at c.Shdr.Offset
// (spec.md §4.10).
func (c *Chunk) CopyBuf(ctx *Context) {
	switch c.Kind {
	case ChunkEhdr:
		c.copyEhdr(ctx)
	case ChunkPhdr:
		off := c.Shdr.Offset
		for _, p := range c.phdrs {
			copy(ctx.Buf[off:], p.Encode())
			off += PhdrSize
		}
	case ChunkShdrTable:
		off := c.Shdr.Offset
		copy(ctx.Buf[off:off+ShdrSize], Shdr{}.Encode())
		for _, ch := range ctx.Chunks {
			if ch.Idx <= 0 {
				continue
			}
			dst := off + uint64(ch.Idx)*ShdrSize
			copy(ctx.Buf[dst:dst+ShdrSize], ch.Shdr.Encode())
		}
	case ChunkOutputSection:
		c.copyOutputSection(ctx)
	case ChunkMergedSection:
		for key, frag := range c.mergedSec.Map {
			if !frag.IsAlive {
				continue
			}
			dst := c.Shdr.Offset + uint64(frag.Offset)
			copy(ctx.Buf[dst:], key)
		}
	case ChunkGot:
		off := c.Shdr.Offset
		for i, sym := range c.got.Symbols {
			val := sym.GetAddr() - ctx.TpAddr
			binary.LittleEndian.PutUint64(ctx.Buf[off+uint64(i)*8:], val)
		}
	}
}

func (c *Chunk) copyEhdr(ctx *Context) {
	var e Ehdr
	e.Ident[EI_MAG0], e.Ident[EI_MAG1], e.Ident[EI_MAG2], e.Ident[EI_MAG3] =
		elfMagic[0], elfMagic[1], elfMagic[2], elfMagic[3]
	e.Ident[EI_CLASS] = ELFCLASS64
	e.Ident[EI_DATA] = ELFDATA2LSB
	e.Ident[EI_VERSION] = EV_CURRENT
	e.Type = ET_EXEC
	e.Machine = EM_RISCV
	e.Version = EV_CURRENT
	e.Entry = GetEntryAddr(ctx)
	e.PhOff = ctx.Phdr.Shdr.Offset
	e.ShOff = ctx.ShdrTable.Shdr.Offset
	e.Flags = GetFlags(ctx)
	e.EhSize = EhdrSize
	e.PhEntSize = PhdrSize
	e.PhNum = uint16(len(ctx.Phdr.phdrs))
	e.ShEntSize = ShdrSize
	maxShndx := 0
	for _, ch := range ctx.Chunks {
		if ch.Idx > maxShndx {
			maxShndx = ch.Idx
		}
	}
	e.ShNum = uint16(maxShndx + 1)
	e.ShStrndx = 0
	copy(ctx.Buf[0:EhdrSize], e.Encode())
}

func (c *Chunk) copyOutputSection(ctx *Context) {
	if c.outSec.Shdr.Type == SHT_NOBITS {
		return
	}
	for _, isec := range c.outSec.Members {
		if !isec.IsAlive {
			continue
		}
		dst := c.Shdr.Offset + isec.Offset
		copy(ctx.Buf[dst:], isec.Bytes())
	}
	for _, isec := range c.outSec.Members {
		if !isec.IsAlive {
			continue
		}
		ApplyRelocations(ctx, isec)
	}
}
