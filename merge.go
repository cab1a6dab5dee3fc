package main

import "sort"

// SectionFragment is a single deduplicated piece of an SHF_MERGE section
// (spec.md §3 Data Model, GLOSSARY "Fragment").
type SectionFragment struct {
	OutputSection *MergedSection
	Offset        uint32
	P2Align       uint8
	IsAlive       bool
}

// GetAddr returns the fragment's final virtual address, valid once layout
// has run.
func (f *SectionFragment) GetAddr() uint64 {
	return f.OutputSection.Shdr.Addr + uint64(f.Offset)
}

// MergedSection is a per-output collection of deduplicated byte keys.
// For any two identical keys across the whole link, Map returns the same
// *SectionFragment instance (spec.md §3 invariant).
type MergedSection struct {
	Name  string
	Type  uint32
	Flags uint64

	Shdr Shdr
	Idx  int

	Map map[string]*SectionFragment
}

// GetMergedSectionInstance finds or creates the MergedSection that
// (name, type, flags) bins into — mirroring GetOutputSection but for the
// dedup map rather than the member list.
func GetMergedSectionInstance(ctx *Context, name string, shType uint32, flags uint64) *MergedSection {
	outName, maskedFlags := outputSectionKey(name, flags)
	maskedFlags &^= SHF_MERGE | SHF_STRINGS
	for _, m := range ctx.MergedSections {
		if m.Name == outName && m.Type == shType && m.Flags == maskedFlags {
			return m
		}
	}
	m := &MergedSection{Name: outName, Type: shType, Flags: maskedFlags, Map: make(map[string]*SectionFragment)}
	ctx.MergedSections = append(ctx.MergedSections, m)
	return m
}

// Insert finds or creates the fragment for key, raising its P2Align to the
// maximum requested by any inserter.
func (m *MergedSection) Insert(key string, p2align uint8) *SectionFragment {
	frag, ok := m.Map[key]
	if !ok {
		frag = &SectionFragment{OutputSection: m}
		m.Map[key] = frag
	}
	if p2align > frag.P2Align {
		frag.P2Align = p2align
	}
	return frag
}

// AssignOffsets sorts fragments by (descending P2Align, key length, key
// bytes) to improve packing and assigns each an intra-section offset
// (spec.md §4.6 ComputeMergedSectionSizes).
func (m *MergedSection) AssignOffsets() {
	keys := make([]string, 0, len(m.Map))
	for k := range m.Map {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		fi, fj := m.Map[keys[i]], m.Map[keys[j]]
		if fi.P2Align != fj.P2Align {
			return fi.P2Align > fj.P2Align
		}
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var offset uint64
	var maxAlign uint8
	for _, k := range keys {
		frag := m.Map[k]
		offset = AlignTo(offset, uint64(1)<<frag.P2Align)
		frag.Offset = uint32(offset)
		offset += uint64(len(k))
		if frag.P2Align > maxAlign {
			maxAlign = frag.P2Align
		}
	}
	m.Shdr.Size = AlignTo(offset, uint64(1)<<maxAlign)
	m.Shdr.AddrAlign = uint64(1) << maxAlign
}

// MergeableSection is the pre-split view of an SHF_MERGE input section:
// one fragment handle per piece, indexed by the piece's original
// byte offset within the section.
type MergeableSection struct {
	Parent  *MergedSection
	P2Align uint8

	// Keys holds each piece's raw content bytes (the fragment's dedup
	// key); for SHF_STRINGS sections this includes the trailing NUL run,
	// per SPEC_FULL.md supplemented feature 1.
	Keys       []string
	FragOffset []uint32
	Fragments  []*SectionFragment
}

// FragmentAt returns the fragment containing byte offset `offset` within
// the original section, and the offset rebased into that fragment. It
// fails if offset does not land inside any fragment (spec.md §4.5 pass 5).
func (m *MergeableSection) FragmentAt(offset uint32) (*SectionFragment, uint32, bool) {
	// FragOffset is sorted ascending by construction (SplitMergeableSection
	// appends pieces in section order).
	idx := sort.Search(len(m.FragOffset), func(i int) bool { return m.FragOffset[i] > offset }) - 1
	if idx < 0 {
		return nil, 0, false
	}
	rebased := offset - m.FragOffset[idx]
	if rebased >= uint32(len(m.Keys[idx])) {
		return nil, 0, false
	}
	return m.Fragments[idx], rebased, true
}

// findNull locates the end of the first NUL-terminated record of entSize
// within data (spec.md §4.3 step 4; entSize==1 is the common C-string case).
func findNull(data []byte, entSize uint64) (int, bool) {
	if entSize == 0 {
		entSize = 1
	}
	if entSize == 1 {
		for i, b := range data {
			if b == 0 {
				return i, true
			}
		}
		return 0, false
	}
	for i := 0; i+int(entSize) <= len(data); i += int(entSize) {
		allZero := true
		for _, b := range data[i : i+int(entSize)] {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			return i, true
		}
	}
	return 0, false
}

// SplitMergeableSection splits an alive SHF_MERGE input section into
// deduplicated pieces, registering each with its parent MergedSection
// (spec.md §4.3 step 4).
func SplitMergeableSection(ctx *Context, isec *InputSection) (*MergeableSection, error) {
	shdr := isec.shdr()
	m := &MergeableSection{
		Parent:  GetMergedSectionInstance(ctx, isec.Name(), shdr.Type, shdr.Flags),
		P2Align: isec.P2Align,
	}

	data := isec.Bytes()
	entSize := shdr.EntSize
	if entSize == 0 {
		entSize = 1
	}
	var offset uint32

	if shdr.Flags&SHF_STRINGS != 0 {
		for len(data) > 0 {
			end, ok := findNull(data, entSize)
			if !ok {
				return nil, fatalf("%s: %s: string fragment is not null terminated", isec.File.Name(), isec.Name())
			}
			sz := end + int(entSize)
			key := string(data[:sz])
			data = data[sz:]
			m.Keys = append(m.Keys, key)
			m.FragOffset = append(m.FragOffset, offset)
			offset += uint32(sz)
		}
	} else {
		if uint64(len(data))%entSize != 0 {
			return nil, fatalf("%s: %s: section size is not a multiple of EntSize", isec.File.Name(), isec.Name())
		}
		for len(data) > 0 {
			key := string(data[:entSize])
			data = data[entSize:]
			m.Keys = append(m.Keys, key)
			m.FragOffset = append(m.FragOffset, offset)
			offset += uint32(entSize)
		}
	}

	for _, k := range m.Keys {
		m.Fragments = append(m.Fragments, m.Parent.Insert(k, m.P2Align))
	}

	return m, nil
}
