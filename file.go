package main

import "os"

// FileKind classifies a File by its magic bytes.
type FileKind int

const (
	FileEmpty FileKind = iota
	FileObject
	FileArchive
	FileUnknown
)

var arMagic = []byte("!<arch>\n")

// File is a named byte blob plus its classified kind. Archive members carry
// a back-reference to the containing archive for diagnostics.
type File struct {
	Name     string
	Contents []byte
	Kind     FileKind
	Parent   *File
}

// OpenFile reads path from disk and classifies it. OpenFile never returns a
// File with a nil Contents slice; a short-read or missing file is fatal.
func OpenFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fatalf("%s: %v", path, err)
	}
	return NewFile(path, data, nil), nil
}

// NewFile classifies an in-memory byte blob (used directly for archive
// members, which are subslices of the parent archive's buffer per
// SPEC_FULL.md's resolved Open Question on archive reads).
func NewFile(name string, contents []byte, parent *File) *File {
	f := &File{Name: name, Contents: contents, Parent: parent}
	switch {
	case len(contents) == 0:
		f.Kind = FileEmpty
	case len(contents) >= 4 && contents[0] == elfMagic[0] && contents[1] == elfMagic[1] &&
		contents[2] == elfMagic[2] && contents[3] == elfMagic[3]:
		if len(contents) >= EhdrSize {
			ehdr, err := DecodeEhdr(contents)
			if err == nil && ehdr.Type == ET_REL {
				f.Kind = FileObject
			} else {
				f.Kind = FileUnknown
			}
		} else {
			f.Kind = FileUnknown
		}
	case len(contents) >= len(arMagic) && string(contents[:len(arMagic)]) == string(arMagic):
		f.Kind = FileArchive
	default:
		f.Kind = FileUnknown
	}
	return f
}

// InputFile is the Object view of a File: a parsed Ehdr, section-header
// vector, symbol vector, and the section/symbol string tables.
type InputFile struct {
	File *File

	Ehdr     Ehdr
	Sections []Shdr
	Shstrtab []byte

	ElfSyms     []Sym
	SymStrtab   []byte
	FirstGlobal uint32

	// SymtabShndxSec holds the SHT_SYMTAB_SHNDX extended index array, used to
	// reinterpret a per-symbol Shndx == SHN_XINDEX (spec.md §4.3 GetShndx).
	SymtabShndxSec []uint32
}

// ParseInputFile decodes the Ehdr and the full section header table
// (including the SHN_XINDEX / ShNum==0 extended-count rule of spec.md
// §4.1), plus the section-header string table.
func ParseInputFile(f *File) (*InputFile, error) {
	if len(f.Contents) < EhdrSize {
		return nil, fatalf("%s: file too small to be an ELF object", f.Name)
	}
	ehdr, err := DecodeEhdr(f.Contents)
	if err != nil {
		return nil, fatalf("%s: %v", f.Name, err)
	}
	if ehdr.Machine != EM_RISCV {
		return nil, fatalf("%s: incompatible machine type %d (expected EM_RISCV)", f.Name, ehdr.Machine)
	}

	inf := &InputFile{File: f, Ehdr: ehdr}

	if int(ehdr.ShOff)+ShdrSize > len(f.Contents) {
		return nil, fatalf("%s: section header table offset out of range", f.Name)
	}
	first := DecodeShdr(f.Contents[ehdr.ShOff:])
	numSections := uint64(ehdr.ShNum)
	if numSections == 0 {
		numSections = first.Size
	}
	if numSections == 0 {
		inf.Sections = nil
	} else {
		inf.Sections = make([]Shdr, 0, numSections)
		inf.Sections = append(inf.Sections, first)
		for i := uint64(1); i < numSections; i++ {
			off := ehdr.ShOff + i*ShdrSize
			if int(off)+ShdrSize > len(f.Contents) {
				return nil, fatalf("%s: section header %d out of range", f.Name, i)
			}
			inf.Sections = append(inf.Sections, DecodeShdr(f.Contents[off:]))
		}
	}

	shstrndx := uint32(ehdr.ShStrndx)
	if ehdr.ShStrndx == SHN_XINDEX {
		if len(inf.Sections) == 0 {
			return nil, fatalf("%s: SHN_XINDEX with no sections", f.Name)
		}
		shstrndx = inf.Sections[0].Link
	}
	if int(shstrndx) < len(inf.Sections) {
		shstrtab, err := inf.bytesFromShdr(inf.Sections[shstrndx])
		if err != nil {
			return nil, err
		}
		inf.Shstrtab = shstrtab
	}

	return inf, nil
}

func (inf *InputFile) bytesFromShdr(s Shdr) ([]byte, error) {
	end := s.Offset + s.Size
	if end > uint64(len(inf.File.Contents)) {
		return nil, fatalf("%s: section offset out of range", inf.File.Name)
	}
	return inf.File.Contents[s.Offset:end], nil
}

// findSection returns the index of the first section of the given type, or -1.
func (inf *InputFile) findSection(shType uint32) int {
	for i, s := range inf.Sections {
		if s.Type == shType {
			return i
		}
	}
	return -1
}

// sectionName looks up a section header's name in the section-header
// string table.
func (inf *InputFile) sectionName(s Shdr) string {
	return cstr(inf.Shstrtab, s.Name)
}

func cstr(strtab []byte, offset uint32) string {
	if int(offset) >= len(strtab) {
		return ""
	}
	end := offset
	for int(end) < len(strtab) && strtab[end] != 0 {
		end++
	}
	return string(strtab[offset:end])
}
