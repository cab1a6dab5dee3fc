package main

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
)

const arHdrSize = 60

// arHdr mirrors the 60-byte ASCII `ar` member header (spec.md §4.1).
type arHdr struct {
	Name [16]byte
	Date [12]byte
	Uid  [6]byte
	Gid  [6]byte
	Mode [8]byte
	Size [10]byte
	Fmag [2]byte
}

func decodeArHdr(b []byte) arHdr {
	var h arHdr
	copy(h.Name[:], b[0:16])
	copy(h.Date[:], b[16:28])
	copy(h.Uid[:], b[28:34])
	copy(h.Gid[:], b[34:40])
	copy(h.Mode[:], b[40:48])
	copy(h.Size[:], b[48:58])
	copy(h.Fmag[:], b[58:60])
	return h
}

func (h arHdr) isStrtab() bool { return bytes.HasPrefix(h.Name[:], []byte("// ")) }
func (h arHdr) isSymtab() bool {
	return bytes.HasPrefix(h.Name[:], []byte("/ ")) || bytes.HasPrefix(h.Name[:], []byte("/SYM64/ "))
}

func (h arHdr) size() (int, error) {
	s := strings.TrimSpace(string(h.Size[:]))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fatalf("archive member: malformed size field %q", s)
	}
	return n, nil
}

// name resolves the member's filename, either in-place (terminated by '/')
// or indirected through the long-name string table via "/<offset>".
func (h arHdr) name(strtab []byte) (string, error) {
	if h.Name[0] == '/' {
		offStr := strings.TrimRight(string(h.Name[1:]), " ")
		off, err := strconv.Atoi(offStr)
		if err != nil {
			return "", fatalf("archive member: malformed long-name offset %q", offStr)
		}
		if off >= len(strtab) {
			return "", fatalf("archive member: long-name offset out of range")
		}
		rest := strtab[off:]
		idx := bytes.Index(rest, []byte("/\n"))
		if idx < 0 {
			return "", fatalf("archive member: unterminated long name")
		}
		return string(rest[:idx]), nil
	}
	idx := bytes.IndexByte(h.Name[:], '/')
	if idx < 0 {
		idx = len(h.Name)
	}
	return strings.TrimRight(string(h.Name[:idx]), " "), nil
}

// ReadArchiveMembers scans an ar(1) archive from offset 8 (past the
// "!<arch>\n" magic), skipping the symbol table and retaining the
// long-name table, yielding each member as a File that subslices the
// archive's own in-memory buffer (spec.md §9 Open Questions, resolved in
// favor of O(1) subslicing per SPEC_FULL.md feature 4).
func ReadArchiveMembers(f *File) ([]*File, error) {
	if f.Kind != FileArchive {
		return nil, fatalf("%s: not an archive", f.Name)
	}
	contents := f.Contents
	pos := len(arMagic)
	var strtab []byte
	var members []*File

	for len(contents)-pos > 1 {
		if pos%2 == 1 {
			pos++
		}
		if pos+arHdrSize > len(contents) {
			return nil, fatalf("%s: truncated archive header", f.Name)
		}
		hdr := decodeArHdr(contents[pos : pos+arHdrSize])
		if hdr.Fmag != [2]byte{0x60, 0x0A} {
			return nil, fatalf("%s: corrupted archive header (bad Fmag)", f.Name)
		}
		dataStart := pos + arHdrSize
		sz, err := hdr.size()
		if err != nil {
			return nil, err
		}
		dataEnd := dataStart + sz
		if dataEnd > len(contents) {
			return nil, fatalf("%s: archive member size out of range", f.Name)
		}
		memberData := contents[dataStart:dataEnd]
		pos = dataEnd

		switch {
		case hdr.isSymtab():
			// skipped: the linker derives liveness itself, it doesn't trust
			// the archive's own symbol index (spec.md §4.2).
			continue
		case hdr.isStrtab():
			strtab = memberData
			continue
		}

		name, err := hdr.name(strtab)
		if err != nil {
			return nil, err
		}
		member := NewFile(filepath.Join(f.Name, name), memberData, f)
		if member.Kind != FileObject {
			return nil, fatalf("%s(%s): archive member is not an ELF object", f.Name, name)
		}
		members = append(members, member)
	}
	return members, nil
}

// FindLibrary searches libDirs in order for "lib<name>.a"; the first match
// wins (spec.md §6 -l flag).
func FindLibrary(libDirs []string, name string) (string, error) {
	for _, dir := range libDirs {
		candidate := filepath.Join(dir, "lib"+name+".a")
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fatalf("library not found: -l%s", name)
}
