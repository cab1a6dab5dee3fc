package main

import "testing"

func TestGetOutputNamePrefixRules(t *testing.T) {
	cases := []struct {
		name  string
		flags uint64
		want  string
	}{
		{".text", 0, ".text"},
		{".text.foo", 0, ".text"},
		{".data.rel.ro.bar", 0, ".data.rel.ro"},
		{".data.bar", 0, ".data"},
		{".rodata.cst8", 0, ".rodata"},
		{".bss.rel.ro.x", 0, ".bss.rel.ro"},
		{".bss.x", 0, ".bss"},
		{".tbss.x", 0, ".tbss"},
		{".tdata.x", 0, ".tdata"},
		{".comment", 0, ".comment"},
	}
	for _, c := range cases {
		if got := GetOutputName(c.name, c.flags); got != c.want {
			t.Errorf("GetOutputName(%q, %#x) = %q, want %q", c.name, c.flags, got, c.want)
		}
	}
}

func TestGetOutputNameMergeableRodataSplitsStrVsCst(t *testing.T) {
	if got := GetOutputName(".rodata.str1.1", SHF_MERGE|SHF_STRINGS); got != ".rodata.str" {
		t.Errorf("mergeable string rodata = %q, want .rodata.str", got)
	}
	if got := GetOutputName(".rodata.cst4", SHF_MERGE); got != ".rodata.cst" {
		t.Errorf("mergeable constant rodata = %q, want .rodata.cst", got)
	}
	if got := GetOutputName(".rodata", SHF_MERGE|SHF_STRINGS); got != ".rodata.str" {
		t.Errorf("bare mergeable .rodata = %q, want .rodata.str", got)
	}
}

func TestOutputSectionKeyMasksLinkOnlyFlags(t *testing.T) {
	_, f1 := outputSectionKey(".text", SHF_ALLOC|SHF_EXECINSTR|SHF_GROUP)
	_, f2 := outputSectionKey(".text", SHF_ALLOC|SHF_EXECINSTR)
	if f1 != f2 {
		t.Errorf("SHF_GROUP should be masked out of the output-section key: %#x != %#x", f1, f2)
	}
}
