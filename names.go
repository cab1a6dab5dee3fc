package main

import "strings"

// outputSectionPrefixes is matching-order-sensitive: more specific prefixes
// (".data.rel.ro.") must be tried before less specific ones (".data.") —
// spec.md §4.4 requires the fixed list order to express this preference.
var outputSectionPrefixes = []string{
	".text.", ".data.rel.ro.", ".data.", ".rodata.", ".bss.rel.ro.", ".bss.",
	".init_array.", ".fini_array.", ".tbss.", ".tdata.", ".gcc_except_table.",
	".ctors.", ".dtors.",
}

// GetOutputName normalizes an input section name to the name of the output
// section it is binned into, per spec.md §4.4.
func GetOutputName(name string, flags uint64) string {
	if (name == ".rodata" || strings.HasPrefix(name, ".rodata.")) && flags&SHF_MERGE != 0 {
		if flags&SHF_STRINGS != 0 {
			return ".rodata.str"
		}
		return ".rodata.cst"
	}

	for _, prefix := range outputSectionPrefixes {
		stem := prefix[:len(prefix)-1]
		if name == stem || strings.HasPrefix(name, prefix) {
			return stem
		}
	}

	return name
}
