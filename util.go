package main

import "os"

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// signExtend sign-extends the low (bits+1) bits of v.
func signExtend(v uint64, bits uint) uint64 {
	shift := 63 - bits
	return uint64(int64(v<<shift) >> shift)
}
