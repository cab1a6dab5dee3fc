package main

import (
	"fmt"
	"os"
	"strings"
)

const versionString = "rvld64 1.0.0"

// ignoredValueFlags take "--flag=value" and are accepted-and-ignored verbatim
// (spec.md §6).
var ignoredValueFlags = []string{
	"--sysroot=", "--plugin=", "--plugin-opt=", "--hash-style=", "--build-id=",
}

// ignoredBareFlags take no value and are accepted-and-ignored (spec.md §6).
var ignoredBareFlags = map[string]bool{
	"--static": true, "-s": true, "--no-relax": true,
	"--as-needed": true, "--start-group": true, "--end-group": true,
}

// parseArgs walks the raw argument vector in order, the way a GNU linker
// front end does, since input files and -l/-L flags are order-sensitive
// (spec.md §2, §6): cobra's ordinary flag parsing would not preserve the
// relative order of "-lfoo a.o -lbar".
func parseArgs(args []string) (LinkConfig, error) {
	cfg := LinkConfig{Output: "a.out"}
	sawEmulation := false

	next := func(i int, flag string) (string, int, error) {
		if i+1 >= len(args) {
			return "", i, fatalf("missing argument for %s", flag)
		}
		return args[i+1], i + 1, nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]

		switch {
		case a == "-o":
			v, ni, err := next(i, "-o")
			if err != nil {
				return cfg, err
			}
			cfg.Output = v
			i = ni
		case strings.HasPrefix(a, "--output="):
			cfg.Output = strings.TrimPrefix(a, "--output=")
		case a == "-m":
			v, ni, err := next(i, "-m")
			if err != nil {
				return cfg, err
			}
			if v != "elf64lriscv" {
				return cfg, fatalf("unsupported emulation %q (only elf64lriscv is supported)", v)
			}
			cfg.Emulation = v
			sawEmulation = true
			i = ni
		case a == "-L":
			v, ni, err := next(i, "-L")
			if err != nil {
				return cfg, err
			}
			cfg.LibDirs = append(cfg.LibDirs, v)
			i = ni
		case strings.HasPrefix(a, "-L") && len(a) > 2:
			cfg.LibDirs = append(cfg.LibDirs, a[2:])
		case a == "-l":
			v, ni, err := next(i, "-l")
			if err != nil {
				return cfg, err
			}
			cfg.Inputs = append(cfg.Inputs, "-l"+v)
			i = ni
		case strings.HasPrefix(a, "-l") && len(a) > 2:
			cfg.Inputs = append(cfg.Inputs, a)
		case a == "-v" || a == "--version":
			fmt.Println(versionString)
			os.Exit(0)
		case a == "--help":
			printUsage()
			os.Exit(0)
		case a == "-z":
			_, ni, err := next(i, "-z")
			if err != nil {
				return cfg, err
			}
			i = ni
		case ignoredBareFlags[a]:
			// accepted and ignored
		case hasIgnoredValuePrefix(a):
			// accepted and ignored
		case strings.HasPrefix(a, "-"):
			return cfg, fatalf("unknown option %q", a)
		default:
			cfg.Inputs = append(cfg.Inputs, a)
		}
	}

	if !sawEmulation {
		return cfg, fatalf("missing required -m elf64lriscv")
	}
	if len(cfg.Inputs) == 0 {
		return cfg, fatalf("no input files")
	}
	return cfg, nil
}

func hasIgnoredValuePrefix(a string) bool {
	for _, p := range ignoredValueFlags {
		if strings.HasPrefix(a, p) {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Printf(`%s - static linker for RISC-V 64-bit ELF objects

USAGE:
    rvld64 -m elf64lriscv [-o output] [-L dir]... [-l name | file]...

FLAGS:
    -o <path>, --output=<path>   Output file path (default a.out)
    -m <emulation>                Required; must be elf64lriscv
    -L <dir>                      Append a library search directory
    -l <name>                     Link against lib<name>.a found via -L
    -v, --version                 Print version and exit
    --help                        Print this message and exit

The following GNU ld flags are accepted and ignored:
    --sysroot=, --plugin=, --plugin-opt=, --hash-style=, --build-id=,
    -z <arg>, --static, -s, --no-relax, --as-needed, --start-group, --end-group
`, versionString)
}
