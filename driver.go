package main

import "strings"

// openInput resolves one input token from spec.md §6: a bare path, or a
// "-l<name>" token searched against LibDirs in order.
func openInput(cfg LinkConfig, token string) (*File, error) {
	if strings.HasPrefix(token, "-l") {
		name := token[2:]
		path, err := FindLibrary(cfg.LibDirs, name)
		if err != nil {
			return nil, err
		}
		return OpenFile(path)
	}
	return OpenFile(token)
}

// loadInputs expands every input token into parsed Objectfiles, classifying
// by file kind and setting the initial liveness spec.md §4.5 pass 2 needs:
// explicit command-line objects start alive, archive members start dead
// until pulled in by an undefined-symbol reference.
func loadInputs(ctx *Context) error {
	for _, token := range ctx.Cfg.Inputs {
		f, err := openInput(ctx.Cfg, token)
		if err != nil {
			return err
		}
		switch f.Kind {
		case FileObject:
			obj, err := ParseObjectfile(ctx, f)
			if err != nil {
				return err
			}
			obj.IsAlive = true
			ctx.Objects = append(ctx.Objects, obj)
		case FileArchive:
			members, err := ReadArchiveMembers(f)
			if err != nil {
				return err
			}
			for _, m := range members {
				obj, err := ParseObjectfile(ctx, m)
				if err != nil {
					return err
				}
				obj.IsInArchive = true
				obj.IsAlive = false
				ctx.Objects = append(ctx.Objects, obj)
			}
		default:
			return fatalf("%s: not an ELF relocatable object or archive", f.Name)
		}
	}
	if len(ctx.Objects) == 0 {
		return fatalf("no input files")
	}
	return nil
}

// Link runs a full static link per spec.md §2's fixed pipeline: load and
// classify inputs, resolve and prune symbols, collect GOT slots, lay out
// the output image, then write it.
func Link(cfg LinkConfig) error {
	ctx := NewContext(cfg)

	if err := loadInputs(ctx); err != nil {
		return err
	}

	ResolvePasses(ctx)
	hasEntry := ctx.SymbolMap["_start"] != nil && ctx.SymbolMap["_start"].FileAlive()
	if !hasEntry {
		Warn("no definition of _start found; output entry point will be the start of .text (0 if there is none)")
	}

	ScanRelocations(ctx)

	BinSections(ctx)
	ComputeSectionSizes(ctx)
	ComputeMergedSectionSizes(ctx)
	CreateSyntheticSections(ctx)
	CollectOutputSections(ctx)
	SortOutputSections(ctx)
	fileSize := SetOutputSectionOffsets(ctx)

	return WriteOutput(ctx, ctx.Cfg.Output, fileSize)
}
