package main

import "os"

// WriteOutput allocates the final image buffer, asks every chunk to refresh
// its section header and copy its bytes in, and writes the result to path
// (spec.md §4.10).
func WriteOutput(ctx *Context, path string, fileSize uint64) error {
	ctx.Buf = make([]byte, fileSize)

	for _, c := range ctx.Chunks {
		c.UpdateShdr(ctx)
	}
	for _, c := range ctx.Chunks {
		c.CopyBuf(ctx)
	}

	if err := os.WriteFile(path, ctx.Buf, 0755); err != nil {
		return fatalf("%s: %v", path, err)
	}
	return nil
}
