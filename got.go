package main

// GotSection is the single GOT this linker synthesizes: an 8-byte-per-slot
// table feeding R_RISCV_TLS_GOT_HI20 indirection (SPEC_FULL.md supplemented
// feature 5; spec.md §4.8 — there is no GOT/PLT for ordinary external
// symbols, per spec.md §1 Non-goals).
type GotSection struct {
	Shdr Shdr
	Idx  int

	// Symbols holds one entry per TLS GOT slot, in assignment order; a
	// symbol's slot index is Symbol.GotTpIdx.
	Symbols []*Symbol
}

// AddGotTpSymbol assigns sym its GOT slot on first request; later calls for
// the same symbol are no-ops, so sharing one R_RISCV_TLS_GOT_HI20 target
// across multiple relocations costs exactly one slot.
func (g *GotSection) AddGotTpSymbol(sym *Symbol) {
	if sym.GotTpIdx >= 0 {
		return
	}
	sym.GotTpIdx = len(g.Symbols)
	g.Symbols = append(g.Symbols, sym)
}

// GetEntries returns the slots in assignment order.
func (g *GotSection) GetEntries() []*Symbol { return g.Symbols }

func (g *GotSection) Size() uint64 { return uint64(len(g.Symbols)) * 8 }
