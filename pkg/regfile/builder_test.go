package regfile

import "testing"

// TestBuilder_ArrayGrouping covers the worked example of four independent
// 32-bit registers R0..R3 plus a PC and a status register "P" with
// C/Z/N/V pseudo sub-registers (mirroring m6502's own status register):
// R0..R3 must collapse into a single array-style RegisterSet named "R",
// while PC and P stay scalar.
func TestBuilder_ArrayGrouping(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{Name: "R0", Type: Type{Bits: 32}},
		{Name: "R1", Type: Type{Bits: 32}},
		{Name: "R2", Type: Type{Bits: 32}},
		{Name: "R3", Type: Type{Bits: 32}},
		{Name: "PC", Type: Type{Bits: 32}},
		{
			Name: "P", Type: Type{Bits: 32},
			Subs: []*RegisterInfo{
				{Name: "%C", Type: Type{Bits: 1}, BitStart: 0, Binding: "%P"},
				{Name: "%Z", Type: Type{Bits: 1}, BitStart: 1, Binding: "%P"},
				{Name: "%N", Type: Type{Bits: 1}, BitStart: 2, Binding: "%P"},
				{Name: "%V", Type: Type{Bits: 1}, BitStart: 3, Binding: "%P"},
			},
		},
	}}

	layout, err := NewBuilder(g).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rset := layout.ByName("R0")
	if rset == nil {
		t.Fatalf("R0 not found in layout")
	}
	if rset.Name != "R" {
		t.Errorf("expected grouped set name %q, got %q", "R", rset.Name)
	}
	if len(rset.Array) != 4 {
		t.Errorf("expected 4 array members, got %d: %v", len(rset.Array), rset.Array)
	}
	wantOrder := []string{"R0", "R1", "R2", "R3"}
	for i, w := range wantOrder {
		if rset.Array[i] != w {
			t.Errorf("array[%d] = %q, want %q", i, rset.Array[i], w)
		}
	}

	pc := layout.ByName("PC")
	if pc == nil || len(pc.Array) != 0 {
		t.Errorf("PC should remain scalar, got %+v", pc)
	}

	p := layout.ByName("P")
	if p == nil {
		t.Fatalf("P not found")
	}
	if len(p.Subs) != 4 {
		t.Fatalf("expected 4 pseudo sub-registers, got %d", len(p.Subs))
	}
	for _, s := range p.Subs {
		if s.Kind != SubPseudoAliased {
			t.Errorf("sub %q: expected SubPseudoAliased, got %v", s.Name, s.Kind)
		}
		if s.Bits != 1 {
			t.Errorf("sub %q: expected width 1, got %d", s.Name, s.Bits)
		}
	}
}

// TestBuilder_BidirectionalAlias covers spec's own worked example: a top
// EAX:32 with a sub AX:16@0 bidibound to a separately-declared top AX:16.
// Both declared widths agree, so the two names resolve to the same
// storage slot.
func TestBuilder_BidirectionalAlias(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{
			Name: "EAX", Type: Type{Bits: 32},
			Subs: []*RegisterInfo{
				{
					Name: "AX", Type: Type{Bits: 16}, BitStart: 0,
					Binding: "AX", Flags: BindFlags{Bidirectional: true},
				},
			},
		},
		{Name: "AX", Type: Type{Bits: 16}},
	}}

	layout, err := NewBuilder(g).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	eax := layout.ByName("EAX")
	if eax == nil {
		t.Fatalf("EAX not found")
	}
	if len(eax.Subs) != 1 {
		t.Fatalf("expected 1 sub-register on EAX, got %d", len(eax.Subs))
	}
	ax := eax.Subs[0]
	if ax.Kind != SubAliasBidirectional {
		t.Errorf("expected SubAliasBidirectional, got %v", ax.Kind)
	}
	if ax.AliasOf != "AX" {
		t.Errorf("expected AliasOf AX, got %q", ax.AliasOf)
	}
	if ax.Bits != 16 {
		t.Errorf("expected width 16, got %d", ax.Bits)
	}
}

// TestBuilder_BidirectionalAliasSizeMismatch checks that a bidirectional
// binding whose declared width disagrees with its bound target is
// rejected rather than silently accepted.
func TestBuilder_BidirectionalAliasSizeMismatch(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{
			Name: "EAX", Type: Type{Bits: 32},
			Subs: []*RegisterInfo{
				{
					Name: "AL", Type: Type{Bits: 8}, BitStart: 0,
					Binding: "AX", Flags: BindFlags{Bidirectional: true},
				},
			},
		},
		{Name: "AX", Type: Type{Bits: 16}},
	}}

	_, err := NewBuilder(g).Build()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if be.Kind != ErrSizeMismatch {
		t.Errorf("expected ErrSizeMismatch, got %v", be.Kind)
	}
}

// TestBuilder_NestedSubRegisters checks that sub-register synthesis
// recurses past the first level: a sub-register's own declared Subs must
// show up as that sub-register's SubRegister.Subs, not be dropped.
func TestBuilder_NestedSubRegisters(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{
			Name: "STATUS", Type: Type{Bits: 16},
			Subs: []*RegisterInfo{
				{
					Name: "STATUSLO", Type: Type{Bits: 8}, BitStart: 0,
					Subs: []*RegisterInfo{
						{Name: "STATUSLO_C", Type: Type{Bits: 1}, BitStart: 0},
						{Name: "STATUSLO_Z", Type: Type{Bits: 1}, BitStart: 1},
					},
				},
			},
		},
	}}

	layout, err := NewBuilder(g).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	status := layout.ByName("STATUS")
	if status == nil {
		t.Fatalf("STATUS not found")
	}
	if len(status.Subs) != 1 {
		t.Fatalf("expected 1 sub-register on STATUS, got %d", len(status.Subs))
	}
	lo := status.Subs[0]
	if lo.Name != "STATUSLO" {
		t.Fatalf("expected STATUSLO, got %q", lo.Name)
	}
	if len(lo.Subs) != 2 {
		t.Fatalf("expected 2 nested sub-registers on STATUSLO, got %d", len(lo.Subs))
	}
	for _, s := range lo.Subs {
		if s.Kind != SubPlain {
			t.Errorf("nested sub %q: expected SubPlain, got %v", s.Name, s.Kind)
		}
	}
}

// TestBuilder_IllegalPseudoFamilyRejected checks that a '%' binding to a
// name outside {C,N,P,V,Z} is rejected even though its width is 1.
func TestBuilder_IllegalPseudoFamilyRejected(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{
			Name: "FLAGS", Type: Type{Bits: 8},
			Subs: []*RegisterInfo{
				{Name: "%Q", Type: Type{Bits: 1}, BitStart: 0, Binding: "%FLAGS"},
			},
		},
	}}

	_, err := NewBuilder(g).Build()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if be.Kind != ErrIllegalPseudo {
		t.Errorf("expected ErrIllegalPseudo, got %v", be.Kind)
	}
}

// TestBuilder_SelfAliasRejected checks that a register bound to itself is
// reported as ErrSelfAlias rather than silently accepted.
func TestBuilder_SelfAliasRejected(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{
			Name: "X", Type: Type{Bits: 16},
			Subs: []*RegisterInfo{
				{Name: "XL", Type: Type{Bits: 8}, Binding: "XL"},
			},
		},
	}}

	_, err := NewBuilder(g).Build()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if be.Kind != ErrSelfAlias {
		t.Errorf("expected ErrSelfAlias, got %v", be.Kind)
	}
}

// TestBuilder_SizeMismatchRejected checks that a sub-register whose bit
// range exceeds its parent's width is rejected.
func TestBuilder_SizeMismatchRejected(t *testing.T) {
	g := &Graph{Nodes: []*RegisterInfo{
		{
			Name: "X", Type: Type{Bits: 8},
			Subs: []*RegisterInfo{
				{Name: "XH", Type: Type{Bits: 8}, BitStart: 4},
			},
		},
	}}

	_, err := NewBuilder(g).Build()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if be.Kind != ErrSizeMismatch {
		t.Errorf("expected ErrSizeMismatch, got %v", be.Kind)
	}
}

// TestStorageWidth checks the rounding rule used throughout the builder.
func TestStorageWidth(t *testing.T) {
	cases := map[int]int{
		1: 8, 7: 8, 8: 8,
		9: 16, 16: 16,
		17: 32, 32: 32,
		33: 64, 64: 64,
		65: 128, 100: 128,
	}
	for in, want := range cases {
		if got := StorageWidth(in); got != want {
			t.Errorf("StorageWidth(%d) = %d, want %d", in, got, want)
		}
	}
}
