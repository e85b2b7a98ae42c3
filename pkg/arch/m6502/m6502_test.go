package m6502

import (
	"testing"

	"github.com/tathanhdinh/libcpu/pkg/arch"
	"github.com/tathanhdinh/libcpu/pkg/ir"
	"github.com/tathanhdinh/libcpu/pkg/recompiler"
	"github.com/tathanhdinh/libcpu/pkg/regfile"
	"github.com/tathanhdinh/libcpu/pkg/tagging"
)

func buildLayout(t *testing.T, f arch.Frontend) *arch.LayoutView {
	layout, err := regfile.NewBuilder(f.DescribeRegisters()).Build()
	if err != nil {
		t.Fatalf("regfile build: %v", err)
	}
	return &arch.LayoutView{Layout: layout}
}

// TestLinearBlock_LDASTA covers: LDA #$2A ; STA $10 ; RTS, a straight-line
// block with no branches — the load-immediate/store-zeropage/return shape.
func TestLinearBlock_LDASTA(t *testing.T) {
	// The image must reach zero-page $10, the cell STA writes.
	ram := make([]byte, 0x20)
	copy(ram, []byte{
		0xA9, 0x2A, // LDA #$2A
		0x85, 0x10, // STA $10
		0x60, // RTS
	})
	read := func(addr uint64) (byte, bool) {
		if addr >= uint64(len(ram)) {
			return 0, false
		}
		return ram[addr], true
	}

	f := New()
	layout := buildLayout(t, f)

	tags := tagging.NewTagArray(0, len(ram))
	tg := tagging.NewTagger(f, read, tags)
	if err := tg.Tag(0); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	r := recompiler.New(f, layout, tags, read)
	fn, err := r.Recompile("lda_sta")
	if err != nil {
		t.Fatalf("Recompile: %v", err)
	}
	if err := ir.Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	engine := ir.NewExecutionEngine()
	compiled := engine.Compile(fn)

	reg := make([]byte, layout.Layout.TotalBits/8)
	compiled(ram, reg, nil)

	if ram[0x10] != 0x2A {
		t.Errorf("expected RAM[0x10] == 0x2A, got %#x", ram[0x10])
	}
	aOff, _, _ := layout.Offset("A")
	if reg[aOff] != 0x2A {
		t.Errorf("expected A == 0x2A, got %#x", reg[aOff])
	}
}

// TestBranchForward_BEQ covers a forward conditional branch: with the Z
// flag clear, control must fall through rather than take the branch.
func TestBranchForward_BEQ(t *testing.T) {
	ram := []byte{
		0xF0, 0x04, // 0: BEQ +4  (to addr 6)
		0xA9, 0x11, // 2: LDA #$11  (fallthrough arm)
		0x60,       // 4: RTS
		0x00,       // 5: padding, unreachable
		0xA9, 0x22, // 6: LDA #$22  (branch target arm)
		0x60, // 8: RTS
	}
	read := func(addr uint64) (byte, bool) {
		if addr >= uint64(len(ram)) {
			return 0, false
		}
		return ram[addr], true
	}

	f := New()
	layout := buildLayout(t, f)

	tags := tagging.NewTagArray(0, len(ram))
	tg := tagging.NewTagger(f, read, tags)
	if err := tg.Tag(0); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	if !tags.Get(2).Has(tagging.AFTER_BRANCH) {
		t.Errorf("addr 2 (fallthrough) should be tagged AFTER_BRANCH")
	}
	if !tags.Get(6).Has(tagging.CODE_TARGET) {
		t.Errorf("addr 6 (branch target) should be tagged CODE_TARGET")
	}

	r := recompiler.New(f, layout, tags, read)
	fn, err := r.Recompile("beq")
	if err != nil {
		t.Fatalf("Recompile: %v", err)
	}
	if err := ir.Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	engine := ir.NewExecutionEngine()
	compiled := engine.Compile(fn)

	reg := make([]byte, layout.Layout.TotalBits/8)
	// Z flag clear: branch not taken, fallthrough arm (LDA #$11) runs.
	compiled(ram, reg, nil)

	aOff, _, _ := layout.Offset("A")
	if reg[aOff] != 0x11 {
		t.Errorf("expected fallthrough arm taken, A == 0x11, got %#x", reg[aOff])
	}
}

