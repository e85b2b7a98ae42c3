// Package m6502 is a guest architecture front-end for a useful subset of
// the MOS 6502 instruction set: enough addressing modes and control-flow
// instructions to exercise every discovery and lifting path the tagger,
// recompiler and register-file builder support (linear blocks, forward
// branches, subroutine calls and returns).
//
// It is not a complete 6502 decoder; unimplemented opcodes report a
// decode error rather than silently misclassifying flow, since a wrong
// Flow/Length would corrupt the tagger's reachability walk.
package m6502

import (
	"fmt"

	"github.com/tathanhdinh/libcpu/pkg/arch"
	"github.com/tathanhdinh/libcpu/pkg/ir"
	"github.com/tathanhdinh/libcpu/pkg/regfile"
)

func init() {
	arch.Register("m6502", func() arch.Frontend { return New() })
}

// Opcode names the handful of instructions this front-end understands.
const (
	opBRK byte = 0x00
	opJSR byte = 0x20
	opRTS byte = 0x60
	opLDAimm byte = 0xA9
	opLDAzp  byte = 0xA5
	opSTAzp  byte = 0x85
	opBEQ    byte = 0xF0
	opNOP    byte = 0xEA
)

// Frontend implements arch.Frontend for the 6502 subset above.
type Frontend struct{}

func New() *Frontend { return &Frontend{} }

func (*Frontend) Name() string { return "m6502" }

func (*Frontend) Init(u arch.UnitView) error { return nil }

// DescribeRegisters declares the 6502's six architectural registers: the
// three 8-bit general registers (A, X, Y), the 8-bit stack pointer S, the
// 16-bit program counter PC, and the 8-bit status register P with its
// seven condition-flag pseudo-registers bound to individual bits, exactly
// the sub-register shape register_file_builder.cpp's
// create_pseudo_aliased_sub exists to handle.
func (*Frontend) DescribeRegisters() *regfile.Graph {
	flag := func(name string, bit int) *regfile.RegisterInfo {
		return &regfile.RegisterInfo{
			Name: name, Type: regfile.Type{Bits: 1}, BitStart: bit, Binding: "%P",
		}
	}
	return &regfile.Graph{Nodes: []*regfile.RegisterInfo{
		{Name: "A", Type: regfile.Type{Bits: 8}},
		{Name: "X", Type: regfile.Type{Bits: 8}},
		{Name: "Y", Type: regfile.Type{Bits: 8}},
		{Name: "S", Type: regfile.Type{Bits: 8}},
		{Name: "PC", Type: regfile.Type{Bits: 16}},
		{
			Name: "P", Type: regfile.Type{Bits: 8},
			Subs: []*regfile.RegisterInfo{
				flag("%N", 7),
				flag("%V", 6),
				flag("%B", 4),
				flag("%D", 3),
				flag("%I", 2),
				flag("%Z", 1),
				flag("%C", 0),
			},
		},
	}}
}

// DisasmInstr decodes the single instruction at addr. Length and Flow
// always reflect the real 6502 semantics for the opcodes this front end
// knows; an unknown opcode is a hard decode error rather than a guess.
func (*Frontend) DisasmInstr(addr uint64, read func(uint64) (byte, bool)) (arch.DecodedInstr, error) {
	op, ok := read(addr)
	if !ok {
		return arch.DecodedInstr{}, fmt.Errorf("m6502: address %#x unreadable", addr)
	}

	switch op {
	case opNOP:
		return arch.DecodedInstr{Addr: addr, Length: 1, Flow: arch.FlowContinue}, nil

	case opLDAimm, opLDAzp, opSTAzp:
		return arch.DecodedInstr{Addr: addr, Length: 2, Flow: arch.FlowContinue}, nil

	case opBEQ:
		offB, ok := read(addr + 1)
		if !ok {
			return arch.DecodedInstr{}, fmt.Errorf("m6502: branch operand at %#x unreadable", addr+1)
		}
		target := addr + 2 + uint64(int64(int8(offB)))
		return arch.DecodedInstr{Addr: addr, Length: 2, Flow: arch.FlowBranch, Target: target}, nil

	case opJSR:
		lo, okLo := read(addr + 1)
		hi, okHi := read(addr + 2)
		if !okLo || !okHi {
			return arch.DecodedInstr{}, fmt.Errorf("m6502: jsr operand at %#x unreadable", addr+1)
		}
		target := uint64(lo) | uint64(hi)<<8
		return arch.DecodedInstr{Addr: addr, Length: 3, Flow: arch.FlowCall, Target: target}, nil

	case opRTS:
		return arch.DecodedInstr{Addr: addr, Length: 1, Flow: arch.FlowRet}, nil

	case opBRK:
		return arch.DecodedInstr{Addr: addr, Length: 1, Flow: arch.FlowRet}, nil

	default:
		return arch.DecodedInstr{}, fmt.Errorf("m6502: unimplemented opcode %#02x at %#x", op, addr)
	}
}

// EmitInstr lifts one decoded 6502 instruction into b.
func (f *Frontend) EmitInstr(b *ir.Builder, fn *ir.Function, layout *arch.LayoutView, d arch.DecodedInstr, read func(uint64) (byte, bool), resolveBlock func(uint64) (ir.BlockID, bool)) error {
	op, ok := read(d.Addr)
	if !ok {
		return fmt.Errorf("m6502: address %#x unreadable during emit", d.Addr)
	}

	aOff, aBits, _ := layout.Offset("A")

	switch op {
	case opNOP:
		return nil

	case opLDAimm:
		imm, _ := read(d.Addr + 1)
		c := b.Const(ir.Type{Bits: aBits}, uint64(imm))
		b.StoreReg(b.Const(ir.I64, uint64(aOff)), c)
		return nil

	case opLDAzp:
		zp, _ := read(d.Addr + 1)
		addr := b.Const(ir.I64, uint64(zp))
		v := b.LoadRAM(ir.Type{Bits: aBits}, addr)
		b.StoreReg(b.Const(ir.I64, uint64(aOff)), v)
		return nil

	case opSTAzp:
		zp, _ := read(d.Addr + 1)
		addr := b.Const(ir.I64, uint64(zp))
		v := b.LoadReg(ir.Type{Bits: aBits}, b.Const(ir.I64, uint64(aOff)))
		b.StoreRAM(addr, v)
		return nil

	case opBEQ:
		return f.emitBranch(b, fn, layout, d, resolveBlock)

	case opJSR:
		return f.emitCall(b, fn, layout, d, resolveBlock)

	case opRTS, opBRK:
		// This subset keeps no return-address stack, so neither
		// instruction has a real successor address: both store the
		// address right after themselves into PC. The recompiler then
		// terminates the block itself for FlowRet (a Br to Dispatch in
		// whole-region mode, which falls through to Ret unless that
		// address is a dispatch case; a Br to Ret in single-step mode).
		f.EmitWritePC(b, fn, layout, b.Const(ir.I16, d.Addr+uint64(d.Length)))
		return nil
	}
	return fmt.Errorf("m6502: EmitInstr: unimplemented opcode %#02x", op)
}

func (f *Frontend) emitBranch(b *ir.Builder, fn *ir.Function, layout *arch.LayoutView, d arch.DecodedInstr, resolveBlock func(uint64) (ir.BlockID, bool)) error {
	pOff, pBits, bit, ok := layout.PseudoFlag("%Z")
	if !ok {
		return fmt.Errorf("m6502: %%Z flag not found in register layout")
	}
	pVal := b.LoadReg(ir.Type{Bits: pBits}, b.Const(ir.I64, uint64(pOff)))
	shifted := b.BinOp(ir.LShr, ir.Type{Bits: pBits}, pVal, b.Const(ir.Type{Bits: pBits}, uint64(bit)))
	masked := b.BinOp(ir.And, ir.Type{Bits: pBits}, shifted, b.Const(ir.Type{Bits: pBits}, 1))
	cond := b.ICmp(ir.ICmpNE, masked, b.Const(ir.Type{Bits: pBits}, 0))

	fallthroughAddr := d.Addr + uint64(d.Length)
	trueBlk, trueOK := resolveBlock(d.Target)
	falseBlk, falseOK := resolveBlock(fallthroughAddr)

	if trueOK && falseOK {
		b.CondBr(cond, trueBlk, falseBlk)
		return nil
	}

	// One or both sides leave this translation unit: write PC for
	// whichever side is taken via a tiny two-arm shell, then redispatch.
	taken := b.NewBlock("", 0)
	notTaken := b.NewBlock("", 0)
	b.CondBr(cond, taken, notTaken)

	b.SetBlock(taken)
	f.writePCOrBranch(b, fn, layout, d.Target, trueBlk, trueOK)

	b.SetBlock(notTaken)
	f.writePCOrBranch(b, fn, layout, fallthroughAddr, falseBlk, falseOK)

	return nil
}

func (f *Frontend) writePCOrBranch(b *ir.Builder, fn *ir.Function, layout *arch.LayoutView, addr uint64, blk ir.BlockID, ok bool) {
	if ok {
		b.Br(blk)
		return
	}
	f.EmitWritePC(b, fn, layout, b.Const(ir.I16, addr))
	b.Br(fn.Dispatch)
}

func (f *Frontend) emitCall(b *ir.Builder, fn *ir.Function, layout *arch.LayoutView, d arch.DecodedInstr, resolveBlock func(uint64) (ir.BlockID, bool)) error {
	// Demo-scope JSR: does not model the hardware return-address stack
	// push (RTS in this subset never needs to pop one, since RTS is
	// always lifted as a FlowRet with no statically known successor
	// regardless). This keeps the example architecture within the
	// dispatch-cover invariant without pretending to a full call stack.
	if blk, ok := resolveBlock(d.Target); ok {
		b.Br(blk)
		return nil
	}
	f.EmitWritePC(b, fn, layout, b.Const(ir.I16, d.Target))
	b.Br(fn.Dispatch)
	return nil
}

// EmitReadPC loads the current PC register value.
func (*Frontend) EmitReadPC(b *ir.Builder, fn *ir.Function, layout *arch.LayoutView) ir.Value {
	off, bits, _ := layout.Offset("PC")
	return b.LoadReg(ir.Type{Bits: bits}, b.Const(ir.I64, uint64(off)))
}

// EmitWritePC stores v into the PC register.
func (*Frontend) EmitWritePC(b *ir.Builder, fn *ir.Function, layout *arch.LayoutView, v ir.Value) {
	off, _, _ := layout.Offset("PC")
	b.StoreReg(b.Const(ir.I64, uint64(off)), v)
}
