// Package arch defines the capability surface every guest architecture
// front-end implements. It is the only package in this module permitted
// to know anything architecture-specific; the tagger, recompiler and JIT
// driver all operate purely in terms of this interface.
package arch

import (
	"github.com/tathanhdinh/libcpu/pkg/ir"
	"github.com/tathanhdinh/libcpu/pkg/regfile"
)

// Flow classifies how control flow continues after a decoded instruction,
// matching the original's flow_t enumeration used to drive tag_recursive's
// recursion.
type Flow int

const (
	// FlowErr indicates the decoder could not classify the instruction at
	// all (e.g. it straddles the end of the mapped region).
	FlowErr Flow = iota
	// FlowContinue: falls through to the next instruction, no branch.
	FlowContinue
	// FlowBranch: conditional transfer; both the fallthrough address and
	// Target are live successors.
	FlowBranch
	// FlowJump: unconditional transfer to Target; no fallthrough successor.
	FlowJump
	// FlowCall: transfers to Target and implicitly marks the fallthrough
	// address AFTER_CALL.
	FlowCall
	// FlowRet: transfers to a dynamically-computed address (not staticall
	// known); terminates this block with no statically known successor.
	FlowRet
)

// NoTarget is the sentinel Target value meaning "this FlowBranch,
// FlowJump or FlowCall has no statically known target address" (an
// indirect transfer); the tagger does not recurse into it.
const NoTarget uint64 = ^uint64(0)

// DecodedInstr is everything the tagger and recompiler need to know about
// one decoded guest instruction without re-decoding it.
type DecodedInstr struct {
	Addr   uint64
	Length int
	Flow   Flow
	// Target is the statically known transfer address for FlowBranch,
	// FlowJump and FlowCall, or NoTarget for an indirect one. It is not
	// read for any other Flow.
	Target uint64
}

// UnitView is the minimal slice of the JIT driver's translation unit a
// Frontend needs during Init: enough to read RAM bytes and the register
// layout without
// pkg/arch importing pkg/jit (which would create an import cycle, since
// pkg/jit imports pkg/arch for the Frontend type itself).
type UnitView interface {
	ByteAt(addr uint64) (byte, bool)
	RegisterLayout() *regfile.Layout
}

// Frontend is the capability set a guest architecture implements. Every
// method is pure with respect to the translation unit's tag array and
// RAM image; none of them may mutate guest state, since the tagger calls
// DisasmInstr speculatively while discovering code.
type Frontend interface {
	// Name identifies the architecture for registration and error
	// messages (e.g. "m6502").
	Name() string

	// DisasmInstr decodes the instruction at addr, reading bytes via
	// read. It returns the decode result or an error if the bytes do not
	// form a valid instruction.
	DisasmInstr(addr uint64, read func(uint64) (byte, bool)) (DecodedInstr, error)

	// DescribeRegisters returns this architecture's register-dependency
	// graph for pkg/regfile's Builder to turn into a Layout.
	DescribeRegisters() *regfile.Graph

	// EmitInstr lifts the single decoded instruction into b, assuming b is
	// positioned at the block meant to hold this instruction's IR. layout
	// is the already-built register layout, so EmitInstr can compute
	// constant register-file byte offsets itself.
	//
	// For FlowBranch, FlowJump and FlowCall, EmitInstr is responsible for
	// terminating the current block itself: resolve the statically known
	// target address through resolveBlock, and either Br/CondBr directly
	// to the block it returns, or — if resolveBlock reports the address
	// is not part of this translation unit — write the target into the
	// guest PC via EmitWritePC and Br to fn.Dispatch so the driver's
	// dispatch switch (or a future retranslation) can take over.
	//
	// For FlowContinue, FlowRet and FlowErr, EmitInstr must leave the
	// block unterminated: the recompiler appends the appropriate Br
	// itself, since there is never a statically known target to resolve
	// for these.
	EmitInstr(b *ir.Builder, fn *ir.Function, layout *LayoutView, d DecodedInstr, read func(uint64) (byte, bool), resolveBlock func(addr uint64) (ir.BlockID, bool)) error

	// EmitReadPC emits IR that loads the current guest program counter
	// into a fresh value and returns it, used by the recompiler's
	// dispatch block to switch on the resumed address.
	EmitReadPC(b *ir.Builder, fn *ir.Function, layout *LayoutView) ir.Value

	// EmitWritePC emits IR that stores v into the guest program counter,
	// used when lifting a call/branch/jump so dispatch resumes at the
	// right place after a retranslation.
	EmitWritePC(b *ir.Builder, fn *ir.Function, layout *LayoutView, v ir.Value)

	// Init gives the architecture a chance to inspect the translation
	// unit once at attach time (e.g. to precompute an addressing table);
	// most front-ends can implement this as a no-op.
	Init(u UnitView) error
}

// LayoutView wraps a built regfile.Layout with the lookup helpers
// EmitInstr/EmitReadPC/EmitWritePC need: resolving a register name to its
// constant byte offset and width within the reg []byte buffer.
type LayoutView struct {
	Layout *regfile.Layout
}

// Offset returns the byte offset of name (a scalar register or one member
// of an array-style RegisterSet) within the register-file buffer, and its
// storage width in bits.
func (v *LayoutView) Offset(name string) (offset int, bits int, ok bool) {
	set := v.Layout.ByName(name)
	if set == nil {
		return 0, 0, false
	}
	if len(set.Array) <= 1 {
		return set.Offset, set.StorageBits, true
	}
	for i, a := range set.Array {
		if a == name {
			return set.Offset + i*(set.StorageBits/8), set.StorageBits, true
		}
	}
	return 0, 0, false
}

// PseudoFlag resolves a condition-flag pseudo-register (e.g. "%Z") to the
// byte offset and storage width of the concrete register it is aliased
// into, plus the bit index within that register's value. Architectures
// use this rather than Offset for any sub-register the builder resolved
// as SubPseudoAliased, since those have no storage offset of their own.
func (v *LayoutView) PseudoFlag(name string) (offset int, bits int, bit int, ok bool) {
	for _, set := range v.Layout.Sets {
		for _, sub := range set.Subs {
			if sub.Name == name && sub.Kind == regfile.SubPseudoAliased {
				off, storageBits, ok2 := v.Offset(sub.UpdateTarget)
				if !ok2 {
					return 0, 0, 0, false
				}
				return off, storageBits, sub.PseudoBit, true
			}
		}
	}
	return 0, 0, 0, false
}
