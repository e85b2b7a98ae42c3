// Package recompiler assembles the addresses a Tagger discovered into IR
// basic blocks and a dispatching entry function, the direct analogue of
// the original's cpu_recompile / cpu_recompile_singlestep.
package recompiler

import (
	"fmt"
	"sort"

	"github.com/tathanhdinh/libcpu/pkg/arch"
	"github.com/tathanhdinh/libcpu/pkg/ir"
	"github.com/tathanhdinh/libcpu/pkg/tagging"
)

// JIT_RETURN_FUNCNOTFOUND is the sentinel status the dispatch block's
// switch default returns when resumed at an address with no compiled
// block, the direct analogue of the original's same-named constant.
const JIT_RETURN_FUNCNOTFOUND int32 = -1

// Recompiler turns a tagged region into a single IR Function: one block
// per discovered basic block, plus the Entry/Dispatch/Ret scaffolding
// every compiled function carries.
type Recompiler struct {
	Frontend arch.Frontend
	Layout   *arch.LayoutView
	Tags     *tagging.TagArray
	Read     func(uint64) (byte, bool)
}

func New(f arch.Frontend, layout *arch.LayoutView, tags *tagging.TagArray, read func(uint64) (byte, bool)) *Recompiler {
	return &Recompiler{Frontend: f, Layout: layout, Tags: tags, Read: read}
}

// isBlockStart reports whether addr is a control-flow join point that
// must begin its own basic block: an explicit tagging root, a call's
// return site, a branch's fallthrough, or any statically known branch/
// call target.
func isBlockStart(tag tagging.Tag) bool {
	return tag.Has(tagging.ENTRY) ||
		tag.Has(tagging.AFTER_CALL) ||
		tag.Has(tagging.AFTER_BRANCH) ||
		tag.Has(tagging.CODE_TARGET) ||
		tag.Has(tagging.SUBROUTINE)
}

// isDispatchCase reports whether addr is a legal dynamic re-entry point:
// the narrower set the dispatch switch's cases enumerate, as opposed to
// every address that merely needs its own basic block. ENTRY and
// AFTER_CALL are the only tags a caller can resume into from outside the
// function; a branch target or bare block boundary still needs a block,
// but dispatching into it from PC alone is never legal.
func isDispatchCase(tag tagging.Tag) bool {
	return tag.Has(tagging.ENTRY) || tag.Has(tagging.AFTER_CALL)
}

// blockStarts returns every CODE address in the tag array that is also a
// block start, in ascending order: one lifted block each. The dispatch
// switch's cases are only the isDispatchCase subset of these.
func (r *Recompiler) blockStarts() []uint64 {
	var starts []uint64
	for i, tag := range r.Tags.Bits {
		if !tag.Has(tagging.CODE) {
			continue
		}
		addr := r.Tags.Base + uint64(i)
		if isBlockStart(tag) {
			starts = append(starts, addr)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// Recompile builds a whole-region function covering every block
// discovered by the tagger: a dispatch block that switches on the guest
// PC to the right lifted block, and one lifted block per entry in
// blockStarts.
func (r *Recompiler) Recompile(name string) (*ir.Function, error) {
	fn, b := ir.NewFunction(name)

	starts := r.blockStarts()
	if len(starts) == 0 {
		return nil, fmt.Errorf("recompiler: no tagged blocks to recompile")
	}

	blockIDs := make(map[uint64]ir.BlockID, len(starts))
	for _, addr := range starts {
		blockIDs[addr] = b.NewBlock(fmt.Sprintf("blk_%#x", addr), addr)
	}

	b.SetBlock(fn.Entry)
	b.Br(fn.Dispatch)

	b.SetBlock(fn.Dispatch)
	pc := r.Frontend.EmitReadPC(b, fn, r.Layout)
	cases := make(map[uint64]ir.BlockID)
	for _, addr := range starts {
		if isDispatchCase(r.Tags.Get(addr)) {
			cases[addr] = blockIDs[addr]
		}
	}
	b.Switch(pc, cases, fn.Ret)

	b.SetBlock(fn.Ret)
	notFoundStatus := JIT_RETURN_FUNCNOTFOUND
	notFound := b.Const(ir.I32, uint64(uint32(notFoundStatus)))
	b.Ret(notFound)

	for idx, addr := range starts {
		var end uint64
		if idx+1 < len(starts) {
			end = starts[idx+1]
		} else {
			end = r.Tags.Base + uint64(len(r.Tags.Bits))
		}
		if err := r.liftBlock(b, fn, blockIDs[addr], addr, end, blockIDs); err != nil {
			return nil, err
		}
	}

	return fn, nil
}

// liftBlock decodes and emits every instruction from addr up to end (the
// next block start), wiring its terminator either to a successor block
// (continue/fallthrough/known target) or into Dispatch for a dynamically
// resolved transfer (FlowRet, or a statically known target that fell
// outside this region).
func (r *Recompiler) liftBlock(b *ir.Builder, fn *ir.Function, blk ir.BlockID, addr, end uint64, blockIDs map[uint64]ir.BlockID) error {
	b.SetBlock(blk)

	cur := addr
	for cur < end {
		if !r.Tags.Get(cur).Has(tagging.CODE) {
			return &tagging.MissingBasicBlockError{Addr: cur}
		}
		inst, err := r.Frontend.DisasmInstr(cur, r.Read)
		if err != nil {
			return fmt.Errorf("recompiler: disasm at %#x: %w", cur, err)
		}
		resolve := func(a uint64) (ir.BlockID, bool) {
			id, ok := blockIDs[a]
			return id, ok
		}
		if err := r.Frontend.EmitInstr(b, fn, r.Layout, inst, r.Read, resolve); err != nil {
			return fmt.Errorf("recompiler: emit at %#x: %w", cur, err)
		}

		next := cur + uint64(inst.Length)
		switch inst.Flow {
		case arch.FlowContinue:
			if next >= end {
				r.linkToDispatchOrBlock(b, fn, next, blockIDs)
				return nil
			}
			cur = next
			continue

		case arch.FlowBranch, arch.FlowJump, arch.FlowCall:
			// These terminate the block themselves: EmitInstr branches
			// (CondBr for FlowBranch, Br for FlowJump/FlowCall) to the
			// target's block when it is in this region, or writes the
			// target PC and branches to Dispatch when it is not. Whole-region lifting trusts the front end to
			// have left the block properly terminated.
			return nil

		case arch.FlowRet, arch.FlowErr:
			b.Br(fn.Dispatch)
			return nil
		}
	}

	r.linkToDispatchOrBlock(b, fn, cur, blockIDs)
	return nil
}

func (r *Recompiler) linkToDispatchOrBlock(b *ir.Builder, fn *ir.Function, addr uint64, blockIDs map[uint64]ir.BlockID) {
	if id, ok := blockIDs[addr]; ok {
		b.Br(id)
		return
	}
	b.Br(fn.Dispatch)
}

// RecompileSingleStep builds a function that lifts exactly one
// instruction at addr and returns, the analogue of
// cpu_recompile_singlestep: no dispatch switch over multiple blocks,
// since there is only ever one block to resume into.
//
// Dispatch is kept as a trivial forwarder straight to Ret, so that
// EmitInstr's ordinary "write PC and branch to Dispatch" fallback for a
// statically known but out-of-unit target behaves identically here and in
// whole-region mode, without the lifted instruction's own block having to
// branch to itself.
func (r *Recompiler) RecompileSingleStep(name string, addr uint64) (*ir.Function, error) {
	fn, b := ir.NewFunction(name)

	if !r.Tags.Get(addr).Has(tagging.CODE) {
		return nil, &tagging.MissingBasicBlockError{Addr: addr}
	}
	inst, err := r.Frontend.DisasmInstr(addr, r.Read)
	if err != nil {
		return nil, fmt.Errorf("recompiler: disasm at %#x: %w", addr, err)
	}

	step := b.NewBlock(fmt.Sprintf("step_%#x", addr), addr)

	b.SetBlock(fn.Entry)
	b.Br(step)

	b.SetBlock(fn.Dispatch)
	b.Br(fn.Ret)

	b.SetBlock(step)
	// Single-step mode never switches on multiple successors: any
	// statically known target simply isn't part of this one-instruction
	// translation unit, so resolveBlock always reports "not found" and
	// EmitInstr falls back to writing PC and branching to Dispatch, which
	// forwards straight to Ret above.
	noBlocks := func(uint64) (ir.BlockID, bool) { return 0, false }
	if err := r.Frontend.EmitInstr(b, fn, r.Layout, inst, r.Read, noBlocks); err != nil {
		return nil, fmt.Errorf("recompiler: emit at %#x: %w", addr, err)
	}
	if inst.Flow == arch.FlowContinue || inst.Flow == arch.FlowRet || inst.Flow == arch.FlowErr {
		b.Br(fn.Ret)
	}

	b.SetBlock(fn.Ret)
	status := b.Const(ir.I32, 0)
	b.Ret(status)

	return fn, nil
}
