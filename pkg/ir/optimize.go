package ir

// PassFlag is a single bit in the 64-bit optimizer flag word the JIT
// driver passes down to Optimize. Bits are grouped in exactly the fixed
// order the original cpu_recompile's optimize() applies its pass list:
// TargetData runs unconditionally first, then every other requested pass
// runs in declaration order below regardless of the order its bit was set
// in by the caller. A bitmask cannot express "run GVN before InstCombine
// but after LICM unconditionally" on its own; ordering is a property of
// this list, not of the flag word (see the open critique in SPEC_FULL.md
// §9).
type PassFlag uint64

const (
	PassGlobalDCE PassFlag = 1 << iota
	PassRaiseAllocations
	PassCFGSimplify1
	PassMem2Reg
	PassGlobalOptimizer
	PassGlobalDCE2
	PassIPConstProp
	PassDeadArgElim
	PassInstCombine1
	PassCFGSimplify2
	PassPruneEH
	PassInlining
	PassArgPromotion
	PassTailDup
	PassInstCombine2
	PassCFGSimplify3
	PassSROA
	PassInstCombine3
	PassCondProp1
	PassTailCallElim
	PassCFGSimplify4
	PassReassociate
	PassLoopRotate
	PassLICM
	PassLoopUnswitch
	PassInstCombine4
	PassIndVarSimplify
	PassLoopUnroll
	PassInstCombine5
	PassGVN
	PassSCCP
	PassInstCombine6
	PassCondProp2
	PassDeadStoreElim
	PassAggressiveDCE
	PassCFGSimplify5
	PassSimplifyLibCalls
	PassDeadTypeElim
	PassConstantMerge
)

// orderedPasses is the fixed application order, mirroring optimize()'s
// straight-line sequence of "if (flags & X) runX();" calls.
var orderedPasses = []struct {
	flag PassFlag
	name string
	run  func(*Function) bool
}{
	{PassGlobalDCE, "global-dce", globalDCE},
	{PassRaiseAllocations, "raise-allocations", noop},
	{PassCFGSimplify1, "cfg-simplify", cfgSimplify},
	{PassMem2Reg, "mem2reg", noop},
	{PassGlobalOptimizer, "global-optimizer", noop},
	{PassGlobalDCE2, "global-dce", globalDCE},
	{PassIPConstProp, "ip-const-prop", noop},
	{PassDeadArgElim, "dead-arg-elim", noop},
	{PassInstCombine1, "inst-combine", instCombine},
	{PassCFGSimplify2, "cfg-simplify", cfgSimplify},
	{PassPruneEH, "prune-eh", noop},
	{PassInlining, "inlining", noop},
	{PassArgPromotion, "arg-promotion", noop},
	{PassTailDup, "tail-dup", noop},
	{PassInstCombine2, "inst-combine", instCombine},
	{PassCFGSimplify3, "cfg-simplify", cfgSimplify},
	{PassSROA, "sroa", noop},
	{PassInstCombine3, "inst-combine", instCombine},
	{PassCondProp1, "cond-prop", condPropBranchFold},
	{PassTailCallElim, "tail-call-elim", noop},
	{PassCFGSimplify4, "cfg-simplify", cfgSimplify},
	{PassReassociate, "reassociate", noop},
	{PassLoopRotate, "loop-rotate", noop},
	{PassLICM, "licm", noop},
	{PassLoopUnswitch, "loop-unswitch", noop},
	{PassInstCombine4, "inst-combine", instCombine},
	{PassIndVarSimplify, "indvar-simplify", noop},
	{PassLoopUnroll, "loop-unroll", noop},
	{PassInstCombine5, "inst-combine", instCombine},
	{PassGVN, "gvn", noop},
	{PassSCCP, "sccp", noop},
	{PassInstCombine6, "inst-combine", instCombine},
	{PassCondProp2, "cond-prop", condPropBranchFold},
	{PassDeadStoreElim, "dead-store-elim", deadStoreElim},
	{PassAggressiveDCE, "aggressive-dce", globalDCE},
	{PassCFGSimplify5, "cfg-simplify", cfgSimplify},
	{PassSimplifyLibCalls, "simplify-lib-calls", noop},
	{PassDeadTypeElim, "dead-type-elim", noop},
	{PassConstantMerge, "constant-merge", noop},
}

func noop(*Function) bool { return false }

// Optimize runs every pass selected by flags, in the fixed order above,
// repeating until a full pass over the selected set makes no further
// change or maxRounds is reached. TargetData has no Go analogue (it binds
// LLVM's target layout into the module) and is always implicitly applied
// by virtue of the IR already being laid out for one target.
func Optimize(fn *Function, flags PassFlag, maxRounds int) {
	if maxRounds <= 0 {
		maxRounds = 4
	}
	for round := 0; round < maxRounds; round++ {
		changed := false
		for _, p := range orderedPasses {
			if flags&p.flag == 0 {
				continue
			}
			if p.run(fn) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// globalDCE removes blocks unreachable from Entry via a simple reachability
// walk over terminators.
func globalDCE(fn *Function) bool {
	reachable := map[BlockID]bool{fn.Entry: true}
	work := []BlockID{fn.Entry}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		blk := fn.Block(id)
		if blk == nil || len(blk.Instrs) == 0 {
			continue
		}
		last := fn.instr(blk.Instrs[len(blk.Instrs)-1])
		var succs []BlockID
		switch last.Op {
		case OpBr:
			succs = []BlockID{last.Target}
		case OpCondBr:
			succs = []BlockID{last.TrueBlock, last.FalseBlock}
		case OpSwitch:
			succs = append(succs, last.Default)
			for _, t := range last.Cases {
				succs = append(succs, t)
			}
		}
		for _, s := range succs {
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}
	// Always keep the distinguished blocks even if the generic walk
	// doesn't reach them (e.g. Ret is reached only via Dispatch's switch
	// default in some lift strategies).
	reachable[fn.Entry] = true
	reachable[fn.Dispatch] = true
	reachable[fn.Ret] = true

	changed := false
	kept := fn.Blocks[:0:0]
	remap := map[BlockID]BlockID{}
	for old, blk := range fn.Blocks {
		if reachable[BlockID(old)] {
			remap[BlockID(old)] = BlockID(len(kept))
			kept = append(kept, blk)
		} else {
			changed = true
		}
	}
	if !changed {
		return false
	}
	fn.Blocks = kept
	for _, blk := range fn.Blocks {
		if len(blk.Instrs) == 0 {
			continue
		}
		last := fn.instr(blk.Instrs[len(blk.Instrs)-1])
		switch last.Op {
		case OpBr:
			last.Target = remap[last.Target]
		case OpCondBr:
			last.TrueBlock = remap[last.TrueBlock]
			last.FalseBlock = remap[last.FalseBlock]
		case OpSwitch:
			last.Default = remap[last.Default]
			newCases := make(map[uint64]BlockID, len(last.Cases))
			for k, v := range last.Cases {
				newCases[k] = remap[v]
			}
			last.Cases = newCases
		}
	}
	fn.Entry = remap[fn.Entry]
	fn.Dispatch = remap[fn.Dispatch]
	fn.Ret = remap[fn.Ret]
	return true
}

// cfgSimplify collapses a block whose only instruction is an
// unconditional Br into its target, rewriting any predecessor's
// reference to point directly at the target. This is the one CFG shape
// the tagger/recompiler reliably produces (a fallthrough-only block) so
// it is the one shape worth simplifying without a full CFG pass
// infrastructure.
func cfgSimplify(fn *Function) bool {
	alias := map[BlockID]BlockID{}
	for id, blk := range fn.Blocks {
		if len(blk.Instrs) == 1 {
			if in := fn.instr(blk.Instrs[0]); in.Op == OpBr && BlockID(id) != fn.Entry {
				alias[BlockID(id)] = in.Target
			}
		}
	}
	if len(alias) == 0 {
		return false
	}
	resolve := func(id BlockID) BlockID {
		for {
			t, ok := alias[id]
			if !ok || t == id {
				return id
			}
			id = t
		}
	}
	changed := false
	for _, blk := range fn.Blocks {
		if len(blk.Instrs) == 0 {
			continue
		}
		last := fn.instr(blk.Instrs[len(blk.Instrs)-1])
		switch last.Op {
		case OpBr:
			if r := resolve(last.Target); r != last.Target {
				last.Target = r
				changed = true
			}
		case OpCondBr:
			if r := resolve(last.TrueBlock); r != last.TrueBlock {
				last.TrueBlock = r
				changed = true
			}
			if r := resolve(last.FalseBlock); r != last.FalseBlock {
				last.FalseBlock = r
				changed = true
			}
		case OpSwitch:
			if r := resolve(last.Default); r != last.Default {
				last.Default = r
				changed = true
			}
			for k, v := range last.Cases {
				if r := resolve(v); r != v {
					last.Cases[k] = r
					changed = true
				}
			}
		}
	}
	return changed
}

// instCombine folds a narrow set of arithmetic identities on OpBinOp
// (x+0, x*1, x&allones, x|0, x^0, x-0) that architecture front-ends
// commonly leave behind when an addressing mode's displacement is zero.
func instCombine(fn *Function) bool {
	changed := false
	for i := range fn.Instrs {
		in := &fn.Instrs[i]
		if in.Op != OpBinOp {
			continue
		}
		rhs := in.Args[1]
		if rhs == 0 || int(rhs) > len(fn.Instrs) {
			continue
		}
		rin := fn.instr(rhs)
		if rin.Op != OpConst {
			continue
		}
		switch in.BinOp {
		case Add, Sub, Or, Xor:
			if rin.ConstValue == 0 {
				in.Op = OpTrunc
				in.Args[1] = 0
				changed = true
			}
		case Mul:
			if rin.ConstValue == 1 {
				in.Op = OpTrunc
				in.Args[1] = 0
				changed = true
			}
		case And:
			if rin.ConstValue == mask64(in.Type.Bits) {
				in.Op = OpTrunc
				in.Args[1] = 0
				changed = true
			}
		}
	}
	return changed
}

// condPropBranchFold folds a CondBr whose condition is a known OpConst
// into an unconditional Br, the one constant-propagation shape that
// matters for dispatch blocks built from architecture flow analysis that
// already proved a branch direction statically.
func condPropBranchFold(fn *Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		if len(blk.Instrs) == 0 {
			continue
		}
		idx := len(blk.Instrs) - 1
		last := fn.instr(blk.Instrs[idx])
		if last.Op != OpCondBr {
			continue
		}
		if last.Cond == 0 || int(last.Cond) > len(fn.Instrs) {
			continue
		}
		cin := fn.instr(last.Cond)
		if cin.Op != OpConst {
			continue
		}
		target := last.FalseBlock
		if cin.ConstValue != 0 {
			target = last.TrueBlock
		}
		last.Op = OpBr
		last.Target = target
		changed = true
	}
	return changed
}

// deadStoreElim removes an OpStoreLocal that is immediately overwritten
// by another OpStoreLocal to the same local within the same block with no
// intervening load, the one redundant-store shape produced by an entry
// block's register-unpack sequence feeding straight into a
// spill-on-exit sequence with no use in between during single-step mode.
func deadStoreElim(fn *Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		lastStore := map[Value]int{}
		for pos, v := range blk.Instrs {
			in := fn.instr(v)
			switch in.Op {
			case OpStoreLocal:
				if prevPos, ok := lastStore[in.Local]; ok {
					prevV := blk.Instrs[prevPos]
					fn.instr(prevV).Op = OpTrunc
					fn.instr(prevV).Local = 0
					fn.instr(prevV).Args = [2]Value{}
					changed = true
				}
				lastStore[in.Local] = pos
			case OpLoadLocal:
				delete(lastStore, in.Local)
			}
		}
	}
	return changed
}
