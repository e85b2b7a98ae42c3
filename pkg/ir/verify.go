package ir

// Verify checks the structural invariants an ExecutionEngine relies on:
// every block is non-empty and its last instruction is a terminator,
// every block/value reference resolves within the function, and the
// three distinguished blocks (Entry/Dispatch/Ret) exist. It does not
// reject a terminator in the middle of a block, and it does not check
// that Dispatch or Ret is reachable.
//
// This is deliberately shallower than a dominance/type-checking verifier;
// the IR has no phi nodes and no cross-block value graph to check, so the
// failure modes worth catching are dangling references and missing
// terminators, matching the two ways a hand-written recompiler pass could
// realistically produce a broken function.
func Verify(fn *Function) error {
	if err := verifyDistinguishedBlocks(fn); err != nil {
		return err
	}

	nInstrs := Value(len(fn.Instrs))

	checkValue := func(blockName string, v Value) error {
		if v == 0 {
			return nil
		}
		if v < 1 || v > nInstrs {
			return &ModuleVerifyError{Kind: ErrDanglingValueRef, Block: blockName, Detail: "value out of range"}
		}
		return nil
	}

	checkBlock := func(blockName string, id BlockID) error {
		if fn.Block(id) == nil {
			return &ModuleVerifyError{Kind: ErrDanglingBlockRef, Block: blockName, Detail: "block id out of range"}
		}
		return nil
	}

	for _, blk := range fn.Blocks {
		if len(blk.Instrs) == 0 {
			return &ModuleVerifyError{Kind: ErrMissingTerminator, Block: blk.Name, Detail: "empty block"}
		}
		last := fn.instr(blk.Instrs[len(blk.Instrs)-1])
		switch last.Op {
		case OpBr:
			if err := checkBlock(blk.Name, last.Target); err != nil {
				return err
			}
		case OpCondBr:
			if err := checkValue(blk.Name, last.Cond); err != nil {
				return err
			}
			if err := checkBlock(blk.Name, last.TrueBlock); err != nil {
				return err
			}
			if err := checkBlock(blk.Name, last.FalseBlock); err != nil {
				return err
			}
		case OpSwitch:
			if err := checkValue(blk.Name, last.Cond); err != nil {
				return err
			}
			if err := checkBlock(blk.Name, last.Default); err != nil {
				return err
			}
			for _, tgt := range last.Cases {
				if err := checkBlock(blk.Name, tgt); err != nil {
					return err
				}
			}
		case OpRet:
			// terminator, no block refs to check
		default:
			return &ModuleVerifyError{Kind: ErrMissingTerminator, Block: blk.Name, Detail: "block does not end in a terminator"}
		}

		for _, v := range blk.Instrs {
			in := fn.instr(v)
			if err := checkValue(blk.Name, in.Local); err != nil {
				return err
			}
			if err := checkValue(blk.Name, in.Addr); err != nil {
				return err
			}
			if err := checkValue(blk.Name, in.Args[0]); err != nil {
				return err
			}
			if err := checkValue(blk.Name, in.Args[1]); err != nil {
				return err
			}
			if err := checkValue(blk.Name, in.Cond); err != nil {
				return err
			}
		}
	}

	return nil
}

func verifyDistinguishedBlocks(fn *Function) error {
	for name, id := range map[string]BlockID{"entry": fn.Entry, "dispatch": fn.Dispatch, "ret": fn.Ret} {
		if fn.Block(id) == nil {
			return &ModuleVerifyError{Kind: ErrUnreachableDistinguishedBlock, Block: name, Detail: "distinguished block missing"}
		}
	}
	return nil
}
