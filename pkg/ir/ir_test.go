package ir

import "testing"

// buildAddOne constructs entry -> dispatch -> ret, where dispatch loads a
// register, adds one, stores it back, and ret returns 0.
func buildAddOne(t *testing.T) *Function {
	fn, b := NewFunction("add_one")

	b.SetBlock(fn.Entry)
	b.Br(fn.Dispatch)

	b.SetBlock(fn.Dispatch)
	off := b.Const(I64, 0)
	v := b.LoadReg(I32, off)
	one := b.Const(I32, 1)
	sum := b.BinOp(Add, I32, v, one)
	off2 := b.Const(I64, 0)
	b.StoreReg(off2, sum)
	b.Br(fn.Ret)

	b.SetBlock(fn.Ret)
	zero := b.Const(I32, 0)
	b.Ret(zero)

	_ = t
	return fn
}

func TestVerify_Valid(t *testing.T) {
	fn := buildAddOne(t)
	if err := Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_DanglingBlock(t *testing.T) {
	fn, b := NewFunction("broken")
	b.SetBlock(fn.Entry)
	b.Br(BlockID(99))

	err := Verify(fn)
	if err == nil {
		t.Fatal("expected error")
	}
	ve, ok := err.(*ModuleVerifyError)
	if !ok || ve.Kind != ErrDanglingBlockRef {
		t.Fatalf("expected ErrDanglingBlockRef, got %v", err)
	}
}

func TestEngine_AddOne(t *testing.T) {
	fn := buildAddOne(t)
	if err := Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	engine := NewExecutionEngine()
	compiled := engine.Compile(fn)

	reg := make([]byte, 4)
	reg[0] = 41
	status := compiled(nil, reg, nil)

	if status != 0 {
		t.Errorf("expected status 0, got %d", status)
	}
	if reg[0] != 42 {
		t.Errorf("expected reg[0] == 42, got %d", reg[0])
	}
}

func TestEngine_CondBranch(t *testing.T) {
	fn, b := NewFunction("branch")

	b.SetBlock(fn.Entry)
	b.Br(fn.Dispatch)

	trueBlk := b.NewBlock("true", 0)
	falseBlk := b.NewBlock("false", 0)

	b.SetBlock(fn.Dispatch)
	off := b.Const(I64, 0)
	v := b.LoadReg(I32, off)
	zero := b.Const(I32, 0)
	cond := b.ICmp(ICmpEQ, v, zero)
	b.CondBr(cond, trueBlk, falseBlk)

	b.SetBlock(trueBlk)
	c1 := b.Const(I32, 111)
	b.StoreReg(b.Const(I64, 0), c1)
	b.Br(fn.Ret)

	b.SetBlock(falseBlk)
	c2 := b.Const(I32, 222)
	b.StoreReg(b.Const(I64, 0), c2)
	b.Br(fn.Ret)

	b.SetBlock(fn.Ret)
	b.Ret(b.Const(I32, 0))

	if err := Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	engine := NewExecutionEngine()
	compiled := engine.Compile(fn)

	reg := make([]byte, 4)
	compiled(nil, reg, nil)
	if reg[0] != 111 {
		t.Errorf("expected true-branch taken, reg[0] = %d", reg[0])
	}

	reg2 := make([]byte, 4)
	reg2[0] = 9
	compiled(nil, reg2, nil)
	if reg2[0] != 222 {
		t.Errorf("expected false-branch taken, reg2[0] = %d", reg2[0])
	}
}

func TestOptimize_CondPropFold(t *testing.T) {
	fn, b := NewFunction("fold")
	b.SetBlock(fn.Entry)
	b.Br(fn.Dispatch)

	trueBlk := b.NewBlock("true", 0)
	falseBlk := b.NewBlock("false", 0)

	b.SetBlock(fn.Dispatch)
	cond := b.Const(I1, 1)
	b.CondBr(cond, trueBlk, falseBlk)

	b.SetBlock(trueBlk)
	b.Br(fn.Ret)
	b.SetBlock(falseBlk)
	b.Br(fn.Ret)

	b.SetBlock(fn.Ret)
	b.Ret(b.Const(I32, 0))

	Optimize(fn, PassCondProp1, 4)

	last := fn.instr(fn.Block(fn.Dispatch).Instrs[len(fn.Block(fn.Dispatch).Instrs)-1])
	if last.Op != OpBr {
		t.Fatalf("expected dispatch terminator folded to Br, got %v", last.Op)
	}
	if last.Target != trueBlk {
		t.Errorf("expected fold to true branch, got block %d", last.Target)
	}
}
