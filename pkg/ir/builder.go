package ir

// Builder provides a fluent, append-only API for constructing a Function
// one instruction at a time, mirroring how an architecture front-end lifts
// a single guest instruction into a handful of IR ops.
type Builder struct {
	fn  *Function
	cur BlockID
}

// NewFunction creates an empty Function with its three distinguished
// blocks already present (Entry, Dispatch, Ret), and a Builder positioned
// at Entry.
func NewFunction(name string) (*Function, *Builder) {
	fn := &Function{
		Name:        name,
		allocaTypes: map[Value]Type{},
	}
	fn.Blocks = []*BasicBlock{
		{Name: "entry"},
		{Name: "dispatch"},
		{Name: "ret"},
	}
	fn.Entry = 0
	fn.Dispatch = 1
	fn.Ret = 2

	b := &Builder{fn: fn, cur: fn.Entry}
	return fn, b
}

// NewBlock appends a fresh, empty block and returns its id. The caller
// must call SetBlock to start emitting into it.
func (b *Builder) NewBlock(name string, addr uint64) BlockID {
	id := BlockID(len(b.fn.Blocks))
	b.fn.Blocks = append(b.fn.Blocks, &BasicBlock{Name: name, Addr: addr})
	return id
}

// SetBlock redirects subsequent emission to block id.
func (b *Builder) SetBlock(id BlockID) {
	b.cur = id
}

// Block returns the id the builder is currently emitting into.
func (b *Builder) Block() BlockID {
	return b.cur
}

func (b *Builder) emit(i Instr) Value {
	b.fn.Instrs = append(b.fn.Instrs, i)
	v := Value(len(b.fn.Instrs))
	blk := b.fn.Blocks[b.cur]
	blk.Instrs = append(blk.Instrs, v)
	return v
}

func (b *Builder) Const(t Type, value uint64) Value {
	return b.emit(Instr{Op: OpConst, Type: t, ConstValue: value})
}

func (b *Builder) Alloca(t Type) Value {
	v := b.emit(Instr{Op: OpAlloca, Type: t})
	b.fn.allocaTypes[v] = t
	return v
}

func (b *Builder) LoadLocal(local Value) Value {
	t := b.fn.allocaTypes[local]
	return b.emit(Instr{Op: OpLoadLocal, Type: t, Local: local})
}

func (b *Builder) StoreLocal(local, value Value) {
	b.emit(Instr{Op: OpStoreLocal, Local: local, Args: [2]Value{value}})
}

func (b *Builder) LoadRAM(t Type, addr Value) Value {
	return b.emit(Instr{Op: OpLoadRAM, Type: t, Addr: addr})
}

func (b *Builder) StoreRAM(addr, value Value) {
	b.emit(Instr{Op: OpStoreRAM, Addr: addr, Args: [2]Value{value}})
}

// LoadReg/StoreReg address the register-file byte buffer at a constant
// byte offset (offsetConst), using the width implied by t. Architecture
// front-ends compute offsetConst from the RegisterLayout the builder
// produced ahead of time.
func (b *Builder) LoadReg(t Type, offsetConst Value) Value {
	return b.emit(Instr{Op: OpLoadReg, Type: t, Addr: offsetConst})
}

func (b *Builder) StoreReg(offsetConst, value Value) {
	b.emit(Instr{Op: OpStoreReg, Addr: offsetConst, Args: [2]Value{value}})
}

func (b *Builder) BinOp(op BinOpKind, t Type, lhs, rhs Value) Value {
	return b.emit(Instr{Op: OpBinOp, Type: t, BinOp: op, Args: [2]Value{lhs, rhs}})
}

func (b *Builder) ICmp(pred ICmpPred, lhs, rhs Value) Value {
	return b.emit(Instr{Op: OpICmp, Type: I1, Pred: pred, Args: [2]Value{lhs, rhs}})
}

func (b *Builder) Trunc(t Type, v Value) Value {
	return b.emit(Instr{Op: OpTrunc, Type: t, Args: [2]Value{v}})
}

func (b *Builder) ZExt(t Type, v Value) Value {
	return b.emit(Instr{Op: OpZExt, Type: t, Args: [2]Value{v}})
}

func (b *Builder) SExt(t Type, v Value) Value {
	return b.emit(Instr{Op: OpSExt, Type: t, Args: [2]Value{v}})
}

func (b *Builder) Br(target BlockID) {
	b.emit(Instr{Op: OpBr, Target: target})
}

func (b *Builder) CondBr(cond Value, trueBlk, falseBlk BlockID) {
	b.emit(Instr{Op: OpCondBr, Cond: cond, TrueBlock: trueBlk, FalseBlock: falseBlk})
}

func (b *Builder) Switch(cond Value, cases map[uint64]BlockID, def BlockID) {
	b.emit(Instr{Op: OpSwitch, Cond: cond, Cases: cases, Default: def})
}

func (b *Builder) Ret(status Value) {
	b.emit(Instr{Op: OpRet, Args: [2]Value{status}})
}

func (b *Builder) CallDebug(tag string, arg Value) {
	b.emit(Instr{Op: OpCallDebug, DebugTag: tag, Args: [2]Value{arg}})
}
