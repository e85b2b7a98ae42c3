package ir

import "encoding/binary"

// CompiledFunc is the ABI every engine-compiled Function exposes to the
// JIT driver: guest RAM, the register-file byte buffer, and an optional
// debug hook, returning a status code (JIT_RETURN_FUNCNOTFOUND on a
// dispatch miss, 0 otherwise unless the guest code itself returns
// something else via OpRet).
type CompiledFunc func(ram []byte, reg []byte, debug DebugFunc) int32

// ExecutionEngine turns a verified Function into a CompiledFunc by
// interpretation. Real ahead-of-time machine-code generation is out of
// this package's scope (see the architecture-as-capability-set design
// note); an interpreter gives every guest architecture a working,
// portable "compiled" entry point without committing to a host ISA.
type ExecutionEngine struct{}

func NewExecutionEngine() *ExecutionEngine {
	return &ExecutionEngine{}
}

// Compile returns a CompiledFunc that interprets fn each time it is
// called. fn must already have passed Verify.
func (e *ExecutionEngine) Compile(fn *Function) CompiledFunc {
	return func(ram []byte, reg []byte, debug DebugFunc) int32 {
		st := &interpState{
			fn:     fn,
			ram:    ram,
			reg:    reg,
			debug:  debug,
			values: make([]uint64, len(fn.Instrs)+1),
			locals: map[Value][]byte{},
		}
		return st.run()
	}
}

type interpState struct {
	fn     *Function
	ram    []byte
	reg    []byte
	debug  DebugFunc
	values []uint64
	locals map[Value][]byte
}

func (st *interpState) set(v Value, x uint64) {
	st.values[v] = x
}

func (st *interpState) get(v Value) uint64 {
	if v == 0 {
		return 0
	}
	return st.values[v]
}

func (st *interpState) run() int32 {
	blk := st.fn.Entry
	for {
		next, ret, done := st.runBlock(blk)
		if done {
			return ret
		}
		blk = next
	}
}

func maskTo(bits int, x uint64) uint64 {
	if bits >= 64 {
		return x
	}
	return x & ((uint64(1) << uint(bits)) - 1)
}

func (st *interpState) runBlock(id BlockID) (next BlockID, ret int32, done bool) {
	blk := st.fn.Block(id)
	for _, v := range blk.Instrs {
		in := st.fn.instr(v)
		switch in.Op {
		case OpConst:
			st.set(v, maskTo(in.Type.Bits, in.ConstValue))

		case OpAlloca:
			st.locals[v] = make([]byte, (in.Type.Bits+7)/8)

		case OpLoadLocal:
			buf := st.locals[in.Local]
			st.set(v, maskTo(st.fn.TypeOf(in.Local).Bits, readLE(buf)))

		case OpStoreLocal:
			buf := st.locals[in.Local]
			writeLE(buf, st.get(in.Args[0]))

		case OpLoadRAM:
			n := in.Type.Bits / 8
			addr := st.get(in.Addr)
			st.set(v, readLEFrom(st.ram, addr, n))

		case OpStoreRAM:
			addr := st.get(in.Addr)
			storeIn := st.fn.instr(in.Args[0])
			n := storeIn.Type.Bits / 8
			if n == 0 {
				n = 1
			}
			writeLETo(st.ram, addr, n, st.get(in.Args[0]))

		case OpLoadReg:
			n := in.Type.Bits / 8
			off := st.get(in.Addr)
			st.set(v, readLEFrom(st.reg, off, n))

		case OpStoreReg:
			storeIn := st.fn.instr(in.Args[0])
			n := storeIn.Type.Bits / 8
			if n == 0 {
				n = 1
			}
			off := st.get(in.Addr)
			writeLETo(st.reg, off, n, st.get(in.Args[0]))

		case OpBinOp:
			st.set(v, maskTo(in.Type.Bits, evalBinOp(in.BinOp, in.Type.Bits, st.get(in.Args[0]), st.get(in.Args[1]))))

		case OpICmp:
			st.set(v, boolTo64(evalICmp(in.Pred, st.fn.TypeOf(in.Args[0]).Bits, st.get(in.Args[0]), st.get(in.Args[1]))))

		case OpTrunc, OpZExt:
			st.set(v, maskTo(in.Type.Bits, st.get(in.Args[0])))

		case OpSExt:
			src := st.fn.TypeOf(in.Args[0]).Bits
			st.set(v, maskTo(in.Type.Bits, uint64(signExtend(st.get(in.Args[0]), src))))

		case OpCallDebug:
			if st.debug != nil {
				st.debug(in.DebugTag, st.get(in.Args[0]))
			}

		case OpBr:
			return in.Target, 0, false

		case OpCondBr:
			if st.get(in.Cond) != 0 {
				return in.TrueBlock, 0, false
			}
			return in.FalseBlock, 0, false

		case OpSwitch:
			key := st.get(in.Cond)
			if tgt, ok := in.Cases[key]; ok {
				return tgt, 0, false
			}
			return in.Default, 0, false

		case OpRet:
			return 0, int32(st.get(in.Args[0])), true
		}
	}
	return 0, 0, true
}

func evalBinOp(op BinOpKind, bits int, a, b uint64) uint64 {
	switch op {
	case Add:
		return a + b
	case Sub:
		return a - b
	case Mul:
		return a * b
	case UDiv:
		if b == 0 {
			return 0
		}
		return a / b
	case SDiv:
		if b == 0 {
			return 0
		}
		return uint64(signExtend(a, bits)/signExtend(b, bits)) & mask64(bits)
	case URem:
		if b == 0 {
			return 0
		}
		return a % b
	case SRem:
		if b == 0 {
			return 0
		}
		return uint64(signExtend(a, bits)%signExtend(b, bits)) & mask64(bits)
	case And:
		return a & b
	case Or:
		return a | b
	case Xor:
		return a ^ b
	case Shl:
		return a << (b & 63)
	case LShr:
		return a >> (b & 63)
	case AShr:
		return uint64(signExtend(a, bits) >> (b & 63))
	default:
		return 0
	}
}

func evalICmp(pred ICmpPred, bits int, a, b uint64) bool {
	switch pred {
	case ICmpEQ:
		return a == b
	case ICmpNE:
		return a != b
	case ICmpULT:
		return a < b
	case ICmpULE:
		return a <= b
	case ICmpUGT:
		return a > b
	case ICmpUGE:
		return a >= b
	case ICmpSLT:
		return signExtend(a, bits) < signExtend(b, bits)
	case ICmpSLE:
		return signExtend(a, bits) <= signExtend(b, bits)
	case ICmpSGT:
		return signExtend(a, bits) > signExtend(b, bits)
	case ICmpSGE:
		return signExtend(a, bits) >= signExtend(b, bits)
	default:
		return false
	}
}

func mask64(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

func signExtend(x uint64, bits int) int64 {
	if bits >= 64 || bits <= 0 {
		return int64(x)
	}
	shift := 64 - bits
	return int64(x<<uint(shift)) >> uint(shift)
}

func boolTo64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func readLE(buf []byte) uint64 {
	var tmp [8]byte
	copy(tmp[:], buf)
	return binary.LittleEndian.Uint64(tmp[:])
}

func writeLE(buf []byte, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	copy(buf, tmp[:len(buf)])
}

func readLEFrom(b []byte, addr uint64, n int) uint64 {
	var tmp [8]byte
	copy(tmp[:n], b[addr:addr+uint64(n)])
	return binary.LittleEndian.Uint64(tmp[:])
}

func writeLETo(b []byte, addr uint64, n int, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	copy(b[addr:addr+uint64(n)], tmp[:n])
}
