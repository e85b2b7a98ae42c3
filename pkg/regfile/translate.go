package regfile

// ExprTranslator turns a hardwired Expr into a value in some other
// representation (typically an IR value). regfile depends on nothing
// beyond this interface, so packages downstream (pkg/ir, pkg/arch) can
// supply their own translator without regfile importing them.
type ExprTranslator[V any] interface {
	Const(bits int, value uint64) V
	FieldRef(name string) V
	BinOp(op ExprOp, lhs, rhs V) V
	Not(v V) V
}

// Translate walks e and produces a V using t, recursively handling the
// ExprBinOp / ExprNot composite cases.
func Translate[V any](e *Expr, t ExprTranslator[V]) V {
	switch e.Kind {
	case ExprConst:
		return t.Const(64, e.Const)
	case ExprFieldRef:
		return t.FieldRef(e.Field)
	case ExprNot:
		return t.Not(Translate(e.LHS, t))
	case ExprBinOp:
		return t.BinOp(e.Op, Translate(e.LHS, t), Translate(e.RHS, t))
	default:
		var zero V
		return zero
	}
}
