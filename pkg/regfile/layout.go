package regfile

// StorageWidth rounds a field's bit width up to a storage-friendly size:
// 8, 16, 32 or 64 bits for anything that fits, otherwise the next multiple
// of 64. A register narrower than its rounded storage is marked with
// RegisterSet.Padding, and set offsets advance by the rounded width so
// they stay storage-aligned.
func StorageWidth(bits int) int {
	switch {
	case bits <= 8:
		return 8
	case bits <= 16:
		return 16
	case bits <= 32:
		return 32
	case bits <= 64:
		return 64
	default:
		return ((bits + 63) / 64) * 64
	}
}

// SubKind classifies how a sub-register's value is produced, mirroring the
// branches of the original create_sub/create_aliased_sub/
// create_pseudo_aliased_sub logic.
type SubKind int

const (
	// SubPlain is ordinary storage: a bitfield slice of its parent with no
	// binding to anything else.
	SubPlain SubKind = iota
	// SubHardwired is a read-only field computed from HardwiredExpr; it has
	// no storage offset of its own.
	SubHardwired
	// SubAliasBidirectional ties two independently-stored registers
	// together: writing either one is visible through the other. Resolved
	// in the builder's second pass since both sides must already exist.
	SubAliasBidirectional
	// SubUpdateOnWrite is a one-directional tie: writing this sub-register
	// also writes through to a named target register, but writing the
	// target does not update this one.
	SubUpdateOnWrite
	// SubPseudoAliased is the %C/%N/%P/%V/%Z condition-flag family: a
	// width-1 alias bound to a single bit of a flags register.
	SubPseudoAliased
	// SubSpecialEval has no generic storage at all; its value is produced
	// by an architecture-supplied evaluator at read time.
	SubSpecialEval
)

// SubRegister is one resolved entry of a RegisterSet: a name, a storage or
// computed width, and how its value flows.
type SubRegister struct {
	Name string
	Kind SubKind

	// Bits is the sub-register's true (unrounded) width.
	Bits int
	// Offset is this field's bit offset within the set's storage, valid
	// for SubPlain, SubUpdateOnWrite and SubAliasBidirectional.
	// Meaningless for SubHardwired and SubSpecialEval; SubPseudoAliased
	// records its bit in PseudoBit instead.
	Offset int

	HardwiredExpr *Expr

	// AliasOf / UpdateTarget name the other RegisterSet.Name this entry is
	// tied to, for SubAliasBidirectional / SubUpdateOnWrite /
	// SubPseudoAliased respectively.
	AliasOf      string
	UpdateTarget string
	// PseudoBit is the bit index within UpdateTarget's storage that this
	// pseudo flag aliases (SubPseudoAliased only).
	PseudoBit int

	// Subs holds this sub-register's own nested sub-registers, resolved
	// the same way as its parent's. Most sub-registers have none; a
	// sub-sub-register tree (e.g. a flags byte's individual bits carved
	// out of a sub-register rather than a top register) recurses here.
	Subs []SubRegister
}

// RegisterSet is one top-level storage unit in the finished layout: either
// a single scalar register (len(Array) == 0) or a natural-sorted,
// digit-stripped group of registers collapsed into an indexable array
// (e.g. R0..R3 becomes one RegisterSet "R" with Array == []string{"R0",
// "R1", "R2", "R3"}).
type RegisterSet struct {
	Name string
	// StorageBits is the rounded-up per-element width (see StorageWidth).
	StorageBits int
	// TrueBits is the unrounded width as declared.
	TrueBits int
	// Offset is this set's byte offset within the overall register-file
	// buffer, filled in once all sets are sized.
	Offset int

	// Array holds the original register names collapsed into this set, in
	// resolved natural order, when len(Array) > 1. Empty for a scalar
	// register.
	Array []string

	// Padding is true when StorageBits > TrueBits: the storage has unused
	// high bits. No separate SubRegister entry is created for them.
	Padding bool

	Subs []SubRegister
}

// Layout is the finished output of the builder: every top-level register
// or register set, in declaration order, plus the total buffer size they
// occupy.
type Layout struct {
	Sets []*RegisterSet
	// TotalBits is the sum of every set's StorageBits times its element
	// count (len(Array) for an array-style set, 1 for a scalar); the JIT
	// driver sizes the reg []byte buffer to TotalBits/8.
	TotalBits int
}

// ByName returns the RegisterSet carrying name, either as its own Name or
// as one of its Array members, or nil.
func (l *Layout) ByName(name string) *RegisterSet {
	for _, s := range l.Sets {
		if s.Name == name {
			return s
		}
		for _, a := range s.Array {
			if a == name {
				return s
			}
		}
	}
	return nil
}
