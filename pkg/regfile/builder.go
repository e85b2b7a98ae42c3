package regfile

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Builder runs the four-stage algorithm that turns a Graph into a Layout:
// resolve independent registers, group them by natural-sorted,
// digit-stripped name prefix into RegisterSets, lift each group to a
// scalar or array-style set with a rounded storage width, then synthesize
// every declared sub-register.
//
// This mirrors, stage for stage, the original's make_regsets / analyze /
// analyze_top / create_sub pipeline.
type Builder struct {
	graph *Graph
}

func NewBuilder(g *Graph) *Builder {
	return &Builder{graph: g}
}

// Build runs all four stages and returns the finished Layout, or the first
// BuildError encountered.
func (b *Builder) Build() (*Layout, error) {
	indep, err := b.resolve()
	if err != nil {
		return nil, err
	}

	groups := groupByPrefix(indep)

	sets, err := b.lift(groups)
	if err != nil {
		return nil, err
	}

	if err := b.synthesizeSubs(sets, indep); err != nil {
		return nil, err
	}

	offset := 0
	for _, s := range sets {
		s.Offset = offset
		n := 1
		if len(s.Array) > 1 {
			n = len(s.Array)
		}
		offset += (s.StorageBits / 8) * n
	}

	return &Layout{Sets: sets, TotalBits: offset * 8}, nil
}

// stage 1: resolver. Validates every node reachable from the graph roots
// and returns the independent (top-level) registers in declaration order.
func (b *Builder) resolve() ([]*RegisterInfo, error) {
	var indep []*RegisterInfo
	seen := map[string]*RegisterInfo{}
	tops := map[string]bool{}
	for _, n := range b.graph.Nodes {
		tops[n.Name] = true
	}

	for _, n := range b.graph.Nodes {
		if n.Binding == n.Name && n.Binding != "" {
			return nil, newBuildError(ErrSelfAlias, n.Name, "register is bound to itself")
		}
		if n.Type.Bits <= 0 {
			return nil, newBuildError(ErrTypeConversion, n.Name, "non-positive bit width")
		}
		seen[n.Name] = n
		indep = append(indep, n)

		for _, s := range n.Subs {
			if err := validateSubTree(n, s, tops); err != nil {
				return nil, err
			}
		}
	}
	return indep, nil
}

// validateSubTree validates s against parent and then recurses into s's
// own Subs, each validated against s in turn, matching create_sub's
// recursive descent over sub_ri->subs in the original. tops holds the
// names of the graph's top-level registers.
func validateSubTree(parent, s *RegisterInfo, tops map[string]bool) error {
	if err := validateSub(parent, s, tops); err != nil {
		return err
	}
	for _, nested := range s.Subs {
		if err := validateSubTree(s, nested, tops); err != nil {
			return err
		}
	}
	return nil
}

func validateSub(parent, s *RegisterInfo, tops map[string]bool) error {
	if s.Type.Bits <= 0 && !s.SpecialEval {
		return newBuildError(ErrTypeConversion, s.Name, "non-positive bit width")
	}
	if !s.SpecialEval && s.HardwiredExpr == nil {
		if s.BitStart < 0 || s.BitStart+s.Type.Bits > parent.Type.Bits {
			return newBuildError(ErrSizeMismatch, s.Name, "sub-register range exceeds parent width")
		}
	}
	// A sub-register may share its name with the separate top-level
	// register it binds to (EAX's AX bound to a top-level AX); only a
	// same-name binding with no such top-level register is a self-alias.
	if s.Binding == s.Name && !tops[s.Binding] {
		return newBuildError(ErrSelfAlias, s.Name, "sub-register is bound to itself")
	}
	if s.Flags.Copy {
		return newBuildError(ErrBindingCopyUnsupported, s.Name, "binding-by-copy is not implemented")
	}
	if IsPseudo(s.Name) && s.Binding == "" && !s.SpecialEval {
		return newBuildError(ErrIllegalPseudo, s.Name, "pseudo register must bind to a concrete target")
	}
	return nil
}

// prefixGroup is an intermediate grouping of independent registers that
// share a digit-stripped name prefix, in natural (numeric-aware) order.
type prefixGroup struct {
	prefix  string
	members []*RegisterInfo
}

var trailingDigits = regexp.MustCompile(`^(.*?)(\d+)$`)

// dropDigits strips a trailing numeric suffix from name, mirroring the
// original's drop_digits helper used to discover array-style register
// families (R0, R1, R2, R3 -> prefix "R").
func dropDigits(name string) (prefix string, n int, hasDigits bool) {
	m := trailingDigits.FindStringSubmatch(name)
	if m == nil {
		return name, 0, false
	}
	v, _ := strconv.Atoi(m[2])
	return m[1], v, true
}

// stage 2: grouping. Registers sharing a digit-stripped prefix are
// collapsed into one prefixGroup, natural-sorted by their numeric suffix.
// A register with no trailing digits is always its own singleton group.
func groupByPrefix(indep []*RegisterInfo) []*prefixGroup {
	byPrefix := map[string]*prefixGroup{}
	var order []string

	for _, r := range indep {
		prefix, _, hasDigits := dropDigits(r.Name)
		key := r.Name
		if hasDigits {
			key = "#" + prefix
		}
		g, ok := byPrefix[key]
		if !ok {
			g = &prefixGroup{prefix: prefix}
			byPrefix[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, r)
	}

	groups := make([]*prefixGroup, 0, len(order))
	for _, k := range order {
		g := byPrefix[k]
		sort.SliceStable(g.members, func(i, j int) bool {
			_, ni, _ := dropDigits(g.members[i].Name)
			_, nj, _ := dropDigits(g.members[j].Name)
			return ni < nj
		})
		groups = append(groups, g)
	}
	return groups
}

// incName bumps a numeric suffix by one (or appends "0" to a name with no
// suffix). lift uses it to rename an array member whose name is already
// taken within its group.
func incName(name string) string {
	prefix, n, hasDigits := dropDigits(name)
	if !hasDigits {
		return name + "0"
	}
	return prefix + strconv.Itoa(n+1)
}

var _ = incName // also called by lift below

// stage 3: lifting. A single-member group becomes a scalar RegisterSet; a
// multi-member group becomes an array-style set, widened to the widest
// member's rounded storage width and deduplicated against any accidental
// numeric-suffix collisions by bumping the colliding name (mirroring the
// original's suffix-bump dedup).
func (b *Builder) lift(groups []*prefixGroup) ([]*RegisterSet, error) {
	var sets []*RegisterSet

	for _, g := range groups {
		if len(g.members) == 1 {
			m := g.members[0]
			sets = append(sets, &RegisterSet{
				Name:        m.Name,
				TrueBits:    m.Type.Bits,
				StorageBits: StorageWidth(m.Type.Bits),
				Padding:     StorageWidth(m.Type.Bits) != m.Type.Bits,
			})
			continue
		}

		widest := 0
		names := make([]string, 0, len(g.members))
		used := map[string]bool{}
		for _, m := range g.members {
			if m.Type.Bits > widest {
				widest = m.Type.Bits
			}
			name := m.Name
			for used[name] {
				name = incName(name)
			}
			used[name] = true
			names = append(names, name)
		}

		sets = append(sets, &RegisterSet{
			Name:        g.prefix,
			TrueBits:    widest,
			StorageBits: StorageWidth(widest),
			Padding:     StorageWidth(widest) != widest,
			Array:       names,
		})
	}
	return sets, nil
}

// stage 4: sub-register synthesis. Walks every independent register's
// declared Subs and resolves each into a concrete SubRegister, attached to
// the RegisterSet its parent was lifted into. Aliases and update-on-write
// bindings are resolved by name against the full indep slice, which is why
// this runs after lifting rather than interleaved with it: both sides of a
// binding must already have a home RegisterSet.
func (b *Builder) synthesizeSubs(sets []*RegisterSet, indep []*RegisterInfo) error {
	setByRegName := map[string]*RegisterSet{}
	for _, s := range sets {
		if len(s.Array) > 1 {
			for _, a := range s.Array {
				setByRegName[a] = s
			}
		} else {
			setByRegName[s.Name] = s
		}
	}

	for _, parent := range indep {
		owner := setByRegName[parent.Name]
		for _, s := range parent.Subs {
			sub, err := synthesizeOne(s, setByRegName)
			if err != nil {
				return err
			}
			owner.Subs = append(owner.Subs, sub)
		}
	}
	return nil
}

// pseudoFlagFamily is the complete set of condition-flag names a '%'
// binding may resolve to.
var pseudoFlagFamily = map[string]bool{"C": true, "N": true, "P": true, "V": true, "Z": true}

func synthesizeOne(s *RegisterInfo, setByRegName map[string]*RegisterSet) (SubRegister, error) {
	sub, err := synthesizeOneShallow(s, setByRegName)
	if err != nil {
		return SubRegister{}, err
	}
	for _, nested := range s.Subs {
		child, err := synthesizeOne(nested, setByRegName)
		if err != nil {
			return SubRegister{}, err
		}
		sub.Subs = append(sub.Subs, child)
	}
	return sub, nil
}

func synthesizeOneShallow(s *RegisterInfo, setByRegName map[string]*RegisterSet) (SubRegister, error) {
	switch {
	case s.SpecialEval:
		return SubRegister{Name: s.Name, Kind: SubSpecialEval, Bits: s.Type.Bits}, nil

	case s.HardwiredExpr != nil:
		return SubRegister{Name: s.Name, Kind: SubHardwired, Bits: s.Type.Bits, HardwiredExpr: s.HardwiredExpr}, nil

	case s.Binding != "" && strings.HasPrefix(s.Binding, "%"):
		if s.Type.Bits != 1 {
			return SubRegister{}, newBuildError(ErrTypeConversion, s.Name, "pseudo flag alias must be exactly 1 bit wide")
		}
		flagName := s.Binding[1:]
		if !pseudoFlagFamily[flagName] {
			return SubRegister{}, newBuildError(ErrIllegalPseudo, s.Name, "pseudo-flag name not in {C,N,P,V,Z}: "+s.Binding)
		}
		target, ok := setByRegName[flagName]
		if !ok {
			return SubRegister{}, newBuildError(ErrUnimplementedLazyBind, s.Name, "pseudo alias target not yet resolved: "+s.Binding)
		}
		return SubRegister{
			Name: s.Name, Kind: SubPseudoAliased, Bits: 1,
			UpdateTarget: target.Name, PseudoBit: s.BitStart,
		}, nil

	case s.Binding != "" && s.Flags.Bidirectional:
		target, ok := setByRegName[s.Binding]
		if !ok {
			return SubRegister{}, newBuildError(ErrUnimplementedLazyBind, s.Name, "alias target not yet resolved: "+s.Binding)
		}
		if s.Type.Bits != target.TrueBits {
			return SubRegister{}, newBuildError(ErrSizeMismatch, s.Name, "bidirectional alias width disagrees with bound target "+s.Binding)
		}
		return SubRegister{
			Name: s.Name, Kind: SubAliasBidirectional, Bits: s.Type.Bits,
			Offset: s.BitStart, AliasOf: s.Binding,
		}, nil

	case s.Binding != "":
		if _, ok := setByRegName[s.Binding]; !ok {
			return SubRegister{}, newBuildError(ErrUnimplementedLazyBind, s.Name, "update-on-write target not yet resolved: "+s.Binding)
		}
		return SubRegister{
			Name: s.Name, Kind: SubUpdateOnWrite, Bits: s.Type.Bits,
			Offset: s.BitStart, UpdateTarget: s.Binding,
		}, nil

	default:
		return SubRegister{Name: s.Name, Kind: SubPlain, Bits: s.Type.Bits, Offset: s.BitStart}, nil
	}
}
