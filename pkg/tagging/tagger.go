package tagging

import "github.com/tathanhdinh/libcpu/pkg/arch"

//go:generate mockgen -destination=mocktagging/mock_decoder.go -package=mocktagging github.com/tathanhdinh/libcpu/pkg/tagging Decoder

// Decoder is the minimal slice of arch.Frontend the tagger needs: decode
// one instruction, reading bytes through read.
type Decoder interface {
	DisasmInstr(addr uint64, read func(uint64) (byte, bool)) (arch.DecodedInstr, error)
}

// Tagger walks a guest image from a set of roots, recording control-flow
// tags into a TagArray. It holds no guest-specific knowledge itself; all
// decode/classify work is delegated to a Decoder (normally an
// arch.Frontend).
type Tagger struct {
	Decoder Decoder
	Read    func(uint64) (byte, bool)
	Tags    *TagArray

	// OutOfRange collects every TagOutOfRangeError encountered, since
	// those are non-fatal and tagging continues past them.
	OutOfRange []*TagOutOfRangeError
}

func NewTagger(d Decoder, read func(uint64) (byte, bool), tags *TagArray) *Tagger {
	return &Tagger{Decoder: d, Read: read, Tags: tags}
}

// Tag marks entry as an ENTRY root and recursively discovers every
// address reachable from it, mirroring cpu_tag's call into
// tag_recursive. Calling Tag on an address already fully explored is a
// no-op pass that changes nothing, satisfying the idempotence property:
// repeated calls with the same roots never change the tag array beyond
// the first.
func (t *Tagger) Tag(entry uint64) error {
	if !t.Tags.InRange(entry) {
		err := &TagOutOfRangeError{Addr: entry}
		t.OutOfRange = append(t.OutOfRange, err)
		return err
	}
	t.Tags.Set(entry, ENTRY)
	t.tagRecursive(entry)
	return nil
}

// tagRecursive is the direct port of the original's recursive,
// depth-first tagger: decode the instruction at addr, tag it CODE, and
// depending on its Flow either stop, continue to the next address, or
// recurse into one or two successor addresses.
//
// Idempotence relies on the CODE check at the top: once an address has
// been tagged CODE, re-entering tagRecursive for it returns immediately
// without re-decoding or re-recursing, which is also what bounds the
// recursion on cyclic control flow (loops) without an explicit visited
// set.
func (t *Tagger) tagRecursive(addr uint64) {
	if !t.Tags.InRange(addr) {
		t.OutOfRange = append(t.OutOfRange, &TagOutOfRangeError{Addr: addr})
		return
	}
	if t.Tags.Get(addr).Has(CODE) {
		return
	}

	inst, err := t.Decoder.DisasmInstr(addr, t.Read)
	if err != nil {
		return
	}

	t.Tags.Set(addr, CODE)

	switch inst.Flow {
	case arch.FlowContinue:
		t.tagRecursive(addr + uint64(inst.Length))

	case arch.FlowBranch:
		fallthroughAddr := addr + uint64(inst.Length)
		if t.Tags.InRange(fallthroughAddr) {
			t.Tags.Set(fallthroughAddr, AFTER_BRANCH)
			t.tagRecursive(fallthroughAddr)
		} else {
			t.OutOfRange = append(t.OutOfRange, &TagOutOfRangeError{Addr: fallthroughAddr})
		}
		if inst.Target != arch.NoTarget {
			if t.Tags.InRange(inst.Target) {
				t.Tags.Set(inst.Target, CODE_TARGET)
				t.tagRecursive(inst.Target)
			} else {
				t.OutOfRange = append(t.OutOfRange, &TagOutOfRangeError{Addr: inst.Target})
			}
		}

	case arch.FlowJump:
		if inst.Target != arch.NoTarget {
			if t.Tags.InRange(inst.Target) {
				t.Tags.Set(inst.Target, CODE_TARGET)
				t.tagRecursive(inst.Target)
			} else {
				t.OutOfRange = append(t.OutOfRange, &TagOutOfRangeError{Addr: inst.Target})
			}
		}

	case arch.FlowCall:
		fallthroughAddr := addr + uint64(inst.Length)
		if t.Tags.InRange(fallthroughAddr) {
			t.Tags.Set(fallthroughAddr, AFTER_CALL)
			t.tagRecursive(fallthroughAddr)
		} else {
			t.OutOfRange = append(t.OutOfRange, &TagOutOfRangeError{Addr: fallthroughAddr})
		}
		if inst.Target != arch.NoTarget {
			if t.Tags.InRange(inst.Target) {
				// Like the branch and jump cases above: every address the
				// walk recurses into is CODE_TARGET, call targets included.
				// The original's TYPE_SUBROUTINE mark on call targets is
				// commented out in tag_recursive; SUBROUTINE stays a
				// reserved, unset tag here for the same reason.
				t.Tags.Set(inst.Target, CODE_TARGET)
				t.tagRecursive(inst.Target)
			} else {
				t.OutOfRange = append(t.OutOfRange, &TagOutOfRangeError{Addr: inst.Target})
			}
		}

	case arch.FlowRet:
		// No statically known successor; recursion stops here.

	case arch.FlowErr:
		// Decode succeeded enough to classify but not enough to continue
		// safely; treat like a return to avoid tagging garbage.
	}
}
