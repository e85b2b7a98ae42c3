package tagging_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/tathanhdinh/libcpu/pkg/arch"
	"github.com/tathanhdinh/libcpu/pkg/tagging"
	"github.com/tathanhdinh/libcpu/pkg/tagging/mocktagging"
)

// TestTagger_MockDecoder drives the tagger against a gomock-generated
// Decoder instead of a hand-rolled fake, expecting exactly the decode
// sequence a NOP followed by RTS produces.
func TestTagger_MockDecoder(t *testing.T) {
	ctrl := gomock.NewController(t)
	dec := mocktagging.NewMockDecoder(ctrl)

	read := func(addr uint64) (byte, bool) { return 0, true }

	dec.EXPECT().
		DisasmInstr(uint64(0), gomock.Any()).
		Return(arch.DecodedInstr{Addr: 0, Length: 1, Flow: arch.FlowContinue}, nil)
	dec.EXPECT().
		DisasmInstr(uint64(1), gomock.Any()).
		Return(arch.DecodedInstr{Addr: 1, Length: 1, Flow: arch.FlowRet}, nil)

	tags := tagging.NewTagArray(0, 4)
	tg := tagging.NewTagger(dec, read, tags)
	if err := tg.Tag(0); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	want := tagging.NewTagArray(0, 4)
	want.Set(0, tagging.ENTRY)
	want.Set(0, tagging.CODE)
	want.Set(1, tagging.CODE)

	if diff := cmp.Diff(want.Bits, tags.Bits); diff != "" {
		t.Errorf("tag array mismatch (-want +got):\n%s", diff)
	}
}
