// Command jitdemo drives the tagger, recompiler and JIT driver over a
// small built-in 6502 program, demonstrating the four scenarios a guest
// architecture front-end must support: a linear block, a forward branch,
// a call/return pair, and single-step mode.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/tathanhdinh/libcpu/pkg/arch"
	_ "github.com/tathanhdinh/libcpu/pkg/arch/m6502"
	"github.com/tathanhdinh/libcpu/pkg/jit"
)

func main() {
	scenario := flag.String("scenario", "linear", "which demo scenario to run: linear, branch, call, singlestep")
	entry := flag.Uint64("entry", 0, "guest entry address")
	flag.Parse()

	img, err := programFor(*scenario)
	if err != nil {
		log.Fatalf("jitdemo: %v", err)
	}

	frontend, err := arch.New("m6502")
	if err != nil {
		log.Fatalf("jitdemo: %v", err)
	}

	u, err := jit.New(frontend, 256, nil)
	if err != nil {
		log.Fatalf("jitdemo: %v", err)
	}
	u.DebugFlags = jit.DebugTagging | jit.DebugRecompile | jit.DebugDispatch
	if *scenario == "singlestep" {
		u.Mode = jit.ModeSingleStep
	}

	if err := u.LoadImage(0, img); err != nil {
		log.Fatalf("jitdemo: %v", err)
	}
	u.SetCode(0, uint64(len(img)), *entry)

	status, err := u.Run()
	if err != nil {
		log.Fatalf("jitdemo: run failed: %v", err)
	}

	aOff, _, _ := (&arch.LayoutView{Layout: u.Layout}).Offset("A")
	fmt.Printf("scenario=%s status=%d A=%#x\n", *scenario, status, u.Reg[aOff])
}

// programFor returns the raw byte image for one of the demo scenarios.
func programFor(scenario string) ([]byte, error) {
	switch scenario {
	case "linear":
		// LDA #$2A ; STA $10 ; BRK
		return []byte{0xA9, 0x2A, 0x85, 0x10, 0x00}, nil

	case "branch":
		// BEQ +4 ; LDA #$11 ; RTS ; (pad) ; LDA #$22 ; RTS
		return []byte{0xF0, 0x04, 0xA9, 0x11, 0x60, 0x00, 0xA9, 0x22, 0x60}, nil

	case "call":
		// JSR $0005 ; BRK ; (pad) ; LDA #$33 ; RTS
		return []byte{0x20, 0x05, 0x00, 0x00, 0x00, 0xA9, 0x33, 0x60}, nil

	case "singlestep":
		// LDA #$7F, stepped one instruction at a time.
		return []byte{0xA9, 0x7F}, nil

	default:
		return nil, fmt.Errorf("unknown scenario %q", scenario)
	}
}
