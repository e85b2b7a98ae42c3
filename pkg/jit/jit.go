// Package jit owns the translation unit: guest RAM, the register-file
// buffer, the code window and entry it's bound to, the tagger/recompiler
// pipeline, and the single compiled function currently live for it. It
// is the component callers actually talk to; tagging, recompilation and
// register-file layout are all internal collaborators wired together
// here.
package jit

import (
	"log"

	"github.com/tathanhdinh/libcpu/pkg/arch"
	"github.com/tathanhdinh/libcpu/pkg/guestram"
	"github.com/tathanhdinh/libcpu/pkg/ir"
	"github.com/tathanhdinh/libcpu/pkg/recompiler"
	"github.com/tathanhdinh/libcpu/pkg/regfile"
	"github.com/tathanhdinh/libcpu/pkg/tagging"
)

// DebugFlag selects what the driver logs as it tags, recompiles and runs
// guest code, mirroring the original's small set of independently
// toggleable trace categories.
type DebugFlag uint32

const (
	DebugTagging DebugFlag = 1 << iota
	DebugRecompile
	DebugDispatch
	DebugRegisters
)

// Mode selects whole-region recompilation (the default) or single-step,
// which compiles a function for exactly one instruction, at CodeEntry,
// and runs that one instruction on each Run call.
type Mode int

const (
	ModeRegion Mode = iota
	ModeSingleStep
)

// Unit is one translation unit: a fixed guest RAM image, an
// architecture-described register-file buffer, and the tag/compile state
// built up as code is discovered and run. RAM is owned exclusively by the
// Unit and threaded explicitly through every call, deliberately unlike
// the original's process-global RAM pointer (see the design note on
// global-pointer removal).
type Unit struct {
	Frontend arch.Frontend
	RAM      *guestram.RAM
	Reg      []byte
	Layout   *regfile.Layout
	layoutV  *arch.LayoutView

	// CodeStart, CodeEnd (half-open) and CodeEntry are the translation
	// unit's code-window attributes, set via SetCode. New defaults them
	// to [0, ramSize) with entry 0, so a caller that never calls SetCode
	// still gets a usable unit over the whole RAM image.
	CodeStart uint64
	CodeEnd   uint64
	CodeEntry uint64

	// Tags is nil until the first Tag call, which allocates it scoped to
	// [CodeStart, CodeEnd) — the tag array is never wider than the code
	// window, unlike RAM itself.
	Tags *tagging.TagArray

	Mode       Mode
	OptPasses  ir.PassFlag
	DebugFlags DebugFlag
	// ArchFlags is the architecture flag word: an opaque per-frontend
	// configuration value the core never interprets itself. It is only
	// carried on the Unit; no Frontend method receives it (arch.UnitView,
	// which Frontend.Init gets, does not expose it).
	ArchFlags uint32
	Debug     ir.DebugFunc
	Logger    *log.Logger

	HostCaps HostCaps

	engine *ir.ExecutionEngine
	// compiled is the unit's single compiled function, if any: at most
	// one compiled function exists per translation unit at any time, so
	// there is no per-entry cache to key.
	compiled ir.CompiledFunc
}

// New builds a Unit for frontend over a RAM image of ramSize bytes,
// resolving the architecture's register-file layout up front so every
// later EmitInstr call can assume constant offsets are already known.
func New(frontend arch.Frontend, ramSize int, logger *log.Logger) (*Unit, error) {
	layout, err := regfile.NewBuilder(frontend.DescribeRegisters()).Build()
	if err != nil {
		return nil, &DriverError{Kind: ErrRegisterBuild, Err: err}
	}

	if logger == nil {
		logger = log.Default()
	}

	u := &Unit{
		Frontend:  frontend,
		RAM:       guestram.New(ramSize),
		Reg:       make([]byte, layout.TotalBits/8),
		Layout:    layout,
		CodeStart: 0,
		CodeEnd:   uint64(ramSize),
		Logger:    logger,
		HostCaps:  DetectHostCaps(),
		engine:    ir.NewExecutionEngine(),
	}
	u.layoutV = &arch.LayoutView{Layout: layout}

	if u.DebugFlags&DebugRegisters != 0 {
		u.Logger.Printf("jit: host caps avx2=%v sse2=%v cacheline=%d", u.HostCaps.AVX2, u.HostCaps.SSE2, u.HostCaps.CacheLine)
	}

	if err := frontend.Init(u); err != nil {
		return nil, &DriverError{Kind: ErrUnsupportedArchitecture, Err: err}
	}
	return u, nil
}

// ByteAt satisfies arch.UnitView: reads one RAM byte, reporting whether
// addr fell inside the image.
func (u *Unit) ByteAt(addr uint64) (byte, bool) {
	return u.RAM.ByteAt(addr)
}

// RegisterLayout satisfies arch.UnitView.
func (u *Unit) RegisterLayout() *regfile.Layout {
	return u.Layout
}

func (u *Unit) read(addr uint64) (byte, bool) {
	return u.ByteAt(addr)
}

// LoadImage copies a guest program image into RAM at offset, for a host to
// populate the unit before the first Run.
func (u *Unit) LoadImage(offset uint64, img []byte) error {
	return u.RAM.Load(offset, img)
}

// SetCode binds the translation unit's code window and entry: the tagger
// and recompiler only ever discover and lift addresses in [start, end),
// and Run resumes at entry. Calling SetCode discards any existing tag
// array and compiled function, since both are scoped to the previous
// window and are no longer valid once it changes.
func (u *Unit) SetCode(start, end, entry uint64) {
	u.CodeStart = start
	u.CodeEnd = end
	u.CodeEntry = entry
	u.Tags = nil
	u.compiled = nil
}

// Tag discovers control flow reachable from entry, recording it into the
// Unit's tag array. It is safe to call repeatedly and with overlapping
// entry points; tagging is idempotent and monotonic (see pkg/tagging).
// The tag array is allocated lazily, on the first call, scoped to
// [CodeStart, CodeEnd).
func (u *Unit) Tag(entry uint64) error {
	if u.Tags == nil {
		u.Tags = tagging.NewTagArray(u.CodeStart, int(u.CodeEnd-u.CodeStart))
	}
	if u.DebugFlags&DebugTagging != 0 {
		u.Logger.Printf("jit: tagging from %#x", entry)
	}
	tg := tagging.NewTagger(u.Frontend, u.read, u.Tags)
	if err := tg.Tag(entry); err != nil {
		return &DriverError{Kind: ErrTagOutOfRange, Err: err}
	}
	return nil
}

// Recompile builds (or rebuilds) the unit's single compiled function
// covering entry, per u.Mode, verifies it, optimizes it per u.OptPasses,
// and compiles it via the execution engine.
func (u *Unit) Recompile(entry uint64) error {
	r := recompiler.New(u.Frontend, u.layoutV, u.Tags, u.read)

	var fn *ir.Function
	var err error
	switch u.Mode {
	case ModeSingleStep:
		fn, err = r.RecompileSingleStep(fnName(entry), entry)
	default:
		fn, err = r.Recompile(fnName(entry))
	}
	if err != nil {
		return &DriverError{Kind: ErrMissingBasicBlock, Err: err}
	}

	if err := ir.Verify(fn); err != nil {
		return &DriverError{Kind: ErrModuleVerifyFailure, Err: err}
	}

	ir.Optimize(fn, u.OptPasses, 4)

	if u.DebugFlags&DebugRecompile != 0 {
		u.Logger.Printf("jit: recompiled %#x into %d block(s)", entry, len(fn.Blocks))
	}

	u.compiled = u.engine.Compile(fn)
	return nil
}

func fnName(entry uint64) string {
	return "fn_" + hex(entry)
}

func hex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Run executes the unit's compiled function at CodeEntry (the entry
// bound by the most recent SetCode, or 0 if SetCode was never called),
// tagging and recompiling it first if necessary. It returns the guest
// status code the compiled function produced, or
// recompiler.JIT_RETURN_FUNCNOTFOUND wrapped as an ErrDispatchMiss if
// resumed execution could not find a dispatch case either.
func (u *Unit) Run() (int32, error) {
	if u.compiled == nil {
		if err := u.Tag(u.CodeEntry); err != nil {
			return 0, err
		}
		if err := u.Recompile(u.CodeEntry); err != nil {
			return 0, err
		}
	}

	if u.DebugFlags&DebugDispatch != 0 {
		u.Logger.Printf("jit: running %#x", u.CodeEntry)
	}
	status := u.compiled(u.RAM.Bytes(), u.Reg, u.Debug)
	if status == recompiler.JIT_RETURN_FUNCNOTFOUND {
		return status, &DriverError{Kind: ErrDispatchMiss, Err: nil}
	}
	return status, nil
}

// Flush discards the cached compiled function (but not tags), forcing
// the next Run to recompile. This is the driver's analogue of the
// original's cpu_flush, used when guest code has been self-modified or
// re-tagged with new information.
func (u *Unit) Flush() {
	u.compiled = nil
}
